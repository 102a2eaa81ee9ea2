package memstore

import (
	"context"
	"sort"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// LiveShares implements repository.LiveShareRepository
type LiveShares struct {
	s *Store
}

var _ repository.LiveShareRepository = (*LiveShares)(nil)

func (s *Store) LiveShares() *LiveShares { return &LiveShares{s: s} }

func (r *LiveShares) Upsert(ctx context.Context, conversationID string, share *model.LiveShare) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("liveShares.Upsert"); err != nil {
		return err
	}

	stored := *share
	stored.Timestamp = s.now()
	if s.shares[conversationID] == nil {
		s.shares[conversationID] = make(map[string]*model.LiveShare)
	}
	s.shares[conversationID][share.UserID] = &stored
	s.notify(sharesTopic(conversationID))
	return nil
}

func (r *LiveShares) Get(ctx context.Context, conversationID, userID string) (*model.LiveShare, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("liveShares.Get"); err != nil {
		return nil, err
	}

	share, ok := s.shares[conversationID][userID]
	if !ok {
		return nil, apperrors.NotFound("Live share", nil)
	}
	out := *share
	return &out, nil
}

func (r *LiveShares) List(ctx context.Context, conversationID string) ([]*model.LiveShare, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("liveShares.List"); err != nil {
		return nil, err
	}
	return s.listShares(conversationID), nil
}

// listShares must be called with mu held
func (s *Store) listShares(conversationID string) []*model.LiveShare {
	shares := make([]*model.LiveShare, 0, len(s.shares[conversationID]))
	for _, share := range s.shares[conversationID] {
		out := *share
		shares = append(shares, &out)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].UserID < shares[j].UserID })
	return shares
}

func (r *LiveShares) UpdatePosition(ctx context.Context, conversationID, userID string, pos model.Position) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("liveShares.UpdatePosition"); err != nil {
		return err
	}

	share, ok := s.shares[conversationID][userID]
	if !ok {
		return apperrors.NotFound("Live share", nil)
	}
	share.Latitude, share.Longitude, share.Heading = pos.Latitude, pos.Longitude, pos.Heading
	share.Timestamp = s.now()
	s.notify(sharesTopic(conversationID))
	return nil
}

func (r *LiveShares) Deactivate(ctx context.Context, conversationID, userID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("liveShares.Deactivate"); err != nil {
		return err
	}

	if s.shares[conversationID] == nil {
		s.shares[conversationID] = make(map[string]*model.LiveShare)
	}
	share, ok := s.shares[conversationID][userID]
	if !ok {
		share = &model.LiveShare{UserID: userID}
		s.shares[conversationID][userID] = share
	}
	share.IsActive = false
	share.Timestamp = s.now()
	s.notify(sharesTopic(conversationID))
	return nil
}

func (r *LiveShares) Watch(ctx context.Context, conversationID string, fn repository.LiveShareListFunc) error {
	s := r.s
	return s.watch(ctx, sharesTopic(conversationID), func(err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		s.mu.Lock()
		shares := s.listShares(conversationID)
		s.mu.Unlock()
		fn(shares, nil)
	})
}
