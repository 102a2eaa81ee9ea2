package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// Conversations implements repository.ConversationRepository
type Conversations struct {
	s *Store
}

var _ repository.ConversationRepository = (*Conversations)(nil)

func (s *Store) Conversations() *Conversations { return &Conversations{s: s} }

func (r *Conversations) Create(ctx context.Context, conv *model.Conversation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("conversations.Create"); err != nil {
		return err
	}

	conv.ID = uuid.NewString()
	s.insertConversation(conv)
	return nil
}

func (r *Conversations) CreateIfAbsent(ctx context.Context, conv *model.Conversation) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("conversations.CreateIfAbsent"); err != nil {
		return false, err
	}

	if _, ok := s.convs[conv.ID]; ok {
		return false, nil
	}
	s.insertConversation(conv)
	return true, nil
}

// insertConversation must be called with mu held
func (s *Store) insertConversation(conv *model.Conversation) {
	now := s.now()
	stored := conv.Clone()
	stored.CreatedAt, stored.UpdatedAt = now, now
	conv.CreatedAt, conv.UpdatedAt = now, now
	s.convs[conv.ID] = stored
	s.notify(chatTopic(conv.ID), chatsTopic)
}

func (r *Conversations) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("conversations.FindByID"); err != nil {
		return nil, err
	}

	conv, ok := s.convs[id]
	if !ok {
		return nil, apperrors.NotFound("Conversation", nil)
	}
	return conv.Clone(), nil
}

func (r *Conversations) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("conversations.FindDirect"); err != nil {
		return nil, err
	}

	if conv, ok := s.convs[model.DirectConversationID(userA, userB)]; ok {
		return conv.Clone(), nil
	}
	for _, conv := range s.convs {
		if conv.IsDirectBetween(userA, userB) {
			return conv.Clone(), nil
		}
	}
	return nil, apperrors.NotFound("Conversation", nil)
}

func (r *Conversations) ListByParticipant(ctx context.Context, userID string) ([]*model.Conversation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("conversations.ListByParticipant"); err != nil {
		return nil, err
	}
	return s.listByParticipant(userID), nil
}

// listByParticipant must be called with mu held
func (s *Store) listByParticipant(userID string) []*model.Conversation {
	convs := []*model.Conversation{}
	for _, conv := range s.convs {
		if conv.HasParticipant(userID) {
			convs = append(convs, conv.Clone())
		}
	}
	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs
}

func (r *Conversations) Delete(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("conversations.Delete"); err != nil {
		return err
	}

	delete(s.convs, id)
	s.notify(chatTopic(id), chatsTopic)
	return nil
}

func (r *Conversations) ApplySummary(ctx context.Context, id string, summary repository.Summary) error {
	return r.update("conversations.ApplySummary", id, func(conv *model.Conversation, now time.Time) error {
		last := summary.LastMessage
		last.Timestamp = now
		conv.LastMessage = &last
		conv.UpdatedAt = now
		if conv.UnreadCount == nil {
			conv.UnreadCount = map[string]int{}
		}
		conv.UnreadCount[summary.SenderID] = 0
		for _, uid := range summary.Recipients {
			conv.UnreadCount[uid]++
		}
		return nil
	})
}

func (r *Conversations) ResetUnread(ctx context.Context, id, userID string) error {
	return r.update("conversations.ResetUnread", id, func(conv *model.Conversation, _ time.Time) error {
		if conv.UnreadCount == nil {
			conv.UnreadCount = map[string]int{}
		}
		conv.UnreadCount[userID] = 0
		return nil
	})
}

func (r *Conversations) SetTyping(ctx context.Context, id, userID string, at *time.Time) error {
	return r.update("conversations.SetTyping", id, func(conv *model.Conversation, _ time.Time) error {
		if at == nil {
			delete(conv.Typing, userID)
			return nil
		}
		if conv.Typing == nil {
			conv.Typing = map[string]time.Time{}
		}
		conv.Typing[userID] = *at
		return nil
	})
}

func (r *Conversations) SetMemberFlag(ctx context.Context, id, field, userID string, on bool) error {
	return r.update("conversations.SetMemberFlag", id, func(conv *model.Conversation, _ time.Time) error {
		var list *[]string
		switch field {
		case repository.FieldMutedBy:
			list = &conv.MutedBy
		case repository.FieldPinnedBy:
			list = &conv.PinnedBy
		default:
			return apperrors.BadRequest("Unknown conversation flag "+field, nil)
		}
		*list = setMember(*list, userID, on)
		return nil
	})
}

func (r *Conversations) update(op, id string, apply func(conv *model.Conversation, now time.Time) error) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(op); err != nil {
		return err
	}

	conv, ok := s.convs[id]
	if !ok {
		return apperrors.NotFound("Conversation", nil)
	}
	if err := apply(conv, s.now()); err != nil {
		return err
	}
	s.notify(chatTopic(id), chatsTopic)
	return nil
}

func (r *Conversations) Watch(ctx context.Context, id string, fn repository.ConversationFunc) error {
	s := r.s
	return s.watch(ctx, chatTopic(id), func(err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		s.mu.Lock()
		conv, ok := s.convs[id]
		if ok {
			conv = conv.Clone()
		}
		s.mu.Unlock()

		if !ok {
			fn(nil, apperrors.NotFound("Conversation", nil))
			return
		}
		fn(conv, nil)
	})
}

func (r *Conversations) WatchByParticipant(ctx context.Context, userID string, fn repository.ConversationListFunc) error {
	s := r.s
	return s.watch(ctx, chatsTopic, func(err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		s.mu.Lock()
		convs := s.listByParticipant(userID)
		s.mu.Unlock()
		fn(convs, nil)
	})
}

func setMember(list []string, v string, on bool) []string {
	out := make([]string, 0, len(list)+1)
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	if on {
		out = append(out, v)
	}
	return out
}
