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

// Messages implements repository.MessageRepository
type Messages struct {
	s *Store
}

var _ repository.MessageRepository = (*Messages)(nil)

func (s *Store) Messages() *Messages { return &Messages{s: s} }

func (r *Messages) Create(ctx context.Context, msg *model.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("messages.Create"); err != nil {
		return err
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()
	stored := msg.Clone()

	if s.msgs[msg.ConversationID] == nil {
		s.msgs[msg.ConversationID] = make(map[string]*entry)
	}
	s.seq++
	s.msgs[msg.ConversationID][msg.ID] = &entry{msg: stored, seq: s.seq}
	s.notify(messagesTopic(msg.ConversationID))
	return nil
}

func (r *Messages) FindByID(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("messages.FindByID"); err != nil {
		return nil, err
	}

	e, ok := s.msgs[conversationID][messageID]
	if !ok {
		return nil, apperrors.NotFound("Message", nil)
	}
	return e.msg.Clone(), nil
}

func (r *Messages) FindByIDs(ctx context.Context, conversationID string, messageIDs []string) ([]*model.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("messages.FindByIDs"); err != nil {
		return nil, err
	}

	out := make([]*model.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		e, ok := s.msgs[conversationID][id]
		if !ok {
			return nil, apperrors.NotFound("Message", nil)
		}
		out = append(out, e.msg.Clone())
	}
	return out, nil
}

func (r *Messages) ListAll(ctx context.Context, conversationID string) ([]*model.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("messages.ListAll"); err != nil {
		return nil, err
	}

	msgs := s.newest(conversationID, 0)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *Messages) ListRecent(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("messages.ListRecent"); err != nil {
		return nil, err
	}
	return s.newest(conversationID, limit), nil
}

// newest returns up to limit messages, newest first; limit <= 0 means all.
// Must be called with mu held.
func (s *Store) newest(conversationID string, limit int) []*model.Message {
	entries := make([]*entry, 0, len(s.msgs[conversationID]))
	for _, e := range s.msgs[conversationID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.msg.CreatedAt.After(b.msg.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	msgs := make([]*model.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.msg.Clone())
	}
	return msgs
}

func (r *Messages) Watch(ctx context.Context, conversationID string, limit int, fn repository.MessageListFunc) error {
	s := r.s
	return s.watch(ctx, messagesTopic(conversationID), func(err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		s.mu.Lock()
		msgs := s.newest(conversationID, limit)
		s.mu.Unlock()
		fn(msgs, nil)
	})
}

func (r *Messages) UpdateText(ctx context.Context, conversationID, messageID, text string) error {
	return r.update("messages.UpdateText", conversationID, []string{messageID}, func(m *model.Message, now time.Time) error {
		f := m.Fields()
		f.Text = text
		f.EditedAt = &now
		edited, err := model.MessageFromFields(f)
		if err != nil {
			return apperrors.Internal("Failed to edit message", err)
		}
		*m = *edited
		return nil
	})
}

func (r *Messages) MarkRead(ctx context.Context, conversationID string, messageIDs []string, userID string) error {
	return r.update("messages.MarkRead", conversationID, messageIDs, func(m *model.Message, now time.Time) error {
		if m.ReadBy == nil {
			m.ReadBy = map[string]time.Time{}
		}
		m.ReadBy[userID] = now
		m.Status = model.MessageStatusRead
		return nil
	})
}

func (r *Messages) MarkDelivered(ctx context.Context, conversationID, messageID, userID string) error {
	return r.update("messages.MarkDelivered", conversationID, []string{messageID}, func(m *model.Message, _ time.Time) error {
		if !m.IsDeliveredTo(userID) {
			m.DeliveredTo = append(m.DeliveredTo, userID)
		}
		if m.Status == model.MessageStatusSent {
			m.Status = model.MessageStatusDelivered
		}
		return nil
	})
}

func (r *Messages) DeleteFor(ctx context.Context, conversationID string, messageIDs []string, userID string) error {
	return r.update("messages.DeleteFor", conversationID, messageIDs, func(m *model.Message, _ time.Time) error {
		if m.VisibleTo(userID) {
			m.DeletedFor = append(m.DeletedFor, userID)
		}
		return nil
	})
}

func (r *Messages) Tombstone(ctx context.Context, conversationID string, messageIDs []string) error {
	return r.update("messages.Tombstone", conversationID, messageIDs, func(m *model.Message, now time.Time) error {
		m.DeletedForEveryoneAt = &now
		m.Content = model.Tombstone(m.Content)
		return nil
	})
}

// update applies fn to every listed message as one atomic write: nothing is
// changed when any message is missing or fn fails
func (r *Messages) update(op, conversationID string, messageIDs []string, fn func(m *model.Message, now time.Time) error) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(op); err != nil {
		return err
	}

	now := s.now()
	staged := make(map[string]*model.Message, len(messageIDs))
	for _, id := range messageIDs {
		e, ok := s.msgs[conversationID][id]
		if !ok {
			return apperrors.NotFound("Message", nil)
		}
		m, ok := staged[id]
		if !ok {
			m = e.msg.Clone()
		}
		if err := fn(m, now); err != nil {
			return err
		}
		staged[id] = m
	}

	for id, m := range staged {
		s.msgs[conversationID][id].msg = m
	}
	if len(staged) > 0 {
		s.notify(messagesTopic(conversationID))
	}
	return nil
}
