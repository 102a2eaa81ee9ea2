package service

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// ChatService handles conversation-level operations
type ChatService struct {
	convRepo repository.ConversationRepository
	users    UserDirectory
	inflight singleflight.Group
}

func NewChatService(convRepo repository.ConversationRepository, users UserDirectory) *ChatService {
	return &ChatService{
		convRepo: convRepo,
		users:    users,
	}
}

const directCreateTimeout = 15 * time.Second

type directResult struct {
	conv    *model.Conversation
	created bool
}

// GetOrCreateDirect returns the direct conversation between me and otherID,
// creating it under the pair's deterministic id when none exists. Concurrent
// calls for the same pair in this process share one store round-trip; across
// processes the conditional create keeps a single document.
func (s *ChatService) GetOrCreateDirect(ctx context.Context, me *model.User, otherID string) (*model.Conversation, bool, error) {
	if otherID == "" || otherID == me.ID {
		return nil, false, apperrors.BadRequest("Cannot start a conversation with yourself", nil)
	}

	// The shared call must outlive any single caller's cancellation
	id := model.DirectConversationID(me.ID, otherID)
	ch := s.inflight.DoChan(id, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), directCreateTimeout)
		defer cancel()
		return s.getOrCreateDirect(shared, me, otherID)
	})

	select {
	case <-ctx.Done():
		return nil, false, apperrors.Internal("Direct conversation request cancelled", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		res := r.Val.(*directResult)
		return res.conv.Clone(), res.created, nil
	}
}

func (s *ChatService) getOrCreateDirect(ctx context.Context, me *model.User, otherID string) (*directResult, error) {
	// 1. Re-query the store; legacy conversations may use random ids
	conv, err := s.convRepo.FindDirect(ctx, me.ID, otherID)
	if err == nil {
		return &directResult{conv: conv}, nil
	}
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		return nil, err
	}

	// 2. Conditional create under the deterministic id
	conv, err = s.newDirect(ctx, me, otherID)
	if err != nil {
		return nil, err
	}
	conv.ID = model.DirectConversationID(me.ID, otherID)

	created, err := s.convRepo.CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, err
	}
	if !created {
		// Another instance won the race
		existing, err := s.convRepo.FindByID(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		return &directResult{conv: existing}, nil
	}

	log.WithFields(log.Fields{"conversation_id": conv.ID, "user_id": me.ID}).Info("💬 Direct conversation created")
	return &directResult{conv: conv, created: true}, nil
}

// CreateDirect always creates a new direct conversation under a store-assigned
// id. Prefer GetOrCreateDirect when idempotency matters.
func (s *ChatService) CreateDirect(ctx context.Context, me *model.User, otherID string) (*model.Conversation, error) {
	if otherID == "" || otherID == me.ID {
		return nil, apperrors.BadRequest("Cannot start a conversation with yourself", nil)
	}
	conv, err := s.newDirect(ctx, me, otherID)
	if err != nil {
		return nil, err
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) newDirect(ctx context.Context, me *model.User, otherID string) (*model.Conversation, error) {
	other, err := s.users.FindByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	return model.NewConversation(model.ConversationTypeDirect, map[string]model.ParticipantDetail{
		me.ID:    me.Detail(""),
		other.ID: other.Detail(""),
	}), nil
}

// CreateGroup creates a group with the creator as admin
func (s *ChatService) CreateGroup(ctx context.Context, creator *model.User, req model.CreateGroupRequest) (*model.Conversation, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.BadRequest("Group name is required", nil)
	}

	memberIDs := make([]string, 0, len(req.MemberIDs))
	seen := map[string]bool{creator.ID: true}
	for _, id := range req.MemberIDs {
		if id == "" || seen[id] {
			continue // Skip the creator and duplicates
		}
		seen[id] = true
		memberIDs = append(memberIDs, id)
	}
	if len(memberIDs) == 0 {
		return nil, apperrors.BadRequest("A group needs at least one other member", nil)
	}

	members, err := s.users.FindByIDs(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	if len(members) != len(memberIDs) {
		return nil, apperrors.BadRequest("Some members do not exist", nil)
	}

	details := map[string]model.ParticipantDetail{
		creator.ID: creator.Detail(model.RoleAdmin),
	}
	for i := range members {
		details[members[i].ID] = members[i].Detail(model.RoleMember)
	}

	conv := model.NewConversation(model.ConversationTypeGroup, details)
	conv.GroupName = name
	conv.GroupIcon = req.Icon
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"conversation_id": conv.ID, "members": len(conv.Participants)}).Info("👥 Group created")
	return conv, nil
}

// DeleteGroup removes a group conversation. Only admins may delete.
func (s *ChatService) DeleteGroup(ctx context.Context, convID, userID string) error {
	conv, err := s.Get(ctx, convID, userID)
	if err != nil {
		return err
	}
	if conv.Type != model.ConversationTypeGroup {
		return apperrors.BadRequest("Only group conversations can be deleted", nil)
	}
	if !conv.IsAdmin(userID) {
		return apperrors.Forbidden("Only group admins can delete the group", nil)
	}
	return s.convRepo.Delete(ctx, convID)
}

// List returns the user's conversations, latest activity first
func (s *ChatService) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return s.convRepo.ListByParticipant(ctx, userID)
}

// Get returns a conversation the user takes part in
func (s *ChatService) Get(ctx context.Context, convID, userID string) (*model.Conversation, error) {
	conv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(conv, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// SetMuted turns push notifications for the conversation off or on
func (s *ChatService) SetMuted(ctx context.Context, convID, userID string, muted bool) error {
	return s.setFlag(ctx, convID, userID, repository.FieldMutedBy, muted)
}

// SetPinned pins or unpins the conversation in the user's list
func (s *ChatService) SetPinned(ctx context.Context, convID, userID string, pinned bool) error {
	return s.setFlag(ctx, convID, userID, repository.FieldPinnedBy, pinned)
}

func (s *ChatService) setFlag(ctx context.Context, convID, userID, field string, on bool) error {
	if _, err := s.Get(ctx, convID, userID); err != nil {
		return err
	}
	return s.convRepo.SetMemberFlag(ctx, convID, field, userID, on)
}
