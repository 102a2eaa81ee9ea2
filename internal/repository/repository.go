package repository

import (
	"context"
	"sort"
	"time"

	"github.com/quocanhngo/tripzi/internal/model"
)

// Collection names shared with the mobile clients
const (
	ChatsCollection      = "chats"
	MessagesCollection   = "messages"
	LiveSharesCollection = "live_shares"
)

// MaxBatchWrites keeps every write batch under Firestore's 500 write limit
const MaxBatchWrites = 450

// Member flag fields on a conversation
const (
	FieldMutedBy  = "mutedBy"
	FieldPinnedBy = "pinnedBy"
)

// Watch callbacks receive either a full snapshot or the listener error.
// A Watch call blocks until ctx is cancelled (returning nil) or the listener
// fails (the error is reported to the callback and returned).
type (
	ConversationFunc     func(conv *model.Conversation, err error)
	ConversationListFunc func(convs []*model.Conversation, err error)
	MessageListFunc      func(msgs []*model.Message, err error)
	LiveShareListFunc    func(shares []*model.LiveShare, err error)
)

// Summary is the denormalized update applied to a conversation on each send
type Summary struct {
	LastMessage model.LastMessage
	SenderID    string
	Recipients  []string
}

// ConversationRepository persists conversations (chats/{id})
type ConversationRepository interface {
	// Create stores conv under a store-assigned id
	Create(ctx context.Context, conv *model.Conversation) error
	// CreateIfAbsent stores conv under conv.ID unless a document exists already
	CreateIfAbsent(ctx context.Context, conv *model.Conversation) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*model.Conversation, error)
	Delete(ctx context.Context, id string) error
	ApplySummary(ctx context.Context, id string, summary Summary) error
	ResetUnread(ctx context.Context, id, userID string) error
	SetTyping(ctx context.Context, id, userID string, at *time.Time) error
	SetMemberFlag(ctx context.Context, id, field, userID string, on bool) error
	Watch(ctx context.Context, id string, fn ConversationFunc) error
	WatchByParticipant(ctx context.Context, userID string, fn ConversationListFunc) error
}

// MessageRepository persists messages (chats/{id}/messages/{messageId})
type MessageRepository interface {
	// Create stores msg under a store-assigned id with a server createdAt
	Create(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, conversationID, messageID string) (*model.Message, error)
	FindByIDs(ctx context.Context, conversationID string, messageIDs []string) ([]*model.Message, error)
	ListAll(ctx context.Context, conversationID string) ([]*model.Message, error)
	// ListRecent returns the newest limit messages, ordered createdAt descending
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
	// Watch streams the newest limit messages, ordered createdAt descending
	Watch(ctx context.Context, conversationID string, limit int, fn MessageListFunc) error
	UpdateText(ctx context.Context, conversationID, messageID, text string) error
	MarkRead(ctx context.Context, conversationID string, messageIDs []string, userID string) error
	MarkDelivered(ctx context.Context, conversationID, messageID, userID string) error
	DeleteFor(ctx context.Context, conversationID string, messageIDs []string, userID string) error
	Tombstone(ctx context.Context, conversationID string, messageIDs []string) error
}

// LiveShareRepository persists live location shares (chats/{id}/live_shares/{userId})
type LiveShareRepository interface {
	Upsert(ctx context.Context, conversationID string, share *model.LiveShare) error
	Get(ctx context.Context, conversationID, userID string) (*model.LiveShare, error)
	List(ctx context.Context, conversationID string) ([]*model.LiveShare, error)
	UpdatePosition(ctx context.Context, conversationID, userID string, pos model.Position) error
	Deactivate(ctx context.Context, conversationID, userID string) error
	Watch(ctx context.Context, conversationID string, fn LiveShareListFunc) error
}

// SortForDisplay orders messages by createdAt ascending. Messages whose
// server timestamp is still unresolved (zero) go last, keeping their order.
func SortForDisplay(msgs []*model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		switch {
		case a.CreatedAt.IsZero():
			return false
		case b.CreatedAt.IsZero():
			return true
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}
