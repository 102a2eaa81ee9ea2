package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quocanhngo/tripzi/internal/model"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// FirestoreConversationRepository stores conversations in Firestore
type FirestoreConversationRepository struct {
	client *firestore.Client
}

func NewConversationRepository(client *firestore.Client) *FirestoreConversationRepository {
	return &FirestoreConversationRepository{client: client}
}

func (r *FirestoreConversationRepository) chats() *firestore.CollectionRef {
	return r.client.Collection(ChatsCollection)
}

// Create stores a conversation under a Firestore-generated id
func (r *FirestoreConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	ref := r.chats().NewDoc()
	if _, err := ref.Create(ctx, conv); err != nil {
		return apperrors.Internal("Failed to create conversation", err)
	}
	conv.ID = ref.ID
	return nil
}

// CreateIfAbsent relies on Create failing with AlreadyExists, which makes the
// existence check and the write a single conditional operation
func (r *FirestoreConversationRepository) CreateIfAbsent(ctx context.Context, conv *model.Conversation) (bool, error) {
	_, err := r.chats().Doc(conv.ID).Create(ctx, conv)
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	return false, apperrors.Internal("Failed to create conversation", err)
}

// FindByID loads a single conversation
func (r *FirestoreConversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	doc, err := r.chats().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("Conversation", err)
		}
		return nil, apperrors.Internal("Failed to get conversation", err)
	}
	return decodeConversation(doc)
}

// FindDirect finds an existing direct conversation between two users,
// including ones created before ids were derived from the pair
func (r *FirestoreConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	if conv, err := r.FindByID(ctx, model.DirectConversationID(userA, userB)); err == nil {
		return conv, nil
	} else if !apperrors.Is(err, apperrors.CodeNotFound) {
		return nil, err
	}

	iter := r.chats().
		Where("participants", "array-contains", userA).
		Where("type", "==", string(model.ConversationTypeDirect)).
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to query direct conversations", err)
		}
		conv, err := decodeConversation(doc)
		if err != nil {
			continue // Skip malformed documents
		}
		if conv.IsDirectBetween(userA, userB) {
			return conv, nil
		}
	}
	return nil, apperrors.NotFound("Conversation", nil)
}

// ListByParticipant returns the user's conversations, latest activity first
func (r *FirestoreConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*model.Conversation, error) {
	docs, err := r.participantQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch conversations", err)
	}
	return decodeConversations(docs), nil
}

func (r *FirestoreConversationRepository) participantQuery(userID string) firestore.Query {
	return r.chats().
		Where("participants", "array-contains", userID).
		OrderBy("updatedAt", firestore.Desc)
}

// Delete removes the conversation document
func (r *FirestoreConversationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.chats().Doc(id).Delete(ctx); err != nil {
		return apperrors.Internal("Failed to delete conversation", err)
	}
	return nil
}

// ApplySummary writes lastMessage, bumps updatedAt, resets the sender's
// unread counter and increments every recipient's counter
func (r *FirestoreConversationRepository) ApplySummary(ctx context.Context, id string, summary Summary) error {
	last := summary.LastMessage
	updates := []firestore.Update{
		{FieldPath: firestore.FieldPath{"lastMessage", "text"}, Value: last.Text},
		{FieldPath: firestore.FieldPath{"lastMessage", "senderId"}, Value: last.SenderID},
		{FieldPath: firestore.FieldPath{"lastMessage", "senderName"}, Value: last.SenderName},
		{FieldPath: firestore.FieldPath{"lastMessage", "type"}, Value: string(last.Type)},
		{FieldPath: firestore.FieldPath{"lastMessage", "timestamp"}, Value: firestore.ServerTimestamp},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
		{FieldPath: firestore.FieldPath{"unreadCount", summary.SenderID}, Value: 0},
	}
	for _, uid := range summary.Recipients {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"unreadCount", uid},
			Value:     firestore.Increment(1),
		})
	}

	if _, err := r.chats().Doc(id).Update(ctx, updates); err != nil {
		return apperrors.Internal("Failed to update conversation summary", err)
	}
	return nil
}

// ResetUnread sets the user's unread counter to zero
func (r *FirestoreConversationRepository) ResetUnread(ctx context.Context, id, userID string) error {
	_, err := r.chats().Doc(id).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", userID}, Value: 0},
	})
	if err != nil {
		return apperrors.Internal("Failed to reset unread count", err)
	}
	return nil
}

// SetTyping records (or clears, when at is nil) the user's typing timestamp
func (r *FirestoreConversationRepository) SetTyping(ctx context.Context, id, userID string, at *time.Time) error {
	var value interface{} = firestore.Delete
	if at != nil {
		value = *at
	}
	_, err := r.chats().Doc(id).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"typing", userID}, Value: value},
	})
	if err != nil {
		return apperrors.Internal("Failed to update typing status", err)
	}
	return nil
}

// SetMemberFlag adds or removes userID from mutedBy / pinnedBy
func (r *FirestoreConversationRepository) SetMemberFlag(ctx context.Context, id, field, userID string, on bool) error {
	if _, err := r.chats().Doc(id).Update(ctx, []firestore.Update{memberFlagUpdate(field, userID, on)}); err != nil {
		return apperrors.Internal("Failed to update conversation", err)
	}
	return nil
}

func memberFlagUpdate(field, userID string, on bool) firestore.Update {
	var value interface{} = firestore.ArrayRemove(userID)
	if on {
		value = firestore.ArrayUnion(userID)
	}
	return firestore.Update{Path: field, Value: value}
}

// Watch streams snapshots of one conversation document
func (r *FirestoreConversationRepository) Watch(ctx context.Context, id string, fn ConversationFunc) error {
	iter := r.chats().Doc(id).Snapshots(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}
			err = apperrors.Internal("Conversation listener failed", err)
			fn(nil, err)
			return err
		}
		if !doc.Exists() {
			fn(nil, apperrors.NotFound("Conversation", nil))
			continue
		}
		conv, err := decodeConversation(doc)
		fn(conv, err)
	}
}

// WatchByParticipant streams the user's conversation list
func (r *FirestoreConversationRepository) WatchByParticipant(ctx context.Context, userID string, fn ConversationListFunc) error {
	iter := r.participantQuery(userID).Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}
			err = apperrors.Internal("Conversation list listener failed", err)
			fn(nil, err)
			return err
		}
		if snap == nil || snap.Documents == nil {
			fn([]*model.Conversation{}, nil)
			continue
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			fn(nil, apperrors.Internal("Failed to read conversation snapshot", err))
			continue
		}
		fn(decodeConversations(docs), nil)
	}
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*model.Conversation, error) {
	var conv model.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, apperrors.Internal("Failed to parse conversation data", err)
	}
	conv.ID = doc.Ref.ID
	if conv.UnreadCount == nil {
		conv.UnreadCount = map[string]int{}
	}
	return &conv, nil
}

func decodeConversations(docs []*firestore.DocumentSnapshot) []*model.Conversation {
	convs := make([]*model.Conversation, 0, len(docs))
	for _, doc := range docs {
		conv, err := decodeConversation(doc)
		if err != nil {
			continue // Skip bad data instead of failing the whole list
		}
		convs = append(convs, conv)
	}
	return convs
}

// stopped reports whether a listener ended because its context was cancelled
func stopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil || err == iterator.Done {
		return true
	}
	return status.Code(err) == codes.Canceled
}
