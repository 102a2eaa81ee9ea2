package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quocanhngo/tripzi/internal/model"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// FirestoreMessageRepository stores messages under chats/{id}/messages
type FirestoreMessageRepository struct {
	client *firestore.Client
}

func NewMessageRepository(client *firestore.Client) *FirestoreMessageRepository {
	return &FirestoreMessageRepository{client: client}
}

func (r *FirestoreMessageRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.client.Collection(ChatsCollection).Doc(conversationID).Collection(MessagesCollection)
}

// Create inserts a new message; createdAt is resolved by the server
func (r *FirestoreMessageRepository) Create(ctx context.Context, msg *model.Message) error {
	ref := r.messages(msg.ConversationID).NewDoc()
	if _, err := ref.Create(ctx, msg.Fields()); err != nil {
		return apperrors.Internal("Failed to send message", err)
	}
	msg.ID = ref.ID
	return nil
}

// FindByID finds a message by ID
func (r *FirestoreMessageRepository) FindByID(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("Message", err)
		}
		return nil, apperrors.Internal("Failed to get message", err)
	}
	return decodeMessage(doc)
}

// FindByIDs loads every listed message, failing when any is missing
func (r *FirestoreMessageRepository) FindByIDs(ctx context.Context, conversationID string, messageIDs []string) ([]*model.Message, error) {
	refs := make([]*firestore.DocumentRef, 0, len(messageIDs))
	for _, id := range messageIDs {
		refs = append(refs, r.messages(conversationID).Doc(id))
	}

	docs, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, apperrors.Internal("Failed to get messages", err)
	}

	msgs := make([]*model.Message, 0, len(docs))
	for _, doc := range docs {
		if !doc.Exists() {
			return nil, apperrors.NotFound("Message", nil)
		}
		msg, err := decodeMessage(doc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ListAll returns every message of the conversation, oldest first
func (r *FirestoreMessageRepository) ListAll(ctx context.Context, conversationID string) ([]*model.Message, error) {
	docs, err := r.messages(conversationID).OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch messages", err)
	}
	return decodeMessages(docs), nil
}

// ListRecent returns the newest limit messages, newest first
func (r *FirestoreMessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	docs, err := r.messages(conversationID).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch messages", err)
	}
	return decodeMessages(docs), nil
}

// Watch streams the newest limit messages, newest first
func (r *FirestoreMessageRepository) Watch(ctx context.Context, conversationID string, limit int, fn MessageListFunc) error {
	iter := r.messages(conversationID).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}
			err = apperrors.Internal("Message listener failed", err)
			fn(nil, err)
			return err
		}
		if snap == nil || snap.Documents == nil {
			fn([]*model.Message{}, nil)
			continue
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			fn(nil, apperrors.Internal("Failed to read message snapshot", err))
			continue
		}
		fn(decodeMessages(docs), nil)
	}
}

// UpdateText replaces the text of a message and stamps editedAt
func (r *FirestoreMessageRepository) UpdateText(ctx context.Context, conversationID, messageID, text string) error {
	_, err := r.messages(conversationID).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "text", Value: text},
		{Path: "editedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		return mapWriteError("Message", "Failed to edit message", err)
	}
	return nil
}

// MarkRead writes a read receipt for userID on every listed message
func (r *FirestoreMessageRepository) MarkRead(ctx context.Context, conversationID string, messageIDs []string, userID string) error {
	return r.batchUpdate(ctx, conversationID, messageIDs, "Failed to mark messages as read", []firestore.Update{
		{FieldPath: firestore.FieldPath{"readBy", userID}, Value: firestore.ServerTimestamp},
		{Path: "status", Value: string(model.MessageStatusRead)},
	})
}

// MarkDelivered adds userID to deliveredTo. The status only moves forward,
// so a read message stays read.
func (r *FirestoreMessageRepository) MarkDelivered(ctx context.Context, conversationID, messageID, userID string) error {
	ref := r.messages(conversationID).Doc(messageID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		updates := []firestore.Update{
			{Path: "deliveredTo", Value: firestore.ArrayUnion(userID)},
		}
		if st, _ := doc.DataAt("status"); st == string(model.MessageStatusSent) {
			updates = append(updates, firestore.Update{Path: "status", Value: string(model.MessageStatusDelivered)})
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return mapWriteError("Message", "Failed to mark message as delivered", err)
	}
	return nil
}

// DeleteFor hides the listed messages from userID only
func (r *FirestoreMessageRepository) DeleteFor(ctx context.Context, conversationID string, messageIDs []string, userID string) error {
	return r.batchUpdate(ctx, conversationID, messageIDs, "Failed to delete messages", []firestore.Update{
		{Path: "deletedFor", Value: firestore.ArrayUnion(userID)},
	})
}

// Tombstone marks the listed messages deleted for everyone and clears their content
func (r *FirestoreMessageRepository) Tombstone(ctx context.Context, conversationID string, messageIDs []string) error {
	return r.batchUpdate(ctx, conversationID, messageIDs, "Failed to delete messages", []firestore.Update{
		{Path: "deletedForEveryoneAt", Value: firestore.ServerTimestamp},
		{Path: "text", Value: ""},
		{Path: "mediaUrl", Value: ""},
		{Path: "mediaThumbnail", Value: ""},
		{Path: "location", Value: firestore.Delete},
		{Path: "trip", Value: firestore.Delete},
	})
}

// batchUpdate applies the same updates to every listed message. Each chunk
// commits atomically; callers that need a single atomic write keep their
// selection under MaxBatchWrites.
func (r *FirestoreMessageRepository) batchUpdate(ctx context.Context, conversationID string, messageIDs []string, failure string, updates []firestore.Update) error {
	for start := 0; start < len(messageIDs); start += MaxBatchWrites {
		end := start + MaxBatchWrites
		if end > len(messageIDs) {
			end = len(messageIDs)
		}

		batch := r.client.Batch()
		for _, id := range messageIDs[start:end] {
			batch.Update(r.messages(conversationID).Doc(id), updates)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return mapWriteError("Message", failure, err)
		}
	}
	return nil
}

func decodeMessage(doc *firestore.DocumentSnapshot) (*model.Message, error) {
	var f model.MessageFields
	if err := doc.DataTo(&f); err != nil {
		return nil, apperrors.Internal("Failed to parse message data", err)
	}
	f.ID = doc.Ref.ID
	if parent := doc.Ref.Parent.Parent; parent != nil {
		f.ConversationID = parent.ID
	}
	msg, err := model.MessageFromFields(f)
	if err != nil {
		return nil, apperrors.Internal("Failed to parse message data", err)
	}
	return msg, nil
}

func decodeMessages(docs []*firestore.DocumentSnapshot) []*model.Message {
	msgs := make([]*model.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := decodeMessage(doc)
		if err != nil {
			continue // Skip bad data
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func mapWriteError(resource, failure string, err error) error {
	if status.Code(err) == codes.NotFound {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Internal(failure, err)
}
