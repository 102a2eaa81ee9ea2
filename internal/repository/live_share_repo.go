package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quocanhngo/tripzi/internal/model"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// FirestoreLiveShareRepository stores live location shares keyed by user id
type FirestoreLiveShareRepository struct {
	client *firestore.Client
}

func NewLiveShareRepository(client *firestore.Client) *FirestoreLiveShareRepository {
	return &FirestoreLiveShareRepository{client: client}
}

func (r *FirestoreLiveShareRepository) shares(conversationID string) *firestore.CollectionRef {
	return r.client.Collection(ChatsCollection).Doc(conversationID).Collection(LiveSharesCollection)
}

// Upsert merges the share into the user's document
func (r *FirestoreLiveShareRepository) Upsert(ctx context.Context, conversationID string, share *model.LiveShare) error {
	_, err := r.shares(conversationID).Doc(share.UserID).Set(ctx, map[string]interface{}{
		"isActive":    share.IsActive,
		"validUntil":  share.ValidUntil,
		"latitude":    share.Latitude,
		"longitude":   share.Longitude,
		"heading":     share.Heading,
		"displayName": share.DisplayName,
		"photoURL":    share.PhotoURL,
		"timestamp":   firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return apperrors.Internal("Failed to save live location", err)
	}
	return nil
}

func (r *FirestoreLiveShareRepository) Get(ctx context.Context, conversationID, userID string) (*model.LiveShare, error) {
	doc, err := r.shares(conversationID).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("Live share", err)
		}
		return nil, apperrors.Internal("Failed to get live location", err)
	}
	return decodeLiveShare(doc)
}

func (r *FirestoreLiveShareRepository) List(ctx context.Context, conversationID string) ([]*model.LiveShare, error) {
	docs, err := r.shares(conversationID).Documents(ctx).GetAll()
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch live locations", err)
	}
	return decodeLiveShares(docs), nil
}

// UpdatePosition writes a new fix without touching isActive or validUntil
func (r *FirestoreLiveShareRepository) UpdatePosition(ctx context.Context, conversationID, userID string, pos model.Position) error {
	_, err := r.shares(conversationID).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "latitude", Value: pos.Latitude},
		{Path: "longitude", Value: pos.Longitude},
		{Path: "heading", Value: pos.Heading},
		{Path: "timestamp", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		return mapWriteError("Live share", "Failed to update live location", err)
	}
	return nil
}

func (r *FirestoreLiveShareRepository) Deactivate(ctx context.Context, conversationID, userID string) error {
	_, err := r.shares(conversationID).Doc(userID).Set(ctx, map[string]interface{}{
		"isActive":  false,
		"timestamp": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return apperrors.Internal("Failed to stop live location", err)
	}
	return nil
}

// Watch streams every share document of the conversation
func (r *FirestoreLiveShareRepository) Watch(ctx context.Context, conversationID string, fn LiveShareListFunc) error {
	iter := r.shares(conversationID).Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}
			err = apperrors.Internal("Live location listener failed", err)
			fn(nil, err)
			return err
		}
		if snap == nil || snap.Documents == nil {
			fn([]*model.LiveShare{}, nil)
			continue
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			fn(nil, apperrors.Internal("Failed to read live location snapshot", err))
			continue
		}
		fn(decodeLiveShares(docs), nil)
	}
}

func decodeLiveShare(doc *firestore.DocumentSnapshot) (*model.LiveShare, error) {
	var share model.LiveShare
	if err := doc.DataTo(&share); err != nil {
		return nil, apperrors.Internal("Failed to parse live location", err)
	}
	share.UserID = doc.Ref.ID
	return &share, nil
}

func decodeLiveShares(docs []*firestore.DocumentSnapshot) []*model.LiveShare {
	shares := make([]*model.LiveShare, 0, len(docs))
	for _, doc := range docs {
		share, err := decodeLiveShare(doc)
		if err != nil {
			continue
		}
		shares = append(shares, share)
	}
	return shares
}
