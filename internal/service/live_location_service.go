package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// MaxLiveShareDuration bounds a single live location session
const MaxLiveShareDuration = 8 * time.Hour

// LiveLocationService manages live location shares of a conversation
type LiveLocationService struct {
	shareRepo repository.LiveShareRepository
	messages  *MessageService
	clock     Clock
}

func NewLiveLocationService(shareRepo repository.LiveShareRepository, messages *MessageService, clock Clock) *LiveLocationService {
	return &LiveLocationService{shareRepo: shareRepo, messages: messages, clock: clock}
}

// Start begins sharing: the share document is merged active until
// now+duration and a system message announces it. Location permission must
// already be granted.
func (s *LiveLocationService) Start(ctx context.Context, conv *model.Conversation, user *model.User, duration time.Duration, permissionGranted bool, pos *model.Position) (*model.LiveShare, error) {
	if err := requireMember(conv, user.ID); err != nil {
		return nil, err
	}
	if !permissionGranted {
		return nil, apperrors.PermissionDenied("Location")
	}
	if duration <= 0 || duration > MaxLiveShareDuration {
		return nil, apperrors.BadRequest("Invalid live location duration", nil)
	}

	share := &model.LiveShare{
		UserID:      user.ID,
		IsActive:    true,
		ValidUntil:  s.clock.now().Add(duration),
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}
	if pos != nil {
		share.Latitude, share.Longitude, share.Heading = pos.Latitude, pos.Longitude, pos.Heading
	}
	if err := s.shareRepo.Upsert(ctx, conv.ID, share); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("📍 %s started sharing live location for %s", user.DisplayName, formatDuration(duration))
	if _, err := s.messages.SendSystem(ctx, conv, user.Sender(), text); err != nil {
		log.WithError(err).WithField("conversation_id", conv.ID).Warn("⚠️ Failed to announce live location")
	}
	return share, nil
}

// UpdatePosition writes the latest fix of an active share
func (s *LiveLocationService) UpdatePosition(ctx context.Context, conversationID, userID string, pos model.Position) error {
	return s.shareRepo.UpdatePosition(ctx, conversationID, userID, pos)
}

// Stop ends sharing. The remote share is only flipped inactive when
// notifyRemote is set; otherwise only the caller's watcher goes away.
func (s *LiveLocationService) Stop(ctx context.Context, conversationID, userID string, notifyRemote bool) error {
	if !notifyRemote {
		return nil
	}
	return s.shareRepo.Deactivate(ctx, conversationID, userID)
}

// Share returns the caller's own share, if any
func (s *LiveLocationService) Share(ctx context.Context, conversationID, userID string) (*model.LiveShare, error) {
	return s.shareRepo.Get(ctx, conversationID, userID)
}

// ActiveShares lists the shares live right now
func (s *LiveLocationService) ActiveShares(ctx context.Context, conv *model.Conversation, userID string) ([]*model.LiveShare, error) {
	if err := requireMember(conv, userID); err != nil {
		return nil, err
	}
	shares, err := s.shareRepo.List(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return model.ActiveShares(shares, s.clock.now()), nil
}

// Now exposes the service clock to listeners that re-filter by expiry
func (s *LiveLocationService) Now() time.Time {
	return s.clock.now()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute:
		if d < 2*time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
