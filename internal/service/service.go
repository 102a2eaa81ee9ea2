package service

import (
	"context"
	"time"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/pkg/notification"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// UserDirectory resolves profiles for denormalized participant details
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// Broadcaster pushes events to the live connections of users
type Broadcaster interface {
	SendToUsers(userIDs []string, event *model.WSEvent)
}

// PushNotifier delivers push notifications to offline devices
type PushNotifier interface {
	Notify(ctx context.Context, userIDs []string, n notification.Notification) error
}

// Clock returns the current wall-clock time
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// requireMember rejects users who do not take part in conv
func requireMember(conv *model.Conversation, userID string) error {
	if !conv.HasParticipant(userID) {
		return apperrors.Forbidden("You are not a member of this conversation", nil)
	}
	return nil
}
