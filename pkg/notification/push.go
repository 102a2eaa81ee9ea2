package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
)

// DeviceStore resolves users to their registered push tokens
type DeviceStore interface {
	GetDevices(ctx context.Context, userIDs []string) ([]model.UserDevice, error)
	RemoveDevices(ctx context.Context, tokens []string) error
}

// FCMSender is the part of the Firebase messaging client used here
type FCMSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// ExpoPublisher is the part of the Expo push client used here
type ExpoPublisher interface {
	Publish(message *expo.PushMessage) (expo.PushResponse, error)
}

// Notification is a provider-neutral push payload
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushService fans a notification out to every device of the target users.
// Tokens are routed by provider: FCM for native builds, Expo for Expo Go.
type PushService struct {
	fcm     FCMSender
	expo    ExpoPublisher
	devices DeviceStore
}

// NewPushService creates the push fan-out. Either sender may be nil, which
// disables that provider.
func NewPushService(fcm FCMSender, expoClient ExpoPublisher, devices DeviceStore) *PushService {
	return &PushService{fcm: fcm, expo: expoClient, devices: devices}
}

// Notify sends n to every device registered by userIDs
func (s *PushService) Notify(ctx context.Context, userIDs []string, n Notification) error {
	if s == nil || len(userIDs) == 0 {
		return nil
	}

	devices, err := s.devices.GetDevices(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	var fcmTokens []string
	var expoTokens []expo.ExponentPushToken
	for _, d := range devices {
		switch d.Provider {
		case model.PushProviderFCM:
			fcmTokens = append(fcmTokens, d.Token)
		case model.PushProviderExpo:
			token, err := expo.NewExponentPushToken(d.Token)
			if err != nil {
				log.WithField("user_id", d.UserID).Warn("⚠️ Invalid expo token, skipping")
				continue
			}
			expoTokens = append(expoTokens, token)
		}
	}

	var firstErr error
	if err := s.sendFCM(ctx, fcmTokens, n); err != nil {
		firstErr = err
	}
	if err := s.sendExpo(expoTokens, n); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *PushService) sendFCM(ctx context.Context, tokens []string, n Notification) error {
	if s.fcm == nil || len(tokens) == 0 {
		return nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	br, err := s.fcm.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	if br.FailureCount > 0 {
		var stale []string
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsUnregistered(resp.Error) {
				stale = append(stale, tokens[idx])
				continue
			}
			log.Printf("⚠️ FCM failure for token %s: %v", tokens[idx], resp.Error)
		}
		if len(stale) > 0 {
			if err := s.devices.RemoveDevices(ctx, stale); err != nil {
				log.Printf("⚠️ Failed to drop %d stale FCM tokens: %v", len(stale), err)
			}
		}
	}
	return nil
}

func (s *PushService) sendExpo(tokens []expo.ExponentPushToken, n Notification) error {
	if s.expo == nil || len(tokens) == 0 {
		return nil
	}

	response, err := s.expo.Publish(&expo.PushMessage{
		To:       tokens,
		Title:    n.Title,
		Body:     n.Body,
		Data:     n.Data,
		Sound:    "default",
		Priority: expo.HighPriority,
	})
	if err != nil {
		return fmt.Errorf("error publishing expo message: %w", err)
	}
	if err := response.ValidateResponse(); err != nil {
		log.Printf("⚠️ Expo push rejected: %v", err)
	}
	return nil
}
