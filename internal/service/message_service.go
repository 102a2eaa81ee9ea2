package service

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/dedup"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/pkg/notification"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// DefaultDeleteWindow is how long a sender may delete a message for everyone
const DefaultDeleteWindow = 60 * time.Minute

const pushTimeout = 10 * time.Second

// MessageService handles the message lifecycle: send, receipts, edit, delete
type MessageService struct {
	convRepo     repository.ConversationRepository
	msgRepo      repository.MessageRepository
	registry     dedup.Registry
	hub          Broadcaster
	push         PushNotifier
	clock        Clock
	deleteWindow time.Duration
}

// NewMessageService wires the message lifecycle. hub and push may be nil.
func NewMessageService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	registry dedup.Registry,
	hub Broadcaster,
	push PushNotifier,
	clock Clock,
	deleteWindow time.Duration,
) *MessageService {
	if deleteWindow <= 0 {
		deleteWindow = DefaultDeleteWindow
	}
	return &MessageService{
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		registry:     registry,
		hub:          hub,
		push:         push,
		clock:        clock,
		deleteWindow: deleteWindow,
	}
}

// ==================== Send ====================

// SendText sends a text message. Empty text and duplicates of a text sent to
// the same conversation within the registry window are silently dropped:
// both return a nil message and a nil error.
func (s *MessageService) SendText(ctx context.Context, conv *model.Conversation, sender model.Sender, text string, replyTo *model.ReplyRef) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if conv == nil || conv.ID == "" || sender.ID == "" || text == "" {
		return nil, nil
	}
	if err := requireMember(conv, sender.ID); err != nil {
		return nil, err
	}

	key := dedup.Key(conv.ID, text)
	ok, err := s.registry.Acquire(ctx, key)
	if err != nil {
		// A broken registry must not block sending
		log.WithError(err).Warn("⚠️ Send registry unavailable, skipping duplicate check")
	} else if !ok {
		log.WithField("conversation_id", conv.ID).Debug("Duplicate send suppressed")
		return nil, nil
	}

	msg := model.NewMessage(conv.ID, sender, model.TextContent{Text: text}, replyTo)
	if err := s.deliver(ctx, conv, msg); err != nil {
		// Let the user retry the same text right away
		s.registry.Release(context.WithoutCancel(ctx), key)
		return nil, err
	}
	return msg, nil
}

// SendContent sends a non-text message (media, location, trip share)
func (s *MessageService) SendContent(ctx context.Context, conv *model.Conversation, sender model.Sender, content model.Content) (*model.Message, error) {
	if err := requireMember(conv, sender.ID); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	msg := model.NewMessage(conv.ID, sender, content, nil)
	if err := s.deliver(ctx, conv, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendLocation shares a single location
func (s *MessageService) SendLocation(ctx context.Context, conv *model.Conversation, sender model.Sender, point model.GeoPoint) (*model.Message, error) {
	return s.SendContent(ctx, conv, sender, model.LocationContent{Location: point})
}

// SendTripShare shares a trip card
func (s *MessageService) SendTripShare(ctx context.Context, conv *model.Conversation, sender model.Sender, trip model.TripRef) (*model.Message, error) {
	return s.SendContent(ctx, conv, sender, model.TripShareContent{Trip: trip})
}

// SendSystem posts an informational message on behalf of sender
func (s *MessageService) SendSystem(ctx context.Context, conv *model.Conversation, sender model.Sender, text string) (*model.Message, error) {
	return s.SendContent(ctx, conv, sender, model.SystemContent{Text: text})
}

func validateContent(content model.Content) error {
	switch c := content.(type) {
	case model.TextContent:
		if strings.TrimSpace(c.Text) == "" {
			return apperrors.BadRequest("Message text is required", nil)
		}
	case model.SystemContent:
		if c.Text == "" {
			return apperrors.BadRequest("System message text is required", nil)
		}
	case model.ImageContent:
		if c.URL == "" {
			return apperrors.BadRequest("Image URL is required", nil)
		}
	case model.VideoContent:
		if c.URL == "" {
			return apperrors.BadRequest("Video URL is required", nil)
		}
	case model.VoiceContent:
		if c.URL == "" || c.Duration < 0 {
			return apperrors.BadRequest("Voice message requires a URL and duration", nil)
		}
	case model.LocationContent:
		if c.Location.Latitude < -90 || c.Location.Latitude > 90 ||
			c.Location.Longitude < -180 || c.Location.Longitude > 180 {
			return apperrors.BadRequest("Invalid coordinates", nil)
		}
	case model.TripShareContent:
		if c.Trip.TripID == "" {
			return apperrors.BadRequest("Trip id is required", nil)
		}
	case nil:
		return apperrors.BadRequest("Message content is required", nil)
	}
	return nil
}

// deliver writes the message, then the conversation summary, then fans out
// to live connections and push devices. Only the message write can fail the
// send; later steps are logged.
func (s *MessageService) deliver(ctx context.Context, conv *model.Conversation, msg *model.Message) error {
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		log.WithError(err).WithField("conversation_id", conv.ID).Error("❌ Failed to write message")
		return err
	}

	recipients := conv.OtherParticipants(msg.SenderID)
	summary := repository.Summary{
		LastMessage: model.LastMessage{
			Text:       msg.Preview(),
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Type:       msg.Type(),
		},
		SenderID:   msg.SenderID,
		Recipients: recipients,
	}
	if err := s.convRepo.ApplySummary(ctx, conv.ID, summary); err != nil {
		log.WithError(err).WithField("conversation_id", conv.ID).Warn("⚠️ Failed to update conversation summary")
	}

	if s.hub != nil && len(recipients) > 0 {
		s.hub.SendToUsers(recipients, &model.WSEvent{
			Type:    model.WSEventNewMessage,
			Payload: model.NewMessagePayload{ConversationID: conv.ID, Message: msg},
		})
	}
	s.notify(conv, msg, recipients)
	return nil
}

func (s *MessageService) notify(conv *model.Conversation, msg *model.Message, recipients []string) {
	if s.push == nil || msg.Type() == model.MessageTypeSystem {
		return
	}

	targets := make([]string, 0, len(recipients))
	for _, uid := range recipients {
		if !conv.IsMutedBy(uid) {
			targets = append(targets, uid)
		}
	}
	if len(targets) == 0 {
		return
	}

	title := msg.SenderName
	if conv.Type == model.ConversationTypeGroup && conv.GroupName != "" {
		title = conv.GroupName + ": " + msg.SenderName
	}
	n := notification.Notification{
		Title: title,
		Body:  msg.Preview(),
		Data: map[string]string{
			"type":           model.WSEventNewMessage,
			"conversationId": conv.ID,
			"messageId":      msg.ID,
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.push.Notify(ctx, targets, n); err != nil {
			log.WithError(err).WithField("conversation_id", conv.ID).Warn("⚠️ Push notification failed")
		}
	}()
}

// ==================== Receipts ====================

// MarkAsRead resets the user's unread counter and writes read receipts for
// every loaded message sent by someone else and not yet read by the user.
// It returns the number of receipts written.
func (s *MessageService) MarkAsRead(ctx context.Context, conv *model.Conversation, userID string, loaded []*model.Message) (int, error) {
	if err := requireMember(conv, userID); err != nil {
		return 0, err
	}
	if err := s.convRepo.ResetUnread(ctx, conv.ID, userID); err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(loaded))
	for _, m := range loaded {
		if m.SenderID != userID && !m.IsReadBy(userID) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.msgRepo.MarkRead(ctx, conv.ID, ids, userID); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MarkDelivered records that the user's device received the message
func (s *MessageService) MarkDelivered(ctx context.Context, conv *model.Conversation, messageID, userID string) error {
	if err := requireMember(conv, userID); err != nil {
		return err
	}
	msg, err := s.msgRepo.FindByID(ctx, conv.ID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID || msg.IsDeliveredTo(userID) {
		return nil
	}
	return s.msgRepo.MarkDelivered(ctx, conv.ID, messageID, userID)
}

// ==================== Edit & Delete ====================

// Edit replaces the text of a message. Only the sender may edit, only text
// messages can be edited, and tombstones are final. Nothing is written when
// any check fails.
func (s *MessageService) Edit(ctx context.Context, conv *model.Conversation, messageID, actorID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.BadRequest("Message text is required", nil)
	}
	if err := requireMember(conv, actorID); err != nil {
		return nil, err
	}

	msg, err := s.msgRepo.FindByID(ctx, conv.ID, messageID)
	if err != nil {
		return nil, err
	}
	if err := CanEdit(msg, actorID); err != nil {
		return nil, err
	}

	if err := s.msgRepo.UpdateText(ctx, conv.ID, messageID, text); err != nil {
		return nil, err
	}
	now := s.clock.now()
	msg.Content = model.TextContent{Text: text}
	msg.EditedAt = &now
	return msg, nil
}

// CanEdit reports why actorID may not edit msg, or nil when allowed
func CanEdit(msg *model.Message, actorID string) error {
	if msg.SenderID != actorID {
		return apperrors.Forbidden("Only the sender can edit this message", nil)
	}
	if msg.Type() != model.MessageTypeText {
		return apperrors.BadRequest("Only text messages can be edited", nil)
	}
	if msg.IsTombstoned() {
		return apperrors.BadRequest("Deleted messages cannot be edited", nil)
	}
	return nil
}

// Find returns a message of conv unless userID deleted it for themself
func (s *MessageService) Find(ctx context.Context, conv *model.Conversation, messageID, userID string) (*model.Message, error) {
	if err := requireMember(conv, userID); err != nil {
		return nil, err
	}
	msg, err := s.msgRepo.FindByID(ctx, conv.ID, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.VisibleTo(userID) {
		return nil, apperrors.NotFound("Message", nil)
	}
	return msg, nil
}

// DeleteOptions tells actorID which delete modes msg currently allows
func (s *MessageService) DeleteOptions(msg *model.Message, actorID string) model.DeleteOptions {
	return DeleteOptionsAt(msg, actorID, s.clock.now(), s.deleteWindow)
}

// DeleteOptionsAt is a pure function of wall-clock time: deleting for
// everyone is offered to the sender only while now - createdAt < window.
// A message whose server timestamp is still unresolved was just sent.
func DeleteOptionsAt(msg *model.Message, actorID string, now time.Time, window time.Duration) model.DeleteOptions {
	opts := model.DeleteOptions{ForMe: true}
	if msg.SenderID != actorID || msg.IsTombstoned() {
		return opts
	}
	if msg.CreatedAt.IsZero() {
		opts.ForEveryone = true
		return opts
	}
	if now.Sub(msg.CreatedAt) < window {
		expires := msg.CreatedAt.Add(window)
		opts.ForEveryone = true
		opts.ExpiresAt = &expires
	}
	return opts
}

// Delete removes messages for the actor only or tombstones them for
// everyone. Every message is validated before the single batched write.
func (s *MessageService) Delete(ctx context.Context, conv *model.Conversation, messageIDs []string, actorID string, mode model.DeleteMode) error {
	if err := requireMember(conv, actorID); err != nil {
		return err
	}

	ids := uniqueIDs(messageIDs)
	if len(ids) == 0 {
		return apperrors.BadRequest("No messages selected", nil)
	}
	if len(ids) > repository.MaxBatchWrites {
		return apperrors.BadRequest("Too many messages selected", nil)
	}

	switch mode {
	case model.DeleteForMe:
		if _, err := s.msgRepo.FindByIDs(ctx, conv.ID, ids); err != nil {
			return err
		}
		return s.msgRepo.DeleteFor(ctx, conv.ID, ids, actorID)

	case model.DeleteForEveryone:
		msgs, err := s.msgRepo.FindByIDs(ctx, conv.ID, ids)
		if err != nil {
			return err
		}
		now := s.clock.now()
		for _, m := range msgs {
			if !DeleteOptionsAt(m, actorID, now, s.deleteWindow).ForEveryone {
				return apperrors.Forbidden("This message can no longer be deleted for everyone", nil)
			}
		}
		return s.msgRepo.Tombstone(ctx, conv.ID, ids)

	default:
		return apperrors.BadRequest("Unknown delete mode", nil)
	}
}

// ClearChat hides every message of the conversation from userID only
func (s *MessageService) ClearChat(ctx context.Context, conv *model.Conversation, userID string) (int, error) {
	if err := requireMember(conv, userID); err != nil {
		return 0, err
	}

	msgs, err := s.msgRepo.ListAll(ctx, conv.ID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.VisibleTo(userID) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.msgRepo.DeleteFor(ctx, conv.ID, ids, userID); err != nil {
		return 0, err
	}
	if err := s.convRepo.ResetUnread(ctx, conv.ID, userID); err != nil {
		log.WithError(err).Warn("⚠️ Failed to reset unread count after clearing chat")
	}
	return len(ids), nil
}

// Recent returns the newest window of messages, oldest first, without the
// ones userID deleted for themself
func (s *MessageService) Recent(ctx context.Context, conv *model.Conversation, userID string, limit int) ([]*model.Message, error) {
	if err := requireMember(conv, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	msgs, err := s.msgRepo.ListRecent(ctx, conv.ID, limit)
	if err != nil {
		return nil, err
	}
	return VisibleWindow(msgs, userID), nil
}

// VisibleWindow turns a newest-first window into the display order, dropping
// messages userID deleted for themself
func VisibleWindow(newestFirst []*model.Message, userID string) []*model.Message {
	visible := make([]*model.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if m := newestFirst[i]; m.VisibleTo(userID) {
			visible = append(visible, m)
		}
	}
	repository.SortForDisplay(visible)
	return visible
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
