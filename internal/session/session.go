package session

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/location"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/presence"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/internal/service"
	"github.com/quocanhngo/tripzi/internal/syncer"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

const remoteWriteTimeout = 10 * time.Second

// Sink receives the events a session produces. Emit must not block.
type Sink interface {
	Emit(event *model.WSEvent)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(event *model.WSEvent)

func (f SinkFunc) Emit(event *model.WSEvent) { f(event) }

// Config holds the session timings
type Config struct {
	PageSize         int
	SendLockRelease  time.Duration
	TypingClear      time.Duration
	TypingStale      time.Duration
	LocationInterval time.Duration
	LocationDistance float64
	RecordingTick    time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = syncer.DefaultPageSize
	}
	if c.SendLockRelease <= 0 {
		c.SendLockRelease = syncer.DefaultLockRelease
	}
	if c.TypingClear <= 0 {
		c.TypingClear = presence.DefaultTypingClear
	}
	if c.TypingStale <= 0 {
		c.TypingStale = presence.DefaultTypingStale
	}
	if c.LocationInterval <= 0 {
		c.LocationInterval = location.DefaultMinInterval
	}
	if c.LocationDistance <= 0 {
		c.LocationDistance = location.DefaultMinDistance
	}
	if c.RecordingTick <= 0 {
		c.RecordingTick = time.Second
	}
	return c
}

// Deps are the stores and services a session works through
type Deps struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Shares        repository.LiveShareRepository
	Chats         *service.ChatService
	MessageSvc    *service.MessageService
	Live          *service.LiveLocationService
	Clock         func() time.Time
}

// ChatSession drives one open chat screen for one user: the message window,
// typing presence, reply draft, selection, live location and voice
// recording. All listeners, timers and tickers stop on Close.
type ChatSession struct {
	deps Deps
	cfg  Config
	user *model.User
	sink Sink

	stream    *syncer.MessageStream
	recorder  *Recorder
	convWatch *syncer.Listener
	liveWatch *syncer.Listener

	mu          sync.Mutex
	conv        *model.Conversation
	typists     []string
	typing      bool
	typingTimer *time.Timer
	reply       *model.ReplyRef
	selecting   bool
	selected    []string
	permission  bool
	sharing     bool
	validUntil  time.Time
	held        bool // stopped locally while the remote share runs on
	filter      *location.Filter
	closed      bool
}

// Open loads the conversation for user and starts its listeners
func Open(ctx context.Context, deps Deps, cfg Config, user *model.User, conversationID string, locationPermission bool, sink Sink) (*ChatSession, error) {
	conv, err := deps.Chats.Get(ctx, conversationID, user.ID)
	if err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &ChatSession{
		deps:       deps,
		cfg:        cfg.withDefaults(),
		user:       user,
		sink:       sink,
		conv:       conv,
		typists:    []string{},
		permission: locationPermission,
	}
	s.stream = syncer.NewMessageStream(deps.Messages, deps.MessageSvc, s.cfg.PageSize, s.cfg.SendLockRelease, func(v syncer.MessageView) {
		s.emit(model.WSEventMessages, v.Payload())
	})
	s.recorder = NewRecorder(s.cfg.RecordingTick, deps.Clock, func(seconds int) {
		s.emit(model.WSEventRecordingTick, model.RecordingPayload{Seconds: seconds})
	})

	s.stream.Subscribe(conv, user)
	s.convWatch = syncer.Listen("chat:"+conv.ID, func(ctx context.Context) error {
		return deps.Conversations.Watch(ctx, conv.ID, s.onConversation)
	})
	s.liveWatch = syncer.Listen("shares:"+conv.ID, func(ctx context.Context) error {
		return deps.Shares.Watch(ctx, conv.ID, s.onShares)
	})

	log.WithFields(log.Fields{"conversation_id": conv.ID, "user_id": user.ID}).Debug("💬 Chat session opened")
	return s, nil
}

// ConversationID returns the id of the open conversation
func (s *ChatSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}

// Messages returns the current message window
func (s *ChatSession) Messages() syncer.MessageView {
	return s.stream.Snapshot()
}

func (s *ChatSession) emit(eventType string, payload interface{}) {
	s.sink.Emit(&model.WSEvent{Type: eventType, Payload: payload})
}

func (s *ChatSession) fail(op string, err error) {
	appErr := apperrors.As(err)
	s.emit(model.WSEventError, model.ErrorPayload{Op: op, Code: appErr.Code, Message: appErr.Message})
}

func (s *ChatSession) current() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

func (s *ChatSession) remoteContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), remoteWriteTimeout)
}

// ==================== Listeners ====================

func (s *ChatSession) onConversation(conv *model.Conversation, err error) {
	if err != nil {
		s.fail("conversation", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conv = conv
	typists := presence.TypingUsers(conv, s.user.ID, s.deps.Clock(), s.cfg.TypingStale)
	changed := !presence.SameUsers(typists, s.typists)
	s.typists = typists
	s.mu.Unlock()

	s.stream.SetConversation(conv)
	if changed {
		s.emit(model.WSEventTyping, model.TypingPayload{ConversationID: conv.ID, UserIDs: typists})
	}
}

func (s *ChatSession) onShares(shares []*model.LiveShare, err error) {
	if err != nil {
		s.fail("live_shares", err)
		return
	}

	now := s.deps.Clock()
	var own *model.LiveShare
	for _, sh := range shares {
		if sh.UserID == s.user.ID {
			own = sh
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	action := location.Reconcile(own, s.sharing, s.permission, now)
	switch action {
	case location.StopLocal:
		s.sharing, s.filter = false, nil
	case location.ResumeSilently:
		if s.held {
			action = location.None
			break
		}
		s.sharing = true
		s.validUntil = own.ValidUntil
		s.filter = location.NewFilter(s.cfg.LocationInterval, s.cfg.LocationDistance)
	}
	if own == nil || !own.IsActiveAt(now) {
		s.held = false
	}
	sharing, convID := s.sharing, s.conv.ID
	s.mu.Unlock()

	if action != location.None {
		log.WithFields(log.Fields{"conversation_id": convID, "user_id": s.user.ID, "action": action}).Info("📍 Live location reconciled")
	}
	s.emit(model.WSEventLiveShares, model.LiveSharesPayload{
		ConversationID: convID,
		Shares:         model.ActiveShares(shares, now),
		Sharing:        sharing,
	})
}

// ==================== Typing ====================

// InputChanged tracks the composer text. Going from empty to non-empty marks
// the user as typing and schedules a self-clear; going back to empty clears
// the mark at once.
func (s *ChatSession) InputChanged(ctx context.Context, text string) {
	nonEmpty := strings.TrimSpace(text) != ""

	s.mu.Lock()
	if s.closed || nonEmpty == s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = nonEmpty
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if nonEmpty {
		s.typingTimer = time.AfterFunc(s.cfg.TypingClear, s.clearTypingAfterIdle)
	}
	convID := s.conv.ID
	s.mu.Unlock()

	var at *time.Time
	if nonEmpty {
		now := s.deps.Clock()
		at = &now
	}
	if err := s.deps.Conversations.SetTyping(ctx, convID, s.user.ID, at); err != nil {
		log.WithError(err).WithField("conversation_id", convID).Warn("⚠️ Failed to write typing state")
	}
}

func (s *ChatSession) clearTypingAfterIdle() {
	s.mu.Lock()
	if s.closed || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.typingTimer = nil
	convID := s.conv.ID
	s.mu.Unlock()

	ctx, cancel := s.remoteContext()
	defer cancel()
	if err := s.deps.Conversations.SetTyping(ctx, convID, s.user.ID, nil); err != nil {
		log.WithError(err).WithField("conversation_id", convID).Warn("⚠️ Failed to clear typing state")
	}
}

// ==================== Sending & reply ====================

// SendMessage sends text with the current reply draft. On failure the
// original text goes back to the client in a send_failed event.
func (s *ChatSession) SendMessage(ctx context.Context, text string) {
	s.mu.Lock()
	reply := s.reply
	s.mu.Unlock()

	msg, err := s.stream.Send(ctx, text, reply)
	if err != nil {
		s.emit(model.WSEventSendFailed, model.SendFailedPayload{
			ConversationID: s.ConversationID(),
			Text:           text,
			Error:          apperrors.As(err).Message,
		})
		return
	}
	if msg == nil {
		return
	}

	s.mu.Lock()
	hadReply := s.reply != nil
	s.reply = nil
	s.mu.Unlock()
	if hadReply {
		s.emit(model.WSEventReplyDraft, model.ReplyDraftPayload{})
	}
	s.InputChanged(ctx, "")
}

// SetReply starts replying to a message of the open conversation
func (s *ChatSession) SetReply(ctx context.Context, messageID string) {
	msg := s.stream.Find(messageID)
	if msg == nil {
		var err error
		msg, err = s.deps.Messages.FindByID(ctx, s.ConversationID(), messageID)
		if err != nil {
			s.fail("set_reply", err)
			return
		}
	}

	reply := msg.Reply()
	s.mu.Lock()
	s.reply = reply
	s.mu.Unlock()
	s.emit(model.WSEventReplyDraft, model.ReplyDraftPayload{Reply: reply})
}

// CancelReply drops the reply draft
func (s *ChatSession) CancelReply() {
	s.mu.Lock()
	s.reply = nil
	s.mu.Unlock()
	s.emit(model.WSEventReplyDraft, model.ReplyDraftPayload{})
}

// Reply returns the current reply draft
func (s *ChatSession) Reply() *model.ReplyRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply
}

// MarkRead writes read receipts for the loaded window
func (s *ChatSession) MarkRead(ctx context.Context) {
	if _, err := s.stream.MarkAsRead(ctx); err != nil {
		s.fail("mark_read", err)
	}
}

// ==================== Edit, delete & selection ====================

// EditMessage replaces the text of one of the user's text messages
func (s *ChatSession) EditMessage(ctx context.Context, messageID, text string) {
	if _, err := s.deps.MessageSvc.Edit(ctx, s.current(), messageID, s.user.ID, text); err != nil {
		s.fail("edit_message", err)
	}
}

// DeleteMessages deletes messages for the user or for everyone
func (s *ChatSession) DeleteMessages(ctx context.Context, ids []string, mode model.DeleteMode) {
	if err := s.deps.MessageSvc.Delete(ctx, s.current(), ids, s.user.ID, mode); err != nil {
		s.fail("delete_messages", err)
	}
}

// SetSelectionMode enters or leaves multi-select; both clear the selection
func (s *ChatSession) SetSelectionMode(enabled bool) {
	s.mu.Lock()
	s.selecting = enabled
	s.selected = nil
	payload := s.selectionLocked()
	s.mu.Unlock()
	s.emit(model.WSEventSelection, payload)
}

// ToggleSelect adds or removes a message from the selection, entering
// selection mode first when needed
func (s *ChatSession) ToggleSelect(messageID string) {
	s.mu.Lock()
	s.selecting = true
	removed := false
	for i, id := range s.selected {
		if id == messageID {
			s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		s.selected = append(s.selected, messageID)
	}
	payload := s.selectionLocked()
	s.mu.Unlock()
	s.emit(model.WSEventSelection, payload)
}

// Selection returns the selection state
func (s *ChatSession) Selection() model.SelectionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

func (s *ChatSession) selectionLocked() model.SelectionPayload {
	return model.SelectionPayload{
		Enabled:    s.selecting,
		MessageIDs: append([]string{}, s.selected...),
	}
}

// BulkDelete deletes every selected message in one batch and leaves
// selection mode on success. The selection is kept when the delete fails.
func (s *ChatSession) BulkDelete(ctx context.Context, mode model.DeleteMode) {
	s.mu.Lock()
	ids := append([]string(nil), s.selected...)
	conv := s.conv
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	if err := s.deps.MessageSvc.Delete(ctx, conv, ids, s.user.ID, mode); err != nil {
		s.fail("bulk_delete", err)
		return
	}
	s.SetSelectionMode(false)
}

// ==================== Live location ====================

// StartLiveLocation starts sharing for duration. The initial fix, if any,
// is written with the share.
func (s *ChatSession) StartLiveLocation(ctx context.Context, duration time.Duration, permissionGranted bool, pos *model.Position) {
	share, err := s.deps.Live.Start(ctx, s.current(), s.user, duration, permissionGranted, pos)
	if err != nil {
		s.fail("start_live_location", err)
		return
	}

	filter := location.NewFilter(s.cfg.LocationInterval, s.cfg.LocationDistance)
	if pos != nil {
		first := *pos
		if first.At.IsZero() {
			first.At = s.deps.Clock()
		}
		filter.Accept(first)
	}

	s.mu.Lock()
	s.permission = true
	s.sharing = true
	s.validUntil = share.ValidUntil
	s.held = false
	s.filter = filter
	s.mu.Unlock()
	log.WithFields(log.Fields{"user_id": s.user.ID, "valid_until": share.ValidUntil}).Info("📍 Live location started")
	s.refreshShares(ctx)
}

// refreshShares re-reads the shares so the client sees the new local state
// without waiting for the next remote change
func (s *ChatSession) refreshShares(ctx context.Context) {
	shares, err := s.deps.Shares.List(ctx, s.ConversationID())
	s.onShares(shares, err)
}

// LocationUpdate offers a device fix to the watcher filter and writes it
// when accepted. Fixes are ignored while not sharing.
func (s *ChatSession) LocationUpdate(ctx context.Context, pos model.Position) {
	if pos.At.IsZero() {
		pos.At = s.deps.Clock()
	}

	s.mu.Lock()
	if s.expireLocked(s.deps.Clock()) {
		convID := s.conv.ID
		s.mu.Unlock()
		log.WithFields(log.Fields{"conversation_id": convID, "user_id": s.user.ID}).Info("📍 Live location expired")
		s.refreshShares(ctx)
		return
	}
	if !s.sharing || s.filter == nil || !s.filter.Accept(pos) {
		s.mu.Unlock()
		return
	}
	convID := s.conv.ID
	s.mu.Unlock()

	// Position writes are fire-and-forget; the next accepted fix retries
	if err := s.deps.Live.UpdatePosition(ctx, convID, s.user.ID, pos); err != nil {
		log.WithError(err).WithFields(log.Fields{"conversation_id": convID, "user_id": s.user.ID}).Warn("⚠️  Failed to write location fix")
	}
}

// expireLocked stops the local watcher once the share is past its end.
// Must be called with mu held.
func (s *ChatSession) expireLocked(now time.Time) bool {
	if !s.sharing || s.validUntil.IsZero() || now.Before(s.validUntil) {
		return false
	}
	s.sharing, s.filter = false, nil
	return true
}

// StopLiveLocation stops the local watcher, and the remote share when
// notifyRemote is set
func (s *ChatSession) StopLiveLocation(ctx context.Context, notifyRemote bool) {
	s.mu.Lock()
	s.sharing, s.filter = false, nil
	s.held = !notifyRemote
	convID := s.conv.ID
	s.mu.Unlock()

	if err := s.deps.Live.Stop(ctx, convID, s.user.ID, notifyRemote); err != nil {
		s.fail("stop_live_location", err)
		return
	}
	s.refreshShares(ctx)
}

// PermissionChanged records the device location permission. Losing it while
// sharing ends the share everywhere.
func (s *ChatSession) PermissionChanged(ctx context.Context, granted bool) {
	s.mu.Lock()
	s.permission = granted
	wasSharing := s.sharing
	s.mu.Unlock()

	if !granted && wasSharing {
		s.StopLiveLocation(ctx, true)
	}
}

// Sharing reports whether the local watcher is running
func (s *ChatSession) Sharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.deps.Clock())
	return s.sharing
}

// ==================== Voice recording ====================

// RecordingStart starts the elapsed-time ticker
func (s *ChatSession) RecordingStart() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.recorder.Start()
	}
}

// RecordingStop stops the ticker and reports the recorded duration
func (s *ChatSession) RecordingStop() {
	d, ok := s.recorder.Stop()
	if !ok {
		return
	}
	s.emit(model.WSEventRecorded, model.RecordingPayload{Seconds: int(d.Round(time.Second) / time.Second)})
}

// RecordingCancel discards the recording
func (s *ChatSession) RecordingCancel() {
	s.recorder.Cancel()
}

// ==================== Teardown ====================

// Close stops every listener, timer and ticker of the session. A pending
// typing mark is cleared; a running live share is left to the store so a
// later session can resume it.
func (s *ChatSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	wasTyping := s.typing
	s.typing = false
	s.sharing, s.filter = false, nil
	convID := s.conv.ID
	s.mu.Unlock()

	s.stream.Close()
	s.convWatch.Stop()
	s.liveWatch.Stop()
	s.recorder.Cancel()

	if wasTyping {
		ctx, cancel := s.remoteContext()
		defer cancel()
		if err := s.deps.Conversations.SetTyping(ctx, convID, s.user.ID, nil); err != nil {
			log.WithError(err).WithField("conversation_id", convID).Warn("⚠️ Failed to clear typing state")
		}
	}
	log.WithFields(log.Fields{"conversation_id": convID, "user_id": s.user.ID}).Debug("💬 Chat session closed")
}
