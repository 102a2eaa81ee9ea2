package syncer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/internal/service"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

const (
	DefaultPageSize    = 50
	DefaultLockRelease = 500 * time.Millisecond
)

// MessageView is the state a chat screen renders
type MessageView struct {
	ConversationID string
	Messages       []*model.Message // oldest first
	Loading        bool
	Err            error
}

// Payload converts the view to its WebSocket form
func (v MessageView) Payload() model.MessagesPayload {
	p := model.MessagesPayload{
		ConversationID: v.ConversationID,
		Messages:       v.Messages,
		Loading:        v.Loading,
	}
	if p.Messages == nil {
		p.Messages = []*model.Message{}
	}
	if v.Err != nil {
		p.Error = apperrors.As(v.Err).Message
	}
	return p
}

// MessageStream keeps the newest page of one conversation in sync for one
// user and sends on their behalf
type MessageStream struct {
	msgRepo     repository.MessageRepository
	messages    *service.MessageService
	pageSize    int
	lockRelease time.Duration
	onChange    func(MessageView)

	subMu    sync.Mutex // serializes Subscribe and Close
	listener *Listener

	mu      sync.Mutex
	gen     uint64
	view    MessageView
	conv    *model.Conversation
	user    *model.User
	sending bool
	release *time.Timer
	closed  bool
}

// NewMessageStream builds a stream. onChange receives every new view and may
// be nil.
func NewMessageStream(msgRepo repository.MessageRepository, messages *service.MessageService, pageSize int, lockRelease time.Duration, onChange func(MessageView)) *MessageStream {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if lockRelease <= 0 {
		lockRelease = DefaultLockRelease
	}
	if onChange == nil {
		onChange = func(MessageView) {}
	}
	return &MessageStream{
		msgRepo:     msgRepo,
		messages:    messages,
		pageSize:    pageSize,
		lockRelease: lockRelease,
		onChange:    onChange,
	}
}

// Subscribe replaces the current listener with one on conv. The previous
// listener is cancelled and has returned before the new one starts.
func (s *MessageStream) Subscribe(conv *model.Conversation, user *model.User) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	// Snapshots of the old listener are dropped from here on
	s.listener.Stop()

	s.mu.Lock()
	s.conv = conv.Clone()
	s.user = user
	s.view = MessageView{ConversationID: conv.ID, Loading: true}
	view := s.view
	s.mu.Unlock()
	s.onChange(view)

	convID, uid := conv.ID, user.ID
	s.listener = Listen("messages:"+convID, func(ctx context.Context) error {
		return s.msgRepo.Watch(ctx, convID, s.pageSize, func(msgs []*model.Message, err error) {
			s.apply(gen, uid, msgs, err)
		})
	})
}

func (s *MessageStream) apply(gen uint64, uid string, msgs []*model.Message, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.view.Err = err
	} else {
		s.view.Messages = service.VisibleWindow(msgs, uid)
		s.view.Err = nil
	}
	s.view.Loading = false
	view := s.view
	s.mu.Unlock()
	s.onChange(view)
}

// SetConversation refreshes the conversation used for sends and receipts
func (s *MessageStream) SetConversation(conv *model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv != nil && conv != nil && s.conv.ID == conv.ID {
		s.conv = conv.Clone()
	}
}

// Send sends text to the subscribed conversation. Blank text sends nothing.
// While a send is in flight,
// and for the lock-release delay after it, further sends are dropped and
// return a nil message. Duplicates caught by the send registry also return
// a nil message with a nil error.
func (s *MessageStream) Send(ctx context.Context, text string, replyTo *model.ReplyRef) (*model.Message, error) {
	s.mu.Lock()
	if s.closed || s.conv == nil {
		s.mu.Unlock()
		return nil, apperrors.BadRequest("No conversation open", nil)
	}
	// Blank text is a no-op and leaves the composer unlocked
	text = strings.TrimSpace(text)
	if text == "" {
		s.mu.Unlock()
		return nil, nil
	}
	if s.sending {
		s.mu.Unlock()
		return nil, nil
	}
	s.sending = true
	conv, user := s.conv, s.user
	s.mu.Unlock()

	msg, err := s.messages.SendText(ctx, conv, user.Sender(), text, replyTo)

	s.mu.Lock()
	if s.release != nil {
		s.release.Stop()
	}
	if s.closed {
		s.sending = false
	} else {
		s.release = time.AfterFunc(s.lockRelease, func() {
			s.mu.Lock()
			s.sending = false
			s.mu.Unlock()
		})
	}
	s.mu.Unlock()
	return msg, err
}

// MarkAsRead writes read receipts for the loaded window
func (s *MessageStream) MarkAsRead(ctx context.Context) (int, error) {
	s.mu.Lock()
	conv, user := s.conv, s.user
	loaded := append([]*model.Message(nil), s.view.Messages...)
	s.mu.Unlock()
	if conv == nil {
		return 0, nil
	}
	return s.messages.MarkAsRead(ctx, conv, user.ID, loaded)
}

// Find returns a loaded message by id
func (s *MessageStream) Find(id string) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.view.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Snapshot returns the current view
func (s *MessageStream) Snapshot() MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Close stops the listener and the lock-release timer. No view is delivered
// after Close returns.
func (s *MessageStream) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	s.closed = true
	if s.release != nil {
		s.release.Stop()
		s.release = nil
	}
	s.sending = false
	s.mu.Unlock()

	s.listener.Stop()
	s.listener = nil
}
