package syncer

import (
	"context"
	"sync"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/internal/service"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// ChatListView is the user's conversation list, latest activity first
type ChatListView struct {
	Conversations []*model.Conversation
	Loading       bool
	Err           error
}

// Payload converts the view to its WebSocket form
func (v ChatListView) Payload() model.ChatsPayload {
	p := model.ChatsPayload{Conversations: v.Conversations, Loading: v.Loading}
	if p.Conversations == nil {
		p.Conversations = []*model.Conversation{}
	}
	if v.Err != nil {
		p.Error = apperrors.As(v.Err).Message
	}
	return p
}

// ChatList keeps a user's conversation list in sync
type ChatList struct {
	convRepo repository.ConversationRepository
	chats    *service.ChatService
	onChange func(ChatListView)

	subMu    sync.Mutex
	listener *Listener

	mu     sync.Mutex
	gen    uint64
	user   *model.User
	view   ChatListView
	closed bool
}

func NewChatList(convRepo repository.ConversationRepository, chats *service.ChatService, onChange func(ChatListView)) *ChatList {
	if onChange == nil {
		onChange = func(ChatListView) {}
	}
	return &ChatList{convRepo: convRepo, chats: chats, onChange: onChange}
}

// Subscribe starts (or restarts) the live list of user's conversations
func (l *ChatList) Subscribe(user *model.User) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.listener.Stop()

	l.mu.Lock()
	l.user = user
	l.view = ChatListView{Loading: true}
	view := l.view
	l.mu.Unlock()
	l.onChange(view)

	uid := user.ID
	l.listener = Listen("chats:"+uid, func(ctx context.Context) error {
		return l.convRepo.WatchByParticipant(ctx, uid, func(convs []*model.Conversation, err error) {
			l.apply(gen, convs, err)
		})
	})
}

func (l *ChatList) apply(gen uint64, convs []*model.Conversation, err error) {
	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return
	}
	if err != nil {
		l.view.Err = err
	} else {
		l.view.Conversations = convs
		l.view.Err = nil
	}
	l.view.Loading = false
	view := l.view
	l.mu.Unlock()
	l.onChange(view)
}

// GetOrCreateDirect answers from the loaded list when the direct
// conversation is already there, and asks the chat service otherwise
func (l *ChatList) GetOrCreateDirect(ctx context.Context, otherID string) (*model.Conversation, bool, error) {
	l.mu.Lock()
	user := l.user
	var found *model.Conversation
	if user != nil && otherID != "" && otherID != user.ID {
		for _, c := range l.view.Conversations {
			if c.IsDirectBetween(user.ID, otherID) {
				found = c.Clone()
				break
			}
		}
	}
	l.mu.Unlock()

	if user == nil {
		return nil, false, apperrors.BadRequest("Chat list is not subscribed", nil)
	}
	if found != nil {
		return found, false, nil
	}
	return l.chats.GetOrCreateDirect(ctx, user, otherID)
}

// Snapshot returns the current view
func (l *ChatList) Snapshot() ChatListView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view
}

// Close stops the listener; no view is delivered after Close returns
func (l *ChatList) Close() {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.listener.Stop()
	l.listener = nil
}
