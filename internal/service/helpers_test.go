package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quocanhngo/tripzi/internal/dedup"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/internal/repository/memstore"
	"github.com/quocanhngo/tripzi/pkg/notification"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*model.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.NotFound("User", nil)
	}
	out := *u
	return &out, nil
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

type sentEvent struct {
	userIDs []string
	event   *model.WSEvent
}

type fakeHub struct {
	mu     sync.Mutex
	events []sentEvent
}

func (h *fakeHub) SendToUsers(userIDs []string, event *model.WSEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{userIDs: append([]string(nil), userIDs...), event: event})
}

func (h *fakeHub) Events() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentEvent(nil), h.events...)
}

type fakePush struct {
	mu    sync.Mutex
	calls [][]string
	last  notification.Notification
}

func (p *fakePush) Notify(_ context.Context, userIDs []string, n notification.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, userIDs)
	p.last = n
	return nil
}

func (p *fakePush) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.calls...)
}

// countingMessages records which writes reach the store
type countingMessages struct {
	repository.MessageRepository
	mu     sync.Mutex
	writes map[string]int
}

func (c *countingMessages) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes == nil {
		c.writes = map[string]int{}
	}
	c.writes[op]++
}

func (c *countingMessages) Writes(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[op]
}

func (c *countingMessages) Create(ctx context.Context, msg *model.Message) error {
	c.count("Create")
	return c.MessageRepository.Create(ctx, msg)
}

func (c *countingMessages) UpdateText(ctx context.Context, conversationID, messageID, text string) error {
	c.count("UpdateText")
	return c.MessageRepository.UpdateText(ctx, conversationID, messageID, text)
}

func (c *countingMessages) Tombstone(ctx context.Context, conversationID string, ids []string) error {
	c.count("Tombstone")
	return c.MessageRepository.Tombstone(ctx, conversationID, ids)
}

func (c *countingMessages) DeleteFor(ctx context.Context, conversationID string, ids []string, userID string) error {
	c.count("DeleteFor")
	return c.MessageRepository.DeleteFor(ctx, conversationID, ids, userID)
}

func (c *countingMessages) MarkRead(ctx context.Context, conversationID string, ids []string, userID string) error {
	c.count("MarkRead")
	return c.MessageRepository.MarkRead(ctx, conversationID, ids, userID)
}

var (
	alice = &model.User{ID: "alice", DisplayName: "Alice", PhotoURL: "https://img/alice.png"}
	bob   = &model.User{ID: "bob", DisplayName: "Bob"}
	carol = &model.User{ID: "carol", DisplayName: "Carol"}
)

type fixture struct {
	store    *memstore.Store
	clock    *testClock
	msgs     *countingMessages
	hub      *fakeHub
	push     *fakePush
	registry *dedup.MemoryRegistry
	chats    *ChatService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	store := memstore.New(clock.Now)
	f := &fixture{
		store:    store,
		clock:    clock,
		msgs:     &countingMessages{MessageRepository: store.Messages()},
		hub:      &fakeHub{},
		push:     &fakePush{},
		registry: dedup.NewMemoryRegistry(dedup.DefaultWindow, clock.Now),
	}
	f.chats = NewChatService(store.Conversations(), newFakeUsers(alice, bob, carol))
	f.messages = NewMessageService(store.Conversations(), f.msgs, f.registry, f.hub, f.push, clock.Now, DefaultDeleteWindow)
	return f
}

func (f *fixture) direct(t *testing.T) *model.Conversation {
	t.Helper()
	conv, _, err := f.chats.GetOrCreateDirect(context.Background(), alice, bob.ID)
	require.NoError(t, err)
	return conv
}

func (f *fixture) conv(t *testing.T, id string) *model.Conversation {
	t.Helper()
	conv, err := f.store.Conversations().FindByID(context.Background(), id)
	require.NoError(t, err)
	return conv
}

func (f *fixture) message(t *testing.T, convID, id string) *model.Message {
	t.Helper()
	msg, err := f.store.Messages().FindByID(context.Background(), convID, id)
	require.NoError(t, err)
	return msg
}
