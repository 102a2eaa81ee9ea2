package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return New(clock.Now), clock
}

func directConv(a, b string) *model.Conversation {
	conv := model.NewConversation(model.ConversationTypeDirect, map[string]model.ParticipantDetail{
		a: {DisplayName: a},
		b: {DisplayName: b},
	})
	conv.ID = model.DirectConversationID(a, b)
	return conv
}

func TestConversations_CreateIfAbsent(t *testing.T) {
	s, _ := newStore()
	repo := s.Conversations()
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, directConv("alice", "bob"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, directConv("bob", "alice"))
	require.NoError(t, err)
	assert.False(t, created)

	convs, err := repo.ListByParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestConversations_FindDirectFindsLegacyIDs(t *testing.T) {
	s, _ := newStore()
	repo := s.Conversations()
	ctx := context.Background()

	legacy := directConv("alice", "bob")
	require.NoError(t, repo.Create(ctx, legacy))
	assert.NotEqual(t, model.DirectConversationID("alice", "bob"), legacy.ID)

	found, err := repo.FindDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, found.ID)

	_, err = repo.FindDirect(ctx, "alice", "carol")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestConversations_ApplySummary(t *testing.T) {
	s, clock := newStore()
	repo := s.Conversations()
	ctx := context.Background()

	conv := directConv("alice", "bob")
	_, err := repo.CreateIfAbsent(ctx, conv)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	summary := repository.Summary{
		LastMessage: model.LastMessage{Text: "hi", SenderID: "alice", SenderName: "Alice", Type: model.MessageTypeText},
		SenderID:    "alice",
		Recipients:  []string{"bob"},
	}
	require.NoError(t, repo.ApplySummary(ctx, conv.ID, summary))
	require.NoError(t, repo.ApplySummary(ctx, conv.ID, summary))

	got, err := repo.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.LastMessage.Text)
	assert.Equal(t, clock.Now(), got.LastMessage.Timestamp)
	assert.Equal(t, clock.Now(), got.UpdatedAt)
	assert.Equal(t, 0, got.UnreadCount["alice"])
	assert.Equal(t, 2, got.UnreadCount["bob"])

	require.NoError(t, repo.ResetUnread(ctx, conv.ID, "bob"))
	got, _ = repo.FindByID(ctx, conv.ID)
	assert.Equal(t, 0, got.UnreadCount["bob"])
}

func TestConversations_MemberFlags(t *testing.T) {
	s, _ := newStore()
	repo := s.Conversations()
	ctx := context.Background()
	conv := directConv("alice", "bob")
	_, _ = repo.CreateIfAbsent(ctx, conv)

	require.NoError(t, repo.SetMemberFlag(ctx, conv.ID, repository.FieldMutedBy, "alice", true))
	require.NoError(t, repo.SetMemberFlag(ctx, conv.ID, repository.FieldMutedBy, "alice", true))
	require.NoError(t, repo.SetMemberFlag(ctx, conv.ID, repository.FieldPinnedBy, "bob", true))

	got, _ := repo.FindByID(ctx, conv.ID)
	assert.Equal(t, []string{"alice"}, got.MutedBy)
	assert.True(t, got.IsPinnedBy("bob"))

	require.NoError(t, repo.SetMemberFlag(ctx, conv.ID, repository.FieldMutedBy, "alice", false))
	got, _ = repo.FindByID(ctx, conv.ID)
	assert.Empty(t, got.MutedBy)

	err := repo.SetMemberFlag(ctx, conv.ID, "archivedBy", "alice", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

func TestConversations_ListOrderedByActivity(t *testing.T) {
	s, clock := newStore()
	repo := s.Conversations()
	ctx := context.Background()

	first := directConv("alice", "bob")
	second := directConv("alice", "carol")
	_, _ = repo.CreateIfAbsent(ctx, first)
	clock.Advance(time.Second)
	_, _ = repo.CreateIfAbsent(ctx, second)

	convs, _ := repo.ListByParticipant(ctx, "alice")
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID)

	clock.Advance(time.Second)
	require.NoError(t, repo.ApplySummary(ctx, first.ID, repository.Summary{SenderID: "bob"}))
	convs, _ = repo.ListByParticipant(ctx, "alice")
	assert.Equal(t, first.ID, convs[0].ID)
}

func TestMessages_WatchDeliversNewestWindow(t *testing.T) {
	s, clock := newStore()
	repo := s.Messages()
	ctx, cancel := context.WithCancel(context.Background())

	for _, text := range []string{"one", "two", "three"} {
		clock.Advance(time.Second)
		require.NoError(t, repo.Create(ctx, model.NewMessage("c1", model.Sender{ID: "alice"}, model.TextContent{Text: text}, nil)))
	}

	snaps := make(chan []*model.Message, 4)
	done := make(chan error, 1)
	go func() {
		done <- repo.Watch(ctx, "c1", 2, func(msgs []*model.Message, err error) {
			assert.NoError(t, err)
			snaps <- msgs
		})
	}()

	initial := <-snaps
	require.Len(t, initial, 2)
	assert.Equal(t, "three", initial[0].Preview())
	assert.Equal(t, "two", initial[1].Preview())

	clock.Advance(time.Second)
	require.NoError(t, repo.Create(ctx, model.NewMessage("c1", model.Sender{ID: "bob"}, model.TextContent{Text: "four"}, nil)))
	next := <-snaps
	assert.Equal(t, "four", next[0].Preview())

	cancel()
	assert.NoError(t, <-done)
	assert.Eventually(t, func() bool { return s.Listeners() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMessages_BatchIsAtomic(t *testing.T) {
	s, _ := newStore()
	repo := s.Messages()
	ctx := context.Background()

	msg := model.NewMessage("c1", model.Sender{ID: "alice"}, model.TextContent{Text: "hello"}, nil)
	require.NoError(t, repo.Create(ctx, msg))

	err := repo.DeleteFor(ctx, "c1", []string{msg.ID, "missing"}, "bob")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	got, _ := repo.FindByID(ctx, "c1", msg.ID)
	assert.True(t, got.VisibleTo("bob"))
}

func TestMessages_TombstoneClearsContent(t *testing.T) {
	s, _ := newStore()
	repo := s.Messages()
	ctx := context.Background()

	msg := model.NewMessage("c1", model.Sender{ID: "alice"}, model.ImageContent{URL: "https://cdn/x.jpg", Caption: "beach"}, nil)
	require.NoError(t, repo.Create(ctx, msg))
	require.NoError(t, repo.Tombstone(ctx, "c1", []string{msg.ID}))

	got, _ := repo.FindByID(ctx, "c1", msg.ID)
	assert.True(t, got.IsTombstoned())
	assert.Equal(t, model.MessageTypeImage, got.Type())
	assert.Equal(t, model.ImageContent{}, got.Content)
	assert.Equal(t, model.DeletedPlaceholder, got.Preview())
}

func TestMessages_ReceiptsAndEdit(t *testing.T) {
	s, _ := newStore()
	repo := s.Messages()
	ctx := context.Background()

	msg := model.NewMessage("c1", model.Sender{ID: "alice"}, model.TextContent{Text: "helo"}, nil)
	require.NoError(t, repo.Create(ctx, msg))

	require.NoError(t, repo.MarkDelivered(ctx, "c1", msg.ID, "bob"))
	got, _ := repo.FindByID(ctx, "c1", msg.ID)
	assert.Equal(t, model.MessageStatusDelivered, got.Status)
	assert.True(t, got.IsDeliveredTo("bob"))

	require.NoError(t, repo.MarkRead(ctx, "c1", []string{msg.ID}, "bob"))
	require.NoError(t, repo.MarkDelivered(ctx, "c1", msg.ID, "bob"))
	got, _ = repo.FindByID(ctx, "c1", msg.ID)
	assert.Equal(t, model.MessageStatusRead, got.Status)
	assert.True(t, got.IsReadBy("bob"))
	assert.Len(t, got.DeliveredTo, 1)

	require.NoError(t, repo.UpdateText(ctx, "c1", msg.ID, "hello"))
	got, _ = repo.FindByID(ctx, "c1", msg.ID)
	assert.Equal(t, model.TextContent{Text: "hello"}, got.Content)
	assert.NotNil(t, got.EditedAt)
	assert.True(t, got.IsReadBy("bob"))
}

func TestStore_FailNextAndBreakListeners(t *testing.T) {
	s, _ := newStore()
	repo := s.Messages()
	ctx := context.Background()
	boom := errors.New("unavailable")

	s.FailNext("messages.Create", boom)
	err := repo.Create(ctx, model.NewMessage("c1", model.Sender{ID: "alice"}, model.TextContent{Text: "x"}, nil))
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, repo.Create(ctx, model.NewMessage("c1", model.Sender{ID: "alice"}, model.TextContent{Text: "x"}, nil)))

	errs := make(chan error, 2)
	done := make(chan error, 1)
	go func() {
		done <- repo.Watch(ctx, "c1", 50, func(_ []*model.Message, err error) { errs <- err })
	}()
	assert.NoError(t, <-errs)

	s.BreakListeners(boom)
	assert.ErrorIs(t, <-errs, boom)
	assert.ErrorIs(t, <-done, boom)
}

func TestLiveShares_Lifecycle(t *testing.T) {
	s, clock := newStore()
	repo := s.LiveShares()
	ctx := context.Background()

	err := repo.UpdatePosition(ctx, "c1", "alice", model.Position{Latitude: 1})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	require.NoError(t, repo.Upsert(ctx, "c1", &model.LiveShare{
		UserID:     "alice",
		IsActive:   true,
		ValidUntil: clock.Now().Add(15 * time.Minute),
	}))
	require.NoError(t, repo.UpdatePosition(ctx, "c1", "alice", model.Position{Latitude: 10.77, Longitude: 106.7}))

	share, err := repo.Get(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 10.77, share.Latitude)
	assert.True(t, share.IsActiveAt(clock.Now()))

	require.NoError(t, repo.Deactivate(ctx, "c1", "alice"))
	shares, _ := repo.List(ctx, "c1")
	require.Len(t, shares, 1)
	assert.False(t, shares[0].IsActive)
}
