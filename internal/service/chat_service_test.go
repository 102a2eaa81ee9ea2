package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

func TestChatService_GetOrCreateDirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, created, err := f.chats.GetOrCreateDirect(ctx, alice, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.DirectConversationID("alice", "bob"), conv.ID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, conv.UnreadCount)
	assert.Equal(t, "Bob", conv.ParticipantDetails["bob"].DisplayName)

	again, created, err := f.chats.GetOrCreateDirect(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
}

func TestChatService_GetOrCreateDirectConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			me, other := alice, bob.ID
			if i%2 == 1 {
				me, other = bob, alice.ID
			}
			conv, _, err := f.chats.GetOrCreateDirect(ctx, me, other)
			assert.NoError(t, err)
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	convs, err := f.chats.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	for _, id := range ids {
		assert.Equal(t, convs[0].ID, id)
	}
}

// gatedConversations holds FindDirect until the gate opens
type gatedConversations struct {
	repository.ConversationRepository
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedConversations) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.ConversationRepository.FindDirect(ctx, userA, userB)
}

func TestChatService_GetOrCreateDirectSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	gated := &gatedConversations{
		ConversationRepository: f.store.Conversations(),
		entered:                make(chan struct{}),
		gate:                   make(chan struct{}),
	}
	chats := NewChatService(gated, newFakeUsers(alice, bob))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := chats.GetOrCreateDirect(firstCtx, alice, bob.ID)
		firstErr <- err
	}()
	<-gated.entered

	type result struct {
		conv *model.Conversation
		err  error
	}
	second := make(chan result, 1)
	go func() {
		conv, _, err := chats.GetOrCreateDirect(context.Background(), bob, alice.ID)
		second <- result{conv, err}
	}()

	// Let the second caller join the in-flight call
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	assert.Error(t, <-firstErr)
	close(gated.gate)

	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, model.DirectConversationID("alice", "bob"), r.conv.ID)
}

func TestChatService_GetOrCreateDirectReusesLegacy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy, err := f.chats.CreateDirect(ctx, alice, bob.ID)
	require.NoError(t, err)

	conv, created, err := f.chats.GetOrCreateDirect(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, legacy.ID, conv.ID)
}

func TestChatService_GetOrCreateDirectRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.chats.GetOrCreateDirect(ctx, alice, alice.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	_, _, err = f.chats.GetOrCreateDirect(ctx, alice, "ghost")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestChatService_Groups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.chats.CreateGroup(ctx, alice, model.CreateGroupRequest{
		Name:      " Da Lat trip ",
		MemberIDs: []string{"bob", "carol", "bob", "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConversationTypeGroup, group.Type)
	assert.Equal(t, "Da Lat trip", group.GroupName)
	assert.Len(t, group.Participants, 3)
	assert.True(t, group.IsAdmin("alice"))
	assert.False(t, group.IsAdmin("bob"))

	_, err = f.chats.CreateGroup(ctx, alice, model.CreateGroupRequest{Name: "x", MemberIDs: []string{"ghost"}})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	err = f.chats.DeleteGroup(ctx, group.ID, "bob")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	err = f.chats.DeleteGroup(ctx, group.ID, "dave")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	require.NoError(t, f.chats.DeleteGroup(ctx, group.ID, "alice"))
	_, err = f.chats.Get(ctx, group.ID, "alice")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestChatService_DeleteGroupRejectsDirect(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)

	err := f.chats.DeleteGroup(context.Background(), conv.ID, "alice")
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

func TestChatService_Flags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	require.NoError(t, f.chats.SetMuted(ctx, conv.ID, "bob", true))
	require.NoError(t, f.chats.SetPinned(ctx, conv.ID, "alice", true))

	got := f.conv(t, conv.ID)
	assert.True(t, got.IsMutedBy("bob"))
	assert.True(t, got.IsPinnedBy("alice"))

	err := f.chats.SetMuted(ctx, conv.ID, "carol", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}
