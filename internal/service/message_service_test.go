package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

func TestMessageService_SendText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "  hello  ", nil)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, model.TextContent{Text: "hello"}, msg.Content)
	assert.Equal(t, model.MessageStatusSent, msg.Status)

	got := f.conv(t, conv.ID)
	assert.Equal(t, "hello", got.LastMessage.Text)
	assert.Equal(t, "alice", got.LastMessage.SenderID)
	assert.Equal(t, 1, got.UnreadCount["bob"])
	assert.Equal(t, 0, got.UnreadCount["alice"])

	events := f.hub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"bob"}, events[0].userIDs)
	assert.Equal(t, model.WSEventNewMessage, events[0].event.Type)

	assert.Eventually(t, func() bool { return len(f.push.Calls()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bob"}, f.push.Calls()[0])
}

func TestMessageService_SendTextIgnoresEmpty(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)

	msg, err := f.messages.SendText(context.Background(), conv, alice.Sender(), "   ", nil)
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Zero(t, f.msgs.Writes("Create"))
}

func TestMessageService_SendTextSuppressesDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	first, err := f.messages.SendText(ctx, conv, alice.Sender(), "on my way", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.messages.SendText(ctx, conv, alice.Sender(), "on my way", nil)
	assert.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, f.msgs.Writes("Create"))

	f.clock.Advance(2100 * time.Millisecond)
	third, err := f.messages.SendText(ctx, conv, alice.Sender(), "on my way", nil)
	require.NoError(t, err)
	assert.NotNil(t, third)
	assert.Equal(t, 2, f.msgs.Writes("Create"))
}

func TestMessageService_SendTextConcurrentDoubleTap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.messages.SendText(ctx, conv, alice.Sender(), "double tap", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := f.store.Messages().ListAll(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMessageService_SendTextReleasesKeyOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	f.store.FailNext("messages.Create", errors.New("unavailable"))
	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "retry me", nil)
	assert.Error(t, err)
	assert.Nil(t, msg)
	assert.Empty(t, f.hub.Events())

	msg, err = f.messages.SendText(ctx, conv, alice.Sender(), "retry me", nil)
	require.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestMessageService_SummaryFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	f.store.FailNext("conversations.ApplySummary", errors.New("unavailable"))
	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "still sent", nil)
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Len(t, f.hub.Events(), 1)
	assert.Nil(t, f.conv(t, conv.ID).LastMessage)
}

func TestMessageService_SendTextRejectsOutsider(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)

	_, err := f.messages.SendText(context.Background(), conv, carol.Sender(), "hi", nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestMessageService_PushSkipsMutedAndSystem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)
	require.NoError(t, f.chats.SetMuted(ctx, conv.ID, "bob", true))
	conv = f.conv(t, conv.ID)

	_, err := f.messages.SendText(ctx, conv, alice.Sender(), "quiet", nil)
	require.NoError(t, err)
	_, err = f.messages.SendSystem(ctx, conv, alice.Sender(), "📍 Alice started sharing")
	require.NoError(t, err)

	assert.Never(t, func() bool { return len(f.push.Calls()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, f.hub.Events(), 2)
}

func TestMessageService_SendContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendLocation(ctx, conv, bob.Sender(), model.GeoPoint{Latitude: 0, Longitude: 0})
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeLocation, msg.Type())

	_, err = f.messages.SendLocation(ctx, conv, bob.Sender(), model.GeoPoint{Latitude: 91})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	_, err = f.messages.SendTripShare(ctx, conv, bob.Sender(), model.TripRef{})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	msg, err = f.messages.SendTripShare(ctx, conv, bob.Sender(), model.TripRef{TripID: "t1", Title: "Hoi An"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeTripShare, msg.Type())
	assert.Equal(t, msg.Preview(), f.conv(t, conv.ID).LastMessage.Text)
}

func TestMessageService_MarkAsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	for i := 0; i < 3; i++ {
		_, err := f.messages.SendText(ctx, conv, alice.Sender(), fmt.Sprintf("msg %d", i), nil)
		require.NoError(t, err)
	}
	_, err := f.messages.SendText(ctx, conv, bob.Sender(), "mine", nil)
	require.NoError(t, err)

	loaded, err := f.messages.Recent(ctx, conv, "bob", 50)
	require.NoError(t, err)
	require.Len(t, loaded, 4)

	n, err := f.messages.MarkAsRead(ctx, conv, "bob", loaded)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, f.conv(t, conv.ID).UnreadCount["bob"])

	for _, m := range loaded {
		got := f.message(t, conv.ID, m.ID)
		if m.SenderID == "alice" {
			assert.True(t, got.IsReadBy("bob"))
			assert.Equal(t, model.MessageStatusRead, got.Status)
		} else {
			assert.False(t, got.IsReadBy("bob"))
		}
	}

	loaded, err = f.messages.Recent(ctx, conv, "bob", 50)
	require.NoError(t, err)
	n, err = f.messages.MarkAsRead(ctx, conv, "bob", loaded)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.msgs.Writes("MarkRead"))
}

func TestMessageService_MarkDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "ping", nil)
	require.NoError(t, err)

	require.NoError(t, f.messages.MarkDelivered(ctx, conv, msg.ID, "alice"))
	assert.Equal(t, model.MessageStatusSent, f.message(t, conv.ID, msg.ID).Status)

	require.NoError(t, f.messages.MarkDelivered(ctx, conv, msg.ID, "bob"))
	got := f.message(t, conv.ID, msg.ID)
	assert.Equal(t, model.MessageStatusDelivered, got.Status)
	assert.True(t, got.IsDeliveredTo("bob"))
}

func TestMessageService_Edit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "helo", nil)
	require.NoError(t, err)

	edited, err := f.messages.Edit(ctx, conv, msg.ID, "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, model.TextContent{Text: "hello"}, edited.Content)
	assert.NotNil(t, edited.EditedAt)

	got := f.message(t, conv.ID, msg.ID)
	assert.Equal(t, model.TextContent{Text: "hello"}, got.Content)
	assert.NotNil(t, got.EditedAt)
}

func TestMessageService_EditRejectionsWriteNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	text, err := f.messages.SendText(ctx, conv, alice.Sender(), "original", nil)
	require.NoError(t, err)
	loc, err := f.messages.SendLocation(ctx, conv, alice.Sender(), model.GeoPoint{Latitude: 11.94, Longitude: 108.45})
	require.NoError(t, err)
	gone, err := f.messages.SendText(ctx, conv, alice.Sender(), "to delete", nil)
	require.NoError(t, err)
	require.NoError(t, f.messages.Delete(ctx, conv, []string{gone.ID}, "alice", model.DeleteForEveryone))

	tests := []struct {
		name  string
		id    string
		actor string
		text  string
		code  string
	}{
		{"not the sender", text.ID, "bob", "hijack", apperrors.CodeForbidden},
		{"not a text message", loc.ID, "alice", "moved", apperrors.CodeBadRequest},
		{"tombstoned", gone.ID, "alice", "undo", apperrors.CodeBadRequest},
		{"empty text", text.ID, "alice", "  ", apperrors.CodeBadRequest},
		{"missing message", "nope", "alice", "x", apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.Edit(ctx, conv, tt.id, tt.actor, tt.text)
			assert.True(t, apperrors.Is(err, tt.code), "got %v", err)
		})
	}
	assert.Zero(t, f.msgs.Writes("UpdateText"))
	assert.Equal(t, model.TextContent{Text: "original"}, f.message(t, conv.ID, text.ID).Content)
}

func TestDeleteOptionsAt(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := &model.Message{ID: "m1", SenderID: "alice", CreatedAt: created}

	opts := DeleteOptionsAt(msg, "alice", created.Add(59*time.Minute), DefaultDeleteWindow)
	assert.True(t, opts.ForMe)
	assert.True(t, opts.ForEveryone)
	require.NotNil(t, opts.ExpiresAt)
	assert.Equal(t, created.Add(time.Hour), *opts.ExpiresAt)

	opts = DeleteOptionsAt(msg, "alice", created.Add(61*time.Minute), DefaultDeleteWindow)
	assert.True(t, opts.ForMe)
	assert.False(t, opts.ForEveryone)
	assert.Nil(t, opts.ExpiresAt)

	opts = DeleteOptionsAt(msg, "alice", created.Add(time.Hour), DefaultDeleteWindow)
	assert.False(t, opts.ForEveryone)

	opts = DeleteOptionsAt(msg, "bob", created.Add(time.Minute), DefaultDeleteWindow)
	assert.True(t, opts.ForMe)
	assert.False(t, opts.ForEveryone)

	pending := &model.Message{ID: "m2", SenderID: "alice"}
	assert.True(t, DeleteOptionsAt(pending, "alice", created, DefaultDeleteWindow).ForEveryone)

	now := created.Add(time.Minute)
	tomb := &model.Message{ID: "m3", SenderID: "alice", CreatedAt: created, DeletedForEveryoneAt: &now}
	assert.False(t, DeleteOptionsAt(tomb, "alice", now, DefaultDeleteWindow).ForEveryone)
}

func TestMessageService_DeleteForEveryoneWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "oops", nil)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	err = f.messages.Delete(ctx, conv, []string{msg.ID}, "alice", model.DeleteForEveryone)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	assert.Zero(t, f.msgs.Writes("Tombstone"))
	assert.False(t, f.message(t, conv.ID, msg.ID).IsTombstoned())
}

func TestMessageService_DeleteForEveryone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendText(ctx, conv, alice.Sender(), "secret", nil)
	require.NoError(t, err)
	f.clock.Advance(59 * time.Minute)

	err = f.messages.Delete(ctx, conv, []string{msg.ID}, "bob", model.DeleteForEveryone)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	require.NoError(t, f.messages.Delete(ctx, conv, []string{msg.ID}, "alice", model.DeleteForEveryone))
	got := f.message(t, conv.ID, msg.ID)
	assert.True(t, got.IsTombstoned())
	assert.Equal(t, model.DeletedPlaceholder, got.Preview())
}

func TestMessageService_BulkDeleteIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	own, err := f.messages.SendText(ctx, conv, alice.Sender(), "mine", nil)
	require.NoError(t, err)
	theirs, err := f.messages.SendText(ctx, conv, bob.Sender(), "theirs", nil)
	require.NoError(t, err)

	err = f.messages.Delete(ctx, conv, []string{own.ID, theirs.ID}, "alice", model.DeleteForEveryone)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	assert.False(t, f.message(t, conv.ID, own.ID).IsTombstoned())

	err = f.messages.Delete(ctx, conv, []string{own.ID, "missing"}, "alice", model.DeleteForMe)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	assert.Zero(t, f.msgs.Writes("DeleteFor"))

	require.NoError(t, f.messages.Delete(ctx, conv, []string{own.ID, theirs.ID, own.ID}, "alice", model.DeleteForMe))
	assert.Equal(t, 1, f.msgs.Writes("DeleteFor"))
	assert.False(t, f.message(t, conv.ID, own.ID).VisibleTo("alice"))
	assert.False(t, f.message(t, conv.ID, theirs.ID).VisibleTo("alice"))
	assert.True(t, f.message(t, conv.ID, theirs.ID).VisibleTo("bob"))
}

func TestMessageService_DeleteRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	err := f.messages.Delete(ctx, conv, nil, "alice", model.DeleteForMe)
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	ids := make([]string, repository.MaxBatchWrites+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%d", i)
	}
	err = f.messages.Delete(ctx, conv, ids, "alice", model.DeleteForMe)
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	err = f.messages.Delete(ctx, conv, []string{"m1"}, "alice", model.DeleteMode("shred"))
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

func TestMessageService_ClearChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.messages.SendText(ctx, conv, bob.Sender(), text, nil)
		require.NoError(t, err)
	}

	n, err := f.messages.ClearChat(ctx, conv, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, f.conv(t, conv.ID).UnreadCount["alice"])

	mine, err := f.messages.Recent(ctx, conv, "alice", 50)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := f.messages.Recent(ctx, conv, "bob", 50)
	require.NoError(t, err)
	assert.Len(t, theirs, 3)

	n, err = f.messages.ClearChat(ctx, conv, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMessageService_RecentIsOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	for i := 0; i < 5; i++ {
		_, err := f.messages.SendText(ctx, conv, alice.Sender(), fmt.Sprintf("n%d", i), nil)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	msgs, err := f.messages.Recent(ctx, conv, "bob", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "n2", msgs[0].Preview())
	assert.Equal(t, "n4", msgs[2].Preview())
}

func TestMessageService_FindHidesDeletedForMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.direct(t)

	msg, err := f.messages.SendText(ctx, conv, bob.Sender(), "bonjour", nil)
	require.NoError(t, err)

	found, err := f.messages.Find(ctx, conv, msg.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", found.Preview())

	require.NoError(t, f.messages.Delete(ctx, conv, []string{msg.ID}, "alice", model.DeleteForMe))
	_, err = f.messages.Find(ctx, conv, msg.ID, "alice")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = f.messages.Find(ctx, conv, msg.ID, "carol")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}
