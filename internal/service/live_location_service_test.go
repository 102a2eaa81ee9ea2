package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocanhngo/tripzi/internal/model"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

func TestLiveLocationService_Start(t *testing.T) {
	f := newFixture(t)
	svc := NewLiveLocationService(f.store.LiveShares(), f.messages, f.clock.Now)
	ctx := context.Background()
	conv := f.direct(t)

	pos := &model.Position{Latitude: 10.77, Longitude: 106.70, Heading: 90}
	share, err := svc.Start(ctx, conv, alice, 15*time.Minute, true, pos)
	require.NoError(t, err)
	assert.True(t, share.IsActive)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), share.ValidUntil)

	stored, err := svc.Share(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10.77, stored.Latitude)
	assert.Equal(t, "Alice", stored.DisplayName)

	msgs, err := f.messages.Recent(ctx, conv, "bob", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageTypeSystem, msgs[0].Type())
	assert.Equal(t, "📍 Alice started sharing live location for 15 minutes", msgs[0].Preview())
}

func TestLiveLocationService_StartRequiresPermission(t *testing.T) {
	f := newFixture(t)
	svc := NewLiveLocationService(f.store.LiveShares(), f.messages, f.clock.Now)
	ctx := context.Background()
	conv := f.direct(t)

	_, err := svc.Start(ctx, conv, alice, time.Hour, false, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodePermissionDenied))

	_, err = svc.Start(ctx, conv, alice, 9*time.Hour, true, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	_, err = svc.Start(ctx, conv, carol, time.Hour, true, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	shares, err := f.store.LiveShares().List(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)
}

func TestLiveLocationService_ActiveSharesExpire(t *testing.T) {
	f := newFixture(t)
	svc := NewLiveLocationService(f.store.LiveShares(), f.messages, f.clock.Now)
	ctx := context.Background()
	conv := f.direct(t)

	_, err := svc.Start(ctx, conv, alice, 15*time.Minute, true, nil)
	require.NoError(t, err)
	_, err = svc.Start(ctx, conv, bob, time.Hour, true, nil)
	require.NoError(t, err)

	active, err := svc.ActiveShares(ctx, conv, "alice")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	f.clock.Advance(16 * time.Minute)
	active, err = svc.ActiveShares(ctx, conv, "alice")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].UserID)
}

func TestLiveLocationService_Stop(t *testing.T) {
	f := newFixture(t)
	svc := NewLiveLocationService(f.store.LiveShares(), f.messages, f.clock.Now)
	ctx := context.Background()
	conv := f.direct(t)

	_, err := svc.Start(ctx, conv, alice, time.Hour, true, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Stop(ctx, conv.ID, "alice", false))
	share, err := svc.Share(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, share.IsActive)

	require.NoError(t, svc.UpdatePosition(ctx, conv.ID, "alice", model.Position{Latitude: 16.05, Longitude: 108.2}))
	share, err = svc.Share(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 16.05, share.Latitude)

	require.NoError(t, svc.Stop(ctx, conv.ID, "alice", true))
	share, err = svc.Share(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, share.IsActive)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "15 minutes", formatDuration(15*time.Minute))
	assert.Equal(t, "1 minute", formatDuration(time.Minute))
	assert.Equal(t, "1 hour", formatDuration(time.Hour))
	assert.Equal(t, "8 hours", formatDuration(8*time.Hour))
	assert.Equal(t, "90 minutes", formatDuration(90*time.Minute))
}
