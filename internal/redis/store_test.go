package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestSyncClock_Due(t *testing.T) {
	_, client := newTestRedis(t)
	clock := NewSyncClock(client, 15*time.Minute)
	ctx := context.Background()
	pulled := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	due, err := clock.Due(ctx, pulled)
	require.NoError(t, err)
	assert.True(t, due, "never pulled")

	require.NoError(t, clock.MarkPulled(ctx, pulled))

	last, err := clock.LastPull(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(pulled))

	due, err = clock.Due(ctx, pulled.Add(14*time.Minute))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = clock.Due(ctx, pulled.Add(15*time.Minute))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestTokenStore(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewTokenStore(client)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}
	require.NoError(t, store.Save(ctx, tok))
	assert.Zero(t, mr.TTL("calendar:oauth_token"))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh", got.RefreshToken)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}
