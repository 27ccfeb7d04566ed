package session_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateJoinsOnce(t *testing.T) {
	assert := require.New(t)

	platform := newPlatform()
	platform.joinDelay = 20 * time.Millisecond

	registry := session.NewRegistry(slog.Default(), platform)

	sessions := make(chan *session.Session, 50)
	wg := sync.WaitGroup{}
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			s, err := registry.GetOrCreate(context.Background(), "guild", "voice")
			assert.NoError(err)
			sessions <- s
		}()
	}
	wg.Wait()
	close(sessions)

	first := <-sessions
	for s := range sessions {
		assert.Same(first, s)
	}

	assert.Equal(int32(1), platform.joins.Load())
	assert.Equal(1, registry.Len())
	assert.Equal(1, platform.conn("guild").Subscribes())
}

func TestGetOrCreateJoinFailure(t *testing.T) {
	assert := require.New(t)

	platform := newPlatform()
	platform.joinErr = errors.New("missing permissions")

	registry := session.NewRegistry(slog.Default(), platform)

	_, err := registry.GetOrCreate(context.Background(), "guild", "voice")
	assert.ErrorContains(err, "missing permissions")
	assert.Equal(0, registry.Len())

	platform.joinErr = nil

	s, err := registry.GetOrCreate(context.Background(), "guild", "voice")
	assert.NoError(err)
	assert.Equal("guild", s.TenantID())
	assert.Equal(int32(2), platform.joins.Load())
}

func TestRemoveRejectsQueuedRequests(t *testing.T) {
	assert := require.New(t)

	platform := newPlatform()
	platform.holdPlays = true

	registry := session.NewRegistry(slog.Default(), platform)

	s, err := registry.GetOrCreate(context.Background(), "guild", "voice")
	assert.NoError(err)

	h1 := s.Queue().Enqueue("req1", playback.Stream(wav()))
	h2 := s.Queue().Enqueue("req2", playback.Stream(wav()))

	assert.True(registry.Remove("guild"))

	assert.ErrorIs(h1.Wait(context.Background()), playback.ErrSessionClosed)
	assert.ErrorIs(h2.Wait(context.Background()), playback.ErrSessionClosed)
	assert.True(platform.conn("guild").Destroyed())

	_, ok := registry.Get("guild")
	assert.False(ok)
	assert.False(registry.Remove("guild"))
}

func TestRegistryIndependentTenants(t *testing.T) {
	platform := newPlatform()
	registry := session.NewRegistry(slog.Default(), platform)

	a, err := registry.GetOrCreate(context.Background(), "a", "voice-a")
	require.NoError(t, err)
	b, err := registry.GetOrCreate(context.Background(), "b", "voice-b")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, registry.Len())

	registry.CloseAll()
	assert.Equal(t, 0, registry.Len())
	assert.True(t, platform.conn("a").Destroyed())
	assert.True(t, platform.conn("b").Destroyed())
}
