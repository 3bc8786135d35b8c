package redis

import (
	"context"
	"os"
	"testing"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsKey(t *testing.T) {
	assert.Equal(t, "tempo:settings:123", settingsKey("123"))
}

// Runs against a live server when TEMPO_TEST_REDIS holds its address.
func TestSettingsLoopRoundTrip(t *testing.T) {
	addr := os.Getenv("TEMPO_TEST_REDIS")
	if addr == "" {
		t.Skip("TEMPO_TEST_REDIS not set")
	}

	c := redislib.NewClient(&redislib.Options{Addr: addr})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	s := NewSettings(c)
	guild := "settings-test-guild"
	require.NoError(t, s.Forget(ctx, guild))

	on, err := s.Loop(ctx, guild)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, s.SetLoop(ctx, guild, true))
	on, err = s.Loop(ctx, guild)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.SetLoop(ctx, guild, false))
	on, err = s.Loop(ctx, guild)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, s.Forget(ctx, guild))
}
