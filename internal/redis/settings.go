package redis

import (
	"context"

	"github.com/cockroachdb/errors"
	redislib "github.com/redis/go-redis/v9"
)

const (
	settingsPrefix = "tempo:settings:"
	loopField      = "loop"
)

// Settings keeps per-guild playback flags in a redis hash so they survive
// restarts of the bot process.
type Settings struct {
	client redislib.Cmdable
}

func NewSettings(client redislib.Cmdable) *Settings {
	return &Settings{client: client}
}

func settingsKey(guildID string) string {
	return settingsPrefix + guildID
}

func (s *Settings) Loop(ctx context.Context, guildID string) (bool, error) {
	v, err := s.client.HGet(ctx, settingsKey(guildID), loopField).Result()
	if errors.Is(err, redislib.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read loop flag for guild %s", guildID)
	}
	return v == "1", nil
}

func (s *Settings) SetLoop(ctx context.Context, guildID string, on bool) error {
	key := settingsKey(guildID)
	var err error
	if on {
		err = s.client.HSet(ctx, key, loopField, "1").Err()
	} else {
		err = s.client.HDel(ctx, key, loopField).Err()
	}
	return errors.Wrapf(err, "write loop flag for guild %s", guildID)
}

// Forget drops every stored flag for a guild.
func (s *Settings) Forget(ctx context.Context, guildID string) error {
	return errors.Wrapf(s.client.Del(ctx, settingsKey(guildID)).Err(), "clear settings for guild %s", guildID)
}
