package redis

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	redislib "github.com/redis/go-redis/v9"

	"github.com/hxnx/tempo/config"
)

var (
	client *redislib.Client
	once   sync.Once
)

const (
	pingAttempts = 5
	pingTimeout  = 3 * time.Second
)

// Init connects the shared client and pings it with exponential backoff.
// Subsequent calls return the same client.
func Init(cfg *config.RedisConfig) (*redislib.Client, error) {
	var initErr error

	once.Do(func() {
		client = redislib.NewClient(&redislib.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		backoff := 200 * time.Millisecond
		for attempt := 1; attempt <= pingAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			err := client.Ping(ctx).Err()
			cancel()

			if err == nil {
				initErr = nil
				return
			}

			initErr = errors.Wrapf(err, "ping %s (attempt %d/%d)", cfg.Addr(), attempt, pingAttempts)
			if attempt < pingAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}

		_ = client.Close()
		client = nil
	})

	if client == nil && initErr == nil {
		return nil, errors.New("redis client not initialized")
	}

	return client, initErr
}

func Client() *redislib.Client {
	return client
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
