package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "lottery:lock:"

const releaseTimeout = 5 * time.Second

// Deletes the key only while it still holds the caller's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a Locker shared by every process using the same Redis database.
type Redis struct {
	client redisClient
	log    zerolog.Logger
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// NewRedis creates a Locker on top of client.
func NewRedis(client *redis.Client, log zerolog.Logger) *Redis {
	return newRedis(client, log)
}

func newRedis(client redisClient, log zerolog.Logger) *Redis {
	return &Redis{client: client, log: log.With().Str("component", "lock").Logger()}
}

// TryLock sets key with a random token if it is absent.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	full := keyPrefix + key

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := r.client.Eval(rctx, releaseScript, []string{full}, token).Err(); err != nil {
			r.log.Error().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}
	return release, true, nil
}
