// Package lock provides a listing lock shared by every engine process that
// points at the same Redis.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"stayengine/internal/domain/availability"
)

var ErrLockLost = errors.New("lock: lock expired before release")

// release deletes the key only while it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	Client redis.UniversalClient
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{Client: client, Prefix: "stayengine:lock:", TTL: ttl, Retry: 25 * time.Millisecond}
}

// Lock polls SET NX until it wins or ctx ends. The lock expires after TTL even
// if the holder dies.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	retry := l.Retry
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	name := l.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.Client.SetNX(ctx, name, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func(ctx context.Context) error {
		n, err := release.Run(ctx, l.Client, []string{name}, token).Int64()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}, nil
}

var _ availability.Locker = (*RedisLocker)(nil)
