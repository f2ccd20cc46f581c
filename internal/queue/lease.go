package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rag-document-platform/internal/logger"
)

// releaseScript deletes the lease only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a per-key exclusive lease with expiry
type RedisLease struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisLease(rdb redis.UniversalClient, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLease{rdb: rdb, ttl: ttl, prefix: "rag:lease:"}
}

// Acquire takes the lease for key. ok is false when someone else holds it.
func (l *RedisLease) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{l.prefix + key}, token).Err(); err != nil {
			logger.Warn("Failed to release lease", "key", key, "error", err)
		}
	}
	return release, true, nil
}
