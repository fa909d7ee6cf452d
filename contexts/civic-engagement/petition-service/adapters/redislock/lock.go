package redislock

import (
	"context"
	"fmt"
	"time"

	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "petitionhub:reconciliation:lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-owner lease in Redis. The lease expires on its own if the
// holder dies before releasing it.
type Lock struct {
	client redis.UniversalClient
	key    string
}

var _ ports.ReconciliationLock = (*Lock)(nil)

func New(client redis.UniversalClient, key string) *Lock {
	if key == "" {
		key = DefaultKey
	}
	return &Lock{client: client, key: key}
}

func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire reconciliation lock: %w", err)
	}
	if !ok {
		return nil, domainerrors.ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release reconciliation lock: %w", err)
		}
		return nil
	}, nil
}
