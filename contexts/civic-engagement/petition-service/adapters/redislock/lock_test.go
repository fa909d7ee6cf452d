package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ""), server
}

func TestAcquireIsExclusive(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := lock.Acquire(ctx, time.Minute); !errors.Is(err, domainerrors.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := lock.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("expected acquire after release, got %v", err)
	}
}

func TestLeaseExpires(t *testing.T) {
	lock, server := newTestLock(t)
	ctx := context.Background()

	if _, err := lock.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	server.FastForward(2 * time.Minute)
	if _, err := lock.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("expected expired lease to be reacquirable, got %v", err)
	}
}

func TestStaleReleaseKeepsNewOwner(t *testing.T) {
	lock, server := newTestLock(t)
	ctx := context.Background()

	staleRelease, err := lock.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	server.FastForward(2 * time.Minute)
	if _, err := lock.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("second owner acquire: %v", err)
	}
	if err := staleRelease(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !server.Exists(DefaultKey) {
		t.Fatalf("expected lock of second owner to survive stale release")
	}
}
