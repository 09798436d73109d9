package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "website:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, ok=%v err=%v", ok, err)
	}

	if _, ok, err := locker.TryLock(ctx, "website:a", time.Minute); err != nil || ok {
		t.Fatalf("expected second lock to fail while held, ok=%v err=%v", ok, err)
	}

	if _, ok, err := locker.TryLock(ctx, "website:b", time.Minute); err != nil || !ok {
		t.Fatalf("expected unrelated key to lock, ok=%v err=%v", ok, err)
	}

	release()
	release()

	if _, ok, err := locker.TryLock(ctx, "website:a", time.Minute); err != nil || !ok {
		t.Fatalf("expected lock after release, ok=%v err=%v", ok, err)
	}
}

func TestRedisLockerExpires(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	if _, ok, _ := locker.TryLock(ctx, "dispatch", 10*time.Second); !ok {
		t.Fatalf("expected lock to succeed")
	}
	mr.FastForward(11 * time.Second)

	if _, ok, _ := locker.TryLock(ctx, "dispatch", 10*time.Second); !ok {
		t.Fatalf("expected lock to be free after ttl")
	}
}

func TestRedisLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	staleRelease, ok, _ := locker.TryLock(ctx, "website:a", time.Second)
	if !ok {
		t.Fatalf("expected lock to succeed")
	}
	mr.FastForward(2 * time.Second)

	if _, ok, _ := locker.TryLock(ctx, "website:a", time.Minute); !ok {
		t.Fatalf("expected new holder to acquire expired lock")
	}
	staleRelease()

	if _, ok, _ := locker.TryLock(ctx, "website:a", time.Minute); ok {
		t.Fatalf("stale release must not free the new holder's lock")
	}
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	locker.nowFn = func() time.Time { return now }
	ctx := context.Background()

	release, ok, _ := locker.TryLock(ctx, "website:a", time.Minute)
	if !ok {
		t.Fatalf("expected first lock to succeed")
	}
	if _, ok, _ := locker.TryLock(ctx, "website:a", time.Minute); ok {
		t.Fatalf("expected second lock to fail")
	}
	release()
	if _, ok, _ := locker.TryLock(ctx, "website:a", time.Minute); !ok {
		t.Fatalf("expected lock after release")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := locker.TryLock(ctx, "website:a", time.Minute); !ok {
		t.Fatalf("expected expired lock to be taken over")
	}
}

type testRedisConfig struct{ url string }

func (c testRedisConfig) GetRedisURL() string       { return c.url }
func (c testRedisConfig) GetRedisTLSInsecure() bool { return false }

func TestNewPicksBackend(t *testing.T) {
	locker, closeFn, err := New(testRedisConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := locker.(*MemoryLocker); !ok {
		t.Fatalf("expected memory locker without redis, got %T", locker)
	}
	_ = closeFn()

	mr := miniredis.RunT(t)
	locker, closeFn, err = New(testRedisConfig{url: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = closeFn() }()
	if _, ok := locker.(*RedisLocker); !ok {
		t.Fatalf("expected redis locker, got %T", locker)
	}
	if _, ok, err := locker.TryLock(context.Background(), "dispatch", time.Minute); !ok || err != nil {
		t.Fatalf("expected lock through redis, got ok=%v err=%v", ok, err)
	}
}

func TestRedisLockerRenewsWhileHeld(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "dispatch", 90*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected lock to succeed, ok=%v err=%v", ok, err)
	}
	mr.SetTTL(keyPrefix+"dispatch", time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL(keyPrefix+"dispatch") < 50*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("expected held lock ttl to be renewed, got %s", mr.TTL(keyPrefix+"dispatch"))
		}
		time.Sleep(5 * time.Millisecond)
	}

	release()
	if mr.Exists(keyPrefix + "dispatch") {
		t.Fatalf("expected release to delete the key")
	}
	time.Sleep(100 * time.Millisecond)
	if mr.Exists(keyPrefix + "dispatch") {
		t.Fatalf("expected renewal to stop after release")
	}
}

func TestMemoryLockerRenewsWhileHeld(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, ok, _ := locker.TryLock(ctx, "dispatch", 60*time.Millisecond)
	if !ok {
		t.Fatalf("expected first lock to succeed")
	}
	time.Sleep(200 * time.Millisecond)

	if _, ok, _ := locker.TryLock(ctx, "dispatch", 60*time.Millisecond); ok {
		t.Fatalf("expected held lock to outlive its ttl")
	}
	release()
	if _, ok, _ := locker.TryLock(ctx, "dispatch", 60*time.Millisecond); !ok {
		t.Fatalf("expected lock after release")
	}
}
