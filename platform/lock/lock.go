// Package lock provides short-lived named locks used to keep overlapping
// pipeline runs from working on the same website or dispatch round.
// This is part of the platform layer and contains no business logic.
package lock

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"leadflow_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// Release gives the lock back. Safe to call more than once.
type Release func()

// Locker acquires named locks without blocking. A held lock is renewed in
// the background every ttl/3 until it is released, so ttl bounds how long a
// crashed holder blocks others, not how long work may take.
type Locker interface {
	// TryLock returns ok=false when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

// keepAlive calls extend every ttl/3 until the returned stop func runs or
// extend reports the lock lost.
func keepAlive(ttl time.Duration, extend func() bool) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !extend() {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// New returns a Redis-backed locker when Redis is configured and an
// in-process one otherwise. The returned close func releases the connection.
func New(cfg config.RedisConfig) (Locker, func() error, error) {
	if cfg.GetRedisURL() == "" {
		return NewMemoryLocker(), func() error { return nil }, nil
	}
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisLocker(client), client.Close, nil
}

// =============================================================================
// Redis
// =============================================================================

const keyPrefix = "leadflow:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

const redisCallTimeout = 5 * time.Second

// RedisLocker holds locks as expiring Redis keys so they survive across processes.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a locker over an existing client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// NewRedisClient builds a go-redis client from a redis:// URL.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, errors.New("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig != nil {
			opt.TLSConfig = opt.TLSConfig.Clone()
			opt.TLSConfig.InsecureSkipVerify = true
		} else {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	return redis.NewClient(opt), nil
}

// TryLock sets key with NX so only one holder wins until ttl elapses or Release runs.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	fullKey := keyPrefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	stop := keepAlive(ttl, func() bool {
		extendCtx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
		defer cancel()
		n, err := extendScript.Run(extendCtx, l.client, []string{fullKey}, token, ttl.Milliseconds()).Int()
		// A failed call is retried on the next tick.
		return err != nil || n == 1
	})

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			// The caller's context may already be done when the lock is released.
			releaseCtx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
		})
	}

	return release, true, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// =============================================================================
// In-process
// =============================================================================

// MemoryLocker is a single-process Locker. Used when Redis is not configured.
type MemoryLocker struct {
	mu        sync.Mutex
	held      map[string]memoryHold
	nextToken uint64
	nowFn     func() time.Time
}

type memoryHold struct {
	token  uint64
	expiry time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryHold), nowFn: time.Now}
}

// TryLock acquires key unless it is held and not yet expired.
func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if hold, ok := l.held[key]; ok && now.Before(hold.expiry) {
		return nil, false, nil
	}
	l.nextToken++
	token := l.nextToken
	l.held[key] = memoryHold{token: token, expiry: now.Add(ttl)}

	stop := keepAlive(ttl, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		hold, ok := l.held[key]
		if !ok || hold.token != token {
			return false
		}
		hold.expiry = l.nowFn().Add(ttl)
		l.held[key] = hold
		return true
	})

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			l.mu.Lock()
			defer l.mu.Unlock()
			if hold, ok := l.held[key]; ok && hold.token == token {
				delete(l.held, key)
			}
		})
	}

	return release, true, nil
}
