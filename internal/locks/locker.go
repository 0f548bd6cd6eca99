package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockTimeout is returned when the lock could not be taken within the wait budget.
	ErrLockTimeout = errors.New("lock acquisition timed out")
	// ErrLockUnavailable indicates the Redis backend failed.
	ErrLockUnavailable = errors.New("lock backend unavailable")
)

// Locker acquires a named exclusive lock. The returned release func is safe
// to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock.
type RedisLocker struct {
	redis    redis.UniversalClient
	prefix   string
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

// NewRedisLocker builds a locker whose keys live under prefix+":lock:". ttl
// bounds how long a crashed holder can block others; wait bounds Acquire.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{
		redis:    client,
		prefix:   prefix,
		ttl:      ttl,
		wait:     wait,
		interval: 25 * time.Millisecond,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + ":lock:" + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		ok, err := l.redis.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			return l.releaser(fullKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.redis, []string{key}, token).Err()
		})
	}
}

// MutexLocker is an in-process Locker keyed by name.
type MutexLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{slots: make(map[string]chan struct{})}
}

func (l *MutexLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *MutexLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
