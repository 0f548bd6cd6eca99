package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRecoveryRateLimited means the identifier or IP exhausted its window.
	ErrRecoveryRateLimited = errors.New("recovery rate limited")
	// ErrRecoveryUnavailable indicates the limiter backend is unreachable.
	ErrRecoveryUnavailable = errors.New("recovery limiter unavailable")
)

// RecoveryConfig holds the fixed-window policy for failed recovery attempts.
type RecoveryConfig struct {
	Prefix           string
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// RecoveryLimiter counts failed password-reset and username-recovery
// attempts per identifier and per client IP. Successful attempts clear the
// identifier counter; the IP counter only expires.
type RecoveryLimiter struct {
	redis  redis.UniversalClient
	config RecoveryConfig
}

// NewRecoveryLimiter returns nil when redisClient is nil, and a nil limiter
// allows everything.
func NewRecoveryLimiter(redisClient redis.UniversalClient, cfg RecoveryConfig) *RecoveryLimiter {
	if redisClient == nil {
		return nil
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "codify"
	}
	return &RecoveryLimiter{redis: redisClient, config: cfg}
}

// Check fails with ErrRecoveryRateLimited once either counter has reached MaxAttempts.
func (l *RecoveryLimiter) Check(ctx context.Context, scope, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.check(ctx, l.identifierKey(scope, identifier)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.check(ctx, l.ipKey(scope, ip))
	}
	return nil
}

// RecordFailure increments both counters, starting the window on the first failure.
func (l *RecoveryLimiter) RecordFailure(ctx context.Context, scope, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.incr(ctx, l.identifierKey(scope, identifier)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.incr(ctx, l.ipKey(scope, ip))
	}
	return nil
}

// Reset clears the identifier counter after a successful recovery.
func (l *RecoveryLimiter) Reset(ctx context.Context, scope, identifier string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.identifierKey(scope, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}
	return nil
}

func (l *RecoveryLimiter) check(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRecoveryRateLimited
	}
	return nil
}

func (l *RecoveryLimiter) incr(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
		}
	}
	return nil
}

func (l *RecoveryLimiter) identifierKey(scope, identifier string) string {
	return l.config.Prefix + ":rcv:" + scope + ":" + strings.ToLower(identifier)
}

func (l *RecoveryLimiter) ipKey(scope, ip string) string {
	return l.config.Prefix + ":rcvip:" + scope + ":" + ip
}
