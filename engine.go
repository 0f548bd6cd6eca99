package codify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arturkam25/Codify/internal/limiters"
	"github.com/arturkam25/Codify/internal/locks"
	"github.com/arturkam25/Codify/jwt"
	"github.com/arturkam25/Codify/password"
	"github.com/arturkam25/Codify/secret"
)

// Engine is the account security core. It is safe for concurrent use once
// built.
type Engine struct {
	config    Config
	store     CredentialStore
	policy    password.Policy
	hasher    *password.Chain
	secrets   *secret.Generator
	sessions  *jwt.Manager
	promotion locks.Locker
	recovery  *limiters.RecoveryLimiter
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *slog.Logger
}

// Close flushes pending audit events. The credential store is owned by the
// caller and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the live counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// ValidatePassword runs the strength policy on the trimmed password and
// returns a [*PolicyError] listing every failed rule, or nil.
func (e *Engine) ValidatePassword(pw string) error {
	ok, checks := e.policy.Validate(normalizePassword(pw))
	if ok {
		return nil
	}
	return &PolicyError{Checks: checks, Messages: e.policy.Feedback(checks)}
}

// normalizePassword is the form of a password that is validated, compared
// and hashed.
func normalizePassword(pw string) string {
	return strings.TrimSpace(pw)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) hashPassword(pw string) (string, error) {
	start := time.Now()
	hash, err := e.hasher.Hash(pw)
	e.metrics.Observe(MetricHashLatency, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// verifyPassword treats a malformed or unrecognized stored hash as a wrong
// password and logs it.
func (e *Engine) verifyPassword(ctx context.Context, u *User, pw string) bool {
	if u.PasswordHash == "" {
		return false
	}

	start := time.Now()
	ok, err := e.hasher.Verify(pw, u.PasswordHash)
	e.metrics.Observe(MetricHashLatency, time.Since(start))
	if err != nil {
		e.metricInc(MetricHashVerifyError)
		e.logger.ErrorContext(ctx, "password hash verification failed",
			slog.Int64("user_id", u.ID),
			slog.Any("error", err),
		)
		return false
	}
	return ok
}

var domainErrors = []error{
	ErrInvalidCredentials,
	ErrAccountLocked,
	ErrUserNotFound,
	ErrAccountExists,
	ErrInvalidUsername,
	ErrInvalidEmail,
	ErrPasswordPolicy,
	ErrPasswordMismatch,
	ErrPasswordReuse,
	ErrEmailMismatch,
	ErrRecoverySecretInvalid,
	ErrRecoveryRateLimited,
	ErrProtectedAdmin,
	ErrAdminRequired,
	ErrUsernameImmutable,
	ErrSessionInvalid,
	ErrStoreUnavailable,
	ErrEngineNotReady,
	context.Canceled,
	context.DeadlineExceeded,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storeErr passes domain outcomes through and wraps anything else in
// ErrStoreUnavailable after logging it.
func (e *Engine) storeErr(ctx context.Context, op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	e.logger.ErrorContext(ctx, "credential store failure",
		slog.String("op", op),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (e *Engine) isFirstAdmin(ctx context.Context, store CredentialStore, id int64) (bool, error) {
	first, ok, err := store.FirstAdminID(ctx)
	if err != nil {
		return false, e.storeErr(ctx, "first admin", err)
	}
	return ok && first == id, nil
}

// IsFirstAdmin reports whether id is the lowest-id administrator.
func (e *Engine) IsFirstAdmin(ctx context.Context, id int64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.isFirstAdmin(ctx, e.store, id)
}

func ptr[T any](v T) *T {
	return &v
}
