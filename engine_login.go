package codify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const promotionLockKey = "first-admin-promotion"

// Authenticate checks username and password.
//
// Unknown users and wrong passwords both yield [ErrInvalidCredentials]; a
// wrong password on an active account returns an [*AttemptError] carrying
// the remaining attempts. The attempt that reaches the limit locks the
// account and returns [ErrAccountLocked]. A disabled account is reported as
// locked only after the correct password was given.
//
// On success the failure counter is reset, the first user to log in while no
// administrator exists is promoted, and a session token is issued.
func (e *Engine) Authenticate(ctx context.Context, username, pw string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	u, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, auditTarget{username: username}, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, e.storeErr(ctx, "get user by username", err)
	}

	if !e.verifyPassword(ctx, u, pw) {
		return nil, e.failedLogin(ctx, u)
	}

	if u.Disabled {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, auditTarget{userID: u.ID, username: u.Username}, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	return e.succeededLogin(ctx, u, pw)
}

func (e *Engine) failedLogin(ctx context.Context, u *User) error {
	target := auditTarget{userID: u.ID, username: u.Username}
	e.metricInc(MetricLoginFailure)

	// Already locked: no counter movement and nothing that reveals the state.
	if u.Disabled || u.PasswordHash == "" {
		e.emitAudit(ctx, auditEventLoginFailure, false, target, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	limit := e.config.Security.MaxLoginAttempts
	var (
		count      int
		suppressed bool
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx CredentialStore) error {
		n, err := tx.IncrementFailedAttempts(ctx, u.ID, limit)
		if err != nil {
			return e.storeErr(ctx, "increment failed attempts", err)
		}
		count = n
		if n < limit {
			return nil
		}

		first, err := e.isFirstAdmin(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if first {
			suppressed = true
			return nil
		}
		return e.storeErr(ctx, "lock account", tx.UpdateUserFields(ctx, u.ID, UserPatch{Disabled: ptr(true)}))
	})
	if err != nil {
		return e.storeErr(ctx, "record failed login", err)
	}

	switch {
	case suppressed:
		e.metricInc(MetricLockoutSuppressed)
		e.logger.WarnContext(ctx, "lockout threshold reached by first administrator; account left active",
			slog.Int64("user_id", u.ID),
			slog.Int("failed_attempts", count),
		)
		e.emitAudit(ctx, auditEventLockoutSuppressed, false, target, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	case count >= limit:
		e.metricInc(MetricAccountLocked)
		e.logger.WarnContext(ctx, "account locked after failed logins",
			slog.Int64("user_id", u.ID),
			slog.Int("failed_attempts", count),
		)
		e.emitAudit(ctx, auditEventAccountLocked, false, target, ErrAccountLocked, func() map[string]string {
			return map[string]string{"reason": "failed_attempts"}
		})
		return ErrAccountLocked
	default:
		e.emitAudit(ctx, auditEventLoginFailure, false, target, ErrInvalidCredentials, nil)
		return &AttemptError{Remaining: limit - count}
	}
}

func (e *Engine) succeededLogin(ctx context.Context, u *User, pw string) (*LoginResult, error) {
	target := auditTarget{userID: u.ID, username: u.Username}

	var release func()
	_, hasAdmin, err := e.store.FirstAdminID(ctx)
	if err != nil {
		return nil, e.storeErr(ctx, "first admin", err)
	}
	if !hasAdmin {
		release, err = e.promotion.Acquire(ctx, promotionLockKey)
		if err != nil {
			// Promotion is retried on the next login.
			e.logger.WarnContext(ctx, "promotion lock unavailable", slog.Any("error", err))
			release = nil
		} else {
			defer release()
		}
	}

	var upgraded string
	if e.config.Password.UpgradeOnLogin {
		if need, err := e.hasher.NeedsUpgrade(u.PasswordHash); err == nil && need {
			if upgraded, err = e.hashPassword(pw); err != nil {
				e.logger.WarnContext(ctx, "password rehash failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
				upgraded = ""
			}
		}
	}

	var promoted bool
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx CredentialStore) error {
		patch := UserPatch{FailedAttempts: ptr(0)}
		if upgraded != "" {
			patch.PasswordHash = &upgraded
		}
		if err := tx.UpdateUserFields(ctx, u.ID, patch); err != nil {
			return e.storeErr(ctx, "reset failed attempts", err)
		}

		if release == nil {
			return nil
		}
		ok, err := tx.PromoteIfNoAdmin(ctx, u.ID)
		if err != nil {
			return e.storeErr(ctx, "promote first admin", err)
		}
		promoted = ok
		return nil
	})
	if err != nil {
		return nil, e.storeErr(ctx, "record successful login", err)
	}

	u.FailedAttempts = 0
	if upgraded != "" {
		e.metricInc(MetricHashUpgraded)
	}
	if promoted {
		u.IsAdmin = true
		u.Role = RoleAdmin
		e.metricInc(MetricAdminPromoted)
		e.logger.InfoContext(ctx, "first administrator promoted",
			slog.Int64("user_id", u.ID),
			slog.String("username", u.Username),
		)
		e.emitAudit(ctx, auditEventAdminPromoted, true, target, nil, nil)
	}

	token, err := e.sessions.CreateSession(u.ID, u.Username, u.IsAdmin, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	e.metricInc(MetricSessionIssued)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, target, nil, nil)

	msg := "Login successful."
	if promoted {
		msg = "Login successful. You are now the administrator."
	}
	return &LoginResult{
		Principal: principalFromUser(u),
		Token:     token,
		Promoted:  promoted,
		Message:   msg,
	}, nil
}
