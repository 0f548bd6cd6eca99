package codify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/arturkam25/Codify/internal/limiters"
	"github.com/arturkam25/Codify/password"
	"github.com/arturkam25/Codify/secret"
)

const (
	recoveryScopeReset    = "reset"
	recoveryScopeUsername = "username"
)

// ResetPassword is the self-service recovery flow. The caller proves
// ownership with the account email plus either the recovery code or the
// license key. On success the password is replaced, the failure counter
// cleared and the account re-enabled.
func (e *Engine) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*ResetResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	target := auditTarget{username: username}

	if err := e.checkRecovery(ctx, recoveryScopeReset, username); err != nil {
		e.emitAudit(ctx, auditEventRecoveryRateLimited, false, target, err, func() map[string]string {
			return map[string]string{"flow": recoveryScopeReset}
		})
		return nil, err
	}

	newPassword := normalizePassword(req.NewPassword)
	if err := e.ValidatePassword(newPassword); err != nil {
		return nil, e.resetFailed(ctx, target, err)
	}
	if newPassword != normalizePassword(req.ConfirmPassword) {
		return nil, e.resetFailed(ctx, target, ErrPasswordMismatch)
	}

	u, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.recordRecoveryFailure(ctx, recoveryScopeReset, username)
			return nil, e.resetFailed(ctx, target, ErrUserNotFound)
		}
		return nil, e.storeErr(ctx, "get user by username", err)
	}
	target.userID = u.ID

	if !strings.EqualFold(strings.TrimSpace(req.Email), u.Email) || u.Email == "" {
		e.recordRecoveryFailure(ctx, recoveryScopeReset, username)
		return nil, e.resetFailed(ctx, target, ErrEmailMismatch)
	}
	if !secret.MatchesAny(req.Secret, u.RecoveryCode, u.LicenseKey) {
		e.recordRecoveryFailure(ctx, recoveryScopeReset, username)
		return nil, e.resetFailed(ctx, target, ErrRecoverySecretInvalid)
	}
	if e.verifyPassword(ctx, u, newPassword) {
		return nil, e.resetFailed(ctx, target, ErrPasswordReuse)
	}

	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx CredentialStore) error {
		return e.storeErr(ctx, "reset password", tx.UpdateUserFields(ctx, u.ID, UserPatch{
			PasswordHash:   &hash,
			FailedAttempts: ptr(0),
			Disabled:       ptr(false),
		}))
	})
	if err != nil {
		err = e.storeErr(ctx, "reset password", err)
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, target, err, nil)
		return nil, err
	}

	e.resetRecovery(ctx, recoveryScopeReset, username)
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetSuccess, true, target, nil, func() map[string]string {
		return map[string]string{"unlocked": boolString(u.Disabled)}
	})
	return &ResetResult{
		UserID:  u.ID,
		Message: "Password reset successful. You can now log in with your new password.",
	}, nil
}

func (e *Engine) resetFailed(ctx context.Context, target auditTarget, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetFailure, false, target, err, nil)
	return err
}

// RecoverUsername returns the username registered to email when secret is
// the account's recovery code or license key. Nothing else is disclosed.
func (e *Engine) RecoverUsername(ctx context.Context, email, secretValue string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	email = password.NormalizeEmail(email)
	if err := e.checkRecovery(ctx, recoveryScopeUsername, email); err != nil {
		e.emitAudit(ctx, auditEventRecoveryRateLimited, false, auditTarget{}, err, func() map[string]string {
			return map[string]string{"flow": recoveryScopeUsername}
		})
		return "", err
	}
	if err := password.ValidateEmail(email); err != nil {
		e.metricInc(MetricUsernameRecoveryFailure)
		return "", ErrInvalidEmail
	}

	u, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.recordRecoveryFailure(ctx, recoveryScopeUsername, email)
			e.metricInc(MetricUsernameRecoveryFailure)
			e.emitAudit(ctx, auditEventUsernameRecovered, false, auditTarget{}, ErrUserNotFound, nil)
			return "", ErrUserNotFound
		}
		return "", e.storeErr(ctx, "get user by email", err)
	}
	target := auditTarget{userID: u.ID}

	if !secret.MatchesAny(secretValue, u.RecoveryCode, u.LicenseKey) {
		e.recordRecoveryFailure(ctx, recoveryScopeUsername, email)
		e.metricInc(MetricUsernameRecoveryFailure)
		e.emitAudit(ctx, auditEventUsernameRecovered, false, target, ErrRecoverySecretInvalid, nil)
		return "", ErrRecoverySecretInvalid
	}

	e.resetRecovery(ctx, recoveryScopeUsername, email)
	e.metricInc(MetricUsernameRecoverySuccess)
	target.username = u.Username
	e.emitAudit(ctx, auditEventUsernameRecovered, true, target, nil, nil)
	return u.Username, nil
}

// EmergencyReset sets a new password for username without any proof of
// ownership, unlocking the account. It is meant for operator tooling with
// direct store access.
func (e *Engine) EmergencyReset(ctx context.Context, username, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	newPassword = normalizePassword(newPassword)
	if err := e.ValidatePassword(newPassword); err != nil {
		return err
	}

	u, err := e.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return e.storeErr(ctx, "get user by username", err)
	}
	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return err
	}
	err = e.store.UpdateUserFields(ctx, u.ID, UserPatch{
		PasswordHash:   &hash,
		FailedAttempts: ptr(0),
		Disabled:       ptr(false),
	})
	if err != nil {
		return e.storeErr(ctx, "emergency reset", err)
	}

	e.logger.WarnContext(ctx, "password reset by operator",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
	)
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetSuccess, true, auditTarget{userID: u.ID, username: u.Username}, nil, func() map[string]string {
		return map[string]string{"mode": "emergency"}
	})
	return nil
}

// checkRecovery fails open when the limiter backend is unreachable.
func (e *Engine) checkRecovery(ctx context.Context, scope, identifier string) error {
	err := e.recovery.Check(ctx, scope, identifier, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRecoveryRateLimited):
		e.metricInc(MetricRecoveryRateLimited)
		return ErrRecoveryRateLimited
	default:
		e.logger.WarnContext(ctx, "recovery limiter unavailable", slog.String("scope", scope), slog.Any("error", err))
		return nil
	}
}

func (e *Engine) recordRecoveryFailure(ctx context.Context, scope, identifier string) {
	if err := e.recovery.RecordFailure(ctx, scope, identifier, clientIPFromContext(ctx)); err != nil {
		e.logger.WarnContext(ctx, "recovery limiter unavailable", slog.String("scope", scope), slog.Any("error", err))
	}
}

func (e *Engine) resetRecovery(ctx context.Context, scope, identifier string) {
	if err := e.recovery.Reset(ctx, scope, identifier); err != nil {
		e.logger.WarnContext(ctx, "recovery limiter unavailable", slog.String("scope", scope), slog.Any("error", err))
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
