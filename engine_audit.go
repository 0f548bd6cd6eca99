package codify

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventAccountLocked           = "account_locked"
	auditEventLockoutSuppressed       = "lockout_suppressed"
	auditEventAdminPromoted           = "admin_promoted"
	auditEventAccountCreated          = "account_created"
	auditEventAccountUpdated          = "account_updated"
	auditEventAccountDeleted          = "account_deleted"
	auditEventAccountUnlocked         = "account_unlocked"
	auditEventProtectedAdminViolation = "protected_admin_violation"
	auditEventPasswordResetSuccess    = "password_reset_success"
	auditEventPasswordResetFailure    = "password_reset_failure"
	auditEventUsernameRecovered       = "username_recovered"
	auditEventRecoveryRateLimited     = "recovery_rate_limited"
	auditEventRecoveryCodeRegenerated = "recovery_code_regenerated"
)

// AuditErrorCode is the stable, non-sensitive error label recorded on failed
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrEmailMismatch      AuditErrorCode = "email_mismatch"
	auditErrSecretInvalid      AuditErrorCode = "secret_invalid"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrProtectedAdmin     AuditErrorCode = "protected_admin"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditTarget struct {
	userID   int64
	username string
	actorID  int64
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	target auditTarget,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    target.userID,
		Username:  target.username,
		ActorID:   target.actorID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrUsernameImmutable):
		return auditErrValidation
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrEmailMismatch):
		return auditErrEmailMismatch
	case errors.Is(err, ErrRecoverySecretInvalid):
		return auditErrSecretInvalid
	case errors.Is(err, ErrRecoveryRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrProtectedAdmin):
		return auditErrProtectedAdmin
	case errors.Is(err, ErrAdminRequired),
		errors.Is(err, ErrSessionInvalid):
		return auditErrUnauthorized
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
