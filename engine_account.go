package codify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/arturkam25/Codify/password"
	"github.com/arturkam25/Codify/secret"
)

// requireAdmin reloads actor and checks it is still an active administrator.
// The principal's own flags are not trusted.
func (e *Engine) requireAdmin(ctx context.Context, actor Principal) (*User, error) {
	u, err := e.store.GetUserByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAdminRequired
		}
		return nil, e.storeErr(ctx, "load actor", err)
	}
	if !u.IsAdmin || u.Disabled || u.Username != actor.Username {
		return nil, ErrAdminRequired
	}
	return u, nil
}

// RequireAdmin is the guard for administrative surfaces.
func (e *Engine) RequireAdmin(ctx context.Context, actor Principal) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.requireAdmin(ctx, actor)
	return err
}

func (e *Engine) protectedAdmin(ctx context.Context, target auditTarget, op string) error {
	e.metricInc(MetricProtectedAdminRejected)
	e.logger.WarnContext(ctx, "refused operation on first administrator",
		slog.String("op", op),
		slog.Int64("user_id", target.userID),
		slog.Int64("actor_id", target.actorID),
	)
	e.emitAudit(ctx, auditEventProtectedAdminViolation, false, target, ErrProtectedAdmin, func() map[string]string {
		return map[string]string{"op": op}
	})
	return ErrProtectedAdmin
}

// UpdateUser applies an administrative edit. Usernames cannot change, and
// the first administrator can be neither disabled nor demoted; such requests
// are refused as a whole. Re-enabling an account also clears its failure
// counter.
func (e *Engine) UpdateUser(ctx context.Context, actor Principal, id int64, req UpdateUserRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return err
	}

	u, err := e.store.GetUserByID(ctx, id)
	if err != nil {
		return e.storeErr(ctx, "get user", err)
	}
	target := auditTarget{userID: id, username: u.Username, actorID: actor.ID}

	if req.Username != nil && strings.TrimSpace(*req.Username) != u.Username {
		e.emitAudit(ctx, auditEventAccountUpdated, false, target, ErrUsernameImmutable, nil)
		return ErrUsernameImmutable
	}

	var patch UserPatch
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		patch.Role = &role
	}
	if req.Email != nil {
		email := password.NormalizeEmail(*req.Email)
		if err := password.ValidateEmail(email); err != nil {
			e.emitAudit(ctx, auditEventAccountUpdated, false, target, ErrInvalidEmail, nil)
			return ErrInvalidEmail
		}
		patch.Email = &email
	}
	if req.LicenseKey != nil {
		key := secret.Normalize(*req.LicenseKey)
		patch.LicenseKey = &key
	}
	if req.Password != nil {
		pw := normalizePassword(*req.Password)
		if err := e.ValidatePassword(pw); err != nil {
			e.emitAudit(ctx, auditEventAccountUpdated, false, target, err, nil)
			return err
		}
		hash, err := e.hashPassword(pw)
		if err != nil {
			return err
		}
		patch.PasswordHash = &hash
	}
	if req.IsAdmin != nil {
		patch.IsAdmin = ptr(*req.IsAdmin)
	}
	if req.Disabled != nil {
		patch.Disabled = ptr(*req.Disabled)
		if !*req.Disabled {
			patch.FailedAttempts = ptr(0)
		}
	}
	if patch.Empty() {
		return nil
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx CredentialStore) error {
		if (patch.Disabled != nil && *patch.Disabled) || (patch.IsAdmin != nil && !*patch.IsAdmin) {
			first, err := e.isFirstAdmin(ctx, tx, id)
			if err != nil {
				return err
			}
			if first {
				return ErrProtectedAdmin
			}
		}
		return e.storeErr(ctx, "update user", tx.UpdateUserFields(ctx, id, patch))
	})
	if errors.Is(err, ErrProtectedAdmin) {
		return e.protectedAdmin(ctx, target, "update")
	}
	if err != nil {
		err = e.storeErr(ctx, "update user", err)
		e.emitAudit(ctx, auditEventAccountUpdated, false, target, err, nil)
		return err
	}

	e.metricInc(MetricAccountUpdated)
	e.emitAudit(ctx, auditEventAccountUpdated, true, target, nil, func() map[string]string {
		return map[string]string{"fields": patchFields(patch)}
	})
	return nil
}

func patchFields(p UserPatch) string {
	var fields []string
	if p.PasswordHash != nil {
		fields = append(fields, "password")
	}
	if p.IsAdmin != nil {
		fields = append(fields, "is_admin")
	}
	if p.Disabled != nil {
		fields = append(fields, "disabled")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.LicenseKey != nil {
		fields = append(fields, "license_key")
	}
	return strings.Join(fields, ",")
}

// DeleteUser removes an account permanently. The first administrator cannot
// be deleted.
func (e *Engine) DeleteUser(ctx context.Context, actor Principal, id int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return err
	}
	target := auditTarget{userID: id, actorID: actor.ID}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx CredentialStore) error {
		first, err := e.isFirstAdmin(ctx, tx, id)
		if err != nil {
			return err
		}
		if first {
			return ErrProtectedAdmin
		}
		return e.storeErr(ctx, "delete user", tx.DeleteUser(ctx, id))
	})
	if errors.Is(err, ErrProtectedAdmin) {
		return e.protectedAdmin(ctx, target, "delete")
	}
	if err != nil {
		err = e.storeErr(ctx, "delete user", err)
		e.emitAudit(ctx, auditEventAccountDeleted, false, target, err, nil)
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, target, nil, nil)
	return nil
}

// LockUser disables an account and saturates its failure counter. The first
// administrator cannot be locked.
func (e *Engine) LockUser(ctx context.Context, actor Principal, id int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return err
	}
	target := auditTarget{userID: id, actorID: actor.ID}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx CredentialStore) error {
		first, err := e.isFirstAdmin(ctx, tx, id)
		if err != nil {
			return err
		}
		if first {
			return ErrProtectedAdmin
		}
		return e.storeErr(ctx, "lock user", tx.UpdateUserFields(ctx, id, UserPatch{
			Disabled:       ptr(true),
			FailedAttempts: ptr(e.config.Security.MaxLoginAttempts),
		}))
	})
	if errors.Is(err, ErrProtectedAdmin) {
		return e.protectedAdmin(ctx, target, "lock")
	}
	if err != nil {
		return e.storeErr(ctx, "lock user", err)
	}

	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, true, target, nil, func() map[string]string {
		return map[string]string{"reason": "admin"}
	})
	return nil
}

// UnlockUser re-enables an account and clears its failure counter.
func (e *Engine) UnlockUser(ctx context.Context, actor Principal, id int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return err
	}
	target := auditTarget{userID: id, actorID: actor.ID}

	err := e.store.UpdateUserFields(ctx, id, UserPatch{Disabled: ptr(false), FailedAttempts: ptr(0)})
	if err != nil {
		return e.storeErr(ctx, "unlock user", err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, target, nil, nil)
	return nil
}

// ListUsers returns every account, administrators first, then by id.
func (e *Engine) ListUsers(ctx context.Context, actor Principal) ([]AccountSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	return e.listUsers(ctx)
}

// EmergencyListUsers is [Engine.ListUsers] for operator tooling that has
// direct access to the store and no logged-in principal.
func (e *Engine) EmergencyListUsers(ctx context.Context) ([]AccountSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.listUsers(ctx)
}

func (e *Engine) listUsers(ctx context.Context) ([]AccountSummary, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, e.storeErr(ctx, "list users", err)
	}
	out := make([]AccountSummary, 0, len(users))
	for _, u := range users {
		out = append(out, summaryFromUser(u))
	}
	return out, nil
}

// RegenerateRecoveryCode replaces the recovery code of id and returns the new
// one. actor must be an administrator or the account owner.
func (e *Engine) RegenerateRecoveryCode(ctx context.Context, actor Principal, id int64) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if actor.ID != id {
		if _, err := e.requireAdmin(ctx, actor); err != nil {
			return "", err
		}
	}

	u, err := e.store.GetUserByID(ctx, id)
	if err != nil {
		return "", e.storeErr(ctx, "get user", err)
	}
	if actor.ID == id && (u.Disabled || u.Username != actor.Username) {
		return "", ErrSessionInvalid
	}

	code, err := e.secrets.RecoveryCodeExcept(u.LicenseKey)
	if err != nil {
		return "", err
	}
	if err := e.store.UpdateUserFields(ctx, id, UserPatch{RecoveryCode: &code}); err != nil {
		return "", e.storeErr(ctx, "update recovery code", err)
	}

	e.metricInc(MetricRecoveryCodeRegenerated)
	e.emitAudit(ctx, auditEventRecoveryCodeRegenerated, true, auditTarget{userID: id, username: u.Username, actorID: actor.ID}, nil, nil)
	return code, nil
}
