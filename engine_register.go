package codify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/arturkam25/Codify/password"
)

// Register creates a regular, active account. The returned license key and
// recovery code are not retrievable later.
func (e *Engine) Register(ctx context.Context, username, pw, email string) (*Registration, error) {
	return e.createAccount(ctx, 0, CreateUserRequest{
		Username: username,
		Password: pw,
		Email:    email,
		Role:     RoleUser,
	})
}

// CreateUser is the administrative variant of [Engine.Register] that chooses
// the admin flag, role and disabled state. actor must be an active administrator.
func (e *Engine) CreateUser(ctx context.Context, actor Principal, req CreateUserRequest) (*Registration, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	return e.createAccount(ctx, actor.ID, req)
}

func (e *Engine) createAccount(ctx context.Context, actorID int64, req CreateUserRequest) (*Registration, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	target := auditTarget{username: username, actorID: actorID}
	fail := func(err error) (*Registration, error) {
		e.metricInc(MetricAccountCreationInvalid)
		e.emitAudit(ctx, auditEventAccountCreated, false, target, err, nil)
		return nil, err
	}

	if username == "" {
		return fail(ErrInvalidUsername)
	}
	pw := normalizePassword(req.Password)
	if err := e.ValidatePassword(pw); err != nil {
		return fail(err)
	}
	email := password.NormalizeEmail(req.Email)
	if err := password.ValidateEmail(email); err != nil {
		return fail(ErrInvalidEmail)
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = RoleUser
		if req.IsAdmin {
			role = RoleAdmin
		}
	}

	licenseKey, recoveryCode, err := e.secrets.Pair()
	if err != nil {
		return nil, err
	}
	hash, err := e.hashPassword(pw)
	if err != nil {
		return nil, err
	}

	id, err := e.store.InsertUser(ctx, User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      req.IsAdmin,
		Disabled:     req.Disabled,
		Role:         role,
		Email:        email,
		LicenseKey:   licenseKey,
		RecoveryCode: recoveryCode,
	})
	if err != nil {
		err = e.storeErr(ctx, "insert user", err)
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
		}
		e.emitAudit(ctx, auditEventAccountCreated, false, target, err, nil)
		return nil, err
	}

	target.userID = id
	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, target, nil, func() map[string]string {
		return map[string]string{"role": role}
	})
	e.logger.InfoContext(ctx, "account created",
		slog.Int64("user_id", id),
		slog.String("username", username),
		slog.Bool("admin", req.IsAdmin),
	)

	return &Registration{
		UserID:       id,
		Username:     username,
		LicenseKey:   licenseKey,
		RecoveryCode: recoveryCode,
		Message:      "Account created. Save your license key and recovery code; they will not be shown again.",
	}, nil
}
