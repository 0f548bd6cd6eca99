package codify

import (
	"context"
	"errors"
	"log/slog"
)

// ParseSession verifies a session token and reloads the account it names.
// Tokens for deleted, disabled or renamed accounts are rejected with
// [ErrSessionInvalid]. The returned principal reflects the stored record,
// not the token's claims, so demotions take effect immediately.
func (e *Engine) ParseSession(ctx context.Context, token string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}

	claims, err := e.sessions.ParseSession(token)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		e.logger.DebugContext(ctx, "session token rejected", slog.Any("error", err))
		return Principal{}, ErrSessionInvalid
	}

	u, err := e.store.GetUserByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricSessionRejected)
			return Principal{}, ErrSessionInvalid
		}
		return Principal{}, e.storeErr(ctx, "get user by id", err)
	}
	if u.Disabled || u.Username != claims.Username {
		e.metricInc(MetricSessionRejected)
		return Principal{}, ErrSessionInvalid
	}

	return principalFromUser(u), nil
}
