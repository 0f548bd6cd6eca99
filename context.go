package codify

import (
	"context"
	"strings"
)

type ctxKey int

const clientIPKey ctxKey = iota

// WithClientIP records the caller address on ctx. Audit events carry it and
// the recovery throttle counts failures against it next to the account.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientIPKey, strings.TrimSpace(ip))
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}
