// Package middleware adapts the engine's session checks to net/http.
//
// # Guards
//
//   - [RequireSession] rejects requests without a valid session token.
//   - [RequireAdmin] additionally requires an active administrator.
//   - [ClientIP] records the caller's address for audit events and the
//     recovery throttle.
//
// Each guard reads the Authorization header, calls Engine.ParseSession, and
// injects the resulting principal into the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
