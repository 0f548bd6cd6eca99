// Package limiters provides Redis-backed throttles for the account recovery
// flows.
//
// [RecoveryLimiter] keeps fixed-window failure counters per identifier and,
// optionally, per client IP. Counters start with INCR and get their TTL on
// the first hit. Keys are namespaced as:
//
//   - <prefix>:rcv:<scope>:<identifier>
//   - <prefix>:rcvip:<scope>:<ip>
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import the root codify package.
//   - Decide consequences beyond counting; the engine maps errors to outcomes.
package limiters
