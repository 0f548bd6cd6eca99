// Package codify is the account security core of the Codify application:
// password policy, credential hashing, login with lockout, first-login
// administrator promotion, protection of the first administrator, and
// self-service recovery with a license key or recovery code.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// codify is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] contract and value types such as [Principal] and
// [Registration]. Persistence lives in store/memstore and store/sqlstore;
// promotion locking and recovery throttling live under internal/ and are
// never exported.
//
// # What this package must NOT do
//
//   - Keep an implicit "current user". Administrative operations take the
//     acting [Principal] explicitly and re-check it against the store.
//   - Reveal whether a username exists at login.
//   - Persist or log plaintext passwords, recovery codes or license keys.
//   - Import a store package (stores import codify, not the reverse).
package codify
