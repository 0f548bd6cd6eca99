// Package password owns the credential primitives used by the account engine:
// the strength policy, the email syntax check, and salted one-way hashing.
//
// # Output format
//
// Bcrypt is the default algorithm and produces the standard modular-crypt
// string ($2a$<cost>$<salt><hash>). Argon2id hashes are encoded in PHC form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Chain] hashes with one primary [Hasher] and verifies against whichever
// registered hasher recognizes the stored encoding, so records written under
// an older algorithm or weaker cost keep verifying and can be rehashed on the
// next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other Codify package.
//   - Log plaintext passwords.
package password
