// Package jwt signs and verifies the session tokens issued after a
// successful login. Tokens carry the account id, username, admin flag and
// role; contact details and recovery secrets are never embedded.
package jwt
