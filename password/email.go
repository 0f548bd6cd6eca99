package password

import (
	"errors"
	"regexp"
	"strings"
)

const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ErrInvalidEmail reports an address that fails the syntax check.
var ErrInvalidEmail = errors.New("invalid email address")

// ValidateEmail checks the local@domain.tld shape of email. Empty input,
// input longer than 254 bytes and input containing spaces are rejected.
func ValidateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength || strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
