package codify

import (
	"errors"
	"strconv"
	"strings"

	"github.com/arturkam25/Codify/password"
)

var (
	// ErrInvalidCredentials is returned for unknown usernames and wrong
	// passwords alike so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when a correct password is presented for a
	// disabled account, and by the failed attempt that triggers the lock.
	ErrAccountLocked = errors.New("account locked")
	// ErrUserNotFound is returned by store lookups and by the recovery flows.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists reports a username or email uniqueness violation.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidUsername is returned for blank usernames.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidEmail is returned for addresses failing the syntax check.
	ErrInvalidEmail = password.ErrInvalidEmail
	// ErrPasswordPolicy is wrapped by every [*PolicyError].
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordMismatch is returned when the confirmation differs from the new password.
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	// ErrPasswordReuse is returned when a reset supplies the current password.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrEmailMismatch is returned when the supplied email does not belong to the account.
	ErrEmailMismatch = errors.New("email does not match account")
	ErrRecoverySecretInvalid = errors.New("invalid recovery code or license key")
	ErrRecoveryRateLimited   = errors.New("recovery attempts rate limited")
	// ErrProtectedAdmin is returned for any attempt to disable, demote, lock
	// or delete the first administrator.
	ErrProtectedAdmin = errors.New("first administrator is protected")
	// ErrAdminRequired is returned when the acting principal is not an active administrator.
	ErrAdminRequired = errors.New("administrator privileges required")
	// ErrUsernameImmutable is returned by updates that try to rename an account.
	ErrUsernameImmutable = errors.New("username cannot be changed")
	ErrSessionInvalid    = errors.New("invalid session")
	// ErrStoreUnavailable wraps every credential store failure that is not a
	// domain outcome. The underlying cause stays reachable through errors.Unwrap.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")
)

// PolicyError lists the rule violations for a rejected password. It matches
// [ErrPasswordPolicy] under errors.Is.
type PolicyError struct {
	Checks   password.Checks
	Messages []string
}

func (e *PolicyError) Error() string {
	return ErrPasswordPolicy.Error() + ": " + strings.Join(e.Messages, " ")
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPasswordPolicy
}

// AttemptError is returned by a failed login that did not lock the account.
// It matches [ErrInvalidCredentials] under errors.Is.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return ErrInvalidCredentials.Error() + ": " + strconv.Itoa(e.Remaining) + " attempts remaining"
}

func (e *AttemptError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// Message renders err as text suitable for end users. Infrastructure
// failures collapse into one generic message.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var policyErr *PolicyError
	if errors.As(err, &policyErr) {
		return strings.Join(policyErr.Messages, "\n")
	}
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		if attemptErr.Remaining == 1 {
			return "Invalid password. 1 attempt remaining."
		}
		return "Invalid password. " + strconv.Itoa(attemptErr.Remaining) + " attempts remaining."
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return "Your account is locked. Contact an administrator or reset your password with your recovery code."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrAccountExists):
		return "An account with this username or email already exists."
	case errors.Is(err, ErrInvalidUsername):
		return "Username must not be empty."
	case errors.Is(err, ErrInvalidEmail):
		return "Invalid email address."
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match."
	case errors.Is(err, ErrPasswordReuse):
		return "The new password must be different from the current one."
	case errors.Is(err, ErrUserNotFound):
		return "User not found."
	case errors.Is(err, ErrEmailMismatch):
		return "The email address does not match this account."
	case errors.Is(err, ErrRecoverySecretInvalid):
		return "Invalid recovery code or license key."
	case errors.Is(err, ErrRecoveryRateLimited):
		return "Too many recovery attempts. Try again later."
	case errors.Is(err, ErrProtectedAdmin):
		return "The first administrator cannot be disabled, demoted, locked or deleted."
	case errors.Is(err, ErrAdminRequired):
		return "Administrator privileges are required."
	case errors.Is(err, ErrUsernameImmutable):
		return "Usernames cannot be changed."
	case errors.Is(err, ErrSessionInvalid):
		return "Your session has expired. Please log in again."
	default:
		return "Something went wrong. Please try again later."
	}
}
