package codify

import "context"

// Role labels. Role is display-only; IsAdmin is authoritative for access control.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the persisted account record.
type User struct {
	ID             int64
	Username       string
	PasswordHash   string
	IsAdmin        bool
	Disabled       bool
	Role           string
	Email          string
	LicenseKey     string
	FailedAttempts int
	RecoveryCode   string
}

// Principal is the authenticated identity handed back by [Engine.Authenticate].
// Callers pass it explicitly into operations that act on behalf of a user.
type Principal struct {
	ID         int64
	Username   string
	IsAdmin    bool
	Disabled   bool
	Role       string
	Email      string
	LicenseKey string
}

func principalFromUser(u *User) Principal {
	return Principal{
		ID:         u.ID,
		Username:   u.Username,
		IsAdmin:    u.IsAdmin,
		Disabled:   u.Disabled,
		Role:       u.Role,
		Email:      u.Email,
		LicenseKey: u.LicenseKey,
	}
}

// UserPatch is a partial update. Nil fields are left untouched. Username is
// deliberately absent: accounts cannot be renamed.
type UserPatch struct {
	PasswordHash   *string
	IsAdmin        *bool
	Disabled       *bool
	Role           *string
	Email          *string
	LicenseKey     *string
	FailedAttempts *int
	RecoveryCode   *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.PasswordHash == nil && p.IsAdmin == nil && p.Disabled == nil &&
		p.Role == nil && p.Email == nil && p.LicenseKey == nil &&
		p.FailedAttempts == nil && p.RecoveryCode == nil
}

// CredentialStore persists user records.
//
// Lookups return [ErrUserNotFound] for missing rows. Inserts and updates return
// [ErrAccountExists] on username or email uniqueness violations. Any other
// error is treated as an infrastructure failure.
type CredentialStore interface {
	InsertUser(ctx context.Context, u User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// GetUserByEmail matches the lower-cased address.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// ListUsers orders administrators first, then by ascending id.
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserFields(ctx context.Context, id int64, patch UserPatch) error
	DeleteUser(ctx context.Context, id int64) error

	// FirstAdminID returns the lowest id among admin-flagged users. ok is
	// false when no administrator exists.
	FirstAdminID(ctx context.Context) (id int64, ok bool, err error)
	// IncrementFailedAttempts atomically adds one to the counter, saturating
	// at limit, and returns the new value.
	IncrementFailedAttempts(ctx context.Context, id int64, limit int) (int, error)
	// PromoteIfNoAdmin grants admin to id only when no administrator exists.
	// It reports whether the promotion happened.
	PromoteIfNoAdmin(ctx context.Context, id int64) (bool, error)

	// WithinTx runs fn against a transactional view of the store. A non-nil
	// error from fn rolls every write back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx CredentialStore) error) error
}

// CreateUserRequest is the administrative creation input.
type CreateUserRequest struct {
	Username string
	Password string
	Email    string
	IsAdmin  bool
	Role     string
	Disabled bool
}

// Registration is returned once, at account creation. The license key and
// recovery code are never shown again.
type Registration struct {
	UserID       int64
	Username     string
	LicenseKey   string
	RecoveryCode string
	Message      string
}

// LoginResult is returned by a successful [Engine.Authenticate].
type LoginResult struct {
	Principal Principal
	// Token is a signed session token carrying the principal between requests.
	Token    string
	Promoted bool
	Message  string
}

// UpdateUserRequest is the administrative update input. Nil fields are left
// unchanged. Username, when set, must equal the current username.
type UpdateUserRequest struct {
	Username   *string
	Role       *string
	Email      *string
	LicenseKey *string
	Password   *string
	IsAdmin    *bool
	Disabled   *bool
}

// ResetPasswordRequest is the self-service recovery input. Secret may be
// either the recovery code or the license key.
type ResetPasswordRequest struct {
	Username        string
	Email           string
	Secret          string
	NewPassword     string
	ConfirmPassword string
}

// ResetResult reports a successful password reset.
type ResetResult struct {
	UserID  int64
	Message string
}

// AccountSummary is the listing view of an account. Password hashes and
// recovery codes are never included.
type AccountSummary struct {
	ID             int64
	Username       string
	Email          string
	IsAdmin        bool
	Disabled       bool
	Role           string
	LicenseKey     string
	FailedAttempts int
}

func summaryFromUser(u User) AccountSummary {
	return AccountSummary{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		IsAdmin:        u.IsAdmin,
		Disabled:       u.Disabled,
		Role:           u.Role,
		LicenseKey:     u.LicenseKey,
		FailedAttempts: u.FailedAttempts,
	}
}
