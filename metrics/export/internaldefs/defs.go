package internaldefs

import (
	"github.com/arturkam25/Codify"
)

// CounterDef names one engine counter for every exporter.
type CounterDef struct {
	ID   codify.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for every exporter.
type HistogramDef struct {
	ID   codify.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: codify.MetricLoginSuccess, Name: "codify_login_success_total", Help: "Successful logins."},
	{ID: codify.MetricLoginFailure, Name: "codify_login_failure_total", Help: "Failed logins: unknown user or wrong password."},
	{ID: codify.MetricLoginLocked, Name: "codify_login_locked_total", Help: "Correct passwords rejected because the account is locked."},
	{ID: codify.MetricAccountLocked, Name: "codify_account_locked_total", Help: "Accounts locked by failed logins or by an administrator."},
	{ID: codify.MetricAccountUnlocked, Name: "codify_account_unlocked_total", Help: "Accounts unlocked by an administrator."},
	{ID: codify.MetricLockoutSuppressed, Name: "codify_lockout_suppressed_total", Help: "Lockout thresholds reached by the first administrator."},
	{ID: codify.MetricAdminPromoted, Name: "codify_admin_promoted_total", Help: "First-login administrator promotions."},
	{ID: codify.MetricAccountCreated, Name: "codify_account_created_total", Help: "Accounts created."},
	{ID: codify.MetricAccountCreationDuplicate, Name: "codify_account_creation_duplicate_total", Help: "Account creations rejected as duplicate."},
	{ID: codify.MetricAccountCreationInvalid, Name: "codify_account_creation_invalid_total", Help: "Account creations rejected by validation."},
	{ID: codify.MetricAccountUpdated, Name: "codify_account_updated_total", Help: "Administrative account updates."},
	{ID: codify.MetricAccountDeleted, Name: "codify_account_deleted_total", Help: "Accounts deleted."},
	{ID: codify.MetricProtectedAdminRejected, Name: "codify_protected_admin_rejected_total", Help: "Operations refused to keep the first administrator intact."},
	{ID: codify.MetricPasswordResetSuccess, Name: "codify_password_reset_success_total", Help: "Successful password resets."},
	{ID: codify.MetricPasswordResetFailure, Name: "codify_password_reset_failure_total", Help: "Failed password resets."},
	{ID: codify.MetricUsernameRecoverySuccess, Name: "codify_username_recovery_success_total", Help: "Successful username recoveries."},
	{ID: codify.MetricUsernameRecoveryFailure, Name: "codify_username_recovery_failure_total", Help: "Failed username recoveries."},
	{ID: codify.MetricRecoveryRateLimited, Name: "codify_recovery_rate_limited_total", Help: "Recovery attempts refused by the throttle."},
	{ID: codify.MetricRecoveryCodeRegenerated, Name: "codify_recovery_code_regenerated_total", Help: "Recovery codes regenerated."},
	{ID: codify.MetricHashUpgraded, Name: "codify_hash_upgraded_total", Help: "Password hashes upgraded at login."},
	{ID: codify.MetricHashVerifyError, Name: "codify_hash_verify_error_total", Help: "Stored hashes that could not be verified."},
	{ID: codify.MetricSessionIssued, Name: "codify_session_issued_total", Help: "Session tokens issued."},
	{ID: codify.MetricSessionRejected, Name: "codify_session_rejected_total", Help: "Session tokens rejected."},
}

var HistogramDefs = []HistogramDef{
	{ID: codify.MetricHashLatency, Name: "codify_hash_latency_seconds", Help: "Time spent hashing or verifying a password."},
}

const (
	AuditDroppedName = "codify_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// BucketCount is len(HistogramUpperBounds) plus the +Inf bucket.
const BucketCount = 8

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
