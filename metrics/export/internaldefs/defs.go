package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricAccountCreated, Name: "goidentity_account_created_total", Help: "Created accounts and users."},
	{ID: goIdentity.MetricAccountDuplicate, Name: "goidentity_account_duplicate_total", Help: "Account creations rejected as duplicate."},
	{ID: goIdentity.MetricUserDeleted, Name: "goidentity_user_deleted_total", Help: "Deleted users."},
	{ID: goIdentity.MetricSessionCreated, Name: "goidentity_session_created_total", Help: "Created sessions."},
	{ID: goIdentity.MetricSessionDeleted, Name: "goidentity_session_deleted_total", Help: "Deleted sessions."},
	{ID: goIdentity.MetricSessionEvicted, Name: "goidentity_session_evicted_total", Help: "Sessions evicted by the per-user limit."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed email/password logins."},
	{ID: goIdentity.MetricTokenIssued, Name: "goidentity_token_issued_total", Help: "Issued single-use tokens."},
	{ID: goIdentity.MetricTokenConsumed, Name: "goidentity_token_consumed_total", Help: "Redeemed single-use tokens."},
	{ID: goIdentity.MetricTokenRejected, Name: "goidentity_token_rejected_total", Help: "Rejected token redemptions."},
	{ID: goIdentity.MetricPasswordChanged, Name: "goidentity_password_changed_total", Help: "Password changes."},
	{ID: goIdentity.MetricPasswordHistoryRejected, Name: "goidentity_password_history_rejected_total", Help: "Password changes rejected by history."},
	{ID: goIdentity.MetricPasswordHashUpgraded, Name: "goidentity_password_hash_upgraded_total", Help: "Legacy digests rehashed on login."},
	{ID: goIdentity.MetricRecoveryCompleted, Name: "goidentity_recovery_completed_total", Help: "Completed password recoveries."},
	{ID: goIdentity.MetricVerificationCompleted, Name: "goidentity_verification_completed_total", Help: "Completed email and phone verifications."},
	{ID: goIdentity.MetricMFAAuthenticatorVerified, Name: "goidentity_mfa_authenticator_verified_total", Help: "Verified MFA authenticators."},
	{ID: goIdentity.MetricMFAChallengeCreated, Name: "goidentity_mfa_challenge_created_total", Help: "Created MFA challenges."},
	{ID: goIdentity.MetricMFAChallengeVerified, Name: "goidentity_mfa_challenge_verified_total", Help: "Completed MFA challenges."},
	{ID: goIdentity.MetricMFAChallengeFailed, Name: "goidentity_mfa_challenge_failed_total", Help: "Failed MFA challenge attempts."},
	{ID: goIdentity.MetricRecoveryCodeUsed, Name: "goidentity_recovery_code_used_total", Help: "Redeemed MFA recovery codes."},
	{ID: goIdentity.MetricOAuth2Login, Name: "goidentity_oauth2_login_total", Help: "Completed OAuth2 logins."},
	{ID: goIdentity.MetricOAuth2Conflict, Name: "goidentity_oauth2_conflict_total", Help: "OAuth2 logins rejected by an identity conflict."},
	{ID: goIdentity.MetricMessageDropped, Name: "goidentity_message_dropped_total", Help: "Messages the queue refused."},
}

var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricResolveLatency, Name: "goidentity_resolve_latency_seconds", Help: "ResolveCaller latency histogram."},
}

// HistogramUpperBounds are the bucket bounds in seconds, without +Inf. They
// match the engine's millisecond buckets.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// cannot carry a label.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// EventsDroppedName is the counter for events lost to dispatcher backpressure.
const (
	EventsDroppedName = "goidentity_events_dropped_total"
	EventsDroppedHelp = "Dropped domain events due to dispatcher backpressure."
)

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
