package domain

import "time"

// Audit event types.
const (
	EventCodeRequested      = "code-requested"
	EventCodeVerified       = "code-verified"
	EventCodeVerifyFailed   = "code-verify-failed"
	EventLoginSuccess       = "login-success"
	EventTokenRefresh       = "token-refresh"
	EventLogout             = "logout"
	EventDataAccess         = "data-access"
	EventOwnershipViolation = "ownership-violation"
	EventRateLimitTripped   = "rate-limit-tripped"
	EventSuspiciousClient   = "suspicious-client"
)

// IdentityUnknown is recorded when an event cannot be attributed, e.g. a
// request carrying a token that failed verification.
const IdentityUnknown = "unknown"

// AuditEvent is one append-only row in the security audit trail. Rows are
// never updated; the only delete path is the age-based retention sweep.
type AuditEvent struct {
	EventID     string     `json:"event_id" dynamodbav:"event_id"`
	IdentityKey string     `json:"identity_key" dynamodbav:"identity_key"`
	EventType   string     `json:"event_type" dynamodbav:"event_type"`
	Success     bool       `json:"success" dynamodbav:"success"`
	Context     string     `json:"context,omitempty" dynamodbav:"context"`
	Requester   ClientMeta `json:"requester" dynamodbav:"requester"`
	CreatedAt   time.Time  `json:"created_at" dynamodbav:"created_at"`
}
