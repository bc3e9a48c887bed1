package dynamo

// DynamoDB attribute names used in expressions across the repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldIdentityKey      = "identity_key"
	fieldActive           = "active"
	fieldUsed             = "used"
	fieldAttempts         = "attempts"
	fieldExpiresAt        = "expires_at"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldLastAccessed     = "last_accessed"
	fieldWindowStart      = "window_start"
	fieldRequestCount     = "request_count"
	fieldCreatedAt        = "created_at"
)
