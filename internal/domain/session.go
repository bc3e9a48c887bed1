package domain

import "time"

// Session binds an identity to its currently valid token pair. The table is
// keyed by identity_key alone: one active session per identity, and a new
// login or refresh replaces the previous row. That single-device policy is
// deliberate — it is what makes logout and re-login act as revocation for
// tokens that have not yet expired.
type Session struct {
	IdentityKey      string     `json:"identity_key" dynamodbav:"identity_key"`
	AccessTokenHash  string     `json:"-" dynamodbav:"access_token_hash"`
	RefreshTokenHash string     `json:"-" dynamodbav:"refresh_token_hash"`
	IssuedAt         time.Time  `json:"issued_at" dynamodbav:"issued_at"`
	AccessExpiresAt  int64      `json:"access_expires_at" dynamodbav:"access_expires_at"`   // Unix seconds
	RefreshExpiresAt int64      `json:"refresh_expires_at" dynamodbav:"refresh_expires_at"` // Unix seconds
	Active           bool       `json:"active" dynamodbav:"active"`
	LastAccessed     time.Time  `json:"last_accessed" dynamodbav:"last_accessed"`
	Client           ClientMeta `json:"client" dynamodbav:"client"`
}

// ClientMeta describes the requesting client. The IP is stored hashed; raw
// addresses never reach the table.
type ClientMeta struct {
	IPHash    string `json:"ip_hash" dynamodbav:"ip_hash"`
	UserAgent string `json:"user_agent" dynamodbav:"user_agent"`
}
