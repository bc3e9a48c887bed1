package domain

import "time"

// VerificationCode is the one-time emailed credential proving address
// possession. The table is keyed by identity_key alone, so putting a fresh
// code atomically replaces any prior live code for that identity.
type VerificationCode struct {
	IdentityKey string    `json:"identity_key" dynamodbav:"identity_key"`
	Code        string    `json:"-" dynamodbav:"code"` // 6 ASCII digits, leading zeros preserved
	IssuedAt    time.Time `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt   int64     `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds, also the DynamoDB TTL
	Used        bool      `json:"used" dynamodbav:"used"`
	Attempts    int       `json:"attempts" dynamodbav:"attempts"`
}

// Live reports whether the code can still be verified at the given instant.
func (v *VerificationCode) Live(now time.Time) bool {
	return !v.Used && v.ExpiresAt > now.Unix()
}
