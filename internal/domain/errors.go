package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking
// infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrRateLimited  = errors.New("rate limited")
)

// Verification outcomes. All three wrap ErrUnauthorized so handlers collapse
// them to a single status code while services can still tell them apart for
// the audit trail.
var (
	ErrCodeInvalid = fmt.Errorf("invalid verification code: %w", ErrUnauthorized)
	ErrCodeExpired = fmt.Errorf("verification code expired or not found: %w", ErrUnauthorized)
	ErrCodeLocked  = fmt.Errorf("verification code locked after too many attempts: %w", ErrUnauthorized)
)

// Token verification failure reasons, likewise collapsed to one status code.
// The specific reason is never sent to clients; it is recorded in the audit
// log so a uniform 401 response does not become an oracle.
var (
	ErrTokenMalformed       = fmt.Errorf("token malformed: %w", ErrUnauthorized)
	ErrTokenBadSignature    = fmt.Errorf("token signature invalid: %w", ErrUnauthorized)
	ErrTokenExpired         = fmt.Errorf("token expired: %w", ErrUnauthorized)
	ErrTokenIssuerMismatch  = fmt.Errorf("token issuer mismatch: %w", ErrUnauthorized)
	ErrTokenMissingIdentity = fmt.Errorf("token missing identity: %w", ErrUnauthorized)
	ErrTokenWrongType       = fmt.Errorf("token type not valid for this operation: %w", ErrUnauthorized)
	ErrSessionNotFound      = fmt.Errorf("no active session for token: %w", ErrUnauthorized)
)
