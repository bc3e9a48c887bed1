package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/healthtrack-api/internal/application/audit"
	"github.com/healthtrack-api/internal/domain"
	jwtinfra "github.com/healthtrack-api/internal/infrastructure/jwt"
	"github.com/healthtrack-api/internal/infrastructure/smtp"
	"github.com/healthtrack-api/internal/pkg/identity"
	pkgtoken "github.com/healthtrack-api/internal/pkg/token"
)

// VerificationStore is the minimal interface the service requires from the
// verification code table.
type VerificationStore interface {
	Put(ctx context.Context, v *domain.VerificationCode) error
	Get(ctx context.Context, identityKey string) (*domain.VerificationCode, error)
	IncrementAttempts(ctx context.Context, identityKey string) (int, error)
	Consume(ctx context.Context, identityKey string) error
}

// SessionStore is the minimal interface the service requires from the
// session table.
type SessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, identityKey string) (*domain.Session, error)
	Revoke(ctx context.Context, identityKey string) error
}

// RateLimitStore is the durable per-identifier request counter.
type RateLimitStore interface {
	CheckAndRecord(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (bool, error)
}

// AuditLogStore reads back the audit trail for the activity surface.
type AuditLogStore interface {
	ListByIdentity(ctx context.Context, identityKey string, limit int32) ([]domain.AuditEvent, error)
}

// TokenProvider mints and verifies the signed token pairs.
type TokenProvider interface {
	MintPair(identityKey string) (*jwtinfra.Pair, error)
	Verify(tokenStr, wantType string) (*jwtinfra.Claims, error)
}

// Limits carries the rate-limit and code policy knobs for the service.
type Limits struct {
	CodeTTL            time.Duration
	CodeMaxAttempts    int
	CodeRequestLimit   int // per identity per window
	CodeRequestWindow  time.Duration
	CodeRequestIPLimit int // per IP hash per window, all identities
}

// LoginResult is a successful authentication: a fresh token pair and the
// session that now backs it.
type LoginResult struct {
	IdentityKey string
	Pair        *jwtinfra.Pair
	Session     *domain.Session
}

type Service interface {
	RequestCode(ctx context.Context, email string, meta domain.ClientMeta) error
	VerifyCode(ctx context.Context, email, code string, meta domain.ClientMeta) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, meta domain.ClientMeta) (*LoginResult, error)
	Logout(ctx context.Context, identityKey string, meta domain.ClientMeta) error
	Activity(ctx context.Context, identityKey string, limit int32) ([]domain.AuditEvent, error)
}

// Deps bundles the service dependencies.
type Deps struct {
	Verifications VerificationStore
	Sessions      SessionStore
	RateLimits    RateLimitStore
	Tokens        TokenProvider
	Mailer        smtp.Mailer
	Audit         audit.Recorder
	AuditLog      AuditLogStore
	Limits        Limits
}

type service struct {
	verifications VerificationStore
	sessions      SessionStore
	rateLimits    RateLimitStore
	tokens        TokenProvider
	mailer        smtp.Mailer
	audit         audit.Recorder
	auditLog      AuditLogStore
	limits        Limits
	now           func() time.Time
}

func NewService(deps Deps) Service {
	return &service{
		verifications: deps.Verifications,
		sessions:      deps.Sessions,
		rateLimits:    deps.RateLimits,
		tokens:        deps.Tokens,
		mailer:        deps.Mailer,
		audit:         deps.Audit,
		auditLog:      deps.AuditLog,
		limits:        deps.Limits,
		now:           time.Now,
	}
}

// RequestCode issues a fresh verification code for the address and emails it.
// The put replaces any prior live code for the identity, so at most one code
// is ever verifiable. Rate-limited per identity and per requesting IP.
func (s *service) RequestCode(ctx context.Context, email string, meta domain.ClientMeta) error {
	key := identity.KeyFromEmail(email)
	now := s.now()

	allowed, err := s.rateLimits.CheckAndRecord(ctx, "code-request:"+key,
		s.limits.CodeRequestLimit, s.limits.CodeRequestWindow, now)
	if err != nil {
		return err
	}
	if !allowed {
		s.audit.Record(ctx, key, domain.EventRateLimitTripped, false, "code-request", meta)
		return fmt.Errorf("code request limit reached: %w", domain.ErrRateLimited)
	}
	if meta.IPHash != "" {
		allowed, err = s.rateLimits.CheckAndRecord(ctx, "code-request-ip:"+meta.IPHash,
			s.limits.CodeRequestIPLimit, s.limits.CodeRequestWindow, now)
		if err != nil {
			return err
		}
		if !allowed {
			s.audit.Record(ctx, key, domain.EventRateLimitTripped, false, "code-request-ip", meta)
			return fmt.Errorf("code request limit reached: %w", domain.ErrRateLimited)
		}
	}

	code, err := newCode()
	if err != nil {
		return err
	}
	v := &domain.VerificationCode{
		IdentityKey: key,
		Code:        code,
		IssuedAt:    now.UTC(),
		ExpiresAt:   now.Add(s.limits.CodeTTL).Unix(),
		Used:        false,
		Attempts:    0,
	}
	if err := s.verifications.Put(ctx, v); err != nil {
		return err
	}

	body := fmt.Sprintf("Your verification code is: %s\n\nThis code will expire in %d minutes.\n\nIf you didn't request this code, please ignore this email.",
		code, int(s.limits.CodeTTL.Minutes()))
	if err := s.mailer.SendEmail(email, "Your verification code", body); err != nil {
		s.audit.Record(ctx, key, domain.EventCodeRequested, false, "email delivery failed", meta)
		return fmt.Errorf("send verification email: %w", err)
	}

	s.audit.Record(ctx, key, domain.EventCodeRequested, true, "", meta)
	return nil
}

// VerifyCode validates a submitted code and, on success, mints a token pair
// and replaces the identity's session. Outcomes: nil, ErrCodeExpired (no live
// code), ErrCodeLocked (attempt budget exhausted — the code is consumed even
// if a later attempt would have matched), ErrCodeInvalid (mismatch).
func (s *service) VerifyCode(ctx context.Context, email, code string, meta domain.ClientMeta) (*LoginResult, error) {
	key := identity.KeyFromEmail(email)
	now := s.now()

	v, err := s.verifications.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.audit.Record(ctx, key, domain.EventCodeVerifyFailed, false, "no live code", meta)
			return nil, fmt.Errorf("verify code: %w", domain.ErrCodeExpired)
		}
		return nil, err
	}
	if !v.Live(now) {
		s.audit.Record(ctx, key, domain.EventCodeVerifyFailed, false, "code expired or used", meta)
		return nil, fmt.Errorf("verify code: %w", domain.ErrCodeExpired)
	}

	// Counted before comparing, matching or not; the atomic increment means
	// two concurrent attempts consume two slots of the budget.
	attempts, err := s.verifications.IncrementAttempts(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("verify code: %w", domain.ErrCodeExpired)
		}
		return nil, err
	}
	if attempts > s.limits.CodeMaxAttempts {
		if err := s.verifications.Consume(ctx, key); err != nil && !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		s.audit.Record(ctx, key, domain.EventCodeVerifyFailed, false, "locked after too many attempts", meta)
		return nil, fmt.Errorf("verify code: %w", domain.ErrCodeLocked)
	}

	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(code)) != 1 {
		s.audit.Record(ctx, key, domain.EventCodeVerifyFailed, false, "code mismatch", meta)
		return nil, fmt.Errorf("verify code: %w", domain.ErrCodeInvalid)
	}

	// The conditional consume guarantees only one of two racing matches wins.
	if err := s.verifications.Consume(ctx, key); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.audit.Record(ctx, key, domain.EventCodeVerifyFailed, false, "code already consumed", meta)
			return nil, fmt.Errorf("verify code: %w", domain.ErrCodeExpired)
		}
		return nil, err
	}
	s.audit.Record(ctx, key, domain.EventCodeVerified, true, "", meta)

	result, err := s.startSession(ctx, key, meta)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, key, domain.EventLoginSuccess, true, "", meta)
	return result, nil
}

// Refresh rotates the token pair. The refresh token is verified as a refresh
// token (an access token is rejected) and must match the hash held by the
// identity's active session.
func (s *service) Refresh(ctx context.Context, refreshToken string, meta domain.ClientMeta) (*LoginResult, error) {
	claims, err := s.tokens.Verify(refreshToken, jwtinfra.TypeRefresh)
	if err != nil {
		s.audit.Record(ctx, domain.IdentityUnknown, domain.EventTokenRefresh, false, err.Error(), meta)
		return nil, fmt.Errorf("refresh: %w", err)
	}
	key := claims.IdentityKey

	sess, err := s.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.audit.Record(ctx, key, domain.EventTokenRefresh, false, "session not found", meta)
			return nil, fmt.Errorf("refresh: %w", domain.ErrSessionNotFound)
		}
		return nil, err
	}
	if !sess.Active || sess.RefreshTokenHash != pkgtoken.Hash(refreshToken) || sess.RefreshExpiresAt <= s.now().Unix() {
		s.audit.Record(ctx, key, domain.EventTokenRefresh, false, "session inactive or token mismatch", meta)
		return nil, fmt.Errorf("refresh: %w", domain.ErrSessionNotFound)
	}

	result, err := s.startSession(ctx, key, meta)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, key, domain.EventTokenRefresh, true, "", meta)
	return result, nil
}

// Logout deactivates the identity's session. The still-unexpired tokens die
// with it: the access guard requires an active matching session.
func (s *service) Logout(ctx context.Context, identityKey string, meta domain.ClientMeta) error {
	if err := s.sessions.Revoke(ctx, identityKey); err != nil {
		return err
	}
	s.audit.Record(ctx, identityKey, domain.EventLogout, true, "", meta)
	return nil
}

const (
	activityDefaultLimit = 50
	activityMaxLimit     = 200
)

// Activity returns the identity's most recent audit events, newest first, so
// an account holder can review logins and data access against their record.
func (s *service) Activity(ctx context.Context, identityKey string, limit int32) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = activityDefaultLimit
	}
	if limit > activityMaxLimit {
		limit = activityMaxLimit
	}
	events, err := s.auditLog.ListByIdentity(ctx, identityKey, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	return events, nil
}

// startSession mints a pair and writes the replacement session row.
func (s *service) startSession(ctx context.Context, identityKey string, meta domain.ClientMeta) (*LoginResult, error) {
	pair, err := s.tokens.MintPair(identityKey)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		IdentityKey:      identityKey,
		AccessTokenHash:  pkgtoken.Hash(pair.AccessToken),
		RefreshTokenHash: pkgtoken.Hash(pair.RefreshToken),
		IssuedAt:         now,
		AccessExpiresAt:  pair.AccessExpiresAt.Unix(),
		RefreshExpiresAt: pair.RefreshExpiresAt.Unix(),
		Active:           true,
		LastAccessed:     now,
		Client:           meta,
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &LoginResult{IdentityKey: identityKey, Pair: pair, Session: sess}, nil
}

// newCode draws a uniformly random 6-digit code, leading zeros preserved.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
