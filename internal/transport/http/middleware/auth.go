package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/healthtrack-api/internal/application/audit"
	"github.com/healthtrack-api/internal/domain"
	jwtinfra "github.com/healthtrack-api/internal/infrastructure/jwt"
	pkgtoken "github.com/healthtrack-api/internal/pkg/token"
)

// TokenVerifier verifies a presented token of the wanted type.
type TokenVerifier interface {
	Verify(tokenStr, wantType string) (*jwtinfra.Claims, error)
}

// SessionReader is what the guard needs from the session table.
type SessionReader interface {
	Get(ctx context.Context, identityKey string) (*domain.Session, error)
	TouchLastAccessed(ctx context.Context, identityKey string, at time.Time) error
}

// RateLimitStore is the durable per-identifier request counter.
type RateLimitStore interface {
	CheckAndRecord(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (bool, error)
}

// Guard authenticates requests to the protected surface. Every response it
// refuses is a uniform 401; the specific reason goes to the audit trail only.
type Guard struct {
	tokens     TokenVerifier
	sessions   SessionReader
	rateLimits RateLimitStore
	audit      audit.Recorder
	apiLimit   int
	apiWindow  time.Duration
	now        func() time.Time
}

type GuardDeps struct {
	Tokens     TokenVerifier
	Sessions   SessionReader
	RateLimits RateLimitStore
	Audit      audit.Recorder
	APILimit   int
	APIWindow  time.Duration
}

func NewGuard(deps GuardDeps) *Guard {
	return &Guard{
		tokens:     deps.Tokens,
		sessions:   deps.Sessions,
		rateLimits: deps.RateLimits,
		audit:      deps.Audit,
		apiLimit:   deps.APILimit,
		apiWindow:  deps.APIWindow,
		now:        time.Now,
	}
}

// Authenticate validates the bearer access token against the token itself and
// the identity's stored session, then injects the identity key into context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := ClientMetaFrom(r)
		now := g.now()

		allowed, err := g.rateLimits.CheckAndRecord(r.Context(), "api:"+meta.IPHash, g.apiLimit, g.apiWindow, now)
		if err != nil {
			// Fail open: a rate limiter outage must not take the API down.
			slog.Warn("rate limit check failed, allowing request", "error", err)
		} else if !allowed {
			g.audit.Record(r.Context(), domain.IdentityUnknown, domain.EventRateLimitTripped, false, "api", meta)
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		tokenStr, ok := BearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := g.tokens.Verify(tokenStr, jwtinfra.TypeAccess)
		if err != nil {
			g.audit.Record(r.Context(), domain.IdentityUnknown, domain.EventDataAccess, false, err.Error(), meta)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		sess, err := g.sessions.Get(r.Context(), claims.IdentityKey)
		if err != nil {
			g.audit.Record(r.Context(), claims.IdentityKey, domain.EventDataAccess, false, "no session for token", meta)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !sess.Active || sess.AccessTokenHash != pkgtoken.Hash(tokenStr) || sess.AccessExpiresAt <= now.Unix() {
			g.audit.Record(r.Context(), claims.IdentityKey, domain.EventDataAccess, false, "session inactive or token superseded", meta)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Best effort; a failed touch never blocks the request.
		_ = g.sessions.TouchLastAccessed(r.Context(), claims.IdentityKey, now)

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.IdentityKey)))
	})
}

// BearerToken extracts the token from the Authorization header. Shared with
// the refresh handler, which reads the refresh token from the same header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(h, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}
