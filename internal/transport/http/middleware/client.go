package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/healthtrack-api/internal/domain"
	pkgtoken "github.com/healthtrack-api/internal/pkg/token"
)

type contextKey string

const (
	identityContextKey contextKey = "identity_key"
	clientContextKey   contextKey = "client_meta"
)

// realIP resolves the client address behind proxies: X-Forwarded-For first
// hop, then X-Real-Ip, then the socket address.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-Ip"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientMetaFrom builds the audit metadata for a request. The raw address is
// never stored, only its hash.
func ClientMetaFrom(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		IPHash:    pkgtoken.Hash(realIP(r)),
		UserAgent: r.UserAgent(),
	}
}

// WithIdentity returns a context carrying the authenticated identity key.
func WithIdentity(ctx context.Context, identityKey string) context.Context {
	return context.WithValue(ctx, identityContextKey, identityKey)
}

// IdentityFromContext extracts the authenticated identity key.
func IdentityFromContext(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(identityContextKey).(string)
	return k, ok
}
