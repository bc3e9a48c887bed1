package middleware

import (
	"net/http"
	"strings"

	"github.com/healthtrack-api/internal/application/audit"
	"github.com/healthtrack-api/internal/domain"
)

var suspiciousAgents = []string{"bot", "crawler", "spider", "scraper"}

// BlockSuspiciousClients rejects automated clients by User-Agent substring.
// Matches are recorded in the audit trail before the 403.
func BlockSuspiciousClients(rec audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := strings.ToLower(r.UserAgent())
			for _, marker := range suspiciousAgents {
				if strings.Contains(ua, marker) {
					rec.Record(r.Context(), domain.IdentityUnknown, domain.EventSuspiciousClient, false, r.UserAgent(), ClientMetaFrom(r))
					writeJSONError(w, http.StatusForbidden, "forbidden")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
