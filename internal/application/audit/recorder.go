package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/healthtrack-api/internal/domain"
	"github.com/healthtrack-api/internal/infrastructure/sns"
	"github.com/healthtrack-api/internal/pkg/id"
)

// Store is the append-only sink the recorder writes to.
type Store interface {
	Append(ctx context.Context, ev *domain.AuditEvent) error
}

// Recorder is the audit entry point used by services and middleware.
type Recorder interface {
	Record(ctx context.Context, identityKey, eventType string, success bool, detail string, meta domain.ClientMeta)
}

type recorder struct {
	store  Store
	alerts sns.AlertPublisher // nil when no alert topic is configured
	now    func() time.Time
}

// NewRecorder builds a Recorder. alerts may be nil.
func NewRecorder(store Store, alerts sns.AlertPublisher) Recorder {
	return &recorder{store: store, alerts: alerts, now: time.Now}
}

// Record appends one audit event. Recording is best-effort: a failed append
// is logged but never fails the request that produced the event. Ownership
// violations and suspicious clients additionally raise an operator alert.
func (r *recorder) Record(ctx context.Context, identityKey, eventType string, success bool, detail string, meta domain.ClientMeta) {
	ev := &domain.AuditEvent{
		EventID:     id.New(),
		IdentityKey: identityKey,
		EventType:   eventType,
		Success:     success,
		Context:     detail,
		Requester:   meta,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.Append(ctx, ev); err != nil {
		slog.Warn("failed to append audit event", "event_type", eventType, "err", err)
	}
	if r.alerts == nil {
		return
	}
	if eventType == domain.EventOwnershipViolation || eventType == domain.EventSuspiciousClient {
		if err := r.alerts.PublishAlert(ctx, ev); err != nil {
			slog.Warn("failed to publish security alert", "event_type", eventType, "err", err)
		}
	}
}
