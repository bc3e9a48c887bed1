// Package sweeper runs the periodic retention pass: expired verification
// codes, dead sessions and stale rate-limit windows are deleted, and audit
// rows past the retention horizon are archived to S3 before removal.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/healthtrack-api/internal/domain"
)

type VerificationSweepStore interface {
	DeleteExpired(ctx context.Context, nowUnix int64) (int, error)
}

type SessionSweepStore interface {
	DeleteExpired(ctx context.Context, nowUnix int64) (int, error)
}

type RateLimitSweepStore interface {
	DeleteStale(ctx context.Context, cutoffUnix int64) (int, error)
}

type AuditSweepStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]domain.AuditEvent, error)
	Delete(ctx context.Context, eventID string) error
}

// Archiver writes a batch of audit events to cold storage and returns the
// object key. Nil disables archival: rows are then deleted without a copy.
type Archiver interface {
	ArchiveBatch(ctx context.Context, events []domain.AuditEvent, at time.Time) (string, error)
}

type Deps struct {
	Verifications  VerificationSweepStore
	Sessions       SessionSweepStore
	RateLimits     RateLimitSweepStore
	Audit          AuditSweepStore
	Archiver       Archiver
	Interval       time.Duration
	AuditRetention time.Duration
	RateLimitGrace time.Duration // windows older than this are stale
}

type Sweeper struct {
	deps Deps
	now  func() time.Time
}

const auditBatchSize = 200

func New(deps Deps) *Sweeper {
	return &Sweeper{deps: deps, now: time.Now}
}

// Run blocks, sweeping once immediately and then every interval, until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one full retention pass. Each table is swept independently;
// a failure in one is logged and does not block the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	if n, err := s.deps.Verifications.DeleteExpired(ctx, now.Unix()); err != nil {
		slog.Warn("sweep verification codes", "error", err)
	} else if n > 0 {
		slog.Info("swept expired verification codes", "deleted", n)
	}

	if n, err := s.deps.Sessions.DeleteExpired(ctx, now.Unix()); err != nil {
		slog.Warn("sweep sessions", "error", err)
	} else if n > 0 {
		slog.Info("swept expired sessions", "deleted", n)
	}

	if n, err := s.deps.RateLimits.DeleteStale(ctx, now.Add(-s.deps.RateLimitGrace).Unix()); err != nil {
		slog.Warn("sweep rate limit windows", "error", err)
	} else if n > 0 {
		slog.Info("swept stale rate limit windows", "deleted", n)
	}

	s.sweepAudit(ctx, now)
}

func (s *Sweeper) sweepAudit(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.deps.AuditRetention)
	for {
		events, err := s.deps.Audit.ListOlderThan(ctx, cutoff, auditBatchSize)
		if err != nil {
			slog.Warn("list expired audit events", "error", err)
			return
		}
		if len(events) == 0 {
			return
		}
		if s.deps.Archiver != nil {
			key, err := s.deps.Archiver.ArchiveBatch(ctx, events, now)
			if err != nil {
				// Keep the rows; the next pass retries the archive.
				slog.Warn("archive audit batch", "error", err)
				return
			}
			slog.Info("archived audit batch", "key", key, "events", len(events))
		}
		for _, ev := range events {
			if err := s.deps.Audit.Delete(ctx, ev.EventID); err != nil {
				slog.Warn("delete archived audit event", "event_id", ev.EventID, "error", err)
			}
		}
		if len(events) < auditBatchSize {
			return
		}
	}
}
