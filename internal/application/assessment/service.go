package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/healthtrack-api/internal/application/audit"
	"github.com/healthtrack-api/internal/domain"
	"github.com/healthtrack-api/internal/pkg/id"
	"github.com/healthtrack-api/internal/pkg/validate"
)

// Store is the minimal interface the service requires from the assessments
// table.
type Store interface {
	Put(ctx context.Context, a *domain.Assessment) error
	Get(ctx context.Context, assessmentID string) (*domain.Assessment, error)
	Delete(ctx context.Context, assessmentID string) error
	QueryPage(ctx context.Context, identityKey, formType string, limit int32, cursor string) ([]domain.Assessment, string, error)
	QuerySince(ctx context.Context, identityKey string, since time.Time, formTypes []string, limit int32) ([]domain.Assessment, error)
	QueryAll(ctx context.Context, identityKey string) ([]domain.Assessment, error)
}

// Page is one page of an identity's assessments.
type Page struct {
	Assessments []domain.Assessment `json:"assessments"`
	NextCursor  string              `json:"next_cursor,omitempty"`
}

// SyncResult is the incremental-sync response: everything submitted after
// the client's last-seen instant.
type SyncResult struct {
	Assessments []domain.Assessment `json:"assessments"`
	SyncedAt    time.Time           `json:"synced_at"`
}

type Service interface {
	Create(ctx context.Context, identityKey string, req *domain.CreateAssessmentRequest, meta domain.ClientMeta) (*domain.Assessment, error)
	List(ctx context.Context, identityKey, formType string, limit int32, cursor string, meta domain.ClientMeta) (*Page, error)
	Get(ctx context.Context, identityKey, assessmentID string, meta domain.ClientMeta) (*domain.Assessment, error)
	Delete(ctx context.Context, identityKey, assessmentID string, meta domain.ClientMeta) error
	Sync(ctx context.Context, identityKey string, since time.Time, formTypes []string, meta domain.ClientMeta) (*SyncResult, error)
	Profile(ctx context.Context, identityKey string, meta domain.ClientMeta) (*domain.ProfileStats, error)
}

type Deps struct {
	Assessments Store
	Audit       audit.Recorder
}

type service struct {
	assessments Store
	audit       audit.Recorder
	now         func() time.Time
}

func NewService(deps Deps) Service {
	return &service{
		assessments: deps.Assessments,
		audit:       deps.Audit,
		now:         time.Now,
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	syncLimit       = 500
)

func (s *service) Create(ctx context.Context, identityKey string, req *domain.CreateAssessmentRequest, meta domain.ClientMeta) (*domain.Assessment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", err, domain.ErrBadRequest)
	}
	now := s.now().UTC()
	submitted := req.SubmissionDate
	if submitted.IsZero() {
		submitted = now
	}
	a := &domain.Assessment{
		AssessmentID:   id.New(),
		IdentityKey:    identityKey,
		FormType:       req.FormType,
		SubmissionDate: submitted.UTC(),
		Scores:         req.Scores,
		FormData:       req.FormData,
		Metrics:        req.Metrics,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.assessments.Put(ctx, a); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, identityKey, domain.EventDataAccess, true, "assessment created", meta)
	return a, nil
}

func (s *service) List(ctx context.Context, identityKey, formType string, limit int32, cursor string, meta domain.ClientMeta) (*Page, error) {
	if formType != "" && formType != domain.FormTypeHealth && formType != domain.FormTypeLongevity {
		return nil, fmt.Errorf("unknown form type %q: %w", formType, domain.ErrBadRequest)
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	assessments, next, err := s.assessments.QueryPage(ctx, identityKey, formType, limit, cursor)
	if err != nil {
		return nil, err
	}
	if assessments == nil {
		assessments = []domain.Assessment{}
	}
	s.audit.Record(ctx, identityKey, domain.EventDataAccess, true, "assessments listed", meta)
	return &Page{Assessments: assessments, NextCursor: next}, nil
}

// Get returns the assessment only when it belongs to the authenticated
// identity. A foreign assessment is indistinguishable from a missing one:
// both come back ErrNotFound, and the mismatch is recorded as an ownership
// violation.
func (s *service) Get(ctx context.Context, identityKey, assessmentID string, meta domain.ClientMeta) (*domain.Assessment, error) {
	a, err := s.owned(ctx, identityKey, assessmentID, meta)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, identityKey, domain.EventDataAccess, true, "assessment read", meta)
	return a, nil
}

func (s *service) Delete(ctx context.Context, identityKey, assessmentID string, meta domain.ClientMeta) error {
	if _, err := s.owned(ctx, identityKey, assessmentID, meta); err != nil {
		return err
	}
	if err := s.assessments.Delete(ctx, assessmentID); err != nil {
		return err
	}
	s.audit.Record(ctx, identityKey, domain.EventDataAccess, true, "assessment deleted", meta)
	return nil
}

func (s *service) Sync(ctx context.Context, identityKey string, since time.Time, formTypes []string, meta domain.ClientMeta) (*SyncResult, error) {
	for _, ft := range formTypes {
		if ft != domain.FormTypeHealth && ft != domain.FormTypeLongevity {
			return nil, fmt.Errorf("unknown form type %q: %w", ft, domain.ErrBadRequest)
		}
	}
	assessments, err := s.assessments.QuerySince(ctx, identityKey, since, formTypes, syncLimit)
	if err != nil {
		return nil, err
	}
	if assessments == nil {
		assessments = []domain.Assessment{}
	}
	s.audit.Record(ctx, identityKey, domain.EventDataAccess, true, "assessments synced", meta)
	return &SyncResult{Assessments: assessments, SyncedAt: s.now().UTC()}, nil
}

// Profile aggregates the identity's history into the stats block the mobile
// profile screen renders.
func (s *service) Profile(ctx context.Context, identityKey string, meta domain.ClientMeta) (*domain.ProfileStats, error) {
	all, err := s.assessments.QueryAll(ctx, identityKey)
	if err != nil {
		return nil, err
	}
	stats := &domain.ProfileStats{TotalAssessments: len(all)}
	var scoreSum float64
	var scored int
	for i := range all {
		a := &all[i]
		switch a.FormType {
		case domain.FormTypeHealth:
			stats.HealthAssessments++
		case domain.FormTypeLongevity:
			stats.LongevityAssessments++
		}
		if stats.FirstAssessment == nil || a.SubmissionDate.Before(*stats.FirstAssessment) {
			d := a.SubmissionDate
			stats.FirstAssessment = &d
		}
		if stats.LastAssessment == nil || a.SubmissionDate.After(*stats.LastAssessment) {
			d := a.SubmissionDate
			stats.LastAssessment = &d
		}
		if a.FormType == domain.FormTypeHealth && a.Scores.OverallHealth > 0 {
			scoreSum += a.Scores.OverallHealth
			scored++
		}
	}
	if scored > 0 {
		stats.AverageHealthScore = scoreSum / float64(scored)
	}
	s.audit.Record(ctx, identityKey, domain.EventDataAccess, true, "profile read", meta)
	return stats, nil
}

// owned fetches an assessment and enforces the tenancy boundary.
func (s *service) owned(ctx context.Context, identityKey, assessmentID string, meta domain.ClientMeta) (*domain.Assessment, error) {
	a, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.IdentityKey != identityKey {
		s.audit.Record(ctx, identityKey, domain.EventOwnershipViolation, false,
			"assessment "+assessmentID+" belongs to another identity", meta)
		return nil, fmt.Errorf("assessment not found: %w", domain.ErrNotFound)
	}
	return a, nil
}
