package assessment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthtrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Put(ctx context.Context, a *domain.Assessment) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockStore) Get(ctx context.Context, assessmentID string) (*domain.Assessment, error) {
	args := m.Called(ctx, assessmentID)
	if a, _ := args.Get(0).(*domain.Assessment); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, assessmentID string) error {
	return m.Called(ctx, assessmentID).Error(0)
}
func (m *mockStore) QueryPage(ctx context.Context, identityKey, formType string, limit int32, cursor string) ([]domain.Assessment, string, error) {
	args := m.Called(ctx, identityKey, formType, limit, cursor)
	list, _ := args.Get(0).([]domain.Assessment)
	return list, args.String(1), args.Error(2)
}
func (m *mockStore) QuerySince(ctx context.Context, identityKey string, since time.Time, formTypes []string, limit int32) ([]domain.Assessment, error) {
	args := m.Called(ctx, identityKey, since, formTypes, limit)
	list, _ := args.Get(0).([]domain.Assessment)
	return list, args.Error(1)
}
func (m *mockStore) QueryAll(ctx context.Context, identityKey string) ([]domain.Assessment, error) {
	args := m.Called(ctx, identityKey)
	list, _ := args.Get(0).([]domain.Assessment)
	return list, args.Error(1)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) Record(ctx context.Context, identityKey, eventType string, success bool, detail string, meta domain.ClientMeta) {
	m.Called(ctx, identityKey, eventType, success, detail, meta)
}

// --- helpers ---

const ownerKey = "a3f1b2c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2"

func newSvc(st *mockStore, rec *mockRecorder) *service {
	rec.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	return &service{assessments: st, audit: rec, now: time.Now}
}

func ownedAssessment(id string) *domain.Assessment {
	return &domain.Assessment{
		AssessmentID:   id,
		IdentityKey:    ownerKey,
		FormType:       domain.FormTypeHealth,
		SubmissionDate: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Scores:         domain.AssessmentScores{OverallHealth: 72},
	}
}

// --- Create ---

func TestCreate_HappyPath(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	var stored *domain.Assessment
	st.On("Put", mock.Anything, mock.AnythingOfType("*domain.Assessment")).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.Assessment)
	}).Return(nil)

	req := &domain.CreateAssessmentRequest{
		FormType: domain.FormTypeHealth,
		Scores:   domain.AssessmentScores{OverallHealth: 81, BMI: 23.4},
		FormData: `{"q1":"yes"}`,
	}
	a, err := newSvc(st, rec).Create(context.Background(), ownerKey, req, domain.ClientMeta{})

	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, a.AssessmentID)
	assert.Equal(t, ownerKey, stored.IdentityKey)
	assert.Equal(t, domain.FormTypeHealth, stored.FormType)
	assert.False(t, stored.SubmissionDate.IsZero())
	assert.Equal(t, 81.0, stored.Scores.OverallHealth)
}

func TestCreate_UnknownFormTypeRejected(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	req := &domain.CreateAssessmentRequest{FormType: "cardio"}
	_, err := newSvc(st, rec).Create(context.Background(), ownerKey, req, domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	st.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestCreate_MissingFormTypeRejected(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	_, err := newSvc(st, rec).Create(context.Background(), ownerKey, &domain.CreateAssessmentRequest{}, domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestCreate_ExplicitSubmissionDateKept(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	when := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)
	var stored *domain.Assessment
	st.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.Assessment)
	}).Return(nil)

	req := &domain.CreateAssessmentRequest{FormType: domain.FormTypeLongevity, SubmissionDate: when}
	_, err := newSvc(st, rec).Create(context.Background(), ownerKey, req, domain.ClientMeta{})

	require.NoError(t, err)
	assert.True(t, stored.SubmissionDate.Equal(when))
}

// --- List ---

func TestList_DefaultsAndPassthrough(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("QueryPage", mock.Anything, ownerKey, "", int32(20), "").
		Return([]domain.Assessment{*ownedAssessment("a1")}, "next", nil)

	page, err := newSvc(st, rec).List(context.Background(), ownerKey, "", 0, "", domain.ClientMeta{})

	require.NoError(t, err)
	assert.Len(t, page.Assessments, 1)
	assert.Equal(t, "next", page.NextCursor)
}

func TestList_LimitCapped(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("QueryPage", mock.Anything, ownerKey, "", int32(100), "").Return(nil, "", nil)

	page, err := newSvc(st, rec).List(context.Background(), ownerKey, "", 1000, "", domain.ClientMeta{})

	require.NoError(t, err)
	assert.NotNil(t, page.Assessments)
	assert.Empty(t, page.Assessments)
}

func TestList_BadFormType(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	_, err := newSvc(st, rec).List(context.Background(), ownerKey, "cardio", 0, "", domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	st.AssertNotCalled(t, "QueryPage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- Get / Delete ownership ---

func TestGet_Owned(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("Get", mock.Anything, "a1").Return(ownedAssessment("a1"), nil)

	a, err := newSvc(st, rec).Get(context.Background(), ownerKey, "a1", domain.ClientMeta{})

	require.NoError(t, err)
	assert.Equal(t, "a1", a.AssessmentID)
}

func TestGet_ForeignLooksLikeMissing(t *testing.T) {
	st := &mockStore{}
	rec := &mockRecorder{}
	rec.On("Record", mock.Anything, "other-identity", domain.EventOwnershipViolation, false, mock.Anything, mock.Anything).Once()

	st.On("Get", mock.Anything, "a1").Return(ownedAssessment("a1"), nil)

	svc := &service{assessments: st, audit: rec, now: time.Now}
	_, err := svc.Get(context.Background(), "other-identity", "a1", domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	rec.AssertExpectations(t)
}

func TestGet_Missing(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("Get", mock.Anything, "gone").Return(nil, domain.ErrNotFound)

	_, err := newSvc(st, rec).Get(context.Background(), ownerKey, "gone", domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDelete_Owned(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("Get", mock.Anything, "a1").Return(ownedAssessment("a1"), nil)
	st.On("Delete", mock.Anything, "a1").Return(nil)

	err := newSvc(st, rec).Delete(context.Background(), ownerKey, "a1", domain.ClientMeta{})

	require.NoError(t, err)
	st.AssertCalled(t, "Delete", mock.Anything, "a1")
}

func TestDelete_ForeignNotDeleted(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("Get", mock.Anything, "a1").Return(ownedAssessment("a1"), nil)

	err := newSvc(st, rec).Delete(context.Background(), "other-identity", "a1", domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	st.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// --- Sync ---

func TestSync_FiltersPassedThrough(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	st.On("QuerySince", mock.Anything, ownerKey, since, []string{"health"}, int32(500)).
		Return([]domain.Assessment{*ownedAssessment("a1")}, nil)

	result, err := newSvc(st, rec).Sync(context.Background(), ownerKey, since, []string{"health"}, domain.ClientMeta{})

	require.NoError(t, err)
	assert.Len(t, result.Assessments, 1)
	assert.False(t, result.SyncedAt.IsZero())
}

func TestSync_UnknownTypeRejected(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	_, err := newSvc(st, rec).Sync(context.Background(), ownerKey, time.Time{}, []string{"cardio"}, domain.ClientMeta{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	st.AssertNotCalled(t, "QuerySince", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSync_EmptyResultIsEmptySlice(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("QuerySince", mock.Anything, ownerKey, mock.Anything, mock.Anything, int32(500)).Return(nil, nil)

	result, err := newSvc(st, rec).Sync(context.Background(), ownerKey, time.Time{}, nil, domain.ClientMeta{})

	require.NoError(t, err)
	assert.NotNil(t, result.Assessments)
	assert.Empty(t, result.Assessments)
}

// --- Profile ---

func TestProfile_Aggregates(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st.On("QueryAll", mock.Anything, ownerKey).Return([]domain.Assessment{
		{FormType: domain.FormTypeHealth, SubmissionDate: early, Scores: domain.AssessmentScores{OverallHealth: 60}},
		{FormType: domain.FormTypeHealth, SubmissionDate: late, Scores: domain.AssessmentScores{OverallHealth: 80}},
		{FormType: domain.FormTypeLongevity, SubmissionDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}, nil)

	stats, err := newSvc(st, rec).Profile(context.Background(), ownerKey, domain.ClientMeta{})

	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAssessments)
	assert.Equal(t, 2, stats.HealthAssessments)
	assert.Equal(t, 1, stats.LongevityAssessments)
	require.NotNil(t, stats.FirstAssessment)
	require.NotNil(t, stats.LastAssessment)
	assert.True(t, stats.FirstAssessment.Equal(early))
	assert.True(t, stats.LastAssessment.Equal(late))
	assert.InDelta(t, 70.0, stats.AverageHealthScore, 0.001)
}

func TestProfile_Empty(t *testing.T) {
	st, rec := &mockStore{}, &mockRecorder{}

	st.On("QueryAll", mock.Anything, ownerKey).Return(nil, nil)

	stats, err := newSvc(st, rec).Profile(context.Background(), ownerKey, domain.ClientMeta{})

	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalAssessments)
	assert.Nil(t, stats.FirstAssessment)
	assert.Nil(t, stats.LastAssessment)
	assert.Zero(t, stats.AverageHealthScore)
}
