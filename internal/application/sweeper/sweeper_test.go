package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthtrack-api/internal/domain"
	"github.com/stretchr/testify/mock"
)

type mockVerificationSweep struct{ mock.Mock }

func (m *mockVerificationSweep) DeleteExpired(ctx context.Context, nowUnix int64) (int, error) {
	args := m.Called(ctx, nowUnix)
	return args.Int(0), args.Error(1)
}

type mockSessionSweep struct{ mock.Mock }

func (m *mockSessionSweep) DeleteExpired(ctx context.Context, nowUnix int64) (int, error) {
	args := m.Called(ctx, nowUnix)
	return args.Int(0), args.Error(1)
}

type mockRateLimitSweep struct{ mock.Mock }

func (m *mockRateLimitSweep) DeleteStale(ctx context.Context, cutoffUnix int64) (int, error) {
	args := m.Called(ctx, cutoffUnix)
	return args.Int(0), args.Error(1)
}

type mockAuditSweep struct{ mock.Mock }

func (m *mockAuditSweep) ListOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, cutoff, limit)
	list, _ := args.Get(0).([]domain.AuditEvent)
	return list, args.Error(1)
}
func (m *mockAuditSweep) Delete(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) ArchiveBatch(ctx context.Context, events []domain.AuditEvent, at time.Time) (string, error) {
	args := m.Called(ctx, events, at)
	return args.String(0), args.Error(1)
}

func fixedNow() time.Time {
	return time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
}

func newSweeper(vs *mockVerificationSweep, ss *mockSessionSweep, rl *mockRateLimitSweep, as *mockAuditSweep, ar Archiver) *Sweeper {
	s := New(Deps{
		Verifications:  vs,
		Sessions:       ss,
		RateLimits:     rl,
		Audit:          as,
		Archiver:       ar,
		Interval:       time.Hour,
		AuditRetention: 30 * 24 * time.Hour,
		RateLimitGrace: 24 * time.Hour,
	})
	s.now = fixedNow
	return s
}

func TestSweep_AllTablesSwept(t *testing.T) {
	vs, ss, rl, as := &mockVerificationSweep{}, &mockSessionSweep{}, &mockRateLimitSweep{}, &mockAuditSweep{}
	now := fixedNow()

	vs.On("DeleteExpired", mock.Anything, now.Unix()).Return(3, nil)
	ss.On("DeleteExpired", mock.Anything, now.Unix()).Return(1, nil)
	rl.On("DeleteStale", mock.Anything, now.Add(-24*time.Hour).Unix()).Return(7, nil)
	as.On("ListOlderThan", mock.Anything, now.Add(-30*24*time.Hour), int32(200)).Return(nil, nil)

	newSweeper(vs, ss, rl, as, nil).Sweep(context.Background())

	vs.AssertExpectations(t)
	ss.AssertExpectations(t)
	rl.AssertExpectations(t)
	as.AssertExpectations(t)
}

func TestSweep_OneFailureDoesNotBlockOthers(t *testing.T) {
	vs, ss, rl, as := &mockVerificationSweep{}, &mockSessionSweep{}, &mockRateLimitSweep{}, &mockAuditSweep{}

	vs.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, errors.New("dynamo down"))
	ss.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	rl.On("DeleteStale", mock.Anything, mock.Anything).Return(0, nil)
	as.On("ListOlderThan", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	newSweeper(vs, ss, rl, as, nil).Sweep(context.Background())

	ss.AssertCalled(t, "DeleteExpired", mock.Anything, mock.Anything)
	rl.AssertCalled(t, "DeleteStale", mock.Anything, mock.Anything)
	as.AssertCalled(t, "ListOlderThan", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepAudit_ArchivesBeforeDeleting(t *testing.T) {
	vs, ss, rl, as := &mockVerificationSweep{}, &mockSessionSweep{}, &mockRateLimitSweep{}, &mockAuditSweep{}
	ar := &mockArchiver{}

	vs.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	ss.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	rl.On("DeleteStale", mock.Anything, mock.Anything).Return(0, nil)

	old := []domain.AuditEvent{{EventID: "e1"}, {EventID: "e2"}}
	as.On("ListOlderThan", mock.Anything, mock.Anything, int32(200)).Return(old, nil)
	ar.On("ArchiveBatch", mock.Anything, old, mock.Anything).Return("audit/2026/03/02/060000.json", nil)
	as.On("Delete", mock.Anything, "e1").Return(nil)
	as.On("Delete", mock.Anything, "e2").Return(nil)

	newSweeper(vs, ss, rl, as, ar).Sweep(context.Background())

	ar.AssertExpectations(t)
	as.AssertExpectations(t)
}

func TestSweepAudit_ArchiveFailureKeepsRows(t *testing.T) {
	vs, ss, rl, as := &mockVerificationSweep{}, &mockSessionSweep{}, &mockRateLimitSweep{}, &mockAuditSweep{}
	ar := &mockArchiver{}

	vs.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	ss.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	rl.On("DeleteStale", mock.Anything, mock.Anything).Return(0, nil)

	old := []domain.AuditEvent{{EventID: "e1"}}
	as.On("ListOlderThan", mock.Anything, mock.Anything, mock.Anything).Return(old, nil)
	ar.On("ArchiveBatch", mock.Anything, old, mock.Anything).Return("", errors.New("s3 down"))

	newSweeper(vs, ss, rl, as, ar).Sweep(context.Background())

	as.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSweepAudit_NoArchiverStillDeletes(t *testing.T) {
	vs, ss, rl, as := &mockVerificationSweep{}, &mockSessionSweep{}, &mockRateLimitSweep{}, &mockAuditSweep{}

	vs.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	ss.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	rl.On("DeleteStale", mock.Anything, mock.Anything).Return(0, nil)

	old := []domain.AuditEvent{{EventID: "e1"}}
	as.On("ListOlderThan", mock.Anything, mock.Anything, mock.Anything).Return(old, nil)
	as.On("Delete", mock.Anything, "e1").Return(nil)

	newSweeper(vs, ss, rl, as, nil).Sweep(context.Background())

	as.AssertCalled(t, "Delete", mock.Anything, "e1")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	vs, ss, rl, as := &mockVerificationSweep{}, &mockSessionSweep{}, &mockRateLimitSweep{}, &mockAuditSweep{}

	vs.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	ss.On("DeleteExpired", mock.Anything, mock.Anything).Return(0, nil)
	rl.On("DeleteStale", mock.Anything, mock.Anything).Return(0, nil)
	as.On("ListOlderThan", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newSweeper(vs, ss, rl, as, nil).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
