package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bluelight-hub/authguard/internal/geo"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/notify"
	pkglogger "github.com/bluelight-hub/authguard/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordFunc             func(ctx context.Context, attempt *models.LoginAttempt) error
	RecentByEmailFunc      func(ctx context.Context, email string, since time.Time, limit int) ([]*models.LoginAttempt, error)
	RecentEventsFunc       func(ctx context.Context, email string, since time.Time, limit int) ([]models.RecentEvent, error)
	FailedCountByEmailFunc func(ctx context.Context, email string, since time.Time) (int, error)
	FailedCountByIPFunc    func(ctx context.Context, ipAddress string, since time.Time) (int, error)
	StatsByEmailFunc       func(ctx context.Context, email string, since time.Time) (*models.LoginAttemptStats, error)
}

func (m *MockLoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptRepository) RecentByEmail(ctx context.Context, email string, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	if m.RecentByEmailFunc != nil {
		return m.RecentByEmailFunc(ctx, email, since, limit)
	}
	return nil, nil
}

func (m *MockLoginAttemptRepository) RecentEvents(ctx context.Context, email string, since time.Time, limit int) ([]models.RecentEvent, error) {
	if m.RecentEventsFunc != nil {
		return m.RecentEventsFunc(ctx, email, since, limit)
	}
	return nil, nil
}

func (m *MockLoginAttemptRepository) FailedCountByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	if m.FailedCountByEmailFunc != nil {
		return m.FailedCountByEmailFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockLoginAttemptRepository) FailedCountByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	if m.FailedCountByIPFunc != nil {
		return m.FailedCountByIPFunc(ctx, ipAddress, since)
	}
	return 0, nil
}

func (m *MockLoginAttemptRepository) StatsByEmail(ctx context.Context, email string, since time.Time) (*models.LoginAttemptStats, error) {
	if m.StatsByEmailFunc != nil {
		return m.StatsByEmailFunc(ctx, email, since)
	}
	return &models.LoginAttemptStats{Email: email}, nil
}

// MockLockoutRepository implements LockoutRepository for testing
type MockLockoutRepository struct {
	GetFunc               func(ctx context.Context, email string) (int, *time.Time, error)
	IncrementFailuresFunc func(ctx context.Context, email string, windowStart time.Time) (int, error)
	LockFunc              func(ctx context.Context, email string, until time.Time) error
	ClearExpiredFunc      func(ctx context.Context, email string, now time.Time) (bool, error)
	ResetFunc             func(ctx context.Context, email string) error
}

func (m *MockLockoutRepository) Get(ctx context.Context, email string) (int, *time.Time, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, email)
	}
	return 0, nil, nil
}

func (m *MockLockoutRepository) IncrementFailures(ctx context.Context, email string, windowStart time.Time) (int, error) {
	if m.IncrementFailuresFunc != nil {
		return m.IncrementFailuresFunc(ctx, email, windowStart)
	}
	return 1, nil
}

func (m *MockLockoutRepository) Lock(ctx context.Context, email string, until time.Time) error {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, email, until)
	}
	return nil
}

func (m *MockLockoutRepository) ClearExpired(ctx context.Context, email string, now time.Time) (bool, error) {
	if m.ClearExpiredFunc != nil {
		return m.ClearExpiredFunc(ctx, email, now)
	}
	return false, nil
}

func (m *MockLockoutRepository) Reset(ctx context.Context, email string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, email)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc            func(ctx context.Context, session *models.Session) error
	GetByIDFunc           func(ctx context.Context, id string) (*models.Session, error)
	RecentByUserFunc      func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error)
	CountActiveByUserFunc func(ctx context.Context, userID string) (int, error)
	UpdateRiskProfileFunc func(ctx context.Context, sessionID string, profile *models.SessionRiskProfile) error
	TouchFunc             func(ctx context.Context, sessionID string) error
	TerminateFunc         func(ctx context.Context, sessionID string) error
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) RecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
	if m.RecentByUserFunc != nil {
		return m.RecentByUserFunc(ctx, userID, since, limit)
	}
	return nil, nil
}

func (m *MockSessionRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	if m.CountActiveByUserFunc != nil {
		return m.CountActiveByUserFunc(ctx, userID)
	}
	return 1, nil
}

func (m *MockSessionRepository) UpdateRiskProfile(ctx context.Context, sessionID string, profile *models.SessionRiskProfile) error {
	if m.UpdateRiskProfileFunc != nil {
		return m.UpdateRiskProfileFunc(ctx, sessionID, profile)
	}
	return nil
}

func (m *MockSessionRepository) Touch(ctx context.Context, sessionID string) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockSessionRepository) Terminate(ctx context.Context, sessionID string) error {
	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx, sessionID)
	}
	return nil
}

// MockRuleRepository implements RuleRepository for testing
type MockRuleRepository struct {
	CreateFunc      func(ctx context.Context, rule *models.ThreatRule) error
	UpdateFunc      func(ctx context.Context, rule *models.ThreatRule) error
	DeleteFunc      func(ctx context.Context, id string) error
	GetByIDFunc     func(ctx context.Context, id string) (*models.ThreatRule, error)
	ListEnabledFunc func(ctx context.Context) ([]*models.ThreatRule, error)
	ListFunc        func(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error)
}

func (m *MockRuleRepository) Create(ctx context.Context, rule *models.ThreatRule) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rule)
	}
	return nil
}

func (m *MockRuleRepository) Update(ctx context.Context, rule *models.ThreatRule) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, rule)
	}
	return nil
}

func (m *MockRuleRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockRuleRepository) GetByID(ctx context.Context, id string) (*models.ThreatRule, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockRuleRepository) ListEnabled(ctx context.Context) ([]*models.ThreatRule, error) {
	if m.ListEnabledFunc != nil {
		return m.ListEnabledFunc(ctx)
	}
	return nil, nil
}

func (m *MockRuleRepository) List(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

// MockRuleEvaluator implements RuleEvaluator for testing
type MockRuleEvaluator struct {
	EvaluateFunc func(rc models.RuleContext) []models.RuleResult
}

func (m *MockRuleEvaluator) Evaluate(rc models.RuleContext) []models.RuleResult {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(rc)
	}
	return nil
}

// MockLockoutManager implements LockoutManager for testing
type MockLockoutManager struct {
	RecordFailureFunc       func(ctx context.Context, email, ipAddress string) (*models.LockoutStatus, error)
	ResetFailedAttemptsFunc func(ctx context.Context, email string) error
}

func (m *MockLockoutManager) RecordFailure(ctx context.Context, email, ipAddress string) (*models.LockoutStatus, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, email, ipAddress)
	}
	return &models.LockoutStatus{}, nil
}

func (m *MockLockoutManager) ResetFailedAttempts(ctx context.Context, email string) error {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, email)
	}
	return nil
}

// StubResolver implements geo.Resolver with a fixed answer
type StubResolver struct {
	Location *geo.Location
	Err      error
}

func (r *StubResolver) Resolve(context.Context, string) (*geo.Location, error) {
	return r.Location, r.Err
}

func (r *StubResolver) Close() error { return nil }

// CaptureSink records emitted events for assertions
type CaptureSink struct {
	mu     sync.Mutex
	Events []string
}

func (s *CaptureSink) Emit(_ context.Context, event string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
	return nil
}

func (s *CaptureSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Events))
	copy(out, s.Events)
	return out
}

// CaptureDispatcher records dispatched alerts for assertions
type CaptureDispatcher struct {
	mu     sync.Mutex
	Alerts []notify.Alert
}

func (d *CaptureDispatcher) Dispatch(_ context.Context, alert notify.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Alerts = append(d.Alerts, alert)
	return nil
}

func (d *CaptureDispatcher) Snapshot() []notify.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notify.Alert, len(d.Alerts))
	copy(out, d.Alerts)
	return out
}

func (d *CaptureDispatcher) Categories() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.Alerts))
	for _, a := range d.Alerts {
		out = append(out, a.Category)
	}
	return out
}
