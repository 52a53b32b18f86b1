package services

import (
	"context"
	"testing"
	"time"

	"github.com/bluelight-hub/authguard/internal/config"
	"github.com/bluelight-hub/authguard/internal/geo"
	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chromeOnMac   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariOnPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

func sessionTestConfig() config.SecurityConfig {
	return config.SecurityConfig{
		LockoutWindow:            15 * time.Minute,
		MaxConcurrentSessions:    5,
		HighRiskSessionThreshold: 70,
		HighActivityThreshold:    1000,
		FailedLoginFlagThreshold: 5,
		RecentSessionLookback:    30 * 24 * time.Hour,
		RapidLocationWindow:      30 * time.Minute,
	}
}

type sessionFixture struct {
	sessions   *MockSessionRepository
	attempts   *MockLoginAttemptRepository
	sink       *CaptureSink
	dispatcher *CaptureDispatcher
	svc        *SessionService
}

func newSessionFixture(resolver geo.Resolver) *sessionFixture {
	f := &sessionFixture{
		sessions:   &MockSessionRepository{},
		attempts:   &MockLoginAttemptRepository{},
		sink:       &CaptureSink{},
		dispatcher: &CaptureDispatcher{},
	}
	if resolver == nil {
		resolver = geo.NullResolver{}
	}
	f.svc = NewSessionService(
		f.sessions, f.attempts, resolver, sessionTestConfig(),
		f.sink, f.dispatcher, testLogger(), testAuditLogger(),
	)
	return f
}

func priorSession(id, userAgent, location string, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		UserID:    "user-1",
		Email:     "user@example.com",
		UserAgent: userAgent,
		Location:  location,
		Active:    true,
		CreatedAt: createdAt,
	}
}

func TestStartSession_PopulatesDeviceAndEmitsEvent(t *testing.T) {
	f := newSessionFixture(&StubResolver{Location: &geo.Location{City: "Berlin", Country: "DE"}})

	var created *models.Session
	f.sessions.CreateFunc = func(ctx context.Context, session *models.Session) error {
		created = session
		return nil
	}

	user := &models.User{ID: "user-1", Email: "user@example.com"}
	session, err := f.svc.StartSession(context.Background(), user, "203.0.113.10", chromeOnMac, "password")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "desktop", session.DeviceType)
	assert.Equal(t, "Berlin, DE", session.Location)
	assert.True(t, session.Active)
	assert.Contains(t, f.sink.Names(), models.EventSessionCreated)
}

func TestEnhanceSession_UnknownSession(t *testing.T) {
	f := newSessionFixture(nil)
	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return nil, models.ErrNotFound
	}

	_, err := f.svc.EnhanceSession(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestEnhanceSession_FirstSessionFlagsDeviceAndLocationAsNew(t *testing.T) {
	f := newSessionFixture(nil)
	current := priorSession("s1", chromeOnMac, "Berlin, DE", time.Now())
	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current}, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s1")

	require.NoError(t, err)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagNewDevice)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagNewLocation)
	assert.NotContains(t, profile.SuspiciousFlags, models.FlagRapidLocationChange)
	assert.Equal(t, flagScoreNewDevice+flagScoreNewLocation, profile.RiskScore)
	assert.Equal(t, "desktop", profile.DeviceType)
}

func TestEnhanceSession_IdenticalRepeatSessionStaysClean(t *testing.T) {
	f := newSessionFixture(nil)
	now := time.Now()
	current := priorSession("s2", chromeOnMac, "Berlin, DE", now)
	earlier := priorSession("s1", chromeOnMac, "Berlin, DE", now.Add(-24*time.Hour))

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current, earlier}, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s2")

	require.NoError(t, err)
	assert.Empty(t, profile.SuspiciousFlags)
	assert.Equal(t, 0, profile.RiskScore)
}

func TestEnhanceSession_NewDeviceAndLocationFlagged(t *testing.T) {
	f := newSessionFixture(nil)
	now := time.Now()
	current := priorSession("s2", safariOnPhone, "Tokyo, JP", now)
	earlier := priorSession("s1", chromeOnMac, "Berlin, DE", now.Add(-24*time.Hour))

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current, earlier}, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s2")

	require.NoError(t, err)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagNewDevice)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagNewLocation)
	assert.NotContains(t, profile.SuspiciousFlags, models.FlagRapidLocationChange)
	assert.Equal(t, flagScoreNewDevice+flagScoreNewLocation, profile.RiskScore)
}

func TestEnhanceSession_RapidLocationChange(t *testing.T) {
	f := newSessionFixture(nil)
	now := time.Now()
	current := priorSession("s2", chromeOnMac, "Tokyo, JP", now)
	earlier := priorSession("s1", chromeOnMac, "Berlin, DE", now.Add(-10*time.Minute))

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current, earlier}, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s2")

	require.NoError(t, err)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagRapidLocationChange)
}

func TestEnhanceSession_ActivityAndConcurrencyFlags(t *testing.T) {
	f := newSessionFixture(nil)
	now := time.Now()
	current := priorSession("s2", chromeOnMac, "", now)
	current.ActivityCount = 5000
	earlier := priorSession("s1", chromeOnMac, "", now.Add(-24*time.Hour))

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current, earlier}, nil
	}
	f.sessions.CountActiveByUserFunc = func(ctx context.Context, userID string) (int, error) {
		return 7, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s2")

	require.NoError(t, err)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagHighActivityRate)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagConcurrentSessionLimit)
	assert.NotContains(t, profile.SuspiciousFlags, models.FlagNewDevice)
}

func TestEnhanceSession_FailedLoginsAndBadUATripAlert(t *testing.T) {
	f := newSessionFixture(nil)
	now := time.Now()
	current := priorSession("s2", "curl/8.4.0", "Tokyo, JP", now)
	current.ActivityCount = 5000
	earlier := priorSession("s1", chromeOnMac, "Berlin, DE", now.Add(-10*time.Minute))

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current, earlier}, nil
	}
	f.sessions.CountActiveByUserFunc = func(ctx context.Context, userID string) (int, error) {
		return 7, nil
	}
	f.attempts.FailedCountByEmailFunc = func(ctx context.Context, email string, since time.Time) (int, error) {
		return 6, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s2")

	require.NoError(t, err)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagSuspiciousUserAgent)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagHighFailedLoginCount)
	assert.Equal(t, maxSessionRiskScore, profile.RiskScore)
	assert.Contains(t, f.sink.Names(), models.EventSessionRiskDetected)

	assert.Eventually(t, func() bool {
		for _, c := range f.dispatcher.Categories() {
			if c == notify.CategoryHighRiskSession {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestEnhanceSession_FailedLoginsFromSessionIPTripFlag(t *testing.T) {
	f := newSessionFixture(nil)
	now := time.Now()
	current := priorSession("s2", chromeOnMac, "Berlin, DE", now)
	current.IPAddress = "203.0.113.10"
	earlier := priorSession("s1", chromeOnMac, "Berlin, DE", now.Add(-24*time.Hour))

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return []*models.Session{current, earlier}, nil
	}
	f.attempts.FailedCountByEmailFunc = func(ctx context.Context, email string, since time.Time) (int, error) {
		return 0, nil
	}
	f.attempts.FailedCountByIPFunc = func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
		assert.Equal(t, "203.0.113.10", ipAddress)
		return 8, nil
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s2")

	require.NoError(t, err)
	assert.Contains(t, profile.SuspiciousFlags, models.FlagHighFailedLoginCount)
}

func TestEnhanceSession_HistoryErrorDegradesGracefully(t *testing.T) {
	f := newSessionFixture(nil)
	current := priorSession("s1", chromeOnMac, "Berlin, DE", time.Now())

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return current, nil
	}
	f.sessions.RecentByUserFunc = func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.Session, error) {
		return nil, models.ErrInternalServer
	}

	profile, err := f.svc.EnhanceSession(context.Background(), "s1")

	require.NoError(t, err)
	assert.NotContains(t, profile.SuspiciousFlags, models.FlagNewDevice)
}

func TestHeartbeatAndTerminate(t *testing.T) {
	f := newSessionFixture(nil)

	require.NoError(t, f.svc.Heartbeat(context.Background(), "s1"))
	require.NoError(t, f.svc.TerminateSession(context.Background(), "s1", "logout"))

	names := f.sink.Names()
	assert.Contains(t, names, models.EventSessionHeartbeat)
	assert.Contains(t, names, models.EventSessionTerminated)
}

func TestTerminateSession_Unknown(t *testing.T) {
	f := newSessionFixture(nil)
	f.sessions.TerminateFunc = func(ctx context.Context, sessionID string) error {
		return models.ErrNotFound
	}

	err := f.svc.TerminateSession(context.Background(), "missing", "logout")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
