package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/ratelimit"
	"github.com/bluelight-hub/authguard/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		// Docker not available; integration coverage is skipped
		os.Exit(0)
	}
	testDB = db

	code := m.Run()
	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func recordAttempt(t *testing.T, repo *repositories.LoginAttemptRepository, email, ip string, success bool, when time.Time) {
	t.Helper()
	attempt := &models.LoginAttempt{
		ID:          uuid.NewString(),
		Email:       email,
		IPAddress:   ip,
		UserAgent:   "curl/8.4.0",
		Success:     success,
		Metadata:    map[string]string{"country": "DE"},
		AttemptTime: when,
	}
	require.NoError(t, repo.Record(context.Background(), attempt))
}

func TestLoginAttemptRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewLoginAttemptRepository(testDB.DB)
	now := time.Now().UTC()

	recordAttempt(t, repo, "user@example.com", "203.0.113.1", false, now.Add(-10*time.Minute))
	recordAttempt(t, repo, "user@example.com", "203.0.113.2", false, now.Add(-5*time.Minute))
	recordAttempt(t, repo, "user@example.com", "203.0.113.2", true, now)
	recordAttempt(t, repo, "other@example.com", "203.0.113.9", false, now)

	recent, err := repo.RecentByEmail(ctx, "user@example.com", now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// newest first
	assert.True(t, recent[0].Success)
	assert.Equal(t, "DE", recent[0].Metadata["country"])

	failed, err := repo.FailedCountByEmail(ctx, "user@example.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, failed)

	events, err := repo.RecentEvents(ctx, "user@example.com", now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventLoginSuccess, events[0].Type)
	assert.Equal(t, models.EventLoginFailure, events[1].Type)

	stats, err := repo.StatsByEmail(ctx, "user@example.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 2, stats.FailedAttempts)
	assert.Equal(t, 2, stats.DistinctIPs)
}

func TestLoginAttemptRepository_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewLoginAttemptRepository(testDB.DB)
	now := time.Now().UTC()

	recordAttempt(t, repo, "user@example.com", "203.0.113.1", false, now.Add(-100*24*time.Hour))
	recordAttempt(t, repo, "user@example.com", "203.0.113.1", false, now)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.RecentByEmail(ctx, "user@example.com", now.Add(-200*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestLockoutRepository_WindowedCounter(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewLockoutRepository(testDB.DB)
	windowStart := time.Now().Add(-15 * time.Minute)

	for i := 1; i <= 3; i++ {
		n, err := repo.IncrementFailures(ctx, "user@example.com", windowStart)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	// a counter last touched before the window restarts at 1
	n, err := repo.IncrementFailures(ctx, "user@example.com", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLockoutRepository_LockAndClear(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewLockoutRepository(testDB.DB)
	until := time.Now().Add(30 * time.Minute).UTC()

	_, err := repo.IncrementFailures(ctx, "user@example.com", time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Lock(ctx, "user@example.com", until))

	failures, lockedUntil, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	require.NotNil(t, lockedUntil)
	assert.WithinDuration(t, until, *lockedUntil, time.Second)

	// not yet expired, the guarded update must not fire
	cleared, err := repo.ClearExpired(ctx, "user@example.com", time.Now())
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = repo.ClearExpired(ctx, "user@example.com", until.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, cleared)

	_, lockedUntil, err = repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Nil(t, lockedUntil)
}

func TestRuleRepository_CRUDAndFilter(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewRuleRepository(testDB.DB)

	rule := &models.ThreatRule{
		ID:            uuid.NewString(),
		Name:          "custom brute force",
		ConditionType: models.RuleTypeBruteForce,
		Severity:      models.SeverityHigh,
		Status:        models.RuleStatusTesting,
		Config:        map[string]any{"max_failures": float64(3)},
		Tags:          []string{"custom"},
		Version:       1,
	}
	require.NoError(t, repo.Create(ctx, rule))

	got, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "custom brute force", got.Name)
	assert.Equal(t, float64(3), got.Config["max_failures"])
	assert.Equal(t, []string{"custom"}, got.Tags)

	listed, err := repo.List(ctx, models.RuleFilter{Tag: "custom", Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	got.Description = "tuned down threshold"
	require.NoError(t, repo.Update(ctx, got))
	updated, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// seeded defaults remain enabled
	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 5)

	require.NoError(t, repo.Delete(ctx, rule.ID))
	_, err = repo.GetByID(ctx, rule.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionRepository_RiskProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewSessionRepository(testDB.DB)
	now := time.Now().UTC()

	session := &models.Session{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		Email:           "user@example.com",
		IPAddress:       "203.0.113.1",
		UserAgent:       "curl/8.4.0",
		LoginMethod:     "password",
		SuspiciousFlags: []string{},
		ActivityCount:   1,
		Active:          true,
		LastActivity:    now,
		CreatedAt:       now,
	}
	require.NoError(t, repo.Create(ctx, session))

	profile := &models.SessionRiskProfile{
		SessionID:       session.ID,
		DeviceType:      "desktop",
		Browser:         "curl",
		OS:              "linux",
		SuspiciousFlags: []string{models.FlagSuspiciousUserAgent},
		RiskScore:       20,
	}
	require.NoError(t, repo.UpdateRiskProfile(ctx, session.ID, profile))

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.RiskScore)
	assert.Equal(t, []string{models.FlagSuspiciousUserAgent}, got.SuspiciousFlags)

	require.NoError(t, repo.Touch(ctx, session.ID))
	touched, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, touched.ActivityCount)

	count, err := repo.CountActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.Terminate(ctx, session.ID))
	count, err = repo.CountActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSessionRepository_ExpireStale(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewSessionRepository(testDB.DB)
	now := time.Now().UTC()

	newSession := func(id string, lastActivity, createdAt time.Time) *models.Session {
		return &models.Session{
			ID:              id,
			UserID:          "user-1",
			Email:           "user@example.com",
			IPAddress:       "203.0.113.1",
			UserAgent:       "curl/8.4.0",
			LoginMethod:     "password",
			SuspiciousFlags: []string{},
			ActivityCount:   1,
			Active:          true,
			LastActivity:    lastActivity,
			CreatedAt:       createdAt,
		}
	}

	idle := newSession(uuid.NewString(), now.Add(-2*time.Hour), now.Add(-2*time.Hour))
	old := newSession(uuid.NewString(), now, now.Add(-48*time.Hour))
	fresh := newSession(uuid.NewString(), now, now)
	for _, s := range []*models.Session{idle, old, fresh} {
		require.NoError(t, repo.Create(ctx, s))
	}

	expired, err := repo.ExpireStale(ctx, now.Add(-30*time.Minute), now.Add(-12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), expired)

	count, err := repo.CountActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestPostgresCounterStore_SharedWindowCounts(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	store := ratelimit.NewPostgresStore(testDB.DB)

	for i := int64(1); i <= 3; i++ {
		n, err := store.Incr(ctx, "login:abc", 100)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := store.Get(ctx, "login:abc", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// other windows are independent
	n, err = store.Get(ctx, "login:abc", 101)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
