package risk_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/risk"
	"github.com/stretchr/testify/assert"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func attempt(success bool, userAgent string) *models.LoginAttempt {
	return &models.LoginAttempt{
		Email:       "test@example.com",
		IPAddress:   "203.0.113.10",
		UserAgent:   userAgent,
		Success:     success,
		AttemptTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func failures(n int, ip string) []*models.LoginAttempt {
	out := make([]*models.LoginAttempt, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.LoginAttempt{
			Email:     "test@example.com",
			IPAddress: ip,
			UserAgent: browserUA,
			Success:   false,
		})
	}
	return out
}

func TestScore_SuccessfulAttemptNoHistory(t *testing.T) {
	score := risk.Score(attempt(true, browserUA), nil)
	assert.Equal(t, 0, score)
}

func TestScore_FailedAttemptAddsBaseWeight(t *testing.T) {
	score := risk.Score(attempt(false, browserUA), nil)
	assert.Equal(t, 20, score)
}

func TestScore_PriorFailuresCappedAt30(t *testing.T) {
	assert.Equal(t, 10, risk.Score(attempt(true, browserUA), failures(1, "203.0.113.10")))
	assert.Equal(t, 30, risk.Score(attempt(true, browserUA), failures(3, "203.0.113.10")))
	// Term is capped, not linear beyond 3 failures
	assert.Equal(t, 30, risk.Score(attempt(true, browserUA), failures(8, "203.0.113.10")))
}

func TestScore_DistinctIPCutoff(t *testing.T) {
	var history []*models.LoginAttempt
	for i := 0; i < 3; i++ {
		history = append(history, &models.LoginAttempt{
			IPAddress: fmt.Sprintf("203.0.113.%d", i+1),
			UserAgent: browserUA,
			Success:   true,
		})
	}
	// 3 distinct IPs: below the cutoff
	assert.Equal(t, 0, risk.Score(attempt(true, browserUA), history))

	history = append(history, &models.LoginAttempt{
		IPAddress: "203.0.113.4",
		UserAgent: browserUA,
		Success:   true,
	})
	// more than 3 distinct IPs: flat +20 regardless of how many beyond
	assert.Equal(t, 20, risk.Score(attempt(true, browserUA), history))
}

func TestScore_UserAgentSignals(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      int
	}{
		{"missing", "", 15},
		{"known bot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", 25},
		{"scripting tool", "python-requests/2.31.0", 20},
		{"regular browser", browserUA, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, risk.Score(attempt(true, tt.userAgent), nil))
		})
	}
}

func TestScore_CappedAt100(t *testing.T) {
	var history []*models.LoginAttempt
	for i := 0; i < 10; i++ {
		history = append(history, &models.LoginAttempt{
			IPAddress: fmt.Sprintf("198.51.100.%d", i+1),
			Success:   false,
		})
	}
	score := risk.Score(attempt(false, ""), history)
	assert.LessOrEqual(t, score, 100)
	// 20 failed + 30 prior cap + 20 distinct IPs + 15 missing UA
	assert.Equal(t, 85, score)
}

func TestScore_Deterministic(t *testing.T) {
	in := attempt(false, "curl/8.4.0")
	history := failures(4, "203.0.113.10")

	first := risk.Score(in, history)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, risk.Score(in, history))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.LessOrEqual(t, first, 100)
}
