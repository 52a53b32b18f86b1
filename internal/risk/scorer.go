// Package risk computes bounded risk scores for authentication attempts.
package risk

import (
	"strings"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/useragent"
)

// Scoring weights. Each term is capped individually; the sum is capped at
// MaxScore. The distinct-IP term is a flat cutoff, not a scaling function.
const (
	MaxScore = 100

	failedAttemptWeight = 20

	priorFailureWeight = 10
	priorFailureCap    = 30

	distinctIPThreshold = 3
	distinctIPWeight    = 20

	missingUserAgentWeight    = 15
	botUserAgentWeight        = 25
	suspiciousUserAgentWeight = 20
)

// Score computes a risk score in [0,100] for a single authentication
// attempt given the bounded recent history for the same email. The
// function is pure: identical inputs always yield the identical score.
// Bounding the history window (time and row cap) is the caller's job.
func Score(attempt *models.LoginAttempt, recent []*models.LoginAttempt) int {
	score := 0

	if !attempt.Success {
		score += failedAttemptWeight
	}

	priorFailures := 0
	ips := make(map[string]struct{}, len(recent))
	for _, a := range recent {
		if !a.Success {
			priorFailures++
		}
		if a.IPAddress != "" {
			ips[a.IPAddress] = struct{}{}
		}
	}

	if penalty := priorFailures * priorFailureWeight; penalty > priorFailureCap {
		score += priorFailureCap
	} else {
		score += penalty
	}

	// Credential-stuffing signal
	if len(ips) > distinctIPThreshold {
		score += distinctIPWeight
	}

	score += userAgentPenalty(attempt.UserAgent)

	if score > MaxScore {
		score = MaxScore
	}
	return score
}

// userAgentPenalty applies the single highest applicable user-agent
// signal: confirmed bot, missing agent, or secondary suspicious pattern.
func userAgentPenalty(raw string) int {
	if strings.TrimSpace(raw) == "" {
		return missingUserAgentWeight
	}
	c := useragent.Classify(raw)
	switch {
	case c.IsBot:
		return botUserAgentWeight
	case c.Suspicious:
		return suspiciousUserAgentWeight
	}
	return 0
}
