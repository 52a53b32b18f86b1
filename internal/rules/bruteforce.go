package rules

import (
	"fmt"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
)

// BruteForceRule matches when the recent-event window contains a burst of
// failed attempts: per source IP when perIP is set, per account otherwise.
type BruteForceRule struct {
	baseRule
	maxFailures int
	window      time.Duration
	perIP       bool
}

func bruteForceDefaults() map[string]any {
	return map[string]any{
		"max_failures":   5,
		"window_minutes": 15,
		"per_ip":         false,
	}
}

func newBruteForceRule(stored models.ThreatRule, cfg map[string]any) (Rule, error) {
	return &BruteForceRule{
		baseRule:    newBaseRule(stored, models.RuleTypeBruteForce),
		maxFailures: intOption(cfg, "max_failures", 5),
		window:      time.Duration(intOption(cfg, "window_minutes", 15)) * time.Minute,
		perIP:       boolOption(cfg, "per_ip", false),
	}, nil
}

func (r *BruteForceRule) Validate() error {
	if err := positive("max_failures", r.maxFailures); err != nil {
		return err
	}
	if r.window <= 0 {
		return fmt.Errorf("window_minutes must be positive")
	}
	return nil
}

func (r *BruteForceRule) Evaluate(rc models.RuleContext) models.RuleResult {
	cutoff := rc.Timestamp.Add(-r.window)

	failures := 0
	for _, ev := range rc.RecentEvents {
		if ev.Success || ev.Timestamp.Before(cutoff) {
			continue
		}
		if r.perIP && ev.IPAddress != rc.IPAddress {
			continue
		}
		failures++
	}

	if failures < r.maxFailures {
		return r.noMatch()
	}

	score := 40 + failures*10
	if score > 100 {
		score = 100
	}

	subject := rc.Email
	if r.perIP {
		subject = rc.IPAddress
	}

	return r.match(score,
		fmt.Sprintf("%d failed attempts within %s", failures, r.window),
		map[string]any{
			"failed_count": failures,
			"window":       r.window.String(),
			"subject":      subject,
			"per_ip":       r.perIP,
		},
		"lock_account", "notify_user",
	)
}
