package rules

import (
	"fmt"

	"github.com/bluelight-hub/authguard/internal/models"
)

// TimeAnomalyRule matches a login at an hour far outside the account's
// historical pattern. Hours are compared on a 24-hour circle so 23:00
// and 01:00 are two hours apart, not twenty-two.
type TimeAnomalyRule struct {
	baseRule
	minSamples     int
	toleranceHours int
}

func timeAnomalyDefaults() map[string]any {
	return map[string]any{
		"min_samples":     5,
		"tolerance_hours": 3,
	}
}

func newTimeAnomalyRule(stored models.ThreatRule, cfg map[string]any) (Rule, error) {
	return &TimeAnomalyRule{
		baseRule:       newBaseRule(stored, models.RuleTypeTimeAnomaly),
		minSamples:     intOption(cfg, "min_samples", 5),
		toleranceHours: intOption(cfg, "tolerance_hours", 3),
	}, nil
}

func (r *TimeAnomalyRule) Validate() error {
	if err := positive("min_samples", r.minSamples); err != nil {
		return err
	}
	if r.toleranceHours < 0 || r.toleranceHours > 12 {
		return fmt.Errorf("tolerance_hours must be between 0 and 12, got %d", r.toleranceHours)
	}
	return nil
}

func (r *TimeAnomalyRule) Evaluate(rc models.RuleContext) models.RuleResult {
	var hours []int
	for _, ev := range rc.RecentEvents {
		if ev.Success {
			hours = append(hours, ev.Timestamp.UTC().Hour())
		}
	}

	if len(hours) < r.minSamples {
		return r.noMatch()
	}

	current := rc.Timestamp.UTC().Hour()
	nearest := 24
	for _, h := range hours {
		if d := circularHourDistance(current, h); d < nearest {
			nearest = d
		}
	}

	if nearest <= r.toleranceHours {
		return r.noMatch()
	}

	score := 30 + nearest*5
	if score > 90 {
		score = 90
	}

	return r.match(score,
		fmt.Sprintf("login at hour %02d, %d hours from nearest historical login hour", current, nearest),
		map[string]any{
			"login_hour":      current,
			"nearest_delta":   nearest,
			"history_samples": len(hours),
		},
		"notify_user",
	)
}

func circularHourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}
