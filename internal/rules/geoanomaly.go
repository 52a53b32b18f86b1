package rules

import (
	"fmt"

	"github.com/bluelight-hub/authguard/internal/models"
)

// GeoAnomalyRule matches a login from a country the account has not been
// seen in recently. Countries for historical events are carried in the
// recent-event metadata; the current country is resolved by the caller.
type GeoAnomalyRule struct {
	baseRule
	minHistory int
}

func geoAnomalyDefaults() map[string]any {
	return map[string]any{
		"min_history": 3,
	}
}

func newGeoAnomalyRule(stored models.ThreatRule, cfg map[string]any) (Rule, error) {
	return &GeoAnomalyRule{
		baseRule:   newBaseRule(stored, models.RuleTypeGeoAnomaly),
		minHistory: intOption(cfg, "min_history", 3),
	}, nil
}

func (r *GeoAnomalyRule) Validate() error {
	return positive("min_history", r.minHistory)
}

func (r *GeoAnomalyRule) Evaluate(rc models.RuleContext) models.RuleResult {
	// Unknown current location: nothing to compare against
	if rc.Country == "" {
		return r.noMatch()
	}

	known := make(map[string]struct{})
	samples := 0
	for _, ev := range rc.RecentEvents {
		if !ev.Success {
			continue
		}
		country := ev.Metadata["country"]
		if country == "" {
			continue
		}
		samples++
		known[country] = struct{}{}
	}

	// Not enough located history to call anything anomalous
	if samples < r.minHistory {
		return r.noMatch()
	}

	if _, seen := known[rc.Country]; seen {
		return r.noMatch()
	}

	knownList := make([]string, 0, len(known))
	for c := range known {
		knownList = append(knownList, c)
	}

	return r.match(60,
		fmt.Sprintf("login from %s, not seen in recent history", rc.Country),
		map[string]any{
			"country":         rc.Country,
			"known_countries": knownList,
			"history_samples": samples,
		},
		"require_mfa", "notify_user",
	)
}
