package rules

import (
	"fmt"
	"net"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
)

// RapidIPChangeRule matches successive logins from materially different
// networks within an implausibly short interval — the "impossible
// travel" heuristic applied at the network level. Addresses inside the
// same prefix (default /16) are considered the same network.
type RapidIPChangeRule struct {
	baseRule
	interval   time.Duration
	prefixBits int
}

func rapidIPChangeDefaults() map[string]any {
	return map[string]any{
		"interval_minutes": 10,
		"prefix_bits":      16,
	}
}

func newRapidIPChangeRule(stored models.ThreatRule, cfg map[string]any) (Rule, error) {
	return &RapidIPChangeRule{
		baseRule:   newBaseRule(stored, models.RuleTypeRapidIPChange),
		interval:   time.Duration(intOption(cfg, "interval_minutes", 10)) * time.Minute,
		prefixBits: intOption(cfg, "prefix_bits", 16),
	}, nil
}

func (r *RapidIPChangeRule) Validate() error {
	if r.interval <= 0 {
		return fmt.Errorf("interval_minutes must be positive")
	}
	if r.prefixBits < 8 || r.prefixBits > 32 {
		return fmt.Errorf("prefix_bits must be between 8 and 32, got %d", r.prefixBits)
	}
	return nil
}

func (r *RapidIPChangeRule) Evaluate(rc models.RuleContext) models.RuleResult {
	// Most recent prior event from a different network
	var prev *models.RecentEvent
	for i := range rc.RecentEvents {
		ev := &rc.RecentEvents[i]
		if ev.IPAddress == "" || ev.IPAddress == rc.IPAddress {
			continue
		}
		if !ev.Timestamp.Before(rc.Timestamp) {
			continue
		}
		if prev == nil || ev.Timestamp.After(prev.Timestamp) {
			prev = ev
		}
	}

	if prev == nil {
		return r.noMatch()
	}

	delta := rc.Timestamp.Sub(prev.Timestamp)
	if delta > r.interval {
		return r.noMatch()
	}

	if sameNetwork(rc.IPAddress, prev.IPAddress, r.prefixBits) {
		return r.noMatch()
	}

	return r.match(70,
		fmt.Sprintf("IP changed from %s to %s within %s", prev.IPAddress, rc.IPAddress, delta.Round(time.Second)),
		map[string]any{
			"previous_ip": prev.IPAddress,
			"current_ip":  rc.IPAddress,
			"delta":       delta.String(),
			"interval":    r.interval.String(),
		},
		"require_mfa", "terminate_sessions",
	)
}

// sameNetwork reports whether two IPv4 addresses share the given prefix.
// Unparsable or mixed-family pairs are treated as different networks.
func sameNetwork(a, b string, bits int) bool {
	ipA := net.ParseIP(a).To4()
	ipB := net.ParseIP(b).To4()
	if ipA == nil || ipB == nil {
		return false
	}
	mask := net.CIDRMask(bits, 32)
	return ipA.Mask(mask).Equal(ipB.Mask(mask))
}
