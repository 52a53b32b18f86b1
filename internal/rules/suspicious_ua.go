package rules

import (
	"fmt"
	"strings"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/useragent"
)

// SuspiciousUserAgentRule matches known automation signatures in the
// User-Agent string, plus any operator-supplied extra patterns.
type SuspiciousUserAgentRule struct {
	baseRule
	flagMissing   bool
	extraPatterns []string
}

func suspiciousUserAgentDefaults() map[string]any {
	return map[string]any{
		"flag_missing":   true,
		"extra_patterns": []string{},
	}
}

func newSuspiciousUserAgentRule(stored models.ThreatRule, cfg map[string]any) (Rule, error) {
	return &SuspiciousUserAgentRule{
		baseRule:      newBaseRule(stored, models.RuleTypeSuspiciousUserAgent),
		flagMissing:   boolOption(cfg, "flag_missing", true),
		extraPatterns: stringSliceOption(cfg, "extra_patterns"),
	}, nil
}

func (r *SuspiciousUserAgentRule) Validate() error {
	for _, p := range r.extraPatterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("extra_patterns must not contain empty entries")
		}
	}
	return nil
}

func (r *SuspiciousUserAgentRule) Evaluate(rc models.RuleContext) models.RuleResult {
	raw := strings.TrimSpace(rc.UserAgent)
	if raw == "" {
		if !r.flagMissing {
			return r.noMatch()
		}
		return r.match(40, "missing user agent",
			map[string]any{"user_agent": ""}, "require_mfa")
	}

	c := useragent.Classify(raw)
	lowered := strings.ToLower(raw)

	switch {
	case c.IsBot:
		return r.match(50, "known bot or crawler signature",
			map[string]any{"user_agent": raw, "browser": c.Browser}, "block_request")
	case c.Suspicious:
		return r.match(40, "automation tooling signature",
			map[string]any{"user_agent": raw}, "require_mfa")
	}

	for _, p := range r.extraPatterns {
		if strings.Contains(lowered, strings.ToLower(p)) {
			return r.match(40,
				fmt.Sprintf("user agent matches configured pattern %q", p),
				map[string]any{"user_agent": raw, "pattern": p}, "require_mfa")
		}
	}

	return r.noMatch()
}
