// Package rules implements the pluggable threat-detection rule catalog:
// the rule contract, the built-in rule variants, the factory that builds
// rule instances from stored configuration, and the evaluation engine.
package rules

import (
	"fmt"

	"github.com/bluelight-hub/authguard/internal/models"
)

// Rule is the contract every threat-detection rule satisfies. Rules are
// pure over their context: all history they need arrives inside the
// RuleContext's bounded recent-event window.
type Rule interface {
	ID() string
	Name() string
	ConditionType() string
	Severity() models.RuleSeverity
	// Evaluate inspects the context and reports whether the rule matched.
	Evaluate(rc models.RuleContext) models.RuleResult
	// Validate checks the rule's configuration at construction time.
	Validate() error
}

type baseRule struct {
	id            string
	name          string
	conditionType string
	severity      models.RuleSeverity
}

func newBaseRule(stored models.ThreatRule, conditionType string) baseRule {
	return baseRule{
		id:            stored.ID,
		name:          stored.Name,
		conditionType: conditionType,
		severity:      stored.Severity,
	}
}

func (b baseRule) ID() string                    { return b.id }
func (b baseRule) Name() string                  { return b.name }
func (b baseRule) ConditionType() string         { return b.conditionType }
func (b baseRule) Severity() models.RuleSeverity { return b.severity }

func (b baseRule) noMatch() models.RuleResult {
	return models.RuleResult{
		RuleID:   b.id,
		RuleName: b.name,
		Severity: b.severity,
	}
}

func (b baseRule) match(score int, reason string, evidence map[string]any, actions ...string) models.RuleResult {
	return models.RuleResult{
		RuleID:   b.id,
		RuleName: b.name,
		Matched:  true,
		Severity: b.severity,
		Score:    score,
		Reason:   reason,
		Evidence: evidence,
		Actions:  actions,
	}
}

// Config option readers. Stored configuration arrives as JSON-decoded
// maps, so numbers come back as float64.

func intOption(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func boolOption(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func stringSliceOption(cfg map[string]any, key string) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func positive(name string, value int) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, value)
	}
	return nil
}
