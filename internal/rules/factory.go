package rules

import (
	"fmt"

	"github.com/bluelight-hub/authguard/internal/models"
)

// Builder constructs a rule instance from its stored configuration after
// defaults have been overlaid.
type Builder func(stored models.ThreatRule, cfg map[string]any) (Rule, error)

type ruleType struct {
	defaults map[string]any
	build    Builder
}

// Factory builds rule instances from stored configuration. It is a
// registry keyed by condition-type tag; the built-in variants are
// registered at construction and callers may register additional types.
type Factory struct {
	types map[string]ruleType
}

func NewFactory() *Factory {
	f := &Factory{types: make(map[string]ruleType)}
	f.Register(models.RuleTypeBruteForce, bruteForceDefaults(), newBruteForceRule)
	f.Register(models.RuleTypeGeoAnomaly, geoAnomalyDefaults(), newGeoAnomalyRule)
	f.Register(models.RuleTypeTimeAnomaly, timeAnomalyDefaults(), newTimeAnomalyRule)
	f.Register(models.RuleTypeRapidIPChange, rapidIPChangeDefaults(), newRapidIPChangeRule)
	f.Register(models.RuleTypeSuspiciousUserAgent, suspiciousUserAgentDefaults(), newSuspiciousUserAgentRule)
	return f
}

func (f *Factory) Register(conditionType string, defaults map[string]any, build Builder) {
	f.types[conditionType] = ruleType{defaults: defaults, build: build}
}

// Known reports whether a condition type has a registered builder.
func (f *Factory) Known(conditionType string) bool {
	_, ok := f.types[conditionType]
	return ok
}

// Create builds and validates a rule from stored configuration. Stored
// config is overlaid onto the type's defaults so omitted fields keep
// their intended values; an invalid configuration is a hard construction
// failure, never a silently-degraded rule.
func (f *Factory) Create(stored models.ThreatRule) (Rule, error) {
	rt, ok := f.types[stored.ConditionType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownRuleType, stored.ConditionType)
	}

	cfg := make(map[string]any, len(rt.defaults)+len(stored.Config))
	for k, v := range rt.defaults {
		cfg[k] = v
	}
	for k, v := range stored.Config {
		cfg[k] = v
	}

	rule, err := rt.build(stored, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRuleConfiguration, err)
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRuleConfiguration, err)
	}
	return rule, nil
}
