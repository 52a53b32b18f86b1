package rules_test

import (
	"testing"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRule(conditionType string, cfg map[string]any) models.ThreatRule {
	return models.ThreatRule{
		ID:            "rule-1",
		Name:          "test rule",
		ConditionType: conditionType,
		Severity:      models.SeverityHigh,
		Status:        models.RuleStatusEnabled,
		Config:        cfg,
	}
}

func TestFactoryCreate_UnknownType(t *testing.T) {
	factory := rules.NewFactory()

	_, err := factory.Create(storedRule("port_scan", nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownRuleType)
}

func TestFactoryCreate_InvalidConfiguration(t *testing.T) {
	factory := rules.NewFactory()

	_, err := factory.Create(storedRule(models.RuleTypeBruteForce, map[string]any{
		"max_failures": -1,
	}))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidRuleConfiguration)
}

func TestFactoryCreate_OverlaysDefaultsForOmittedFields(t *testing.T) {
	factory := rules.NewFactory()

	// Only max_failures is overridden; window_minutes keeps its default
	rule, err := factory.Create(storedRule(models.RuleTypeBruteForce, map[string]any{
		"max_failures": float64(2), // JSON numbers decode as float64
	}))
	require.NoError(t, err)

	rc := models.RuleContext{
		Email:     "a@x.com",
		IPAddress: "203.0.113.1",
		Timestamp: time.Now(),
		RecentEvents: []models.RecentEvent{
			{Type: models.EventLoginFailure, Timestamp: time.Now().Add(-1 * time.Minute), IPAddress: "203.0.113.1"},
			{Type: models.EventLoginFailure, Timestamp: time.Now().Add(-2 * time.Minute), IPAddress: "203.0.113.1"},
		},
	}

	result := rule.Evaluate(rc)
	assert.True(t, result.Matched, "overridden threshold of 2 should fire on 2 failures")
}

func TestFactoryCreate_AllBuiltinsConstructWithEmptyConfig(t *testing.T) {
	factory := rules.NewFactory()

	for _, conditionType := range []string{
		models.RuleTypeBruteForce,
		models.RuleTypeGeoAnomaly,
		models.RuleTypeTimeAnomaly,
		models.RuleTypeRapidIPChange,
		models.RuleTypeSuspiciousUserAgent,
	} {
		rule, err := factory.Create(storedRule(conditionType, nil))
		require.NoError(t, err, "condition type %s", conditionType)
		assert.Equal(t, conditionType, rule.ConditionType())
		assert.Equal(t, models.SeverityHigh, rule.Severity())
	}
}

func TestFactory_Known(t *testing.T) {
	factory := rules.NewFactory()

	assert.True(t, factory.Known(models.RuleTypeGeoAnomaly))
	assert.False(t, factory.Known("port_scan"))
}
