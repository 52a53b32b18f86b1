package services

import (
	"context"
	"errors"
	"testing"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRule(id, conditionType string) *models.ThreatRule {
	return &models.ThreatRule{
		ID:            id,
		Name:          "rule " + id,
		ConditionType: conditionType,
		Severity:      models.SeverityHigh,
		Status:        models.RuleStatusEnabled,
		Config:        map[string]any{},
	}
}

func newRuleService(repo *MockRuleRepository) (*RuleService, *rules.Engine) {
	engine := rules.NewEngine(testLogger())
	return NewRuleService(repo, rules.NewFactory(), engine, testLogger()), engine
}

func TestLoadAllRules_BuildsCatalog(t *testing.T) {
	repo := &MockRuleRepository{
		ListEnabledFunc: func(ctx context.Context) ([]*models.ThreatRule, error) {
			return []*models.ThreatRule{
				storedRule("r1", models.RuleTypeBruteForce),
				storedRule("r2", models.RuleTypeSuspiciousUserAgent),
			}, nil
		},
	}

	svc, engine := newRuleService(repo)
	n, err := svc.LoadAllRules(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, engine.RuleCount())
}

func TestLoadAllRules_BadRuleAbortsSwap(t *testing.T) {
	calls := 0
	repo := &MockRuleRepository{
		ListEnabledFunc: func(ctx context.Context) ([]*models.ThreatRule, error) {
			calls++
			if calls == 1 {
				return []*models.ThreatRule{storedRule("good", models.RuleTypeBruteForce)}, nil
			}
			bad := storedRule("bad", models.RuleTypeBruteForce)
			bad.Config = map[string]any{"max_failures": -1}
			return []*models.ThreatRule{
				storedRule("good", models.RuleTypeBruteForce),
				bad,
			}, nil
		},
	}

	svc, engine := newRuleService(repo)

	_, err := svc.LoadAllRules(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, engine.RuleCount())

	_, err = svc.LoadAllRules(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidRuleConfiguration)

	// the previous catalog keeps running
	assert.Equal(t, 1, engine.RuleCount())
}

func TestLoadAllRules_UnknownStoredTypeAbortsSwap(t *testing.T) {
	repo := &MockRuleRepository{
		ListEnabledFunc: func(ctx context.Context) ([]*models.ThreatRule, error) {
			return []*models.ThreatRule{storedRule("r1", "no_such_type")}, nil
		},
	}

	svc, engine := newRuleService(repo)
	_, err := svc.LoadAllRules(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownRuleType)
	assert.Equal(t, 0, engine.RuleCount())
}

func TestCreateRule_UnknownType(t *testing.T) {
	svc, _ := newRuleService(&MockRuleRepository{})

	_, err := svc.CreateRule(context.Background(), storedRule("", "no_such_type"))
	assert.ErrorIs(t, err, models.ErrUnknownRuleType)
}

func TestCreateRule_InvalidConfigNeverPersisted(t *testing.T) {
	created := false
	repo := &MockRuleRepository{
		CreateFunc: func(ctx context.Context, rule *models.ThreatRule) error {
			created = true
			return nil
		},
	}

	svc, _ := newRuleService(repo)
	bad := storedRule("", models.RuleTypeBruteForce)
	bad.Config = map[string]any{"window_minutes": -5}

	_, err := svc.CreateRule(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidRuleConfiguration)
	assert.False(t, created)
}

func TestCreateRule_AssignsIDAndReloads(t *testing.T) {
	var persisted *models.ThreatRule
	repo := &MockRuleRepository{
		CreateFunc: func(ctx context.Context, rule *models.ThreatRule) error {
			persisted = rule
			return nil
		},
		ListEnabledFunc: func(ctx context.Context) ([]*models.ThreatRule, error) {
			if persisted == nil {
				return nil, nil
			}
			return []*models.ThreatRule{persisted}, nil
		},
	}

	svc, engine := newRuleService(repo)
	out, err := svc.CreateRule(context.Background(), storedRule("", models.RuleTypeGeoAnomaly))

	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, 1, out.Version)
	assert.Equal(t, 1, engine.RuleCount())
}

func TestUpdateRule_NotFound(t *testing.T) {
	repo := &MockRuleRepository{
		UpdateFunc: func(ctx context.Context, rule *models.ThreatRule) error {
			return models.ErrNotFound
		},
	}

	svc, _ := newRuleService(repo)
	_, err := svc.UpdateRule(context.Background(), storedRule("missing", models.RuleTypeBruteForce))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteRule_ReloadsCatalog(t *testing.T) {
	deleted := false
	repo := &MockRuleRepository{
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
		ListEnabledFunc: func(ctx context.Context) ([]*models.ThreatRule, error) {
			return nil, nil
		},
	}

	svc, engine := newRuleService(repo)
	require.NoError(t, svc.DeleteRule(context.Background(), "r1"))
	assert.True(t, deleted)
	assert.Equal(t, 0, engine.RuleCount())
}

func TestListRules_RepoErrorMapped(t *testing.T) {
	repo := &MockRuleRepository{
		ListFunc: func(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc, _ := newRuleService(repo)
	_, err := svc.ListRules(context.Background(), models.RuleFilter{})
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
