package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/rules"
	"github.com/google/uuid"
)

// RuleRepository defines the interface for threat rule persistence
type RuleRepository interface {
	Create(ctx context.Context, rule *models.ThreatRule) error
	Update(ctx context.Context, rule *models.ThreatRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.ThreatRule, error)
	ListEnabled(ctx context.Context) ([]*models.ThreatRule, error)
	List(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error)
}

// RuleService owns the threat rule lifecycle: stored definitions in the
// repository, live rule instances in the engine. Any write is followed by
// a reload so the engine catalog reflects the stored set.
type RuleService struct {
	repo    RuleRepository
	factory *rules.Factory
	engine  *rules.Engine
	logger  *slog.Logger
}

// NewRuleService creates a new RuleService
func NewRuleService(repo RuleRepository, factory *rules.Factory, engine *rules.Engine, logger *slog.Logger) *RuleService {
	return &RuleService{
		repo:    repo,
		factory: factory,
		engine:  engine,
		logger:  logger,
	}
}

// LoadAllRules rebuilds the engine catalog from every enabled stored rule.
// The swap is all-or-nothing: a single unbuildable rule aborts the reload
// and leaves the previous catalog running.
func (s *RuleService) LoadAllRules(ctx context.Context) (int, error) {
	stored, err := s.repo.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to list enabled rules", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	built := make([]rules.Rule, 0, len(stored))
	for _, def := range stored {
		rule, err := s.factory.Create(*def)
		if err != nil {
			s.logger.Error("refusing catalog swap: stored rule does not build",
				slog.String("rule_id", def.ID),
				slog.String("condition_type", def.ConditionType),
				slog.Any("error", err))
			return 0, fmt.Errorf("rule %s: %w", def.ID, err)
		}
		built = append(built, rule)
	}

	s.engine.ReplaceCatalog(built)
	s.logger.Info("rule catalog loaded", slog.Int("rules", len(built)))
	return len(built), nil
}

// CreateRule validates, persists and activates a new rule
func (s *RuleService) CreateRule(ctx context.Context, rule *models.ThreatRule) (*models.ThreatRule, error) {
	if !s.factory.Known(rule.ConditionType) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownRuleType, rule.ConditionType)
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Status == "" {
		rule.Status = models.RuleStatusEnabled
	}
	rule.Version = 1

	// Build once before persisting so a bad config never reaches storage
	if _, err := s.factory.Create(*rule); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create rule", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.LoadAllRules(ctx); err != nil {
		s.logger.Error("rule created but catalog reload failed",
			slog.String("rule_id", rule.ID), slog.Any("error", err))
	}
	return rule, nil
}

// UpdateRule persists changes to an existing rule and reloads the catalog
func (s *RuleService) UpdateRule(ctx context.Context, rule *models.ThreatRule) (*models.ThreatRule, error) {
	if !s.factory.Known(rule.ConditionType) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownRuleType, rule.ConditionType)
	}
	if _, err := s.factory.Create(*rule); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update rule",
			slog.String("rule_id", rule.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.LoadAllRules(ctx); err != nil {
		s.logger.Error("rule updated but catalog reload failed",
			slog.String("rule_id", rule.ID), slog.Any("error", err))
	}
	return rule, nil
}

// DeleteRule removes a rule and reloads the catalog
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete rule",
			slog.String("rule_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.LoadAllRules(ctx); err != nil {
		s.logger.Error("rule deleted but catalog reload failed",
			slog.String("rule_id", id), slog.Any("error", err))
	}
	return nil
}

// GetRule returns a stored rule by ID
func (s *RuleService) GetRule(ctx context.Context, id string) (*models.ThreatRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get rule",
			slog.String("rule_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return rule, nil
}

// ListRules returns stored rules matching the filter
func (s *RuleService) ListRules(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error) {
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list rules", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return out, nil
}

// Evaluate runs the live catalog against a context and returns the matches
func (s *RuleService) Evaluate(rc models.RuleContext) []models.RuleResult {
	return s.engine.EvaluateRules(rc)
}

// Stats returns per-rule evaluation statistics since the last catalog swap
func (s *RuleService) Stats() []models.RuleStats {
	return s.engine.Stats()
}

// ActiveRuleCount reports the size of the live catalog
func (s *RuleService) ActiveRuleCount() int {
	return s.engine.RuleCount()
}
