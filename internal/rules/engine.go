package rules

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
)

type ruleStats struct {
	mu            sync.Mutex
	invocations   int64
	matches       int64
	lastTriggered time.Time
	totalExec     time.Duration
}

type catalog struct {
	rules []Rule
	stats map[string]*ruleStats
}

// Engine evaluates the active rule catalog against rule contexts. The
// catalog is held behind an atomic pointer: concurrent evaluations see
// either the old catalog or the new one, never a partially-built set.
type Engine struct {
	catalog atomic.Pointer[catalog]
	logger  *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	e := &Engine{logger: logger}
	e.catalog.Store(&catalog{stats: make(map[string]*ruleStats)})
	return e
}

// ReplaceCatalog swaps in a freshly built rule set wholesale. Statistics
// restart with the new catalog.
func (e *Engine) ReplaceCatalog(rules []Rule) {
	stats := make(map[string]*ruleStats, len(rules))
	for _, r := range rules {
		stats[r.ID()] = &ruleStats{}
	}
	e.catalog.Store(&catalog{rules: rules, stats: stats})
	e.logger.Info("rule catalog replaced", slog.Int("rules", len(rules)))
}

// RuleCount returns the number of rules in the active catalog.
func (e *Engine) RuleCount() int {
	return len(e.catalog.Load().rules)
}

// EvaluateRules runs every rule in the active catalog against the
// context and returns the matches. One slow or failing rule never
// prevents the others from being evaluated.
func (e *Engine) EvaluateRules(rc models.RuleContext) []models.RuleResult {
	cat := e.catalog.Load()

	matches := make([]models.RuleResult, 0)
	for _, r := range cat.rules {
		result, ok := e.evaluateOne(cat, r, rc)
		if ok && result.Matched {
			matches = append(matches, result)
		}
	}
	return matches
}

func (e *Engine) evaluateOne(cat *catalog, r Rule, rc models.RuleContext) (result models.RuleResult, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("rule evaluation panicked",
				slog.String("rule_id", r.ID()),
				slog.String("rule_name", r.Name()),
				slog.Any("panic", p))
			ok = false
		}
	}()

	start := time.Now()
	result = r.Evaluate(rc)
	elapsed := time.Since(start)

	if st := cat.stats[r.ID()]; st != nil {
		st.mu.Lock()
		st.invocations++
		st.totalExec += elapsed
		if result.Matched {
			st.matches++
			st.lastTriggered = start
		}
		st.mu.Unlock()
	}

	return result, true
}

// Stats reports per-rule evaluation statistics for the active catalog.
func (e *Engine) Stats() []models.RuleStats {
	cat := e.catalog.Load()

	out := make([]models.RuleStats, 0, len(cat.rules))
	for _, r := range cat.rules {
		st := cat.stats[r.ID()]
		if st == nil {
			continue
		}
		st.mu.Lock()
		entry := models.RuleStats{
			RuleID:      r.ID(),
			RuleName:    r.Name(),
			Invocations: st.invocations,
			Matches:     st.matches,
		}
		if !st.lastTriggered.IsZero() {
			t := st.lastTriggered
			entry.LastTriggered = &t
		}
		if st.invocations > 0 {
			entry.AvgExecutionTime = st.totalExec / time.Duration(st.invocations)
		}
		st.mu.Unlock()
		out = append(out, entry)
	}
	return out
}
