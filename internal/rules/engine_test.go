package rules_test

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bluelight-hub/authguard/internal/models"
	"github.com/bluelight-hub/authguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRule is a scriptable rule for engine tests.
type stubRule struct {
	id      string
	matched bool
	panics  bool
}

func (s *stubRule) ID() string                    { return s.id }
func (s *stubRule) Name() string                  { return "stub " + s.id }
func (s *stubRule) ConditionType() string         { return "stub" }
func (s *stubRule) Severity() models.RuleSeverity { return models.SeverityMedium }
func (s *stubRule) Validate() error               { return nil }

func (s *stubRule) Evaluate(models.RuleContext) models.RuleResult {
	if s.panics {
		panic(errors.New("rule blew up"))
	}
	return models.RuleResult{RuleID: s.id, RuleName: s.Name(), Matched: s.matched, Score: 50}
}

func testEngine() *rules.Engine {
	return rules.NewEngine(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

func TestEngine_CollectsOnlyMatches(t *testing.T) {
	engine := testEngine()
	engine.ReplaceCatalog([]rules.Rule{
		&stubRule{id: "a", matched: true},
		&stubRule{id: "b", matched: false},
		&stubRule{id: "c", matched: true},
	})

	matches := engine.EvaluateRules(models.RuleContext{Timestamp: time.Now()})

	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].RuleID)
	assert.Equal(t, "c", matches[1].RuleID)
}

func TestEngine_PanickingRuleDoesNotBlockOthers(t *testing.T) {
	engine := testEngine()
	engine.ReplaceCatalog([]rules.Rule{
		&stubRule{id: "before", matched: true},
		&stubRule{id: "boom", panics: true},
		&stubRule{id: "after", matched: true},
	})

	matches := engine.EvaluateRules(models.RuleContext{Timestamp: time.Now()})

	require.Len(t, matches, 2)
	assert.Equal(t, "before", matches[0].RuleID)
	assert.Equal(t, "after", matches[1].RuleID)
}

func TestEngine_EmptyCatalog(t *testing.T) {
	engine := testEngine()

	assert.Empty(t, engine.EvaluateRules(models.RuleContext{}))
	assert.Zero(t, engine.RuleCount())
}

func TestEngine_Stats(t *testing.T) {
	engine := testEngine()
	engine.ReplaceCatalog([]rules.Rule{
		&stubRule{id: "hit", matched: true},
		&stubRule{id: "miss", matched: false},
	})

	for i := 0; i < 3; i++ {
		engine.EvaluateRules(models.RuleContext{Timestamp: time.Now()})
	}

	stats := engine.Stats()
	require.Len(t, stats, 2)

	byID := map[string]models.RuleStats{}
	for _, st := range stats {
		byID[st.RuleID] = st
	}

	assert.Equal(t, int64(3), byID["hit"].Invocations)
	assert.Equal(t, int64(3), byID["hit"].Matches)
	assert.NotNil(t, byID["hit"].LastTriggered)

	assert.Equal(t, int64(3), byID["miss"].Invocations)
	assert.Zero(t, byID["miss"].Matches)
	assert.Nil(t, byID["miss"].LastTriggered)
}

func TestEngine_ReloadIsAtomicUnderConcurrentEvaluation(t *testing.T) {
	engine := testEngine()
	engine.ReplaceCatalog([]rules.Rule{
		&stubRule{id: "old-1", matched: true},
		&stubRule{id: "old-2", matched: true},
	})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Evaluators must always observe a whole catalog: either both old
	// rules or both new rules, never a mix.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				matches := engine.EvaluateRules(models.RuleContext{Timestamp: time.Now()})
				if len(matches) != 2 {
					t.Errorf("observed half-swapped catalog: %d matches", len(matches))
					return
				}
				prefix := matches[0].RuleID[:3]
				if matches[1].RuleID[:3] != prefix {
					t.Errorf("observed mixed catalog: %s vs %s", matches[0].RuleID, matches[1].RuleID)
					return
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		engine.ReplaceCatalog([]rules.Rule{
			&stubRule{id: "new-1", matched: true},
			&stubRule{id: "new-2", matched: true},
		})
		engine.ReplaceCatalog([]rules.Rule{
			&stubRule{id: "old-1", matched: true},
			&stubRule{id: "old-2", matched: true},
		})
	}

	close(stop)
	wg.Wait()
}
