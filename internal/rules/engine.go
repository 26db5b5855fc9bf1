// internal/rules/engine.go
package rules

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Engine driver.
 *
 * The engine holds an ordered rule list; insertion order is execution order.
 *
 * ExecuteRules uses pipeline semantics: the working map starts as a copy of
 * the inputs, and every rule that fires merges its results into it before
 * the next rule is evaluated. Later rules therefore see earlier outputs, and
 * the returned map holds the inputs plus every output (later values win,
 * callbacks accumulate under __callbacks__).
 *
 * The first action error aborts the call. No partial results are returned.
 *
 * Concurrency: ExecuteRules takes a snapshot of the rule list under the
 * read lock and runs without holding it. AddRule and RemoveRule take the
 * write lock and never modify a published slice in place.
 */

// checker is implemented by rules that can report why a condition failed.
type checker interface {
	check(ctx *types.Map) (bool, error)
}

// Engine runs an ordered list of rules against input maps.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records engine metrics. nil disables recording.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine building rules through registry.
// A nil registry gets NewDefaultRegistry(nil).
func NewEngine(registry *Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = NewDefaultRegistry(nil)
	}
	e := &Engine{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the factory registry used by AddRule.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// AddRule builds def and appends it to the rule list.
func (e *Engine) AddRule(def *types.RuleDefinition) error {
	r, err := e.registry.Create(def)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.rules = append(e.rules, r)
	n := len(e.rules)
	e.mu.Unlock()

	e.metrics.setRulesLoaded(n)
	e.logger.Info("rule added", "rule_id", r.ID(), "rule_type", r.Type())
	return nil
}

// ReplaceRule builds def and puts it in the slot held by the first rule with
// the same ID, dropping any later duplicates. Without a match it appends.
// Reports whether an existing rule was replaced.
func (e *Engine) ReplaceRule(def *types.RuleDefinition) (bool, error) {
	r, err := e.registry.Create(def)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	next := make([]Rule, 0, len(e.rules)+1)
	replaced := false
	for _, old := range e.rules {
		if old.ID() != r.ID() {
			next = append(next, old)
			continue
		}
		if !replaced {
			next = append(next, r)
			replaced = true
		}
	}
	if !replaced {
		next = append(next, r)
	}
	e.rules = next
	n := len(next)
	e.mu.Unlock()

	e.metrics.setRulesLoaded(n)
	e.logger.Info("rule added", "rule_id", r.ID(), "rule_type", r.Type(), "replaced", replaced)
	return replaced, nil
}

// AddRuleJSON parses a JSON rule object and adds it.
func (e *Engine) AddRuleJSON(data []byte) error {
	def, err := types.ParseRuleDefinition(data)
	if err != nil {
		return err
	}
	return e.AddRule(def)
}

// AddRuleSet builds every rule in set and appends them in order. If any
// rule fails to build, nothing is added.
func (e *Engine) AddRuleSet(set *types.RuleSet) error {
	if set == nil {
		return nil
	}
	built := make([]Rule, 0, len(set.Rules))
	for i, def := range set.Rules {
		r, err := e.registry.Create(def)
		if err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		built = append(built, r)
	}

	e.mu.Lock()
	e.rules = append(e.rules, built...)
	n := len(e.rules)
	e.mu.Unlock()

	e.metrics.setRulesLoaded(n)
	e.logger.Info("rule set added", "rules", len(built), "total", n)
	return nil
}

// RemoveRule removes every rule with id and returns how many were removed.
func (e *Engine) RemoveRule(id string) int {
	e.mu.Lock()
	kept := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	removed := len(e.rules) - len(kept)
	e.rules = kept
	n := len(kept)
	e.mu.Unlock()

	if removed > 0 {
		e.metrics.setRulesLoaded(n)
		e.logger.Info("rule removed", "rule_id", id, "count", removed)
	}
	return removed
}

// ListRules summarizes the rules in execution order.
func (e *Engine) ListRules() []RuleSummary {
	rules := e.snapshot()
	out := make([]RuleSummary, len(rules))
	for i, r := range rules {
		out[i] = summarize(r)
	}
	return out
}

// Len returns the number of rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

func (e *Engine) snapshot() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules[:len(e.rules):len(e.rules)]
}

// ExecuteRules runs every rule against inputs and returns the inputs merged
// with all rule outputs. inputs is not modified.
func (e *Engine) ExecuteRules(inputs *types.Map) (_ *types.Map, err error) {
	start := time.Now()
	defer func() { e.metrics.recordExecution(start, err) }()

	if inputs == nil {
		return nil, &types.InputError{Reason: "ExecuteRules requires an input map", Err: types.ErrNilInput}
	}

	working := inputs.Clone()
	for _, r := range e.snapshot() {
		if !e.evaluate(r, working) {
			continue
		}
		e.metrics.recordFired(r.Type())

		out, err := r.Execute(working)
		if err != nil {
			e.metrics.recordActionError(r.Type())
			e.logger.Warn("rule action failed", "rule_id", r.ID(), "rule_type", r.Type(), "error", err)
			return nil, fmt.Errorf("execute rule %q: %w", r.ID(), err)
		}
		working.Merge(out)
	}
	return working, nil
}

// evaluate reports whether r fires, logging condition errors.
func (e *Engine) evaluate(r Rule, ctx *types.Map) bool {
	c, ok := r.(checker)
	if !ok {
		return r.Evaluate(ctx)
	}
	fired, err := c.check(ctx)
	if err != nil {
		e.metrics.recordConditionFailure(r.Type())
		e.logger.Debug("condition failed", "rule_id", r.ID(), "rule_type", r.Type(), "error", err)
	}
	return fired
}
