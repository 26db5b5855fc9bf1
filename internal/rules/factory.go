// internal/rules/factory.go
package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/solatis/rulekeeper/internal/dialect"
	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Rule factories.
 *
 * A Registry maps a rule type tag (case-insensitive) to the Factory that
 * builds it. An empty type means simple. Composite children are built
 * through the same registry, so a tree can mix every registered type.
 *
 * Construction validates everything a rule needs; a Rule returned by a
 * factory is complete. All failures are *types.ConstructionError.
 */

// Factory builds rules of one type.
type Factory interface {
	Type() string
	Create(def *types.RuleDefinition) (Rule, error)
}

// Registry is a concurrency-safe set of factories keyed by rule type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	ops       *OperatorRegistry
}

// NewRegistry returns an empty registry. ops is shared with the factories
// registered through NewDefaultRegistry; nil gets the built-in vocabulary.
func NewRegistry(ops *OperatorRegistry) *Registry {
	if ops == nil {
		ops = NewOperatorRegistry()
	}
	return &Registry{factories: make(map[string]Factory), ops: ops}
}

// NewDefaultRegistry registers the simple and composite factories plus one
// script factory per built-in dialect.
func NewDefaultRegistry(ops *OperatorRegistry) *Registry {
	return NewRegistryWithDialects(ops, dialect.Defaults()...)
}

// NewRegistryWithDialects registers the simple and composite factories plus
// one script factory per dialect.
func NewRegistryWithDialects(ops *OperatorRegistry, dialects ...dialect.Dialect) *Registry {
	r := NewRegistry(ops)
	// Built-in type tags are distinct, so registration cannot fail here.
	_ = r.Register(SimpleFactory{Operators: r.ops})
	for _, d := range dialects {
		_ = r.Register(ScriptFactory{Dialect: d})
	}
	_ = r.Register(CompositeFactory{Operators: r.ops, Registry: r})
	return r
}

// Operators returns the operator registry shared by the factories.
func (r *Registry) Operators() *OperatorRegistry {
	return r.ops
}

// Register adds f under its type tag.
func (r *Registry) Register(f Factory) error {
	key := strings.ToLower(strings.TrimSpace(f.Type()))
	if key == "" {
		return fmt.Errorf("%w: empty rule type", types.ErrUnsupportedRuleType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("%w: %q", types.ErrFactoryExists, key)
	}
	r.factories[key] = f
	return nil
}

// Has reports whether a factory is registered for ruleType.
func (r *Registry) Has(ruleType string) bool {
	_, ok := r.lookup(ruleType)
	return ok
}

// Types lists registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(ruleType string) (Factory, bool) {
	key := strings.ToLower(strings.TrimSpace(ruleType))
	if key == "" {
		key = types.RuleTypeSimple
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[key]
	return f, ok
}

// Create builds a rule with the factory registered for def.Type.
func (r *Registry) Create(def *types.RuleDefinition) (Rule, error) {
	if def == nil {
		return nil, &types.ConstructionError{Reason: "rule definition is nil"}
	}
	f, ok := r.lookup(def.Type)
	if !ok {
		return nil, &types.ConstructionError{
			RuleID: def.RuleID,
			Field:  "type",
			Reason: fmt.Sprintf("%q", def.Type),
			Err:    types.ErrUnsupportedRuleType,
		}
	}
	return f.Create(def)
}

// SimpleFactory builds SimpleRules.
type SimpleFactory struct {
	Operators *OperatorRegistry
}

func (f SimpleFactory) Type() string { return types.RuleTypeSimple }

func (f SimpleFactory) Create(def *types.RuleDefinition) (Rule, error) {
	return NewSimpleRule(def, f.Operators)
}

// ScriptFactory builds ScriptRules in one dialect. Its type is the dialect name.
type ScriptFactory struct {
	Dialect dialect.Dialect
}

func (f ScriptFactory) Type() string { return f.Dialect.Name() }

func (f ScriptFactory) Create(def *types.RuleDefinition) (Rule, error) {
	return NewScriptRule(def, f.Dialect)
}

// CompositeFactory builds CompositeRules, resolving children through Registry.
type CompositeFactory struct {
	Operators *OperatorRegistry
	Registry  *Registry
}

func (f CompositeFactory) Type() string { return types.RuleTypeComposite }

func (f CompositeFactory) Create(def *types.RuleDefinition) (Rule, error) {
	return f.create(def, 1)
}

func (f CompositeFactory) create(def *types.RuleDefinition, depth int) (Rule, error) {
	if err := requireIdentity(def); err != nil {
		return nil, err
	}
	if depth > types.MaxRuleDepth {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "rules", Err: types.ErrRuleDepth}
	}

	children := make([]Rule, 0, len(def.Rules))
	for i, childDef := range def.Rules {
		var (
			child Rule
			err   error
		)
		if childDef != nil && isComposite(childDef.Type) {
			child, err = f.create(childDef, depth+1)
		} else {
			child, err = f.Registry.Create(childDef)
		}
		if err != nil {
			return nil, &types.ConstructionError{
				RuleID: def.RuleID,
				Field:  fmt.Sprintf("rules[%d]", i),
				Err:    err,
			}
		}
		children = append(children, child)
	}
	return NewCompositeRule(def, children, f.Operators)
}

func isComposite(ruleType string) bool {
	return strings.EqualFold(strings.TrimSpace(ruleType), types.RuleTypeComposite)
}
