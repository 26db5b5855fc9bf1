package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solatis/rulekeeper/internal/types"
)

// StoredRule is one row of rule_definitions.
type StoredRule struct {
	RuleID     string    `db:"rule_id"`
	RuleName   string    `db:"rule_name"`
	RuleType   string    `db:"rule_type"`
	Definition string    `db:"definition"`
	Position   int64     `db:"position"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// RuleStore persists rule definitions as JSON text in insertion order.
type RuleStore struct {
	q *Queries
}

// NewRuleStore returns a store backed by q.
func NewRuleStore(q *Queries) *RuleStore {
	return &RuleStore{q: q}
}

// Save inserts def, or replaces the stored definition with the same ruleId
// while keeping its original position.
func (s *RuleStore) Save(ctx context.Context, def *types.RuleDefinition) error {
	if def == nil || def.RuleID == "" {
		return fmt.Errorf("save rule: ruleId is required")
	}
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("save rule %q: encode definition: %w", def.RuleID, err)
	}
	ruleType := def.Type
	if ruleType == "" {
		ruleType = types.RuleTypeSimple
	}

	return s.q.InTx(ctx, func(tx *Queries) error {
		var next int64
		if err := tx.Get(ctx, "next-rule-position", &next); err != nil {
			return fmt.Errorf("save rule %q: %w", def.RuleID, err)
		}
		now := time.Now().UTC()
		_, err := tx.Exec(ctx, "upsert-rule", def.RuleID, def.RuleName, ruleType, string(body), next, now, now)
		if err != nil {
			return fmt.Errorf("save rule %q: %w", def.RuleID, err)
		}
		return nil
	})
}

// Delete removes the rule with the given ID, reporting whether a row existed.
func (s *RuleStore) Delete(ctx context.Context, ruleID string) (bool, error) {
	res, err := s.q.Exec(ctx, "delete-rule", ruleID)
	if err != nil {
		return false, fmt.Errorf("delete rule %q: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rule %q: %w", ruleID, err)
	}
	return n > 0, nil
}

// Records returns the stored rows in position order.
func (s *RuleStore) Records(ctx context.Context) ([]StoredRule, error) {
	var rows []StoredRule
	if err := s.q.Select(ctx, "list-rules", &rows); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rows, nil
}

// List decodes every stored definition in position order.
func (s *RuleStore) List(ctx context.Context) ([]*types.RuleDefinition, error) {
	rows, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]*types.RuleDefinition, 0, len(rows))
	for _, r := range rows {
		def, err := types.ParseRuleDefinition([]byte(r.Definition))
		if err != nil {
			return nil, fmt.Errorf("stored rule %q: %w", r.RuleID, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
