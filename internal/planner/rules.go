package planner

import "sync"

// RuleName enumerates the toggleable rule set of spec.md §4.8.
type RuleName string

const (
	RuleConstantFolding     RuleName = "constant_folding"
	RulePredicatePushdown   RuleName = "predicate_pushdown"
	RuleIndexSelection      RuleName = "index_selection"
	RuleJoinReordering      RuleName = "join_reordering"
	RuleAggregationPushdown RuleName = "aggregation_pushdown"
)

var allRules = []RuleName{
	RuleConstantFolding,
	RulePredicatePushdown,
	RuleIndexSelection,
	RuleJoinReordering,
	RuleAggregationPushdown,
}

// RuleSet is the runtime-toggleable set of optimizer rules. Every rule
// starts enabled.
type RuleSet struct {
	mu      sync.RWMutex
	enabled map[RuleName]bool
}

// NewRuleSet returns a RuleSet with every rule enabled.
func NewRuleSet() *RuleSet {
	enabled := make(map[RuleName]bool, len(allRules))
	for _, r := range allRules {
		enabled[r] = true
	}
	return &RuleSet{enabled: enabled}
}

// Enable turns a rule on.
func (r *RuleSet) Enable(name RuleName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[name] = true
}

// Disable turns a rule off.
func (r *RuleSet) Disable(name RuleName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[name] = false
}

// Enabled reports whether name is currently on.
func (r *RuleSet) Enabled(name RuleName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}
