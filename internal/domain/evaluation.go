package domain

// EvaluationResult is the outcome of evaluating one decision.
type EvaluationResult struct {
	// Payload is the normalized engine result: a list of row mappings, a
	// single aggregated entry, or the raw engine result.
	Payload any `json:"result"`

	// MatchedRuleIndexes are the 1-based rows of the target decision's table
	// that matched, ascending. Empty when nothing matched or reconciliation
	// could not locate the table.
	MatchedRuleIndexes []int `json:"matchedRuleIndexes"`

	// TableMatches maps each evaluated decision table (by decision id) to the
	// rule ids the engine reported for it, in reporting order.
	TableMatches map[string][]string `json:"matchedRulesByDecision,omitempty"`
}

// ParseResult is the outcome of parsing a document.
type ParseResult struct {
	Decisions []Decision `json:"decisions"`
}
