package engine

import "context"

// DecisionResult is the outcome of one EvaluateDecision call.
type DecisionResult struct {
	// ResultList holds one mapping of output name to value per selected rule.
	// An aggregating COLLECT table yields a single row holding the aggregate.
	ResultList []map[string]any `json:"resultList"`

	// CollectResult is the aggregate of a COLLECT table with an aggregator.
	CollectResult any `json:"collectResult,omitempty"`
}

// SingleEntry returns the only value of the only row, if the result has
// exactly that shape.
func (r *DecisionResult) SingleEntry() (any, bool) {
	if r == nil || len(r.ResultList) != 1 || len(r.ResultList[0]) != 1 {
		return nil, false
	}
	for _, v := range r.ResultList[0] {
		return v, true
	}
	return nil, false
}

// TableEvaluationEvent describes one decision-table execution.
type TableEvaluationEvent struct {
	DecisionID      string
	DecisionName    string
	DecisionTableID string
	HitPolicy       string

	// MatchingRules are the rules the hit policy selected, in table order.
	MatchingRules []EvaluatedRule

	// CollectResult is set for aggregating COLLECT tables.
	CollectResult any
}

// EvaluatedRule is one matched rule and the outputs it produced.
type EvaluatedRule struct {
	ID      string
	Outputs map[string]any
}

// TableListener is notified synchronously after each decision table has been
// evaluated, on the goroutine that called EvaluateDecision. ctx is the context
// passed to EvaluateDecision.
type TableListener func(ctx context.Context, event *TableEvaluationEvent)
