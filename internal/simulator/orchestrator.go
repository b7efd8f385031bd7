package simulator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/engine"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Evaluate evaluates one decision of a document against variables and maps
// the rules the engine matched back to their 1-based rows.
//
// Errors are *domain.MalformedDocumentError, *domain.DecisionNotFoundError or
// *domain.EvaluationError. Failing to map rows is not an error: the result is
// returned with empty MatchedRuleIndexes.
func (s *Service) Evaluate(ctx context.Context, dmnXML, decisionID string, variables map[string]any) (*domain.EvaluationResult, error) {
	ctx, span := tracer.Start(ctx, "simulator.Evaluate",
		trace.WithAttributes(attribute.String("dmn.decision_id", decisionID)),
	)
	defer span.End()

	if variables == nil {
		variables = map[string]any{}
	}

	start := time.Now()
	decisionResult, tables, err := s.evaluateCapturing(ctx, dmnXML, decisionID, variables)
	if err != nil {
		err = classifyEngineError(decisionID, err)
		s.observer.ObserveEvaluation(decisionID, time.Since(start), 0, err)
		spanFail(span, err)
		return nil, err
	}

	matchedIDs := tables.forDecision(decisionID)
	indexes, ok := reconcile(dmnXML, decisionID, matchedIDs)
	if !ok {
		s.observer.ObserveReconciliationDegraded(decisionID)
	}

	s.observer.ObserveEvaluation(decisionID, time.Since(start), len(indexes), nil)
	span.SetAttributes(attribute.IntSlice("dmn.matched_rules", indexes))

	return &domain.EvaluationResult{
		Payload:            normalizePayload(decisionResult),
		MatchedRuleIndexes: indexes,
		TableMatches:       tables.byDecision(),
	}, nil
}

// evaluateCapturing runs the engine with a recorder scoped to this call.
// The recorder starts empty and is drained before returning, so nothing
// captured here can be observed by another evaluation.
func (s *Service) evaluateCapturing(ctx context.Context, dmnXML, decisionID string, variables map[string]any) (*engine.DecisionResult, tableMatches, error) {
	rec := &matchRecorder{}
	callCtx := context.WithValue(ctx, recorderKey{}, rec)

	res, err := s.engine.EvaluateDecision(callCtx, decisionID, strings.NewReader(dmnXML), variables)
	return res, rec.drain(), err
}

func classifyEngineError(decisionID string, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidXML):
		return &domain.MalformedDocumentError{Err: err}
	case errors.Is(err, engine.ErrDecisionNotFound):
		return &domain.DecisionNotFoundError{DecisionID: decisionID}
	default:
		return &domain.EvaluationError{DecisionID: decisionID, Err: err}
	}
}

// normalizePayload picks the result shape callers see: the row list when it
// has rows, else the single aggregated entry, else the raw result.
func normalizePayload(res *engine.DecisionResult) any {
	if res == nil {
		return nil
	}
	if len(res.ResultList) > 0 {
		return res.ResultList
	}
	if v, ok := res.SingleEntry(); ok && v != nil {
		return v
	}
	return res
}

type recorderKey struct{}

// captureMatches is the engine's post-table listener. It writes only to the
// recorder carried by the evaluation's own context.
func captureMatches(ctx context.Context, ev *engine.TableEvaluationEvent) {
	rec, ok := ctx.Value(recorderKey{}).(*matchRecorder)
	if !ok {
		return
	}

	ids := make([]string, 0, len(ev.MatchingRules))
	for _, r := range ev.MatchingRules {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	rec.record(tableMatch{decisionID: ev.DecisionID, ruleIDs: ids})
}

type tableMatch struct {
	decisionID string
	ruleIDs    []string
}

// tableMatches is every table event of one evaluation, in reporting order.
type tableMatches []tableMatch

type matchRecorder struct {
	mu     sync.Mutex
	tables tableMatches
}

func (r *matchRecorder) record(m tableMatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, m)
}

func (r *matchRecorder) drain() tableMatches {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := r.tables
	r.tables = nil
	return tables
}

// forDecision returns the rule ids of the last event reported for
// decisionID's own table, or nil when that decision has no table event.
// Events of other tables are never substituted.
func (t tableMatches) forDecision(decisionID string) []string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].decisionID == decisionID {
			return t[i].ruleIDs
		}
	}
	return nil
}

func (t tableMatches) byDecision() map[string][]string {
	if len(t) == 0 {
		return nil
	}
	out := make(map[string][]string, len(t))
	for _, m := range t {
		out[m.decisionID] = m.ruleIDs
	}
	return out
}
