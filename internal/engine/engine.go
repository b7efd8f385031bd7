// Package engine evaluates DMN decisions.
//
// It implements a small subset of DMN: decision tables whose input entries
// are S-FEEL unary tests, and literal-expression decisions. Input
// expressions, output entries and literal expressions are compiled as CEL.
// Required decisions are evaluated first and their outputs are made
// available as variables.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/interpreter"
	"github.com/opensource-finance/dmnsim/internal/cache"
)

// Engine evaluates decisions. It is safe for concurrent use; it holds no state
// between calls except caches of compiled programs.
type Engine struct {
	listeners []TableListener
	envs      *cache.LRU[*cel.Env]
	programs  *cache.LRU[cel.Program]
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	listeners []TableListener
	cacheSize int
	cacheTTL  time.Duration
}

// WithPostTableListener registers a listener called after every decision
// table evaluation.
func WithPostTableListener(l TableListener) Option {
	return func(o *engineOptions) {
		o.listeners = append(o.listeners, l)
	}
}

// WithProgramCache sizes the compiled-program cache.
func WithProgramCache(size int, ttl time.Duration) Option {
	return func(o *engineOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// New creates an engine.
func New(opts ...Option) (*Engine, error) {
	o := engineOptions{cacheSize: 4096, cacheTTL: 10 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	// Fail early if CEL cannot build an environment at all.
	if _, err := cel.NewEnv(cel.Variable(inputVar, cel.DynType)); err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		listeners: o.listeners,
		envs:      cache.NewLRU[*cel.Env](256, o.cacheTTL),
		programs:  cache.NewLRU[cel.Program](o.cacheSize, o.cacheTTL),
	}, nil
}

// EvaluateDecision decodes document and evaluates the decision with id
// decisionID against variables.
func (e *Engine) EvaluateDecision(ctx context.Context, decisionID string, document io.Reader, variables map[string]any) (*DecisionResult, error) {
	defs, err := decodeDefinitions(document)
	if err != nil {
		return nil, err
	}

	target := defs.decision(decisionID)
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrDecisionNotFound, decisionID)
	}

	run := &evaluation{
		engine:   e,
		ctx:      ctx,
		defs:     defs,
		visiting: make(map[string]bool),
	}
	return run.evaluate(target, normalizeVariables(variables))
}

// CacheStats reports the compiled-program cache size and hit counters.
func (e *Engine) CacheStats() (size int, hits, misses uint64) {
	size, _ = e.programs.Stats()
	hits, misses = e.programs.Counters()
	return size, hits, misses
}

// evaluation is the state of one EvaluateDecision call.
type evaluation struct {
	engine   *Engine
	ctx      context.Context
	defs     *definitions
	visiting map[string]bool
}

func (ev *evaluation) evaluate(d *decision, vars map[string]any) (*DecisionResult, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	if ev.visiting[d.ID] {
		return nil, fmt.Errorf("decision %q is part of a requirement cycle", d.ID)
	}
	ev.visiting[d.ID] = true
	defer delete(ev.visiting, d.ID)

	vars, err := ev.resolveRequirements(d, vars)
	if err != nil {
		return nil, err
	}

	switch {
	case d.DecisionTable != nil:
		return ev.evaluateTable(d, vars)
	case d.LiteralExpression != nil:
		return ev.evaluateLiteral(d, vars)
	default:
		return nil, fmt.Errorf("decision %q has no decision table or literal expression", d.ID)
	}
}

// resolveRequirements evaluates the decisions d requires and returns a copy
// of vars extended with their outputs. A single-row result contributes its
// values; a multi-row result contributes one list per output name.
func (ev *evaluation) resolveRequirements(d *decision, vars map[string]any) (map[string]any, error) {
	if len(d.InformationRequirements) == 0 {
		return vars, nil
	}

	merged := make(map[string]any, len(vars))
	for k, v := range vars {
		merged[k] = v
	}

	for _, req := range d.InformationRequirements {
		id, ok := req.requiredDecisionID()
		if !ok {
			continue
		}
		required := ev.defs.decision(id)
		if required == nil {
			return nil, fmt.Errorf("decision %q requires unknown decision %q", d.ID, id)
		}

		res, err := ev.evaluate(required, vars)
		if err != nil {
			return nil, fmt.Errorf("required decision %q: %w", id, err)
		}

		switch len(res.ResultList) {
		case 0:
		case 1:
			for name, v := range res.ResultList[0] {
				merged[name] = v
			}
		default:
			lists := make(map[string][]any)
			for _, row := range res.ResultList {
				for name, v := range row {
					lists[name] = append(lists[name], v)
				}
			}
			for name, values := range lists {
				merged[name] = values
			}
		}
	}
	return merged, nil
}

func (ev *evaluation) evaluateLiteral(d *decision, vars map[string]any) (*DecisionResult, error) {
	sc, err := ev.engine.newScope(vars)
	if err != nil {
		return nil, err
	}

	value, err := sc.eval(strings.TrimSpace(d.LiteralExpression.Text), nil)
	if err != nil {
		return nil, fmt.Errorf("decision %q literal expression: %w", d.ID, err)
	}

	name := d.Name
	if d.Variable != nil && d.Variable.Name != "" {
		name = d.Variable.Name
	}
	if name == "" {
		name = d.ID
	}
	return &DecisionResult{ResultList: []map[string]any{{name: value}}}, nil
}

func (ev *evaluation) evaluateTable(d *decision, vars map[string]any) (*DecisionResult, error) {
	table := d.DecisionTable
	policy, err := parseHitPolicy(table.HitPolicy, table.Aggregation)
	if err != nil {
		return nil, fmt.Errorf("decision %q: %w", d.ID, err)
	}

	sc, err := ev.engine.newScope(vars)
	if err != nil {
		return nil, err
	}

	inputValues := make([]any, len(table.Inputs))
	for i, in := range table.Inputs {
		expr := strings.TrimSpace(in.InputExpression.Text)
		if expr == "" {
			continue
		}
		v, err := sc.eval(expr, nil)
		if err != nil {
			return nil, fmt.Errorf("decision %q input %q: %w", d.ID, inputName(in), err)
		}
		inputValues[i] = v
	}

	var matched []int
	for ri, r := range table.Rules {
		if len(r.InputEntries) != len(table.Inputs) {
			return nil, fmt.Errorf("decision %q rule %q has %d input entries for %d inputs",
				d.ID, r.ID, len(r.InputEntries), len(table.Inputs))
		}
		ok, err := sc.matches(r, inputValues)
		if err != nil {
			return nil, fmt.Errorf("decision %q rule %q: %w", d.ID, r.ID, err)
		}
		if ok {
			matched = append(matched, ri)
		}
	}

	evaluated := make([]EvaluatedRule, 0, len(matched))
	for _, ri := range matched {
		r := table.Rules[ri]
		if len(r.OutputEntries) != len(table.Outputs) {
			return nil, fmt.Errorf("decision %q rule %q has %d output entries for %d outputs",
				d.ID, r.ID, len(r.OutputEntries), len(table.Outputs))
		}
		outputs := make(map[string]any, len(table.Outputs))
		for oi, out := range table.Outputs {
			v, err := sc.evalOutput(r.OutputEntries[oi].Text)
			if err != nil {
				return nil, fmt.Errorf("decision %q rule %q output %q: %w", d.ID, r.ID, out.resultName(oi), err)
			}
			outputs[out.resultName(oi)] = v
		}
		evaluated = append(evaluated, EvaluatedRule{ID: r.ID, Outputs: outputs})
	}

	selected, collect, err := policy.apply(evaluated, len(table.Outputs))
	if err != nil {
		return nil, fmt.Errorf("decision %q: %w", d.ID, err)
	}

	event := &TableEvaluationEvent{
		DecisionID:      d.ID,
		DecisionName:    d.Name,
		DecisionTableID: table.ID,
		HitPolicy:       policy.String(),
		MatchingRules:   selected,
		CollectResult:   collect,
	}
	for _, l := range ev.engine.listeners {
		l(ev.ctx, event)
	}

	result := &DecisionResult{ResultList: []map[string]any{}}
	if policy.aggregates() {
		result.CollectResult = collect
		if collect != nil && len(table.Outputs) == 1 {
			result.ResultList = append(result.ResultList, map[string]any{table.Outputs[0].resultName(0): collect})
		}
		return result, nil
	}
	for _, r := range selected {
		result.ResultList = append(result.ResultList, r.Outputs)
	}
	return result, nil
}

func inputName(in input) string {
	if in.Label != "" {
		return in.Label
	}
	return in.ID
}

// scope compiles and evaluates expressions against one set of variables.
type scope struct {
	engine     *Engine
	env        *cel.Env
	signature  string
	activation interpreter.Activation
}

func (e *Engine) newScope(vars map[string]any) (*scope, error) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		if isIdentifier(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	signature := strings.Join(names, ",")

	env, _, err := e.envs.GetOrCreate(signature, func() (*cel.Env, error) {
		opts := make([]cel.EnvOption, 0, len(names)+1)
		opts = append(opts, cel.Variable(inputVar, cel.DynType))
		for _, name := range names {
			opts = append(opts, cel.Variable(name, cel.DynType))
		}
		return cel.NewEnv(opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	bindings := make(map[string]any, len(names))
	for _, name := range names {
		bindings[name] = vars[name]
	}
	activation, err := interpreter.NewActivation(bindings)
	if err != nil {
		return nil, fmt.Errorf("failed to bind variables: %w", err)
	}

	return &scope{engine: e, env: env, signature: signature, activation: activation}, nil
}

func (s *scope) program(source string) (cel.Program, error) {
	prg, hit, err := s.engine.programs.GetOrCreate(s.signature+"\x00"+source, func() (cel.Program, error) {
		ast, issues := s.env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile %q: %w", source, issues.Err())
		}
		return s.env.Program(ast)
	})
	if err == nil && !hit {
		slog.Debug("compiled expression", "source", source)
	}
	return prg, err
}

// eval runs source. When input is non-nil it is bound as the current input
// column value.
func (s *scope) eval(source string, input *any) (any, error) {
	prg, err := s.program(source)
	if err != nil {
		return nil, err
	}

	activation := s.activation
	if input != nil {
		column, err := interpreter.NewActivation(map[string]any{inputVar: *input})
		if err != nil {
			return nil, err
		}
		activation = interpreter.NewHierarchicalActivation(s.activation, column)
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, err
	}
	return toNative(out), nil
}

func (s *scope) matches(r rule, inputValues []any) (bool, error) {
	for i, cell := range r.InputEntries {
		source, err := unaryTestsToCEL(cell.Text)
		if err != nil {
			return false, err
		}
		if source == "true" {
			continue
		}
		if _, err := s.program(source); err != nil {
			return false, fmt.Errorf("input entry %q: %w", strings.TrimSpace(cell.Text), err)
		}
		v, err := s.eval(source, &inputValues[i])
		if err != nil {
			if inputValues[i] == nil {
				// A missing input value satisfies no test that could fail on it.
				return false, nil
			}
			return false, fmt.Errorf("input entry %q: %w", strings.TrimSpace(cell.Text), err)
		}
		ok, isBool := v.(bool)
		if !isBool {
			return false, fmt.Errorf("input entry %q did not evaluate to a boolean", strings.TrimSpace(cell.Text))
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *scope) evalOutput(text string) (any, error) {
	source := strings.TrimSpace(text)
	if source == "" {
		return nil, nil
	}
	return s.eval(literalToCEL(source), nil)
}
