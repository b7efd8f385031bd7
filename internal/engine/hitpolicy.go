package engine

import (
	"fmt"
	"reflect"
	"strings"
)

const (
	policyUnique      = "UNIQUE"
	policyFirst       = "FIRST"
	policyAny         = "ANY"
	policyRuleOrder   = "RULE ORDER"
	policyCollect     = "COLLECT"
	policyPriority    = "PRIORITY"
	policyOutputOrder = "OUTPUT ORDER"
)

const (
	aggregateSum   = "SUM"
	aggregateMin   = "MIN"
	aggregateMax   = "MAX"
	aggregateCount = "COUNT"
)

type hitPolicy struct {
	kind        string
	aggregation string
}

func parseHitPolicy(policy, aggregation string) (hitPolicy, error) {
	kind := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(policy, "_", " ")))
	if kind == "" {
		kind = policyUnique
	}
	agg := strings.ToUpper(strings.TrimSpace(aggregation))

	switch kind {
	case policyUnique, policyFirst, policyAny, policyRuleOrder:
		if agg != "" {
			return hitPolicy{}, fmt.Errorf("%w: aggregation %s is only valid with COLLECT", ErrUnsupportedHitPolicy, agg)
		}
	case policyCollect:
		switch agg {
		case "", aggregateSum, aggregateMin, aggregateMax, aggregateCount:
		default:
			return hitPolicy{}, fmt.Errorf("%w: unknown aggregation %q", ErrUnsupportedHitPolicy, agg)
		}
	case policyPriority, policyOutputOrder:
		return hitPolicy{}, fmt.Errorf("%w: %s", ErrUnsupportedHitPolicy, kind)
	default:
		return hitPolicy{}, fmt.Errorf("%w: %q", ErrUnsupportedHitPolicy, policy)
	}
	return hitPolicy{kind: kind, aggregation: agg}, nil
}

func (p hitPolicy) String() string {
	if p.aggregation != "" {
		return p.kind + " " + p.aggregation
	}
	return p.kind
}

func (p hitPolicy) aggregates() bool {
	return p.aggregation != ""
}

// apply selects the rules reported as matching, and for aggregating tables
// computes the aggregate.
func (p hitPolicy) apply(matched []EvaluatedRule, outputCount int) ([]EvaluatedRule, any, error) {
	switch p.kind {
	case policyUnique:
		if len(matched) > 1 {
			return nil, nil, fmt.Errorf("%w: UNIQUE table matched %d rules (%s)", ErrHitPolicyViolation, len(matched), ruleIDs(matched))
		}
		return matched, nil, nil

	case policyFirst:
		if len(matched) == 0 {
			return matched, nil, nil
		}
		return matched[:1], nil, nil

	case policyAny:
		if len(matched) == 0 {
			return matched, nil, nil
		}
		for _, r := range matched[1:] {
			if !reflect.DeepEqual(r.Outputs, matched[0].Outputs) {
				return nil, nil, fmt.Errorf("%w: ANY table matched rules with different outputs (%s)", ErrHitPolicyViolation, ruleIDs(matched))
			}
		}
		return matched[:1], nil, nil

	case policyCollect:
		if !p.aggregates() {
			return matched, nil, nil
		}
		if outputCount != 1 {
			return nil, nil, fmt.Errorf("%w: COLLECT %s needs exactly one output, table has %d", ErrUnsupportedHitPolicy, p.aggregation, outputCount)
		}
		collect, err := p.aggregate(matched)
		return matched, collect, err

	default:
		return matched, nil, nil
	}
}

func (p hitPolicy) aggregate(matched []EvaluatedRule) (any, error) {
	var values []any
	for _, r := range matched {
		for _, v := range r.Outputs {
			if v != nil {
				values = append(values, v)
			}
		}
	}

	if p.aggregation == aggregateCount {
		return len(values), nil
	}
	if len(values) == 0 {
		return nil, nil
	}

	numbers := make([]float64, 0, len(values))
	for _, v := range values {
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("COLLECT %s over non-numeric value %v", p.aggregation, v)
		}
		numbers = append(numbers, n)
	}

	result := numbers[0]
	for _, n := range numbers[1:] {
		switch p.aggregation {
		case aggregateSum:
			result += n
		case aggregateMin:
			if n < result {
				result = n
			}
		case aggregateMax:
			if n > result {
				result = n
			}
		}
	}
	return result, nil
}

func ruleIDs(rules []EvaluatedRule) string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return strings.Join(ids, ", ")
}
