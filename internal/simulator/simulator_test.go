package simulator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/dmnsim/internal/domain"
)

const ageDoc = `<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/" id="ages">
  <decision id="d1" name="Age Category">
    <decisionTable id="t1">
      <input id="i1" label="Age"><inputExpression typeRef="number"><text>age</text></inputExpression></input>
      <output id="o1" name="category" typeRef="string"/>
      <rule id="r1"><inputEntry><text>&lt;18</text></inputEntry><outputEntry><text>"minor"</text></outputEntry></rule>
      <rule id="r2"><inputEntry><text>&gt;=18</text></inputEntry><outputEntry><text>"adult"</text></outputEntry></rule>
    </decisionTable>
  </decision>
</definitions>`

const chainDoc = `<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/">
  <decision id="category" name="Category">
    <decisionTable id="categoryTable">
      <input id="i1"><inputExpression typeRef="number"><text>age</text></inputExpression></input>
      <output id="o1" name="category" typeRef="string"/>
      <rule id="c1"><inputEntry><text>&lt; 18</text></inputEntry><outputEntry><text>"minor"</text></outputEntry></rule>
      <rule id="c2"><inputEntry><text>&gt;= 18</text></inputEntry><outputEntry><text>"adult"</text></outputEntry></rule>
    </decisionTable>
  </decision>
  <decision id="discount" name="Discount">
    <informationRequirement><requiredDecision href="#category"/></informationRequirement>
    <decisionTable id="discountTable" hitPolicy="FIRST">
      <input id="i2"><inputExpression typeRef="string"><text>category</text></inputExpression></input>
      <output id="o2" name="discount" typeRef="number"/>
      <rule id="x1"><inputEntry><text>"minor"</text></inputEntry><outputEntry><text>0.5</text></outputEntry></rule>
      <rule id="x2"><inputEntry><text>"adult"</text></inputEntry><outputEntry><text>0.1</text></outputEntry></rule>
      <rule id="x3"><inputEntry><text>-</text></inputEntry><outputEntry><text>0</text></outputEntry></rule>
    </decisionTable>
  </decision>
  <decision id="greeting"><variable name="greeting"/><literalExpression><text>"hello " + who</text></literalExpression></decision>
</definitions>`

const threeRuleDoc = `<dmn:definitions xmlns:dmn="https://www.omg.org/spec/DMN/20191111/MODEL/">
  <dmn:decision id="other"><dmn:decisionTable id="ot"><dmn:rule id="r1"/></dmn:decisionTable></dmn:decision>
  <dmn:decision id="d1">
    <dmn:decisionTable id="t1">
      <dmn:rule id="r1"/>
      <dmn:rule id="r2"/>
      <dmn:rule id="r3"/>
    </dmn:decisionTable>
  </dmn:decision>
  <dmn:decision id="literal"><dmn:literalExpression><dmn:text>1</dmn:text></dmn:literalExpression></dmn:decision>
</dmn:definitions>`

type recordingObserver struct {
	mu          sync.Mutex
	parses      int
	evaluations []int
	failures    int
	degraded    []string
}

func (o *recordingObserver) ObserveParse(_ time.Duration, _ int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parses++
}

func (o *recordingObserver) ObserveEvaluation(_ string, _ time.Duration, matched int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
		return
	}
	o.evaluations = append(o.evaluations, matched)
}

func (o *recordingObserver) ObserveReconciliationDegraded(decisionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.degraded = append(o.degraded, decisionID)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New(domain.DefaultConfig().Engine, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return svc
}

func TestEvaluate(t *testing.T) {
	svc := newTestService(t)

	t.Run("AdultRow", func(t *testing.T) {
		res, err := svc.Evaluate(context.Background(), ageDoc, "d1", map[string]any{"age": 20})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		want := []map[string]any{{"category": "adult"}}
		if !reflect.DeepEqual(res.Payload, want) {
			t.Errorf("expected payload %v, got %#v", want, res.Payload)
		}
		if !reflect.DeepEqual(res.MatchedRuleIndexes, []int{2}) {
			t.Errorf("expected indexes [2], got %v", res.MatchedRuleIndexes)
		}
		if !reflect.DeepEqual(res.TableMatches, map[string][]string{"d1": {"r2"}}) {
			t.Errorf("unexpected table matches: %v", res.TableMatches)
		}
	})

	t.Run("MinorRow", func(t *testing.T) {
		res, err := svc.Evaluate(context.Background(), ageDoc, "d1", map[string]any{"age": 12})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !reflect.DeepEqual(res.MatchedRuleIndexes, []int{1}) {
			t.Errorf("expected indexes [1], got %v", res.MatchedRuleIndexes)
		}
	})

	t.Run("RequiredDecision", func(t *testing.T) {
		res, err := svc.Evaluate(context.Background(), chainDoc, "discount", map[string]any{"age": 30})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !reflect.DeepEqual(res.MatchedRuleIndexes, []int{2}) {
			t.Errorf("expected indexes [2] of the discount table, got %v", res.MatchedRuleIndexes)
		}
		wantTables := map[string][]string{"category": {"c2"}, "discount": {"x2"}}
		if !reflect.DeepEqual(res.TableMatches, wantTables) {
			t.Errorf("expected table matches %v, got %v", wantTables, res.TableMatches)
		}
	})

	t.Run("LiteralDecision", func(t *testing.T) {
		res, err := svc.Evaluate(context.Background(), chainDoc, "greeting", map[string]any{"who": "ada"})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.MatchedRuleIndexes == nil || len(res.MatchedRuleIndexes) != 0 {
			t.Errorf("expected empty non-nil indexes, got %#v", res.MatchedRuleIndexes)
		}
	})
}

func TestEvaluateLiteralOverTable(t *testing.T) {
	obs := &recordingObserver{}
	svc := newTestService(t, WithObserver(obs))

	doc := strings.Replace(chainDoc, "</definitions>", `  <decision id="summary">
    <variable name="summary"/>
    <informationRequirement><requiredDecision href="#category"/></informationRequirement>
    <literalExpression><text>"you are " + category</text></literalExpression>
  </decision>
</definitions>`, 1)

	res, err := svc.Evaluate(context.Background(), doc, "summary", map[string]any{"age": 30})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Payload != "you are adult" {
		t.Errorf("expected payload 'you are adult', got %#v", res.Payload)
	}

	// The target has no table of its own, so the required table's rows are
	// reported only under its own decision.
	if res.MatchedRuleIndexes == nil || len(res.MatchedRuleIndexes) != 0 {
		t.Errorf("expected empty non-nil indexes, got %#v", res.MatchedRuleIndexes)
	}
	if !reflect.DeepEqual(res.TableMatches, map[string][]string{"category": {"c2"}}) {
		t.Errorf("unexpected table matches: %v", res.TableMatches)
	}
	if len(obs.degraded) != 0 {
		t.Errorf("expected no degraded reconciliation, got %v", obs.degraded)
	}
}

func TestEvaluateIsolatesCalls(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Evaluate(ctx, ageDoc, "d1", map[string]any{"age": 20})
	if err != nil {
		t.Fatalf("first Evaluate failed: %v", err)
	}
	if !reflect.DeepEqual(first.MatchedRuleIndexes, []int{2}) {
		t.Fatalf("expected [2], got %v", first.MatchedRuleIndexes)
	}

	// A null age matches no row.
	second, err := svc.Evaluate(ctx, ageDoc, "d1", map[string]any{"age": nil})
	if err != nil {
		t.Fatalf("second Evaluate failed: %v", err)
	}
	if second.MatchedRuleIndexes == nil || len(second.MatchedRuleIndexes) != 0 {
		t.Errorf("expected no matches from the second call, got %#v", second.MatchedRuleIndexes)
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	svc := newTestService(t)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		age, want := 40, 2
		if i%2 == 0 {
			age, want = 10, 1
		}
		wg.Add(1)
		go func(age, want int) {
			defer wg.Done()
			res, err := svc.Evaluate(context.Background(), ageDoc, "d1", map[string]any{"age": age})
			if err != nil {
				errs <- err
				return
			}
			if !reflect.DeepEqual(res.MatchedRuleIndexes, []int{want}) {
				errs <- errors.New("cross-talk between concurrent evaluations")
			}
		}(age, want)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestEvaluateNilVariables(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Evaluate(context.Background(), chainDoc, "greeting", nil)
	if err == nil {
		t.Fatalf("expected an evaluation error for the undeclared variable, got %v", res)
	}
	if !errors.Is(err, domain.ErrEvaluation) {
		t.Errorf("expected ErrEvaluation, got %v", err)
	}
}

func TestEvaluateErrors(t *testing.T) {
	svc := newTestService(t)

	t.Run("MalformedDocument", func(t *testing.T) {
		_, err := svc.Evaluate(context.Background(), "<definitions><decision", "d1", nil)
		var malformed *domain.MalformedDocumentError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedDocumentError, got %v", err)
		}
		if !errors.Is(err, domain.ErrMalformedDocument) {
			t.Error("expected error to match ErrMalformedDocument")
		}
	})

	t.Run("SecondRootElement", func(t *testing.T) {
		doc := ageDoc + `<definitions><decision id="d2"/></definitions>`
		_, err := svc.Evaluate(context.Background(), doc, "d2", nil)
		if !errors.Is(err, domain.ErrMalformedDocument) {
			t.Fatalf("expected ErrMalformedDocument, got %v", err)
		}
		if _, err := svc.Parse(context.Background(), doc); !errors.Is(err, domain.ErrMalformedDocument) {
			t.Errorf("expected Parse to reject the same document, got %v", err)
		}
	})

	t.Run("DecisionNotFound", func(t *testing.T) {
		_, err := svc.Evaluate(context.Background(), ageDoc, "missing", map[string]any{"age": 1})
		var notFound *domain.DecisionNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected DecisionNotFoundError, got %v", err)
		}
		if notFound.DecisionID != "missing" {
			t.Errorf("expected decision id missing, got %s", notFound.DecisionID)
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		_, err := svc.Evaluate(context.Background(), ageDoc, "d1", map[string]any{"age": "old"})
		var evalErr *domain.EvaluationError
		if !errors.As(err, &evalErr) {
			t.Fatalf("expected EvaluationError, got %v", err)
		}
		if evalErr.DecisionID != "d1" {
			t.Errorf("expected decision id d1, got %s", evalErr.DecisionID)
		}
	})
}

func TestParse(t *testing.T) {
	obs := &recordingObserver{}
	svc := newTestService(t, WithObserver(obs))

	decisions, err := svc.Parse(context.Background(), chainDoc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	if decisions[1].ID != "discount" || len(decisions[1].Rules) != 3 {
		t.Errorf("unexpected second decision: %+v", decisions[1])
	}

	if _, err := svc.Parse(context.Background(), "not xml"); !errors.Is(err, domain.ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
	if obs.parses != 2 {
		t.Errorf("expected 2 observed parses, got %d", obs.parses)
	}
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	svc := newTestService(t, WithObserver(obs))

	if _, err := svc.Evaluate(context.Background(), ageDoc, "d1", map[string]any{"age": 20}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if _, err := svc.Evaluate(context.Background(), ageDoc, "missing", nil); err == nil {
		t.Fatal("expected an error for a missing decision")
	}

	if !reflect.DeepEqual(obs.evaluations, []int{1}) {
		t.Errorf("expected one evaluation with one match, got %v", obs.evaluations)
	}
	if obs.failures != 1 {
		t.Errorf("expected 1 failure, got %d", obs.failures)
	}
	if len(obs.degraded) != 0 {
		t.Errorf("expected no degraded reconciliations, got %v", obs.degraded)
	}
}

func TestReconcileRuleIndexes(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		decisionID string
		ids        []string
		want       []int
		wantOK     bool
	}{
		{"DocumentOrder", threeRuleDoc, "d1", []string{"r3", "r1"}, []int{1, 3}, true},
		{"Single", threeRuleDoc, "d1", []string{"r2"}, []int{2}, true},
		{"UnknownIDsIgnored", threeRuleDoc, "d1", []string{"nope", "r2"}, []int{2}, true},
		{"NoMatches", threeRuleDoc, "d1", nil, []int{}, true},
		{"OtherDecisionTable", threeRuleDoc, "other", []string{"r1"}, []int{1}, true},
		{"UnknownDecision", threeRuleDoc, "missing", []string{"r1"}, []int{}, false},
		{"NoDecisionTable", threeRuleDoc, "literal", []string{"r1"}, []int{}, false},
		{"MalformedDocument", `<definitions><decision id="d1"`, "d1", []string{"r1"}, []int{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reconcile(tt.doc, tt.decisionID, tt.ids)
			if got == nil {
				t.Fatal("expected a non-nil slice")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if exported := ReconcileRuleIndexes(tt.doc, tt.decisionID, tt.ids); !reflect.DeepEqual(exported, tt.want) {
				t.Errorf("ReconcileRuleIndexes returned %v", exported)
			}
		})
	}
}
