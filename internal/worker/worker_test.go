package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/dmnsim/internal/bus"
	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/simulator"
)

const ageDoc = `<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/">
  <decision id="d1" name="Age Category">
    <decisionTable id="t1">
      <input id="i1"><inputExpression typeRef="number"><text>age</text></inputExpression></input>
      <output id="o1" name="category" typeRef="string"/>
      <rule id="r1"><inputEntry><text>&lt;18</text></inputEntry><outputEntry><text>"minor"</text></outputEntry></rule>
      <rule id="r2"><inputEntry><text>&gt;=18</text></inputEntry><outputEntry><text>"adult"</text></outputEntry></rule>
    </decisionTable>
  </decision>
</definitions>`

func newTestWorker(t *testing.T) (*Worker, *bus.ChannelBus, <-chan domain.EvaluationCompletedMessage) {
	t.Helper()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	sim, err := simulator.New(domain.DefaultConfig().Engine)
	if err != nil {
		t.Fatalf("simulator.New failed: %v", err)
	}

	results := make(chan domain.EvaluationCompletedMessage, 16)
	_, err = eventBus.Subscribe(context.Background(), domain.TopicEvaluationCompleted, func(ctx context.Context, msg *domain.Message) error {
		var out domain.EvaluationCompletedMessage
		if err := json.Unmarshal(msg.Payload, &out); err != nil {
			t.Errorf("invalid completed payload: %v", err)
			return err
		}
		results <- out
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	w := NewWorker(eventBus, sim)
	if err := w.Start(domain.WorkerConfig{Concurrency: 2, QueueSize: 8}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	return w, eventBus, results
}

func request(t *testing.T, eventBus *bus.ChannelBus, req any) {
	t.Helper()
	if err := bus.PublishJSON(context.Background(), eventBus, domain.TopicEvaluationRequested, req); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func awaitResult(t *testing.T, results <-chan domain.EvaluationCompletedMessage) domain.EvaluationCompletedMessage {
	t.Helper()
	select {
	case out := <-results:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for evaluation result")
		return domain.EvaluationCompletedMessage{}
	}
}

func TestWorkerEvaluates(t *testing.T) {
	_, eventBus, results := newTestWorker(t)

	request(t, eventBus, domain.EvaluationRequestMessage{
		RequestID:  "req-1",
		DMNXml:     ageDoc,
		DecisionID: "d1",
		Variables:  map[string]any{"age": 42},
	})

	out := awaitResult(t, results)
	if out.RequestID != "req-1" || out.DecisionID != "d1" {
		t.Errorf("unexpected ids: %+v", out)
	}
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if len(out.MatchedRuleIndexes) != 1 || out.MatchedRuleIndexes[0] != 2 {
		t.Errorf("expected matched rows [2], got %v", out.MatchedRuleIndexes)
	}
	if out.EvaluationID == "" {
		t.Error("expected evaluation id")
	}
}

func TestWorkerReportsFailures(t *testing.T) {
	_, eventBus, results := newTestWorker(t)

	tests := []struct {
		name string
		req  domain.EvaluationRequestMessage
	}{
		{"MissingDocument", domain.EvaluationRequestMessage{RequestID: "a", DecisionID: "d1"}},
		{"MissingDecision", domain.EvaluationRequestMessage{RequestID: "b", DMNXml: ageDoc}},
		{"UnknownDecision", domain.EvaluationRequestMessage{RequestID: "c", DMNXml: ageDoc, DecisionID: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request(t, eventBus, tt.req)
			out := awaitResult(t, results)
			if out.RequestID != tt.req.RequestID {
				t.Errorf("expected request id %s, got %s", tt.req.RequestID, out.RequestID)
			}
			if out.Error == "" {
				t.Error("expected an error in the result")
			}
			if out.MatchedRuleIndexes == nil || len(out.MatchedRuleIndexes) != 0 {
				t.Errorf("expected empty matched rows, got %#v", out.MatchedRuleIndexes)
			}
		})
	}

	t.Run("InvalidPayload", func(t *testing.T) {
		if err := eventBus.Publish(context.Background(), domain.TopicEvaluationRequested, []byte("{not json")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		out := awaitResult(t, results)
		if out.Error == "" || out.RequestID == "" {
			t.Errorf("expected error result keyed by message id, got %+v", out)
		}
	})
}

func TestWorkerLifecycle(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	sim, err := simulator.New(domain.DefaultConfig().Engine)
	if err != nil {
		t.Fatalf("simulator.New failed: %v", err)
	}

	w := NewWorker(eventBus, sim)
	if err := w.Start(domain.WorkerConfig{Concurrency: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !w.GetStats().Running {
		t.Error("expected worker running")
	}
	if err := w.Start(domain.WorkerConfig{Concurrency: 1}); err == nil {
		t.Error("expected error starting twice")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if w.GetStats().Running {
		t.Error("expected worker stopped")
	}
	if err := w.Start(domain.WorkerConfig{Concurrency: 1}); err == nil {
		t.Error("expected error restarting a stopped worker")
	}

	if err := NewWorker(nil, sim).Start(domain.WorkerConfig{}); err == nil {
		t.Error("expected error without a bus")
	}
}

// gatedEvaluator blocks every evaluation until release is closed.
type gatedEvaluator struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedEvaluator) Evaluate(ctx context.Context, dmnXML, decisionID string, variables map[string]any) (*domain.EvaluationResult, error) {
	g.started <- struct{}{}
	<-g.release
	g.calls.Add(1)
	return &domain.EvaluationResult{MatchedRuleIndexes: []int{1}}, nil
}

func TestWorkerStopDrainsQueue(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	eval := &gatedEvaluator{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	w := NewWorker(eventBus, eval)
	if err := w.Start(domain.WorkerConfig{Concurrency: 1, QueueSize: 4}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	payload, _ := json.Marshal(domain.EvaluationRequestMessage{RequestID: "req", DMNXml: ageDoc, DecisionID: "d1"})
	for i := 0; i < 3; i++ {
		if err := w.enqueue(context.Background(), &domain.Message{ID: "m", Payload: payload}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	select {
	case <-eval.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first evaluation")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	close(eval.release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Stop")
	}

	if got := eval.calls.Load(); got != 3 {
		t.Errorf("expected all 3 queued requests evaluated before Stop returned, got %d", got)
	}
	if err := w.enqueue(context.Background(), &domain.Message{ID: "late", Payload: payload}); err == nil {
		t.Error("expected enqueue after Stop to fail")
	}
}
