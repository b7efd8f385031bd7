// Package worker evaluates decisions requested over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/dmnsim/internal/bus"
	"github.com/opensource-finance/dmnsim/internal/domain"
)

// Evaluator evaluates one decision of a document.
type Evaluator interface {
	Evaluate(ctx context.Context, dmnXML, decisionID string, variables map[string]any) (*domain.EvaluationResult, error)
}

// Worker processes evaluation requests asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	jobs         chan *domain.Message
	stopping     chan struct{}
	subscription domain.Subscription
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.Mutex
	started      bool
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       eventBus,
		evaluator: evaluator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to evaluation requests and starts cfg.Concurrency
// goroutines to serve them.
func (w *Worker) Start(cfg domain.WorkerConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("worker already started")
	}
	if w.ctx.Err() != nil {
		return fmt.Errorf("worker was stopped and cannot be restarted")
	}
	if w.bus == nil {
		return fmt.Errorf("worker requires an event bus")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	w.jobs = make(chan *domain.Message, queueSize)
	w.stopping = make(chan struct{})

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicEvaluationRequested, w.enqueue)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicEvaluationRequested, err)
	}
	w.subscription = sub

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.run()
	}
	w.started = true

	slog.Info("async worker started",
		"topic", domain.TopicEvaluationRequested,
		"concurrency", concurrency,
	)
	return nil
}

// enqueue blocks while the queue is full so bus backpressure applies.
func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case <-w.stopping:
		return fmt.Errorf("worker is stopping")
	default:
	}

	select {
	case w.jobs <- msg:
		return nil
	case <-w.stopping:
		return fmt.Errorf("worker is stopping")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run serves the queue until Stop, then finishes whatever is still queued.
func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case msg := <-w.jobs:
			w.process(w.ctx, msg)
		case <-w.stopping:
			for {
				select {
				case msg := <-w.jobs:
					w.process(w.ctx, msg)
				default:
					return
				}
			}
		}
	}
}

// process evaluates one request and publishes its outcome. Failures are
// reported on the completed topic, never dropped silently.
func (w *Worker) process(ctx context.Context, msg *domain.Message) {
	start := time.Now()

	var req domain.EvaluationRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse evaluation request",
			"message_id", msg.ID,
			"error", err,
		)
		w.complete(ctx, domain.EvaluationCompletedMessage{
			RequestID:          msg.ID,
			EvaluationID:       uuid.New().String(),
			MatchedRuleIndexes: []int{},
			Error:              "invalid evaluation request payload",
		}, start)
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}

	slog.Debug("processing evaluation request",
		"request_id", requestID,
		"decision_id", req.DecisionID,
	)

	out := domain.EvaluationCompletedMessage{
		RequestID:          requestID,
		EvaluationID:       uuid.New().String(),
		DecisionID:         req.DecisionID,
		MatchedRuleIndexes: []int{},
	}

	switch {
	case req.DMNXml == "":
		out.Error = "dmnXml is required"
	case req.DecisionID == "":
		out.Error = "decisionId is required"
	default:
		result, err := w.evaluator.Evaluate(ctx, req.DMNXml, req.DecisionID, req.Variables)
		if err != nil {
			out.Error = err.Error()
			break
		}
		out.Result = result.Payload
		out.MatchedRuleIndexes = result.MatchedRuleIndexes
	}

	w.complete(ctx, out, start)
}

func (w *Worker) complete(ctx context.Context, out domain.EvaluationCompletedMessage, start time.Time) {
	out.DurationMs = time.Since(start).Milliseconds()

	if err := bus.PublishJSON(ctx, w.bus, domain.TopicEvaluationCompleted, out); err != nil {
		slog.Error("failed to publish evaluation result",
			"request_id", out.RequestID,
			"error", err,
		)
		return
	}

	slog.Info("evaluation request processed",
		"request_id", out.RequestID,
		"decision_id", out.DecisionID,
		"matched_rules", out.MatchedRuleIndexes,
		"failed", out.Error != "",
		"duration_ms", out.DurationMs,
	)
}

// Stop unsubscribes from new requests, lets the workers finish every request
// already queued and waits for them. A worker that was never started, or is
// already stopped, only becomes unusable.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		w.cancel()
		return nil
	}

	if w.subscription != nil {
		if err := w.subscription.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", w.subscription.Topic(),
				"error", err,
			)
		}
		w.subscription = nil
	}

	close(w.stopping)
	w.wg.Wait()
	w.cancel()
	w.started = false

	slog.Info("async worker stopped")
	return nil
}

// Stats reports worker state.
type Stats struct {
	Running bool `json:"running"`
	Queued  int  `json:"queued"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Running: w.started,
		Queued:  len(w.jobs),
	}
}
