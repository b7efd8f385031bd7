// Package simulator parses DMN documents for display and evaluates their
// decisions, reporting which table rows fired.
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/engine"
	"github.com/opensource-finance/dmnsim/internal/parser"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dmnsim-simulator")

// Observer receives measurements from the service. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveParse(duration time.Duration, decisions int, err error)
	ObserveEvaluation(decisionID string, duration time.Duration, matchedRules int, err error)
	ObserveReconciliationDegraded(decisionID string)
}

// Service is stateless between calls and safe for concurrent use.
type Service struct {
	engine   *engine.Engine
	observer Observer
}

// Option configures a Service.
type Option func(*Service)

// WithObserver reports measurements to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// New creates a service whose engine reports matched rules back to it.
func New(cfg domain.EngineConfig, opts ...Option) (*Service, error) {
	s := &Service{observer: nopObserver{}}
	for _, opt := range opts {
		opt(s)
	}

	eng, err := engine.New(
		engine.WithPostTableListener(captureMatches),
		engine.WithProgramCache(cfg.ProgramCacheSize, time.Duration(cfg.ProgramCacheTTL)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}
	s.engine = eng
	return s, nil
}

// Parse returns the decisions of a document in document order.
func (s *Service) Parse(ctx context.Context, dmnXML string) ([]domain.Decision, error) {
	_, span := tracer.Start(ctx, "simulator.Parse")
	defer span.End()

	start := time.Now()
	decisions, err := parser.Parse(dmnXML)
	s.observer.ObserveParse(time.Since(start), len(decisions), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("dmn.decisions", len(decisions)))
	return decisions, nil
}

// CacheStats reports the engine's compiled-program cache.
func (s *Service) CacheStats() (size int, hits, misses uint64) {
	return s.engine.CacheStats()
}

func spanFail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

type nopObserver struct{}

func (nopObserver) ObserveParse(time.Duration, int, error)              {}
func (nopObserver) ObserveEvaluation(string, time.Duration, int, error) {}
func (nopObserver) ObserveReconciliationDegraded(string)                {}
