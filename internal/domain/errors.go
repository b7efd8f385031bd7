package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the request failures the simulator surfaces.
var (
	ErrMalformedDocument = errors.New("malformed DMN document")
	ErrDecisionNotFound  = errors.New("decision not found")
	ErrEvaluation        = errors.New("decision evaluation failed")
)

// MalformedDocumentError reports document text that is not well-formed XML.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err == nil {
		return ErrMalformedDocument.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedDocument, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *MalformedDocumentError) Unwrap() []error {
	return []error{ErrMalformedDocument, e.Err}
}

// DecisionNotFoundError reports that no decision element carries the requested id.
type DecisionNotFoundError struct {
	DecisionID string
}

func (e *DecisionNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrDecisionNotFound, e.DecisionID)
}

func (e *DecisionNotFoundError) Unwrap() error {
	return ErrDecisionNotFound
}

// EvaluationError wraps an engine failure raised while evaluating a decision.
type EvaluationError struct {
	DecisionID string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating decision %q: %v", e.DecisionID, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluation, e.Err}
}
