package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorTaxonomy(t *testing.T) {
	cause := io.ErrUnexpectedEOF

	t.Run("MalformedDocument", func(t *testing.T) {
		err := fmt.Errorf("parse: %w", &MalformedDocumentError{Err: cause})
		if !errors.Is(err, ErrMalformedDocument) {
			t.Error("expected ErrMalformedDocument")
		}
		if !errors.Is(err, cause) {
			t.Error("expected the cause to be reachable")
		}
		if errors.Is(err, ErrEvaluation) {
			t.Error("malformed documents are not evaluation failures")
		}
	})

	t.Run("MalformedDocumentWithoutCause", func(t *testing.T) {
		err := &MalformedDocumentError{}
		if err.Error() != ErrMalformedDocument.Error() {
			t.Errorf("unexpected message %q", err.Error())
		}
		if !errors.Is(err, ErrMalformedDocument) {
			t.Error("expected ErrMalformedDocument")
		}
	})

	t.Run("DecisionNotFound", func(t *testing.T) {
		err := error(&DecisionNotFoundError{DecisionID: "d9"})
		if !errors.Is(err, ErrDecisionNotFound) {
			t.Error("expected ErrDecisionNotFound")
		}
		if err.Error() != `decision not found: "d9"` {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("Evaluation", func(t *testing.T) {
		err := error(&EvaluationError{DecisionID: "d1", Err: cause})
		if !errors.Is(err, ErrEvaluation) || !errors.Is(err, cause) {
			t.Error("expected both ErrEvaluation and the cause")
		}
		var evalErr *EvaluationError
		if !errors.As(err, &evalErr) || evalErr.DecisionID != "d1" {
			t.Errorf("expected *EvaluationError for d1, got %v", err)
		}
	})
}
