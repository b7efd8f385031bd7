package engine

import "errors"

var (
	// ErrInvalidXML is returned for document text that is not well-formed XML.
	ErrInvalidXML = errors.New("engine: invalid XML")

	// ErrDecisionNotFound is returned when no decision carries the requested id.
	ErrDecisionNotFound = errors.New("engine: decision not found")

	// ErrUnsupportedHitPolicy is returned for hit policies this engine does not implement.
	ErrUnsupportedHitPolicy = errors.New("engine: unsupported hit policy")

	// ErrHitPolicyViolation is returned when the matching rules break the table's hit policy.
	ErrHitPolicyViolation = errors.New("engine: hit policy violation")
)
