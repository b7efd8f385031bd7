// Package domain defines the core types, errors and configuration for the DMN simulator.
package domain

// Decision is one decision element of a DMN document, reduced to the parts a
// UI needs to render its decision table.
type Decision struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Inputs  []InputDefinition  `json:"inputs"`
	Outputs []OutputDefinition `json:"outputs"`
	Rules   []RuleDefinition   `json:"rules"`
}

// InputDefinition describes one input column of a decision table.
type InputDefinition struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Name    string `json:"name"`
	TypeRef string `json:"typeRef,omitempty"`

	// AllowedValues holds enumerated literals only. It is empty when the
	// declared input values denote a range or comparison.
	AllowedValues     []string          `json:"allowedValues,omitempty"`
	AllowedValuesKind AllowedValuesKind `json:"allowedValuesKind,omitempty"`
}

// OutputDefinition describes one output column of a decision table.
type OutputDefinition struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	TypeRef string `json:"typeRef"`
}

// RuleDefinition is one row of a decision table.
type RuleDefinition struct {
	ID            string   `json:"id"`
	Index         int      `json:"index"` // 1-based, document order
	InputEntries  []string `json:"inputEntries"`
	OutputEntries []string `json:"outputEntries"`
}

// AllowedValuesKind tells how an input's allowed-values expression was read.
type AllowedValuesKind string

const (
	// AllowedValuesNone means no values were declared, or the list held no literals.
	AllowedValuesNone AllowedValuesKind = ""

	// AllowedValuesEnumerated means the expression was a literal list.
	AllowedValuesEnumerated AllowedValuesKind = "enumerated"

	// AllowedValuesRange means the expression is a range or comparison and
	// cannot be enumerated.
	AllowedValuesRange AllowedValuesKind = "range"
)
