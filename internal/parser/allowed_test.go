package parser

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/dmnsim/internal/domain"
)

func TestLexAllowedValues(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
		kind     domain.AllowedValuesKind
	}{
		{"QuotedList", `["a", "b"]`, []string{"a", "b"}, domain.AllowedValuesEnumerated},
		{"QuotedNoBrackets", `"gold","silver"`, []string{"gold", "silver"}, domain.AllowedValuesEnumerated},
		{"Bare", "a,b,c", []string{"a", "b", "c"}, domain.AllowedValuesEnumerated},
		{"Range", "1..5", []string{}, domain.AllowedValuesRange},
		{"Interval", "[1..10]", []string{}, domain.AllowedValuesRange},
		{"GreaterEqual", ">= 3", []string{}, domain.AllowedValuesRange},
		{"Less", "< 3", []string{}, domain.AllowedValuesRange},
		{"Empty", "", []string{}, domain.AllowedValuesNone},
		{"Whitespace", "   ", []string{}, domain.AllowedValuesNone},
		{"OnlyCommas", " , ,", []string{}, domain.AllowedValuesNone},
		{"EmptyQuotes", `"", "x"`, []string{"x"}, domain.AllowedValuesEnumerated},
		{"SingleQuoteChar", `"`, []string{`"`}, domain.AllowedValuesEnumerated},
		{"Untrimmed", `  [ "x" ,  y ]  `, []string{"x", "y"}, domain.AllowedValuesEnumerated},
		// Quoted literals containing commas are split; see LexAllowedValues.
		{"CommaInsideQuotes", `"a,b"`, []string{`"a`, `b"`}, domain.AllowedValuesEnumerated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, kind := LexAllowedValues(tt.raw)
			if !reflect.DeepEqual(values, tt.expected) {
				t.Errorf("expected %q, got %q", tt.expected, values)
			}
			if kind != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, kind)
			}
		})
	}
}
