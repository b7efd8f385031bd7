package parser

import (
	"strings"

	"github.com/opensource-finance/dmnsim/internal/domain"
)

// LexAllowedValues reads an input's allowed-values expression as a list of
// display literals.
//
// This is a heuristic for UI hints, not a unary-test grammar. Expressions
// containing "..", "<" or ">" are reported as AllowedValuesRange with no
// values. Otherwise one enclosing [ ] pair is stripped, the text is split on
// commas, and each part is trimmed and loses one enclosing pair of double
// quotes. Escaped quotes, nested lists and quoted literals containing commas
// are not understood: "a,b" inside quotes is split in two.
func LexAllowedValues(raw string) ([]string, domain.AllowedValuesKind) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return []string{}, domain.AllowedValuesNone
	}
	if strings.Contains(text, "..") || strings.ContainsAny(text, "<>") {
		return []string{}, domain.AllowedValuesRange
	}

	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		text = text[1 : len(text)-1]
	}

	values := []string{}
	for _, part := range strings.Split(text, ",") {
		v := strings.TrimSpace(part)
		if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
			v = v[1 : len(v)-1]
		}
		if v != "" {
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		return values, domain.AllowedValuesNone
	}
	return values, domain.AllowedValuesEnumerated
}
