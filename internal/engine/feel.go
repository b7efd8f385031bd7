package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// inputVar names the value of the current input column inside a compiled
// unary test.
const inputVar = "_input"

var (
	numberRe   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	intervalRe = regexp.MustCompile(`^([\[\]\(])\s*(.+?)\s*\.\.\s*(.+?)\s*([\[\]\)])$`)
	negationRe = regexp.MustCompile(`^not\s*\((.*)\)$`)
)

// unaryTestsToCEL translates the S-FEEL unary tests of an input entry into a
// CEL boolean expression over inputVar.
//
// Supported: "-" or empty (any value), comparisons (< <= > >=), intervals
// with open or closed ends ([a..b], (a..b), ]a..b[), equality with an
// endpoint, comma-separated disjunction and not(...) negation. Endpoints are
// FEEL literals or CEL expressions over the decision's variables.
func unaryTestsToCEL(text string) (string, error) {
	t := strings.TrimSpace(text)
	if t == "" || t == "-" {
		return "true", nil
	}

	if m := negationRe.FindStringSubmatch(t); m != nil {
		inner, err := disjunctionToCEL(m[1])
		if err != nil {
			return "", err
		}
		return "!(" + inner + ")", nil
	}
	return disjunctionToCEL(t)
}

func disjunctionToCEL(text string) (string, error) {
	parts := splitTopLevel(text, ',')
	if len(parts) == 1 {
		return simpleTestToCEL(parts[0])
	}

	tests := make([]string, 0, len(parts))
	for _, part := range parts {
		test, err := simpleTestToCEL(part)
		if err != nil {
			return "", err
		}
		tests = append(tests, "("+test+")")
	}
	return strings.Join(tests, " || "), nil
}

func simpleTestToCEL(text string) (string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", fmt.Errorf("empty unary test in %q", text)
	}

	for _, op := range []string{"<=", ">=", "<", ">"} {
		if strings.HasPrefix(t, op) {
			endpoint := strings.TrimSpace(t[len(op):])
			if endpoint == "" {
				return "", fmt.Errorf("comparison %q has no operand", t)
			}
			return fmt.Sprintf("%s %s %s", inputVar, op, literalToCEL(endpoint)), nil
		}
	}

	if m := intervalRe.FindStringSubmatch(t); m != nil {
		lowOp := ">"
		if m[1] == "[" {
			lowOp = ">="
		}
		highOp := "<"
		if m[4] == "]" {
			highOp = "<="
		}
		return fmt.Sprintf("(%s %s %s && %s %s %s)",
			inputVar, lowOp, literalToCEL(m[2]),
			inputVar, highOp, literalToCEL(m[3]),
		), nil
	}

	return fmt.Sprintf("%s == %s", inputVar, literalToCEL(t)), nil
}

// literalToCEL rewrites integer literals as doubles so they compare with
// numeric variables, which are carried as float64. Anything else is already
// valid CEL (strings, booleans, null) or is an expression passed through.
func literalToCEL(text string) string {
	t := strings.TrimSpace(text)
	if numberRe.MatchString(t) && !strings.Contains(t, ".") {
		return t + ".0"
	}
	return t
}

// splitTopLevel splits s on sep outside string literals and parentheses.
func splitTopLevel(s string, sep rune) []string {
	var (
		parts   []string
		current strings.Builder
		depth   int
		inStr   bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case inStr:
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inStr = false
			}
		case r == '"':
			inStr = true
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == sep && depth == 0:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	return append(parts, current.String())
}
