package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// expectedColumn holds the 1-based rows a case should match, separated by
// semicolons. An empty cell expects no match.
const expectedColumn = "expected"

// Case is one CSV row.
type Case struct {
	Line      int
	Variables map[string]any
	Expected  []int // nil when the CSV has no expected column
}

// readCases reads a header row of variable names followed by one case per
// row. Cells that parse as numbers or booleans are sent typed, an empty cell
// is sent as null and everything else as a string.
func readCases(r io.Reader, limit int) ([]Case, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var cases []Case
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c := Case{Line: line, Variables: make(map[string]any, len(header))}
		for i, name := range header {
			name = strings.TrimSpace(name)
			if strings.EqualFold(name, expectedColumn) {
				expected, err := parseRows(record[i])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				c.Expected = expected
				continue
			}
			c.Variables[name] = cellValue(record[i])
		}
		cases = append(cases, c)

		if limit > 0 && len(cases) >= limit {
			break
		}
	}

	return cases, nil
}

func cellValue(cell string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(cell); err == nil {
		return b
	}
	return cell
}

func parseRows(cell string) ([]int, error) {
	rows := []int{}
	for _, part := range strings.Split(cell, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		row, err := strconv.Atoi(part)
		if err != nil || row < 1 {
			return nil, fmt.Errorf("invalid expected row %q", part)
		}
		rows = append(rows, row)
	}
	sort.Ints(rows)
	return rows, nil
}

func sameRows(expected, got []int) bool {
	if len(expected) != len(got) {
		return false
	}
	for i := range expected {
		if expected[i] != got[i] {
			return false
		}
	}
	return true
}

func unfiredRows(hits map[int]int64, ruleCount int) []int {
	var rows []int
	for row := 1; row <= ruleCount; row++ {
		if hits[row] == 0 {
			rows = append(rows, row)
		}
	}
	return rows
}
