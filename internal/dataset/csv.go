package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// nullTokens are the cell values treated as missing.
var nullTokens = map[string]struct{}{
	"":    {},
	"NA":  {},
	"N/A": {},
}

// IsNull reports whether a raw text cell represents a missing value.
func IsNull(s string) bool {
	_, ok := nullTokens[strings.TrimSpace(s)]
	return ok
}

// FromRecords builds a Dataset from a text header and text rows, inferring
// each column kind from its non-null cells: int64 if every value parses as
// an integer, float64 if every value parses as a number, bool for
// true/false columns, string otherwise. All-null columns are strings.
func FromRecords(header []string, records [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, ErrEmptyHeader
	}
	for r, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("record %d has %d fields, expected %d", r+1, len(rec), len(header))
		}
	}

	columns := make([]Column, len(header))
	for c, name := range header {
		columns[c] = Column{Name: strings.TrimSpace(name), Kind: inferKind(records, c)}
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(header))
		for c, raw := range rec {
			v, err := parseCell(columns[c].Kind, raw)
			if err != nil {
				return nil, fmt.Errorf("record %d column %q: %w", r+1, columns[c].Name, err)
			}
			row[c] = v
		}
		rows[r] = row
	}

	return New(columns, rows)
}

func inferKind(records [][]string, c int) Kind {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, rec := range records {
		raw := strings.TrimSpace(rec[c])
		if IsNull(raw) {
			continue
		}
		seen = true
		if zeroPadded(raw) {
			isInt, isFloat = false, false
		}
		if isInt {
			if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(raw, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(raw); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return KindString
		}
	}
	switch {
	case !seen:
		return KindString
	case isInt:
		return KindInt
	case isFloat:
		return KindFloat
	case isBool:
		return KindBool
	default:
		return KindString
	}
}

// zeroPadded reports whether raw carries a redundant leading zero, as in
// "007" or "-01.5". Such values are codes and keep their text.
func zeroPadded(raw string) bool {
	s := strings.TrimLeft(raw, "+-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func parseCell(k Kind, raw string) (any, error) {
	if IsNull(raw) {
		return nil, nil
	}
	trimmed := strings.TrimSpace(raw)
	switch k {
	case KindInt:
		return strconv.ParseInt(trimmed, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(trimmed, 64)
	case KindBool:
		if b, ok := parseBool(trimmed); ok {
			return b, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", raw)
	default:
		return raw, nil
	}
}
