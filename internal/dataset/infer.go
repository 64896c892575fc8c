package dataset

import (
	"strconv"
	"strings"
	"time"

	"tdda-tools/internal/constraints"
)

// dateLayouts are tried in order when parsing date cells. ISO layouts
// come first so unambiguous inputs never hit the slash forms.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// parseDate attempts every known layout.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "true", "True", "TRUE":
		return true, true
	case "false", "False", "FALSE":
		return false, true
	}
	return false, false
}

// InferColumnType scans raw string cells and picks the narrowest
// logical type every non-empty cell satisfies, falling back to string.
// Empty cells are nulls and do not vote.
func InferColumnType(cells []string) constraints.FieldType {
	couldBe := map[constraints.FieldType]bool{
		constraints.TypeBool: true,
		constraints.TypeInt:  true,
		constraints.TypeReal: true,
		constraints.TypeDate: true,
	}
	seen := false
	for _, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		seen = true
		if couldBe[constraints.TypeBool] {
			if _, ok := parseBool(cell); !ok {
				couldBe[constraints.TypeBool] = false
			}
		}
		if couldBe[constraints.TypeInt] {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				couldBe[constraints.TypeInt] = false
			}
		}
		if couldBe[constraints.TypeReal] {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				couldBe[constraints.TypeReal] = false
			}
		}
		if couldBe[constraints.TypeDate] {
			if _, ok := parseDate(cell); !ok {
				couldBe[constraints.TypeDate] = false
			}
		}
		if !couldBe[constraints.TypeBool] && !couldBe[constraints.TypeInt] &&
			!couldBe[constraints.TypeReal] && !couldBe[constraints.TypeDate] {
			return constraints.TypeString
		}
	}
	if !seen {
		// An all-null column carries no evidence; call it string.
		return constraints.TypeString
	}
	switch {
	case couldBe[constraints.TypeBool]:
		return constraints.TypeBool
	case couldBe[constraints.TypeInt]:
		return constraints.TypeInt
	case couldBe[constraints.TypeReal]:
		return constraints.TypeReal
	case couldBe[constraints.TypeDate]:
		return constraints.TypeDate
	default:
		return constraints.TypeString
	}
}

// ParseCell converts one raw string cell into a typed Value. An empty
// cell is null; a cell that refuses the declared type degrades to its
// raw string so detection can flag it.
func ParseCell(cell string, t constraints.FieldType) Value {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	switch t {
	case constraints.TypeBool:
		if b, ok := parseBool(trimmed); ok {
			return b
		}
	case constraints.TypeInt:
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return i
		}
	case constraints.TypeReal:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case constraints.TypeDate:
		if d, ok := parseDate(trimmed); ok {
			return d
		}
	case constraints.TypeString:
		return cell
	}
	return cell
}
