package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies which field of a Value is set.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindInt
	KindFloat
	KindBool
	KindTime
)

// Value is a single typed cell.
type Value struct {
	Kind  ValueKind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
}

// Interface returns the value in the form written to index documents.
// Times are formatted as UTC RFC 3339.
func (v Value) Interface() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return nil
	}
}

// datetimeLayouts are tried in order when parsing datetime cells.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

var boolValues = map[string]bool{
	"true": true, "t": true, "yes": true, "y": true,
	"false": false, "f": false, "no": false, "n": false,
}

// ParseValue converts raw to typ. Empty (or whitespace-only) input is null
// for every type.
func ParseValue(raw string, typ ColumnType) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{Kind: KindNull}, nil
	}

	switch typ {
	case TypeInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not an int", raw)
		}
		return Value{Kind: KindInt, Int: n}, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%q is not a float", raw)
		}
		return Value{Kind: KindFloat, Float: f}, nil
	case TypeBool:
		b, ok := boolValues[strings.ToLower(s)]
		if !ok {
			return Value{}, fmt.Errorf("%q is not a bool", raw)
		}
		return Value{Kind: KindBool, Bool: b}, nil
	case TypeDatetime:
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Value{Kind: KindTime, Time: t}, nil
			}
		}
		return Value{}, fmt.Errorf("%q is not a datetime", raw)
	case TypeText:
		return Value{Kind: KindText, Text: raw}, nil
	default:
		return Value{}, fmt.Errorf("unknown column type %q", typ)
	}
}

// inferenceOrder is the sequence of candidate types, narrowest first.
var inferenceOrder = []ColumnType{TypeBool, TypeInt, TypeFloat, TypeDatetime}

// InferColumnTypes guesses one type per column from sample rows.
//
// A column gets the narrowest type every non-empty sample cell parses as.
// Empty cells are ignored. A column with no non-empty cells, or whose cells
// fit no narrower type, is text. Rows shorter than width leave the missing
// cells empty.
func InferColumnTypes(rows [][]string, width int) []ColumnType {
	types := make([]ColumnType, width)
	for col := 0; col < width; col++ {
		types[col] = inferColumn(rows, col)
	}
	return types
}

func inferColumn(rows [][]string, col int) ColumnType {
	candidates := make(map[ColumnType]bool, len(inferenceOrder))
	for _, t := range inferenceOrder {
		candidates[t] = true
	}

	seen := false
	for _, row := range rows {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		seen = true
		for t := range candidates {
			if _, err := ParseValue(row[col], t); err != nil {
				delete(candidates, t)
			}
		}
		if len(candidates) == 0 {
			return TypeText
		}
	}

	if !seen {
		return TypeText
	}
	for _, t := range inferenceOrder {
		if candidates[t] {
			return t
		}
	}
	return TypeText
}
