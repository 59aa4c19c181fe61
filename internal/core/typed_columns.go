package core

import (
	"fmt"
	"strconv"
)

// TypedColumnNames returns the index field name for each typed column and
// "" for untyped columns.
//
// Names have the form column_<type>_<name>. When two columns would produce
// the same name, later ones get a numeric suffix starting at 2, so the
// result never contains a duplicate.
func TypedColumnNames(columns []string, types []ColumnType, typed []bool) []string {
	names := make([]string, len(columns))
	used := make(map[string]bool, len(columns))

	for i, col := range columns {
		if i >= len(typed) || !typed[i] {
			continue
		}
		typ := TypeText
		if i < len(types) {
			typ = types[i]
		}

		base := fmt.Sprintf("column_%s_%s", typ, col)
		name := base
		for n := 2; used[name]; n++ {
			name = base + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}

	return names
}
