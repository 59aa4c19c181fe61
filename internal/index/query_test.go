package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []Clause
	}{
		{"match all", "*:*", nil},
		{"empty", "  ", nil},
		{"single field", `dataset_slug:"contributors"`, []Clause{{Field: "dataset_slug", Value: "contributors"}}},
		{"unquoted value", `row:12`, []Clause{{Field: "row", Value: "12"}}},
		{"bare text", `"alice smith"`, []Clause{{Value: "alice smith"}}},
		{
			name:  "conjunction with escapes",
			query: `dataset_slug:"a" AND external_id:"say \"hi\" \\o/"`,
			want: []Clause{
				{Field: "dataset_slug", Value: "a"},
				{Field: "external_id", Value: `say "hi" \o/`},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Clauses)
		})
	}
}

func TestParseQuery_Errors(t *testing.T) {
	for _, q := range []string{
		`dataset_slug:"unterminated`,
		`dataset_slug:"a" OR id:"b"`,
		`justaword`,
		`field:`,
		`"a" AND`,
	} {
		_, err := ParseQuery(q)
		assert.Error(t, err, "query %q", q)
	}
}

func TestMatch(t *testing.T) {
	doc := map[string]any{
		"id":           "r1",
		"dataset_slug": "contributors",
		"full_text":    "Alice\nSmith",
		"row":          7,
	}

	tests := []struct {
		query string
		want  bool
	}{
		{`*:*`, true},
		{`dataset_slug:"contributors"`, true},
		{`dataset_slug:"contributor"`, false},
		{`row:"7"`, true},
		{`"smith"`, true},
		{`dataset_slug:"contributors" AND "bob"`, false},
		{`missing:"x"`, false},
	}
	for _, tt := range tests {
		q, err := ParseQuery(tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, q.Match(doc), "query %s", tt.query)
	}
}

func TestParseSort(t *testing.T) {
	keys, err := ParseSort("row asc, id DESC")
	require.NoError(t, err)
	assert.Equal(t, []SortKey{{Field: "row"}, {Field: "id", Desc: true}}, keys)

	keys, err = ParseSort("")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, bad := range []string{"row sideways", "row asc extra", "ro'w asc"} {
		_, err := ParseSort(bad)
		assert.Error(t, err, "sort %q", bad)
	}
}

func TestLess_NumbersBeforeText(t *testing.T) {
	keys := []SortKey{{Field: "row"}}
	assert.True(t, Less(keys, map[string]any{"row": 2}, map[string]any{"row": 10}))
	assert.False(t, Less(keys, map[string]any{"row": 10}, map[string]any{"row": 2}))
	assert.True(t, Less(keys, map[string]any{}, map[string]any{"row": 1}))
}
