package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabledock/internal/core"
)

func TestSchemaOptions(t *testing.T) {
	t.Cleanup(func() { typedColumns, columnTypes = nil, nil })
	columns := []string{"id", "amount", "note"}
	types := []core.ColumnType{core.TypeInt, core.TypeText, core.TypeText}

	typedColumns, columnTypes = nil, nil
	opts, err := schemaOptions(columns, types)
	require.NoError(t, err)
	assert.Nil(t, opts.ColumnTypes)
	assert.Nil(t, opts.TypedColumns)

	typedColumns = []string{"amount"}
	columnTypes = []string{"amount=float"}
	opts, err = schemaOptions(columns, types)
	require.NoError(t, err)
	assert.Equal(t, []core.ColumnType{core.TypeInt, core.TypeFloat, core.TypeText}, opts.ColumnTypes)
	assert.Equal(t, []bool{false, true, false}, opts.TypedColumns)
	assert.Equal(t, core.TypeText, types[1], "input types must not be modified")

	tests := []struct {
		name  string
		typed []string
		types []string
	}{
		{"unknown typed column", []string{"missing"}, nil},
		{"malformed type", nil, []string{"amount"}},
		{"unknown type", nil, []string{"amount=money"}},
		{"unknown type column", nil, []string{"missing=int"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typedColumns, columnTypes = tt.typed, tt.types
			_, err := schemaOptions(columns, types)
			assert.Error(t, err)
		})
	}
}

func TestExportName(t *testing.T) {
	t.Cleanup(func() { exportFilename = "" })

	assert.Equal(t, "sales-20260101T000000.csv",
		exportName(&core.TaskStatus{Message: "Exported 12 rows to sales-20260101T000000.csv"}))

	exportFilename = "fallback.csv"
	assert.Equal(t, "fallback.csv", exportName(&core.TaskStatus{Message: "Aborted"}))
}
