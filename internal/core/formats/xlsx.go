package formats

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// xlsxRows streams the rows of the first sheet of a workbook.
type xlsxRows struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
}

func openFirstSheet(path string) (*excelize.File, *excelize.Rows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, &core.NotSniffableError{Reason: fmt.Sprintf("not a readable workbook: %v", err)}
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, nil, &core.NotSniffableError{Reason: "workbook has no sheets"}
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return f, rows, nil
}

// openXLSX opens the workbook and reads the header from the first
// non-empty row.
func openXLSX(path string, _ *core.Upload) (core.RowReader, error) {
	f, rows, err := openFirstSheet(path)
	if err != nil {
		return nil, err
	}

	x := &xlsxRows{f: f, rows: rows}
	header, err := x.nextRow()
	if errors.Is(err, io.EOF) {
		return x, nil
	}
	if err != nil {
		x.Close()
		return nil, err
	}
	x.header = header
	return x, nil
}

// nextRow returns the next row with any content, skipping blank rows.
func (x *xlsxRows) nextRow() ([]string, error) {
	for x.rows.Next() {
		cols, err := x.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if !blank(cols) {
			return cols, nil
		}
	}
	if err := x.rows.Error(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return nil, io.EOF
}

func (x *xlsxRows) Header() []string { return x.header }

// Next returns the next data row padded to the header width. Trailing empty
// cells are not stored in a workbook, so short rows are common.
func (x *xlsxRows) Next() ([]string, error) {
	row, err := x.nextRow()
	if err != nil {
		return nil, err
	}
	if len(row) < len(x.header) {
		padded := make([]string, len(x.header))
		copy(padded, row)
		row = padded
	}
	return row, nil
}

func (x *xlsxRows) Close() error {
	rerr := x.rows.Close()
	if err := x.f.Close(); err != nil {
		return err
	}
	return rerr
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sniffXLSX reads the header and leading rows of the first sheet. Cell
// values are the formatted strings Excel would display.
func sniffXLSX(path string, opts core.SniffOptions) (*core.SniffResult, error) {
	rr, err := openXLSX(path, nil)
	if err != nil {
		return nil, err
	}
	defer rr.Close()

	header := rr.Header()
	if len(header) == 0 {
		return nil, &core.NotSniffableError{Reason: "workbook has no rows"}
	}

	limit := max(opts.InferenceRows, opts.SampleRows)
	var data [][]string
	for len(data) < limit {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		data = append(data, row)
	}

	return &core.SniffResult{
		Columns:      header,
		SampleData:   data[:min(len(data), opts.SampleRows)],
		GuessedTypes: core.InferColumnTypes(data[:min(len(data), opts.InferenceRows)], len(header)),
	}, nil
}

// countXLSXRows counts the non-blank rows after the header.
func countXLSXRows(path string, _ *core.Upload) (int, error) {
	f, rows, err := openFirstSheet(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	defer rows.Close()

	count := 0
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return 0, fmt.Errorf("read row: %w", err)
		}
		if !blank(cols) {
			count++
		}
	}
	return max(count-1, 0), nil
}
