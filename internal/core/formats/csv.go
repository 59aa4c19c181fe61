package formats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// sniffCSV detects the dialect from the first opts.SampleBytes of the file,
// then reads the header and the leading rows with that dialect.
func sniffCSV(path string, opts core.SniffOptions) (*core.SniffResult, error) {
	sample, err := readSample(path, opts.Encoding, opts.SampleBytes)
	if err != nil {
		return nil, err
	}

	dialect, err := sniffDialect(sample)
	if err != nil {
		return nil, err
	}

	up := &core.Upload{Encoding: opts.Encoding, Dialect: dialect}
	rows, err := openCSV(path, up)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	header := rows.Header()
	if len(header) == 0 {
		return nil, &core.NotSniffableError{Reason: "file has no header row"}
	}

	limit := max(opts.InferenceRows, opts.SampleRows)
	var data [][]string
	for len(data) < limit {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		data = append(data, row)
	}

	return &core.SniffResult{
		Dialect:      dialect,
		Columns:      header,
		SampleData:   data[:min(len(data), opts.SampleRows)],
		GuessedTypes: core.InferColumnTypes(data[:min(len(data), opts.InferenceRows)], len(header)),
	}, nil
}

// readSample returns up to n decoded bytes from the start of the file. When
// the file is longer than n the sample is cut after its last line break.
func readSample(path, encoding string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	r, err := core.Decode(f, encoding)
	if err != nil {
		return "", err
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	truncated := err == nil
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read sample: %w", err)
	}

	sample := string(buf[:read])
	if truncated {
		if i := strings.LastIndexAny(sample, "\r\n"); i > 0 {
			sample = sample[:i+1]
		}
	}
	return sample, nil
}

// csvRows reads data rows from a delimited text upload.
type csvRows struct {
	f        *os.File
	r        *csv.Reader
	header   []string
	encoding string
	utf8     bool
	row      int
}

// openCSV opens the upload and reads its header row. An empty file yields
// an empty header.
func openCSV(path string, up *core.Upload) (core.RowReader, error) {
	if up.Dialect == nil {
		return nil, &core.NotSniffableError{Filename: up.OriginalFilename, Reason: "upload has no dialect"}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}

	dec, err := core.Decode(f, up.Encoding)
	if err != nil {
		f.Close()
		return nil, err
	}
	if up.Dialect.LineTerminator == "\r" {
		dec = core.NewCRLineReader(dec)
	}

	rows := &csvRows{
		f:        f,
		r:        newReader(dec, up.Dialect),
		encoding: up.Encoding,
		utf8:     up.Encoding == "" || core.IsUTF8(up.Encoding),
	}

	header, err := rows.r.Read()
	switch {
	case errors.Is(err, io.EOF):
		return rows, nil
	case err != nil:
		f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !rows.valid(header) {
		f.Close()
		return nil, &core.EncodingError{Encoding: rows.encodingName(), Row: 0}
	}
	rows.header = header
	return rows, nil
}

func newReader(r io.Reader, d *core.Dialect) *csv.Reader {
	cr := csv.NewReader(r)
	if delim, _ := utf8.DecodeRuneInString(d.Delimiter); delim != utf8.RuneError {
		cr.Comma = delim
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = d.SkipInitialSpace
	return cr
}

func (c *csvRows) Header() []string { return c.header }

// Next returns the next data row. Encoding problems are reported as an
// EncodingError naming the 1-based data row.
func (c *csvRows) Next() ([]string, error) {
	rec, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, core.NewDataImportError("row %d: %v", c.row+1, err)
	}
	c.row++

	if !c.valid(rec) {
		return nil, &core.EncodingError{Encoding: c.encodingName(), Row: c.row}
	}
	return rec, nil
}

func (c *csvRows) Close() error { return c.f.Close() }

// valid reports whether every field decoded cleanly. UTF-8 input is checked
// directly; other decoders mark undecodable bytes with U+FFFD.
func (c *csvRows) valid(rec []string) bool {
	for _, field := range rec {
		if c.utf8 {
			if !utf8.ValidString(field) {
				return false
			}
		} else if strings.ContainsRune(field, utf8.RuneError) {
			return false
		}
	}
	return true
}

func (c *csvRows) encodingName() string {
	if c.encoding == "" {
		return "utf-8"
	}
	return c.encoding
}

// countCSVRows estimates data rows by counting line breaks. Quoted fields
// spanning lines make this an overestimate.
func countCSVRows(path string, up *core.Upload) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if up.Dialect != nil && up.Dialect.LineTerminator == "\r" {
		r = core.NewCRLineReader(f)
	}

	lines, err := core.CountLines(r)
	if err != nil {
		return 0, err
	}
	return max(lines-1, 0), nil
}
