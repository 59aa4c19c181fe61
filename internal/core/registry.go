package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SniffOptions bound how much of a file is read while sniffing.
type SniffOptions struct {
	Encoding      string
	SampleBytes   int
	InferenceRows int
	SampleRows    int
}

// SniffResult is what sniffing learns about an upload.
type SniffResult struct {
	Dialect      *Dialect
	Columns      []string
	SampleData   [][]string
	GuessedTypes []ColumnType
}

// RowReader streams the data rows of an upload. Next returns io.EOF after
// the last row.
type RowReader interface {
	Header() []string
	Next() ([]string, error)
	Close() error
}

// FileFormat describes one importable file type.
type FileFormat struct {
	// Key identifies the format, e.g. "csv".
	Key string

	// TaskName is the scheduler task type used to import this format.
	TaskName string

	// Extensions are matched case-insensitively against upload filenames.
	Extensions []string

	// Sniff reads the start of the file at path.
	Sniff func(path string, opts SniffOptions) (*SniffResult, error)

	// Open returns a reader over the file's rows using the upload's
	// sniffed dialect and encoding.
	Open func(path string, upload *Upload) (RowReader, error)

	// CountRows estimates the number of data rows without parsing them.
	CountRows func(path string, upload *Upload) (int, error)
}

var (
	formats   = make(map[string]FileFormat)
	formatsMu sync.RWMutex
)

// RegisterFormat adds a file format to the registry.
// Panics if a format with the same key or extension is already registered.
func RegisterFormat(f FileFormat) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	if _, exists := formats[f.Key]; exists {
		panic(fmt.Sprintf("file format already registered: %s", f.Key))
	}
	for _, existing := range formats {
		for _, ext := range f.Extensions {
			for _, other := range existing.Extensions {
				if strings.EqualFold(ext, other) {
					panic(fmt.Sprintf("extension %s already registered by %s", ext, existing.Key))
				}
			}
		}
	}

	formats[f.Key] = f
}

// FormatFor returns the format handling filename's extension.
func FormatFor(filename string) (FileFormat, bool) {
	ext := strings.ToLower(filepath.Ext(filename))

	formatsMu.RLock()
	defer formatsMu.RUnlock()

	for _, f := range formats {
		for _, e := range f.Extensions {
			if strings.ToLower(e) == ext {
				return f, true
			}
		}
	}
	return FileFormat{}, false
}

// Formats returns all registered formats sorted by key.
func Formats() []FileFormat {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	result := make([]FileFormat, 0, len(formats))
	for _, f := range formats {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}
