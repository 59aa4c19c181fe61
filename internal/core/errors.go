package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a dataset, upload, task or row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDatasetLocked is returned when a dataset already has a task holding its lock.
	ErrDatasetLocked = errors.New("dataset is locked by another task")

	// ErrInvalidTaskTransition is returned for a task status change the
	// lifecycle does not allow, such as updating a task that already finished.
	ErrInvalidTaskTransition = errors.New("invalid task transition")

	// ErrFileTooLarge is returned for an upload above the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum upload size")
)

// DataImportError reports a request or file that cannot be imported into a
// dataset: a header that disagrees with the dataset schema, an upload that
// was already imported, or an out-of-range option.
type DataImportError struct {
	Reason string
}

func (e *DataImportError) Error() string {
	return "data import: " + e.Reason
}

// NewDataImportError formats a DataImportError.
func NewDataImportError(format string, args ...any) error {
	return &DataImportError{Reason: fmt.Sprintf(format, args...)}
}

// NotSniffableError reports a file whose dialect could not be determined.
type NotSniffableError struct {
	Filename string
	Reason   string
}

func (e *NotSniffableError) Error() string {
	if e.Filename == "" {
		return "file is not sniffable: " + e.Reason
	}
	return fmt.Sprintf("file %s is not sniffable: %s", e.Filename, e.Reason)
}

// EncodingError reports bytes that are invalid in the declared encoding.
// Row is the 1-based data row (0 for the header) where decoding failed.
type EncodingError struct {
	Encoding string
	Row      int
	Err      error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("row %d is not valid %s", e.Row, e.Encoding)
	if e.Row == 0 {
		msg = fmt.Sprintf("header is not valid %s", e.Encoding)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

// IsDataImport reports whether err is, or wraps, a DataImportError.
func IsDataImport(err error) bool {
	var target *DataImportError
	return errors.As(err, &target)
}

// IsNotSniffable reports whether err is, or wraps, a NotSniffableError.
func IsNotSniffable(err error) bool {
	var target *NotSniffableError
	return errors.As(err, &target)
}

// IsEncoding reports whether err is, or wraps, an EncodingError.
func IsEncoding(err error) bool {
	var target *EncodingError
	return errors.As(err, &target)
}
