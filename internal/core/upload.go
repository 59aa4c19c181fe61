package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CreateUpload stores a file, sniffs it and records the upload.
//
// The stored name is the base of filename, with a numeric suffix when a file
// of that name already exists. A file that cannot be sniffed, or that is not
// valid in the declared encoding, is removed again and the error returned.
func (s *Service) CreateUpload(ctx context.Context, filename string, r io.Reader, encoding string) (*Upload, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, NewDataImportError("filename is required")
	}
	format, ok := FormatFor(name)
	if !ok {
		return nil, NewDataImportError("unsupported file type: %s", filepath.Ext(name))
	}

	if encoding == "" {
		encoding = s.opts.DefaultEncoding
	}
	if _, err := LookupEncoding(encoding); err != nil {
		return nil, NewDataImportError("%v", err)
	}

	if s.opts.MaxFileSize > 0 {
		r = io.LimitReader(r, s.opts.MaxFileSize+1)
	}
	stored, size, err := s.files.Save(ctx, name, r)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	up, err := s.registerUpload(ctx, format, name, stored, size, encoding)
	if err != nil {
		if rmErr := s.files.Remove(stored); rmErr != nil {
			slog.Warn("remove rejected upload", "file", stored, "error", rmErr)
		}
		return nil, err
	}
	return up, nil
}

func (s *Service) registerUpload(ctx context.Context, format FileFormat, original, stored string, size int64, encoding string) (*Upload, error) {
	if s.opts.MaxFileSize > 0 && size > s.opts.MaxFileSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, s.opts.MaxFileSize)
	}

	sniffed, err := format.Sniff(s.files.Path(stored), SniffOptions{
		Encoding:      encoding,
		SampleBytes:   s.opts.SnifferSampleSize,
		InferenceRows: s.opts.TypeInferenceRows,
		SampleRows:    s.opts.SampleRows,
	})
	if err != nil {
		var nse *NotSniffableError
		if errors.As(err, &nse) && nse.Filename == "" {
			nse.Filename = original
		}
		return nil, err
	}

	up := &Upload{
		ID:               uuid.NewString(),
		Filename:         stored,
		OriginalFilename: original,
		Size:             size,
		Creator:          UserFromContext(ctx),
		Encoding:         encoding,
		Dialect:          sniffed.Dialect,
		Columns:          sniffed.Columns,
		SampleData:       sniffed.SampleData,
		GuessedTypes:     sniffed.GuessedTypes,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.uploads.CreateUpload(ctx, up); err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	slog.Info("upload registered",
		"upload_id", up.ID,
		"file", stored,
		"size", size,
		"columns", len(up.Columns),
	)
	return up, nil
}

// GetUpload returns the upload with the given id.
func (s *Service) GetUpload(ctx context.Context, id string) (*Upload, error) {
	return s.uploads.GetUpload(ctx, id)
}

// ListUploads returns every upload, newest first.
func (s *Service) ListUploads(ctx context.Context) ([]Upload, error) {
	return s.uploads.ListUploads(ctx)
}
