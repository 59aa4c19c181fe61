package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

// exportSort orders rows by their import position. The id breaks ties
// between rows added individually.
const exportSort = "row asc, id asc"

// runExport writes every row of a dataset to a CSV file in the export store.
// The header row is the dataset's columns. The abort flag is checked after
// each page.
func (s *Service) runExport(ctx context.Context, taskID string, args TaskArgs) (err error) {
	tracker, err := LoadTracker(ctx, s.tasks, taskID)
	if err != nil {
		return err
	}
	ds, err := s.datasets.GetDataset(ctx, args.DatasetSlug)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	log := slog.With("task_id", taskID, "dataset", ds.Slug, "file", args.Filename)

	if err := tracker.Start(ctx, "Preparing to export"); err != nil {
		return err
	}

	query := fieldQuery(FieldDatasetSlug, ds.Slug)
	res, err := s.index.Query(ctx, s.opts.DataCore, query, QueryOptions{})
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	total := res.NumFound

	f, err := s.exports.Create(args.Filename)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close export file: %w", cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(ds.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	var written int64
	for written < total {
		page, err := s.index.Query(ctx, s.opts.DataCore, query, QueryOptions{
			Offset: int(written),
			Limit:  s.opts.PageSize,
			Sort:   exportSort,
		})
		if err != nil {
			return fmt.Errorf("query rows at %d: %w", written, err)
		}
		if len(page.Docs) == 0 {
			break
		}

		for _, fields := range page.Docs {
			doc, err := DocumentFromFields(fields)
			if err != nil {
				return err
			}
			if err := w.Write(doc.Data); err != nil {
				return fmt.Errorf("write row %d: %w", doc.Row, err)
			}
		}
		written += int64(len(page.Docs))

		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush export: %w", err)
		}

		pct := percent(written, total)
		if err := tracker.Update(ctx, fmt.Sprintf("%d%% complete", pct)); err != nil {
			return err
		}
		if tracker.IsAbortRequested(ctx) {
			log.Info("export aborted", "rows", written)
			return tracker.Abort(ctx, fmt.Sprintf("Aborted after exporting %d%%", pct))
		}
		if err := s.throttle(ctx); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}

	log.Info("export finished", "rows", written)
	return tracker.Succeed(ctx, fmt.Sprintf("Exported %d rows to %s", written, args.Filename))
}

// OpenExport opens a finished export file for reading. Names are reduced to
// their base element so only the export store is reachable.
func (s *Service) OpenExport(name string) (io.ReadCloser, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("export %q: %w", name, ErrNotFound)
	}
	return s.exports.Open(name)
}
