package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// runReindex re-encodes every row document of a dataset with its current
// schema. Ids, external ids and row numbers are preserved, so each document
// is overwritten in place. When the task names an external id column the
// rows are re-keyed instead; see rekeyRows.
func (s *Service) runReindex(ctx context.Context, taskID string, args TaskArgs) error {
	tracker, err := LoadTracker(ctx, s.tasks, taskID)
	if err != nil {
		return err
	}
	ds, err := s.datasets.GetDataset(ctx, args.DatasetSlug)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	log := slog.With("task_id", taskID, "dataset", ds.Slug)

	if err := tracker.Start(ctx, "Preparing to reindex"); err != nil {
		return err
	}

	query := fieldQuery(FieldDatasetSlug, ds.Slug)
	res, err := s.index.Query(ctx, s.opts.DataCore, query, QueryOptions{})
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	total := res.NumFound

	if args.ExternalIDIndex != nil {
		return s.rekeyRows(ctx, tracker, ds, *args.ExternalIDIndex, total, log)
	}

	var done int64
	for done < total {
		page, err := s.index.Query(ctx, s.opts.DataCore, query, QueryOptions{
			Offset: int(done),
			Limit:  s.opts.BatchSize,
			Sort:   "id asc",
		})
		if err != nil {
			return fmt.Errorf("query rows at %d: %w", done, err)
		}
		if len(page.Docs) == 0 {
			break
		}

		batch := make([]map[string]any, 0, len(page.Docs))
		for _, fields := range page.Docs {
			old, err := DocumentFromFields(fields)
			if err != nil {
				return err
			}
			doc, err := EncodeRow(ds, old.Data, old.ExternalID, old.Row)
			if err != nil {
				return err
			}
			doc.ID = old.ID

			m, err := doc.Fields()
			if err != nil {
				return err
			}
			batch = append(batch, m)
		}
		if err := s.index.Add(ctx, s.opts.DataCore, batch, false); err != nil {
			return fmt.Errorf("reindex rows at %d: %w", done, err)
		}
		done += int64(len(page.Docs))

		pct := percent(done, total)
		if err := tracker.Update(ctx, fmt.Sprintf("%d%% complete", pct)); err != nil {
			return err
		}
		if tracker.IsAbortRequested(ctx) {
			if err := s.index.Commit(ctx, s.opts.DataCore); err != nil {
				return fmt.Errorf("commit index: %w", err)
			}
			log.Info("reindex aborted", "rows", done)
			return tracker.Abort(ctx, fmt.Sprintf("Aborted after reindexing %d%%", pct))
		}
		if err := s.throttle(ctx); err != nil {
			return err
		}
	}

	if err := s.index.Commit(ctx, s.opts.DataCore); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}

	log.Info("reindex finished", "rows", done)
	return tracker.Succeed(ctx, "Reindex complete")
}

// snapshotRow is one line of a re-key snapshot.
type snapshotRow struct {
	Row  int      `json:"row"`
	Data []string `json:"data"`
}

func snapshotName(taskID string) string {
	return "reindex-" + taskID + ".jsonl"
}

// rekeyRows gives every row of ds the external id found in column idx.
//
// Document ids change with the external id, so documents cannot be
// overwritten in place. The rows are first copied to a snapshot file in the
// upload store, then all of the dataset's documents are deleted and the
// snapshot is re-added. An abort is honoured only while the snapshot is
// being written; once documents have been deleted the run completes. Rows
// sharing an external id collapse into the last of them, and row_count is
// recounted. A failed run keeps its snapshot file.
func (s *Service) rekeyRows(ctx context.Context, tracker *Tracker, ds *Dataset, idx int, total int64, log *slog.Logger) error {
	name := snapshotName(tracker.ID())
	saved, aborted, err := s.writeSnapshot(ctx, tracker, ds, idx, name, total)
	if err != nil || aborted {
		if rerr := s.files.Remove(name); rerr != nil {
			log.Warn("remove reindex snapshot", "file", name, "error", rerr)
		}
	}
	if err != nil {
		return err
	}
	if aborted {
		log.Info("reindex aborted before rewriting rows")
		return tracker.Abort(ctx, "Aborted before any rows were rewritten")
	}

	if err := s.index.Delete(ctx, s.opts.DataCore, fieldQuery(FieldDatasetSlug, ds.Slug), false); err != nil {
		return fmt.Errorf("delete old rows: %w", err)
	}

	r, err := s.files.Open(name)
	if err != nil {
		return fmt.Errorf("open reindex snapshot: %w", err)
	}
	defer r.Close()

	dec := json.NewDecoder(r)
	batch := make([]map[string]any, 0, s.opts.BatchSize)
	var done int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.index.Add(ctx, s.opts.DataCore, batch, false); err != nil {
			return fmt.Errorf("re-add rows at %d: %w", done, err)
		}
		done += int64(len(batch))
		batch = make([]map[string]any, 0, s.opts.BatchSize)
		return tracker.Update(ctx, fmt.Sprintf("%d%% complete", percent(done, saved)))
	}

	for {
		var row snapshotRow
		if err := dec.Decode(&row); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("read reindex snapshot (kept as %s): %w", name, err)
		}

		doc, err := EncodeRow(ds, row.Data, row.Data[idx], row.Row)
		if err != nil {
			return err
		}
		m, err := doc.Fields()
		if err != nil {
			return err
		}
		batch = append(batch, m)

		if len(batch) >= s.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
			if err := s.throttle(ctx); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	now := s.now().UTC()
	ds.LastModified = &now
	if err := s.settleRowCount(ctx, ds, 0); err != nil {
		return err
	}
	if err := s.files.Remove(name); err != nil {
		log.Warn("remove reindex snapshot", "file", name, "error", err)
	}

	log.Info("reindex finished", "rows", done, "row_count", ds.Rows())
	return tracker.Succeed(ctx, "Reindex complete")
}

// writeSnapshot copies the dataset's rows, in export order, to name. Each
// row is encoded once with its new external id so that a row that cannot be
// re-keyed fails the run before anything is deleted. It reports how many
// rows were written and whether an abort was requested.
func (s *Service) writeSnapshot(ctx context.Context, tracker *Tracker, ds *Dataset, idx int, name string, total int64) (_ int64, _ bool, err error) {
	w, err := s.files.Create(name)
	if err != nil {
		return 0, false, fmt.Errorf("create reindex snapshot: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close reindex snapshot: %w", cerr)
		}
	}()

	enc := json.NewEncoder(w)
	query := fieldQuery(FieldDatasetSlug, ds.Slug)
	var saved int64
	for saved < total {
		page, err := s.index.Query(ctx, s.opts.DataCore, query, QueryOptions{
			Offset: int(saved),
			Limit:  s.opts.BatchSize,
			Sort:   exportSort,
		})
		if err != nil {
			return saved, false, fmt.Errorf("query rows at %d: %w", saved, err)
		}
		if len(page.Docs) == 0 {
			break
		}
		for _, fields := range page.Docs {
			doc, err := DocumentFromFields(fields)
			if err != nil {
				return saved, false, err
			}
			if idx >= len(doc.Data) || doc.Data[idx] == "" {
				return saved, false, NewDataImportError("row %d has no value in column %q", doc.Row, ds.Columns[idx])
			}
			if _, err := EncodeRow(ds, doc.Data, doc.Data[idx], doc.Row); err != nil {
				return saved, false, err
			}
			if err := enc.Encode(snapshotRow{Row: doc.Row, Data: doc.Data}); err != nil {
				return saved, false, fmt.Errorf("write reindex snapshot: %w", err)
			}
		}
		saved += int64(len(page.Docs))

		if err := tracker.Update(ctx, fmt.Sprintf("Read %d%% of rows", percent(saved, total))); err != nil {
			return saved, false, err
		}
		if tracker.IsAbortRequested(ctx) {
			return saved, true, nil
		}
	}
	return saved, false, nil
}
