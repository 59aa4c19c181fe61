package core

// import.go streams an upload into the row index.
//
// Rows are encoded and buffered until BatchSize is reached. After each flush
// the task's progress message is updated and the abort flag is checked, in
// that order. An abort keeps every flushed batch. Whatever the outcome, once
// any batch has been flushed the index is committed and the dataset's
// row_count is recounted from the index, so re-imported external ids are
// never counted twice.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

type importRun struct {
	svc     *Service
	tracker *Tracker
	ds      *Dataset
	upload  *Upload
	args    TaskArgs
	log     *slog.Logger

	total   int64
	read    int64
	flushed int64
	baseRow int64
	batch   []map[string]any
}

// runImport is the TaskHandler for every registered file format.
func (s *Service) runImport(ctx context.Context, taskID string, args TaskArgs) (err error) {
	tracker, err := LoadTracker(ctx, s.tasks, taskID)
	if err != nil {
		return err
	}
	ds, err := s.datasets.GetDataset(ctx, args.DatasetSlug)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	upload, err := s.uploads.GetUpload(ctx, args.UploadID)
	if err != nil {
		return fmt.Errorf("load upload: %w", err)
	}
	format, ok := FormatFor(upload.Filename)
	if !ok {
		return NewDataImportError("unsupported file type: %s", upload.Filename)
	}

	run := &importRun{
		svc:     s,
		tracker: tracker,
		ds:      ds,
		upload:  upload,
		args:    args,
		baseRow: ds.Rows(),
		log:     slog.With("task_id", taskID, "dataset", ds.Slug, "upload_id", upload.ID),
	}

	if err := tracker.Start(ctx, "Preparing to import"); err != nil {
		return err
	}
	run.log.Info("import started", "file", upload.Filename)

	defer func() {
		if err != nil && run.flushed > 0 {
			run.settle(context.WithoutCancel(ctx))
		}
	}()

	path := s.files.Path(upload.Filename)
	total, err := format.CountRows(path, upload)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	run.total = int64(total)

	if tracker.IsAbortRequested(ctx) {
		return tracker.Abort(ctx, "Aborted during preparation")
	}

	reader, err := format.Open(path, upload)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := run.checkHeader(ctx, reader.Header()); err != nil {
		return err
	}

	aborted, err := run.stream(ctx, reader)
	if err != nil {
		return err
	}
	if aborted {
		run.settle(ctx)
		run.log.Info("import aborted", "rows", run.flushed)
		return tracker.Abort(ctx, fmt.Sprintf("Aborted after importing %d%% (estimated)", percent(run.flushed, run.total)))
	}

	return run.finish(ctx)
}

// checkHeader compares the file header with the dataset schema, fixing the
// schema when the dataset has none yet.
func (r *importRun) checkHeader(ctx context.Context, header []string) error {
	if len(header) == 0 {
		return NewDataImportError("%s has no header row", r.upload.OriginalFilename)
	}

	if !r.ds.HasSchema() {
		r.ds.Columns = slices.Clone(header)
		r.ds.ColumnTypes = guessedTypes(r.upload)
		if len(r.ds.ColumnTypes) != len(header) {
			r.ds.ColumnTypes = InferColumnTypes(nil, len(header))
		}
		if err := applySchemaOptions(r.ds, ImportOptions{}); err != nil {
			return err
		}
		if err := r.svc.datasets.UpdateDataset(ctx, r.ds); err != nil {
			return fmt.Errorf("save schema: %w", err)
		}
		return nil
	}

	if !slices.Equal(header, r.ds.Columns) {
		return NewDataImportError("columns in %s do not match dataset %s", r.upload.OriginalFilename, r.ds.Slug)
	}
	return nil
}

// stream reads, encodes and flushes every row. It reports whether the run
// stopped because an abort was requested.
func (r *importRun) stream(ctx context.Context, reader RowReader) (bool, error) {
	batchSize := r.svc.opts.BatchSize

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, err
		}
		r.read++

		var externalID string
		if idx := r.args.ExternalIDIndex; idx != nil && *idx < len(row) {
			externalID = row[*idx]
		}

		doc, err := EncodeRow(r.ds, row, externalID, int(r.baseRow+r.read))
		if err != nil {
			return false, err
		}
		fields, err := doc.Fields()
		if err != nil {
			return false, err
		}
		r.batch = append(r.batch, fields)

		if len(r.batch) < batchSize {
			continue
		}

		if err := r.flush(ctx); err != nil {
			return false, err
		}
		if err := r.tracker.Update(ctx, fmt.Sprintf("%d%% complete (estimated)", percent(r.flushed, r.total))); err != nil {
			return false, err
		}
		if r.tracker.IsAbortRequested(ctx) {
			return true, nil
		}
		if err := r.svc.throttle(ctx); err != nil {
			return false, err
		}
	}

	if err := r.flush(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (r *importRun) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := r.svc.index.Add(ctx, r.svc.opts.DataCore, r.batch, false); err != nil {
		return fmt.Errorf("index rows %d-%d: %w", r.flushed+1, r.flushed+int64(len(r.batch)), err)
	}
	r.flushed += int64(len(r.batch))
	r.batch = make([]map[string]any, 0, r.svc.opts.BatchSize)
	return nil
}

// settle commits the index and stores the recounted row_count. Failures are
// logged; the flushed rows stay in the index either way.
func (r *importRun) settle(ctx context.Context) {
	if err := r.svc.settleRowCount(ctx, r.ds, r.flushed); err != nil {
		r.log.Error("update row count", "error", err)
	}
}

func (r *importRun) finish(ctx context.Context) error {
	task := r.tracker.Task()

	now := r.svc.now().UTC()
	r.ds.LastModified = &now
	r.ds.LastModification = fmt.Sprintf("%d rows imported from %s", r.flushed, r.upload.OriginalFilename)
	r.ds.LastModifiedBy = task.Creator

	if err := r.svc.settleRowCount(ctx, r.ds, r.flushed); err != nil {
		return err
	}
	if err := r.svc.uploads.MarkUploadImported(ctx, r.upload.ID); err != nil {
		return fmt.Errorf("mark upload imported: %w", err)
	}
	if err := r.svc.UpdateFullText(ctx, r.ds); err != nil {
		r.log.Warn("index dataset search document", "error", err)
	}

	r.log.Info("import finished", "rows", r.flushed, "row_count", r.ds.Rows())
	return r.tracker.Succeed(ctx, "Import complete")
}

// settleRowCount commits the data core, recounts the dataset's documents and
// saves the dataset. When the recount fails the count is advanced by added.
func (s *Service) settleRowCount(ctx context.Context, ds *Dataset, added int64) error {
	if err := s.index.Commit(ctx, s.opts.DataCore); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}

	count, err := s.countRows(ctx, ds.Slug)
	if err != nil {
		slog.Warn("recount rows", "dataset", ds.Slug, "error", err)
		count = ds.Rows() + added
	}
	ds.RowCount = &count

	if err := s.datasets.UpdateDataset(ctx, ds); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}

func (s *Service) countRows(ctx context.Context, slug string) (int64, error) {
	res, err := s.index.Query(ctx, s.opts.DataCore, fieldQuery(FieldDatasetSlug, slug), QueryOptions{})
	if err != nil {
		return 0, err
	}
	return res.NumFound, nil
}
