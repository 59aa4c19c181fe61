package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases name and collapses every run of other characters to a
// single hyphen.
func slugify(name string) string {
	slug := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		return "dataset"
	}
	return slug
}

// CreateDataset creates an empty dataset. The slug is derived from name and
// suffixed with -2, -3, ... when taken.
func (s *Service) CreateDataset(ctx context.Context, name, description string) (*Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewDataImportError("dataset name is required")
	}

	slug, err := s.uniqueSlug(ctx, slugify(name))
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Slug:        slug,
		Name:        name,
		Description: description,
		Creator:     UserFromContext(ctx),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.datasets.CreateDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	if err := s.UpdateFullText(ctx, ds); err != nil {
		slog.Warn("index dataset search document", "dataset", slug, "error", err)
	}
	return ds, nil
}

func (s *Service) uniqueSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for n := 2; ; n++ {
		_, err := s.datasets.GetDataset(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", fmt.Errorf("check slug %s: %w", slug, err)
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}

// GetDataset returns the dataset with the given slug.
func (s *Service) GetDataset(ctx context.Context, slug string) (*Dataset, error) {
	return s.datasets.GetDataset(ctx, slug)
}

// ListDatasets returns every dataset.
func (s *Service) ListDatasets(ctx context.Context) ([]Dataset, error) {
	return s.datasets.ListDatasets(ctx)
}

// SearchDatasets returns datasets whose search document contains text.
func (s *Service) SearchDatasets(ctx context.Context, text string, limit int) ([]Dataset, error) {
	q := "*:*"
	if strings.TrimSpace(text) != "" {
		q = QuoteQueryValue(text)
	}
	if limit <= 0 {
		limit = 50
	}

	res, err := s.index.Query(ctx, s.opts.DatasetsCore, q, QueryOptions{Limit: limit, Sort: "slug asc"})
	if err != nil {
		return nil, fmt.Errorf("search datasets: %w", err)
	}

	result := make([]Dataset, 0, len(res.Docs))
	for _, doc := range res.Docs {
		slug, _ := doc["slug"].(string)
		ds, err := s.datasets.GetDataset(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *ds)
	}
	return result, nil
}

// UpdateFullText rewrites the dataset's search document.
func (s *Service) UpdateFullText(ctx context.Context, ds *Dataset) error {
	parts := []string{ds.Name, ds.Slug, ds.Description}
	parts = append(parts, ds.Columns...)

	doc := map[string]any{
		FieldID:       ds.Slug,
		"slug":        ds.Slug,
		"name":        ds.Name,
		FieldFullText: strings.Join(parts, "\n"),
	}
	return s.index.Add(ctx, s.opts.DatasetsCore, []map[string]any{doc}, true)
}

// DeleteDataset removes a dataset. A running task is asked to abort, the
// metadata record is removed at once and its index documents are purged in
// the background once that task has stopped.
func (s *Service) DeleteDataset(ctx context.Context, slug string) error {
	ds, err := s.datasets.GetDataset(ctx, slug)
	if err != nil {
		return err
	}

	var await string
	if ds.CurrentTaskID != "" {
		tracker, err := LoadTracker(ctx, s.tasks, ds.CurrentTaskID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case !tracker.Task().Status.Terminal():
			if err := tracker.RequestAbort(ctx); err != nil && !errors.Is(err, ErrInvalidTaskTransition) {
				return err
			}
			await = ds.CurrentTaskID
		}
	}

	if err := s.datasets.DeleteDataset(ctx, slug); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}

	return s.scheduler.ScheduleAsync(TaskPurge, TaskArgs{DatasetSlug: slug, AwaitTaskID: await}, "")
}

// runPurge deletes every index document belonging to a dataset.
func (s *Service) runPurge(ctx context.Context, _ string, args TaskArgs) error {
	if args.AwaitTaskID != "" {
		if err := s.awaitTask(ctx, args.AwaitTaskID); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.index.Delete(gctx, s.opts.DataCore, fieldQuery(FieldDatasetSlug, args.DatasetSlug), true)
	})
	g.Go(func() error {
		return s.index.Delete(gctx, s.opts.DatasetsCore, fieldQuery(FieldID, args.DatasetSlug), true)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("purge dataset %s: %w", args.DatasetSlug, err)
	}
	return nil
}

// awaitTask polls until the task reaches a terminal state.
func (s *Service) awaitTask(ctx context.Context, id string) error {
	for {
		task, err := s.tasks.GetTask(ctx, id)
		if errors.Is(err, ErrNotFound) || (err == nil && task.Status.Terminal()) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sleepCtx(ctx, awaitPollInterval); err != nil {
			return err
		}
	}
}

// ImportData validates the request, fixes the dataset schema on the first
// import and schedules the import pipeline for the upload's format. The
// upload is re-read under the dataset lock, so its imported flag is checked
// by the same caller that schedules the import.
func (s *Service) ImportData(ctx context.Context, slug, uploadID string, opts ImportOptions) (*TaskStatus, error) {
	if _, err := s.datasets.GetDataset(ctx, slug); err != nil {
		return nil, err
	}
	upload, err := s.uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	format, ok := FormatFor(upload.Filename)
	if !ok {
		return nil, NewDataImportError("unsupported file type: %s", filepath.Ext(upload.Filename))
	}

	args := TaskArgs{UploadID: upload.ID, ExternalIDIndex: opts.ExternalIDIndex}
	return s.startLockedTask(ctx, slug, format.TaskName, "Importing "+upload.OriginalFilename, args, func(ds *Dataset) error {
		upload, err := s.uploads.GetUpload(ctx, uploadID)
		if err != nil {
			return err
		}
		if upload.Imported {
			return NewDataImportError("upload %s has already been imported", upload.OriginalFilename)
		}
		if len(upload.Columns) == 0 {
			return NewDataImportError("upload %s has no header row", upload.OriginalFilename)
		}

		if ds.HasSchema() {
			if !slices.Equal(upload.Columns, ds.Columns) {
				return NewDataImportError("columns in %s do not match dataset %s", upload.OriginalFilename, ds.Slug)
			}
		} else {
			ds.InitialUploadID = upload.ID
			ds.Columns = slices.Clone(upload.Columns)
			ds.ColumnTypes = guessedTypes(upload)
			ds.TypedColumns = make([]bool, len(ds.Columns))
			ds.SampleData = upload.SampleData
		}

		if err := applySchemaOptions(ds, opts); err != nil {
			return err
		}
		if opts.ExternalIDIndex != nil {
			if i := *opts.ExternalIDIndex; i < 0 || i >= len(ds.Columns) {
				return NewDataImportError("external id field index %d is out of range", i)
			}
		}
		return nil
	})
}

func guessedTypes(up *Upload) []ColumnType {
	if len(up.GuessedTypes) == len(up.Columns) {
		return slices.Clone(up.GuessedTypes)
	}
	types := make([]ColumnType, len(up.Columns))
	for i := range types {
		types[i] = TypeText
	}
	return types
}

// applySchemaOptions applies caller-supplied column types and typed column
// flags, then regenerates the typed column names.
func applySchemaOptions(ds *Dataset, opts ImportOptions) error {
	if opts.ColumnTypes != nil {
		if len(opts.ColumnTypes) != len(ds.Columns) {
			return NewDataImportError("got %d column types for %d columns", len(opts.ColumnTypes), len(ds.Columns))
		}
		for _, t := range opts.ColumnTypes {
			if !t.Valid() {
				return NewDataImportError("unknown column type %q", t)
			}
		}
		ds.ColumnTypes = slices.Clone(opts.ColumnTypes)
	}
	if opts.TypedColumns != nil {
		if len(opts.TypedColumns) != len(ds.Columns) {
			return NewDataImportError("got %d typed column flags for %d columns", len(opts.TypedColumns), len(ds.Columns))
		}
		ds.TypedColumns = slices.Clone(opts.TypedColumns)
	}
	if len(ds.TypedColumns) != len(ds.Columns) {
		ds.TypedColumns = make([]bool, len(ds.Columns))
	}
	ds.TypedColumnNames = TypedColumnNames(ds.Columns, ds.ColumnTypes, ds.TypedColumns)
	return nil
}

// ReindexData rewrites every row document of the dataset, typically after
// changing which columns are typed. With an external id column every row is
// re-keyed by that column's value.
func (s *Service) ReindexData(ctx context.Context, slug string, opts ImportOptions) (*TaskStatus, error) {
	args := TaskArgs{ExternalIDIndex: opts.ExternalIDIndex}
	return s.startLockedTask(ctx, slug, TaskReindex, "Reindexing", args, func(ds *Dataset) error {
		if !ds.HasSchema() {
			return NewDataImportError("dataset %s has no data to reindex", slug)
		}
		if opts.ExternalIDIndex != nil {
			if i := *opts.ExternalIDIndex; i < 0 || i >= len(ds.Columns) {
				return NewDataImportError("external id field index %d is out of range", i)
			}
		}
		return applySchemaOptions(ds, opts)
	})
}

// ExportData schedules a CSV export of every row. An empty filename selects
// <slug>-<timestamp>.csv.
func (s *Service) ExportData(ctx context.Context, slug, filename string) (*TaskStatus, error) {
	if _, err := s.datasets.GetDataset(ctx, slug); err != nil {
		return nil, err
	}

	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = fmt.Sprintf("%s-%s.csv", slug, s.now().UTC().Format("20060102T150405"))
	}
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		filename += ".csv"
	}

	return s.startLockedTask(ctx, slug, TaskExportCSV, "", TaskArgs{Filename: filename}, func(ds *Dataset) error {
		if !ds.HasSchema() {
			return NewDataImportError("dataset %s has no columns to export", ds.Slug)
		}
		return nil
	})
}
