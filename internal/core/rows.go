package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// RowInput is one row supplied to AddRow or AddManyRows.
type RowInput struct {
	ExternalID string   `json:"external_id,omitempty"`
	Data       []string `json:"data"`
}

// rowQuery matches the row of a dataset with the given external id.
func rowQuery(slug, externalID string) string {
	return fieldQuery(FieldDatasetSlug, slug) + " AND " + fieldQuery(FieldExternalID, externalID)
}

// GetRow returns the row with the given external id.
func (s *Service) GetRow(ctx context.Context, slug, externalID string) (*Row, error) {
	if _, err := s.datasets.GetDataset(ctx, slug); err != nil {
		return nil, err
	}

	res, err := s.index.Query(ctx, s.opts.DataCore, rowQuery(slug, externalID), QueryOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("query row: %w", err)
	}
	if len(res.Docs) == 0 {
		return nil, fmt.Errorf("row %q: %w", externalID, ErrNotFound)
	}

	doc, err := DocumentFromFields(res.Docs[0])
	if err != nil {
		return nil, err
	}
	row := doc.Decoded()
	return &row, nil
}

// SearchRows returns a page of rows whose text contains text. An empty text
// matches every row.
func (s *Service) SearchRows(ctx context.Context, slug, text string, offset, limit int) (*RowPage, error) {
	if _, err := s.datasets.GetDataset(ctx, slug); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > s.opts.PageSize {
		limit = s.opts.PageSize
	}

	q := fieldQuery(FieldDatasetSlug, slug)
	if t := strings.TrimSpace(text); t != "" {
		q += " AND " + QuoteQueryValue(t)
	}

	res, err := s.index.Query(ctx, s.opts.DataCore, q, QueryOptions{Offset: offset, Limit: limit, Sort: exportSort})
	if err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}

	page := &RowPage{Total: res.NumFound, Offset: offset, Limit: limit, Rows: make([]Row, 0, len(res.Docs))}
	for _, fields := range res.Docs {
		doc, err := DocumentFromFields(fields)
		if err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, doc.Decoded())
	}
	return page, nil
}

// AddRow adds or, when its external id exists, replaces a single row.
func (s *Service) AddRow(ctx context.Context, slug string, in RowInput) (*Row, error) {
	rows, err := s.AddManyRows(ctx, slug, []RowInput{in})
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// AddManyRows adds rows in one index commit. Rows whose external id already
// exists replace the stored row. The dataset lock is held for the duration.
func (s *Service) AddManyRows(ctx context.Context, slug string, inputs []RowInput) ([]Row, error) {
	if len(inputs) == 0 {
		return nil, NewDataImportError("no rows given")
	}

	return withDatasetLock(ctx, s, slug, func(ds *Dataset) ([]Row, error) {
		if !ds.HasSchema() {
			return nil, NewDataImportError("dataset %s has no columns yet; import a file first", slug)
		}

		updated := 0
		if len(inputs) == 1 && inputs[0].ExternalID != "" {
			if _, err := s.GetRow(ctx, slug, inputs[0].ExternalID); err == nil {
				updated = 1
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}

		next := ds.Rows()
		docs := make([]map[string]any, 0, len(inputs))
		rows := make([]Row, 0, len(inputs))
		for i, in := range inputs {
			if len(in.Data) != len(ds.Columns) {
				return nil, NewDataImportError("row %d has %d values, dataset %s has %d columns", i+1, len(in.Data), slug, len(ds.Columns))
			}
			next++
			doc, err := EncodeRow(ds, in.Data, in.ExternalID, int(next))
			if err != nil {
				return nil, err
			}
			m, err := doc.Fields()
			if err != nil {
				return nil, err
			}
			docs = append(docs, m)
			rows = append(rows, doc.Decoded())
		}

		if err := s.index.Add(ctx, s.opts.DataCore, docs, true); err != nil {
			return nil, fmt.Errorf("index rows: %w", err)
		}

		for _, in := range inputs {
			if len(ds.SampleData) >= s.opts.SampleRows {
				break
			}
			ds.SampleData = append(ds.SampleData, slices.Clone(in.Data))
		}

		switch {
		case len(inputs) > 1:
			s.touch(ctx, ds, fmt.Sprintf("%d rows added", len(inputs)))
		case updated == 1:
			s.touch(ctx, ds, "1 row updated")
		default:
			s.touch(ctx, ds, "1 row added")
		}
		if err := s.settleRowCount(ctx, ds, int64(len(inputs)-updated)); err != nil {
			return nil, err
		}
		return rows, nil
	})
}

// DeleteRow removes the row with the given external id.
func (s *Service) DeleteRow(ctx context.Context, slug, externalID string) error {
	_, err := withDatasetLock(ctx, s, slug, func(ds *Dataset) (struct{}, error) {
		if _, err := s.GetRow(ctx, slug, externalID); err != nil {
			return struct{}{}, err
		}
		if err := s.index.Delete(ctx, s.opts.DataCore, rowQuery(slug, externalID), true); err != nil {
			return struct{}{}, fmt.Errorf("delete row: %w", err)
		}
		s.touch(ctx, ds, "1 row deleted")
		return struct{}{}, s.settleRowCount(ctx, ds, -1)
	})
	return err
}

// DeleteAllRows removes every row of the dataset while keeping its schema.
func (s *Service) DeleteAllRows(ctx context.Context, slug string) error {
	_, err := withDatasetLock(ctx, s, slug, func(ds *Dataset) (struct{}, error) {
		if err := s.index.Delete(ctx, s.opts.DataCore, fieldQuery(FieldDatasetSlug, slug), true); err != nil {
			return struct{}{}, fmt.Errorf("delete rows: %w", err)
		}
		zero := int64(0)
		ds.RowCount = &zero
		s.touch(ctx, ds, "All rows deleted")
		return struct{}{}, s.settleRowCount(ctx, ds, 0)
	})
	return err
}

func (s *Service) touch(ctx context.Context, ds *Dataset, modification string) {
	now := s.now().UTC()
	ds.LastModified = &now
	ds.LastModification = modification
	ds.LastModifiedBy = UserFromContext(ctx)
}

// withDatasetLock runs fn with the dataset locked, passing it the dataset
// as read after the lock was taken.
func withDatasetLock[T any](ctx context.Context, s *Service, slug string, fn func(ds *Dataset) (T, error)) (T, error) {
	var zero T

	lock := NewDatasetLock(s.datasets, slug)
	if _, err := lock.Lock(ctx); err != nil {
		return zero, err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Error("release dataset lock", "dataset", slug, "error", err)
		}
	}()

	ds, err := s.datasets.GetDataset(ctx, slug)
	if err != nil {
		return zero, err
	}
	return fn(ds)
}
