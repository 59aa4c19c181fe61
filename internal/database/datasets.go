package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tabledock/internal/core"
)

const datasetColumns = `slug, name, description, initial_upload_id, columns, column_types,
	typed_columns, typed_column_names, sample_data, row_count, current_task_id, creator,
	created_at, last_modified, last_modification, last_modified_by, locked, locked_at`

func scanDataset(row pgx.Row) (*core.Dataset, error) {
	var (
		ds     core.Dataset
		types  []string
		sample []byte
	)
	err := row.Scan(&ds.Slug, &ds.Name, &ds.Description, &ds.InitialUploadID, &ds.Columns, &types,
		&ds.TypedColumns, &ds.TypedColumnNames, &sample, &ds.RowCount, &ds.CurrentTaskID, &ds.Creator,
		&ds.CreatedAt, &ds.LastModified, &ds.LastModification, &ds.LastModifiedBy, &ds.Locked, &ds.LockedAt)
	if err != nil {
		return nil, err
	}
	ds.ColumnTypes = stringsToTypes(types)
	if err := json.Unmarshal(sample, &ds.SampleData); err != nil {
		return nil, fmt.Errorf("dataset %s: decode sample data: %w", ds.Slug, err)
	}
	return &ds, nil
}

func (s *Store) CreateDataset(ctx context.Context, ds *core.Dataset) error {
	sample, err := sampleJSON(ds.SampleData)
	if err != nil {
		return fmt.Errorf("marshal sample data: %w", err)
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO datasets (slug, name, description, initial_upload_id, columns, column_types,
			typed_columns, typed_column_names, sample_data, row_count, current_task_id, creator,
			created_at, last_modified, last_modification, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $14, $15, $16)`,
		ds.Slug, ds.Name, ds.Description, ds.InitialUploadID, emptyIfNil(ds.Columns), typesToStrings(ds.ColumnTypes),
		emptyIfNil(ds.TypedColumns), emptyIfNil(ds.TypedColumnNames), sample, ds.RowCount, ds.CurrentTaskID, ds.Creator,
		ds.CreatedAt, ds.LastModified, ds.LastModification, ds.LastModifiedBy)
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", ds.Slug, err)
	}
	return nil
}

func (s *Store) GetDataset(ctx context.Context, slug string) (*core.Dataset, error) {
	ds, err := scanDataset(s.pool.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE slug = $1`, slug))
	if err != nil {
		return nil, notFound(err, "dataset", slug)
	}
	return ds, nil
}

// ListDatasets returns all datasets ordered by slug.
func (s *Store) ListDatasets(ctx context.Context) ([]core.Dataset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []core.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}

// UpdateDataset writes every column except locked and locked_at.
func (s *Store) UpdateDataset(ctx context.Context, ds *core.Dataset) error {
	sample, err := sampleJSON(ds.SampleData)
	if err != nil {
		return fmt.Errorf("marshal sample data: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE datasets SET
			name = $2, description = $3, initial_upload_id = $4, columns = $5, column_types = $6,
			typed_columns = $7, typed_column_names = $8, sample_data = $9::jsonb, row_count = $10,
			current_task_id = $11, last_modified = $12, last_modification = $13, last_modified_by = $14
		WHERE slug = $1`,
		ds.Slug, ds.Name, ds.Description, ds.InitialUploadID, emptyIfNil(ds.Columns), typesToStrings(ds.ColumnTypes),
		emptyIfNil(ds.TypedColumns), emptyIfNil(ds.TypedColumnNames), sample, ds.RowCount,
		ds.CurrentTaskID, ds.LastModified, ds.LastModification, ds.LastModifiedBy)
	if err != nil {
		return fmt.Errorf("update dataset %s: %w", ds.Slug, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dataset %s: %w", ds.Slug, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteDataset(ctx context.Context, slug string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM datasets WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("delete dataset %s: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dataset %s: %w", slug, core.ErrNotFound)
	}
	return nil
}

// TryLock is a single conditional UPDATE, so of any number of concurrent
// callers exactly one sees a changed row.
func (s *Store) TryLock(ctx context.Context, slug string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE datasets SET locked = TRUE, locked_at = $2 WHERE slug = $1 AND NOT locked`, slug, at)
	if err != nil {
		return false, fmt.Errorf("lock dataset %s: %w", slug, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM datasets WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("lock dataset %s: %w", slug, err)
	}
	if !exists {
		return false, fmt.Errorf("dataset %s: %w", slug, core.ErrNotFound)
	}
	return false, nil
}

func (s *Store) Unlock(ctx context.Context, slug string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE datasets SET locked = FALSE, locked_at = NULL WHERE slug = $1`, slug); err != nil {
		return fmt.Errorf("unlock dataset %s: %w", slug, err)
	}
	return nil
}
