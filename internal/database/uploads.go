package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tabledock/internal/core"
)

const uploadColumns = `id, filename, original_filename, size, creator, encoding, dialect,
	columns, sample_data, guessed_types, imported, created_at`

func scanUpload(row pgx.Row) (*core.Upload, error) {
	var (
		up      core.Upload
		dialect []byte
		sample  []byte
		types   []string
	)
	err := row.Scan(&up.ID, &up.Filename, &up.OriginalFilename, &up.Size, &up.Creator, &up.Encoding, &dialect,
		&up.Columns, &sample, &types, &up.Imported, &up.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(dialect) > 0 && string(dialect) != "null" {
		up.Dialect = &core.Dialect{}
		if err := json.Unmarshal(dialect, up.Dialect); err != nil {
			return nil, fmt.Errorf("upload %s: decode dialect: %w", up.ID, err)
		}
	}
	if err := json.Unmarshal(sample, &up.SampleData); err != nil {
		return nil, fmt.Errorf("upload %s: decode sample data: %w", up.ID, err)
	}
	up.GuessedTypes = stringsToTypes(types)
	return &up, nil
}

func (s *Store) CreateUpload(ctx context.Context, up *core.Upload) error {
	var dialect *string
	if up.Dialect != nil {
		d, err := marshalJSON(up.Dialect)
		if err != nil {
			return fmt.Errorf("marshal dialect: %w", err)
		}
		dialect = &d
	}
	sample, err := sampleJSON(up.SampleData)
	if err != nil {
		return fmt.Errorf("marshal sample data: %w", err)
	}
	if up.CreatedAt.IsZero() {
		up.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO uploads (id, filename, original_filename, size, creator, encoding, dialect,
			columns, sample_data, guessed_types, imported, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10, $11, $12)`,
		up.ID, up.Filename, up.OriginalFilename, up.Size, up.Creator, up.Encoding, dialect,
		emptyIfNil(up.Columns), sample, typesToStrings(up.GuessedTypes), up.Imported, up.CreatedAt)
	if err != nil {
		return fmt.Errorf("create upload %s: %w", up.ID, err)
	}
	return nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (*core.Upload, error) {
	up, err := scanUpload(s.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "upload", id)
	}
	return up, nil
}

// ListUploads returns all uploads, newest first.
func (s *Store) ListUploads(ctx context.Context) ([]core.Upload, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+uploadColumns+` FROM uploads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []core.Upload
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, *up)
	}
	return out, rows.Err()
}

func (s *Store) MarkUploadImported(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE uploads SET imported = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark upload %s imported: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload %s: %w", id, core.ErrNotFound)
	}
	return nil
}
