// Package database persists datasets, uploads and task status records in
// PostgreSQL.
package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tabledock/internal/core"
)

//go:embed schema.sql
var schema string

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Store implements core.DatasetStore, core.UploadStore and core.TaskStore.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ core.DatasetStore = (*Store)(nil)
	_ core.UploadStore  = (*Store)(nil)
	_ core.TaskStore    = (*Store)(nil)
)

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func notFound(err error, what, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, key, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", what, key, err)
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sampleJSON(rows [][]string) (string, error) {
	if rows == nil {
		rows = [][]string{}
	}
	return marshalJSON(rows)
}

func typesToStrings(types []core.ColumnType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func stringsToTypes(s []string) []core.ColumnType {
	out := make([]core.ColumnType, len(s))
	for i, t := range s {
		out[i] = core.ColumnType(t)
	}
	return out
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
