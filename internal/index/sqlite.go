package index

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/tabledock/internal/core"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLite stores documents as JSON in a single table keyed by (core, id).
// Every Add and Delete is its own transaction, so Commit has nothing to do.
type SQLite struct {
	db *sql.DB
}

var _ core.Index = (*SQLite)(nil)

// OpenSQLite opens (or creates) the index database at path.
// Pass ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging index database: %w", err)
	}

	// A single connection avoids "database is locked" and keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Add(ctx context.Context, coreName string, docs []map[string]any, _ bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (core, id, body) VALUES (?, ?, ?)
		ON CONFLICT (core, id) DO UPDATE SET body = excluded.body`)
	if err != nil {
		return fmt.Errorf("prepare add: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		id, ok := d[core.FieldID].(string)
		if !ok {
			return fmt.Errorf("add to %s: document without string id", coreName)
		}
		body, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, coreName, id, string(body)); err != nil {
			return fmt.Errorf("add document %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) Delete(ctx context.Context, coreName, query string, _ bool) error {
	where, args, err := sqlWhere(coreName, query)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete from %s: %w", coreName, err)
	}
	return nil
}

func (s *SQLite) Commit(context.Context, string) error { return nil }

func (s *SQLite) Query(ctx context.Context, coreName, query string, opts core.QueryOptions) (*core.QueryResult, error) {
	where, args, err := sqlWhere(coreName, query)
	if err != nil {
		return nil, err
	}
	keys, err := ParseSort(opts.Sort)
	if err != nil {
		return nil, err
	}

	res := &core.QueryResult{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&res.NumFound); err != nil {
		return nil, fmt.Errorf("count %s: %w", coreName, err)
	}
	if opts.Limit <= 0 || res.NumFound == 0 {
		return res, nil
	}

	order := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("json_extract(body, '%s') %s", jsonPath(k.Field), dir))
	}
	order = append(order, "id ASC")

	stmt := "SELECT body FROM documents WHERE " + where +
		" ORDER BY " + strings.Join(order, ", ") + " LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, stmt, append(args, opts.Limit, max(opts.Offset, 0))...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coreName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", coreName, err)
		}
		doc, err := decodeDocument([]byte(body))
		if err != nil {
			return nil, err
		}
		res.Docs = append(res.Docs, doc)
	}
	return res, rows.Err()
}

// sqlWhere translates a query into a WHERE clause over the documents table.
func sqlWhere(coreName, query string) (string, []any, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return "", nil, err
	}

	conds := []string{"core = ?"}
	args := []any{coreName}
	for _, c := range q.Clauses {
		if c.Field == "" {
			conds = append(conds, "instr(lower(json_extract(body, '$.full_text')), lower(?)) > 0")
			args = append(args, c.Value)
			continue
		}
		if strings.ContainsAny(c.Field, `"'`) {
			return "", nil, fmt.Errorf("unsupported field name %q", c.Field)
		}
		conds = append(conds, "CAST(json_extract(body, ?) AS TEXT) = ?")
		args = append(args, jsonPath(c.Field), c.Value)
	}
	return strings.Join(conds, " AND "), args, nil
}

func jsonPath(field string) string {
	return `$."` + field + `"`
}

func decodeDocument(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
