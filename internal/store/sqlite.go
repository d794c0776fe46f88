package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/ironpulse.db"
func NewSQLiteStore(ctx context.Context, dbPath string, maxConns int) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/ironpulse.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, d: sqliteDialect}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the engine name.
func (s *SQLiteStore) Dialect() string {
	return s.d.name
}

// CreateCollection creates a table for the schema.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string, schema Schema) error {
	defer observe("create", time.Now())
	q, err := s.d.createTable(name, schema)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q.sql)
	return err
}

// DropCollection drops a table.
func (s *SQLiteStore) DropCollection(ctx context.Context, name string) error {
	defer observe("drop", time.Now())
	q, err := s.d.dropTable(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q.sql)
	return err
}

// InsertRow inserts a single row.
func (s *SQLiteStore) InsertRow(ctx context.Context, collection string, row Row) error {
	defer observe("insert", time.Now())
	q, err := s.d.insert(collection, row)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q.sql, q.args...)
	return err
}

// SelectOne returns the first matching row, or nil when nothing matches.
func (s *SQLiteStore) SelectOne(ctx context.Context, collection string, columns []string, where Where) (Row, error) {
	rows, err := s.SelectMany(ctx, collection, columns, where, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// SelectMany returns up to limit matching rows. limit <= 0 means no limit.
func (s *SQLiteStore) SelectMany(ctx context.Context, collection string, columns []string, where Where, limit int) ([]Row, error) {
	defer observe("select", time.Now())
	q, err := s.d.selectRows(collection, columns, where, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(names))
		for i, n := range names {
			if b, ok := values[i].([]byte); ok {
				row[n] = string(b)
				continue
			}
			row[n] = values[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// UpdateRows applies patch to matching rows and returns the affected count.
func (s *SQLiteStore) UpdateRows(ctx context.Context, collection string, where Where, patch Row) (int64, error) {
	defer observe("update", time.Now())
	q, err := s.d.update(collection, where, patch)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, q.sql, q.args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteRows deletes matching rows and returns the affected count.
func (s *SQLiteStore) DeleteRows(ctx context.Context, collection string, where Where) (int64, error) {
	defer observe("delete", time.Now())
	q, err := s.d.delete(collection, where)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, q.sql, q.args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountRows counts matching rows, up to limit when limit > 0.
func (s *SQLiteStore) CountRows(ctx context.Context, collection string, where Where, limit int) (int64, error) {
	defer observe("count", time.Now())
	q, err := s.d.count(collection, where, limit)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q.sql, q.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
