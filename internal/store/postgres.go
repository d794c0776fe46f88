package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
	d    dialect
}

// NewPostgresStore creates a new PostgreSQL store backed by one bounded
// process-wide connection pool. maxConns <= 0 keeps the pgxpool default.
func NewPostgresStore(ctx context.Context, databaseURL string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, d: postgresDialect}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Dialect returns the engine name.
func (s *PostgresStore) Dialect() string {
	return s.d.name
}

// CreateCollection creates a table for the schema.
func (s *PostgresStore) CreateCollection(ctx context.Context, name string, schema Schema) error {
	defer observe("create", time.Now())
	q, err := s.d.createTable(name, schema)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, q.sql)
	return err
}

// DropCollection drops a table.
func (s *PostgresStore) DropCollection(ctx context.Context, name string) error {
	defer observe("drop", time.Now())
	q, err := s.d.dropTable(name)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, q.sql)
	return err
}

// InsertRow inserts a single row.
func (s *PostgresStore) InsertRow(ctx context.Context, collection string, row Row) error {
	defer observe("insert", time.Now())
	q, err := s.d.insert(collection, row)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, q.sql, q.args...)
	return err
}

// SelectOne returns the first matching row, or nil when nothing matches.
func (s *PostgresStore) SelectOne(ctx context.Context, collection string, columns []string, where Where) (Row, error) {
	rows, err := s.SelectMany(ctx, collection, columns, where, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// SelectMany returns up to limit matching rows. limit <= 0 means no limit.
func (s *PostgresStore) SelectMany(ctx context.Context, collection string, columns []string, where Where, limit int) ([]Row, error) {
	defer observe("select", time.Now())
	q, err := s.d.selectRows(collection, columns, where, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

// UpdateRows applies patch to matching rows and returns the affected count.
func (s *PostgresStore) UpdateRows(ctx context.Context, collection string, where Where, patch Row) (int64, error) {
	defer observe("update", time.Now())
	q, err := s.d.update(collection, where, patch)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, q.sql, q.args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteRows deletes matching rows and returns the affected count.
func (s *PostgresStore) DeleteRows(ctx context.Context, collection string, where Where) (int64, error) {
	defer observe("delete", time.Now())
	q, err := s.d.delete(collection, where)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, q.sql, q.args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountRows counts matching rows, up to limit when limit > 0.
func (s *PostgresStore) CountRows(ctx context.Context, collection string, where Where, limit int) (int64, error) {
	defer observe("count", time.Now())
	q, err := s.d.count(collection, where, limit)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, q.sql, q.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
