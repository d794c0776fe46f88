package store

import (
	"context"
	"errors"
)

var ErrInvalidIdentifier = errors.New("store: invalid identifier")

// ColumnType is the logical type of a collection column.
type ColumnType int

const (
	Text ColumnType = iota
	Bool
)

// Column describes one column of a collection.
type Column struct {
	Name    string
	Type    ColumnType
	Size    int   // max length for Text, 0 for unbounded
	Default *bool // only used for Bool columns
}

// Schema describes a collection.
type Schema struct {
	Columns    []Column
	PrimaryKey string
}

// Row maps column names to values.
type Row map[string]any

// Where is a conjunction of column equality conditions. An empty Where
// matches every row.
type Where map[string]any

// Store is the relational contract used by the relay engine. Values are
// always sent as bound parameters; collection and column names are validated
// and quoted by the implementation.
type Store interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error
	Dialect() string

	// Collection operations
	CreateCollection(ctx context.Context, name string, schema Schema) error
	DropCollection(ctx context.Context, name string) error

	// Row operations
	InsertRow(ctx context.Context, collection string, row Row) error
	SelectOne(ctx context.Context, collection string, columns []string, where Where) (Row, error)
	SelectMany(ctx context.Context, collection string, columns []string, where Where, limit int) ([]Row, error)
	UpdateRows(ctx context.Context, collection string, where Where, patch Row) (int64, error)
	DeleteRows(ctx context.Context, collection string, where Where) (int64, error)

	// CountRows counts matching rows, stopping at limit when limit > 0.
	CountRows(ctx context.Context, collection string, where Where, limit int) (int64, error)
}
