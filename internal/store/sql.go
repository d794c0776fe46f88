package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eldtechnologies/ironpulse/internal/metrics"
)

// identRegex bounds collection and column names. Identifiers cannot be bound
// as parameters, so they are checked here and then quoted.
var identRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name        string
	placeholder func(n int) string
	boolType    string
	boolLiteral func(v bool) string
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	boolType:    "BOOLEAN",
	boolLiteral: func(v bool) string {
		if v {
			return "TRUE"
		}
		return "FALSE"
	},
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	boolType:    "BOOLEAN",
	boolLiteral: func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	},
}

// ValidIdentifier reports whether name can be used as a collection or column name.
func ValidIdentifier(name string) bool {
	return identRegex.MatchString(name)
}

func quote(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return `"` + name + `"`, nil
}

func quoteAll(names []string) (string, error) {
	quoted := make([]string, len(names))
	for i, n := range names {
		q, err := quote(n)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, ", "), nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// query is a statement with its bound arguments.
type query struct {
	sql  string
	args []any
}

func (d dialect) createTable(name string, schema Schema) (query, error) {
	table, err := quote(name)
	if err != nil {
		return query{}, err
	}
	if len(schema.Columns) == 0 {
		return query{}, fmt.Errorf("store: schema for %q has no columns", name)
	}

	defs := make([]string, 0, len(schema.Columns)+1)
	for _, c := range schema.Columns {
		col, err := quote(c.Name)
		if err != nil {
			return query{}, err
		}
		var def string
		switch c.Type {
		case Bool:
			def = col + " " + d.boolType + " NOT NULL"
			if c.Default != nil {
				def += " DEFAULT " + d.boolLiteral(*c.Default)
			}
		default:
			if c.Size > 0 {
				def = fmt.Sprintf("%s VARCHAR(%d) NOT NULL", col, c.Size)
			} else {
				def = col + " TEXT NOT NULL"
			}
		}
		defs = append(defs, def)
	}
	if schema.PrimaryKey != "" {
		pk, err := quote(schema.PrimaryKey)
		if err != nil {
			return query{}, err
		}
		defs = append(defs, "PRIMARY KEY ("+pk+")")
	}

	return query{sql: "CREATE TABLE " + table + " (" + strings.Join(defs, ", ") + ")"}, nil
}

func (d dialect) dropTable(name string) (query, error) {
	table, err := quote(name)
	if err != nil {
		return query{}, err
	}
	return query{sql: "DROP TABLE " + table}, nil
}

func (d dialect) insert(collection string, row Row) (query, error) {
	table, err := quote(collection)
	if err != nil {
		return query{}, err
	}
	if len(row) == 0 {
		return query{}, fmt.Errorf("store: empty row for %q", collection)
	}
	keys := sortedKeys(row)
	cols, err := quoteAll(keys)
	if err != nil {
		return query{}, err
	}
	args := make([]any, len(keys))
	marks := make([]string, len(keys))
	for i, k := range keys {
		args[i] = row[k]
		marks[i] = d.placeholder(i + 1)
	}
	return query{
		sql:  "INSERT INTO " + table + " (" + cols + ") VALUES (" + strings.Join(marks, ", ") + ")",
		args: args,
	}, nil
}

// where renders the conditions starting at placeholder index start.
func (d dialect) where(where Where, start int) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(where)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		col, err := quote(k)
		if err != nil {
			return "", nil, err
		}
		conds[i] = col + " = " + d.placeholder(start+i)
		args[i] = where[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (d dialect) selectRows(collection string, columns []string, where Where, limit int) (query, error) {
	table, err := quote(collection)
	if err != nil {
		return query{}, err
	}
	cols := "*"
	if len(columns) > 0 {
		if cols, err = quoteAll(columns); err != nil {
			return query{}, err
		}
	}
	cond, args, err := d.where(where, 1)
	if err != nil {
		return query{}, err
	}
	sql := "SELECT " + cols + " FROM " + table + cond
	if limit > 0 {
		sql += " LIMIT " + d.placeholder(len(args)+1)
		args = append(args, limit)
	}
	return query{sql: sql, args: args}, nil
}

// count wraps a capped SELECT so the engine stops scanning at limit rows.
func (d dialect) count(collection string, where Where, limit int) (query, error) {
	table, err := quote(collection)
	if err != nil {
		return query{}, err
	}
	cond, args, err := d.where(where, 1)
	if err != nil {
		return query{}, err
	}
	if limit <= 0 {
		return query{sql: "SELECT COUNT(*) FROM " + table + cond, args: args}, nil
	}
	sql := "SELECT COUNT(*) FROM (SELECT 1 FROM " + table + cond + " LIMIT " + d.placeholder(len(args)+1) + ") AS capped"
	return query{sql: sql, args: append(args, limit)}, nil
}

func (d dialect) update(collection string, where Where, patch Row) (query, error) {
	table, err := quote(collection)
	if err != nil {
		return query{}, err
	}
	if len(patch) == 0 {
		return query{}, fmt.Errorf("store: empty patch for %q", collection)
	}
	keys := sortedKeys(patch)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(where))
	for i, k := range keys {
		col, err := quote(k)
		if err != nil {
			return query{}, err
		}
		sets[i] = col + " = " + d.placeholder(i+1)
		args = append(args, patch[k])
	}
	cond, condArgs, err := d.where(where, len(keys)+1)
	if err != nil {
		return query{}, err
	}
	return query{
		sql:  "UPDATE " + table + " SET " + strings.Join(sets, ", ") + cond,
		args: append(args, condArgs...),
	}, nil
}

func (d dialect) delete(collection string, where Where) (query, error) {
	table, err := quote(collection)
	if err != nil {
		return query{}, err
	}
	cond, args, err := d.where(where, 1)
	if err != nil {
		return query{}, err
	}
	return query{sql: "DELETE FROM " + table + cond, args: args}, nil
}

// observe records the latency of a store operation.
func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
