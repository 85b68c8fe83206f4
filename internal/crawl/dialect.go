package crawl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Limetric/schemacrawl/internal/catalog"
)

// ErrUnsupported is returned by a dialect for metadata its database cannot
// expose.
var ErrUnsupported = errors.New("not supported by this database")

// Querier runs metadata queries. *connection.Conn and *sql.DB both satisfy
// it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect abstracts the metadata queries of one database engine. Objects
// returned for a schema or table are new; the retriever attaches them to
// the catalog. Methods return ErrUnsupported (possibly wrapped) for
// metadata the engine does not have.
type Dialect interface {
	// Name returns a human-readable engine name ("MySQL", "SQLite").
	Name() string

	// OpenDB opens a database handle with driver-specific options.
	OpenDB(dsn, user, password string) (*sql.DB, error)

	// NameCase reports how the engine folds unquoted identifiers.
	NameCase() catalog.NameCase

	// MaxWorkers returns the maximum number of parallel workers.
	// 0 means use the configured value; >0 caps workers to this value.
	MaxWorkers() int

	// QuoteIdentifier quotes an identifier for use in queries.
	QuoteIdentifier(name string) string

	DatabaseInfo(ctx context.Context, q Querier) (*catalog.DatabaseInfo, error)
	Schemas(ctx context.Context, q Querier) ([]*catalog.Schema, error)
	Tables(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Table, error)
	// Columns returns columns with a provisional DataType holding the type
	// name, enum values and, for user-defined types, the type's schema.
	Columns(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Column, error)
	Routines(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Routine, error)

	// ColumnDataTypes lists user-defined data types of a schema.
	ColumnDataTypes(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.ColumnDataType, error)
	PrimaryKey(ctx context.Context, q Querier, table *catalog.Table) (*catalog.PrimaryKey, error)
	Indexes(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Index, error)
	ForeignKeys(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.ForeignKey, error)

	// TableRemarks and ViewDefinitions map table names to text.
	TableRemarks(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error)
	ViewDefinitions(ctx context.Context, q Querier, schema *catalog.Schema) (map[string]string, error)
	// ColumnRemarks maps column names to remarks.
	ColumnRemarks(ctx context.Context, q Querier, table *catalog.Table) (map[string]string, error)
	Triggers(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Trigger, error)
	// TableConstraints returns check and unique constraints. Primary and
	// foreign keys have their own stages.
	TableConstraints(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.TableConstraint, error)
	RoutineParameters(ctx context.Context, q Querier, routine *catalog.Routine) ([]*catalog.RoutineParameter, error)
	Sequences(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Sequence, error)
	Synonyms(ctx context.Context, q Querier, schema *catalog.Schema) ([]*catalog.Synonym, error)

	TablePrivileges(ctx context.Context, q Querier, table *catalog.Table) ([]*catalog.Privilege, error)
	// TableAttributes returns engine-specific facts such as row estimates.
	TableAttributes(ctx context.Context, q Querier, table *catalog.Table) (map[string]any, error)
}

// NewDialect returns the Dialect for the given source type.
func NewDialect(sourceType string) (Dialect, error) {
	switch sourceType {
	case "mysql":
		return &mysqlDialect{}, nil
	case "sqlite":
		return &sqliteDialect{}, nil
	case "postgres":
		return &postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q (must be mysql, sqlite or postgres)", sourceType)
	}
}

// collectStringRows collects single-column string results.
func collectStringRows(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// collectStringPairs collects two-column (key, value) results into a map.
// NULL values are skipped.
func collectStringPairs(ctx context.Context, q Querier, query string, args ...any) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		if v.Valid {
			out[k] = v.String
		}
	}
	return out, rows.Err()
}
