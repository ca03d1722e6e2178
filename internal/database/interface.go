package database

import "context"

// DB is the central contract for all database operations.
// All layers above this package talk only to this interface;
// they never import the sqlite, postgres or mysql packages directly.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Dialect reports the SQL flavour the driver speaks.
	Dialect() Dialect

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) (Row, error)

	// ListTables returns all user-defined table names.
	ListTables(ctx context.Context) ([]string, error)

	// InspectTable returns the columns and keys of one table.
	// It returns an errs.ErrKindNotFound error when the table does not exist.
	InspectTable(ctx context.Context, table string) (*TableInfo, error)

	// InspectSchema inspects every table ListTables returns.
	InspectSchema(ctx context.Context) (*Schema, error)
}

// Writer is implemented by drivers that accept writes.
// The function runs inside a single transaction: it commits when fn returns
// nil and rolls back on any error or panic.
type Writer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Execer) error) error
}

// Execer executes statements that do not return rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}
