// Package sqlite implements database.DB on a single SQLite file using
// mattn/go-sqlite3. Reads and writes go through separate pools: the write
// pool holds one connection and takes an immediate lock on BEGIN, the read
// pool is sized from Config.MaxConns.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/mattn/go-sqlite3"
)

// DSN parameters applied to both pools.
const (
	defaultBusyTimeout = "5000" // milliseconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// Driver is a SQLite implementation of database.DB and database.Writer.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	read  *sql.DB
	write *sql.DB
}

var (
	_ database.DB     = (*Driver)(nil)
	_ database.Writer = (*Driver)(nil)
)

// New opens the read and write pools for the SQLite file named by cfg.DSN and
// pings both before returning. A file that does not exist is created.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "sqlite path must not be empty")
	}

	write, err := open(ctx, cfg, "write")
	if err != nil {
		return nil, err
	}

	read, err := open(ctx, cfg, "read")
	if err != nil {
		_ = write.Close()
		return nil, err
	}

	return &Driver{read: read, write: write}, nil
}

func open(ctx context.Context, cfg *database.Config, mode string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", buildDSN(cfg.DSN, mode))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "invalid sqlite DSN", err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		maxOpen := int(cfg.MaxConns)
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	lifetime := cfg.MaxConnLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, mapError(err, fmt.Sprintf("failed to open %s pool", mode))
	}
	return db, nil
}

// buildDSN appends the pool parameters to path, keeping any the caller set.
func buildDSN(path, mode string) string {
	base, rawQuery, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}

	setDefault := func(k, v string) {
		if params.Get(k) == "" {
			params.Set(k, v)
		}
	}
	setDefault("_journal_mode", defaultJournalMode)
	setDefault("_busy_timeout", defaultBusyTimeout)
	setDefault("_synchronous", defaultSynchronous)
	setDefault("_foreign_keys", "on")

	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	return base + "?" + params.Encode()
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.read.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.read.Close()
	_ = d.write.Close()
}

func (d *Driver) Dialect() database.Dialect { return database.DialectSQLite }

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &sqliteRows{rows: rows}, nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) (database.Row, error) {
	row := d.read.QueryRowContext(ctx, query, args...)
	return &sqliteRow{row: row}, nil
}

// WithTx runs fn inside a transaction on the write pool. It commits when fn
// returns nil and rolls back otherwise.
func (d *Driver) WithTx(ctx context.Context, fn func(ctx context.Context, tx database.Execer) error) (err error) {
	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	if cerr := tx.Commit(); cerr != nil {
		err = mapError(cerr, "failed to commit transaction")
		return err
	}
	return nil
}

// ListTables returns user tables in name order. SQLite's own bookkeeping
// tables are excluded.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`

	rows, err := d.read.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (d *Driver) InspectSchema(ctx context.Context) (*database.Schema, error) {
	tables, err := d.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	schema := &database.Schema{
		Tables: make(map[string]*database.TableInfo, len(tables)),
	}

	for _, tableName := range tables {
		info, err := d.inspectTable(ctx, tableName)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %q: %w", tableName, err)
		}
		schema.Tables[tableName] = info
	}

	return schema, nil
}

// InspectTable resolves table the way SQLite does (ASCII case-insensitive,
// exact spelling preferred) and returns its columns and keys.
func (d *Driver) InspectTable(ctx context.Context, table string) (*database.TableInfo, error) {
	name, err := d.canonicalName(ctx, table)
	if err != nil {
		return nil, err
	}
	return d.inspectTable(ctx, name)
}

func (d *Driver) canonicalName(ctx context.Context, table string) (string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		  AND name = ? COLLATE NOCASE
		ORDER BY name = ? DESC, name
		LIMIT 1`

	var name string
	if err := d.read.QueryRowContext(ctx, q, table, table).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.Newf(errs.ErrKindNotFound, "table %q not found", table)
		}
		return "", mapError(err, "failed to resolve table name")
	}
	return name, nil
}

func (d *Driver) inspectTable(ctx context.Context, table string) (*database.TableInfo, error) {
	columns, pks, err := d.fetchColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	uniqueCols, err := d.fetchUniqueColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	fks, err := d.fetchForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	uq := make(map[string]bool, len(uniqueCols))
	for _, c := range uniqueCols {
		uq[c] = true
	}
	for _, col := range columns {
		col.IsUnique = uq[col.Name]
	}

	return &database.TableInfo{
		Name:        table,
		Columns:     columns,
		PrimaryKey:  pks,
		ForeignKeys: fks,
	}, nil
}

// fetchColumns returns columns in declaration order and the primary key
// columns in key order.
func (d *Driver) fetchColumns(ctx context.Context, table string) ([]*database.ColumnInfo, []string, error) {
	const q = `
		SELECT cid, name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	rows, err := d.read.QueryContext(ctx, q, table)
	if err != nil {
		return nil, nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var (
		cols  []*database.ColumnInfo
		pkPos = map[int]string{}
	)
	for rows.Next() {
		var (
			c       database.ColumnInfo
			cid     int
			notNull bool
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.DataType, &notNull, &c.Default, &pk); err != nil {
			return nil, nil, mapError(err, "failed to scan column info")
		}
		c.Position = cid + 1
		c.Nullable = !notNull
		if pk > 0 {
			c.IsPrimary = true
			pkPos[pk] = c.Name
		}
		cols = append(cols, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, mapError(err, "error iterating columns")
	}

	pks := make([]string, 0, len(pkPos))
	for i := 1; i <= len(cols); i++ {
		if name, ok := pkPos[i]; ok {
			pks = append(pks, name)
		}
	}
	return cols, pks, nil
}

// fetchUniqueColumns returns columns that carry a single-column UNIQUE
// constraint.
func (d *Driver) fetchUniqueColumns(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT MIN(ii.name)
		FROM pragma_index_list(?) AS il
		JOIN pragma_index_info(il.name) AS ii
		WHERE il."unique" = 1
		  AND il.origin   = 'u'
		GROUP BY il.name
		HAVING COUNT(*) = 1`

	rows, err := d.read.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch unique columns")
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, mapError(err, "failed to scan unique column")
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating unique columns")
	}
	return list, nil
}

func (d *Driver) fetchForeignKeys(ctx context.Context, table string) ([]*database.ForeignKey, error) {
	const q = `
		SELECT "from", "table", "to"
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	rows, err := d.read.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var fks []*database.ForeignKey
	for rows.Next() {
		var (
			fk = &database.ForeignKey{}
			to sql.NullString
		)
		if err := rows.Scan(&fk.Column, &fk.RefTable, &to); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		// A NULL target means the referenced table's primary key.
		fk.RefColumn = to.String
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating foreign keys")
	}
	return fks, nil
}

// --- sql.DB type wrappers ---

type sqliteRows struct {
	rows *sql.Rows
}

func (r *sqliteRows) Next() bool                 { return r.rows.Next() }
func (r *sqliteRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqliteRows) Close()                     { _ = r.rows.Close() }

func (r *sqliteRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

func (r *sqliteRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "row iteration failed")
	}
	return nil
}

type sqliteRow struct {
	row *sql.Row
}

func (r *sqliteRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err, "failed to read affected rows")
	}
	return n, nil
}

// --- error mapping ---

// mapError translates go-sqlite3 errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return errs.Wrap(classifyCode(sqliteErr), fmt.Sprintf("%s: %s", msg, sqliteErr.Error()), err)
	}

	return errs.Wrap(errs.ErrKindStoreUnavailable, msg, err)
}

// classifyCode maps SQLite result codes to ErrKind.
func classifyCode(e sqlite3.Error) errs.ErrKind {
	switch e.Code {
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrIoErr, sqlite3.ErrFull:
		return errs.ErrKindStoreUnavailable
	case sqlite3.ErrPerm, sqlite3.ErrAuth, sqlite3.ErrReadonly:
		return errs.ErrKindPermissionDenied
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrInterrupt:
		return errs.ErrKindTimeout
	case sqlite3.ErrError:
		if strings.HasPrefix(e.Error(), "no such table") {
			return errs.ErrKindNotFound
		}
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
