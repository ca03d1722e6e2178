package tabular

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
	"github.com/madison88admin/supplychain-app-sub002/internal/schema"
)

// Observer receives timings and row counts for store operations.
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveQuery(op string, d time.Duration, err error)
	AddRows(op string, n int)
}

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, time.Duration, error) {}
func (nopObserver) AddRows(string, int)                       {}

// Service answers table-browser requests against one store.
// It keeps no per-request state and is safe for concurrent use.
type Service struct {
	db      database.DB
	catalog *schema.Catalog
	opts    Options
	log     *logger.Logger
	obs     Observer
}

// Option configures a Service.
type Option func(*Service)

// WithOptions sets paging limits and the query timeout.
func WithOptions(o Options) Option {
	return func(s *Service) { s.opts = o }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithObserver reports store timings, typically to prometheus.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.obs = o }
}

// WithCatalog shares a (possibly cached) schema catalog.
func WithCatalog(c *schema.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// NewService creates a Service over db. Without WithCatalog every request
// introspects the table afresh.
func NewService(db database.DB, opts ...Option) *Service {
	s := &Service{
		db:   db,
		opts: DefaultOptions(),
		log:  logger.Nop(),
		obs:  nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.opts = s.opts.withDefaults()
	if s.catalog == nil {
		s.catalog = schema.NewCatalog(db, schema.WithLogger(s.log))
	}
	return s
}

// Options returns the limits the service applies to queries.
func (s *Service) Options() Options { return s.opts }

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

// ListTables returns the store's table names. It never fails: when the store
// cannot be listed the error is logged and an empty list returned.
func (s *Service) ListTables(ctx context.Context) []string {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	tables, err := s.catalog.Tables(ctx)
	s.obs.ObserveQuery("list_tables", time.Since(start), err)
	if err != nil {
		s.log.WarnWith("listing tables failed, returning empty list", err, nil)
		return []string{}
	}
	if tables == nil {
		return []string{}
	}
	return tables
}

// Description is a table's metadata as shown to a client.
type Description struct {
	*database.TableInfo
	TextColumns []string `json:"textColumns"`
	OrderBy     []string `json:"orderBy"`
}

// Describe returns the columns of table, which of them are searched and the
// order pages are returned in.
func (s *Service) Describe(ctx context.Context, table string) (*Description, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info, err := s.catalog.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return describe(info, s.db.Dialect()), nil
}

// DescribeAll describes every table, keyed by name, from one inspection of
// the whole schema.
func (s *Service) DescribeAll(ctx context.Context) (map[string]*Description, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	sc, err := s.db.InspectSchema(ctx)
	s.obs.ObserveQuery("inspect_schema", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	d := s.db.Dialect()
	out := make(map[string]*Description, len(sc.Tables))
	for name, info := range sc.Tables {
		out[name] = describe(info, d)
	}
	return out, nil
}

func describe(info *database.TableInfo, d database.Dialect) *Description {
	text := info.TextColumns(d)
	if text == nil {
		text = []string{}
	}
	return &Description{
		TableInfo:   info,
		TextColumns: text,
		OrderBy:     orderColumns(info, d),
	}
}

// Fetch returns one page of q.Table's rows matching q.Search, together with
// the number of matching rows. Page and limit are clamped first.
//
// The count and the page are built from the same predicate. Neither is
// returned without the other.
func (s *Service) Fetch(ctx context.Context, q Query) (*ResultPage, error) {
	q = q.Normalize(s.opts)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info, err := s.catalog.Table(ctx, q.Table)
	if err != nil {
		return nil, err
	}

	d := s.db.Dialect()
	pred := BuildPredicate(q.Search, info.TextColumns(d))

	b := database.Select(info.Name, d)
	pred.Apply(b, d)
	for _, col := range orderColumns(info, d) {
		b.OrderBy(col, database.Asc)
	}
	b.Limit(q.Limit).Offset(q.Offset())

	total, err := s.count(ctx, b)
	if err != nil {
		s.invalidate(ctx, q.Table)
		return nil, err
	}

	records := make([]database.Record, 0)
	if int64(q.Offset()) < total {
		records, err = s.fetch(ctx, b)
		if err != nil {
			s.invalidate(ctx, q.Table)
			return nil, err
		}
	}

	s.log.With().
		Str("table", info.Name).
		Int("page", q.Page).
		Int("limit", q.Limit).
		Int("terms", len(pred.Terms)).
		Int64("total", total).
		Logger().
		Debug("fetched page")

	return &ResultPage{
		Records:    records,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: totalPages(total, q.Limit),
	}, nil
}

func (s *Service) count(ctx context.Context, b *database.SelectBuilder) (int64, error) {
	sql, args, err := b.BuildCount()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	total, err := func() (int64, error) {
		row, err := s.db.QueryRow(ctx, sql, args...)
		if err != nil {
			return 0, err
		}
		return database.ScanCount(row)
	}()
	err = queryFailed(err, "count query failed")
	s.obs.ObserveQuery("count", time.Since(start), err)
	return total, err
}

func (s *Service) fetch(ctx context.Context, b *database.SelectBuilder) ([]database.Record, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := func() ([]database.Record, error) {
		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		return database.ScanRows(rows)
	}()
	err = queryFailed(err, "page query failed")
	s.obs.ObserveQuery("fetch", time.Since(start), err)
	if err == nil {
		s.obs.AddRows("fetch", len(records))
	}
	return records, err
}

// invalidate evicts cached metadata after a failed query so that a dropped
// or altered table is re-read on the next request.
func (s *Service) invalidate(ctx context.Context, table string) {
	s.catalog.Invalidate(context.WithoutCancel(ctx), table)
}

// queryFailed gives errors that carry no kind the QueryFailed kind.
func queryFailed(err error, msg string) error {
	if err == nil || errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// orderColumns picks a total order for paging: the primary key, else the
// dialect's implicit row key, else every column in declaration order.
func orderColumns(info *database.TableInfo, d database.Dialect) []string {
	if len(info.PrimaryKey) > 0 {
		return append([]string(nil), info.PrimaryKey...)
	}
	if key := d.ImplicitRowKey(); key != "" {
		return []string{key}
	}
	return info.ColumnNames()
}

// Upload inserts records into table in a single transaction. Every key must
// name a column of the table; values must be JSON scalars. Either every
// record is inserted or none is.
func (s *Service) Upload(ctx context.Context, table string, records []map[string]any) (int, error) {
	w, ok := s.db.(database.Writer)
	if !ok {
		return 0, errs.New(errs.ErrKindPermissionDenied, "store does not accept writes")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info, err := s.catalog.Table(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	d := s.db.Dialect()
	stmts := make([]insertStmt, len(records))
	for i, rec := range records {
		stmt, err := buildInsert(info, d, rec)
		if err != nil {
			return 0, errs.Newf(errs.ErrKindInvalidInput, "record %d: %s", i, errMessage(err))
		}
		stmts[i] = stmt
	}

	start := time.Now()
	err = w.WithTx(ctx, func(ctx context.Context, tx database.Execer) error {
		for _, st := range stmts {
			if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
				return err
			}
		}
		return nil
	})
	err = queryFailed(err, "upload failed")
	s.obs.ObserveQuery("upload", time.Since(start), err)
	if err != nil {
		s.invalidate(ctx, table)
		return 0, err
	}

	s.obs.AddRows("upload", len(stmts))
	s.log.With().Str("table", info.Name).Int("inserted", len(stmts)).Logger().Info("upload committed")
	return len(stmts), nil
}

type insertStmt struct {
	sql  string
	args []any
}

func buildInsert(info *database.TableInfo, d database.Dialect, rec map[string]any) (insertStmt, error) {
	cols := make([]*database.ColumnInfo, 0, len(rec))
	for k := range rec {
		col, ok := info.Column(k)
		if !ok {
			return insertStmt{}, errs.Newf(errs.ErrKindInvalidInput, "unknown column %q", k)
		}
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })

	b := database.Insert(info.Name, d)
	for _, col := range cols {
		v, err := scalar(rec[col.Name])
		if err != nil {
			return insertStmt{}, errs.Newf(errs.ErrKindInvalidInput, "column %q: %s", col.Name, errMessage(err))
		}
		b.Set(col.Name, v)
	}
	sql, args := b.Build()
	return insertStmt{sql: sql, args: args}, nil
}

// scalar converts a decoded JSON value into a bind parameter. Integral
// numbers become int64 so integer columns keep integer affinity.
func scalar(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "invalid number %q", x.String())
		}
		return f, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported value of type %T", v)
	}
}

func errMessage(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
