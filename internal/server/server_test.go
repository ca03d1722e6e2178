package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/config"
	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/database/sqlite"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/export"
	"github.com/madison88admin/supplychain-app-sub002/internal/filestore"
	"github.com/madison88admin/supplychain-app-sub002/internal/metrics"
	"github.com/madison88admin/supplychain-app-sub002/internal/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlite.Driver {
	t.Helper()

	db, err := sqlite.New(context.Background(), database.DefaultConfig(filepath.Join(t.TempDir(), "bank.sqlite")))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	err = db.WithTx(context.Background(), func(ctx context.Context, tx database.Execer) error {
		for _, s := range []string{
			`CREATE TABLE "Products" (id INTEGER PRIMARY KEY, name TEXT, "desc" TEXT, price REAL)`,
			`INSERT INTO "Products" (id, name, "desc", price) VALUES
				(1, 'Red Shirt', 'cotton', 12.5),
				(2, 'Blue Hat', 'wool red trim', 8),
				(3, 'Green Bag', 'leather', 40)`,
			`CREATE TABLE "Order Lines" (po TEXT, line INTEGER, PRIMARY KEY (po, line))`,
		} {
			if _, err := tx.Exec(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return db
}

func testConfig() config.Server {
	cfg := config.Default().Server
	cfg.RateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *sqlite.Driver) {
	t.Helper()
	db := openStore(t)
	return New(testConfig(), tabular.NewService(db), opts...), db
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type pageBody struct {
	Records    []map[string]any `json:"records"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int64            `json:"totalPages"`
}

func TestListTables(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/api/tables", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"Order Lines", "Products"}, decode[[]string](t, rec))
}

func TestListTables_StoreDownIsEmpty(t *testing.T) {
	s, db := newTestServer(t)
	db.Close()

	rec := do(t, s.Handler(), http.MethodGet, "/api/tables", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestFetchData_Search(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/api/data/Products?page=1&limit=10&search=red", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[pageBody](t, rec)
	assert.Equal(t, int64(2), body.Total)
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 10, body.Limit)
	require.Len(t, body.Records, 2)
	assert.Equal(t, "Red Shirt", body.Records[0]["name"])
	assert.Equal(t, "Blue Hat", body.Records[1]["name"])
}

func TestFetchData_BadParamsAreClamped(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/api/data/Products?page=abc&limit=-4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[pageBody](t, rec)
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, tabular.DefaultLimit, body.Limit)
	assert.Equal(t, int64(3), body.Total)
	assert.Len(t, body.Records, 3)
}

func TestFetchData_EscapedTableName(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/api/data/Order%20Lines", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(0), decode[pageBody](t, rec).Total)
}

func TestFetchData_TableNamesNeedingEscapes(t *testing.T) {
	db, err := sqlite.New(context.Background(), database.DefaultConfig(filepath.Join(t.TempDir(), "bank.sqlite")))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	err = db.WithTx(context.Background(), func(ctx context.Context, tx database.Execer) error {
		for _, stmt := range []string{
			`CREATE TABLE "50%off" (id INTEGER PRIMARY KEY, name TEXT)`,
			`INSERT INTO "50%off" (id, name) VALUES (1, 'Red Shirt')`,
			`CREATE TABLE "in/out" (id INTEGER PRIMARY KEY, name TEXT)`,
			`INSERT INTO "in/out" (id, name) VALUES (1, 'Blue Hat'), (2, 'Green Bag')`,
		} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	h := New(testConfig(), tabular.NewService(db)).Handler()

	tests := []struct {
		target string
		total  int64
	}{
		{"/api/data/50%25off", 1},
		{"/api/data/in%2Fout", 2},
		{"/api/data/in%2fout?search=hat", 1},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.total, decode[pageBody](t, rec).Total)
		})
	}
}

func TestFetchData_UnknownTable(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/api/data/Nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "not_found", body.Error)
	assert.NotEmpty(t, body.Message)
}

func TestFetchData_StoreDown(t *testing.T) {
	s, db := newTestServer(t)
	db.Close()

	rec := do(t, s.Handler(), http.MethodGet, "/api/data/Products", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDescribeTable(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/api/tables/Products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Name        string   `json:"name"`
		TextColumns []string `json:"textColumns"`
		OrderBy     []string `json:"orderBy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Products", body.Name)
	assert.Equal(t, []string{"name", "desc"}, body.TextColumns)
	assert.Equal(t, []string{"id"}, body.OrderBy)
}

func TestUpload(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/upload/Products",
		strings.NewReader(`{"records":[{"id":10,"name":"Red Scarf","price":9.99},{"name":"Plain Tee"}]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"inserted":2}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/data/Products?search=red", nil)
	assert.Equal(t, int64(3), decode[pageBody](t, rec).Total)
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		status int
		kind   string
	}{
		{"not json", "/api/upload/Products", `records=1`, http.StatusBadRequest, "invalid_input"},
		{"unknown column", "/api/upload/Products", `{"records":[{"colour":"red"}]}`, http.StatusBadRequest, "invalid_input"},
		{"nested value", "/api/upload/Products", `{"records":[{"name":{"a":1}}]}`, http.StatusBadRequest, "invalid_input"},
		{"unknown table", "/api/upload/Nope", `{"records":[]}`, http.StatusNotFound, "not_found"},
		{"duplicate key", "/api/upload/Products", `{"records":[{"id":1,"name":"dup"}]}`, http.StatusInternalServerError, "query_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			rec := do(t, s.Handler(), http.MethodPost, tt.target, strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestUpload_BodyLimit(t *testing.T) {
	db := openStore(t)
	cfg := testConfig()
	cfg.MaxUploadBytes = 16
	s := New(cfg, tabular.NewService(db))

	rec := do(t, s.Handler(), http.MethodPost, "/api/upload/Products",
		strings.NewReader(`{"records":[{"name":"a long enough product name"}]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "exceeds 16 bytes")
}

type fakeExports struct {
	search string
	err    error
}

func (f *fakeExports) Export(_ context.Context, table, search string) (*export.Result, error) {
	f.search = search
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Bucket: "bank", Key: "exports/" + table + "/x.ndjson", Rows: 2, URL: "http://files.local/x"}, nil
}

func (f *fakeExports) List(_ context.Context, table string) ([]filestore.ObjectInfo, error) {
	return []filestore.ObjectInfo{
		{Key: "exports/" + table + "/", IsDir: true},
		{Key: "exports/" + table + "/x.ndjson", Size: 12, LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}, nil
}

type byteObject struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o byteObject) Close() error                { return nil }
func (o byteObject) Info() *filestore.ObjectInfo { return o.info }

func (f *fakeExports) Open(_ context.Context, _, name string) (filestore.Object, error) {
	if name != "x.ndjson" {
		return nil, errs.New(errs.ErrKindNotFound, "no such export")
	}
	body := []byte(`{"id":1}` + "\n")
	return byteObject{bytes.NewReader(body), &filestore.ObjectInfo{Size: int64(len(body))}}, nil
}

func TestExport_Disabled(t *testing.T) {
	s, _ := newTestServer(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/api/export/Products"},
		{http.MethodGet, "/api/exports/Products"},
		{http.MethodGet, "/api/exports/Products/x.ndjson"},
	} {
		rec := do(t, s.Handler(), tc.method, tc.target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.target)
		assert.Equal(t, "store_unavailable", decode[ErrorResponse](t, rec).Error)
	}
}

func TestExport(t *testing.T) {
	fe := &fakeExports{}
	s, _ := newTestServer(t, WithExports(fe))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/export/Products?search=red+shirt", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "red shirt", fe.search)
	res := decode[export.Result](t, rec)
	assert.Equal(t, "exports/Products/x.ndjson", res.Key)
	assert.Equal(t, "http://files.local/x", res.URL)

	rec = do(t, h, http.MethodGet, "/api/exports/Products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"x.ndjson","size":12,"lastModified":"2026-01-02T03:04:05Z"}]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/exports/Products/x.ndjson", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
	assert.Equal(t, `{"id":1}`+"\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/exports/Products/y.ndjson", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	fe.err = errs.New(errs.ErrKindStoreUnavailable, "minio down")
	rec = do(t, h, http.MethodPost, "/api/export/Products", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, WithHealth(pinger{}))
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s, _ = newTestServer(t, WithHealth(pinger{errors.New("gone")}))
	rec = do(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, WithMetrics(metrics.New()))
	h := s.Handler()

	for i := 0; i < 3; i++ {
		do(t, h, http.MethodGet, fmt.Sprintf("/api/data/Products?page=%d", i+1), nil)
	}

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`databank_http_requests_total{method="GET",route="/api/data/{tableName}",status="200"} 3`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind errs.ErrKind
		want int
	}{
		{errs.ErrKindNotFound, http.StatusNotFound},
		{errs.ErrKindInvalidInput, http.StatusBadRequest},
		{errs.ErrKindPermissionDenied, http.StatusForbidden},
		{errs.ErrKindStoreUnavailable, http.StatusServiceUnavailable},
		{errs.ErrKindTimeout, http.StatusServiceUnavailable},
		{errs.ErrKindQueryFailed, http.StatusInternalServerError},
		{errs.ErrKindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.kind), tt.kind.String())
	}
}

func TestWriteError_HidesUntypedErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	writeError(rec, req, errors.New("pq: password authentication failed for user bank"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrorResponse{Error: "unknown", Message: "internal error"}, decode[ErrorResponse](t, rec))
}
