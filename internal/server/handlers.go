package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/export"
	"github.com/madison88admin/supplychain-app-sub002/internal/filestore"
	"github.com/madison88admin/supplychain-app-sub002/internal/tabular"
)

// Tables is the query service the API fronts. *tabular.Service satisfies it.
type Tables interface {
	ListTables(ctx context.Context) []string
	Describe(ctx context.Context, table string) (*tabular.Description, error)
	Fetch(ctx context.Context, q tabular.Query) (*tabular.ResultPage, error)
	Upload(ctx context.Context, table string, records []map[string]any) (int, error)
}

// Exports writes and serves table exports. *export.Exporter satisfies it.
type Exports interface {
	Export(ctx context.Context, table, search string) (*export.Result, error)
	List(ctx context.Context, table string) ([]filestore.ObjectInfo, error)
	Open(ctx context.Context, table, name string) (filestore.Object, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// tableParam returns the unescaped {tableName} segment. chi matches on
// RawPath when the request has one, and on the already decoded Path
// otherwise.
func tableParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "tableName")
	if r.URL.RawPath != "" {
		var err error
		if name, err = url.PathUnescape(name); err != nil {
			return "", errs.Newf(errs.ErrKindInvalidInput, "invalid table name %q", chi.URLParam(r, "tableName"))
		}
	}
	if name == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "invalid table name")
	}
	return name, nil
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tables.ListTables(r.Context()))
}

func (s *Server) describeTable(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	desc, err := s.tables.Describe(r.Context(), table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// fetchData serves GET /api/data/{tableName}?page=&limit=&search=.
// Unparseable page or limit values fall back to the defaults.
func (s *Server) fetchData(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := s.tables.Fetch(r.Context(), tabular.Query{
		Table:  table,
		Page:   tabular.ParseInt(q.Get("page")),
		Limit:  tabular.ParseInt(q.Get("limit")),
		Search: q.Get("search"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type uploadRequest struct {
	Records []map[string]any `json:"records"`
}

type uploadResponse struct {
	Inserted int `json:"inserted"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := io.Reader(r.Body)
	if s.cfg.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var req uploadRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, errs.Newf(errs.ErrKindInvalidInput, "request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "request body must be {\"records\": [...]}", err))
		return
	}

	n, err := s.tables.Upload(r.Context(), table, req.Records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Inserted: n})
}

func (s *Server) exportsDisabled(w http.ResponseWriter, r *http.Request) bool {
	if s.exports != nil {
		return false
	}
	writeError(w, r, errs.New(errs.ErrKindStoreUnavailable, "exports are not configured"))
	return true
}

func (s *Server) createExport(w http.ResponseWriter, r *http.Request) {
	if s.exportsDisabled(w, r) {
		return
	}
	table, err := tableParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.exports.Export(r.Context(), table, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type exportEntry struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	if s.exportsDisabled(w, r) {
		return
	}
	table, err := tableParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	objs, err := s.exports.List(r.Context(), table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]exportEntry, 0, len(objs))
	for _, o := range objs {
		if o.IsDir {
			continue
		}
		out = append(out, exportEntry{Name: path.Base(o.Key), Size: o.Size, LastModified: o.LastModified})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	if s.exportsDisabled(w, r) {
		return
	}
	table, err := tableParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	obj, err := s.exports.Open(r.Context(), table, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer obj.Close()

	ct := "application/x-ndjson"
	if info := obj.Info(); info != nil {
		if info.ContentType != "" {
			ct = info.ContentType
		}
		if info.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+path.Base(chi.URLParam(r, "name"))+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, obj)
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.log.WarnWith("health check failed", err, nil)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
