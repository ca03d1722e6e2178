// Package export writes the rows matching a table search to object storage
// as newline-delimited JSON and hands back a download link.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/filestore"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
	"github.com/madison88admin/supplychain-app-sub002/internal/tabular"
)

const (
	contentType = "application/x-ndjson"
	keyPrefix   = "exports"
)

// Fetcher is the part of tabular.Service an export reads from.
type Fetcher interface {
	Fetch(ctx context.Context, q tabular.Query) (*tabular.ResultPage, error)
}

// Result describes a finished export.
type Result struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Rows   int64  `json:"rows"`
	URL    string `json:"url"`
}

// Exporter pages through a table and streams the rows into the store.
type Exporter struct {
	src        Fetcher
	store      filestore.Store
	bucket     string
	presignTTL time.Duration
	pageSize   int
	now        func() time.Time
	log        *logger.Logger
}

// New creates an Exporter writing to bucket. pageSize is the number of rows
// read per round trip; values below 1 use tabular.MaxLimit.
func New(src Fetcher, store filestore.Store, bucket string, presignTTL time.Duration, pageSize int, l *logger.Logger) *Exporter {
	if pageSize < 1 {
		pageSize = tabular.MaxLimit
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Exporter{
		src:        src,
		store:      store,
		bucket:     bucket,
		presignTTL: presignTTL,
		pageSize:   pageSize,
		now:        time.Now,
		log:        l,
	}
}

// Export writes every row of table that matches search to
// exports/<table>/<timestamp>.ndjson and returns a presigned URL for it.
// The first page is read before anything is written, so an unknown table
// leaves no object behind.
func (e *Exporter) Export(ctx context.Context, table, search string) (*Result, error) {
	first, err := e.src.Fetch(ctx, tabular.Query{Table: table, Page: 1, Limit: e.pageSize, Search: search})
	if err != nil {
		return nil, err
	}

	if err := e.store.EnsureBucket(ctx, e.bucket); err != nil {
		return nil, err
	}

	key := e.objectKey(table)
	pr, pw := io.Pipe()

	type written struct {
		rows int64
		err  error
	}
	done := make(chan written, 1)
	go func() {
		n, werr := e.writeAll(ctx, pw, table, search, first)
		_ = pw.CloseWithError(werr)
		done <- written{n, werr}
	}()

	_, err = e.store.PutObject(ctx, e.bucket, key, pr, -1, contentType)
	if err != nil {
		// Unblock the writer if the store gave up first.
		_ = pr.CloseWithError(err)
	}
	w := <-done
	if w.err != nil {
		return nil, w.err
	}
	if err != nil {
		return nil, err
	}
	rows := w.rows

	url, err := e.store.PresignGetURL(ctx, e.bucket, key, e.presignTTL)
	if err != nil {
		return nil, err
	}

	e.log.With().
		Str("table", table).
		Str("key", key).
		Int64("rows", rows).
		Logger().
		Info("export written")

	return &Result{Bucket: e.bucket, Key: key, Rows: rows, URL: url}, nil
}

// writeAll encodes first and every following page to w, one JSON object per
// line, and returns the number of rows written.
func (e *Exporter) writeAll(ctx context.Context, w io.Writer, table, search string, first *tabular.ResultPage) (int64, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	var n int64
	page := first
	for p := 1; ; p++ {
		if p > 1 {
			var err error
			page, err = e.src.Fetch(ctx, tabular.Query{Table: table, Page: p, Limit: e.pageSize, Search: search})
			if err != nil {
				return n, err
			}
		}
		for _, rec := range page.Records {
			if err := enc.Encode(rec); err != nil {
				return n, errs.Wrap(errs.ErrKindUnknown, "encode row", err)
			}
			n++
		}
		if int64(p) >= page.TotalPages || len(page.Records) == 0 {
			break
		}
	}
	return n, bw.Flush()
}

// List returns the exports stored for table, oldest first.
func (e *Exporter) List(ctx context.Context, table string) ([]filestore.ObjectInfo, error) {
	objs, err := e.store.ListObjects(ctx, e.bucket, filestore.ListOptions{
		Prefix:    e.tablePrefix(table),
		Recursive: true,
	})
	if err != nil {
		return nil, err
	}
	if objs == nil {
		objs = []filestore.ObjectInfo{}
	}
	return objs, nil
}

// Open streams one export of table. name is the object's base name as
// returned in List.
func (e *Exporter) Open(ctx context.Context, table, name string) (filestore.Object, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "invalid export name %q", name)
	}
	return e.store.GetObject(ctx, e.bucket, e.tablePrefix(table)+name)
}

func (e *Exporter) tablePrefix(table string) string {
	return path.Join(keyPrefix, safeSegment(table)) + "/"
}

func (e *Exporter) objectKey(table string) string {
	ts := e.now().UTC().Format("20060102T150405.000000000Z")
	return e.tablePrefix(table) + fmt.Sprintf("%s.ndjson", ts)
}

// safeSegment keeps a table name usable as one object key segment.
func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
