// Package schema resolves table metadata for the query layer and caches
// positive lookups.
package schema

import (
	"context"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
)

// Reader is the part of database.DB the catalog needs.
type Reader interface {
	// ListTables returns all user tables.
	ListTables(ctx context.Context) ([]string, error)

	// InspectTable returns column info for a table, or a NotFound error.
	InspectTable(ctx context.Context, table string) (*database.TableInfo, error)
}

// Catalog answers "what does this table look like" for the query layer.
// Only successful lookups are cached, so a table created after a miss is
// found on the next request.
type Catalog struct {
	db    Reader
	cache Cache
	log   *logger.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache sets the cache used for table lookups. The default caches nothing.
func WithCache(c Cache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

// WithLogger sets the logger used to report cache failures.
func WithLogger(l *logger.Logger) Option {
	return func(cat *Catalog) { cat.log = l }
}

// NewCatalog creates a Catalog over db.
func NewCatalog(db Reader, opts ...Option) *Catalog {
	c := &Catalog{db: db, cache: NopCache{}, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tables lists the store's tables. The listing is never cached.
func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	return c.db.ListTables(ctx)
}

// Table returns the metadata for name. An empty name is InvalidInput and an
// unknown table is NotFound.
func (c *Catalog) Table(ctx context.Context, name string) (*database.TableInfo, error) {
	if name == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}

	info, ok, err := c.cache.Get(ctx, name)
	if err != nil {
		c.log.WarnWith("schema cache read failed", err, map[string]interface{}{"table": name})
	} else if ok {
		return info, nil
	}

	info, err = c.db.InspectTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(info.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q has no columns", name)
	}

	if err := c.cache.Set(ctx, name, info); err != nil {
		c.log.WarnWith("schema cache write failed", err, map[string]interface{}{"table": name})
	}
	return info, nil
}

// Invalidate drops any cached metadata for name.
func (c *Catalog) Invalidate(ctx context.Context, name string) {
	if err := c.cache.Delete(ctx, name); err != nil {
		c.log.WarnWith("schema cache delete failed", err, map[string]interface{}{"table": name})
	}
}
