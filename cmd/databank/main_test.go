package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/database/sqlite"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedStore creates a SQLite store with a Products table and points the
// CLI at it through the environment.
func seedStore(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bank.sqlite")
	db, err := sqlite.New(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)
	err = db.WithTx(context.Background(), func(ctx context.Context, tx database.Execer) error {
		if _, err := tx.Exec(ctx, `CREATE TABLE "Products" (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO "Products" (id, name) VALUES (1, 'Red Shirt'), (2, 'Blue Hat'), (3, 'Red Cap')`)
		return err
	})
	require.NoError(t, err)
	db.Close()

	t.Setenv("DATABANK_DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABANK_DATABASE_DSN", path)
	t.Setenv("DATABANK_LOG_LEVEL", "error")
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, stderr bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTablesCmd(t *testing.T) {
	seedStore(t)

	out, err := run(t, "tables")
	require.NoError(t, err)
	assert.Equal(t, "Products\n", out)
}

func TestTablesCmd_Describe(t *testing.T) {
	seedStore(t)

	out, err := run(t, "tables", "--describe")
	require.NoError(t, err)

	var all map[string]struct {
		Name        string   `json:"name"`
		TextColumns []string `json:"textColumns"`
		OrderBy     []string `json:"orderBy"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	require.Contains(t, all, "Products")
	assert.Equal(t, "Products", all["Products"].Name)
	assert.Equal(t, []string{"name"}, all["Products"].TextColumns)
	assert.Equal(t, []string{"id"}, all["Products"].OrderBy)
}

func TestQueryCmd(t *testing.T) {
	seedStore(t)

	out, err := run(t, "query", "Products", "--search", "red", "--limit", "1", "--page", "2")
	require.NoError(t, err)

	var page struct {
		Records    []map[string]any `json:"records"`
		Total      int64            `json:"total"`
		Page       int              `json:"page"`
		Limit      int              `json:"limit"`
		TotalPages int64            `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, int64(2), page.TotalPages)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Red Cap", page.Records[0]["name"])
}

func TestQueryCmd_UnknownTable(t *testing.T) {
	seedStore(t)

	_, err := run(t, "query", "Nope")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestUploadCmd(t *testing.T) {
	seedStore(t)

	dir := t.TempDir()
	arrayFile := filepath.Join(dir, "array.json")
	require.NoError(t, os.WriteFile(arrayFile, []byte(`[{"name":"Red Scarf"}]`), 0o600))
	objectFile := filepath.Join(dir, "object.json")
	require.NoError(t, os.WriteFile(objectFile, []byte(`{"records":[{"id":9,"name":"Green Sock"}]}`), 0o600))

	out, err := run(t, "upload", "Products", arrayFile)
	require.NoError(t, err)
	assert.Equal(t, "inserted 1 records into Products\n", out)

	_, err = run(t, "upload", "Products", objectFile)
	require.NoError(t, err)

	out, err = run(t, "query", "Products", "--limit", "100")
	require.NoError(t, err)
	assert.Contains(t, out, `"Red Scarf"`)
	assert.Contains(t, out, `"Green Sock"`)
}

func TestUploadCmd_BadFile(t *testing.T) {
	seedStore(t)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"records": nope}`), 0o600))

	_, err := run(t, "upload", "Products", bad)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = run(t, "upload", "Products", filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestExportCmd_NoObjectStore(t *testing.T) {
	seedStore(t)
	t.Setenv("DATABANK_FILESTORE_ENDPOINT", "")

	_, err := run(t, "export", "Products")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no object store configured")
}

func TestConfigFlag(t *testing.T) {
	seedStore(t)

	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "tables")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	cfgFile := filepath.Join(t.TempDir(), "databank.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("paging:\n  default_limit: 2\n"), 0o600))
	out, err := run(t, "--config", cfgFile, "query", "Products", "--limit", "0")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, `"name"`))
}

func TestArgsValidation(t *testing.T) {
	_, err := run(t, "query")
	assert.Error(t, err)

	_, err = run(t, "upload", "Products")
	assert.Error(t, err)

	_, err = run(t, "bogus")
	assert.Error(t, err)
}

func TestReadRecords(t *testing.T) {
	p := filepath.Join(t.TempDir(), "r.json")
	require.NoError(t, os.WriteFile(p, []byte("  \n[{\"qty\": 3}]"), 0o600))

	records, err := readRecords(p)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("3"), records[0]["qty"])
}
