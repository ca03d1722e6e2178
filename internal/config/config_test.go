package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "databank.sqlite", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Paging.DefaultLimit)
	assert.Equal(t, 1000, cfg.Paging.MaxLimit)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, CacheMemory, cfg.Cache.Kind)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Filestore.Enabled())
}

func TestLoad_MissingOptionalFile(t *testing.T) {
	cfg, err := Load(Options{
		Path:      filepath.Join(t.TempDir(), "absent.yaml"),
		EnvFiles: []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingRequiredFile(t *testing.T) {
	_, err := Load(Options{
		Path:      filepath.Join(t.TempDir(), "absent.yaml"),
		Required:  true,
		EnvFiles: []string{},
	})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "databank.yaml", `
server:
  addr: ":9090"
  cors_origins: ["http://localhost:5173"]
database:
  driver: postgres
  dsn: postgres://bank@localhost/bank
  query_timeout: 5s
paging:
  max_limit: 200
cache:
  kind: redis
  redis_addr: localhost:6379
log:
  level: debug
`)

	setEnv(t, map[string]string{
		"DATABANK_SERVER_ADDR":         ":7070",
		"DATABANK_DATABASE_MAX_CONNS":  "3",
		"DATABANK_DATABASE_DRIVER":     " Postgres",
		"DATABANK_CACHE_TTL":           "90s",
		"DATABANK_SERVER_RATE_LIMIT":   "2.5",
		"DATABANK_FILESTORE_USE_SSL":   "true",
		"DATABANK_SERVER_CORS_ORIGINS": "https://a.example, https://b.example,",
	})

	cfg, err := Load(Options{Path: path, EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://bank@localhost/bank", cfg.Database.DSN)
	assert.Equal(t, int32(3), cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 200, cfg.Paging.MaxLimit)
	assert.Equal(t, 10, cfg.Paging.DefaultLimit, "unset keys keep defaults")
	assert.Equal(t, CacheRedis, cfg.Cache.Kind)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.True(t, cfg.Filestore.UseSSL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")

	opts := cfg.TabularOptions()
	assert.Equal(t, 200, opts.MaxLimit)
	assert.Equal(t, 5*time.Second, opts.QueryTimeout)
}

func TestLoad_EnvFile(t *testing.T) {
	key := "DATABANK_LOG_FORMAT"
	_, had := os.LookupEnv(key)
	require.False(t, had, "test expects %s to be unset", key)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envFile := writeFile(t, ".env", key+"=console\n")

	cfg, err := Load(Options{EnvFiles: []string{envFile}})
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [unterminated")

	_, err := Load(Options{Path: path, EnvFiles: []string{}})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_BadEnvValue(t *testing.T) {
	setEnv(t, map[string]string{"DATABANK_CACHE_TTL": "soon"})

	_, err := Load(Options{EnvFiles: []string{}})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_EnvWithoutFile(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABANK_PAGING_DEFAULT_LIMIT": "25",
		"DATABANK_LOG_LEVEL":            "warn",
	})

	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Paging.DefaultLimit)
	assert.Equal(t, 1000, cfg.Paging.MaxLimit)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, false},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, false},
		{"default above max", func(c *Config) { c.Paging.DefaultLimit = 2000 }, false},
		{"zero max", func(c *Config) { c.Paging.MaxLimit = 0 }, false},
		{"redis without addr", func(c *Config) { c.Cache.Kind = CacheRedis }, false},
		{"unknown cache", func(c *Config) { c.Cache.Kind = "disk" }, false},
		{"no cache", func(c *Config) { c.Cache.Kind = CacheNone }, true},
		{"filestore without keys", func(c *Config) { c.Filestore.Endpoint = "localhost:9000" }, false},
		{"filestore complete", func(c *Config) {
			c.Filestore.Endpoint = "localhost:9000"
			c.Filestore.AccessKey = "minio"
			c.Filestore.SecretKey = "minio123"
		}, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"rate limit without burst", func(c *Config) { c.Server.RateBurst = 0 }, false},
		{"rate limit off", func(c *Config) { c.Server.RateLimit, c.Server.RateBurst = 0, 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSectionConversions(t *testing.T) {
	cfg := Default()
	cfg.Filestore.Endpoint = "minio:9000"
	cfg.Filestore.AccessKey = "k"
	cfg.Filestore.SecretKey = "s"
	cfg.Filestore.UseSSL = true

	fs := cfg.Filestore.StoreConfig()
	assert.Equal(t, "minio:9000", fs.Endpoint)
	assert.Equal(t, "databank", fs.DefaultBucket)
	assert.True(t, fs.UseSSL)
	assert.Equal(t, 15*time.Minute, fs.PresignTTL)

	db := cfg.Database.DBConfig()
	assert.Equal(t, database.DefaultConfig("databank.sqlite"), db)

	lc := cfg.Log.LoggerConfig()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "json", lc.Format)
}
