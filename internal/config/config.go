// Package config loads the data bank's settings from a YAML file, an
// optional .env file and DATABANK_* environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"io/fs"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/filestore"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
	"github.com/madison88admin/supplychain-app-sub002/internal/tabular"
)

// EnvPrefix prefixes every environment override: server.addr is read from
// DATABANK_SERVER_ADDR.
const EnvPrefix = "DATABANK"

type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Paging    Paging    `yaml:"paging"`
	Cache     Cache     `yaml:"cache"`
	Filestore Filestore `yaml:"filestore"`
	Log       Log       `yaml:"log"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Database),
		validation.Field(&c.Paging),
		validation.Field(&c.Cache),
		validation.Field(&c.Filestore),
		validation.Field(&c.Log),
	)
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// MaxUploadBytes caps upload request bodies.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.WriteTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.ShutdownTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.RateLimit, validation.Min(0.0)),
		validation.Field(&s.RateBurst, validation.Min(0), validation.Required.When(s.RateLimit > 0)),
		validation.Field(&s.MaxUploadBytes, validation.Min(int64(0))),
	)
}

type Database struct {
	Driver          database.Driver `yaml:"driver"`
	DSN             string          `yaml:"dsn"`
	MaxConns        int32           `yaml:"max_conns"`
	MinConns        int32           `yaml:"min_conns"`
	MaxConnLifetime time.Duration   `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration   `yaml:"max_conn_idle_time"`
	ConnectTimeout  time.Duration   `yaml:"connect_timeout"`
	QueryTimeout    time.Duration   `yaml:"query_timeout"`
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required,
			validation.In(database.DriverSQLite, database.DriverPostgres, database.DriverMySQL)),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxConns, validation.Min(int32(1))),
		validation.Field(&d.MinConns, validation.Min(int32(0)), validation.Max(d.MaxConns)),
		validation.Field(&d.ConnectTimeout, validation.Min(time.Duration(0))),
		validation.Field(&d.QueryTimeout, validation.Min(time.Duration(0))),
	)
}

// DBConfig converts the section into the driver configuration.
func (d Database) DBConfig() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		DSN:             d.DSN,
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		MaxConnLifetime: d.MaxConnLifetime,
		MaxConnIdleTime: d.MaxConnIdleTime,
		ConnectTimeout:  d.ConnectTimeout,
		QueryTimeout:    d.QueryTimeout,
	}
}

type Paging struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

func (p Paging) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxLimit, validation.Required, validation.Min(1)),
		validation.Field(&p.DefaultLimit, validation.Required, validation.Min(1), validation.Max(p.MaxLimit)),
	)
}

// Cache kinds.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Cache struct {
	Kind          string        `yaml:"kind"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
}

func (c Cache) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kind, validation.Required, validation.In(CacheNone, CacheMemory, CacheRedis)),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
		validation.Field(&c.RedisAddr, validation.Required.When(c.Kind == CacheRedis)),
		validation.Field(&c.RedisDB, validation.Min(0)),
	)
}

// Filestore configures the MinIO bucket exports go to. Exports are disabled
// while Endpoint is empty.
type Filestore struct {
	Endpoint   string        `yaml:"endpoint"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	UseSSL     bool          `yaml:"use_ssl"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// Enabled reports whether an object store is configured.
func (f Filestore) Enabled() bool { return f.Endpoint != "" }

func (f Filestore) Validate() error {
	on := f.Enabled()
	return validation.ValidateStruct(&f,
		validation.Field(&f.AccessKey, validation.Required.When(on)),
		validation.Field(&f.SecretKey, validation.Required.When(on)),
		validation.Field(&f.Bucket, validation.Required.When(on)),
		validation.Field(&f.PresignTTL, validation.Min(time.Duration(0)), validation.Max(7*24*time.Hour)),
	)
}

// StoreConfig converts the section into the filestore configuration.
func (f Filestore) StoreConfig() *filestore.Config {
	cfg := filestore.DefaultConfig(f.Endpoint, f.AccessKey, f.SecretKey)
	cfg.UseSSL = f.UseSSL
	cfg.Region = f.Region
	if f.Bucket != "" {
		cfg.DefaultBucket = f.Bucket
	}
	if f.PresignTTL > 0 {
		cfg.PresignTTL = f.PresignTTL
	}
	return cfg
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "warning", "error", "fatal", "panic")),
		validation.Field(&l.Format, validation.In("json", "console")),
	)
}

// LoggerConfig converts the section into the logger configuration.
func (l Log) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if l.Level != "" {
		cfg.Level = l.Level
	}
	if l.Format != "" {
		cfg.Format = l.Format
	}
	return cfg
}

// TabularOptions returns the query service limits.
func (c *Config) TabularOptions() tabular.Options {
	return tabular.Options{
		DefaultLimit: c.Paging.DefaultLimit,
		MaxLimit:     c.Paging.MaxLimit,
		QueryTimeout: c.Database.QueryTimeout,
	}
}

// Default returns the settings used when nothing is configured: a local
// SQLite file, an in-memory schema cache and no object store.
func Default() *Config {
	db := database.DefaultConfig("databank.sqlite")
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       50,
			RateBurst:       100,
			MaxUploadBytes:  32 << 20,
		},
		Database: Database{
			Driver:          db.Driver,
			DSN:             db.DSN,
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
			MaxConnIdleTime: db.MaxConnIdleTime,
			ConnectTimeout:  db.ConnectTimeout,
			QueryTimeout:    db.QueryTimeout,
		},
		Paging: Paging{
			DefaultLimit: tabular.DefaultLimit,
			MaxLimit:     tabular.MaxLimit,
		},
		Cache: Cache{
			Kind: CacheMemory,
			TTL:  time.Minute,
		},
		Filestore: Filestore{
			Bucket:     "databank",
			PresignTTL: 15 * time.Minute,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Options controls where Load looks.
type Options struct {
	// Path is the YAML file. A missing file is an error only when Required.
	Path     string
	Required bool
	// EnvFiles are loaded into the process environment before overrides are
	// read. Missing files are skipped. Defaults to ".env".
	EnvFiles []string
}

// Load builds the configuration from defaults, the YAML file and the
// environment, then validates it.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "could not load env file "+f, err)
		}
	}

	cfg, err := load(opts.Path, opts.Required)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid configuration", err)
	}
	return cfg, nil
}
