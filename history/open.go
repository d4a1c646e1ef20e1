package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultPingTimeout = 5 * time.Second
)

// Config describes the history database. It satisfies the configuration
// interface expected by go-persistence-bun.
type Config struct {
	Driver      string        `koanf:"driver" yaml:"driver" json:"driver"`
	DSN         string        `koanf:"dsn" yaml:"dsn" json:"dsn"`
	Debug       bool          `koanf:"debug" yaml:"debug" json:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" yaml:"ping_timeout" json:"ping_timeout"`
	TTL         time.Duration `koanf:"ttl" yaml:"ttl" json:"ttl"`
	RowCap      int           `koanf:"row_cap" yaml:"row_cap" json:"row_cap"`
}

func (c Config) GetDebug() bool    { return c.Debug }
func (c Config) GetDriver() string { return c.Driver }
func (c Config) GetServer() string { return c.DSN }

func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return DefaultPingTimeout
	}
	return c.PingTimeout
}

func (c Config) GetOtelIdentifier() string { return "scanner-history" }

// Retention returns the prune policy configured for the store.
func (c Config) Retention() RetentionPolicy {
	return RetentionPolicy{TTL: c.TTL, RowCap: c.RowCap}
}

// Open connects to the configured database, applies the history
// migrations and returns the persistence client.
func Open(ctx context.Context, cfg Config, logger glog.Logger) (*persistence.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite3
	}
	cfg.Driver = driver
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, goerrors.New("history: dsn is required", goerrors.CategoryValidation).
			WithTextCode("HISTORY_DSN_REQUIRED")
	}

	var (
		sqlDriver string
		dialect   schema.Dialect
		migration string
	)
	switch driver {
	case DriverSQLite3:
		sqlDriver, dialect, migration = DriverSQLite3, sqlitedialect.New(), DialectSQLite
	case DriverSQLite:
		sqlDriver, dialect, migration = sqliteshim.ShimName, sqlitedialect.New(), DialectSQLite
	case DriverPostgres:
		sqlDriver, dialect, migration = DriverPostgres, pgdialect.New(), DialectPostgres
	default:
		return nil, goerrors.New("history: unsupported driver", goerrors.CategoryValidation).
			WithTextCode("HISTORY_DRIVER_UNSUPPORTED").
			WithMetadata(map[string]any{"driver": cfg.Driver})
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "history: open database")
	}
	if migration == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "history: persistence client")
	}

	fsys, err := MigrationsFor(migration)
	if err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "history: migrations")
	}
	client.RegisterSQLMigrations(fsys)

	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "history: migrate")
	}

	glog.Ensure(logger).Info("history database ready", "driver", driver)
	return client, nil
}
