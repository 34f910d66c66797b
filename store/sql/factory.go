package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-authclient/migrations"
)

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return c.pingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-authclient"
}

type OpenOptions struct {
	Debug       bool
	PingTimeout time.Duration
	// SkipMigrations leaves schema management to the caller.
	SkipMigrations bool
}

// Open connects to driver/dsn through go-persistence-bun and applies the
// credential table migrations. Supported drivers are sqlite3 and postgres.
func Open(ctx context.Context, driver string, dsn string, opts OpenOptions) (*persistence.Client, error) {
	driver = strings.TrimSpace(driver)
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, configError("sqlstore: dsn is required")
	}
	dialectName, err := migrations.DialectForDriver(driver)
	if err != nil {
		return nil, configError(err.Error())
	}
	var dialect schema.Dialect
	switch dialectName {
	case migrations.DialectSQLite:
		dialect = sqlitedialect.New()
	default:
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, databaseError(err, "sqlstore: open database", map[string]any{"driver": driver})
	}
	if dialectName == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	client, err := persistence.New(persistenceConfig{
		driver:      driver,
		server:      dsn,
		debug:       opts.Debug,
		pingTimeout: pingTimeout,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, databaseError(err, "sqlstore: create persistence client", map[string]any{"driver": driver})
	}
	if opts.SkipMigrations {
		return client, nil
	}

	_, err = migrations.Register(ctx, dialectName, func(_ context.Context, source migrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, databaseError(err, "sqlstore: register migrations", nil)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, databaseError(err, "sqlstore: migrate", nil)
	}
	return client, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, configError("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, configError("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, configError("sqlstore: unsupported persistence client type")
	}
}
