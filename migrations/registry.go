package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	authclient "github.com/goliatone/go-authclient"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const migrationsRoot = "data/sql/migrations"

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "pgx", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Source is the credential schema for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// SourceFor resolves the embedded migration tree for dialect. Postgres files
// live at the root of the tree and the sqlite variant in its sqlite directory.
func SourceFor(dialect string) (Source, error) {
	dialect = strings.TrimSpace(strings.ToLower(dialect))
	path := migrationsRoot
	switch dialect {
	case DialectPostgres:
	case DialectSQLite:
		path = migrationsRoot + "/sqlite"
	default:
		return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	fsys, err := fs.Sub(authclient.GetMigrationsFS(), path)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: resolve %s filesystem: %w", dialect, err)
	}
	matches, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s %s: %w", dialect, path, err)
	}
	if len(matches) == 0 {
		return Source{}, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", dialect, path)
	}
	return Source{Dialect: dialect, Path: path, FS: fsys}, nil
}

type RegisterFunc func(ctx context.Context, source Source) error

// Register hands the dialect's tree to registerFn, which is usually a
// persistence client's RegisterSQLMigrations.
func Register(ctx context.Context, dialect string, registerFn RegisterFunc) (Source, error) {
	if registerFn == nil {
		return Source{}, fmt.Errorf("migrations: register function is required")
	}
	source, err := SourceFor(dialect)
	if err != nil {
		return Source{}, err
	}
	if err := registerFn(ctx, source); err != nil {
		return source, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
	}
	return source, nil
}
