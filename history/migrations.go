package history

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsFor returns the migration filesystem for a dialect. Postgres
// files sit at the root, sqlite files under the sqlite directory.
func MigrationsFor(dialect string) (fs.FS, error) {
	base, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("history: resolve migrations: %w", err)
	}

	var fsys fs.FS
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		fsys = base
	case DialectSQLite:
		if fsys, err = fs.Sub(base, "sqlite"); err != nil {
			return nil, fmt.Errorf("history: resolve sqlite migrations: %w", err)
		}
	default:
		return nil, fmt.Errorf("history: unsupported dialect %q", dialect)
	}

	matches, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("history: glob %s migrations: %w", dialect, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("history: %s migrations have no *.up.sql files", dialect)
	}
	return fsys, nil
}
