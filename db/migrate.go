package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded schema step; version is the numeric file prefix
type migration struct {
	version  string
	filename string
}

func listMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		out = append(out, migration{
			version:  strings.SplitN(entry.Name(), "_", 2)[0],
			filename: entry.Name(),
		})
	}
	// 000_create_schema_migrations.sql sorts first
	sort.Slice(out, func(i, j int) bool { return out[i].filename < out[j].filename })
	return out, nil
}

// Migrate runs all pending migrations, each in its own transaction.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	steps, err := listMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range steps {
		done, err := isApplied(db, m)
		if err != nil {
			return err
		}
		if done {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", m.filename, "version", m.version)
			}
			continue
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", m.filename, "version", m.version)
		}
		if err := apply(db, m); err != nil {
			return err
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"symbol", sym.DB,
			"total_migrations", len(steps),
			"applied", applied,
		)
	}
	return nil
}

// isApplied consults schema_migrations. Before 000 has run the table is
// missing, which only migration 000 may tolerate.
func isApplied(db *sql.DB, m migration) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.version).Scan(&exists)
	if err == nil {
		return exists, nil
	}
	if IsDatabaseClosed(err) {
		return false, errors.Wrap(ErrDatabaseClosed, "check migration state")
	}
	if m.version != "000" {
		return false, errors.Wrapf(err, "schema_migrations unreadable before %s", m.filename)
	}
	return false, nil
}

func apply(db *sql.DB, m migration) error {
	sqlBytes, err := migrations.ReadFile(path.Join(migrationsDir, m.filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.filename)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return errors.Wrapf(err, "execute %s", m.filename)
	}
	// 000 creates the table, then records itself
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.filename)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.filename)
}

// AppliedVersions returns the recorded migration versions in order.
func AppliedVersions(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "query schema_migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		versions = append(versions, v)
	}
	return versions, errors.Wrap(rows.Err(), "iterate schema_migrations")
}
