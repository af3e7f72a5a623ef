// Package sqlstore is a Topic Map System on SQLite. The schema lives in the
// db package migrations; every map row owns its topics and associations
// through ON DELETE CASCADE.
package sqlstore

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/mappa/db"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/sym"
	"github.com/teranos/mappa/tm"
)

// BackendName is the name this package registers with tm.Register
const BackendName = "sqlite"

func init() {
	tm.Register(BackendName, func(ctx context.Context, cfg tm.Config) (tm.System, error) {
		return Open(ctx, cfg.Path, cfg.Logger)
	})
}

// Query constants
const (
	MapExistsQuery = `SELECT EXISTS(SELECT 1 FROM topic_maps WHERE iri = ?)`
	MapInsertQuery = `INSERT INTO topic_maps (iri) VALUES (?) ON CONFLICT(iri) DO NOTHING`
	MapDeleteQuery = `DELETE FROM topic_maps WHERE iri = ?`
	MapListQuery   = `SELECT iri FROM topic_maps ORDER BY iri`

	TopicCountQuery       = `SELECT COUNT(*) FROM topics WHERE map_iri = ?`
	AssociationCountQuery = `SELECT COUNT(*) FROM associations WHERE map_iri = ?`

	IdentityExistsQuery = `
		SELECT EXISTS(SELECT 1 FROM topic_identities WHERE map_iri = ? AND kind = ? AND iri = ?)`
)

// Store implements tm.System and tm.AtomicCreator with a SQLite backend
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	ownsDB bool
}

// Open opens path, applies migrations and returns a Store that closes the
// database on Close.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*Store, error) {
	conn, err := db.OpenWithMigrations(path, log)
	if err != nil {
		return nil, err
	}
	s := New(conn, log)
	s.ownsDB = true
	return s, nil
}

// New wraps an already migrated database. Close leaves conn open.
func New(conn *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{
		db:     conn,
		logger: logger.OrNop(log).With(logger.FieldBackend, BackendName),
	}
}

func (s *Store) GetTopicMap(ctx context.Context, iri string) (tm.TopicMap, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, MapExistsQuery, iri).Scan(&exists); err != nil {
		return nil, s.wrap(err, "get %q", iri)
	}
	if !exists {
		return nil, errors.Wrapf(tm.ErrMapNotFound, "get %q", iri)
	}
	return &TopicMap{store: s, iri: iri}, nil
}

func (s *Store) CreateTopicMap(ctx context.Context, iri string) (tm.TopicMap, error) {
	m, created, err := s.GetOrCreateTopicMap(ctx, iri)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, errors.Wrapf(tm.ErrMapExists, "create %q", iri)
	}
	return m, nil
}

// GetOrCreateTopicMap relies on the primary key: of concurrent inserts only
// one affects a row.
func (s *Store) GetOrCreateTopicMap(ctx context.Context, iri string) (tm.TopicMap, bool, error) {
	res, err := s.db.ExecContext(ctx, MapInsertQuery, iri)
	if err != nil {
		return nil, false, s.wrap(err, "create %q", iri)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, errors.Wrapf(err, "create %q: rows affected", iri)
	}
	if n == 1 {
		s.logger.Debugw("Created topic map", logger.FieldMapIRI, iri, "symbol", sym.DB)
	}
	return &TopicMap{store: s, iri: iri}, n == 1, nil
}

func (s *Store) RemoveTopicMap(ctx context.Context, iri string) error {
	res, err := s.db.ExecContext(ctx, MapDeleteQuery, iri)
	if err != nil {
		return s.wrap(err, "remove %q", iri)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "remove %q: rows affected", iri)
	}
	if n == 0 {
		return errors.Wrapf(tm.ErrMapNotFound, "remove %q", iri)
	}
	s.logger.Debugw("Removed topic map", logger.FieldMapIRI, iri, "symbol", sym.DB)
	return nil
}

func (s *Store) TopicMapIRIs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, MapListQuery)
	if err != nil {
		return nil, s.wrap(err, "list topic maps")
	}
	defer rows.Close()

	iris := []string{}
	for rows.Next() {
		var iri string
		if err := rows.Scan(&iri); err != nil {
			return nil, errors.Wrap(err, "scan topic map iri")
		}
		iris = append(iris, iri)
	}
	return iris, errors.Wrap(rows.Err(), "iterate topic maps")
}

// Close closes the database if Open created it
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return errors.Wrap(s.db.Close(), "close database")
}

// wrap adds context and maps a closed-database driver error onto db.ErrDatabaseClosed
func (s *Store) wrap(err error, format string, args ...interface{}) error {
	if db.IsDatabaseClosed(err) {
		err = errors.WithSecondaryError(db.ErrDatabaseClosed, err)
	}
	return errors.Wrapf(err, format, args...)
}
