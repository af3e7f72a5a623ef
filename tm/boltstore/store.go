// Package boltstore is a Topic Map System on bbolt. Every map gets a bucket
// under the root "maps" bucket. Inside it, "topics" and "associations" hold
// JSON values under sequence keys, and "identities" maps "kind|iri" to the
// owning topic ID. Writes are transactional: a failed AddGraph leaves no trace.
package boltstore

import (
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/sym"
	"github.com/teranos/mappa/tm"
)

// BackendName is the name this package registers with tm.Register
const BackendName = "bolt"

// OpenTimeout bounds the wait for the file lock another process holds
const OpenTimeout = 1 * time.Second

func init() {
	tm.Register(BackendName, func(ctx context.Context, cfg tm.Config) (tm.System, error) {
		return Open(cfg.Path, cfg.Logger)
	})
}

// Bucket keys
var (
	bucketMaps         = []byte("maps")
	bucketTopics       = []byte("topics")
	bucketIdentities   = []byte("identities")
	bucketAssociations = []byte("associations")
	keyCreatedAt       = []byte("created_at")
)

// mapKey prefixes the IRI so the empty IRI is a legal bucket key
func mapKey(iri string) []byte { return []byte("m:" + iri) }

func identityKey(r tm.Ref) []byte { return []byte(string(r.Kind) + "|" + r.IRI) }

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

// Store implements tm.System and tm.AtomicCreator backed by bbolt
type Store struct {
	db     *bolt.DB
	logger *zap.SugaredLogger
}

// Open opens (or creates) a bbolt database at path
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := bolt.Open(path, am.DefaultFilePermissions, &bolt.Options{Timeout: OpenTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "bbolt open %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMaps)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create maps bucket")
	}

	s := &Store{db: db, logger: logger.OrNop(log).With(logger.FieldBackend, BackendName)}
	s.logger.Debugw("Opened bolt store", logger.FieldPath, path, "symbol", sym.DB)
	return s, nil
}

func (s *Store) GetTopicMap(ctx context.Context, iri string) (tm.TopicMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "get %q", iri)
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketMaps).Bucket(mapKey(iri)) != nil
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, "get %q", iri)
	}
	if !found {
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

// GetOrCreateTopicMap checks and creates inside one Update; bbolt allows a
// single writer at a time.
func (s *Store) GetOrCreateTopicMap(ctx context.Context, iri string) (tm.TopicMap, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "create %q", iri)
	}
	var created bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		maps := tx.Bucket(bucketMaps)
		if maps.Bucket(mapKey(iri)) != nil {
			return nil
		}
		b, err := maps.CreateBucket(mapKey(iri))
		if err != nil {
			return err
		}
		for _, name := range [][]byte{bucketTopics, bucketIdentities, bucketAssociations} {
			if _, err := b.CreateBucket(name); err != nil {
				return err
			}
		}
		created = true
		stamp, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return b.Put(keyCreatedAt, stamp)
	})
	if err != nil {
		return nil, false, s.wrap(err, "create %q", iri)
	}
	if created {
		s.logger.Debugw("Created topic map", logger.FieldMapIRI, iri, "symbol", sym.DB)
	}
	return &TopicMap{store: s, iri: iri}, created, nil
}

func (s *Store) RemoveTopicMap(ctx context.Context, iri string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketMaps).DeleteBucket(mapKey(iri))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return tm.ErrMapNotFound
		}
		return err
	})
	if err != nil {
		return s.wrap(err, "remove %q", iri)
	}
	s.logger.Debugw("Removed topic map", logger.FieldMapIRI, iri, "symbol", sym.DB)
	return nil
}

func (s *Store) TopicMapIRIs(ctx context.Context) ([]string, error) {
	iris := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		// bucket keys iterate in byte order, which is IRI order after the shared prefix
		return tx.Bucket(bucketMaps).ForEachBucket(func(k []byte) error {
			iris = append(iris, string(k[len("m:"):]))
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap(err, "list topic maps")
	}
	return iris, nil
}

// Close releases the file lock
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close bolt store")
}

func (s *Store) wrap(err error, format string, args ...interface{}) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		err = errors.WithSecondaryError(tm.ErrSystemClosed, err)
	}
	return errors.Wrapf(err, format, args...)
}
