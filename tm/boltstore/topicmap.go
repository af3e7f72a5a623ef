package boltstore

import (
	"context"
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/tm"
)

// TopicMap is a handle on one map bucket
type TopicMap struct {
	store *Store
	iri   string
}

func (m *TopicMap) IRI() string { return m.iri }

// bucket returns the map bucket, or ErrMapNotFound once the map is removed
func (m *TopicMap) bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(bucketMaps).Bucket(mapKey(m.iri))
	if b == nil {
		return nil, tm.ErrMapNotFound
	}
	return b, nil
}

func (m *TopicMap) Topics(ctx context.Context) ([]tm.Topic, error) {
	topics := []tm.Topic{}
	err := m.store.db.View(func(tx *bolt.Tx) error {
		b, err := m.bucket(tx)
		if err != nil {
			return err
		}
		// values are only valid inside the tx; Unmarshal copies
		return b.Bucket(bucketTopics).ForEach(func(k, v []byte) error {
			var t tm.Topic
			if err := json.Unmarshal(v, &t); err != nil {
				return errors.Wrapf(err, "decode topic at seq %x", k)
			}
			topics = append(topics, t)
			return nil
		})
	})
	if err != nil {
		return nil, m.store.wrap(err, "load topics of %q", m.iri)
	}
	return topics, nil
}

// AddGraph writes g in one Update transaction
func (m *TopicMap) AddGraph(ctx context.Context, g *tm.Graph) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "add graph to %q", m.iri)
	}

	topics := g.Topics()
	assocs := g.Associations()
	err := m.store.db.Update(func(tx *bolt.Tx) error {
		b, err := m.bucket(tx)
		if err != nil {
			return err
		}
		identities := b.Bucket(bucketIdentities)

		err = tm.CheckIdentities(g, func(r tm.Ref) (bool, error) {
			return identities.Get(identityKey(r)) != nil, nil
		})
		if err != nil {
			return err
		}

		tb := b.Bucket(bucketTopics)
		for _, t := range topics {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := putJSON(tb, t); err != nil {
				return errors.Wrapf(err, "topic %s", t.ID)
			}
			for _, ref := range t.Identities() {
				if err := identities.Put(identityKey(ref), []byte(t.ID)); err != nil {
					return errors.Wrapf(err, "identity %s", ref)
				}
			}
		}

		ab := b.Bucket(bucketAssociations)
		for _, a := range assocs {
			if err := putJSON(ab, a); err != nil {
				return errors.Wrapf(err, "association %s", a.Type)
			}
		}
		return nil
	})
	if err != nil {
		return m.store.wrap(err, "add graph to %q", m.iri)
	}

	m.store.logger.Debugw("Added graph",
		logger.FieldMapIRI, m.iri,
		logger.FieldTopicCount, len(topics),
		logger.FieldAssociationCount, len(assocs),
	)
	return nil
}

func (m *TopicMap) Stats(ctx context.Context) (tm.Stats, error) {
	var stats tm.Stats
	err := m.store.db.View(func(tx *bolt.Tx) error {
		b, err := m.bucket(tx)
		if err != nil {
			return err
		}
		stats.Topics = b.Bucket(bucketTopics).Stats().KeyN
		stats.Associations = b.Bucket(bucketAssociations).Stats().KeyN
		return nil
	})
	if err != nil {
		return tm.Stats{}, m.store.wrap(err, "stats of %q", m.iri)
	}
	return stats, nil
}

// putJSON stores v under the bucket's next sequence number
func putJSON(b *bolt.Bucket, v interface{}) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	return b.Put(seqKey(seq), data)
}
