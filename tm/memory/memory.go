// Package memory is a process-local Topic Map System. Maps live as long as
// the System; opening a new System starts empty.
package memory

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/tm"
)

// BackendName is the name this package registers with tm.Register
const BackendName = "memory"

func init() {
	tm.Register(BackendName, func(ctx context.Context, cfg tm.Config) (tm.System, error) {
		return New(cfg.Logger), nil
	})
}

// System is a tm.System and tm.AtomicCreator guarded by one RWMutex
type System struct {
	mu     sync.RWMutex
	maps   map[string]*TopicMap
	closed bool
	logger *zap.SugaredLogger
}

// New returns an empty System. logger may be nil.
func New(log *zap.SugaredLogger) *System {
	return &System{
		maps:   make(map[string]*TopicMap),
		logger: logger.OrNop(log).With(logger.FieldBackend, BackendName),
	}
}

func (s *System) GetTopicMap(ctx context.Context, iri string) (tm.TopicMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tm.ErrSystemClosed
	}
	m, ok := s.maps[iri]
	if !ok {
		return nil, errors.Wrapf(tm.ErrMapNotFound, "get %q", iri)
	}
	return m, nil
}

func (s *System) CreateTopicMap(ctx context.Context, iri string) (tm.TopicMap, error) {
	m, created, err := s.GetOrCreateTopicMap(ctx, iri)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, errors.Wrapf(tm.ErrMapExists, "create %q", iri)
	}
	return m, nil
}

// GetOrCreateTopicMap creates the map under the write lock, so exactly one
// concurrent caller sees created == true.
func (s *System) GetOrCreateTopicMap(ctx context.Context, iri string) (tm.TopicMap, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, tm.ErrSystemClosed
	}
	if m, ok := s.maps[iri]; ok {
		return m, false, nil
	}
	m := newTopicMap(iri)
	s.maps[iri] = m
	s.logger.Debugw("Created topic map", logger.FieldMapIRI, iri)
	return m, true, nil
}

func (s *System) RemoveTopicMap(ctx context.Context, iri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tm.ErrSystemClosed
	}
	if _, ok := s.maps[iri]; !ok {
		return errors.Wrapf(tm.ErrMapNotFound, "remove %q", iri)
	}
	delete(s.maps, iri)
	s.logger.Debugw("Removed topic map", logger.FieldMapIRI, iri)
	return nil
}

func (s *System) TopicMapIRIs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tm.ErrSystemClosed
	}
	iris := make([]string, 0, len(s.maps))
	for iri := range s.maps {
		iris = append(iris, iri)
	}
	sort.Strings(iris)
	return iris, nil
}

// Close drops every map
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.maps = nil
	return nil
}

// TopicMap is an in-memory map with an identity index
type TopicMap struct {
	iri string

	mu           sync.RWMutex
	topics       []tm.Topic
	identities   map[tm.Ref]int
	associations []tm.Association
}

func newTopicMap(iri string) *TopicMap {
	return &TopicMap{iri: iri, identities: make(map[tm.Ref]int)}
}

func (m *TopicMap) IRI() string { return m.iri }

func (m *TopicMap) Topics(ctx context.Context) ([]tm.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tm.Topic, len(m.topics))
	for i, t := range m.topics {
		out[i] = t.Clone()
	}
	return out, nil
}

// AddGraph validates every identity before it mutates the map
func (m *TopicMap) AddGraph(ctx context.Context, g *tm.Graph) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "add graph")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err := tm.CheckIdentities(g, func(r tm.Ref) (bool, error) {
		_, held := m.identities[r]
		return held, nil
	})
	if err != nil {
		return errors.Wrapf(err, "add graph to %q", m.iri)
	}

	for _, t := range g.Topics() {
		idx := len(m.topics)
		m.topics = append(m.topics, t)
		for _, ref := range t.Identities() {
			m.identities[ref] = idx
		}
	}
	m.associations = append(m.associations, g.Associations()...)
	return nil
}

func (m *TopicMap) Stats(ctx context.Context) (tm.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tm.Stats{Topics: len(m.topics), Associations: len(m.associations)}, nil
}
