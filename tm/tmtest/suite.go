// Package tmtest is a conformance suite run by every tm backend's tests.
package tmtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/internal/util"
	"github.com/teranos/mappa/tm"
)

// Suite describes how to open the backend under test
type Suite struct {
	// Open returns a fresh, empty System. The suite closes it.
	Open func(t *testing.T) tm.System

	// Reopen closes sys and opens the same store again. Nil for
	// process-local backends.
	Reopen func(t *testing.T, sys tm.System) tm.System
}

// Run executes every conformance test against s
func Run(t *testing.T, s Suite) {
	t.Run("lifecycle", s.testLifecycle)
	t.Run("empty IRI", s.testEmptyIRI)
	t.Run("get or create", s.testGetOrCreate)
	t.Run("concurrent get or create", s.testConcurrentGetOrCreate)
	t.Run("add graph round trip", s.testAddGraph)
	t.Run("identity conflict leaves map unchanged", s.testIdentityConflict)
	t.Run("maps are isolated", s.testIsolation)
	t.Run("remove drops content", s.testRemoveDropsContent)
	if s.Reopen != nil {
		t.Run("survives reopen", s.testReopen)
	}
}

func (s Suite) open(t *testing.T) tm.System {
	sys := s.Open(t)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

// SampleGraph builds a small graph with every construct kind
func SampleGraph(t *testing.T, prefix string) *tm.Graph {
	g := tm.NewGraph()
	pokemon := tm.SI(prefix + "pokemon")
	pikachu, err := g.Topic(tm.SI(prefix + "pikachu"))
	require.NoError(t, err)
	_, err = g.AddIdentity(pikachu, tm.II(prefix+"#pikachu"))
	require.NoError(t, err)
	_, err = g.AddIdentity(pikachu, tm.SL(prefix+"pikachu.html"))
	require.NoError(t, err)
	require.NoError(t, g.AddType(pikachu, pokemon))

	require.NoError(t, g.AddName(pikachu, tm.Name{Value: "Pikachu"}))
	require.NoError(t, g.AddName(pikachu, tm.Name{Type: util.Ptr(tm.II(prefix + "#nickname")), Value: "Pika", Scope: []tm.Ref{tm.II(prefix + "#en")}}))
	require.NoError(t, g.AddOccurrence(pikachu, tm.Occurrence{Type: tm.II(prefix + "#weight"), Value: "6.0", Datatype: tm.XSD + "decimal"}))
	require.NoError(t, g.AddOccurrence(pikachu, tm.Occurrence{Type: tm.II(prefix + "#homepage"), Value: prefix + "pikachu", Datatype: tm.XSDAnyURI}))

	require.NoError(t, g.AddAssociation(tm.Association{
		Type: tm.II(prefix + "#evolves-into"),
		Roles: []tm.Role{
			{Type: tm.II(prefix + "#from"), Player: tm.SI(prefix + "pichu")},
			{Type: tm.II(prefix + "#to"), Player: tm.SI(prefix + "pikachu")},
		},
		Scope: []tm.Ref{tm.II(prefix + "#gen2")},
	}))
	return g
}

func (s Suite) testLifecycle(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)

	_, err := sys.GetTopicMap(ctx, "http://www.example.org/map")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tm.ErrMapNotFound))
	assert.True(t, errors.IsNotFoundError(err))

	m, err := sys.CreateTopicMap(ctx, "http://www.example.org/map")
	require.NoError(t, err)
	assert.Equal(t, "http://www.example.org/map", m.IRI())

	topics, err := m.Topics(ctx)
	require.NoError(t, err)
	assert.Empty(t, topics)

	_, err = sys.CreateTopicMap(ctx, "http://www.example.org/map")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tm.ErrMapExists))

	got, err := sys.GetTopicMap(ctx, "http://www.example.org/map")
	require.NoError(t, err)
	assert.Equal(t, m.IRI(), got.IRI())

	_, err = sys.CreateTopicMap(ctx, "http://a.example.org/")
	require.NoError(t, err)
	iris, err := sys.TopicMapIRIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example.org/", "http://www.example.org/map"}, iris)

	require.NoError(t, sys.RemoveTopicMap(ctx, "http://www.example.org/map"))
	_, err = sys.GetTopicMap(ctx, "http://www.example.org/map")
	assert.True(t, errors.Is(err, tm.ErrMapNotFound))

	err = sys.RemoveTopicMap(ctx, "http://www.example.org/map")
	assert.True(t, errors.Is(err, tm.ErrMapNotFound))
}

func (s Suite) testEmptyIRI(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)

	_, err := sys.GetTopicMap(ctx, "")
	assert.True(t, errors.Is(err, tm.ErrMapNotFound))

	m, err := sys.CreateTopicMap(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "", m.IRI())
	require.NoError(t, m.AddGraph(ctx, SampleGraph(t, "http://psi.example.org/")))

	got, err := sys.GetTopicMap(ctx, "")
	require.NoError(t, err)
	stats, err := got.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Associations)

	iris, err := sys.TopicMapIRIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, iris)
}

func (s Suite) testGetOrCreate(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)
	ac, ok := sys.(tm.AtomicCreator)
	require.True(t, ok, "backend should implement tm.AtomicCreator")

	m, created, err := ac.GetOrCreateTopicMap(ctx, "urn:x-test:map")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "urn:x-test:map", m.IRI())

	_, created, err = ac.GetOrCreateTopicMap(ctx, "urn:x-test:map")
	require.NoError(t, err)
	assert.False(t, created)
}

func (s Suite) testConcurrentGetOrCreate(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)
	ac := sys.(tm.AtomicCreator)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := ac.GetOrCreateTopicMap(ctx, "urn:x-test:race")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, created, "exactly one caller should create the map")
}

func (s Suite) testAddGraph(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)
	m, err := sys.CreateTopicMap(ctx, "urn:x-test:graph")
	require.NoError(t, err)

	g := SampleGraph(t, "http://psi.example.org/")
	require.NoError(t, m.AddGraph(ctx, g))

	topics, err := m.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, g.Topics(), topics)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, tm.Stats{Topics: g.TopicCount(), Associations: 1}, stats)

	// a second disjoint graph appends
	more := tm.NewGraph()
	for i := 0; i < 3; i++ {
		_, err := more.Topic(tm.II(fmt.Sprintf("urn:x-test:extra:%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, m.AddGraph(ctx, more))
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, g.TopicCount()+3, stats.Topics)

	topics, err = m.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "urn:x-test:extra:2", topics[len(topics)-1].ItemIdentifiers[0])
}

func (s Suite) testIdentityConflict(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)
	m, err := sys.CreateTopicMap(ctx, "urn:x-test:conflict")
	require.NoError(t, err)
	require.NoError(t, m.AddGraph(ctx, SampleGraph(t, "http://psi.example.org/")))
	before, err := m.Stats(ctx)
	require.NoError(t, err)

	g := tm.NewGraph()
	_, err = g.Topic(tm.II("urn:x-test:fresh"))
	require.NoError(t, err)
	// ii matches the stored si
	_, err = g.Topic(tm.II("http://psi.example.org/pikachu"))
	require.NoError(t, err)

	err = m.AddGraph(ctx, g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tm.ErrIdentityConflict))

	after, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func (s Suite) testIsolation(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)
	a, err := sys.CreateTopicMap(ctx, "urn:x-test:a")
	require.NoError(t, err)
	b, err := sys.CreateTopicMap(ctx, "urn:x-test:b")
	require.NoError(t, err)

	require.NoError(t, a.AddGraph(ctx, SampleGraph(t, "http://psi.example.org/")))
	require.NoError(t, b.AddGraph(ctx, SampleGraph(t, "http://psi.example.org/")))

	sa, err := a.Stats(ctx)
	require.NoError(t, err)
	sb, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func (s Suite) testRemoveDropsContent(t *testing.T) {
	ctx := context.Background()
	sys := s.open(t)
	m, err := sys.CreateTopicMap(ctx, "urn:x-test:removed")
	require.NoError(t, err)
	require.NoError(t, m.AddGraph(ctx, SampleGraph(t, "http://psi.example.org/")))
	require.NoError(t, sys.RemoveTopicMap(ctx, "urn:x-test:removed"))

	m, err = sys.CreateTopicMap(ctx, "urn:x-test:removed")
	require.NoError(t, err)
	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, tm.Stats{}, stats)

	// identities were released with the map
	require.NoError(t, m.AddGraph(ctx, SampleGraph(t, "http://psi.example.org/")))
}

func (s Suite) testReopen(t *testing.T) {
	ctx := context.Background()
	sys := s.Open(t)
	m, err := sys.CreateTopicMap(ctx, "http://www.example.org/map")
	require.NoError(t, err)
	g := SampleGraph(t, "http://psi.example.org/")
	require.NoError(t, m.AddGraph(ctx, g))

	sys = s.Reopen(t, sys)
	t.Cleanup(func() { _ = sys.Close() })

	m, err = sys.GetTopicMap(ctx, "http://www.example.org/map")
	require.NoError(t, err)
	topics, err := m.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, g.Topics(), topics)
}
