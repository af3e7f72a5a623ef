package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/importer"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/tm"
	"github.com/teranos/mappa/tm/boltstore"
	"github.com/teranos/mappa/tm/memory"
	"github.com/teranos/mappa/tm/sqlstore"
)

const mapIRI = "http://www.example.org/map"

type mockImporter struct {
	mock.Mock
}

func (m *mockImporter) Import(ctx context.Context, target tm.TopicMap) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

// inserting returns an importer that adds n topics to the map it is given
func inserting(t *testing.T, n int) *mockImporter {
	imp := &mockImporter{}
	imp.On("Import", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		target := args.Get(1).(tm.TopicMap)
		require.NoError(t, target.AddGraph(args.Get(0).(context.Context), graphOf(t, n)))
	}).Return(nil)
	return imp
}

func graphOf(t *testing.T, n int) *tm.Graph {
	g := tm.NewGraph()
	for i := 0; i < n; i++ {
		_, err := g.Topic(tm.SI(fmt.Sprintf("http://psi.example.org/topic/%d", i)))
		require.NoError(t, err)
	}
	return g
}

func newOrchestrator(t *testing.T, sys tm.System, imp tm.Importer, timeout time.Duration) *Orchestrator {
	return New(sys, imp, Options{ImportTimeout: timeout, Logger: zaptest.NewLogger(t).Sugar()})
}

func newMemory(t *testing.T) *memory.System {
	sys := memory.New(zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

// plainSystem hides AtomicCreator to exercise the get-then-create path
type plainSystem struct {
	tm.System
}

// racingSystem loses every create to a concurrent caller
type racingSystem struct {
	tm.System
}

func (r racingSystem) CreateTopicMap(ctx context.Context, iri string) (tm.TopicMap, error) {
	if _, err := r.System.CreateTopicMap(ctx, iri); err != nil {
		return nil, err
	}
	return nil, errors.Wrapf(tm.ErrMapExists, "create %q", iri)
}

// stuckSystem cannot remove maps
type stuckSystem struct {
	tm.System
}

func (stuckSystem) RemoveTopicMap(context.Context, string) error {
	return errors.New("remove failed: disk is read-only")
}

func TestEnsureMapReady_ScenarioA_EmptyImport(t *testing.T) {
	ctx := context.Background()
	imp := inserting(t, 0)

	res, err := newOrchestrator(t, newMemory(t), imp, 0).EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TopicCount)
	assert.True(t, res.Created)
	assert.True(t, res.Imported)
	imp.AssertNumberOfCalls(t, "Import", 1)
}

func TestEnsureMapReady_ScenarioB_ImportOnce(t *testing.T) {
	ctx := context.Background()
	sys := newMemory(t)
	imp := inserting(t, 150)
	o := newOrchestrator(t, sys, imp, time.Minute)

	first, err := o.EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.Equal(t, 150, first.TopicCount)
	assert.True(t, first.Created)

	second, err := o.EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.Equal(t, 150, second.TopicCount)
	assert.False(t, second.Created)
	assert.False(t, second.Imported)
	assert.Zero(t, second.ImportDuration)

	imp.AssertNumberOfCalls(t, "Import", 1)
	iris, err := sys.TopicMapIRIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{mapIRI}, iris)
}

func TestEnsureMapReady_ScenarioC_ExistingMap(t *testing.T) {
	ctx := context.Background()
	sys := newMemory(t)
	m, err := sys.CreateTopicMap(ctx, mapIRI)
	require.NoError(t, err)
	require.NoError(t, m.AddGraph(ctx, graphOf(t, 42)))

	imp := &mockImporter{}
	res, err := newOrchestrator(t, sys, imp, 0).EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.Equal(t, 42, res.TopicCount)
	assert.False(t, res.Created)
	imp.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
}

func TestEnsureMapReady_FoundButEmptyIsNotCreated(t *testing.T) {
	ctx := context.Background()
	sys := newMemory(t)
	_, err := sys.CreateTopicMap(ctx, mapIRI)
	require.NoError(t, err)

	imp := &mockImporter{}
	res, err := newOrchestrator(t, sys, imp, 0).EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.Equal(t, Result{IRI: mapIRI}, res)
	imp.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
}

func TestEnsureMapReady_EmptyIRIPassesThrough(t *testing.T) {
	ctx := context.Background()
	sys := newMemory(t)

	res, err := newOrchestrator(t, sys, inserting(t, 3), 0).EnsureMapReady(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "", res.IRI)
	assert.Equal(t, 3, res.TopicCount)

	_, err = sys.GetTopicMap(ctx, "")
	assert.NoError(t, err)
}

func TestEnsureMapReady_GetThenCreateFallback(t *testing.T) {
	ctx := context.Background()
	var sys tm.System = plainSystem{newMemory(t)}
	_, atomic := sys.(tm.AtomicCreator)
	require.False(t, atomic)

	imp := inserting(t, 5)
	o := newOrchestrator(t, sys, imp, 0)

	res, err := o.EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 5, res.TopicCount)

	res, err = o.EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 5, res.TopicCount)
	imp.AssertNumberOfCalls(t, "Import", 1)
}

func TestEnsureMapReady_LostCreateRaceRefetches(t *testing.T) {
	imp := &mockImporter{}
	res, err := newOrchestrator(t, racingSystem{plainSystem{newMemory(t)}}, imp, 0).
		EnsureMapReady(context.Background(), mapIRI)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 0, res.TopicCount)
	imp.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
}

func TestEnsureMapReady_ImportFailureRemovesMap(t *testing.T) {
	ctx := context.Background()
	sys := newMemory(t)
	boom := errors.New("dataset is corrupt")

	failing := &mockImporter{}
	failing.On("Import", mock.Anything, mock.Anything).Return(boom)

	_, err := newOrchestrator(t, sys, failing, 0).EnsureMapReady(ctx, mapIRI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), fmt.Sprintf("populate %q", mapIRI))

	_, err = sys.GetTopicMap(ctx, mapIRI)
	assert.True(t, errors.Is(err, tm.ErrMapNotFound), "failed import must not leave a map behind")

	res, err := newOrchestrator(t, sys, inserting(t, 7), 0).EnsureMapReady(ctx, mapIRI)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 7, res.TopicCount)
}

func TestEnsureMapReady_RemovalFailureIsAttached(t *testing.T) {
	boom := errors.New("dataset is corrupt")
	failing := &mockImporter{}
	failing.On("Import", mock.Anything, mock.Anything).Return(boom)

	_, err := newOrchestrator(t, stuckSystem{newMemory(t)}, failing, 0).
		EnsureMapReady(context.Background(), mapIRI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, fmt.Sprintf("%+v", err), "disk is read-only")
}

func TestEnsureMapReady_LogFieldsFollowContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core).Sugar()

	imp := &mockImporter{}
	imp.On("Import", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		iri, ok := logger.MapIRIFromContext(args.Get(0).(context.Context))
		assert.True(t, ok)
		assert.Equal(t, mapIRI, iri)
	}).Return(nil)

	orch := New(newMemory(t), imp, Options{Logger: log})
	_, err := orch.EnsureMapReady(context.Background(), mapIRI)
	require.NoError(t, err)

	populated := logs.FilterMessageSnippet("topic map populated").All()
	require.Len(t, populated, 1)
	fields := populated[0].ContextMap()
	assert.Equal(t, mapIRI, fields[logger.FieldMapIRI])
	assert.Equal(t, "bootstrap", fields[logger.FieldComponent])
}

func TestEnsureMapReady_ImportDeadline(t *testing.T) {
	ctx := context.Background()
	sys := newMemory(t)

	slow := &mockImporter{}
	slow.On("Import", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		importCtx := args.Get(0).(context.Context)
		_, hasDeadline := importCtx.Deadline()
		assert.True(t, hasDeadline)
		<-importCtx.Done()
	}).Return(context.DeadlineExceeded)

	_, err := newOrchestrator(t, sys, slow, 20*time.Millisecond).EnsureMapReady(ctx, mapIRI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImportTimeout))
	assert.True(t, errors.Is(err, errors.ErrTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "the importer's error stays in the chain")
	assert.Contains(t, err.Error(), "import deadline exceeded after 20ms")
	assert.NoError(t, ctx.Err(), "the deadline is scoped to the import")

	_, err = sys.GetTopicMap(ctx, mapIRI)
	assert.True(t, errors.Is(err, tm.ErrMapNotFound))
}

func TestEnsureMapReady_NoDeadlineWhenTimeoutZero(t *testing.T) {
	imp := &mockImporter{}
	imp.On("Import", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_, hasDeadline := args.Get(0).(context.Context).Deadline()
		assert.False(t, hasDeadline)
	}).Return(nil)

	_, err := newOrchestrator(t, newMemory(t), imp, 0).EnsureMapReady(context.Background(), mapIRI)
	require.NoError(t, err)
}

func TestEnsureMapReady_CanceledParentStillRemoves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sys := newMemory(t)

	imp := &mockImporter{}
	imp.On("Import", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(context.Canceled)

	_, err := newOrchestrator(t, sys, imp, time.Minute).EnsureMapReady(ctx, mapIRI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrImportTimeout))

	_, err = sys.GetTopicMap(context.Background(), mapIRI)
	assert.True(t, errors.Is(err, tm.ErrMapNotFound))
}

func TestEnsureMapReady_ConcurrentCallersImportOnce(t *testing.T) {
	ctx := context.Background()
	imp := inserting(t, 10)
	o := newOrchestrator(t, newMemory(t), imp, 0)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.EnsureMapReady(ctx, mapIRI)
			assert.NoError(t, err)
			if res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	imp.AssertNumberOfCalls(t, "Import", 1)
}

func TestRun_IdempotentAcrossProcesses(t *testing.T) {
	backends := map[string]string{
		sqlstore.BackendName:  "mappa.db",
		boltstore.BackendName: "mappa.bolt",
	}
	for backend, file := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			factory := tm.NewInstance(tm.Config{
				Backend: backend,
				Path:    filepath.Join(t.TempDir(), file),
				Logger:  zaptest.NewLogger(t).Sugar(),
			})
			imp, err := importer.New(importer.Options{})
			require.NoError(t, err)
			opts := Options{ImportTimeout: time.Minute, Logger: zaptest.NewLogger(t).Sugar()}

			first, err := Run(ctx, factory, imp, mapIRI, opts)
			require.NoError(t, err)
			assert.True(t, first.Created)
			assert.Positive(t, first.TopicCount)

			second, err := Run(ctx, factory, imp, mapIRI, opts)
			require.NoError(t, err)
			assert.False(t, second.Created)
			assert.Equal(t, first.TopicCount, second.TopicCount)
		})
	}
}

func TestRun_UnknownBackend(t *testing.T) {
	_, err := Run(context.Background(), tm.NewInstance(tm.Config{Backend: "ontopia"}), &mockImporter{}, mapIRI, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tm.ErrUnknownBackend))
}

func TestRun_MemoryStartsEmpty(t *testing.T) {
	ctx := context.Background()
	factory := tm.NewInstance(tm.Config{Backend: memory.BackendName})
	imp := inserting(t, 2)

	for i := 0; i < 2; i++ {
		res, err := Run(ctx, factory, imp, mapIRI, Options{Logger: zaptest.NewLogger(t).Sugar()})
		require.NoError(t, err)
		assert.True(t, res.Created, "every memory system is a fresh store")
	}
	imp.AssertNumberOfCalls(t, "Import", 2)
}
