// Package bootstrap ensures a named topic map exists and is populated once.
//
// EnsureMapReady is idempotent: the first call against an empty store
// creates the map and runs the importer; later calls find the map and only
// count its topics. Population is guarded by an atomic get-or-create when
// the System offers one, so concurrent callers import at most once.
package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/sym"
	"github.com/teranos/mappa/tm"
)

// ErrImportTimeout is returned when the import outlives Options.ImportTimeout
var ErrImportTimeout = errors.Mark(errors.ErrTimeout, "import deadline exceeded")

// Options configures an Orchestrator
type Options struct {
	// ImportTimeout bounds the import step alone. Zero means no deadline
	// beyond the caller's context.
	ImportTimeout time.Duration

	// Logger defaults to the "bootstrap" component logger
	Logger *zap.SugaredLogger
}

// Result reports what EnsureMapReady did
type Result struct {
	IRI string `json:"iri"`

	// Created is true when this call created the map. A found map with zero
	// topics reports Created=false.
	Created bool `json:"created"`

	// Imported is true when the importer ran to completion
	Imported bool `json:"imported"`

	TopicCount     int           `json:"topic_count"`
	ImportDuration time.Duration `json:"import_duration"`
}

// Orchestrator runs the get-or-create-then-populate sequence
type Orchestrator struct {
	sys     tm.System
	imp     tm.Importer
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// New returns an Orchestrator over sys that populates new maps with imp
func New(sys tm.System, imp tm.Importer, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("bootstrap")
	}
	return &Orchestrator{sys: sys, imp: imp, timeout: opts.ImportTimeout, logger: log}
}

// EnsureMapReady makes sure a map exists under iri, imports the dataset if
// this call created it, and returns the map's topic count. The iri is an
// opaque key and is not validated; the empty string is passed through.
//
// If the import fails the created map is removed again, so the next call
// sees an empty store and retries.
func (o *Orchestrator) EnsureMapReady(ctx context.Context, iri string) (Result, error) {
	res := Result{IRI: iri}
	ctx = logger.WithMapIRI(logger.WithComponent(ctx, "bootstrap"), iri)
	log := logger.FromContext(ctx, o.logger)

	m, created, err := o.getOrCreate(ctx, iri)
	if err != nil {
		return res, err
	}
	res.Created = created

	if created {
		start := time.Now()
		log.Infow(sym.Import+" importing dataset into new topic map", logger.FieldTimeout, o.timeout.String())
		if err := o.populate(ctx, m); err != nil {
			return res, err
		}
		res.Imported = true
		res.ImportDuration = time.Since(start)
	} else {
		log.Infow(sym.Map + " topic map exists, skipping import")
	}

	topics, err := m.Topics(ctx)
	if err != nil {
		return res, errors.Wrapf(err, "read topics of %q", iri)
	}
	res.TopicCount = len(topics)

	if res.Imported {
		log.Infow(sym.Bootstrap+" topic map populated",
			logger.FieldTopicCount, res.TopicCount,
			logger.FieldDurationMS, res.ImportDuration.Milliseconds())
	}
	return res, nil
}

// getOrCreate prefers the System's atomic primitive. Without it, a create
// that loses the race to another caller is treated as found.
func (o *Orchestrator) getOrCreate(ctx context.Context, iri string) (tm.TopicMap, bool, error) {
	if ac, ok := o.sys.(tm.AtomicCreator); ok {
		m, created, err := ac.GetOrCreateTopicMap(ctx, iri)
		if err != nil {
			return nil, false, errors.Wrapf(err, "get or create topic map %q", iri)
		}
		return m, created, nil
	}

	m, err := o.sys.GetTopicMap(ctx, iri)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, tm.ErrMapNotFound) {
		return nil, false, errors.Wrapf(err, "get topic map %q", iri)
	}

	m, err = o.sys.CreateTopicMap(ctx, iri)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, tm.ErrMapExists) {
		return nil, false, errors.Wrapf(err, "create topic map %q", iri)
	}

	logger.FromContext(ctx, o.logger).Debugw("topic map created concurrently, using it")
	m, err = o.sys.GetTopicMap(ctx, iri)
	if err != nil {
		return nil, false, errors.Wrapf(err, "get topic map %q", iri)
	}
	return m, false, nil
}

func (o *Orchestrator) populate(ctx context.Context, m tm.TopicMap) error {
	importCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		importCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	err := o.imp.Import(importCtx, m)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = errors.WithHint(
			errors.WithMark(errors.Wrapf(err, "%s after %s", ErrImportTimeout, o.timeout), ErrImportTimeout, errors.ErrTimeout),
			"raise import.timeout_seconds or set it to 0 to disable the deadline")
	} else {
		err = errors.Wrap(err, "import dataset")
	}

	// The parent context may be done too; removal must still run
	if rmErr := o.sys.RemoveTopicMap(context.WithoutCancel(ctx), m.IRI()); rmErr != nil {
		logger.FromContext(ctx, o.logger).Errorw("could not remove partially imported topic map",
			logger.FieldError, rmErr)
		err = errors.WithSecondaryError(err, rmErr)
	}
	return errors.Wrapf(err, "populate %q", m.IRI())
}
