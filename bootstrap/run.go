package bootstrap

import (
	"context"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/tm"
)

// Run opens a System from factory, ensures the map and closes the System.
// A close error is returned only if everything else succeeded.
func Run(ctx context.Context, factory tm.SystemFactory, imp tm.Importer, iri string, opts Options) (res Result, err error) {
	sys, err := factory.NewTopicMapSystem(ctx)
	if err != nil {
		return Result{IRI: iri}, errors.Wrap(err, "open topic map system")
	}
	defer func() {
		if cerr := sys.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close topic map system")
		}
	}()

	return New(sys, imp, opts).EnsureMapReady(ctx, iri)
}
