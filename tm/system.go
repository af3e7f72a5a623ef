package tm

import (
	"context"

	"github.com/teranos/mappa/errors"
)

// Sentinel errors shared by every backend. Each also matches the generic
// condition from the errors package.
var (
	// ErrMapNotFound is returned by GetTopicMap and RemoveTopicMap for an unknown IRI
	ErrMapNotFound = errors.Mark(errors.ErrNotFound, "topic map not found")

	// ErrMapExists is returned by CreateTopicMap when the IRI is taken
	ErrMapExists = errors.Mark(errors.ErrConflict, "topic map already exists")

	// ErrIdentityConflict is returned by AddGraph when a graph topic shares an
	// identity with a topic already stored in the map
	ErrIdentityConflict = errors.Mark(errors.ErrConflict, "identity already held by a stored topic")

	// ErrUnknownBackend is returned by the factory for an unregistered backend name
	ErrUnknownBackend = errors.Mark(errors.ErrInvalidInput, "unknown topic map backend")

	// ErrSystemClosed is returned by operations on a closed System
	ErrSystemClosed = errors.New("topic map system is closed")
)

// System holds topic maps keyed by IRI. The IRI is an opaque key; the empty
// string is a valid key like any other.
type System interface {
	// GetTopicMap returns the map stored under iri, or an error matching ErrMapNotFound.
	GetTopicMap(ctx context.Context, iri string) (TopicMap, error)

	// CreateTopicMap creates an empty map, or fails with ErrMapExists.
	CreateTopicMap(ctx context.Context, iri string) (TopicMap, error)

	// RemoveTopicMap deletes a map and everything in it.
	RemoveTopicMap(ctx context.Context, iri string) error

	// TopicMapIRIs lists stored maps in IRI order.
	TopicMapIRIs(ctx context.Context) ([]string, error)

	Close() error
}

// AtomicCreator is implemented by systems that can get-or-create in one step.
// created is true only for the caller whose call created the map.
type AtomicCreator interface {
	GetOrCreateTopicMap(ctx context.Context, iri string) (m TopicMap, created bool, err error)
}

// TopicMap is a handle on one stored map
type TopicMap interface {
	IRI() string

	// Topics returns all topics in insertion order.
	Topics(ctx context.Context) ([]Topic, error)

	// AddGraph stores every topic and association of g. It either adds all of
	// g or nothing; an identity collision with a stored topic fails with
	// ErrIdentityConflict.
	AddGraph(ctx context.Context, g *Graph) error

	Stats(ctx context.Context) (Stats, error)
}

// Stats counts the constructs in a map
type Stats struct {
	Topics       int `json:"topics"`
	Associations int `json:"associations"`
}

// Importer populates a freshly created map
type Importer interface {
	Import(ctx context.Context, m TopicMap) error
}

// ImporterFunc adapts a function to Importer
type ImporterFunc func(ctx context.Context, m TopicMap) error

// Import calls f(ctx, m)
func (f ImporterFunc) Import(ctx context.Context, m TopicMap) error { return f(ctx, m) }

// SystemFactory opens a System
type SystemFactory interface {
	NewTopicMapSystem(ctx context.Context) (System, error)
}

// CheckIdentities returns ErrIdentityConflict, with the topic and IRI in the
// detail, for the first graph identity that held reports as already stored.
// Backends call it before writing a graph.
func CheckIdentities(g *Graph, held func(Ref) (bool, error)) error {
	for _, t := range g.Topics() {
		for _, ref := range t.Identities() {
			for _, candidate := range MatchingRefs(ref) {
				found, err := held(candidate)
				if err != nil {
					return errors.Wrap(err, "check identity")
				}
				if found {
					return errors.WithDetailf(
						errors.Wrapf(ErrIdentityConflict, "%s", ref),
						"stored topic holds %s", candidate)
				}
			}
		}
	}
	return nil
}
