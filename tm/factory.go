package tm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/mappa/errors"
)

// Config selects and parameterizes a backend
type Config struct {
	// Backend is a registered backend name: memory, sqlite or bolt
	Backend string

	// Path is the database file for persistent backends
	Path string

	// Logger is optional; nil disables backend logging
	Logger *zap.SugaredLogger
}

// OpenFunc opens a System for a backend
type OpenFunc func(ctx context.Context, cfg Config) (System, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]OpenFunc)
)

// Register makes a backend available by name. Backends call it from init.
// It panics if open is nil or name is already registered.
func Register(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("tm: Register open func is nil")
	}
	if _, dup := backends[name]; dup {
		panic(fmt.Sprintf("tm: Register called twice for backend %q", name))
	}
	backends[name] = open
}

// Backends returns the registered backend names, sorted
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory opens Systems for a fixed Config
type Factory struct {
	cfg Config
}

// NewInstance returns a factory for cfg. Selection happens in NewTopicMapSystem.
func NewInstance(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

// NewTopicMapSystem opens the configured backend
func (f *Factory) NewTopicMapSystem(ctx context.Context) (System, error) {
	backendsMu.RLock()
	open, ok := backends[f.cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, errors.WithHintf(
			errors.Wrapf(ErrUnknownBackend, "backend %q", f.cfg.Backend),
			"registered backends: %v", Backends())
	}

	sys, err := open(ctx, f.cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s topic map system", f.cfg.Backend)
	}
	return sys, nil
}
