package commands

import (
	"context"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/tm"

	// Topic Map System backends
	_ "github.com/teranos/mappa/tm/boltstore"
	_ "github.com/teranos/mappa/tm/memory"
	_ "github.com/teranos/mappa/tm/sqlstore"
)

// systemFactory returns a factory for the configured backend
func systemFactory(cfg *am.Config) *tm.Factory {
	return tm.NewInstance(tm.Config{
		Backend: cfg.System.Backend,
		Path:    cfg.Database.Path,
		Logger:  logger.ComponentLogger(cfg.System.Backend),
	})
}

// openSystem opens the configured Topic Map System
func openSystem(ctx context.Context, cfg *am.Config) (tm.System, error) {
	return systemFactory(cfg).NewTopicMapSystem(ctx)
}
