package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/backend"
)

// openStore connects to the MongoDB store the stand service uses.
func openStore(ctx context.Context, cfg *apt.Config, logger apt.Logger) (*backend.Store, error) {
	cfg.Set("store.backend", backend.StoreMongo)
	store, err := backend.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("cannot open store: %w", err)
	}
	return store, nil
}
