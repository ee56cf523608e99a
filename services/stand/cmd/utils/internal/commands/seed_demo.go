package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/appetiteclub/stand/services/stand/internal/order"
)

// SeedDemo stores the demo menu and a few demo orders. Seeds already applied are skipped.
func SeedDemo(ctx context.Context, cfg *apt.Config, logger apt.Logger) error {
	logger.Info("Starting demo seeding process...")

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Stop(context.WithoutCancel(ctx))

	if err := menu.ApplyDemoSeeds(ctx, store, store.SeedTracker(), logger); err != nil {
		return fmt.Errorf("seed demo menu: %w", err)
	}
	if err := order.ApplyDemoSeeds(ctx, store, store.SeedTracker(), logger); err != nil {
		return fmt.Errorf("seed demo orders: %w", err)
	}
	return nil
}
