package commands

import (
	"context"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/appetiteclub/stand/services/stand/internal/order"
)

var standCollections = []string{
	menu.Collection,
	order.OrdersCollection,
	order.SpecialtyCollection,
	docstore.SeedsCollection,
}

// ResetDB drops every stand collection, seed markers included.
func ResetDB(ctx context.Context, cfg *apt.Config, logger apt.Logger) error {
	logger.Infof("DANGER: this drops the menu, every order and every seed marker of database %s",
		cfg.GetStringOrDef("db.mongo.name", "stand"))

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Stop(context.WithoutCancel(ctx))

	return store.Base().Reset(ctx, standCollections...)
}
