package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/shopspring/decimal"
)

const orderDemoSeedApplication = "order_demo"

// ApplyDemoSeeds submits a handful of demo orders against the demo catalog.
func ApplyDemoSeeds(ctx context.Context, store docstore.Store, tracker seed.Tracker, logger apt.Logger) error {
	if store == nil {
		return errors.New("store is required for demo seeding")
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	logger.Info("Applying demo order seeds")
	if err := seed.Apply(ctx, tracker, buildDemoOrderSeeds(store, logger), orderDemoSeedApplication); err != nil {
		return err
	}
	logger.Info("Demo order seeds applied successfully")
	return nil
}

func buildDemoOrderSeeds(store docstore.Store, logger apt.Logger) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "2026-10-02_demo_orders_v1",
			Description: "Submit demo orders covering kitchen, mixed and specialty-only cases",
			Run: func(ctx context.Context) error {
				return seedDemoOrders(ctx, NewSubmitter(store, logger), logger)
			},
		},
	}
}

func demoForms(catalog menu.Catalog) []Form {
	form := func(number int, zone, discount, notes string, lines map[string]map[string]int) Form {
		sel := NewSelection(catalog)
		for cat, items := range lines {
			for item, q := range items {
				sel.Set(cat, item, q)
			}
		}
		return Form{Number: number, Zone: zone, Discount: decimal.RequireFromString(discount), Notes: notes, Selection: sel}
	}

	return []Form{
		form(1, "inside", "0", "", map[string]map[string]int{
			"Food":   {"Burger": 2},
			"Drinks": {"Soda": 1},
		}),
		form(2, "outside", "1.00", "no onions", map[string]map[string]int{
			"Food":   {"Veggie Burger": 1, "Fries": 1},
			"Drinks": {"Lemonade": 2},
		}),
		form(3, "takeout", "0", "birthday, write Ana", map[string]map[string]int{
			"Specialty": {"CustomCake": 1},
		}),
		form(4, "bar", "0.50", "", map[string]map[string]int{
			"Drinks":    {"Coffee": 2},
			"Specialty": {"Crepe": 2},
		}),
	}
}

func seedDemoOrders(ctx context.Context, submitter *Submitter, logger apt.Logger) error {
	catalog := menu.DemoCatalog()
	for _, f := range demoForms(catalog) {
		if errs := Validate(catalog, f); len(errs) > 0 {
			return fmt.Errorf("demo order %d: %s: %s", f.Number, errs[0].Field, errs[0].Message)
		}
		id, err := submitter.Submit(ctx, MakeOrder(catalog, f))
		if err != nil {
			return fmt.Errorf("demo order %d: %w", f.Number, err)
		}
		logger.Debug("demo order created", "id", id, "number", f.Number)
	}
	return nil
}
