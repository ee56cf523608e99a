package menu

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/shopspring/decimal"
)

const menuSeedApplication = "menu"

// DemoCatalog is the menu loaded by demo seeding.
func DemoCatalog() Catalog {
	price := decimal.RequireFromString
	return NewCatalog(
		Category{Name: "Food", Position: 1, Items: []Item{
			{Name: "Burger", Price: price("10.00"), Stock: "high"},
			{Name: "Veggie Burger", Price: price("11.00"), Stock: "low", Flags: []string{"vegetarian"}},
			{Name: "Fries", Price: price("4.50"), Stock: "high", Flags: []string{"vegan", "gluten-free"}},
		}},
		Category{Name: "Drinks", Position: 2, Items: []Item{
			{Name: "Soda", Price: price("2.00"), Stock: "high", Flags: []string{"vegan"}},
			{Name: "Lemonade", Price: price("3.00"), Stock: "high", Flags: []string{"vegan"}},
			{Name: "Coffee", Price: price("2.50"), Stock: "low"},
		}},
		Category{Name: "Specialty", Position: 3, Items: []Item{
			{Name: "CustomCake", Price: price("25.00"), Stock: "low", Flags: []string{"made-to-order"}},
			{Name: "Crepe", Price: price("6.50"), Stock: "high", Flags: []string{"vegetarian"}},
		}},
	)
}

// Seeds returns the menu seeds.
func Seeds(store docstore.Store) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "2026-10-01_demo_menu",
			Description: "Seed the demo menu with food, drinks and specialty items",
			Run: func(ctx context.Context) error {
				return SaveCatalog(ctx, store, DemoCatalog())
			},
		},
	}
}

// ApplyDemoSeeds stores the demo menu unless it was seeded before.
func ApplyDemoSeeds(ctx context.Context, store docstore.Store, tracker seed.Tracker, logger apt.Logger) error {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	logger.Info("Applying demo menu seeds")
	if err := seed.Apply(ctx, tracker, Seeds(store), menuSeedApplication); err != nil {
		return err
	}
	logger.Info("Demo menu seeds applied successfully")
	return nil
}

// SaveCatalog creates one menu document per category.
func SaveCatalog(ctx context.Context, store docstore.Store, c Catalog) error {
	if errs := ValidateCatalog(c); len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %s: %s", errs[0].Field, errs[0].Message)
	}
	for _, cat := range c.Categories {
		fields, err := ToFields(cat)
		if err != nil {
			return err
		}
		if _, err := store.Create(ctx, Collection, fields); err != nil {
			return fmt.Errorf("cannot create category %s: %w", cat.Name, err)
		}
	}
	return nil
}
