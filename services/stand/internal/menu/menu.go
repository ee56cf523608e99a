package menu

import (
	"fmt"

	"github.com/appetiteclub/stand/pkg/enums/stock"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/shopspring/decimal"
)

// Collection holds one document per category.
const Collection = "menu"

// Item is something the cashier can sell.
type Item struct {
	Name  string          `json:"name" bson:"itemName"`
	Price decimal.Decimal `json:"price" bson:"price"`
	Stock string          `json:"stock" bson:"stock"`
	Flags []string        `json:"flags,omitempty" bson:"flags,omitempty"`
}

// Available reports whether the item is not out of stock.
func (i Item) Available() bool {
	level := stock.ByName(i.Stock)
	return level == nil || level.Available()
}

// Category groups items under a unique name.
type Category struct {
	ID       string `json:"id,omitempty" bson:"_id,omitempty"`
	Name     string `json:"name" bson:"categoryName"`
	Position int    `json:"position" bson:"position"`
	Items    []Item `json:"items" bson:"items"`
}

// Item returns the named item of the category.
func (c Category) Item(name string) (Item, bool) {
	for _, it := range c.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Catalog is the ordered set of categories on sale.
type Catalog struct {
	Categories []Category `json:"categories"`
}

func NewCatalog(categories ...Category) Catalog {
	return Catalog{Categories: categories}
}

func (c Catalog) Category(name string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

func (c Catalog) Item(category, item string) (Item, bool) {
	cat, ok := c.Category(category)
	if !ok {
		return Item{}, false
	}
	return cat.Item(item)
}

// Each calls fn for every item in catalog order.
func (c Catalog) Each(fn func(category string, item Item)) {
	for _, cat := range c.Categories {
		for _, it := range cat.Items {
			fn(cat.Name, it)
		}
	}
}

// FromDocuments decodes menu documents. Invalid categories are skipped and
// reported through the returned errors.
func FromDocuments(docs []docstore.Document) (Catalog, []error) {
	var (
		catalog Catalog
		errs    []error
		seen    = make(map[string]bool)
	)

	for _, doc := range docs {
		var cat Category
		if err := doc.Decode(&cat); err != nil {
			errs = append(errs, fmt.Errorf("cannot decode category %s: %w", doc.ID, err))
			continue
		}
		if verrs := ValidateCategory(cat); len(verrs) > 0 {
			errs = append(errs, fmt.Errorf("invalid category %s: %s", doc.ID, verrs[0].Message))
			continue
		}
		if seen[cat.Name] {
			errs = append(errs, fmt.Errorf("duplicate category %q in %s", cat.Name, doc.ID))
			continue
		}
		seen[cat.Name] = true
		catalog.Categories = append(catalog.Categories, cat)
	}

	return catalog, errs
}

// ToFields converts a category to its stored shape.
func ToFields(cat Category) (docstore.Fields, error) {
	if cat.Items == nil {
		cat.Items = []Item{}
	}
	return docstore.Encode(cat)
}
