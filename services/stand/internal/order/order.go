package order

import (
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/shopspring/decimal"
)

const (
	OrdersCollection    = "orders"
	SpecialtyCollection = "specialty"

	// SpecialtyCategory is the category mirrored into its own Specialty record.
	SpecialtyCategory = "Specialty"
)

// Line is the quantity ordered of one item. Stored quantities are always positive.
type Line struct {
	Quantity int `json:"quantity" bson:"quantity"`
}

// CategoryEntry is the per-category part of an order.
type CategoryEntry struct {
	Done  bool            `json:"done" bson:"done"`
	Items map[string]Line `json:"items" bson:"items"`
}

// Order is a submitted or candidate order. ID and Timestamp are assigned by the store.
type Order struct {
	ID            string                   `json:"id,omitempty" bson:"_id,omitempty"`
	Number        int                      `json:"number" bson:"number"`
	Price         decimal.Decimal          `json:"price" bson:"price"`
	Discount      decimal.Decimal          `json:"discount" bson:"discount"`
	Notes         string                   `json:"notes" bson:"notes"`
	Zone          string                   `json:"zone,omitempty" bson:"zone,omitempty"`
	Completed     bool                     `json:"completed" bson:"completed"`
	SpecialtyOnly bool                     `json:"specialty_only" bson:"specialtyOnly"`
	Timestamp     time.Time                `json:"timestamp" bson:"timestamp"`
	Categories    map[string]CategoryEntry `json:"categories" bson:"categories"`
}

// Specialty mirrors the Specialty category of the order sharing its ID.
type Specialty struct {
	ID        string          `json:"id,omitempty" bson:"_id,omitempty"`
	Number    int             `json:"number" bson:"number"`
	Notes     string          `json:"notes" bson:"notes"`
	Done      bool            `json:"done" bson:"done"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
	Items     map[string]Line `json:"items" bson:"items"`
}

// IsSpecialtyOnly reports whether categories hold exactly one entry, Specialty.
func IsSpecialtyOnly(categories map[string]CategoryEntry) bool {
	if len(categories) != 1 {
		return false
	}
	_, ok := categories[SpecialtyCategory]
	return ok
}

func (o Order) HasSpecialty() bool {
	_, ok := o.Categories[SpecialtyCategory]
	return ok
}

// ItemCount sums every quantity of every category.
func (o Order) ItemCount() int {
	n := 0
	for _, cat := range o.Categories {
		for _, line := range cat.Items {
			n += line.Quantity
		}
	}
	return n
}

// CategoryNames returns the category names in alphabetical order.
func (o Order) CategoryNames() []string {
	names := make([]string, 0, len(o.Categories))
	for name := range o.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SpecialtyFor derives the Specialty record of an order.
func SpecialtyFor(o Order) Specialty {
	entry := o.Categories[SpecialtyCategory]
	items := make(map[string]Line, len(entry.Items))
	for name, line := range entry.Items {
		items[name] = line
	}
	return Specialty{
		ID:     o.ID,
		Number: o.Number,
		Notes:  o.Notes,
		Done:   false,
		Items:  items,
	}
}

// orderFields is the stored shape of a new order, with a server timestamp.
func orderFields(o Order) (docstore.Fields, error) {
	o.SpecialtyOnly = IsSpecialtyOnly(o.Categories)
	fields, err := docstore.Encode(o)
	if err != nil {
		return nil, fmt.Errorf("cannot encode order: %w", err)
	}
	fields["timestamp"] = docstore.ServerTimestamp
	return fields, nil
}

// specialtyFields is the stored shape of a Specialty. A zero timestamp is
// replaced by a server timestamp.
func specialtyFields(s Specialty) (docstore.Fields, error) {
	fields, err := docstore.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("cannot encode specialty: %w", err)
	}
	if s.Timestamp.IsZero() {
		fields["timestamp"] = docstore.ServerTimestamp
	}
	return fields, nil
}

func DecodeOrder(doc docstore.Document) (Order, error) {
	var o Order
	if err := doc.Decode(&o); err != nil {
		return Order{}, fmt.Errorf("cannot decode order %s: %w", doc.ID, err)
	}
	if o.Categories == nil {
		o.Categories = map[string]CategoryEntry{}
	}
	return o, nil
}

func DecodeSpecialty(doc docstore.Document) (Specialty, error) {
	var s Specialty
	if err := doc.Decode(&s); err != nil {
		return Specialty{}, fmt.Errorf("cannot decode specialty %s: %w", doc.ID, err)
	}
	if s.Items == nil {
		s.Items = map[string]Line{}
	}
	return s, nil
}

// CategoryDonePath is the field path of a category completion flag.
func CategoryDonePath(category string) string {
	return "categories." + category + ".done"
}
