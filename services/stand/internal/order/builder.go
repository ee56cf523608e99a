package order

import (
	"fmt"

	"github.com/appetiteclub/stand/pkg/enums/zone"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/shopspring/decimal"
)

const (
	MsgNumberRequired   = "Order number is required"
	MsgDiscountTooLarge = "Discount greater than order total"
	MsgDiscountNegative = "Discount cannot be negative"
	MsgItemsRequired    = "At least one item is required"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Selection maps category to item to quantity.
type Selection map[string]map[string]int

// NewSelection returns a selection mirroring the catalog with every quantity at zero.
func NewSelection(c menu.Catalog) Selection {
	s := make(Selection, len(c.Categories))
	for _, cat := range c.Categories {
		items := make(map[string]int, len(cat.Items))
		for _, it := range cat.Items {
			items[it.Name] = 0
		}
		s[cat.Name] = items
	}
	return s
}

// Set stores a quantity, adding the category if needed.
func (s Selection) Set(category, item string, quantity int) {
	items, ok := s[category]
	if !ok {
		items = make(map[string]int)
		s[category] = items
	}
	items[item] = quantity
}

func (s Selection) Quantity(category, item string) int {
	return s[category][item]
}

// Reset puts every quantity back to zero.
func (s Selection) Reset() {
	for _, items := range s {
		for name := range items {
			items[name] = 0
		}
	}
}

func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for cat, items := range s {
		copied := make(map[string]int, len(items))
		for name, q := range items {
			copied[name] = q
		}
		out[cat] = copied
	}
	return out
}

// Form is everything the cashier enters for one order.
type Form struct {
	Number    int             `json:"number"`
	Zone      string          `json:"zone,omitempty"`
	Discount  decimal.Decimal `json:"discount"`
	Notes     string          `json:"notes"`
	Selection Selection       `json:"selection"`
}

// Subtotal is the sum of quantity times catalog price. Items missing from the
// catalog count as zero.
func Subtotal(c menu.Catalog, s Selection) decimal.Decimal {
	sum := decimal.Zero
	for category, items := range s {
		for name, q := range items {
			if q <= 0 {
				continue
			}
			it, ok := c.Item(category, name)
			if !ok {
				continue
			}
			sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(q))))
		}
	}
	return sum
}

// Total is the subtotal minus the discount.
func Total(c menu.Catalog, s Selection, discount decimal.Decimal) decimal.Decimal {
	return Subtotal(c, s).Sub(discount)
}

// Validate returns the problems that block submission of f. An empty result
// means the form can be reviewed.
func Validate(c menu.Catalog, f Form) []ValidationError {
	var errors []ValidationError

	if f.Number <= 0 {
		errors = append(errors, ValidationError{Field: "number", Message: MsgNumberRequired})
	}

	if !zone.Valid(f.Zone) {
		errors = append(errors, ValidationError{Field: "zone", Message: fmt.Sprintf("Unknown zone %q", f.Zone)})
	}

	positive := 0
	for category, items := range f.Selection {
		for name, q := range items {
			field := fmt.Sprintf("selection.%s.%s", category, name)
			if q < 0 {
				errors = append(errors, ValidationError{Field: field, Message: "Quantity cannot be negative"})
				continue
			}
			if q == 0 {
				continue
			}
			if _, ok := c.Item(category, name); !ok {
				errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf("Unknown item %s in %s", name, category)})
				continue
			}
			positive++
		}
	}
	if positive == 0 {
		errors = append(errors, ValidationError{Field: "selection", Message: MsgItemsRequired})
	}

	switch {
	case f.Discount.IsNegative():
		errors = append(errors, ValidationError{Field: "discount", Message: MsgDiscountNegative})
	case Total(c, f.Selection, f.Discount).IsNegative():
		errors = append(errors, ValidationError{Field: "discount", Message: MsgDiscountTooLarge})
	}

	return errors
}

// MakeOrder projects the form onto an order: only positive quantities are kept,
// categories left empty are dropped, every category starts not done and the
// order starts not completed.
func MakeOrder(c menu.Catalog, f Form) Order {
	categories := make(map[string]CategoryEntry)
	for category, items := range f.Selection {
		lines := make(map[string]Line)
		for name, q := range items {
			if q > 0 {
				lines[name] = Line{Quantity: q}
			}
		}
		if len(lines) == 0 {
			continue
		}
		categories[category] = CategoryEntry{Done: false, Items: lines}
	}

	return Order{
		Number:        f.Number,
		Price:         Total(c, f.Selection, f.Discount),
		Discount:      f.Discount,
		Notes:         f.Notes,
		Zone:          f.Zone,
		Completed:     false,
		SpecialtyOnly: IsSpecialtyOnly(categories),
		Categories:    categories,
	}
}
