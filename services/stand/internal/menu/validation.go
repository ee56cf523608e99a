package menu

import (
	"fmt"
	"strings"

	"github.com/appetiteclub/stand/pkg/enums/stock"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateCategory checks a category before it is stored or used. Names end
// up as field paths of orders, so they must be usable as a single path segment.
func ValidateCategory(cat Category) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(cat.Name) == "" {
		errors = append(errors, ValidationError{Field: "categoryName", Message: "category name is required"})
	} else if err := docstore.ValidateKey(cat.Name); err != nil {
		errors = append(errors, ValidationError{Field: "categoryName", Message: "category name cannot contain '.' or start with '$'"})
	}

	seen := make(map[string]bool)
	for i, item := range cat.Items {
		field := fmt.Sprintf("items[%d]", i)

		if strings.TrimSpace(item.Name) == "" {
			errors = append(errors, ValidationError{Field: field + ".itemName", Message: "item name is required"})
		} else if err := docstore.ValidateKey(item.Name); err != nil {
			errors = append(errors, ValidationError{Field: field + ".itemName", Message: "item name cannot contain '.' or start with '$'"})
		} else if seen[item.Name] {
			errors = append(errors, ValidationError{Field: field + ".itemName", Message: fmt.Sprintf("duplicate item %q", item.Name)})
		}
		seen[item.Name] = true

		if item.Price.IsNegative() {
			errors = append(errors, ValidationError{Field: field + ".price", Message: "price cannot be negative"})
		}

		if stock.ByName(item.Stock) == nil {
			errors = append(errors, ValidationError{Field: field + ".stock", Message: "stock must be one of high, low, none"})
		}
	}

	return errors
}

// ValidateCatalog checks every category and the uniqueness of category names.
func ValidateCatalog(c Catalog) []ValidationError {
	var errors []ValidationError
	seen := make(map[string]bool)
	for i, cat := range c.Categories {
		for _, e := range ValidateCategory(cat) {
			e.Field = fmt.Sprintf("categories[%d].%s", i, e.Field)
			errors = append(errors, e)
		}
		if seen[cat.Name] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("categories[%d].categoryName", i),
				Message: fmt.Sprintf("duplicate category %q", cat.Name),
			})
		}
		seen[cat.Name] = true
	}
	return errors
}
