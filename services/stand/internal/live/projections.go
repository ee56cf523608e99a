package live

import (
	"sort"
	"time"

	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/appetiteclub/stand/services/stand/internal/order"
	"github.com/shopspring/decimal"
)

const (
	KindKitchen   = "kitchen"
	KindServer    = "server"
	KindSpecialty = "specialty"
	KindAudit     = "audit"
)

// Kinds lists the view kinds in display order.
var Kinds = []string{KindKitchen, KindServer, KindSpecialty, KindAudit}

type ItemLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type CategoryLine struct {
	Name  string     `json:"name"`
	Done  bool       `json:"done"`
	Items []ItemLine `json:"items"`
}

// Ticket is an open order as the kitchen sees it.
type Ticket struct {
	ID         string         `json:"id"`
	Number     int            `json:"number"`
	Zone       string         `json:"zone,omitempty"`
	Notes      string         `json:"notes"`
	Timestamp  time.Time      `json:"timestamp"`
	Categories []CategoryLine `json:"categories"`
}

// ServerRow is an open order as the server sees it. Category flags are
// shown but only the order as a whole can be completed from this view.
type ServerRow struct {
	Ticket
	Price     decimal.Decimal `json:"price"`
	Completed bool            `json:"completed"`
}

type SpecialtyTicket struct {
	ID        string     `json:"id"`
	Number    int        `json:"number"`
	Notes     string     `json:"notes"`
	Timestamp time.Time  `json:"timestamp"`
	Items     []ItemLine `json:"items"`
}

type SoldItem struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// Aggregate is rebuilt from scratch on every audit snapshot.
type Aggregate struct {
	Orders  int             `json:"orders"`
	Items   int             `json:"items"`
	Revenue decimal.Decimal `json:"revenue"`
	Sold    []SoldItem      `json:"sold"`
}

type Audit struct {
	Orders []order.Order `json:"orders"`
	Totals Aggregate     `json:"totals"`
}

// OpenOrdersQuery selects orders not yet completed that the kitchen prepares.
func OpenOrdersQuery() docstore.Query {
	return docstore.Collection(order.OrdersCollection).
		Where("completed", false).
		Where("specialtyOnly", false).
		OrderBy("timestamp", docstore.Asc)
}

func OpenSpecialtyQuery() docstore.Query {
	return docstore.Collection(order.SpecialtyCollection).
		Where("done", false).
		OrderBy("timestamp", docstore.Asc)
}

func AllOrdersQuery() docstore.Query {
	return docstore.Collection(order.OrdersCollection).OrderBy("timestamp", docstore.Asc)
}

func decodeOrders(docs []docstore.Document) ([]order.Order, []error) {
	var errs []error
	out := make([]order.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := order.DecodeOrder(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, o)
	}
	return out, errs
}

// ProjectKitchen lists open orders without their Specialty category.
func ProjectKitchen(docs []docstore.Document, catalog menu.Catalog) ([]Ticket, []error) {
	orders, errs := decodeOrders(docs)
	tickets := make([]Ticket, 0, len(orders))
	for _, o := range orders {
		tickets = append(tickets, ticketFor(o, catalog, false))
	}
	return tickets, errs
}

func ProjectServer(docs []docstore.Document, catalog menu.Catalog) ([]ServerRow, []error) {
	orders, errs := decodeOrders(docs)
	rows := make([]ServerRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, ServerRow{
			Ticket:    ticketFor(o, catalog, true),
			Price:     o.Price,
			Completed: o.Completed,
		})
	}
	return rows, errs
}

func ProjectSpecialty(docs []docstore.Document, catalog menu.Catalog) ([]SpecialtyTicket, []error) {
	var errs []error
	tickets := make([]SpecialtyTicket, 0, len(docs))
	cat, _ := catalog.Category(order.SpecialtyCategory)
	for _, doc := range docs {
		s, err := order.DecodeSpecialty(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tickets = append(tickets, SpecialtyTicket{
			ID:        s.ID,
			Number:    s.Number,
			Notes:     s.Notes,
			Timestamp: s.Timestamp,
			Items:     itemLines(s.Items, cat),
		})
	}
	return tickets, errs
}

// ProjectAudit lists every order and recomputes the running totals. Every
// catalog item is listed in Sold, sold or not; items sold but no longer in
// the catalog follow the catalog items.
func ProjectAudit(docs []docstore.Document, catalog menu.Catalog) (Audit, []error) {
	orders, errs := decodeOrders(docs)
	return Audit{Orders: orders, Totals: Aggregated(orders, catalog)}, errs
}

func Aggregated(orders []order.Order, catalog menu.Catalog) Aggregate {
	agg := Aggregate{Revenue: decimal.Zero, Sold: []SoldItem{}}

	type key struct{ category, item string }
	index := make(map[key]int)
	catalog.Each(func(category string, it menu.Item) {
		index[key{category, it.Name}] = len(agg.Sold)
		agg.Sold = append(agg.Sold, SoldItem{Category: category, Item: it.Name})
	})
	known := len(agg.Sold)

	for _, o := range orders {
		agg.Orders++
		agg.Revenue = agg.Revenue.Add(o.Price)
		for category, entry := range o.Categories {
			for name, line := range entry.Items {
				agg.Items += line.Quantity
				k := key{category, name}
				i, ok := index[k]
				if !ok {
					i = len(agg.Sold)
					index[k] = i
					agg.Sold = append(agg.Sold, SoldItem{Category: category, Item: name})
				}
				agg.Sold[i].Quantity += line.Quantity
			}
		}
	}

	extra := agg.Sold[known:]
	sort.Slice(extra, func(i, j int) bool {
		if extra[i].Category != extra[j].Category {
			return extra[i].Category < extra[j].Category
		}
		return extra[i].Item < extra[j].Item
	})
	return agg
}

func ticketFor(o order.Order, catalog menu.Catalog, withSpecialty bool) Ticket {
	t := Ticket{
		ID:         o.ID,
		Number:     o.Number,
		Zone:       o.Zone,
		Notes:      o.Notes,
		Timestamp:  o.Timestamp,
		Categories: []CategoryLine{},
	}
	for _, name := range categoryOrder(o, catalog) {
		if name == order.SpecialtyCategory && !withSpecialty {
			continue
		}
		entry := o.Categories[name]
		cat, _ := catalog.Category(name)
		t.Categories = append(t.Categories, CategoryLine{
			Name:  name,
			Done:  entry.Done,
			Items: itemLines(entry.Items, cat),
		})
	}
	return t
}

// categoryOrder lists the order's categories in catalog order, then any
// unknown ones alphabetically.
func categoryOrder(o order.Order, catalog menu.Catalog) []string {
	names := make([]string, 0, len(o.Categories))
	seen := make(map[string]bool, len(o.Categories))
	for _, cat := range catalog.Categories {
		if _, ok := o.Categories[cat.Name]; ok {
			names = append(names, cat.Name)
			seen[cat.Name] = true
		}
	}
	for _, name := range o.CategoryNames() {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}

func itemLines(items map[string]order.Line, cat menu.Category) []ItemLine {
	lines := make([]ItemLine, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range cat.Items {
		if line, ok := items[it.Name]; ok {
			lines = append(lines, ItemLine{Name: it.Name, Quantity: line.Quantity})
			seen[it.Name] = true
		}
	}

	var rest []string
	for name := range items {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		lines = append(lines, ItemLine{Name: name, Quantity: items[name].Quantity})
	}
	return lines
}
