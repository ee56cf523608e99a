package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// MockStore wraps a Memory store and lets tests override single operations.
type MockStore struct {
	*docstore.Memory
	CreateFunc func(ctx context.Context, collection string, fields docstore.Fields) (string, error)
	SetFunc    func(ctx context.Context, collection, id string, fields docstore.Fields) error
	UpdateFunc func(ctx context.Context, collection, id string, fields docstore.Fields) error
}

func NewMockStore() *MockStore {
	return &MockStore{Memory: docstore.NewMemory()}
}

func (m *MockStore) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, collection, fields)
	}
	return m.Memory.Create(ctx, collection, fields)
}

func (m *MockStore) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, collection, id, fields)
	}
	return m.Memory.Set(ctx, collection, id, fields)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, collection, id, fields)
	}
	return m.Memory.Update(ctx, collection, id, fields)
}

// MockCatalog is a fixed CatalogSource.
type MockCatalog struct {
	Catalog menu.Catalog
	Loaded  bool
}

func (m *MockCatalog) Current() (menu.Catalog, bool) {
	return m.Catalog, m.Loaded
}

// MockLookup answers OrderCategories from a map.
type MockLookup struct {
	Orders map[string][]string
}

func (m *MockLookup) OrderCategories(id string) ([]string, bool) {
	cats, ok := m.Orders[id]
	return cats, ok
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCatalog() menu.Catalog {
	price := decimal.RequireFromString
	return menu.NewCatalog(
		menu.Category{Name: "Food", Position: 1, Items: []menu.Item{{Name: "Burger", Price: price("10.00"), Stock: "high"}}},
		menu.Category{Name: "Drinks", Position: 2, Items: []menu.Item{{Name: "Soda", Price: price("2.00"), Stock: "high"}}},
		menu.Category{Name: "Specialty", Position: 3, Items: []menu.Item{{Name: "CustomCake", Price: price("25.00"), Stock: "low"}}},
	)
}

func formWith(number int, discount string, lines map[string]map[string]int) Form {
	sel := NewSelection(testCatalog())
	for cat, items := range lines {
		for item, q := range items {
			sel.Set(cat, item, q)
		}
	}
	return Form{Number: number, Discount: decimal.RequireFromString(discount), Selection: sel}
}

func getOrder(t *testing.T, store *docstore.Memory, id string) Order {
	t.Helper()
	doc, ok := store.Get(OrdersCollection, id)
	require.True(t, ok, "order %s not stored", id)
	o, err := DecodeOrder(doc)
	require.NoError(t, err)
	return o
}

func getSpecialty(t *testing.T, store *docstore.Memory, id string) Specialty {
	t.Helper()
	doc, ok := store.Get(SpecialtyCollection, id)
	require.True(t, ok, "specialty %s not stored", id)
	s, err := DecodeSpecialty(doc)
	require.NoError(t, err)
	return s
}
