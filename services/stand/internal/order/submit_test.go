package order

import (
	"context"
	"errors"
	"testing"

	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitSpecialtyOnlyOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	s := NewSubmitter(store, nil)

	o := MakeOrder(testCatalog(), formWith(42, "0", map[string]map[string]int{"Specialty": {"CustomCake": 1}}))
	id, err := s.Submit(ctx, o)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored := getOrder(t, store.Memory, id)
	assert.True(t, stored.SpecialtyOnly)
	assert.False(t, stored.Completed)
	assert.False(t, stored.Timestamp.IsZero())

	spec := getSpecialty(t, store.Memory, id)
	assert.Equal(t, id, spec.ID)
	assert.Equal(t, 42, spec.Number)
	assert.False(t, spec.Done)
	assert.False(t, spec.Timestamp.IsZero())
	assert.Equal(t, map[string]Line{"CustomCake": {Quantity: 1}}, spec.Items)
	assert.Equal(t, 1, store.Count(SpecialtyCollection))
}

func TestSubmitWithoutSpecialty(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	s := NewSubmitter(store, nil)

	o := MakeOrder(testCatalog(), formWith(5, "0", map[string]map[string]int{"Food": {"Burger": 1}}))
	id, err := s.Submit(ctx, o)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count(OrdersCollection))
	assert.Equal(t, 0, store.Count(SpecialtyCollection))
	assert.False(t, getOrder(t, store.Memory, id).SpecialtyOnly)
}

func TestSubmitRoundTripsCategories(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	s := NewSubmitter(store, nil)

	built := MakeOrder(testCatalog(), formWith(9, "1.00", map[string]map[string]int{
		"Food":      {"Burger": 2},
		"Drinks":    {"Soda": 1},
		"Specialty": {"CustomCake": 0},
	}))
	id, err := s.Submit(ctx, built)
	require.NoError(t, err)

	stored := getOrder(t, store.Memory, id)
	assert.Equal(t, built.Categories, stored.Categories)
	assert.True(t, stored.Price.Equal(decimal.RequireFromString("21")))
	assert.True(t, stored.Discount.Equal(decimal.RequireFromString("1")))
	assert.Equal(t, 0, store.Count(SpecialtyCollection))
}

func TestSubmitSpecialtyFailureLeavesOrphan(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	store.SetFunc = func(ctx context.Context, collection, id string, fields docstore.Fields) error {
		return errors.New("connection reset")
	}
	s := NewSubmitter(store, nil)

	o := MakeOrder(testCatalog(), formWith(8, "0", map[string]map[string]int{
		"Food":      {"Burger": 1},
		"Specialty": {"CustomCake": 1},
	}))
	id, err := s.Submit(ctx, o)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpecialtyOrphaned)
	assert.NotEmpty(t, id)
	assert.True(t, getOrder(t, store.Memory, id).HasSpecialty())
	assert.Equal(t, 0, store.Count(SpecialtyCollection))
}

func TestSubmitAfterReconcilerMirroredSpecialty(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	store.SetFunc = func(ctx context.Context, collection, id string, fields docstore.Fields) error {
		if _, err := NewReconciler(store.Memory, nil).Run(ctx); err != nil {
			return err
		}
		return store.Memory.Set(ctx, collection, id, fields)
	}
	s := NewSubmitter(store, nil)

	o := MakeOrder(testCatalog(), formWith(9, "0", map[string]map[string]int{"Specialty": {"CustomCake": 2}}))
	id, err := s.Submit(ctx, o)

	require.NoError(t, err)
	assert.Equal(t, 1, store.Count(SpecialtyCollection))
	spec := getSpecialty(t, store.Memory, id)
	assert.Equal(t, 9, spec.Number)
	assert.Equal(t, 2, spec.Items["CustomCake"].Quantity)
}

func TestSubmitCreateFailure(t *testing.T) {
	store := NewMockStore()
	store.CreateFunc = func(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
		return "", errors.New("unavailable")
	}
	s := NewSubmitter(store, nil)

	o := MakeOrder(testCatalog(), formWith(8, "0", map[string]map[string]int{"Specialty": {"CustomCake": 1}}))
	id, err := s.Submit(context.Background(), o)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSpecialtyOrphaned)
	assert.Empty(t, id)
	assert.Equal(t, 0, store.Count(OrdersCollection))
}
