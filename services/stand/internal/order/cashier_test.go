package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCashier(store docstore.Store) *Cashier {
	return NewCashier(&MockCatalog{Catalog: testCatalog(), Loaded: true}, NewSubmitter(store, nil), nil)
}

func intPtr(v int) *int { return &v }

func TestCashierOpenWhileCatalogLoading(t *testing.T) {
	c := NewCashier(&MockCatalog{}, NewSubmitter(NewMockStore(), nil), nil)
	_, err := c.Open()
	assert.ErrorIs(t, err, ErrCatalogLoading)
}

func TestCashierTotalFollowsEdits(t *testing.T) {
	c := newTestCashier(NewMockStore())
	d, err := c.Open()
	require.NoError(t, err)
	assert.Equal(t, 0, d.Form.Selection.Quantity("Food", "Burger"))

	d, err = c.SetQuantity(d.ID, "Food", "Burger", 2)
	require.NoError(t, err)
	assert.True(t, d.Total.Equal(decimal.NewFromInt(20)))

	discount := decimal.RequireFromString("1.00")
	d, err = c.SetDetails(d.ID, Details{Discount: &discount})
	require.NoError(t, err)
	d, err = c.SetQuantity(d.ID, "Drinks", "Soda", 1)
	require.NoError(t, err)
	assert.True(t, d.Total.Equal(decimal.NewFromInt(21)))
}

func TestCashierReviewInvalid(t *testing.T) {
	c := newTestCashier(NewMockStore())
	d, _ := c.Open()
	_, _ = c.SetQuantity(d.ID, "Food", "Burger", 1)

	d, err := c.Review(d.ID)
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Nil(t, d.Candidate)
	require.Len(t, d.Errors, 1)
	assert.Equal(t, MsgNumberRequired, d.Errors[0].Message)
}

func TestCashierConfirmRequiresReview(t *testing.T) {
	c := newTestCashier(NewMockStore())
	d, _ := c.Open()

	_, _, err := c.Confirm(context.Background(), d.ID)
	assert.ErrorIs(t, err, ErrNotReviewed)
}

func TestCashierEditWithdrawsCandidate(t *testing.T) {
	c := newTestCashier(NewMockStore())
	d, _ := c.Open()
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(4)})
	_, _ = c.SetQuantity(d.ID, "Food", "Burger", 1)

	d, err := c.Review(d.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Candidate)

	d, err = c.SetQuantity(d.ID, "Food", "Burger", 2)
	require.NoError(t, err)
	assert.Nil(t, d.Candidate)

	_, _, err = c.Confirm(context.Background(), d.ID)
	assert.ErrorIs(t, err, ErrNotReviewed)
}

func TestCashierCancelHasNoSideEffects(t *testing.T) {
	store := NewMockStore()
	c := newTestCashier(store)
	d, _ := c.Open()
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(4)})
	_, _ = c.SetQuantity(d.ID, "Food", "Burger", 1)
	_, err := c.Review(d.ID)
	require.NoError(t, err)

	d, err = c.Cancel(d.ID)
	require.NoError(t, err)

	assert.Nil(t, d.Candidate)
	assert.Equal(t, 1, d.Form.Selection.Quantity("Food", "Burger"))
	assert.Equal(t, 0, store.Count(OrdersCollection))
}

func TestCashierConfirmSubmitsAndResetsSelection(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	c := newTestCashier(store)
	d, _ := c.Open()
	zoneName := "outside"
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(15), Zone: &zoneName})
	_, _ = c.SetQuantity(d.ID, "Food", "Burger", 2)
	_, _ = c.SetQuantity(d.ID, "Specialty", "CustomCake", 1)
	_, err := c.Review(d.ID)
	require.NoError(t, err)

	orderID, d, err := c.Confirm(ctx, d.ID)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	assert.Nil(t, d.Candidate)
	assert.Equal(t, 0, d.Form.Selection.Quantity("Food", "Burger"))
	assert.Equal(t, 0, d.Form.Selection.Quantity("Specialty", "CustomCake"))
	assert.Equal(t, 15, d.Form.Number)

	stored := getOrder(t, store.Memory, orderID)
	assert.Equal(t, "outside", stored.Zone)
	assert.True(t, stored.Price.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, 1, store.Count(SpecialtyCollection))
}

func TestCashierConfirmFailureKeepsDraft(t *testing.T) {
	store := NewMockStore()
	store.CreateFunc = func(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
		return "", errors.New("timeout")
	}
	c := newTestCashier(store)
	d, _ := c.Open()
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(2)})
	_, _ = c.SetQuantity(d.ID, "Drinks", "Soda", 3)
	_, err := c.Review(d.ID)
	require.NoError(t, err)

	_, d, err = c.Confirm(context.Background(), d.ID)
	require.Error(t, err)
	assert.NotNil(t, d.Candidate)
	assert.Equal(t, 3, d.Form.Selection.Quantity("Drinks", "Soda"))
}

func TestCashierConfirmOrphanStillResets(t *testing.T) {
	store := NewMockStore()
	store.SetFunc = func(ctx context.Context, collection, id string, fields docstore.Fields) error {
		return errors.New("timeout")
	}
	c := newTestCashier(store)
	d, _ := c.Open()
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(2)})
	_, _ = c.SetQuantity(d.ID, "Specialty", "CustomCake", 1)
	_, err := c.Review(d.ID)
	require.NoError(t, err)

	orderID, d, err := c.Confirm(context.Background(), d.ID)
	assert.ErrorIs(t, err, ErrSpecialtyOrphaned)
	assert.NotEmpty(t, orderID)
	assert.Equal(t, 0, d.Form.Selection.Quantity("Specialty", "CustomCake"))
}

func TestCashierDiscard(t *testing.T) {
	c := newTestCashier(NewMockStore())
	d, _ := c.Open()
	require.Len(t, c.List(), 1)

	require.NoError(t, c.Discard(d.ID))
	assert.ErrorIs(t, c.Discard(d.ID), ErrDraftNotFound)
	_, err := c.Get(d.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestCashierConcurrentConfirmSubmitsOnce(t *testing.T) {
	store := NewMockStore()
	store.CreateFunc = func(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return store.Memory.Create(ctx, collection, fields)
	}
	c := newTestCashier(store)
	d, _ := c.Open()
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(8)})
	_, _ = c.SetQuantity(d.ID, "Food", "Burger", 1)
	_, err := c.Review(d.ID)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
		ids  = make([]string, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _, errs[i] = c.Confirm(context.Background(), d.ID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Count(OrdersCollection))
	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			assert.NotEmpty(t, ids[i])
			continue
		}
		assert.ErrorIs(t, err, ErrSubmitting)
	}
	assert.Equal(t, 1, succeeded)

	d, err = c.Get(d.ID)
	require.NoError(t, err)
	assert.False(t, d.Submitting)
	assert.Nil(t, d.Candidate)
}

func TestCashierRefusesEditsWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	store := NewMockStore()
	store.CreateFunc = func(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
		close(entered)
		<-release
		return "", errors.New("timeout")
	}
	c := newTestCashier(store)
	d, _ := c.Open()
	_, _ = c.SetDetails(d.ID, Details{Number: intPtr(8)})
	_, _ = c.SetQuantity(d.ID, "Food", "Burger", 1)
	_, err := c.Review(d.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := c.Confirm(context.Background(), d.ID)
		done <- err
	}()
	<-entered

	_, err = c.SetQuantity(d.ID, "Food", "Burger", 3)
	assert.ErrorIs(t, err, ErrSubmitting)
	_, err = c.Cancel(d.ID)
	assert.ErrorIs(t, err, ErrSubmitting)
	_, err = c.Review(d.ID)
	assert.ErrorIs(t, err, ErrSubmitting)

	close(release)
	require.Error(t, <-done)

	d, err = c.Get(d.ID)
	require.NoError(t, err)
	assert.False(t, d.Submitting)
	require.NotNil(t, d.Candidate)
	assert.Equal(t, 1, d.Form.Selection.Quantity("Food", "Burger"))
}

func TestCashierDropsIdleDrafts(t *testing.T) {
	clock := newTestClock()
	c := NewCashier(&MockCatalog{Catalog: testCatalog(), Loaded: true}, NewSubmitter(NewMockStore(), nil), nil,
		WithDraftTTL(time.Hour),
	)
	c.now = clock.Now

	stale, _ := c.Open()
	clock.Advance(30 * time.Minute)
	fresh, _ := c.Open()
	clock.Advance(45 * time.Minute)

	assert.Equal(t, 1, c.Sweep())
	_, err := c.Get(stale.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	_, err = c.SetQuantity(fresh.ID, "Food", "Burger", 1)
	require.NoError(t, err)
	clock.Advance(45 * time.Minute)
	require.Len(t, c.List(), 1)
	assert.Equal(t, fresh.ID, c.List()[0].ID)
}

func TestCashierWithoutTTLKeepsDrafts(t *testing.T) {
	clock := newTestClock()
	c := NewCashier(&MockCatalog{Catalog: testCatalog(), Loaded: true}, NewSubmitter(NewMockStore(), nil), nil,
		WithDraftTTL(0),
	)
	c.now = clock.Now
	_, _ = c.Open()
	clock.Advance(30 * 24 * time.Hour)

	assert.Equal(t, 0, c.Sweep())
	assert.Len(t, c.List(), 1)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}
