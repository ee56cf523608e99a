package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/undo"
	"golang.org/x/sync/errgroup"
)

const specialtyUndoSuffix = "-specialty"

var (
	ErrUndoExpired       = errors.New("undo is no longer available")
	ErrSpecialtyToggle   = errors.New("specialty category is completed from the specialty view")
	ErrUnknownCategory   = errors.New("order has no such category")
	ErrMissingIdentifier = errors.New("order id is required")
)

// CategoryLookup reports the categories of an order as last seen by a live
// view. known is false when the view has not seen the order.
type CategoryLookup interface {
	OrderCategories(id string) (categories []string, known bool)
}

// Completer applies completion transitions and their undo.
type Completer struct {
	store  docstore.Store
	window undo.Window
	ttl    time.Duration
	lookup CategoryLookup
	logger apt.Logger
}

type CompleterOption func(*Completer)

// WithUndoWindow sets how long completions stay undoable.
func WithUndoWindow(ttl time.Duration) CompleterOption {
	return func(c *Completer) { c.ttl = ttl }
}

// WithCategoryLookup makes ToggleCategory reject categories the order does not have.
func WithCategoryLookup(lookup CategoryLookup) CompleterOption {
	return func(c *Completer) { c.lookup = lookup }
}

func NewCompleter(store docstore.Store, window undo.Window, logger apt.Logger, opts ...CompleterOption) *Completer {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	c := &Completer{
		store:  store,
		window: window,
		ttl:    undo.DefaultWindow,
		logger: logger.With("component", "completer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SpecialtyUndoKey keys the undo of a Specialty completion so it does not
// collide with an order level undo of the same id.
func SpecialtyUndoKey(id string) string {
	return id + specialtyUndoSuffix
}

// CompleteOrder marks the order completed and opens its undo window.
func (c *Completer) CompleteOrder(ctx context.Context, id string, number int) (undo.Affordance, error) {
	if id == "" {
		return undo.Affordance{}, ErrMissingIdentifier
	}
	if err := c.setCompleted(ctx, id, true); err != nil {
		return undo.Affordance{}, err
	}
	c.logger.Info("order completed", "id", id)

	return c.open(ctx, undo.Affordance{Key: id, Kind: undo.KindOrder, OrderID: id, Number: number})
}

// CompleteSpecialty marks the Specialty record and the parent order's
// Specialty category done. Both writes are issued together and both are
// awaited; either can land without the other, which the reconciler repairs.
func (c *Completer) CompleteSpecialty(ctx context.Context, id string, number int) (undo.Affordance, error) {
	if id == "" {
		return undo.Affordance{}, ErrMissingIdentifier
	}
	if err := c.setSpecialtyDone(ctx, id, true); err != nil {
		return undo.Affordance{}, err
	}
	c.logger.Info("specialty completed", "id", id)

	return c.open(ctx, undo.Affordance{Key: SpecialtyUndoKey(id), Kind: undo.KindSpecialty, OrderID: id, Number: number})
}

// Undo reverses the completion behind key if its window is still open. When
// the reversing write fails the window is put back so the operator can retry.
func (c *Completer) Undo(ctx context.Context, key string) (undo.Affordance, error) {
	a, err := c.window.Take(ctx, key)
	if errors.Is(err, undo.ErrExpired) {
		return undo.Affordance{}, ErrUndoExpired
	}
	if err != nil {
		return undo.Affordance{}, err
	}

	switch a.Kind {
	case undo.KindSpecialty:
		err = c.setSpecialtyDone(ctx, a.OrderID, false)
	default:
		err = c.setCompleted(ctx, a.OrderID, false)
	}
	if err != nil {
		if restoreErr := c.window.Restore(ctx, a); restoreErr != nil {
			c.logger.Error("cannot restore undo window", "key", key, "error", restoreErr)
		}
		return a, fmt.Errorf("cannot undo %s: %w", key, err)
	}
	c.logger.Info("completion undone", "key", key, "kind", string(a.Kind))
	return a, nil
}

// Dismiss closes an undo window early, making the completion permanent.
func (c *Completer) Dismiss(ctx context.Context, key string) error {
	return c.window.Dismiss(ctx, key)
}

func (c *Completer) Pending(ctx context.Context) ([]undo.Affordance, error) {
	return c.window.Pending(ctx)
}

// ToggleCategory sets one category's done flag and nothing else; the order's
// completed flag is never derived from its categories. The category must
// already exist on the order.
func (c *Completer) ToggleCategory(ctx context.Context, id, category string, done bool) error {
	if id == "" {
		return ErrMissingIdentifier
	}
	if err := docstore.ValidateKey(category); err != nil {
		return err
	}
	if category == SpecialtyCategory {
		return ErrSpecialtyToggle
	}
	if c.lookup != nil {
		categories, known := c.lookup.OrderCategories(id)
		if !known {
			return fmt.Errorf("cannot toggle %s of order %s: %w", category, id, docstore.ErrNotFound)
		}
		if !contains(categories, category) {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
		}
	}

	err := c.store.Update(ctx, OrdersCollection, id, docstore.Fields{CategoryDonePath(category): done})
	if err != nil {
		return fmt.Errorf("cannot toggle %s of order %s: %w", category, id, err)
	}
	c.logger.Debug("category toggled", "id", id, "category", category, "done", done)
	return nil
}

func (c *Completer) setCompleted(ctx context.Context, id string, completed bool) error {
	err := c.store.Update(ctx, OrdersCollection, id, docstore.Fields{"completed": completed})
	if err != nil {
		return fmt.Errorf("cannot set completed of order %s: %w", id, err)
	}
	return nil
}

func (c *Completer) setSpecialtyDone(ctx context.Context, id string, done bool) error {
	var g errgroup.Group
	var specErr, orderErr error

	g.Go(func() error {
		specErr = c.store.Update(ctx, SpecialtyCollection, id, docstore.Fields{"done": done})
		return nil
	})
	g.Go(func() error {
		orderErr = c.store.Update(ctx, OrdersCollection, id, docstore.Fields{CategoryDonePath(SpecialtyCategory): done})
		return nil
	})
	_ = g.Wait()

	if specErr != nil {
		specErr = fmt.Errorf("cannot set done of specialty %s: %w", id, specErr)
	}
	if orderErr != nil {
		orderErr = fmt.Errorf("cannot set specialty done of order %s: %w", id, orderErr)
	}
	if err := errors.Join(specErr, orderErr); err != nil {
		c.logger.Error("specialty dual write incomplete", "id", id, "done", done, "error", err)
		return err
	}
	return nil
}

func (c *Completer) open(ctx context.Context, a undo.Affordance) (undo.Affordance, error) {
	opened, err := c.window.Open(ctx, a, c.ttl)
	if err != nil {
		// The transition itself stands; only the undo offer is lost.
		c.logger.Error("cannot open undo window", "key", a.Key, "error", err)
		return undo.Affordance{}, err
	}
	return opened, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
