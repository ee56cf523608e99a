package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
)

// ErrSpecialtyOrphaned means the order was stored but its Specialty record was
// not. The order id is still returned and the reconciler can heal it later.
var ErrSpecialtyOrphaned = errors.New("order stored without its specialty record")

// Submitter persists confirmed orders.
type Submitter struct {
	store  docstore.Store
	logger apt.Logger
}

func NewSubmitter(store docstore.Store, logger apt.Logger) *Submitter {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Submitter{store: store, logger: logger.With("component", "order-submitter")}
}

// Submit creates the order and, when it carries a Specialty category, a
// Specialty record under the same id. The two writes are sequential; the
// Specialty write needs the id assigned by the first. A Specialty record that
// already exists was recreated from this order by the reconciler and counts as
// mirrored.
func (s *Submitter) Submit(ctx context.Context, o Order) (string, error) {
	fields, err := orderFields(o)
	if err != nil {
		return "", err
	}

	id, err := s.store.Create(ctx, OrdersCollection, fields)
	if err != nil {
		return "", fmt.Errorf("cannot create order: %w", err)
	}
	o.ID = id
	s.logger.Info("order submitted", "id", id, "number", o.Number, "price", o.Price.StringFixed(2))

	if !o.HasSpecialty() {
		return id, nil
	}

	spec, err := specialtyFields(SpecialtyFor(o))
	if err != nil {
		return id, fmt.Errorf("%w: order %s: %w", ErrSpecialtyOrphaned, id, err)
	}
	err = s.store.Set(ctx, SpecialtyCollection, id, spec)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		s.logger.Debug("specialty already mirrored", "id", id)
		return id, nil
	}
	if err != nil {
		s.logger.Error("cannot mirror specialty", "id", id, "error", err)
		return id, fmt.Errorf("%w: order %s: %w", ErrSpecialtyOrphaned, id, err)
	}
	return id, nil
}
