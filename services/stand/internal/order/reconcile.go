package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Checked int      `json:"checked"`
	Created int      `json:"created"`
	Healed  int      `json:"healed"`
	Stray   []string `json:"stray"`
}

// Reconciler repairs the Specialty mirror of orders. Missing Specialty
// records are recreated from the order and, when both exist, the Specialty
// record's done flag wins over the order's categories.Specialty.done.
type Reconciler struct {
	store  docstore.Store
	logger apt.Logger
}

func NewReconciler(store docstore.Store, logger apt.Logger) *Reconciler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Reconciler{store: store, logger: logger.With("component", "reconciler")}
}

func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{Stray: []string{}}

	orderDocs, err := docstore.Fetch(ctx, r.store, docstore.Collection(OrdersCollection))
	if err != nil {
		return report, fmt.Errorf("cannot read orders: %w", err)
	}
	specDocs, err := docstore.Fetch(ctx, r.store, docstore.Collection(SpecialtyCollection))
	if err != nil {
		return report, fmt.Errorf("cannot read specialty records: %w", err)
	}

	specs := make(map[string]Specialty, len(specDocs))
	for _, doc := range specDocs {
		s, err := DecodeSpecialty(doc)
		if err != nil {
			r.logger.Error("skipping undecodable specialty", "id", doc.ID, "error", err)
			continue
		}
		specs[s.ID] = s
	}

	var errs []error
	seen := make(map[string]bool, len(orderDocs))
	for _, doc := range orderDocs {
		o, err := DecodeOrder(doc)
		if err != nil {
			r.logger.Error("skipping undecodable order", "id", doc.ID, "error", err)
			continue
		}
		if !o.HasSpecialty() {
			continue
		}
		report.Checked++
		seen[o.ID] = true

		spec, ok := specs[o.ID]
		if !ok {
			if err := r.recreate(ctx, o); err != nil {
				errs = append(errs, err)
				continue
			}
			report.Created++
			continue
		}

		if o.Categories[SpecialtyCategory].Done != spec.Done {
			path := CategoryDonePath(SpecialtyCategory)
			if err := r.store.Update(ctx, OrdersCollection, o.ID, docstore.Fields{path: spec.Done}); err != nil {
				errs = append(errs, fmt.Errorf("cannot heal order %s: %w", o.ID, err))
				continue
			}
			r.logger.Info("specialty flag healed", "id", o.ID, "done", spec.Done)
			report.Healed++
		}
	}

	for id := range specs {
		if !seen[id] {
			report.Stray = append(report.Stray, id)
		}
	}
	sort.Strings(report.Stray)
	if len(report.Stray) > 0 {
		r.logger.Info("specialty records without a parent order", "ids", report.Stray)
	}

	return report, errors.Join(errs...)
}

// Loop runs a pass every interval until ctx is done.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.Run(ctx)
			if err != nil {
				r.logger.Error("reconcile pass failed", "error", err)
				continue
			}
			if report.Created > 0 || report.Healed > 0 {
				r.logger.Info("reconcile pass repaired records", "created", report.Created, "healed", report.Healed)
			}
		}
	}
}

func (r *Reconciler) recreate(ctx context.Context, o Order) error {
	spec := SpecialtyFor(o)
	spec.Done = o.Categories[SpecialtyCategory].Done
	spec.Timestamp = o.Timestamp

	fields, err := specialtyFields(spec)
	if err != nil {
		return err
	}
	err = r.store.Set(ctx, SpecialtyCollection, o.ID, fields)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot recreate specialty %s: %w", o.ID, err)
	}
	r.logger.Info("orphaned order repaired", "id", o.ID)
	return nil
}
