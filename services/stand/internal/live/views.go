package live

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
)

// Kitchen is the prep view. It also tells the completer which categories an
// open order has, so toggles of absent categories are refused.
type Kitchen struct {
	*View[[]Ticket]
}

func (k Kitchen) OrderCategories(id string) ([]string, bool) {
	for _, t := range k.State().Data {
		if t.ID != id {
			continue
		}
		names := make([]string, 0, len(t.Categories))
		for _, c := range t.Categories {
			names = append(names, c.Name)
		}
		return names, true
	}
	return nil, false
}

func NewKitchen(store docstore.Store, catalog CatalogSource, logger apt.Logger) Kitchen {
	return Kitchen{NewView(KindKitchen, store, OpenOrdersQuery(), ProjectKitchen, catalog, logger)}
}

func NewServer(store docstore.Store, catalog CatalogSource, logger apt.Logger) *View[[]ServerRow] {
	return NewView(KindServer, store, OpenOrdersQuery(), ProjectServer, catalog, logger)
}

func NewSpecialty(store docstore.Store, catalog CatalogSource, logger apt.Logger) *View[[]SpecialtyTicket] {
	return NewView(KindSpecialty, store, OpenSpecialtyQuery(), ProjectSpecialty, catalog, logger)
}

func NewAudit(store docstore.Store, catalog CatalogSource, logger apt.Logger) *View[Audit] {
	return NewView(KindAudit, store, AllOrdersQuery(), ProjectAudit, catalog, logger)
}

// New builds an unstarted view of kind.
func New(kind string, store docstore.Store, catalog CatalogSource, logger apt.Logger) (Live, bool) {
	switch kind {
	case KindKitchen:
		return NewKitchen(store, catalog, logger), true
	case KindServer:
		return NewServer(store, catalog, logger), true
	case KindSpecialty:
		return NewSpecialty(store, catalog, logger), true
	case KindAudit:
		return NewAudit(store, catalog, logger), true
	}
	return nil, false
}

// Set holds the shared, long-lived instance of every view.
type Set struct {
	Kitchen   Kitchen
	Server    *View[[]ServerRow]
	Specialty *View[[]SpecialtyTicket]
	Audit     *View[Audit]
}

func NewSet(store docstore.Store, catalog CatalogSource, logger apt.Logger) *Set {
	return &Set{
		Kitchen:   NewKitchen(store, catalog, logger),
		Server:    NewServer(store, catalog, logger),
		Specialty: NewSpecialty(store, catalog, logger),
		Audit:     NewAudit(store, catalog, logger),
	}
}

func (s *Set) all() []Live {
	return []Live{s.Kitchen, s.Server, s.Specialty, s.Audit}
}

func (s *Set) Get(kind string) (Live, bool) {
	for _, v := range s.all() {
		if v.Kind() == kind {
			return v, true
		}
	}
	return nil, false
}

func (s *Set) Start(ctx context.Context) error {
	started := make([]Live, 0, 4)
	for _, v := range s.all() {
		if err := v.Start(ctx); err != nil {
			for _, st := range started {
				_ = st.Stop(ctx)
			}
			return fmt.Errorf("cannot start views: %w", err)
		}
		started = append(started, v)
	}
	return nil
}

func (s *Set) Stop(ctx context.Context) error {
	for _, v := range s.all() {
		_ = v.Stop(ctx)
	}
	return nil
}
