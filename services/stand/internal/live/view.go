package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
)

// CatalogSource is the catalog a projection is laid out against.
type CatalogSource interface {
	Current() (menu.Catalog, bool)
	Watch(fn func(menu.Catalog)) func()
}

// ProjectFunc turns the full result of a live query into view data. Documents
// it cannot use are reported and skipped.
type ProjectFunc[S any] func(docs []docstore.Document, catalog menu.Catalog) (S, []error)

// State is what a view shows. Loading is true until the first snapshot
// arrives and never goes back to true.
type State[S any] struct {
	Kind      string    `json:"kind"`
	Loading   bool      `json:"loading"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Data      S         `json:"data"`
}

// Live is the type-erased side of a view, used by the HTTP layer.
type Live interface {
	Kind() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() any
	Changed() <-chan struct{}
}

// View follows one live query and keeps its projection. Each snapshot fully
// replaces the previous data; a catalog change re-projects the last snapshot.
type View[S any] struct {
	kind    string
	store   docstore.Store
	query   docstore.Query
	project ProjectFunc[S]
	catalog CatalogSource
	logger  apt.Logger

	mu       sync.RWMutex
	state    State[S]
	docs     []docstore.Document
	received bool
	stopped  bool
	stream   *docstore.Stream
	unwatch  func()
	changed  chan struct{}
	wg       sync.WaitGroup

	// applyMu orders snapshot and catalog re-projections.
	applyMu sync.Mutex
}

func NewView[S any](kind string, store docstore.Store, q docstore.Query, project ProjectFunc[S], catalog CatalogSource, logger apt.Logger) *View[S] {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	initial, _ := project(nil, menu.Catalog{})
	return &View[S]{
		kind:    kind,
		store:   store,
		query:   q,
		project: project,
		catalog: catalog,
		logger:  logger.With("view", kind),
		state:   State[S]{Kind: kind, Loading: true, Data: initial},
		changed: make(chan struct{}, 1),
	}
}

func (v *View[S]) Kind() string {
	return v.kind
}

func (v *View[S]) Query() docstore.Query {
	return v.query
}

// Start subscribes. The subscription lives until Stop, not until ctx ends.
func (v *View[S]) Start(ctx context.Context) error {
	stream, err := v.store.Subscribe(context.WithoutCancel(ctx), v.query)
	if err != nil {
		return fmt.Errorf("cannot subscribe %s view: %w", v.kind, err)
	}

	v.mu.Lock()
	v.stream = stream
	v.mu.Unlock()

	if v.catalog != nil {
		unwatch := v.catalog.Watch(func(menu.Catalog) { v.reproject() })
		v.mu.Lock()
		v.unwatch = unwatch
		v.mu.Unlock()
	}

	v.wg.Add(1)
	go v.follow(stream)
	return nil
}

// Stop releases the subscription and waits for the follower to exit.
func (v *View[S]) Stop(ctx context.Context) error {
	v.mu.Lock()
	stream, unwatch := v.stream, v.unwatch
	v.stream, v.unwatch = nil, nil
	alreadyStopped := v.stopped
	v.stopped = true
	v.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if stream != nil {
		stream.Close()
		v.wg.Wait()
	}
	if !alreadyStopped {
		v.mu.Lock()
		select {
		case <-v.changed:
		default:
		}
		close(v.changed)
		v.mu.Unlock()
	}
	return nil
}

// State returns the current state.
func (v *View[S]) State() State[S] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *View[S]) Snapshot() any {
	return v.State()
}

// Changed signals after every state change. Signals coalesce and the channel
// is closed by Stop; a signal still pending at that point is dropped.
func (v *View[S]) Changed() <-chan struct{} {
	return v.changed
}

func (v *View[S]) follow(stream *docstore.Stream) {
	defer v.wg.Done()
	for {
		select {
		case snap, ok := <-stream.Snapshots():
			if !ok {
				return
			}
			v.apply(snap.Docs, snap.ReadAt)
		case err := <-stream.Errors():
			v.logger.Error("subscription error", "query", v.query.String(), "error", err)
		}
	}
}

func (v *View[S]) apply(docs []docstore.Document, at time.Time) {
	v.applyMu.Lock()
	defer v.applyMu.Unlock()
	v.applyLocked(docs, at)
}

func (v *View[S]) applyLocked(docs []docstore.Document, at time.Time) {
	catalog := v.currentCatalog()
	data, errs := v.project(docs, catalog)
	for _, err := range errs {
		v.logger.Error("skipping document", "error", err)
	}

	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.docs = docs
	v.received = true
	v.state = State[S]{
		Kind:      v.kind,
		Loading:   false,
		Version:   v.state.Version + 1,
		UpdatedAt: at,
		Data:      data,
	}
	v.notify()
	v.mu.Unlock()

	v.logger.Debug("view refreshed", "documents", len(docs))
}

func (v *View[S]) reproject() {
	v.applyMu.Lock()
	defer v.applyMu.Unlock()

	v.mu.RLock()
	docs, received := v.docs, v.received
	v.mu.RUnlock()
	if !received {
		return
	}
	v.applyLocked(docs, time.Now().UTC())
}

// notify must be called with mu held.
func (v *View[S]) notify() {
	if v.stopped {
		return
	}
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

func (v *View[S]) currentCatalog() menu.Catalog {
	if v.catalog == nil {
		return menu.Catalog{}
	}
	catalog, _ := v.catalog.Current()
	return catalog
}
