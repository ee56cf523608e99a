package menu

import (
	"context"
	"fmt"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
)

// Provider keeps the current catalog in sync with the menu collection.
type Provider struct {
	store  docstore.Store
	logger apt.Logger

	mu      sync.RWMutex
	catalog Catalog
	loaded  bool
	ready   chan struct{}
	stream  *docstore.Stream
	wg      sync.WaitGroup

	watchers    map[int]func(Catalog)
	nextWatcher int
}

func NewProvider(store docstore.Store, logger apt.Logger) *Provider {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Provider{
		store:    store,
		logger:   logger.With("component", "menu-provider"),
		ready:    make(chan struct{}),
		watchers: make(map[int]func(Catalog)),
	}
}

// Query is the live query the provider follows.
func Query() docstore.Query {
	return docstore.Collection(Collection).OrderBy("position", docstore.Asc)
}

func (p *Provider) Start(ctx context.Context) error {
	stream, err := p.store.Subscribe(context.WithoutCancel(ctx), Query())
	if err != nil {
		return fmt.Errorf("cannot subscribe to menu: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()

	p.wg.Add(1)
	go p.follow(stream)
	return nil
}

func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream != nil {
		stream.Close()
		p.wg.Wait()
	}
	return nil
}

// Current returns the latest catalog and whether one has been loaded.
func (p *Provider) Current() (Catalog, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.catalog, p.loaded
}

// WaitReady blocks until the first catalog snapshot has been applied.
func (p *Provider) WaitReady(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) follow(stream *docstore.Stream) {
	defer p.wg.Done()
	for {
		select {
		case snap, ok := <-stream.Snapshots():
			if !ok {
				return
			}
			p.apply(snap)
		case err := <-stream.Errors():
			p.logger.Error("menu subscription error", "error", err)
		}
	}
}

func (p *Provider) apply(snap docstore.Snapshot) {
	catalog, errs := FromDocuments(snap.Docs)
	for _, err := range errs {
		p.logger.Error("skipping menu category", "error", err)
	}

	p.mu.Lock()
	p.catalog = catalog
	first := !p.loaded
	p.loaded = true
	watchers := make([]func(Catalog), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()

	if first {
		close(p.ready)
	}
	for _, fn := range watchers {
		fn(catalog)
	}
	p.logger.Debug("menu refreshed", "categories", len(catalog.Categories))
}

// Watch calls fn with every catalog applied after registration. The returned
// func removes the watcher.
func (p *Provider) Watch(fn func(Catalog)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.nextWatcher
	p.nextWatcher++
	p.watchers[key] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, key)
	}
}
