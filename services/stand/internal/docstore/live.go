package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
)

// FetchFunc runs a query once against a backend.
type FetchFunc func(ctx context.Context, q Query) ([]Document, error)

// LiveQueries turns a one-shot query into live queries for backends without
// native push. Each query re-runs after Notify for its collection, and
// optionally on a resync interval, and only changed results are delivered.
type LiveQueries struct {
	fetch  FetchFunc
	logger apt.Logger
	resync time.Duration

	mu      sync.Mutex
	queries map[int]*liveQuery
	next    int
}

type liveQuery struct {
	query  Query
	stream *Stream
	kick   chan struct{}
}

func NewLiveQueries(fetch FetchFunc, resync time.Duration, logger apt.Logger) *LiveQueries {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &LiveQueries{
		fetch:   fetch,
		logger:  logger,
		resync:  resync,
		queries: make(map[int]*liveQuery),
	}
}

func (l *LiveQueries) Subscribe(ctx context.Context, q Query) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	l.mu.Lock()
	key := l.next
	l.next++
	lq := &liveQuery{query: q, kick: make(chan struct{}, 1)}
	lq.stream = NewStream(ctx, func() {
		cancel()
		l.remove(key)
	})
	l.queries[key] = lq
	l.mu.Unlock()

	lq.kick <- struct{}{}
	go l.run(runCtx, lq)

	return lq.stream, nil
}

// Notify schedules a re-run of every live query over collection.
func (l *LiveQueries) Notify(collection string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lq := range l.queries {
		if lq.query.Collection != collection {
			continue
		}
		select {
		case lq.kick <- struct{}{}:
		default:
		}
	}
}

// Open returns the number of live queries.
func (l *LiveQueries) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queries)
}

func (l *LiveQueries) remove(key int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.queries, key)
}

func (l *LiveQueries) run(ctx context.Context, lq *liveQuery) {
	var tick <-chan time.Time
	if l.resync > 0 {
		ticker := time.NewTicker(l.resync)
		defer ticker.Stop()
		tick = ticker.C
	}

	var last []Document
	delivered := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-lq.kick:
		case <-tick:
		}

		docs, err := l.fetch(ctx, lq.query)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("live query failed", "query", lq.query.String(), "error", err)
			lq.stream.Fail(err)
			continue
		}

		if delivered && sameDocs(docs, last) {
			continue
		}
		delivered = true
		last = docs
		lq.stream.Offer(Snapshot{
			Collection: lq.query.Collection,
			Docs:       cloneDocs(docs),
			ReadAt:     time.Now(),
		})
	}
}
