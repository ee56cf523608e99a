package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Clock yields strictly increasing millisecond timestamps so that creation
// order and timestamp order agree even for writes in the same millisecond.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}

type memorySub struct {
	query  Query
	stream *Stream
	last   []Document
}

// Memory is an in-process Store. Every write re-evaluates the live queries of
// the written collection while holding the store lock, so each subscriber sees
// snapshots in write order.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M
	subs        map[int]*memorySub
	nextSub     int

	clock *Clock
	newID func() string
}

type MemoryOption func(*Memory)

// WithClock sets the time source used for ServerTimestamp.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.clock = NewClock(now) }
}

// WithIDs sets the generator of store assigned ids.
func WithIDs(newID func() string) MemoryOption {
	return func(m *Memory) { m.newID = newID }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: make(map[string]map[string]bson.M),
		subs:        make(map[int]*memorySub),
		clock:       NewClock(nil),
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	id := m.newID()
	if err := m.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("cannot set document in %s: empty id", collection)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	if _, ok := coll[id]; ok {
		return fmt.Errorf("cannot set %s/%s: %w", collection, id, ErrAlreadyExists)
	}

	doc, err := canonical(fields, m.clock.Next())
	if err != nil {
		return err
	}
	data, _ := doc.(bson.M)
	if data == nil {
		data = bson.M{}
	}
	delete(data, "_id")

	coll[id] = data
	m.publish(collection)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.collection(collection)[id]
	if !ok {
		return fmt.Errorf("cannot update %s/%s: %w", collection, id, ErrNotFound)
	}

	now := m.clock.Next()
	next := cloneValue(data).(bson.M)
	for path, value := range fields {
		v, err := canonical(value, now)
		if err != nil {
			return err
		}
		if err := assign(next, path, v); err != nil {
			return fmt.Errorf("cannot update %s/%s: %w", collection, id, err)
		}
	}

	m.collections[collection][id] = next
	m.publish(collection)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, q Query) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range q.Filters {
		if err := ValidatePath(f.Field); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.nextSub
	m.nextSub++

	stream := NewStream(ctx, func() { m.unsubscribe(key) })
	sub := &memorySub{query: q, stream: stream}
	m.subs[key] = sub
	m.deliver(sub, true)

	return stream, nil
}

// Subscribers returns the number of open live queries.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Get returns a copy of one document.
func (m *Memory) Get(collection, id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.collections[collection][id]
	if !ok {
		return Document{}, false
	}
	return Document{ID: id, Data: cloneValue(data).(bson.M)}, true
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

func (m *Memory) unsubscribe(key int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, key)
}

func (m *Memory) collection(name string) map[string]bson.M {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[string]bson.M)
		m.collections[name] = coll
	}
	return coll
}

func (m *Memory) publish(collection string) {
	for _, sub := range m.subs {
		if sub.query.Collection == collection {
			m.deliver(sub, false)
		}
	}
}

func (m *Memory) deliver(sub *memorySub, force bool) {
	docs := m.run(sub.query)
	if !force && sameDocs(docs, sub.last) {
		return
	}
	sub.last = docs
	sub.stream.Offer(Snapshot{
		Collection: sub.query.Collection,
		Docs:       cloneDocs(docs),
		ReadAt:     time.Now(),
	})
}

func (m *Memory) run(q Query) []Document {
	var docs []Document
	for id, data := range m.collections[q.Collection] {
		doc := Document{ID: id, Data: data}
		if matches(doc, q.Filters) {
			docs = append(docs, Document{ID: id, Data: cloneValue(data).(bson.M)})
		}
	}
	sortDocs(docs, q.Sort)
	return docs
}
