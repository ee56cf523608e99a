package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidPath   = errors.New("invalid field path")
	ErrClosed        = errors.New("store closed")
)

// Fields is a set of top level values for Create and Set, or of
// dotted field paths for Update (categories.Food.done).
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store clock when the write is applied.
var ServerTimestamp = serverTimestamp{}

// Store is the realtime document store consumed by the order core.
type Store interface {
	// Create stores fields under a store assigned id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Set stores fields under id and fails with ErrAlreadyExists when id is taken.
	Set(ctx context.Context, collection, id string, fields Fields) error
	// Update applies a partial update. Missing documents, and dotted paths
	// whose parent document is missing, yield ErrNotFound and write nothing.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Subscribe opens a live query. The first snapshot is delivered right away.
	Subscribe(ctx context.Context, q Query) (*Stream, error)
}

// Document is one stored record. Data never carries the _id key.
type Document struct {
	ID   string
	Data bson.M
}

// Decode fills v from the document, including its id under _id.
func (d Document) Decode(v any) error {
	raw := make(bson.M, len(d.Data)+1)
	for k, val := range d.Data {
		raw[k] = val
	}
	raw["_id"] = d.ID
	return Unmarshal(raw, v)
}

// Lookup returns the value at a dotted path.
func (d Document) Lookup(path string) (any, bool) {
	return lookup(d.Data, path)
}

// Snapshot is the full ordered result of a live query at one point in time.
type Snapshot struct {
	Collection string
	Docs       []Document
	ReadAt     time.Time
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Filter struct {
	Field string
	Value any
}

type OrderBy struct {
	Field     string
	Direction Direction
}

// Query selects documents of one collection by field equality, in sort order.
// Ties are broken by document id.
type Query struct {
	Collection string
	Filters    []Filter
	Sort       []OrderBy
}

// Collection starts a query over every document of name.
func Collection(name string) Query {
	return Query{Collection: name}
}

// Where adds an equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// OrderBy adds a sort key.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Sort = append(append([]OrderBy(nil), q.Sort...), OrderBy{Field: field, Direction: dir})
	return q
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s==%v", f.Field, f.Value)
	}
	for _, s := range q.Sort {
		dir := "asc"
		if s.Direction == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " by %s %s", s.Field, dir)
	}
	return b.String()
}

// Fetch runs q once: it subscribes, takes the first snapshot and releases the subscription.
func Fetch(ctx context.Context, s Store, q Query) ([]Document, error) {
	stream, err := s.Subscribe(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	select {
	case snap, ok := <-stream.Snapshots():
		if !ok {
			return nil, ErrClosed
		}
		return snap.Docs, nil
	case err := <-stream.Errors():
		return nil, fmt.Errorf("cannot fetch %s: %w", q.Collection, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ValidatePath rejects paths with empty segments or operator prefixes.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" || strings.HasPrefix(seg, "$") {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}

// ValidateKey rejects names that cannot be used as a single path segment.
func ValidateKey(name string) error {
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q contains a dot", ErrInvalidPath, name)
	}
	return ValidatePath(name)
}
