package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/stand/pkg/event"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the document store backed by MongoDB. MongoDB has no live queries,
// so every write is announced on NATS and each announcement re-runs the live
// queries of the written collection in every stand process. Change streams
// can be enabled to also pick up writes made outside stand.
type Store struct {
	base       *BaseRepo
	live       *docstore.LiveQueries
	clock      *docstore.Clock
	publisher  events.Publisher
	subscriber events.Subscriber
	logger     apt.Logger
	source     string

	changeStreams bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

type StoreOption func(*Store)

// WithNotifications announces writes through publisher and listens for the
// announcements of other processes through subscriber. Either may be nil.
func WithNotifications(publisher events.Publisher, subscriber events.Subscriber) StoreOption {
	return func(s *Store) {
		s.publisher = publisher
		s.subscriber = subscriber
	}
}

// WithChangeStreams watches the database for changes. It needs a replica set.
func WithChangeStreams(enabled bool) StoreOption {
	return func(s *Store) { s.changeStreams = enabled }
}

// WithResync re-runs every live query on a fixed interval as a safety net.
func WithResync(interval time.Duration) StoreOption {
	return func(s *Store) {
		s.live = docstore.NewLiveQueries(s.fetch, interval, s.logger)
	}
}

func NewStore(base *BaseRepo, logger apt.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	s := &Store{
		base:   base,
		clock:  docstore.NewClock(nil),
		logger: logger.With("component", "mongo-store"),
		source: uuid.NewString(),
	}
	s.live = docstore.NewLiveQueries(s.fetch, 0, s.logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening for change notifications. The BaseRepo must already
// be started.
func (s *Store) Start(ctx context.Context) error {
	if s.base.GetDatabase() == nil {
		return errors.New("cannot start store: database not connected")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.subscriber != nil {
		if err := s.subscriber.Subscribe(runCtx, event.DocumentsWildcard, s.handleDocumentEvent); err != nil {
			cancel()
			return fmt.Errorf("cannot subscribe to document events: %w", err)
		}
	}

	if s.changeStreams {
		s.wg.Add(1)
		go s.watch(runCtx)
	}
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if id == "" {
		return fmt.Errorf("cannot set document in %s: empty id", collection)
	}
	doc, err := docstore.Resolve(fields, s.clock.Next())
	if err != nil {
		return err
	}
	doc["_id"] = id

	if _, err := s.collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("cannot set %s/%s: %w", collection, id, docstore.ErrAlreadyExists)
		}
		return fmt.Errorf("cannot set %s/%s: %w", collection, id, err)
	}

	s.changed(ctx, event.EventDocumentCreated, collection, id, nil)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	paths := make([]string, 0, len(fields))
	for path := range fields {
		if err := docstore.ValidatePath(path); err != nil {
			return err
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	set, err := docstore.Resolve(fields, s.clock.Next())
	if err != nil {
		return err
	}

	result, err := s.collection(collection).UpdateOne(ctx, updateFilter(id, paths), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("cannot update %s/%s: %w", collection, id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("cannot update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	s.changed(ctx, event.EventDocumentUpdated, collection, id, paths)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Stream, error) {
	return s.live.Subscribe(ctx, q)
}

func (s *Store) fetch(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	filter, sortKeys := queryFilter(q), querySort(q)

	cursor, err := s.collection(q.Collection).Find(ctx, filter, options.Find().SetSort(sortKeys))
	if err != nil {
		return nil, fmt.Errorf("cannot query %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	docs := []docstore.Document{}
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("cannot decode %s document: %w", q.Collection, err)
		}
		id, ok := m["_id"].(string)
		if !ok {
			s.logger.Debug("skipping document with non string id", "collection", q.Collection)
			continue
		}
		delete(m, "_id")
		docs = append(docs, docstore.Document{ID: id, Data: m})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", q.Collection, err)
	}
	return docs, nil
}

// updateFilter matches the document only while the parent of every dotted
// path exists, so $set never creates intermediate documents.
func updateFilter(id string, paths []string) bson.M {
	filter := bson.M{"_id": id}
	for _, path := range paths {
		if i := strings.LastIndex(path, "."); i > 0 {
			filter[path[:i]] = bson.M{"$exists": true}
		}
	}
	return filter
}

func queryFilter(q docstore.Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Filters {
		filter[f.Field] = f.Value
	}
	return filter
}

// querySort always ends with _id so equal keys keep a stable order.
func querySort(q docstore.Query) bson.D {
	keys := bson.D{}
	for _, o := range q.Sort {
		dir := 1
		if o.Direction == docstore.Desc {
			dir = -1
		}
		keys = append(keys, bson.E{Key: o.Field, Value: dir})
	}
	return append(keys, bson.E{Key: "_id", Value: 1})
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.base.GetDatabase().Collection(name)
}

// changed refreshes local live queries and tells other processes.
func (s *Store) changed(ctx context.Context, eventType, collection, id string, fields []string) {
	s.live.Notify(collection)

	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event.DocumentEvent{
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Collection: collection,
		DocumentID: id,
		Fields:     fields,
		Source:     s.source,
	})
	if err != nil {
		s.logger.Error("cannot encode document event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event.DocumentsTopic(collection), payload); err != nil {
		s.logger.Error("cannot publish document event", "collection", collection, "id", id, "error", err)
	}
}

func (s *Store) handleDocumentEvent(ctx context.Context, msg []byte) error {
	var evt event.DocumentEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		return fmt.Errorf("cannot decode document event: %w", err)
	}
	if evt.Source == s.source || evt.Collection == "" {
		return nil
	}
	s.logger.Debug("remote change", "collection", evt.Collection, "id", evt.DocumentID, "type", evt.EventType)
	s.live.Notify(evt.Collection)
	return nil
}

// watch follows the database change stream until ctx is done.
func (s *Store) watch(ctx context.Context) {
	defer s.wg.Done()

	pipeline := mongo.Pipeline{{{Key: "$project", Value: bson.M{"ns": 1, "operationType": 1}}}}
	cs, err := s.base.GetDatabase().Watch(ctx, pipeline)
	if err != nil {
		s.logger.Error("cannot open change stream", "error", err)
		return
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var change struct {
			NS struct {
				Coll string `bson:"coll"`
			} `bson:"ns"`
		}
		if err := cs.Decode(&change); err != nil {
			s.logger.Error("cannot decode change", "error", err)
			continue
		}
		if change.NS.Coll != "" {
			s.live.Notify(change.NS.Coll)
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		s.logger.Error("change stream ended", "error", err)
	}
}
