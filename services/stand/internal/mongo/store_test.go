package mongo

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appetiteclub/stand/pkg/event"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestQueryFilter(t *testing.T) {
	tests := []struct {
		name  string
		query docstore.Query
		want  bson.M
	}{
		{
			name:  "noFilters",
			query: docstore.Collection("orders"),
			want:  bson.M{},
		},
		{
			name:  "equalityFilters",
			query: docstore.Collection("orders").Where("completed", false).Where("specialtyOnly", false),
			want:  bson.M{"completed": false, "specialtyOnly": false},
		},
		{
			name:  "dottedPath",
			query: docstore.Collection("orders").Where("categories.Food.done", true),
			want:  bson.M{"categories.Food.done": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queryFilter(tt.query))
		})
	}
}

func TestUpdateFilter(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  bson.M
	}{
		{
			name:  "topLevel",
			paths: []string{"completed"},
			want:  bson.M{"_id": "o1"},
		},
		{
			name:  "categoryMustExist",
			paths: []string{"categories.Food.done"},
			want:  bson.M{"_id": "o1", "categories.Food": bson.M{"$exists": true}},
		},
		{
			name:  "mixed",
			paths: []string{"categories.Drinks.done", "completed"},
			want:  bson.M{"_id": "o1", "categories.Drinks": bson.M{"$exists": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, updateFilter("o1", tt.paths))
		})
	}
}

func TestQuerySort(t *testing.T) {
	tests := []struct {
		name  string
		query docstore.Query
		want  bson.D
	}{
		{
			name:  "idOnly",
			query: docstore.Collection("orders"),
			want:  bson.D{{Key: "_id", Value: 1}},
		},
		{
			name:  "ascendingTimestamp",
			query: docstore.Collection("orders").OrderBy("timestamp", docstore.Asc),
			want:  bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}},
		},
		{
			name:  "mixedDirections",
			query: docstore.Collection("orders").OrderBy("zone", docstore.Desc).OrderBy("timestamp", docstore.Asc),
			want:  bson.D{{Key: "zone", Value: -1}, {Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, querySort(tt.query))
		})
	}
}

func TestHandleDocumentEvent(t *testing.T) {
	var fetches atomic.Int32
	s := NewStore(NewBaseRepo(nil, nil), nil)
	s.live = docstore.NewLiveQueries(func(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
		n := fetches.Add(1)
		return []docstore.Document{{ID: "a", Data: bson.M{"n": n}}}, nil
	}, 0, nil)

	stream, err := s.Subscribe(context.Background(), docstore.Collection("orders"))
	require.NoError(t, err)
	defer stream.Close()

	next := func() docstore.Snapshot {
		select {
		case snap := <-stream.Snapshots():
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
			return docstore.Snapshot{}
		}
	}
	next()

	msg := func(source, collection string) []byte {
		data, err := json.Marshal(event.DocumentEvent{
			EventType:  event.EventDocumentUpdated,
			Collection: collection,
			DocumentID: "a",
			Source:     source,
		})
		require.NoError(t, err)
		return data
	}

	t.Run("ownEventsIgnored", func(t *testing.T) {
		require.NoError(t, s.handleDocumentEvent(context.Background(), msg(s.source, "orders")))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("otherCollectionIgnored", func(t *testing.T) {
		require.NoError(t, s.handleDocumentEvent(context.Background(), msg("other", "specialty")))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("remoteEventRefreshes", func(t *testing.T) {
		require.NoError(t, s.handleDocumentEvent(context.Background(), msg("other", "orders")))
		snap := next()
		require.Len(t, snap.Docs, 1)
		assert.Equal(t, int32(2), snap.Docs[0].Data["n"])
	})

	t.Run("invalidPayload", func(t *testing.T) {
		assert.Error(t, s.handleDocumentEvent(context.Background(), []byte("{")))
	})
}

type recordingPublisher struct {
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, msg)
	return nil
}

func TestChangedPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(NewBaseRepo(nil, nil), nil, WithNotifications(pub, nil))

	s.changed(context.Background(), event.EventDocumentUpdated, "orders", "o1", []string{"completed"})

	require.Len(t, pub.topics, 1)
	assert.Equal(t, "stand.docs.orders", pub.topics[0])

	var evt event.DocumentEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &evt))
	assert.Equal(t, "o1", evt.DocumentID)
	assert.Equal(t, s.source, evt.Source)
	assert.Equal(t, []string{"completed"}, evt.Fields)
}
