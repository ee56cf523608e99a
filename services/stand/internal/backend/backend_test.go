package backend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/undo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(values map[string]any) *apt.Config {
	cfg := apt.NewConfig()
	cfg.MergeFlat(values)
	return cfg
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		backend string
		wantErr bool
	}{
		{name: "defaultsToMemory", values: map[string]any{}, backend: StoreMemory},
		{name: "explicitMemory", values: map[string]any{"store.backend": "memory"}, backend: StoreMemory},
		{name: "mongoWithoutNATS", values: map[string]any{"store.backend": "mongo", "nats.url": ""}, backend: StoreMongo},
		{name: "unknownBackend", values: map[string]any{"store.backend": "sqlite"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(newConfig(tt.values), nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, s.Backend())
			assert.Equal(t, tt.backend == StoreMemory, s.Memory() != nil)
			assert.Equal(t, tt.backend == StoreMongo, s.Base() != nil)
		})
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s, err := NewStore(newConfig(nil), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	id, err := s.Create(ctx, "orders", docstore.Fields{"number": 7})
	require.NoError(t, err)

	docs, err := docstore.Fetch(ctx, s, docstore.Collection("orders"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
}

func TestMemorySeedTracker(t *testing.T) {
	s, err := NewStore(newConfig(nil), nil)
	require.NoError(t, err)
	ctx := context.Background()

	tracker := s.SeedTracker()
	assert.IsType(t, &docstore.SeedTracker{}, tracker)

	require.NoError(t, tracker.MarkRun(ctx, seed.Record{ID: "s1", Application: "stand"}))
	ran, err := tracker.HasRun(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestNewUndo(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		u, err := NewUndo(newConfig(nil), nil)
		require.NoError(t, err)
		assert.IsType(t, &undo.Memory{}, u.Window)
		assert.NoError(t, u.Start(context.Background()))
		assert.NoError(t, u.Stop(context.Background()))
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		u, err := NewUndo(newConfig(map[string]any{
			"undo.backend": "redis",
			"redis.addr":   mr.Addr(),
		}), nil)
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, u.Start(ctx))
		defer u.Stop(ctx)

		_, err = u.Open(ctx, undo.Affordance{Key: "o1", Kind: undo.KindOrder, OrderID: "o1"}, time.Second)
		require.NoError(t, err)
		pending, err := u.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "o1", pending[0].Key)
	})

	t.Run("redisUnreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		u, err := NewUndo(newConfig(map[string]any{
			"undo.backend": "redis",
			"redis.addr":   addr,
		}), nil)
		require.NoError(t, err)
		assert.Error(t, u.Start(context.Background()))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewUndo(newConfig(map[string]any{"undo.backend": "etcd"}), nil)
		assert.Error(t, err)
	})
}
