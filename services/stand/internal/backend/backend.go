// Package backend builds the document store and the undo window selected by
// configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/appetiteclub/stand/pkg"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/mongo"
	"github.com/appetiteclub/stand/services/stand/internal/undo"
	"github.com/redis/go-redis/v9"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	UndoMemory = "memory"
	UndoRedis  = "redis"
)

// Store is the configured document store wrapped in retries. Start and Stop
// bring its connections up and down in order.
type Store struct {
	docstore.Store

	backend string
	memory  *docstore.Memory
	base    *mongo.BaseRepo
	mongo   *mongo.Store
	pub     *pkg.NATSPublisher
	sub     *pkg.NATSSubscriber
	logger  apt.Logger
}

func NewStore(cfg *apt.Config, logger apt.Logger) (*Store, error) {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	s := &Store{
		backend: cfg.GetStringOrDef("store.backend", StoreMemory),
		logger:  logger,
	}

	var next docstore.Store
	switch s.backend {
	case StoreMemory:
		s.memory = docstore.NewMemory()
		next = s.memory
	case StoreMongo:
		s.base = mongo.NewBaseRepo(cfg, logger)
		opts := []mongo.StoreOption{
			mongo.WithChangeStreams(cfg.GetBoolOrFalse("db.mongo.changestreams")),
			mongo.WithResync(cfg.GetDurationOrDef("db.mongo.resync", 0)),
		}
		if natsURL := cfg.GetStringOrDef("nats.url", ""); natsURL != "" {
			pub, err := pkg.NewNATSPublisher(natsURL)
			if err != nil {
				return nil, fmt.Errorf("cannot connect to NATS publisher: %w", err)
			}
			sub, err := pkg.NewNATSSubscriber(natsURL, logger)
			if err != nil {
				_ = pub.Close()
				return nil, fmt.Errorf("cannot connect to NATS subscriber: %w", err)
			}
			s.pub, s.sub = pub, sub
			opts = append(opts, mongo.WithNotifications(pub, sub))
		}
		s.mongo = mongo.NewStore(s.base, logger, opts...)
		next = s.mongo
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.backend)
	}

	attempts := cfg.GetIntOrDef("retry.attempts", 3)
	base := cfg.GetDurationOrDef("retry.base", 0)
	s.Store = docstore.NewRetrying(next, attempts, base, logger)
	return s, nil
}

func (s *Store) Backend() string {
	return s.backend
}

// Memory returns the in-process store, or nil for other backends.
func (s *Store) Memory() *docstore.Memory {
	return s.memory
}

// Base returns the MongoDB connection, or nil for other backends.
func (s *Store) Base() *mongo.BaseRepo {
	return s.base
}

// SeedTracker returns where applied seeds are recorded. The store must be
// started.
func (s *Store) SeedTracker() seed.Tracker {
	if s.base != nil {
		return seed.NewMongoTracker(s.base.GetDatabase(), seed.WithCollectionName(docstore.SeedsCollection))
	}
	return docstore.NewSeedTracker(s)
}

func (s *Store) Start(ctx context.Context) error {
	if s.base == nil {
		return nil
	}
	if err := s.base.Start(ctx); err != nil {
		return err
	}
	if err := s.mongo.Start(ctx); err != nil {
		_ = s.base.Stop(ctx)
		return err
	}
	s.logger.Info("Document store started", "backend", s.backend)
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	if s.base == nil {
		return nil
	}
	if err := s.mongo.Stop(ctx); err != nil {
		s.logger.Error("cannot stop mongo store", "error", err)
	}
	if s.sub != nil {
		_ = s.sub.Close()
	}
	if s.pub != nil {
		_ = s.pub.Close()
	}
	return s.base.Stop(ctx)
}

// Undo is the configured undo window.
type Undo struct {
	undo.Window

	backend string
	client  *redis.Client
	logger  apt.Logger
}

func NewUndo(cfg *apt.Config, logger apt.Logger) (*Undo, error) {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	u := &Undo{
		backend: cfg.GetStringOrDef("undo.backend", UndoMemory),
		logger:  logger,
	}

	switch u.backend {
	case UndoMemory:
		u.Window = undo.NewMemory(nil)
	case UndoRedis:
		u.client = redis.NewClient(&redis.Options{
			Addr: cfg.GetStringOrDef("redis.addr", "localhost:6379"),
			DB:   cfg.GetIntOrDef("redis.db", 0),
		})
		u.Window = undo.NewRedis(u.client)
	default:
		return nil, fmt.Errorf("unknown undo backend %q", u.backend)
	}
	return u, nil
}

func (u *Undo) Start(ctx context.Context) error {
	if u.client == nil {
		return nil
	}
	if err := u.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cannot ping Redis: %w", err)
	}
	u.logger.Info("Undo window started", "backend", u.backend)
	return nil
}

func (u *Undo) Stop(ctx context.Context) error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}
