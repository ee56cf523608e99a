package docstore

import (
	"context"
	"errors"

	"github.com/appetiteclub/apt/seed"
)

// SeedsCollection holds one marker per applied seed.
const SeedsCollection = "_seeds"

// SeedTracker records applied seeds in a Store so the in-memory backend can
// be seeded the same way as MongoDB.
type SeedTracker struct {
	store Store
}

func NewSeedTracker(store Store) *SeedTracker {
	return &SeedTracker{store: store}
}

func (t *SeedTracker) HasRun(ctx context.Context, id string) (bool, error) {
	docs, err := Fetch(ctx, t.store, Collection(SeedsCollection))
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if d.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *SeedTracker) MarkRun(ctx context.Context, record seed.Record) error {
	err := t.store.Set(ctx, SeedsCollection, record.ID, Fields{
		"application": record.Application,
		"description": record.Description,
		"appliedAt":   ServerTimestamp,
	})
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}
