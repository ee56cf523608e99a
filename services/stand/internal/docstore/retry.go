package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

const maxRetryDelay = 5 * time.Second

// Retrying retries failed writes with exponential backoff. Create picks the id
// before the first attempt, so a retry after a lost acknowledgement cannot
// store the record twice.
type Retrying struct {
	next     Store
	attempts int
	base     time.Duration
	logger   apt.Logger
	newID    func() string
	sleep    func(context.Context, time.Duration) error
}

func NewRetrying(next Store, attempts int, base time.Duration, logger apt.Logger) *Retrying {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &Retrying{
		next:     next,
		attempts: attempts,
		base:     base,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
		sleep:    sleepCtx,
	}
}

func (r *Retrying) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	id := r.newID()
	if err := r.set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Retrying) Set(ctx context.Context, collection, id string, fields Fields) error {
	return r.set(ctx, collection, id, fields)
}

func (r *Retrying) Update(ctx context.Context, collection, id string, fields Fields) error {
	return r.retry(ctx, "update", collection, func(int) error {
		return r.next.Update(ctx, collection, id, fields)
	})
}

func (r *Retrying) Subscribe(ctx context.Context, q Query) (*Stream, error) {
	return r.next.Subscribe(ctx, q)
}

// set treats ErrAlreadyExists on a later attempt as success: an earlier
// attempt reached the store even though its reply was lost.
func (r *Retrying) set(ctx context.Context, collection, id string, fields Fields) error {
	return r.retry(ctx, "set", collection, func(attempt int) error {
		err := r.next.Set(ctx, collection, id, fields)
		if errors.Is(err, ErrAlreadyExists) && attempt > 1 {
			return nil
		}
		return err
	})
}

func (r *Retrying) retry(ctx context.Context, op, collection string, fn func(attempt int) error) error {
	delay := r.base
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn(attempt)
		if err == nil || permanent(err) {
			return err
		}
		if attempt == r.attempts {
			break
		}

		r.logger.Info("store write failed, retrying",
			"op", op,
			"collection", collection,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if serr := r.sleep(ctx, delay); serr != nil {
			return fmt.Errorf("cannot %s %s: %w", op, collection, serr)
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return fmt.Errorf("cannot %s %s after %d attempts: %w", op, collection, r.attempts, err)
}

func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
