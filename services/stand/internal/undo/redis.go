package undo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stand:undo:"

// Redis keeps affordances as expiring keys so every stand process sees the
// same undo offers. Take uses GETDEL, which makes it single-use.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (r *Redis) Open(ctx context.Context, a Affordance, ttl time.Duration) (Affordance, error) {
	a.ExpiresAt = r.now().Add(ttl)
	data, err := json.Marshal(a)
	if err != nil {
		return Affordance{}, fmt.Errorf("cannot encode affordance: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+a.Key, data, ttl).Err(); err != nil {
		return Affordance{}, fmt.Errorf("cannot open undo window %s: %w", a.Key, err)
	}
	return a, nil
}

func (r *Redis) Take(ctx context.Context, key string) (Affordance, error) {
	data, err := r.client.GetDel(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Affordance{}, ErrExpired
	}
	if err != nil {
		return Affordance{}, fmt.Errorf("cannot take undo window %s: %w", key, err)
	}

	var a Affordance
	if err := json.Unmarshal(data, &a); err != nil {
		return Affordance{}, fmt.Errorf("cannot decode affordance %s: %w", key, err)
	}
	return a, nil
}

func (r *Redis) Restore(ctx context.Context, a Affordance) error {
	ttl := a.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cannot encode affordance: %w", err)
	}
	if err := r.client.SetNX(ctx, keyPrefix+a.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cannot restore undo window %s: %w", a.Key, err)
	}
	return nil
}

func (r *Redis) Dismiss(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cannot dismiss undo window %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Pending(ctx context.Context) ([]Affordance, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cannot list undo windows: %w", err)
	}
	if len(keys) == 0 {
		return []Affordance{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot read undo windows: %w", err)
	}

	out := make([]Affordance, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var a Affordance
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	sortByExpiry(out)
	return out, nil
}
