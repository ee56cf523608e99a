package undo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultWindow is how long a completion can be undone.
const DefaultWindow = 8 * time.Second

// ErrExpired is returned when an affordance was taken, dismissed or timed out.
var ErrExpired = errors.New("undo window expired")

type Kind string

const (
	KindOrder     Kind = "order"
	KindSpecialty Kind = "specialty"
)

// Affordance is an undo offer shown to the operator after a completion.
type Affordance struct {
	Key       string    `json:"key"`
	Kind      Kind      `json:"kind"`
	OrderID   string    `json:"order_id"`
	Number    int       `json:"number,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Window holds open affordances until they are taken or expire.
type Window interface {
	// Open offers a for ttl. Opening an existing key replaces it.
	Open(ctx context.Context, a Affordance, ttl time.Duration) (Affordance, error)
	// Take withdraws the affordance and returns it. Only one caller can take a key.
	Take(ctx context.Context, key string) (Affordance, error)
	// Restore puts back a taken affordance until its original expiry. It does
	// nothing when that expiry has passed or the key was opened again.
	Restore(ctx context.Context, a Affordance) error
	// Dismiss withdraws the affordance without acting on it.
	Dismiss(ctx context.Context, key string) error
	// Pending lists open affordances, soonest to expire first.
	Pending(ctx context.Context) ([]Affordance, error)
}

// Memory is an in-process Window.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]Affordance
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, items: make(map[string]Affordance)}
}

func (m *Memory) Open(ctx context.Context, a Affordance, ttl time.Duration) (Affordance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ExpiresAt = m.now().Add(ttl)
	m.items[a.Key] = a
	return a, nil
}

func (m *Memory) Take(ctx context.Context, key string) (Affordance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[key]
	if !ok {
		return Affordance{}, ErrExpired
	}
	delete(m.items, key)
	if !m.now().Before(a.ExpiresAt) {
		return Affordance{}, ErrExpired
	}
	return a, nil
}

func (m *Memory) Restore(ctx context.Context, a Affordance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.now().Before(a.ExpiresAt) {
		return nil
	}
	if _, ok := m.items[a.Key]; ok {
		return nil
	}
	m.items[a.Key] = a
	return nil
}

func (m *Memory) Dismiss(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Pending(ctx context.Context) ([]Affordance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]Affordance, 0, len(m.items))
	for key, a := range m.items {
		if !now.Before(a.ExpiresAt) {
			delete(m.items, key)
			continue
		}
		out = append(out, a)
	}
	sortByExpiry(out)
	return out, nil
}

func sortByExpiry(items []Affordance) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ExpiresAt.Equal(items[j].ExpiresAt) {
			return items[i].Key < items[j].Key
		}
		return items[i].ExpiresAt.Before(items[j].ExpiresAt)
	})
}
