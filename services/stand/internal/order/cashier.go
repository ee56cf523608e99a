package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDraftNotFound  = errors.New("draft not found")
	ErrNotReviewed    = errors.New("draft has no reviewed order to confirm")
	ErrCatalogLoading = errors.New("catalog is still loading")
	ErrInvalidDraft   = errors.New("draft is not valid")
	ErrSubmitting     = errors.New("draft is being submitted")
)

const (
	// DefaultDraftTTL is how long an untouched draft is kept.
	DefaultDraftTTL = 12 * time.Hour

	sweepInterval = time.Minute
)

// CatalogSource yields the current catalog, if loaded.
type CatalogSource interface {
	Current() (menu.Catalog, bool)
}

// Draft is the state of one cashier screen. Candidate is set between Review
// and Confirm or Cancel; any edit withdraws it. While Submitting the draft
// refuses every change until the store answers.
type Draft struct {
	ID         string            `json:"id"`
	Form       Form              `json:"form"`
	Total      decimal.Decimal   `json:"total"`
	Candidate  *Order            `json:"candidate,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Submitting bool              `json:"submitting,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Details are the non-selection fields of a form. Nil fields are left as they are.
type Details struct {
	Number   *int             `json:"number,omitempty"`
	Zone     *string          `json:"zone,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

// Cashier holds in-progress order drafts and runs the confirmation gate.
// Drafts untouched for longer than the TTL are dropped.
type Cashier struct {
	catalog   CatalogSource
	submitter *Submitter
	logger    apt.Logger
	now       func() time.Time
	ttl       time.Duration

	mu     sync.Mutex
	drafts map[string]*Draft

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type CashierOption func(*Cashier)

// WithDraftTTL sets how long an untouched draft is kept. Zero keeps drafts
// until they are discarded.
func WithDraftTTL(ttl time.Duration) CashierOption {
	return func(c *Cashier) { c.ttl = ttl }
}

func NewCashier(catalog CatalogSource, submitter *Submitter, logger apt.Logger, opts ...CashierOption) *Cashier {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	c := &Cashier{
		catalog:   catalog,
		submitter: submitter,
		logger:    logger.With("component", "cashier"),
		now:       time.Now,
		ttl:       DefaultDraftTTL,
		drafts:    make(map[string]*Draft),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start sweeps expired drafts in the background until Stop.
func (c *Cashier) Start(ctx context.Context) error {
	if c.ttl <= 0 {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Info("expired drafts dropped", "count", n)
				}
			}
		}
	}()
	return nil
}

func (c *Cashier) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

// Sweep drops drafts idle for longer than the TTL and returns how many went.
// Drafts being submitted are kept.
func (c *Cashier) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *Cashier) sweepLocked() int {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := c.now().Add(-c.ttl)
	n := 0
	for id, d := range c.drafts {
		if !d.Submitting && d.UpdatedAt.Before(cutoff) {
			delete(c.drafts, id)
			n++
		}
	}
	return n
}

// Open starts an empty draft over the current catalog.
func (c *Cashier) Open() (Draft, error) {
	catalog, ok := c.catalog.Current()
	if !ok {
		return Draft{}, ErrCatalogLoading
	}

	d := &Draft{
		ID:        uuid.NewString(),
		Form:      Form{Selection: NewSelection(catalog)},
		Total:     decimal.Zero,
		UpdatedAt: c.now(),
	}

	c.mu.Lock()
	c.sweepLocked()
	c.drafts[d.ID] = d
	c.mu.Unlock()
	return copyDraft(d), nil
}

func (c *Cashier) Get(id string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return copyDraft(d), nil
}

func (c *Cashier) List() []Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	out := make([]Draft, 0, len(c.drafts))
	for _, d := range c.drafts {
		out = append(out, copyDraft(d))
	}
	return out
}

func (c *Cashier) Discard(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drafts[id]; !ok {
		return ErrDraftNotFound
	}
	delete(c.drafts, id)
	return nil
}

// SetQuantity changes one selection entry and recomputes the total.
func (c *Cashier) SetQuantity(id, category, item string, quantity int) (Draft, error) {
	return c.edit(id, func(d *Draft) {
		d.Form.Selection.Set(category, item, quantity)
	})
}

// SetDetails changes number, zone, discount or notes.
func (c *Cashier) SetDetails(id string, details Details) (Draft, error) {
	return c.edit(id, func(d *Draft) {
		if details.Number != nil {
			d.Form.Number = *details.Number
		}
		if details.Zone != nil {
			d.Form.Zone = *details.Zone
		}
		if details.Discount != nil {
			d.Form.Discount = *details.Discount
		}
		if details.Notes != nil {
			d.Form.Notes = *details.Notes
		}
	})
}

// Review validates the draft. A valid draft gets a candidate order waiting
// for Confirm or Cancel; an invalid one gets its errors and no candidate.
func (c *Cashier) Review(id string) (Draft, error) {
	catalog, ok := c.catalog.Current()
	if !ok {
		return Draft{}, ErrCatalogLoading
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	if d.Submitting {
		return copyDraft(d), ErrSubmitting
	}

	d.Total = Total(catalog, d.Form.Selection, d.Form.Discount)
	d.Errors = Validate(catalog, d.Form)
	d.Candidate = nil
	d.UpdatedAt = c.now()
	if len(d.Errors) > 0 {
		return copyDraft(d), ErrInvalidDraft
	}

	candidate := MakeOrder(catalog, d.Form)
	d.Candidate = &candidate
	return copyDraft(d), nil
}

// Cancel withdraws the candidate and leaves the form as it was.
func (c *Cashier) Cancel(id string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	if d.Submitting {
		return copyDraft(d), ErrSubmitting
	}
	d.Candidate = nil
	d.UpdatedAt = c.now()
	return copyDraft(d), nil
}

// Confirm submits the reviewed candidate. The candidate is taken from the
// draft before the store is called, so a second Confirm cannot submit it
// again. On success, and also when only the Specialty mirror failed, the
// selection is reset to zero while number, zone, discount and notes are kept.
// Any other failure puts the candidate back and leaves the draft untouched.
func (c *Cashier) Confirm(ctx context.Context, id string) (string, Draft, error) {
	c.mu.Lock()
	d, ok := c.drafts[id]
	if !ok {
		c.mu.Unlock()
		return "", Draft{}, ErrDraftNotFound
	}
	if d.Submitting {
		out := copyDraft(d)
		c.mu.Unlock()
		return "", out, ErrSubmitting
	}
	if d.Candidate == nil {
		out := copyDraft(d)
		c.mu.Unlock()
		return "", out, ErrNotReviewed
	}
	candidate := *d.Candidate
	d.Candidate = nil
	d.Submitting = true
	c.mu.Unlock()

	orderID, err := c.submitter.Submit(ctx, candidate)

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok = c.drafts[id]
	if err != nil && !errors.Is(err, ErrSpecialtyOrphaned) {
		c.logger.Error("cannot submit order", "draft", id, "error", err)
		if !ok {
			return "", Draft{}, fmt.Errorf("cannot submit order: %w", err)
		}
		d.Submitting = false
		d.Candidate = &candidate
		return "", copyDraft(d), fmt.Errorf("cannot submit order: %w", err)
	}
	if !ok {
		return orderID, Draft{}, err
	}
	d.Submitting = false
	d.Form.Selection.Reset()
	d.Errors = nil
	d.Total = decimal.Zero.Sub(d.Form.Discount)
	d.UpdatedAt = c.now()
	return orderID, copyDraft(d), err
}

func (c *Cashier) edit(id string, fn func(d *Draft)) (Draft, error) {
	catalog, _ := c.catalog.Current()

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	if d.Submitting {
		return copyDraft(d), ErrSubmitting
	}
	fn(d)
	d.Candidate = nil
	d.Errors = nil
	d.Total = Total(catalog, d.Form.Selection, d.Form.Discount)
	d.UpdatedAt = c.now()
	return copyDraft(d), nil
}

func copyDraft(d *Draft) Draft {
	out := *d
	out.Form.Selection = d.Form.Selection.Clone()
	if d.Candidate != nil {
		candidate := *d.Candidate
		out.Candidate = &candidate
	}
	if d.Errors != nil {
		out.Errors = append([]ValidationError(nil), d.Errors...)
	}
	return out
}
