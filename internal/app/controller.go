package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"drivingschool-console/internal/domain"
	"drivingschool-console/internal/listing"
)

const defaultSuccessTTL = 3 * time.Second

type fetchState int

const (
	stateIdle fetchState = iota
	stateLoading
	stateLoaded
	stateErrored
)

// Controller is the list engine behind one admin screen: it owns the working collection,
// the query and the page, and turns user actions into fetches and writes.
// It is safe for concurrent use; network calls run outside the lock.
type Controller struct {
	resource   domain.Resource
	haystack   listing.Haystack
	remote     Remote
	session    SessionContext
	labels     LabelSource
	snapshots  SnapshotStore
	successTTL time.Duration
	afterFunc  func(time.Duration, func()) *time.Timer
	goFunc     func(func())

	mu          sync.Mutex
	state       fetchState
	seq         uint64
	collection  []domain.Record
	labelMap    map[string]string
	labelSeq    uint64
	query       string
	page        int
	err         *domain.Error
	fieldErrors map[string][]string
	success     string
	successSeq  uint64
	pending     string
	creating    bool
	saving      bool
	deleting    bool
	loaded      bool
	stale       bool
	redirecting bool
	subscribers map[chan domain.View]struct{}
}

func NewController(resource domain.Resource, deps Deps) *Controller {
	ttl := deps.SuccessTTL
	if ttl <= 0 {
		ttl = defaultSuccessTTL
	}
	if resource.PageSize < 1 {
		resource.PageSize = 25
	}
	return &Controller{
		resource:    resource,
		haystack:    listing.Fields(resource.SearchFields...),
		remote:      deps.Remote,
		session:     deps.Session,
		labels:      deps.Labels,
		snapshots:   deps.Snapshots,
		successTTL:  ttl,
		afterFunc:   time.AfterFunc,
		goFunc:      func(f func()) { go f() },
		page:        1,
		subscribers: make(map[chan domain.View]struct{}),
	}
}

// Resource is the screen's configuration.
func (c *Controller) Resource() domain.Resource {
	return c.resource
}

// View returns the current view model.
func (c *Controller) View() domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Search changes the query and re-derives the page locally.
func (c *Controller) Search(query string) domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query
	return c.broadcastLocked()
}

// GoToPage moves to page n, clamped to the available pages.
func (c *Controller) GoToPage(n int) domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = n
	return c.broadcastLocked()
}

// Refresh re-fetches the working collection. Responses of superseded fetches are dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.state = stateLoading
	c.broadcastLocked()
	c.mu.Unlock()

	return c.fetch(ctx, seq)
}

func (c *Controller) fetch(ctx context.Context, seq uint64) error {
	records, err := c.list(ctx)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		de := domain.AsError(err)
		c.state = stateErrored
		c.err = de
		expired := errors.Is(de, domain.ErrSessionExpired)
		if expired {
			c.collection = nil
			c.loaded = false
			c.stale = false
			c.redirecting = true
		}
		c.broadcastLocked()
		c.mu.Unlock()

		log.Printf("fetch %s: %v", c.resource.Endpoint, err)
		if expired {
			c.session.OnUnauthorized(ctx)
		}
		return de
	}

	c.state = stateLoaded
	c.loaded = true
	c.collection = records
	c.err = nil
	c.stale = false
	c.redirecting = false
	c.broadcastLocked()
	c.mu.Unlock()

	if c.snapshots != nil {
		if err := c.snapshots.Save(ctx, c.resource.Name, records); err != nil {
			log.Printf("save snapshot %s: %v", c.resource.Name, err)
		}
	}
	if c.resource.Lookup != nil && c.labels != nil {
		lookupCtx := context.WithoutCancel(ctx)
		c.goFunc(func() { c.enrich(lookupCtx, seq) })
	}
	return nil
}

func (c *Controller) list(ctx context.Context) ([]domain.Record, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.remote.List(ctx, token, c.resource.Endpoint)
}

// Enrich loads the lookup labels. It is optional enrichment: a failure keeps the fallback
// labels and is only logged. Fetches run it in the background; callers that render once
// may run it themselves.
func (c *Controller) Enrich(ctx context.Context) {
	c.mu.Lock()
	seq := c.seq
	c.mu.Unlock()
	c.enrich(ctx, seq)
}

// enrich applies the labels loaded for fetch seq unless labels of a later fetch landed first.
func (c *Controller) enrich(ctx context.Context, seq uint64) {
	if c.resource.Lookup == nil || c.labels == nil {
		return
	}
	labels, err := c.labels.Labels(WithSession(ctx, c.session), *c.resource.Lookup)
	if err != nil {
		log.Printf("lookup %s for %s: %v", c.resource.Lookup.Endpoint, c.resource.Name, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.labelSeq {
		return
	}
	c.labelSeq = seq
	c.labelMap = labels
	c.broadcastLocked()
}

// Create validates fields locally, posts them and refreshes from page 1.
func (c *Controller) Create(ctx context.Context, fields domain.Record) error {
	return c.mutate(ctx, mutation{
		busy:    func() *bool { return &c.creating },
		fields:  fields,
		require: c.resource.RequiredFor(true),
		notice:  "Created successfully",
		call: func(token string) (string, error) {
			return c.remote.Create(ctx, token, c.resource.Endpoint, fields)
		},
		onSuccess: func() { c.page = 1 },
	})
}

// Update validates fields locally and puts them to the record.
func (c *Controller) Update(ctx context.Context, id string, fields domain.Record) error {
	return c.mutate(ctx, mutation{
		busy:    func() *bool { return &c.saving },
		fields:  fields,
		require: c.resource.RequiredFor(false),
		notice:  "Updated successfully",
		call: func(token string) (string, error) {
			return c.remote.Update(ctx, token, c.resource.Endpoint, id, fields)
		},
	})
}

// RequestDelete asks for confirmation before deleting id.
func (c *Controller) RequestDelete(id string) domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = id
	return c.broadcastLocked()
}

// CancelDelete drops the pending confirmation.
func (c *Controller) CancelDelete() domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = ""
	return c.broadcastLocked()
}

// ConfirmDelete deletes the record awaiting confirmation and refreshes, keeping the page.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	id := c.pending
	c.mu.Unlock()
	if id == "" {
		return domain.ErrNoPendingDelete
	}
	return c.mutate(ctx, mutation{
		busy:   func() *bool { return &c.deleting },
		notice: "Deleted successfully",
		call: func(token string) (string, error) {
			return c.remote.Delete(ctx, token, c.resource.Endpoint, id)
		},
		onDone: func() {
			if c.pending == id {
				c.pending = ""
			}
		},
	})
}

// DismissError clears the error banner and field errors.
func (c *Controller) DismissError() domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = nil
	c.fieldErrors = nil
	return c.broadcastLocked()
}

// DismissSuccess clears the success notice before it expires.
func (c *Controller) DismissSuccess() domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.success = ""
	return c.broadcastLocked()
}

type mutation struct {
	busy      func() *bool
	fields    domain.Record
	require   []string
	notice    string
	call      func(token string) (string, error)
	onSuccess func()
	onDone    func()
}

// mutate runs one write. The working collection only changes through the refresh that
// follows a confirmed write. The refresh outcome lands in the view, not in the result.
func (c *Controller) mutate(ctx context.Context, m mutation) error {
	c.mu.Lock()
	busy := m.busy()
	if *busy {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	if fieldErrs := validateRequired(m.fields, m.require); fieldErrs != nil {
		verr := domain.NewValidationError(fieldErrs)
		c.err = verr
		c.fieldErrors = fieldErrs
		c.broadcastLocked()
		c.mu.Unlock()
		return verr
	}
	*busy = true
	c.fieldErrors = nil
	c.broadcastLocked()
	c.mu.Unlock()

	message, err := c.write(ctx, m.call)

	c.mu.Lock()
	*busy = false
	if m.onDone != nil {
		m.onDone()
	}
	if err != nil {
		de := domain.AsError(err)
		c.err = de
		c.fieldErrors = de.Fields
		expired := errors.Is(de, domain.ErrSessionExpired)
		if expired {
			c.redirecting = true
		}
		c.broadcastLocked()
		c.mu.Unlock()

		log.Printf("write %s: %v", c.resource.Endpoint, err)
		if expired {
			c.session.OnUnauthorized(ctx)
		}
		return de
	}
	if m.onSuccess != nil {
		m.onSuccess()
	}
	c.err = nil
	if message == "" {
		message = m.notice
	}
	c.setSuccessLocked(message)
	c.mu.Unlock()

	if c.labels != nil {
		c.labels.Invalidate(ctx, c.resource.Endpoint)
	}
	_ = c.Refresh(ctx)
	return nil
}

func (c *Controller) write(ctx context.Context, call func(string) (string, error)) (string, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return "", err
	}
	return call(token)
}

func (c *Controller) setSuccessLocked(message string) {
	c.success = message
	c.successSeq++
	seq := c.successSeq
	c.afterFunc(c.successTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.successSeq == seq && c.success != "" {
			c.success = ""
			c.broadcastLocked()
		}
	})
}

// seed shows a persisted collection until the first fetch lands.
func (c *Controller) seed(records []domain.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.collection = records
	c.stale = true
	c.broadcastLocked()
}

// Subscribe returns a channel of view updates, starting with the current view.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *Controller) Subscribe() (<-chan domain.View, func()) {
	ch := make(chan domain.View, 8)

	// The initial view goes in under the lock so no broadcast can overtake it.
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Idle reports whether nobody watches the screen.
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers) == 0
}

func (c *Controller) broadcastLocked() domain.View {
	view := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- view:
		default:
			// slow subscriber: replace its oldest pending view
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	return view
}

// snapshotLocked derives the view and stores the corrected page back.
func (c *Controller) snapshotLocked() domain.View {
	records, page := listing.Window(c.displayedLocked(), c.query, c.haystack, c.page, c.resource.PageSize)
	c.page = page.CurrentPage

	view := domain.View{
		Resource:       c.resource.Name,
		Records:        records,
		Query:          c.query,
		CurrentPage:    page.CurrentPage,
		PageSize:       page.PageSize,
		TotalPages:     page.TotalPages,
		TotalItems:     page.TotalItems,
		Loading:        c.state == stateLoading,
		FieldErrors:    copyFieldErrors(c.fieldErrors),
		SuccessMessage: c.success,
		PendingDelete:  c.pending,
		Creating:       c.creating,
		Saving:         c.saving,
		Deleting:       c.deleting,
		Stale:          c.stale,
		Redirecting:    c.redirecting,
	}
	if c.err != nil {
		view.Error = &domain.ViewError{Kind: c.err.Kind, Message: c.err.Message}
	}
	if page.TotalItems == 0 && (c.loaded || c.stale) {
		view.Empty = true
		view.EmptyMessage = c.emptyMessageLocked()
	}
	return view
}

// displayedLocked decorates the working collection with lookup labels. The collection
// itself is never written to.
func (c *Controller) displayedLocked() []domain.Record {
	lookup := c.resource.Lookup
	if lookup == nil {
		return c.collection
	}
	out := make([]domain.Record, len(c.collection))
	for i, r := range c.collection {
		copied := r.Clone()
		id := r.String(lookup.Key)
		label, ok := c.labelMap[id]
		if !ok || label == "" {
			label = lookup.Fallback(id)
		}
		copied[lookup.LabelKey()] = label
		out[i] = copied
	}
	return out
}

func (c *Controller) emptyMessageLocked() string {
	title := strings.ToLower(c.resource.Title)
	if strings.TrimSpace(c.query) != "" {
		return fmt.Sprintf("No %s match %q", title, strings.TrimSpace(c.query))
	}
	return fmt.Sprintf("No %s yet", title)
}

func copyFieldErrors(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
