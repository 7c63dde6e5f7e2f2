// Package listing keeps one resource list in sync with the API.
//
// A Controller owns the filter, the current page, loading and error state
// and the last fetched page. Loads may overlap; only the most recently
// started one is allowed to change state. Close cancels the controller's
// request scope and turns every later completion into a no-op.
package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"koperasi/internal/api"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
	"koperasi/internal/pagination"
)

var (
	// ErrSuperseded is returned by a load whose result was discarded because
	// a newer load started after it.
	ErrSuperseded = errors.New("load superseded by a newer request")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("list controller closed")
)

// Fetcher loads one page of a resource.
type Fetcher[T any] func(ctx context.Context, f core.Filter, page int) (pagination.Page[T], error)

// Predicate re-applies a filter to a fetched row.
type Predicate[T any] func(row T, f core.Filter) bool

// Config names the resource for logs and error messages.
type Config struct {
	Resource string
	// Fallback is shown when a failure carries no usable message.
	Fallback string
	Logger   *applog.Logger
}

// View is a consistent snapshot of the controller.
type View[T any] struct {
	Filter  core.Filter
	Page    int
	Loading bool
	Err     string
	Items   []T
	Meta    pagination.Meta
	// Filtered is set whenever a filter is active; Count is then the
	// number of rows left after the client-side pass instead of Meta.Total.
	Filtered bool
	Count    int
}

// Controller is safe for concurrent use.
type Controller[T any] struct {
	fetch  Fetcher[T]
	match  Predicate[T]
	cfg    Config
	logger *applog.Logger

	mu      sync.Mutex
	filter  core.Filter
	page    int
	loading bool
	errMsg  string
	current pagination.Page[T]
	seq     uint64
	closed  bool

	scope  context.Context
	cancel context.CancelFunc
}

// New returns an idle controller on page 1 with no filter.
func New[T any](fetch Fetcher[T], match Predicate[T], cfg Config) *Controller[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if cfg.Fallback == "" {
		cfg.Fallback = "Gagal memuat data"
	}
	scope, cancel := context.WithCancel(context.Background())
	return &Controller[T]{
		fetch:   fetch,
		match:   match,
		cfg:     cfg,
		logger:  logger.WithComponent(applog.ComponentListing),
		page:    1,
		current: pagination.Empty[T](),
		scope:   scope,
		cancel:  cancel,
	}
}

// Load fetches page with the current filter. The result is applied only if
// no other load started meanwhile and the controller is still open;
// otherwise ErrSuperseded or ErrClosed is returned and state is untouched.
func (c *Controller[T]) Load(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	seq := c.seq
	c.page = page
	c.loading = true
	filter := c.filter
	scope := c.scope
	c.mu.Unlock()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(scope, cancel)
	defer stop()

	result, err := c.fetch(reqCtx, filter, page)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || scope.Err() != nil {
		c.logger.DebugContext(ctx, "Discarding completion after close",
			applog.FieldResource, c.cfg.Resource, applog.FieldPage, page)
		return ErrClosed
	}
	if seq != c.seq {
		c.logger.DebugContext(ctx, "Discarding stale completion",
			applog.FieldResource, c.cfg.Resource, applog.FieldPage, page)
		return ErrSuperseded
	}

	c.loading = false
	if err != nil {
		c.errMsg = api.UserMessage(err, c.cfg.Fallback)
		c.current = pagination.Empty[T]()
		c.logger.WarnContext(ctx, "List load failed",
			applog.FieldOperation, applog.OpList,
			applog.FieldResource, c.cfg.Resource,
			applog.FieldPage, page,
			applog.FieldError, err)
		return fmt.Errorf("load %s page %d: %w", c.cfg.Resource, page, err)
	}
	c.errMsg = ""
	c.current = result
	c.logger.DebugContext(ctx, "List loaded",
		applog.FieldOperation, applog.OpList,
		applog.FieldResource, c.cfg.Resource,
		applog.FieldPage, result.Meta.CurrentPage,
		applog.FieldLastPage, result.Meta.LastPage,
		applog.FieldStatus, filter.Status,
		applog.FieldRows, len(result.Items))
	return nil
}

// SetFilter validates f, resets to page 1 and loads.
func (c *Controller[T]) SetFilter(ctx context.Context, f core.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.filter = f
	c.page = 1
	c.mu.Unlock()
	return c.Load(ctx, 1)
}

// SetPage loads page with the current filter.
func (c *Controller[T]) SetPage(ctx context.Context, page int) error {
	return c.Load(ctx, page)
}

// Reload fetches the current page again.
func (c *Controller[T]) Reload(ctx context.Context) error {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	return c.Load(ctx, page)
}

// Filter returns the active filter.
func (c *Controller[T]) Filter() core.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Page returns the last requested page.
func (c *Controller[T]) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Displayed returns the rows of the current page that pass the filter.
func (c *Controller[T]) Displayed() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayedLocked()
}

func (c *Controller[T]) displayedLocked() []T {
	items := c.current.Items
	if !c.filter.Active() || c.match == nil {
		return append([]T(nil), items...)
	}
	return Apply(items, c.filter, c.match)
}

// View returns a snapshot of the controller state.
func (c *Controller[T]) View() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.displayedLocked()
	v := View[T]{
		Filter:   c.filter,
		Page:     c.page,
		Loading:  c.loading,
		Err:      c.errMsg,
		Items:    items,
		Meta:     c.current.Meta,
		Filtered: c.filter.Active(),
		Count:    c.current.Meta.Total,
	}
	if v.Filtered {
		v.Count = len(items)
	}
	return v
}

// Close cancels in-flight loads and ignores their completions.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}

// Apply keeps the rows matching f, preserving order.
func Apply[T any](rows []T, f core.Filter, match Predicate[T]) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if match(r, f) {
			out = append(out, r)
		}
	}
	return out
}
