// Package refcache resolves named option lists exactly once per table
// instance, sharing the result across every field and dialog that references
// the same name. Concurrent requests for one name collapse onto a single
// provider call.
package refcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/CalistaF0X/basetable/internal/envelope"
)

// State is the lifecycle of one cache entry.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// ProviderFunc loads the raw option payload for a reference name. The result
// is normalised through the shared envelope rules.
type ProviderFunc func(ctx context.Context, name string) (any, error)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger routes provider failures to the given structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorHook installs a host callback invoked on provider failure, after
// the failure has been logged and the entry settled.
func WithErrorHook(hook func(name string, err error)) Option {
	return func(c *Cache) { c.errorHook = hook }
}

type entry struct {
	state   State
	options []any
	err     error
	gen     uint64
}

// Cache memoises reference option lists. Safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	group     singleflight.Group
	entries   map[string]*entry
	sources   map[string]any
	gen       uint64
	logger    *slog.Logger
	errorHook func(string, error)
}

// New constructs an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		sources: make(map[string]any),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register binds a reference name to its source: a ProviderFunc, a plain
// func(ctx) (any, error), or a pre-resolved static value. Later
// registrations replace earlier ones for the same name.
func (c *Cache) Register(name string, source any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = source
}

// State reports the lifecycle state for a reference name.
func (c *Cache) State(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		return e.state
	}
	return StateIdle
}

// EnsureLoaded resolves the option list for name. A loaded entry resolves
// immediately; a loading entry joins the in-flight call; otherwise exactly
// one provider invocation runs and every concurrent caller shares its
// outcome. Provider failure settles the entry with an empty loaded list so
// later calls do not retry in a loop; the error is logged, handed to the
// error hook, and returned to the caller. A load that ends in
// context.Canceled does not settle anything: the entry returns to idle and
// the next caller fetches.
func (c *Cache) EnsureLoaded(ctx context.Context, name string) ([]any, error) {
	c.mu.Lock()
	if e, ok := c.entries[name]; ok && (e.state == StateLoaded || e.state == StateFailed) {
		// A settled failure resolves with its empty list; the error was
		// already surfaced when the load completed.
		options := e.options
		c.mu.Unlock()
		return options, nil
	}
	e, ok := c.entries[name]
	if !ok {
		e = &entry{state: StateIdle}
		c.entries[name] = e
	}
	e.state = StateLoading
	e.gen = c.gen
	startGen := c.gen
	source, haveSource := c.sources[name]
	c.mu.Unlock()

	result, err, _ := c.group.Do(name, func() (any, error) {
		if !haveSource {
			return nil, fmt.Errorf("refcache: no provider registered for %q", name)
		}
		raw, err := resolveSource(ctx, name, source)
		if err != nil {
			return nil, err
		}
		options, err := envelope.List(raw)
		if err != nil {
			return nil, fmt.Errorf("refcache: normalise %q: %w", name, err)
		}
		return options, nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != startGen {
		// Cache was cleared while the load was in flight; discard the
		// stale result and report what the caller saw.
		if err != nil {
			return nil, err
		}
		options, _ := result.([]any)
		return options, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// A cancelled load is not a provider verdict: reset to idle so
			// the next caller fetches instead of inheriting an empty list.
			delete(c.entries, name)
			c.group.Forget(name)
			return nil, err
		}
		e.state = StateFailed
		e.options = []any{}
		e.err = err
		c.logger.Error("reference load failed", "reference", name, "error", err)
		if c.errorHook != nil {
			hook := c.errorHook
			go hook(name, err)
		}
		return e.options, err
	}
	options, _ := result.([]any)
	e.state = StateLoaded
	e.options = options
	e.err = nil
	return options, nil
}

// Clear resets every entry to idle; the next EnsureLoaded re-fetches.
// Results from loads still in flight at the time of the call are discarded.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for name := range c.entries {
		c.group.Forget(name)
	}
	c.entries = make(map[string]*entry)
}

func resolveSource(ctx context.Context, name string, source any) (any, error) {
	switch fn := source.(type) {
	case ProviderFunc:
		return fn(ctx, name)
	case func(ctx context.Context, name string) (any, error):
		return fn(ctx, name)
	case func(ctx context.Context) (any, error):
		return fn(ctx)
	case func() (any, error):
		return fn()
	default:
		// Pre-resolved value.
		return source, nil
	}
}
