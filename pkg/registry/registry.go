// Package registry provides scoped bookkeeping for every side effect a
// widget tree attaches while it is alive: event listeners, timers and
// in-flight cancellations. One ReleaseAll call undoes everything, which is
// what lets dialogs and widgets guarantee teardown without scattering
// cleanup lists across controllers.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/CalistaF0X/basetable/pkg/dom"
)

// Record is one tracked listener attachment. It is owned by exactly one
// registry for the lifetime of one dialog or widget instance.
type Record struct {
	Target  *dom.Node
	Kind    dom.EventKind
	Handler dom.Handler
	Once    bool

	token    any
	released bool
}

// Option adjusts a Record before the listener is attached.
type Option func(*Record)

// Once releases the record after its handler fires the first time.
func Once() Option {
	return func(r *Record) { r.Once = true }
}

// Registry tracks attachments in registration order. The zero value is not
// usable; construct with New.
type Registry struct {
	mu       sync.Mutex
	released bool
	records  []*Record
	timers   []*time.Timer
	cancels  []context.CancelFunc
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{}
}

// Track attaches handler to target for the given event kind and records the
// attachment. The returned record can be passed to Release for individual
// removal; ReleaseAll removes it with everything else. After ReleaseAll the
// registry is closed and Track returns nil without attaching: a stray async
// completion cannot reattach into a swept scope.
func (r *Registry) Track(target *dom.Node, kind dom.EventKind, handler dom.Handler, opts ...Option) *Record {
	if target == nil || handler == nil {
		return nil
	}
	rec := &Record{Target: target, Kind: kind, Handler: handler}
	for _, opt := range opts {
		opt(rec)
	}

	wrapped := handler
	if rec.Once {
		wrapped = func(e *dom.Event) {
			r.Release(rec)
			handler(e)
		}
	}

	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	rec.token = target.AddListener(kind, wrapped)
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return rec
}

// Release detaches a single record. Releasing twice, or releasing a record
// whose target has already left the document, is a no-op.
func (r *Registry) Release(rec *Record) {
	if rec == nil {
		return
	}
	r.mu.Lock()
	if rec.released {
		r.mu.Unlock()
		return
	}
	rec.released = true
	for i, candidate := range r.records {
		if candidate == rec {
			r.records = append(r.records[:i], r.records[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	detach(rec)
}

// TrackTimer schedules fn after d and records the timer so ReleaseAll stops
// it if still pending. On a closed registry nothing is scheduled and nil is
// returned.
func (r *Registry) TrackTimer(d time.Duration, fn func()) *time.Timer {
	if fn == nil {
		return nil
	}
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	t := time.AfterFunc(d, fn)
	r.timers = append(r.timers, t)
	r.mu.Unlock()
	return t
}

// TrackCancel records a cancellation for an in-flight asynchronous
// operation. ReleaseAll invokes it; on a closed registry it is invoked
// immediately instead of being recorded.
func (r *Registry) TrackCancel(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		cancel()
		return
	}
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()
}

// Len reports how many listener records are currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ReleaseAll detaches every tracked listener in registration order, stops
// every pending timer and fires every tracked cancellation, then closes the
// registry: later Track and TrackTimer calls are no-ops and later
// TrackCancel fires immediately. It is idempotent and each detach is
// independently guarded, so a target that already left the document cannot
// abort the sweep.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	r.released = true
	records := r.records
	timers := r.timers
	cancels := r.cancels
	r.records = nil
	r.timers = nil
	r.cancels = nil
	for _, rec := range records {
		rec.released = true
	}
	r.mu.Unlock()

	for _, rec := range records {
		detach(rec)
	}
	for _, t := range timers {
		t.Stop()
	}
	for _, cancel := range cancels {
		cancel()
	}
}

func detach(rec *Record) {
	defer func() {
		_ = recover()
	}()
	rec.Target.RemoveListener(rec.token)
}
