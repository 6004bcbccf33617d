// Package dialog runs modal edit/add sessions over a document. A session
// owns exactly one resource registry; closing the dialog, however it ends,
// releases every listener, timer and in-flight operation the form attached.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CalistaF0X/basetable/internal/envelope"
	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/fields"
	"github.com/CalistaF0X/basetable/pkg/registry"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

// State is the session lifecycle.
type State string

const (
	StateOpening    State = "opening"
	StateOpen       State = "open"
	StateSubmitting State = "submitting"
	StateCancelling State = "cancelling"
	StateClosed     State = "closed"
)

// ErrCancelled is delivered to Wait when the session ends without a saved
// row.
var ErrCancelled = errors.New("dialog: cancelled")

// SaveFunc is a host persistence callback. It receives the flat payload and
// returns the stored record (any envelope shape the backend uses).
type SaveFunc func(ctx context.Context, payload map[string]any) (any, error)

// Option configures a session.
type Option func(*Session)

// WithTitle sets the dialog heading.
func WithTitle(title string) Option {
	return func(s *Session) { s.title = title }
}

// WithFields sets the form schema.
func WithFields(defs []schema.Field) Option {
	return func(s *Session) { s.fields = defs }
}

// WithItem sets the record being edited. A nil item means an add form.
func WithItem(item map[string]any) Option {
	return func(s *Session) { s.item = item }
}

// WithIDField names the identifier field deciding create-vs-update.
// Default "id".
func WithIDField(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.idField = name
		}
	}
}

// WithCreate sets the callback used when the item carries no identifier.
func WithCreate(fn SaveFunc) Option {
	return func(s *Session) { s.create = fn }
}

// WithUpdate sets the callback used when the item carries an identifier.
func WithUpdate(fn SaveFunc) Option {
	return func(s *Session) { s.update = fn }
}

// WithLogger routes session errors to the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAlert installs the host's user-facing error surface.
func WithAlert(fn func(error)) Option {
	return func(s *Session) { s.alert = fn }
}

// Session is one open modal. All methods are safe for concurrent use;
// resolution happens exactly once no matter how save, cancel and teardown
// interleave.
type Session struct {
	mu       sync.Mutex
	state    State
	resolved bool

	title   string
	fields  []schema.Field
	item    map[string]any
	idField string
	create  SaveFunc
	update  SaveFunc
	logger  *slog.Logger
	alert   func(error)

	doc       *dom.Document
	overlay   *dom.Node
	panel     *dom.Node
	form      *fields.Map
	reg       *registry.Registry
	prevFocus *dom.Node

	done chan struct{}
	row  map[string]any
	err  error
}

// Open builds the modal, mounts it on the document and installs the focus
// trap. The previously focused node is remembered and restored on close.
func Open(doc *dom.Document, factory *fields.Factory, opts ...Option) (*Session, error) {
	if doc == nil {
		return nil, errors.New("dialog: nil document")
	}
	if factory == nil {
		return nil, errors.New("dialog: nil field factory")
	}

	s := &Session{
		state:   StateOpening,
		idField: "id",
		logger:  slog.Default(),
		doc:     doc,
		reg:     registry.New(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	formNode, formMap, err := factory.Build(s.reg, s.fields, s.item)
	if err != nil {
		s.reg.ReleaseAll()
		return nil, fmt.Errorf("dialog: build form: %w", err)
	}
	s.form = formMap
	s.prevFocus = doc.Focused()

	s.overlay = dom.NewNode(dom.KindOverlay)
	s.overlay.AddClass("modal-overlay")
	s.panel = s.overlay.Append(dom.NewNode(dom.KindContainer))
	s.panel.AddClass("modal")

	heading := s.panel.Append(dom.NewNode(dom.KindLabel))
	heading.Text = s.title

	s.panel.Append(formNode)

	buttons := s.panel.Append(dom.NewNode(dom.KindContainer))
	buttons.AddClass("modal-buttons")
	save := buttons.Append(dom.NewNode(dom.KindButton))
	save.Text = "Save"
	save.SetAttr("data-action", "save")
	cancel := buttons.Append(dom.NewNode(dom.KindButton))
	cancel.Text = "Cancel"
	cancel.SetAttr("data-action", "cancel")

	doc.Root().Append(s.overlay)

	s.reg.Track(save, dom.EventClick, func(e *dom.Event) {
		s.Submit(context.Background())
	})
	s.reg.Track(cancel, dom.EventClick, func(e *dom.Event) {
		s.Cancel()
	})
	// A click that lands on the backdrop itself, not the panel, cancels.
	s.reg.Track(s.overlay, dom.EventClick, func(e *dom.Event) {
		if e.Target == s.overlay {
			s.Cancel()
		}
	})
	s.reg.Track(s.overlay, dom.EventKeyDown, func(e *dom.Event) {
		switch e.Key {
		case dom.KeyEscape:
			s.Cancel()
		case dom.KeyTab:
			e.PreventDefault()
			s.cycleFocus(e.Shift)
		}
	})

	if focusables := dom.FocusablesWithin(s.panel); len(focusables) > 0 {
		doc.SetFocus(focusables[0])
	}

	s.mu.Lock()
	s.state = StateOpen
	s.mu.Unlock()
	return s, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Node returns the mounted overlay node.
func (s *Session) Node() *dom.Node { return s.overlay }

// Form returns the controller map for the session's form.
func (s *Session) Form() *fields.Map { return s.form }

// cycleFocus moves focus to the next (or previous) focusable control inside
// the panel, wrapping at the ends. The trap never lets focus leave the
// modal.
func (s *Session) cycleFocus(backwards bool) {
	focusables := dom.FocusablesWithin(s.panel)
	if len(focusables) == 0 {
		return
	}
	current := -1
	for i, n := range focusables {
		if n == s.doc.Focused() {
			current = i
			break
		}
	}
	var next int
	switch {
	case current == -1:
		next = 0
	case backwards:
		next = (current - 1 + len(focusables)) % len(focusables)
	default:
		next = (current + 1) % len(focusables)
	}
	s.doc.SetFocus(focusables[next])
}

// focusControl moves focus to ctrl's control node. Composite controls
// (image drop zones, key/value editors) expose a container there, which
// cannot itself hold focus; fall back to the first focusable descendant of
// the control, then of the whole field wrapper.
func (s *Session) focusControl(ctrl fields.Controller) {
	control := ctrl.Control()
	if control != nil && control.Focusable() {
		s.doc.SetFocus(control)
		return
	}
	if focusables := dom.FocusablesWithin(control); len(focusables) > 0 {
		s.doc.SetFocus(focusables[0])
		return
	}
	if focusables := dom.FocusablesWithin(ctrl.Node()); len(focusables) > 0 {
		s.doc.SetFocus(focusables[0])
	}
}

// Submit validates the form and runs the matching host callback. Re-entrant
// calls while a save is in flight are ignored. Validation failure keeps the
// dialog open with focus on the first failing control.
func (s *Session) Submit(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	if failed := s.form.Validate(); len(failed) > 0 {
		s.mu.Lock()
		s.state = StateOpen
		s.mu.Unlock()
		if ctrl := s.form.Get(failed[0]); ctrl != nil {
			s.focusControl(ctrl)
		}
		return
	}

	payload := s.form.Serialize()
	id, updating := s.identifier()
	if updating {
		payload[s.idField] = id
	}

	save := s.create
	if updating {
		save = s.update
	}
	if save == nil {
		err := fmt.Errorf("dialog: no %s callback configured", operationName(updating))
		s.logger.Error("save misconfigured", "error", err)
		s.surface(err)
		s.resolve(nil, err)
		return
	}

	go func() {
		result, err := save(ctx, payload)
		if err != nil {
			err = fmt.Errorf("dialog: save failed: %w", err)
			s.logger.Error("save failed", "error", err)
			s.surface(err)
			s.resolve(nil, err)
			return
		}
		s.resolve(mergeResult(payload, result), nil)
	}()
}

// Cancel resolves the session with no row. A save already in flight wins
// the race; cancellation after it is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelling
	s.mu.Unlock()
	s.resolve(nil, ErrCancelled)
}

// Wait blocks until the session resolves. It returns the saved row, or nil
// with ErrCancelled when the dialog was dismissed.
func (s *Session) Wait(ctx context.Context) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return s.row, s.err
	}
}

// identifier reports the item's id value and whether it marks an update.
func (s *Session) identifier() (any, bool) {
	if s.item == nil {
		return nil, false
	}
	id, ok := s.item[s.idField]
	if !ok || id == nil || schema.Stringify(id) == "" {
		return nil, false
	}
	return id, true
}

func (s *Session) surface(err error) {
	if s.alert != nil {
		s.alert(err)
	}
}

// resolve delivers the outcome exactly once and tears the dialog down.
// Late calls from async completions are no-ops.
func (s *Session) resolve(row map[string]any, err error) {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return
	}
	s.resolved = true
	s.state = StateClosed
	s.row = row
	s.err = err
	s.mu.Unlock()

	s.reg.ReleaseAll()
	s.overlay.Remove()
	if s.prevFocus != nil {
		s.doc.SetFocus(s.prevFocus)
	}
	close(s.done)
}

// mergeResult folds the backend's stored record over the submitted payload.
// The response wins field-by-field; payload fields absent from it survive.
func mergeResult(payload map[string]any, result any) map[string]any {
	row := make(map[string]any, len(payload))
	for k, v := range payload {
		row[k] = v
	}
	if record, err := envelope.Record(result); err == nil {
		for k, v := range record {
			row[k] = v
		}
	}
	return row
}

func operationName(updating bool) string {
	if updating {
		return "update"
	}
	return "create"
}
