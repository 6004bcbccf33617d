// Package fields builds one interactive control per schema field and owns
// the per-type state machines: price masking, reference-populated selects,
// multi-file image upload and the structured key/value JSON editor. Every
// listener, timer and in-flight operation a controller attaches goes through
// the dialog's resource registry so teardown is a single ReleaseAll.
package fields

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"

	"github.com/CalistaF0X/basetable/internal/money"
	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/refcache"
	"github.com/CalistaF0X/basetable/pkg/registry"
	"github.com/CalistaF0X/basetable/pkg/schema"
	"github.com/CalistaF0X/basetable/pkg/upload"
)

// Controller is one stateful widget bound to one schema field.
type Controller interface {
	// Field returns the schema entry the controller was built from.
	Field() schema.Field
	// Node returns the root of the control's subtree (label, control,
	// hint), ready to be appended to a form.
	Node() *dom.Node
	// Control returns the focusable control node; validation events are
	// dispatched against it.
	Control() *dom.Node
	// Value returns the submission-ready value under the payload coercion
	// rules: checkbox → bool, number → float64 or nil, multiselect →
	// ordered value list, image/json → JSON-encoded string.
	Value() any
}

// Constructor builds a controller for one field. value is the field's
// current value from the item being edited, nil for add forms.
type Constructor func(b *Builder, field schema.Field, value any) (Controller, error)

// MaskFunc is a host-supplied masking plugin for price fields. When
// installed it replaces the built-in price state machine; it must keep the
// hidden control's canonical value equivalent to what the built-in mask
// would produce.
type MaskFunc func(display, hidden *dom.Node, field schema.Field)

// BrowseFunc is a host-supplied file picker for image fields. The image
// controller's browse button invokes it and queues the returned files for
// upload; a headless host without a picker simply leaves it unset.
type BrowseFunc func(field schema.Field) []dom.File

// Option configures a Factory.
type Option func(*Factory)

// WithReferenceCache wires the shared async reference cache used by
// ref-driven selects.
func WithReferenceCache(cache *refcache.Cache) Option {
	return func(f *Factory) { f.refs = cache }
}

// WithUploadTransport wires the transport image fields upload through.
func WithUploadTransport(transport upload.Transport) Option {
	return func(f *Factory) { f.uploads = transport }
}

// WithLocale sets the locale price fields format with.
func WithLocale(tag language.Tag) Option {
	return func(f *Factory) { f.locale = tag }
}

// WithLogger routes controller construction failures and async errors to
// the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMaskFunc installs a host masking plugin for price fields.
func WithMaskFunc(fn MaskFunc) Option {
	return func(f *Factory) { f.maskFunc = fn }
}

// WithBrowseFunc installs a host file picker for image fields.
func WithBrowseFunc(fn BrowseFunc) Option {
	return func(f *Factory) { f.browseFunc = fn }
}

// Factory builds field controllers. One factory serves every dialog of a
// table instance; per-dialog state lives in the resource registry passed to
// Build.
type Factory struct {
	mu           sync.RWMutex
	constructors map[schema.Type]Constructor

	refs       *refcache.Cache
	uploads    upload.Transport
	locale     language.Tag
	logger     *slog.Logger
	maskFunc   MaskFunc
	browseFunc BrowseFunc
}

// NewFactory constructs a factory with the built-in controller set.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		constructors: make(map[schema.Type]Constructor),
		locale:       money.DefaultTag,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.registerBuiltins()
	return f
}

// RegisterController installs a constructor for a type key, replacing any
// previous registration. Keys are normalised like renderer dispatch keys.
func (f *Factory) RegisterController(t schema.Type, ctor Constructor) {
	if ctor == nil {
		return
	}
	key := schema.Normalize(t)
	if key == "" {
		return
	}
	f.mu.Lock()
	f.constructors[key] = ctor
	f.mu.Unlock()
}

func (f *Factory) registerBuiltins() {
	f.RegisterController(schema.TypeText, newTextController)
	f.RegisterController(schema.TypeTextArea, newTextController)
	f.RegisterController(schema.TypeHidden, newTextController)
	f.RegisterController(schema.TypeLink, newTextController)
	f.RegisterController(schema.TypeDate, newTextController)
	f.RegisterController(schema.TypeCheckbox, newCheckboxController)
	f.RegisterController(schema.TypeBoolean, newCheckboxController)
	f.RegisterController(schema.TypeNumber, newNumberController)
	f.RegisterController(schema.TypePrice, newPriceController)
	f.RegisterController(schema.TypeSelect, newSelectController)
	f.RegisterController(schema.TypeMultiSelect, newSelectController)
	f.RegisterController(schema.TypeImage, newImageController)
	f.RegisterController(schema.TypeJSON, newJSONController)
}

func (f *Factory) constructor(t schema.Type) Constructor {
	key := schema.Normalize(t)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if ctor, ok := f.constructors[key]; ok {
		return ctor
	}
	return f.constructors[schema.TypeText]
}

// Builder carries the per-build services controllers draw on.
type Builder struct {
	Factory  *Factory
	Registry *registry.Registry
}

// Build produces the form subtree and the name→controller map for the given
// schema and item. Fields are laid out in schema order; fields sharing a
// Group are wrapped in a labelled group container. A constructor failure
// for one field is logged and replaced with a minimal text control; it never
// aborts the remaining fields.
func (f *Factory) Build(reg *registry.Registry, fieldDefs []schema.Field, item map[string]any) (*dom.Node, *Map, error) {
	if err := schema.Validate(fieldDefs); err != nil {
		return nil, nil, err
	}
	if reg == nil {
		reg = registry.New()
	}
	b := &Builder{Factory: f, Registry: reg}

	form := dom.NewNode(dom.KindForm)
	fieldMap := newMap()

	groups := make(map[string]*dom.Node)
	parentFor := func(field schema.Field) *dom.Node {
		if field.Group == "" {
			return form
		}
		if g, ok := groups[field.Group]; ok {
			return g
		}
		g := form.Append(dom.NewNode(dom.KindContainer))
		g.AddClass("field-group")
		g.SetAttr("data-group", field.Group)
		title := g.Append(dom.NewNode(dom.KindLabel))
		title.Text = field.Group
		groups[field.Group] = g
		return g
	}

	for _, field := range fieldDefs {
		var value any
		if item != nil {
			value = item[field.Name]
		}

		ctor := f.constructor(field.Type)
		ctrl, err := ctor(b, field, value)
		if err != nil {
			f.logger.Error("field controller construction failed",
				"field", field.Name, "type", string(field.Type), "error", err)
			ctrl = newFallbackController(b, field, value)
		}
		parentFor(field).Append(ctrl.Node())
		fieldMap.add(ctrl)
	}

	return form, fieldMap, nil
}

// newFallbackController is the minimal default control used when a field's
// own constructor fails.
func newFallbackController(b *Builder, field schema.Field, value any) Controller {
	ctrl, err := newTextController(b, field, value)
	if err != nil {
		// newTextController cannot fail today; guard anyway.
		wrap := dom.NewNode(dom.KindContainer)
		input := wrap.Append(dom.NewNode(dom.KindInput))
		input.Value = schema.Stringify(value)
		return &textController{field: field, wrap: wrap, input: input}
	}
	return ctrl
}

// wrapControl builds the standard field chrome: wrapper, label, control
// slot and a hidden inline hint revealed by validation failures.
func wrapControl(b *Builder, field schema.Field, control *dom.Node) (wrap, hint *dom.Node) {
	wrap = dom.NewNode(dom.KindContainer)
	wrap.AddClass("field")
	wrap.SetAttr("data-field", field.Name)

	if schema.Normalize(field.Type) != schema.TypeHidden {
		label := wrap.Append(dom.NewNode(dom.KindLabel))
		label.Text = field.DisplayLabel()
	}
	wrap.Append(control)

	hint = wrap.Append(dom.NewNode(dom.KindText))
	hint.AddClass("field-hint")
	hint.Hidden = true
	hint.Text = fmt.Sprintf("%s is invalid", field.DisplayLabel())

	hookValidation(b, control, hint)
	return wrap, hint
}

// hookValidation reveals the inline hint on invalid and hides it again on
// input, both through the resource registry.
func hookValidation(b *Builder, control, hint *dom.Node) {
	b.Registry.Track(control, dom.EventInvalid, func(e *dom.Event) {
		hint.Hidden = false
	})
	b.Registry.Track(control, dom.EventInput, func(e *dom.Event) {
		hint.Hidden = true
	})
}

func applyAttrs(control *dom.Node, field schema.Field) {
	for name, value := range field.Attrs {
		control.SetAttr(name, value)
	}
	if field.Required {
		control.SetAttr("required", "true")
	}
	control.SetAttr("name", field.Name)
}
