// Package cellrender maps logical column types to rendering functions that
// project a value into a document subtree. The dispatch table is the only
// state; renderers themselves are pure and reused across every row render.
package cellrender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"

	"github.com/CalistaF0X/basetable/internal/money"
	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

// Func renders value into container for one cell. col is the column schema,
// row the full record for renderers that need sibling values.
type Func func(container *dom.Node, value any, col schema.Field, row map[string]any) error

// Option configures a Registry.
type Option func(*Registry)

// WithLocale sets the locale used by the price renderer.
func WithLocale(tag language.Tag) Option {
	return func(r *Registry) { r.locale = tag }
}

// WithLogger routes render fallbacks to the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry holds the type→renderer table. Safe for concurrent Render calls;
// Register is expected at setup time but is also lock-protected.
type Registry struct {
	mu        sync.RWMutex
	renderers map[schema.Type]Func
	sanitizer *bluemonday.Policy
	locale    language.Tag
	logger    *slog.Logger
}

// NewRegistry constructs a registry with the built-in renderers installed.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		renderers: make(map[schema.Type]Func),
		sanitizer: bluemonday.StrictPolicy(),
		locale:    money.DefaultTag,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerBuiltins()
	return r
}

// Register installs fn for a type key. Keys are case/whitespace normalised;
// the last registration for a key wins.
func (r *Registry) Register(t schema.Type, fn Func) {
	if fn == nil {
		return
	}
	key := schema.Normalize(t)
	if key == "" {
		return
	}
	r.mu.Lock()
	r.renderers[key] = fn
	r.mu.Unlock()
}

// Render looks up the renderer for t (falling back to text for unknown
// types) and invokes it. A renderer that errors or panics is recovered: the
// cell falls back to the value's string form and the failure is logged. A
// broken renderer must never take the surrounding row down with it.
func (r *Registry) Render(t schema.Type, container *dom.Node, value any, col schema.Field, row map[string]any) {
	if container == nil {
		return
	}
	key := schema.Normalize(t)
	r.mu.RLock()
	fn, ok := r.renderers[key]
	if !ok {
		fn = r.renderers[schema.TypeText]
	}
	r.mu.RUnlock()
	if fn == nil {
		r.fallback(container, value)
		return
	}

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("cellrender: renderer for %q panicked: %v", key, rec)
			}
		}()
		return fn(container, value, col, row)
	}()
	if err != nil {
		r.logger.Warn("cell render fallback", "type", string(key), "column", col.Name, "error", err)
		r.fallback(container, value)
	}
}

func (r *Registry) fallback(container *dom.Node, value any) {
	for _, child := range append([]*dom.Node(nil), container.Children()...) {
		child.Remove()
	}
	text := container.Append(dom.NewNode(dom.KindText))
	text.Text = schema.Stringify(value)
}

func (r *Registry) registerBuiltins() {
	r.Register(schema.TypeText, r.renderText)
	r.Register(schema.TypeTextArea, r.renderText)
	r.Register(schema.TypeLink, r.renderLink)
	r.Register(schema.TypeImage, r.renderImage)
	r.Register(schema.TypeDate, r.renderDate)
	r.Register(schema.TypeNumber, r.renderNumber)
	r.Register(schema.TypeBoolean, r.renderBoolean)
	r.Register(schema.TypeCheckbox, r.renderBoolean)
	r.Register(schema.TypePrice, r.renderPrice)
	r.Register(schema.TypeJSON, r.renderJSON)
}

func (r *Registry) renderText(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	text := container.Append(dom.NewNode(dom.KindText))
	text.Text = r.sanitizer.Sanitize(schema.Stringify(value))
	return nil
}

func (r *Registry) renderLink(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	href := strings.TrimSpace(schema.Stringify(value))
	link := container.Append(dom.NewNode(dom.KindLink))
	link.SetAttr("href", href)
	link.Text = r.sanitizer.Sanitize(href)
	return nil
}

func (r *Registry) renderImage(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	// Image columns may carry a single path or a serialised path list; the
	// first entry is the thumbnail.
	src := strings.TrimSpace(schema.Stringify(value))
	if strings.HasPrefix(src, "[") {
		var paths []string
		if err := json.Unmarshal([]byte(src), &paths); err == nil && len(paths) > 0 {
			src = paths[0]
		}
	}
	if src == "" {
		return nil
	}
	img := container.Append(dom.NewNode(dom.KindImage))
	img.SetAttr("src", src)
	img.AddClass("cell-thumb")
	return nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r *Registry) renderDate(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	text := container.Append(dom.NewNode(dom.KindText))
	switch v := value.(type) {
	case time.Time:
		text.Text = v.Format("2006-01-02 15:04")
		return nil
	case float64:
		text.Text = time.Unix(int64(v), 0).UTC().Format("2006-01-02 15:04")
		return nil
	}
	raw := strings.TrimSpace(schema.Stringify(value))
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			text.Text = parsed.Format("2006-01-02 15:04")
			return nil
		}
	}
	text.Text = raw
	return nil
}

func (r *Registry) renderNumber(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	text := container.Append(dom.NewNode(dom.KindText))
	text.Text = schema.Stringify(value)
	return nil
}

func (r *Registry) renderBoolean(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	truthy := false
	switch v := value.(type) {
	case bool:
		truthy = v
	case string:
		truthy = v == "true" || v == "1" || v == "yes"
	case float64:
		truthy = v != 0
	}
	text := container.Append(dom.NewNode(dom.KindText))
	if truthy {
		text.Text = "✓"
	}
	return nil
}

func (r *Registry) renderPrice(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	v, ok := money.ParseAny(value)
	if !ok {
		return fmt.Errorf("cellrender: price value %v is not numeric", value)
	}
	text := container.Append(dom.NewNode(dom.KindText))
	text.Text = money.Format(v, col.Precision, r.locale)
	return nil
}

func (r *Registry) renderJSON(container *dom.Node, value any, col schema.Field, row map[string]any) error {
	var rendered string
	switch v := value.(type) {
	case string:
		rendered = strings.TrimSpace(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("cellrender: marshal json cell: %w", err)
		}
		rendered = string(data)
	}
	if rendered == "" {
		rendered = "{}"
	}
	text := container.Append(dom.NewNode(dom.KindText))
	text.Text = rendered
	return nil
}
