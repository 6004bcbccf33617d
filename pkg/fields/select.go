package fields

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

const (
	placeholderLabel = "—"
	loadingLabel     = "Loading…"
)

// reinsertDelay is how long the controller waits before its single retry at
// reassigning a selected value that the async population race left
// unmatched.
const reinsertDelay = 200 * time.Millisecond

// selectController backs single and multi selects. Static option lists are
// inserted synchronously; Ref-driven lists start with a loading placeholder
// and are replaced when the shared reference cache settles. Selection state
// lives on the nodes themselves: Value for single selects, per-option
// Checked for multi selects.
type selectController struct {
	mu    sync.Mutex
	field schema.Field
	multi bool

	wrap   *dom.Node
	sel    *dom.Node
	search *dom.Node

	// desired is the selection to restore after async population.
	desired []string
	retried bool
}

func newSelectController(b *Builder, field schema.Field, value any) (Controller, error) {
	if field.Options == nil && field.Ref == "" {
		return nil, fmt.Errorf("fields: select %q has neither options nor ref", field.Name)
	}

	sel := dom.NewNode(dom.KindSelect)
	applyAttrs(sel, field)

	ctrl := &selectController{
		field:   field,
		multi:   schema.Normalize(field.Type) == schema.TypeMultiSelect,
		sel:     sel,
		desired: desiredValues(value),
	}
	if ctrl.multi {
		sel.SetAttr("multiple", "true")
	}

	wrap, _ := wrapControl(b, field, sel)
	ctrl.wrap = wrap

	if field.Searchable {
		search := dom.NewNode(dom.KindInput)
		search.SetAttr("placeholder", "Search…")
		search.AddClass("select-search")
		wrap.InsertBefore(search, sel)
		ctrl.search = search
		b.Registry.Track(search, dom.EventInput, func(e *dom.Event) {
			ctrl.filter(search.Value)
		})
	}

	if field.Options != nil {
		ctrl.populate(optionList(field.Options))
		return ctrl, nil
	}

	// Ref path: placeholder now, real options when the cache settles.
	loading := sel.Append(dom.NewNode(dom.KindOption))
	loading.Text = loadingLabel
	loading.Disabled = true

	cache := b.Factory.refs
	if cache == nil {
		return nil, fmt.Errorf("fields: select %q needs ref %q but no reference cache is configured", field.Name, field.Ref)
	}
	// The load is shared cache state, not dialog state: closing the dialog
	// must not cancel it, or every later select on the same ref would see a
	// settled failure. A result arriving after teardown lands in a detached
	// subtree, which is harmless.
	reg := b.Registry
	logger := b.Factory.logger
	go func() {
		options, err := cache.EnsureLoaded(context.Background(), field.Ref)
		if err != nil {
			logger.Warn("reference load failed", "ref", field.Ref, "field", field.Name, "error", err)
		}
		ctrl.mu.Lock()
		ctrl.populateLocked(options)
		unmatched := len(ctrl.desired) > 0 && !ctrl.matchedLocked()
		ctrl.mu.Unlock()
		if unmatched {
			reg.TrackTimer(reinsertDelay, func() {
				ctrl.mu.Lock()
				defer ctrl.mu.Unlock()
				if ctrl.retried {
					return
				}
				ctrl.retried = true
				ctrl.assignDesiredLocked()
			})
		}
	}()
	return ctrl, nil
}

// desiredValues flattens an item value into the selection it represents.
func desiredValues(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := schema.Stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		if s := schema.Stringify(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func optionList(options any) []any {
	switch v := options.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func (c *selectController) populate(options []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.populateLocked(options)
}

// populateLocked replaces the option list and restores the desired
// selection where a matching option exists.
func (c *selectController) populateLocked(options []any) {
	for _, child := range append([]*dom.Node(nil), c.sel.Children()...) {
		child.Remove()
	}

	if !c.multi {
		placeholder := c.sel.Append(dom.NewNode(dom.KindOption))
		placeholder.Text = placeholderLabel
	}

	for _, option := range options {
		value := schema.OptionValue(option, c.field.ValueKey)
		label := schema.OptionLabel(option, c.field.LabelKey)
		if value == "" && label == "" {
			continue
		}
		node := c.sel.Append(dom.NewNode(dom.KindOption))
		node.Value = value
		node.Text = label
	}

	c.assignDesiredLocked()
}

// assignDesiredLocked applies the remembered selection to whatever options
// currently exist. Values with no matching option stay pending.
func (c *selectController) assignDesiredLocked() {
	if len(c.desired) == 0 {
		return
	}
	if c.multi {
		want := make(map[string]bool, len(c.desired))
		for _, v := range c.desired {
			want[v] = true
		}
		for _, opt := range c.sel.Children() {
			if want[opt.Value] {
				opt.Checked = true
			}
		}
		return
	}
	for _, opt := range c.sel.Children() {
		if opt.Value == c.desired[0] {
			c.sel.Value = c.desired[0]
			return
		}
	}
}

// matchedLocked reports whether every desired value found an option.
func (c *selectController) matchedLocked() bool {
	present := make(map[string]bool)
	for _, opt := range c.sel.Children() {
		present[opt.Value] = true
	}
	for _, v := range c.desired {
		if !present[v] {
			return false
		}
	}
	return true
}

// filter hides options whose label does not contain the query. Hidden
// options keep their selection state; clearing the query restores them.
func (c *selectController) filter(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	for _, opt := range c.sel.Children() {
		if q == "" || opt.Value == "" {
			opt.Hidden = false
			continue
		}
		opt.Hidden = !strings.Contains(strings.ToLower(opt.Text), q)
	}
}

// Options returns the current option values in display order, placeholder
// excluded. Hosts use it to observe async population.
func (c *selectController) Options() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, opt := range c.sel.Children() {
		if opt.Value == "" {
			continue
		}
		out = append(out, opt.Value)
	}
	return out
}

func (c *selectController) Field() schema.Field { return c.field }
func (c *selectController) Node() *dom.Node     { return c.wrap }
func (c *selectController) Control() *dom.Node  { return c.sel }

func (c *selectController) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.multi {
		return c.sel.Value
	}
	values := make([]string, 0)
	for _, opt := range c.sel.Children() {
		if opt.Checked {
			values = append(values, opt.Value)
		}
	}
	return values
}
