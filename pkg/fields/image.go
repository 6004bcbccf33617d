package fields

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/schema"
	"github.com/CalistaF0X/basetable/pkg/upload"
)

// imageController backs multi-file image fields. Files arrive through drop
// and paste events on the drop zone; each becomes an upload record with a
// thumbnail card carrying cancel/retry/remove/promote affordances. The
// hidden control always holds the JSON list of committed server paths, so a
// submit mid-upload simply omits the unfinished files.
type imageController struct {
	mu    sync.Mutex
	field schema.Field

	wrap   *dom.Node
	zone   *dom.Node
	thumbs *dom.Node
	hidden *dom.Node

	manager *upload.Manager
}

func newImageController(b *Builder, field schema.Field, value any) (Controller, error) {
	if b.Factory.uploads == nil {
		return nil, fmt.Errorf("fields: image field %q has no upload transport configured", field.Name)
	}

	zone := dom.NewNode(dom.KindContainer)
	zone.AddClass("drop-zone")
	browse := zone.Append(dom.NewNode(dom.KindButton))
	browse.Text = "Browse…"
	browse.SetAttr("data-action", "browse")

	ctrl := &imageController{field: field, zone: zone}

	wrap, _ := wrapControl(b, field, zone)
	ctrl.wrap = wrap

	ctrl.thumbs = wrap.Append(dom.NewNode(dom.KindContainer))
	ctrl.thumbs.AddClass("thumbs")

	ctrl.hidden = wrap.Append(dom.NewNode(dom.KindInput))
	ctrl.hidden.Hidden = true
	ctrl.hidden.SetAttr("name", field.Name)

	ctrl.manager = upload.NewManager(b.Factory.uploads, field.Category, ctrl.onChange, b.Factory.logger)
	b.Registry.TrackCancel(ctrl.manager.CancelAll)

	for _, path := range existingPaths(value) {
		ctrl.manager.Add(dom.File{Name: path, URL: path})
	}

	accept := func(e *dom.Event) {
		e.PreventDefault()
		for _, file := range e.Files {
			ctrl.manager.Add(file)
		}
		if url := strings.TrimSpace(e.Data); looksLikeURL(url) {
			ctrl.manager.Add(dom.File{Name: url, URL: url})
		}
	}
	b.Registry.Track(zone, dom.EventDrop, accept)
	b.Registry.Track(zone, dom.EventPaste, accept)

	// The browse button opens the host file picker when one is installed.
	// A click event that already carries files (a host that resolves the
	// picker before dispatching) is accepted as-is.
	browseFn := b.Factory.browseFunc
	b.Registry.Track(browse, dom.EventClick, func(e *dom.Event) {
		e.PreventDefault()
		for _, file := range e.Files {
			ctrl.manager.Add(file)
		}
		if browseFn != nil {
			for _, file := range browseFn(field) {
				ctrl.manager.Add(file)
			}
		}
	})

	// One delegated listener serves every thumbnail button.
	b.Registry.Track(ctrl.thumbs, dom.EventClick, func(e *dom.Event) {
		if e.Target == nil {
			return
		}
		id := e.Target.Attr("data-record")
		switch e.Target.Attr("data-action") {
		case "cancel":
			ctrl.manager.Cancel(id)
		case "retry":
			ctrl.manager.Retry(id)
		case "remove":
			ctrl.manager.Remove(id)
		case "promote":
			ctrl.manager.Promote(id)
		}
	})

	return ctrl, nil
}

// existingPaths decodes the item value into its server paths. Accepts the
// JSON string form, a decoded list, or a single path.
func existingPaths(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, "[") {
			var list []string
			if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
				return list
			}
			return nil
		}
		return []string{trimmed}
	default:
		return nil
	}
}

func looksLikeURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "/")
}

// onChange mirrors the manager state into the hidden control and rebuilds
// the thumbnail strip. Runs on upload goroutines as well as event handlers.
func (c *imageController) onChange(serialized string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden.Value = serialized
	c.renderThumbsLocked()
}

func (c *imageController) renderThumbsLocked() {
	for _, child := range append([]*dom.Node(nil), c.thumbs.Children()...) {
		child.Remove()
	}
	for _, rec := range c.manager.Records() {
		card := c.thumbs.Append(dom.NewNode(dom.KindContainer))
		card.AddClass("thumb")
		card.SetAttr("data-record", rec.ID)
		card.SetAttr("data-state", string(rec.State))

		img := card.Append(dom.NewNode(dom.KindImage))
		img.SetAttr("src", rec.Preview)
		img.SetAttr("alt", rec.Name)

		button := func(action, text string) {
			btn := card.Append(dom.NewNode(dom.KindButton))
			btn.Text = text
			btn.SetAttr("data-action", action)
			btn.SetAttr("data-record", rec.ID)
		}
		switch rec.State {
		case upload.StateUploading:
			button("cancel", "Cancel")
		case upload.StateError:
			button("retry", "Retry")
			button("remove", "Remove")
		case upload.StateDone:
			button("promote", "Make first")
			button("remove", "Remove")
		default:
			button("remove", "Remove")
		}
	}
}

func (c *imageController) Field() schema.Field { return c.field }
func (c *imageController) Node() *dom.Node     { return c.wrap }
func (c *imageController) Control() *dom.Node  { return c.zone }

// Value returns the JSON list of committed server paths in display order.
func (c *imageController) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden.Value == "" {
		return "[]"
	}
	return c.hidden.Value
}
