package fields

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

// jsonController edits an object as a list of key/value rows. The hidden
// control carries the serialized object; rows with an empty key are shown
// but excluded from it. Arrays initialise with index keys; anything
// malformed starts as an empty object.
type jsonController struct {
	mu    sync.Mutex
	field schema.Field

	wrap   *dom.Node
	rows   *dom.Node
	hidden *dom.Node
}

type kvPair struct {
	key   string
	value string
}

func newJSONController(b *Builder, field schema.Field, value any) (Controller, error) {
	rows := dom.NewNode(dom.KindContainer)
	rows.AddClass("kv-rows")

	ctrl := &jsonController{field: field, rows: rows}

	wrap, _ := wrapControl(b, field, rows)
	ctrl.wrap = wrap

	add := wrap.Append(dom.NewNode(dom.KindButton))
	add.Text = "Add row"
	add.SetAttr("data-action", "add-row")

	ctrl.hidden = wrap.Append(dom.NewNode(dom.KindInput))
	ctrl.hidden.Hidden = true
	ctrl.hidden.SetAttr("name", field.Name)

	for _, pair := range initialPairs(value) {
		ctrl.appendRowLocked(pair.key, pair.value)
	}
	ctrl.serializeLocked()

	b.Registry.Track(add, dom.EventClick, func(e *dom.Event) {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		ctrl.appendRowLocked("", "")
	})
	// Key and value edits bubble here; one listener reserializes for all
	// rows.
	b.Registry.Track(rows, dom.EventInput, func(e *dom.Event) {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		ctrl.serializeLocked()
	})
	b.Registry.Track(rows, dom.EventClick, func(e *dom.Event) {
		if e.Target == nil || e.Target.Attr("data-action") != "remove-row" {
			return
		}
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		for _, row := range ctrl.rows.Children() {
			if row.Attr("data-row") == e.Target.Attr("data-row") {
				row.Remove()
				break
			}
		}
		ctrl.serializeLocked()
	})

	return ctrl, nil
}

// initialPairs flattens the item value into ordered rows. JSON strings keep
// their key order; decoded maps are sorted for determinism; arrays use
// their indices as keys.
func initialPairs(value any) []kvPair {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return pairsFromJSON(v)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]kvPair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, kvPair{key: k, value: schema.Stringify(v[k])})
		}
		return pairs
	case []any:
		pairs := make([]kvPair, 0, len(v))
		for i, item := range v {
			pairs = append(pairs, kvPair{key: strconv.Itoa(i), value: schema.Stringify(item)})
		}
		return pairs
	default:
		return nil
	}
}

// pairsFromJSON decodes an object keeping source key order via the token
// stream. Top-level arrays become index-keyed rows; malformed input yields
// no rows.
func pairsFromJSON(raw string) []kvPair {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []any
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil
		}
		return initialPairs(list)
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	var pairs []kvPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil
		}
		pairs = append(pairs, kvPair{key: key, value: schema.Stringify(val)})
	}
	return pairs
}

var rowSeq struct {
	mu sync.Mutex
	n  int
}

func nextRowID() string {
	rowSeq.mu.Lock()
	defer rowSeq.mu.Unlock()
	rowSeq.n++
	return strconv.Itoa(rowSeq.n)
}

func (c *jsonController) appendRowLocked(key, value string) {
	id := nextRowID()
	row := c.rows.Append(dom.NewNode(dom.KindContainer))
	row.AddClass("kv-row")
	row.SetAttr("data-row", id)

	keyInput := row.Append(dom.NewNode(dom.KindInput))
	keyInput.AddClass("kv-key")
	keyInput.Value = key

	valueInput := row.Append(dom.NewNode(dom.KindInput))
	valueInput.AddClass("kv-value")
	valueInput.Value = value

	remove := row.Append(dom.NewNode(dom.KindButton))
	remove.Text = "×"
	remove.SetAttr("data-action", "remove-row")
	remove.SetAttr("data-row", id)
}

// serializeLocked rebuilds the hidden value from the rows in order. Keys
// serialize as they appear; an empty key drops the row from the object. The
// object is assembled by hand so row order survives.
func (c *jsonController) serializeLocked() {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, row := range c.rows.Children() {
		var key, value string
		for _, child := range row.Children() {
			switch {
			case child.HasClass("kv-key"):
				key = child.Value
			case child.HasClass("kv-value"):
				value = child.Value
			}
		}
		if strings.TrimSpace(key) == "" {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		v, _ := json.Marshal(value)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	c.hidden.Value = buf.String()
}

func (c *jsonController) Field() schema.Field { return c.field }
func (c *jsonController) Node() *dom.Node     { return c.wrap }
func (c *jsonController) Control() *dom.Node  { return c.rows }

func (c *jsonController) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden.Value == "" {
		return "{}"
	}
	return c.hidden.Value
}
