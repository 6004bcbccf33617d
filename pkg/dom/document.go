package dom

// Document owns a tree root and tracks which control currently holds focus.
type Document struct {
	root    *Node
	focused *Node
}

// NewDocument constructs a document with an empty container root.
func NewDocument() *Document {
	d := &Document{}
	d.root = NewNode(KindContainer)
	d.root.doc = d
	return d
}

// Root returns the document's root container.
func (d *Document) Root() *Node { return d.root }

// Focused returns the node holding focus, nil when none does.
func (d *Document) Focused() *Node { return d.focused }

// SetFocus moves focus to n, dispatching blur on the previous holder and
// focus on the new one. Unfocusable targets clear focus instead.
func (d *Document) SetFocus(n *Node) {
	if n == d.focused {
		return
	}
	prev := d.focused
	if n != nil && !n.Focusable() {
		n = nil
	}
	d.focused = n
	if prev != nil {
		Dispatch(prev, &Event{Kind: EventBlur})
	}
	if n != nil {
		Dispatch(n, &Event{Kind: EventFocus})
	}
}

// FocusablesWithin collects the focusable descendants of scope in document
// order. Dialog focus traps cycle over this list.
func FocusablesWithin(scope *Node) []*Node {
	if scope == nil {
		return nil
	}
	var out []*Node
	scope.Walk(func(n *Node) bool {
		if n.Focusable() {
			out = append(out, n)
		}
		return true
	})
	return out
}
