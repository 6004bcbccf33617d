// Package dom implements the headless document tree the toolkit renders
// into. Hosts embed the tree into whatever surface they drive (a browser
// bridge, a server-side renderer, a test harness) and feed user interaction
// back in as events. The tree is not internally synchronised; the component
// owning a subtree is responsible for serialising access to it.
package dom

import "strings"

// Kind classifies a node. Control kinds participate in focus order and form
// serialisation; structural kinds only shape the tree.
type Kind string

const (
	KindContainer Kind = "container"
	KindForm      Kind = "form"
	KindLabel     Kind = "label"
	KindText      Kind = "text"
	KindInput     Kind = "input"
	KindTextArea  Kind = "textarea"
	KindSelect    Kind = "select"
	KindOption    Kind = "option"
	KindButton    Kind = "button"
	KindImage     Kind = "image"
	KindLink      Kind = "link"
	KindTable     Kind = "table"
	KindRow       Kind = "row"
	KindCell      Kind = "cell"
	KindOverlay   Kind = "overlay"
)

// Node is one element of the document tree.
type Node struct {
	Kind Kind

	// Value carries the control's current value for input-like kinds and the
	// option value for KindOption. Text carries display text.
	Value   string
	Text    string
	Checked bool

	Disabled bool
	Hidden   bool

	attrs     map[string]string
	classes   []string
	parent    *Node
	children  []*Node
	doc       *Document
	listeners []*listener
}

// NewNode constructs a detached node.
func NewNode(kind Kind) *Node {
	return &Node{Kind: kind}
}

// SetAttr sets an attribute, removing it when value is empty.
func (n *Node) SetAttr(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if value == "" {
		delete(n.attrs, name)
		return
	}
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[name] = value
}

// Attr returns an attribute value, or "" when unset.
func (n *Node) Attr(name string) string {
	return n.attrs[name]
}

// AddClass appends a class token if not already present.
func (n *Node) AddClass(class string) {
	class = strings.TrimSpace(class)
	if class == "" || n.HasClass(class) {
		return
	}
	n.classes = append(n.classes, class)
}

// RemoveClass drops a class token.
func (n *Node) RemoveClass(class string) {
	for i, c := range n.classes {
		if c == class {
			n.classes = append(n.classes[:i], n.classes[i+1:]...)
			return
		}
	}
}

// HasClass reports whether the class token is present.
func (n *Node) HasClass(class string) bool {
	for _, c := range n.classes {
		if c == class {
			return true
		}
	}
	return false
}

// Append attaches child as the last child of n.
func (n *Node) Append(child *Node) *Node {
	if child == nil || child == n {
		return child
	}
	child.detach()
	child.parent = n
	n.children = append(n.children, child)
	child.adopt(n.doc)
	return child
}

// Prepend attaches child as the first child of n.
func (n *Node) Prepend(child *Node) *Node {
	if child == nil || child == n {
		return child
	}
	child.detach()
	child.parent = n
	n.children = append([]*Node{child}, n.children...)
	child.adopt(n.doc)
	return child
}

// InsertBefore places child immediately before ref among n's children. A nil
// or foreign ref appends instead.
func (n *Node) InsertBefore(child, ref *Node) *Node {
	if child == nil || child == n {
		return child
	}
	idx := -1
	if ref != nil {
		for i, c := range n.children {
			if c == ref {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return n.Append(child)
	}
	child.detach()
	child.parent = n
	n.children = append(n.children[:idx], append([]*Node{child}, n.children[idx:]...)...)
	child.adopt(n.doc)
	return child
}

// Remove detaches n from its parent. Focus held inside the removed subtree
// is cleared on the owning document.
func (n *Node) Remove() {
	doc := n.doc
	if doc != nil && doc.focused != nil && (doc.focused == n || n.ContainsNode(doc.focused)) {
		doc.focused = nil
	}
	n.detach()
	n.adopt(nil)
}

func (n *Node) detach() {
	if n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

func (n *Node) adopt(doc *Document) {
	n.doc = doc
	for _, c := range n.children {
		c.adopt(doc)
	}
}

// Parent returns the parent node, nil for detached nodes and the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child list. Callers must not mutate it.
func (n *Node) Children() []*Node { return n.children }

// Document returns the owning document, nil when detached.
func (n *Node) Document() *Document { return n.doc }

// ContainsNode reports whether other is a descendant of n.
func (n *Node) ContainsNode(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Walk visits n and every descendant in document order. Returning false from
// visit stops the walk.
func (n *Node) Walk(visit func(*Node) bool) bool {
	if !visit(n) {
		return false
	}
	for _, c := range n.children {
		if !c.Walk(visit) {
			return false
		}
	}
	return true
}

// Visible reports whether the node and all its ancestors are unhidden.
func (n *Node) Visible() bool {
	for p := n; p != nil; p = p.parent {
		if p.Hidden {
			return false
		}
	}
	return true
}

// Focusable reports whether the node can receive focus: an enabled, visible,
// attached control.
func (n *Node) Focusable() bool {
	switch n.Kind {
	case KindInput, KindTextArea, KindSelect, KindButton, KindLink:
	default:
		return false
	}
	return !n.Disabled && n.doc != nil && n.Visible()
}
