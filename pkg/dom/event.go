package dom

// EventKind names an interaction category. The set is open; widgets agree on
// these well-known kinds.
type EventKind string

const (
	EventInput   EventKind = "input"
	EventChange  EventKind = "change"
	EventClick   EventKind = "click"
	EventKeyDown EventKind = "keydown"
	EventInvalid EventKind = "invalid"
	EventFocus   EventKind = "focus"
	EventBlur    EventKind = "blur"
	EventPaste   EventKind = "paste"
	EventDrop    EventKind = "drop"
)

// Key names used with EventKeyDown.
const (
	KeyTab    = "Tab"
	KeyEscape = "Escape"
	KeyEnter  = "Enter"
)

// File is a binary or URL payload delivered by paste/drop/browse
// interactions. Exactly one of Content or URL is expected to be set.
type File struct {
	Name    string
	Content []byte
	URL     string
}

// Event is a single interaction delivered to a node. Events bubble from the
// target to the root unless a handler stops propagation.
type Event struct {
	Kind   EventKind
	Target *Node
	Key    string
	Shift  bool
	Data   string
	Files  []File

	stopped   bool
	prevented bool
}

// StopPropagation keeps the event from bubbling past the current node.
func (e *Event) StopPropagation() { e.stopped = true }

// PreventDefault marks the event's default action as cancelled. The
// dispatcher reports the flag to the host; the tree itself has no defaults.
func (e *Event) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether a handler cancelled the default action.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// Handler consumes an event.
type Handler func(*Event)

type listener struct {
	kind    EventKind
	handler Handler
}

// AddListener attaches a handler for an event kind and returns an opaque
// token for RemoveListener. Widget code should attach through the resource
// registry instead of calling this directly, so teardown stays accountable.
func (n *Node) AddListener(kind EventKind, handler Handler) any {
	if handler == nil {
		return nil
	}
	l := &listener{kind: kind, handler: handler}
	n.listeners = append(n.listeners, l)
	return l
}

// RemoveListener detaches a previously added handler. Unknown tokens are
// ignored so teardown can run against already-pruned nodes.
func (n *Node) RemoveListener(token any) {
	l, ok := token.(*listener)
	if !ok || l == nil {
		return
	}
	for i, candidate := range n.listeners {
		if candidate == l {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

// Dispatch delivers an event to target and bubbles it toward the root. The
// event's Target field is set to target. It returns the event for callers
// that inspect DefaultPrevented.
func Dispatch(target *Node, event *Event) *Event {
	if target == nil || event == nil {
		return event
	}
	event.Target = target
	for node := target; node != nil && !event.stopped; node = node.parent {
		// Handler list is copied, handlers may detach themselves mid-dispatch.
		active := append([]*listener(nil), node.listeners...)
		for _, l := range active {
			if l.kind != event.Kind {
				continue
			}
			l.handler(event)
			if event.stopped {
				break
			}
		}
	}
	return event
}
