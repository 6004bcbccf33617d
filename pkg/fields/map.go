package fields

import (
	"github.com/CalistaF0X/basetable/pkg/dom"
)

// Map holds a form's controllers keyed by field name, preserving schema
// order for serialization.
type Map struct {
	order       []string
	controllers map[string]Controller
}

func newMap() *Map {
	return &Map{controllers: make(map[string]Controller)}
}

func (m *Map) add(ctrl Controller) {
	name := ctrl.Field().Name
	if _, exists := m.controllers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.controllers[name] = ctrl
}

// Get returns the controller for a field name, nil when absent.
func (m *Map) Get(name string) Controller { return m.controllers[name] }

// Len returns the number of controllers.
func (m *Map) Len() int { return len(m.order) }

// Names returns the field names in schema order.
func (m *Map) Names() []string { return append([]string(nil), m.order...) }

// Serialize collects every controller's submission value into a flat
// payload.
func (m *Map) Serialize() map[string]any {
	payload := make(map[string]any, len(m.order))
	for _, name := range m.order {
		payload[name] = m.controllers[name].Value()
	}
	return payload
}

// Validate checks required fields and returns the names that fail. Each
// failing control receives an invalid event so its inline hint shows.
func (m *Map) Validate() []string {
	var failed []string
	for _, name := range m.order {
		ctrl := m.controllers[name]
		if !ctrl.Field().Required {
			continue
		}
		if !emptyValue(ctrl.Value()) {
			continue
		}
		failed = append(failed, name)
		dom.Dispatch(ctrl.Control(), &dom.Event{Kind: dom.EventInvalid})
	}
	return failed
}

// emptyValue decides whether a submission value counts as missing for
// required-field purposes. Booleans never do: an unchecked checkbox is a
// legitimate false.
func emptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == "" || v == "[]" || v == "{}"
	case []string:
		return len(v) == 0
	case bool:
		return false
	default:
		return false
	}
}
