package fields

import (
	"strconv"
	"strings"

	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

// textController backs text, textarea, hidden, link and date fields. The
// control holds its value as a plain string; submission returns it as-is.
type textController struct {
	field schema.Field
	wrap  *dom.Node
	input *dom.Node
}

func newTextController(b *Builder, field schema.Field, value any) (Controller, error) {
	kind := dom.KindInput
	if schema.Normalize(field.Type) == schema.TypeTextArea {
		kind = dom.KindTextArea
	}
	input := dom.NewNode(kind)
	applyAttrs(input, field)
	input.Value = schema.Stringify(value)

	switch schema.Normalize(field.Type) {
	case schema.TypeHidden:
		input.Hidden = true
	case schema.TypeDate:
		input.SetAttr("type", "date")
	case schema.TypeLink:
		input.SetAttr("type", "url")
	}

	ctrl := &textController{field: field, input: input}
	if schema.Normalize(field.Type) == schema.TypeHidden {
		wrap := dom.NewNode(dom.KindContainer)
		wrap.SetAttr("data-field", field.Name)
		wrap.Append(input)
		ctrl.wrap = wrap
	} else {
		ctrl.wrap, _ = wrapControl(b, field, input)
	}
	return ctrl, nil
}

func (c *textController) Field() schema.Field { return c.field }
func (c *textController) Node() *dom.Node     { return c.wrap }
func (c *textController) Control() *dom.Node  { return c.input }
func (c *textController) Value() any          { return c.input.Value }

// checkboxController submits a real boolean regardless of how the value
// arrived in the item.
type checkboxController struct {
	field schema.Field
	wrap  *dom.Node
	input *dom.Node
}

func newCheckboxController(b *Builder, field schema.Field, value any) (Controller, error) {
	input := dom.NewNode(dom.KindInput)
	input.SetAttr("type", "checkbox")
	applyAttrs(input, field)
	input.Checked = truthy(value)

	wrap, _ := wrapControl(b, field, input)
	return &checkboxController{field: field, wrap: wrap, input: input}, nil
}

func (c *checkboxController) Field() schema.Field { return c.field }
func (c *checkboxController) Node() *dom.Node     { return c.wrap }
func (c *checkboxController) Control() *dom.Node  { return c.input }
func (c *checkboxController) Value() any          { return c.input.Checked }

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(strings.ToLower(v))
		return s == "true" || s == "1" || s == "on" || s == "yes"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// numberController submits a float64, or nil when the control is blank or
// unparsable.
type numberController struct {
	field schema.Field
	wrap  *dom.Node
	input *dom.Node
}

func newNumberController(b *Builder, field schema.Field, value any) (Controller, error) {
	input := dom.NewNode(dom.KindInput)
	input.SetAttr("type", "number")
	applyAttrs(input, field)
	input.Value = schema.Stringify(value)

	wrap, _ := wrapControl(b, field, input)
	return &numberController{field: field, wrap: wrap, input: input}, nil
}

func (c *numberController) Field() schema.Field { return c.field }
func (c *numberController) Node() *dom.Node     { return c.wrap }
func (c *numberController) Control() *dom.Node  { return c.input }

func (c *numberController) Value() any {
	raw := strings.TrimSpace(c.input.Value)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return v
}
