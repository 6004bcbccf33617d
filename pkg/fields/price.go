package fields

import (
	"golang.org/x/text/language"

	"github.com/CalistaF0X/basetable/internal/money"
	"github.com/CalistaF0X/basetable/pkg/dom"
	"github.com/CalistaF0X/basetable/pkg/schema"
)

// priceController pairs a visible masked input with a hidden control that
// always holds the canonical numeric string. The mask re-renders the display
// on every input event; the hidden control is what gets submitted, so the
// formatted text never leaks into the payload.
type priceController struct {
	field   schema.Field
	wrap    *dom.Node
	display *dom.Node
	hidden  *dom.Node
	locale  language.Tag
}

func newPriceController(b *Builder, field schema.Field, value any) (Controller, error) {
	display := dom.NewNode(dom.KindInput)
	applyAttrs(display, field)
	display.SetAttr("inputmode", "decimal")

	hidden := dom.NewNode(dom.KindInput)
	hidden.Hidden = true
	hidden.SetAttr("name", field.Name)
	// The display control must not shadow the hidden one on submit.
	display.SetAttr("name", field.Name+"_display")

	ctrl := &priceController{
		field:   field,
		display: display,
		hidden:  hidden,
		locale:  b.Factory.locale,
	}

	if v, ok := money.ParseAny(value); ok {
		ctrl.apply(v)
	}

	wrap, _ := wrapControl(b, field, display)
	wrap.Append(hidden)
	ctrl.wrap = wrap

	if fn := b.Factory.maskFunc; fn != nil {
		fn(display, hidden, field)
	} else {
		b.Registry.Track(display, dom.EventInput, func(e *dom.Event) {
			ctrl.remask()
		})
	}
	return ctrl, nil
}

// apply writes both representations of v. The display caret lands at the
// end of the re-rendered text, which is where masked numeric entry expects
// it.
func (c *priceController) apply(v float64) {
	c.display.Value = money.Format(v, c.field.Precision, c.locale)
	c.hidden.Value = money.Canonical(v, c.field.Precision)
}

func (c *priceController) remask() {
	v, ok := money.Parse(c.display.Value)
	if !ok {
		c.display.Value = ""
		c.hidden.Value = ""
		return
	}
	c.apply(v)
}

func (c *priceController) Field() schema.Field { return c.field }
func (c *priceController) Node() *dom.Node     { return c.wrap }
func (c *priceController) Control() *dom.Node  { return c.display }
func (c *priceController) Value() any          { return c.hidden.Value }
