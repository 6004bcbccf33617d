// Package schema defines the declarative field schema that drives both the
// tabular column renderers and the form field controllers.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the closed enumeration of logical field/column types. Hosts may
// register custom renderers and controllers under additional names; unknown
// types fall back to text handling.
type Type string

const (
	TypeText        Type = "text"
	TypeTextArea    Type = "textarea"
	TypeHidden      Type = "hidden"
	TypeLink        Type = "link"
	TypeImage       Type = "image"
	TypeDate        Type = "date"
	TypeNumber      Type = "number"
	TypeBoolean     Type = "boolean"
	TypeCheckbox    Type = "checkbox"
	TypePrice       Type = "price"
	TypeJSON        Type = "json"
	TypeSelect      Type = "select"
	TypeMultiSelect Type = "multiselect"
)

// Normalize canonicalises a type key the same way the renderer dispatch
// does: trimmed and lower-cased.
func Normalize(t Type) Type {
	return Type(strings.ToLower(strings.TrimSpace(string(t))))
}

// Field describes one schema entry. Exactly one of Options (static list) or
// Ref (named async source) may be set; whichever is present governs option
// resolution for select-like fields, the currency list of price fields and
// the category list of image fields.
type Field struct {
	Name      string            `json:"name" yaml:"name"`
	Type      Type              `json:"type" yaml:"type"`
	Label     string            `json:"label,omitempty" yaml:"label,omitempty"`
	Required  bool              `json:"required,omitempty" yaml:"required,omitempty"`
	Options   any               `json:"options,omitempty" yaml:"options,omitempty"`
	Ref       string            `json:"ref,omitempty" yaml:"ref,omitempty"`
	Precision int               `json:"precision,omitempty" yaml:"precision,omitempty"`
	Category  string            `json:"category,omitempty" yaml:"category,omitempty"`
	Group     string            `json:"group,omitempty" yaml:"group,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`

	// ValueKey and LabelKey override the default option key resolution
	// order for select-like fields.
	ValueKey   string `json:"valueKey,omitempty" yaml:"valueKey,omitempty"`
	LabelKey   string `json:"labelKey,omitempty" yaml:"labelKey,omitempty"`
	Searchable bool   `json:"searchable,omitempty" yaml:"searchable,omitempty"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return f.Name
}

// Validate checks schema invariants: non-empty unique names, and the
// Options-xor-Ref rule. Select-like fields must carry one of the two.
func Validate(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for i, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("schema: field %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema: duplicate field name %q", name)
		}
		seen[name] = struct{}{}

		hasOptions := field.Options != nil
		hasRef := strings.TrimSpace(field.Ref) != ""
		if hasOptions && hasRef {
			return fmt.Errorf("schema: field %q sets both options and ref", name)
		}
		switch Normalize(field.Type) {
		case TypeSelect, TypeMultiSelect:
			if !hasOptions && !hasRef {
				return fmt.Errorf("schema: select field %q needs options or ref", name)
			}
		}
	}
	return nil
}

// Default key resolution order for option values and labels. The configured
// key, when present, is probed first; the first present non-null entry wins.
var (
	valueKeys = []string{"value", "id", "name"}
	labelKeys = []string{"name", "fullname", "label", "title"}
)

// OptionValue extracts the submission value from one option entry. Scalar
// options are their own value.
func OptionValue(option any, configured string) string {
	return resolveOptionKey(option, configured, valueKeys)
}

// OptionLabel extracts the display label from one option entry, falling back
// to the option value when no label key matches.
func OptionLabel(option any, configured string) string {
	if label := resolveOptionKey(option, configured, labelKeys); label != "" {
		return label
	}
	return OptionValue(option, "")
}

func resolveOptionKey(option any, configured string, order []string) string {
	entry, ok := option.(map[string]any)
	if !ok {
		return Stringify(option)
	}
	if configured = strings.TrimSpace(configured); configured != "" {
		if v, present := entry[configured]; present && v != nil {
			return Stringify(v)
		}
	}
	for _, key := range order {
		if v, present := entry[key]; present && v != nil {
			return Stringify(v)
		}
	}
	return ""
}

// Stringify renders a scalar value the way option values and cell fallbacks
// expect: integral floats lose their fraction, nil becomes "".
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
