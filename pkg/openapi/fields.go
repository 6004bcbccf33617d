// Package openapi derives field schemas from OpenAPI documents, so an admin
// table can be pointed at an operation instead of a hand-written schema.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/CalistaF0X/basetable/pkg/schema"
)

// requestMediaTypes are probed in preference order for the request body
// schema.
var requestMediaTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// refExtensionKey marks a property as reference-driven; its value names the
// option source.
const refExtensionKey = "x-ref"

// FieldsFromDocument loads an OpenAPI document and maps the request body of
// the named operation onto a field schema. Properties are emitted in
// alphabetical order with the document's required list applied.
func FieldsFromDocument(ctx context.Context, raw []byte, operationID string) ([]schema.Field, error) {
	if len(raw) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}

	operation := findOperation(doc, operationID)
	if operation == nil {
		return nil, fmt.Errorf("openapi: operation %q not found", operationID)
	}
	body := requestSchema(operation)
	if body == nil {
		return nil, fmt.Errorf("openapi: operation %q has no request body schema", operationID)
	}

	required := make(map[string]bool, len(body.Required))
	for _, name := range body.Required {
		required[name] = true
	}

	names := make([]string, 0, len(body.Properties))
	for name := range body.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]schema.Field, 0, len(names))
	for _, name := range names {
		ref := body.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		field := fieldFromProperty(name, ref.Value)
		field.Required = required[name]
		out = append(out, field)
	}
	if err := schema.Validate(out); err != nil {
		return nil, fmt.Errorf("openapi: operation %q: %w", operationID, err)
	}
	return out, nil
}

func findOperation(doc *openapi3.T, operationID string) *openapi3.Operation {
	if doc.Paths == nil {
		return nil
	}
	for _, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for _, op := range []*openapi3.Operation{
			item.Get, item.Put, item.Post, item.Delete,
			item.Patch, item.Head, item.Options, item.Trace,
		} {
			if op != nil && op.OperationID == operationID {
				return op
			}
		}
	}
	return nil
}

func requestSchema(operation *openapi3.Operation) *openapi3.Schema {
	if operation.RequestBody == nil || operation.RequestBody.Value == nil {
		return nil
	}
	content := operation.RequestBody.Value.Content
	for _, mediaType := range requestMediaTypes {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil && mt.Schema.Value != nil {
			return mt.Schema.Value
		}
	}
	for _, mt := range content {
		if mt.Schema != nil && mt.Schema.Value != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

// fieldFromProperty maps one property schema onto a field definition.
func fieldFromProperty(name string, prop *openapi3.Schema) schema.Field {
	field := schema.Field{
		Name:  name,
		Label: prop.Title,
		Type:  schema.TypeText,
	}

	if ref, ok := prop.Extensions[refExtensionKey].(string); ok && ref != "" {
		field.Type = schema.TypeSelect
		field.Ref = ref
		return field
	}
	if len(prop.Enum) > 0 {
		field.Type = schema.TypeSelect
		options := make([]any, len(prop.Enum))
		copy(options, prop.Enum)
		field.Options = options
		return field
	}

	switch propertyType(prop) {
	case "integer", "number":
		field.Type = schema.TypeNumber
	case "boolean":
		field.Type = schema.TypeCheckbox
	case "object":
		field.Type = schema.TypeJSON
	case "array":
		field.Type = schema.TypeJSON
	case "string":
		switch prop.Format {
		case "date", "date-time":
			field.Type = schema.TypeDate
		case "uri":
			field.Type = schema.TypeLink
		default:
			field.Type = schema.TypeText
		}
	}
	return field
}

func propertyType(prop *openapi3.Schema) string {
	if prop.Type == nil {
		return ""
	}
	for _, t := range prop.Type.Slice() {
		if t != "null" {
			return t
		}
	}
	return ""
}
