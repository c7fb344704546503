package schema

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// ResponseFormat is the format of the response.
type ResponseFormat struct {
	Type       string                    `json:"type"`
	JSONSchema *ResponseFormatJSONSchema `json:"json_schema,omitempty"`
}

// ResponseFormatJSONSchema names the schema a response must conform to.
type ResponseFormatJSONSchema struct {
	Name   string                            `json:"name"`
	Strict bool                              `json:"strict"`
	Schema *ResponseFormatJSONSchemaProperty `json:"schema"`
}

// ResponseFormatJSONSchemaProperty is a single schema node in the response format.
type ResponseFormatJSONSchemaProperty struct {
	Type                 string                                       `json:"type"`
	Title                string                                       `json:"title,omitempty"`
	Description          string                                       `json:"description,omitempty"`
	Enum                 []any                                        `json:"enum,omitempty"`
	Default              any                                          `json:"default,omitempty"`
	Examples             []any                                        `json:"examples,omitempty"`
	Items                *ResponseFormatJSONSchemaProperty            `json:"items,omitempty"`
	Properties           map[string]*ResponseFormatJSONSchemaProperty `json:"properties,omitempty"`
	AdditionalProperties *bool                                        `json:"additionalProperties,omitempty"`
	Required             []string                                     `json:"required,omitempty"`
	Ref                  string                                       `json:"$ref,omitempty"`
}

// NewResponseFormat builds an OpenAI-style response format from a Go type.
// When strict is set, the provider enforces the schema exactly.
func NewResponseFormat(t reflect.Type, strict bool) (*ResponseFormat, error) {
	sc, err := New(t)
	if err != nil {
		return nil, err
	}
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &ResponseFormatJSONSchema{
			Name:   t.Name(),
			Strict: strict,
			Schema: flattenSchema(sc.Parameters),
		},
	}, nil
}

// flattenSchema converts a reflected jsonschema node into the property tree
// the OpenAI response_format API accepts. Objects without an explicit
// additionalProperties schema are closed.
func flattenSchema(in *jsonschema.Schema) *ResponseFormatJSONSchemaProperty {
	if in == nil {
		return nil
	}

	out := &ResponseFormatJSONSchemaProperty{
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Enum:        in.Enum,
		Default:     in.Default,
		Examples:    in.Examples,
		Required:    in.Required,
		Ref:         in.Ref,
		Items:       flattenSchema(in.Items),
	}

	switch {
	case in.AdditionalProperties != nil:
		out.AdditionalProperties = boolPtr(true)
	case in.Type == "object":
		out.AdditionalProperties = boolPtr(false)
	}

	if in.Properties != nil && in.Properties.Len() > 0 {
		out.Properties = make(map[string]*ResponseFormatJSONSchemaProperty, in.Properties.Len())
		for pair := in.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = flattenSchema(pair.Value)
		}
	}

	return out
}

func boolPtr(b bool) *bool {
	return &b
}
