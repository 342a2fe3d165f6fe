// Package schema derives the JSON Schema published for each consolidated
// tool from its request struct and validates incoming arguments against it.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/routers"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
)

// nonNegative lists integer properties that may not go below zero
var nonNegative = map[string]bool{
	"limit":              true,
	"offset":             true,
	"max_message_length": true,
	"return_char_limit":  true,
}

// Tool is the generated input schema of one router
type Tool struct {
	Name        string                  `json:"name" yaml:"name"`
	Description string                  `json:"description" yaml:"description"`
	Operations  []routers.OperationInfo `json:"operations" yaml:"operations"`
	Schema      *openapi3.Schema        `json:"input_schema" yaml:"input_schema"`

	// validator is Schema without the discriminator constraints, which the
	// router reports itself
	validator *openapi3.Schema
}

// Build generates the input schema for r
func Build(r routers.Router) (*Tool, error) {
	ref, err := openapi3gen.NewSchemaRefForValue(r.Request(), nil,
		openapi3gen.SchemaCustomizer(customize),
		openapi3gen.ThrowErrorOnCycle(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", r.Name(), err)
	}
	s := ref.Value
	if s == nil || s.Properties == nil || s.Properties["operation"] == nil {
		return nil, fmt.Errorf("%s: request type has no operation property", r.Name())
	}
	describe(s)

	validator := *s
	validator.Properties = make(openapi3.Schemas, len(s.Properties))
	for name, prop := range s.Properties {
		validator.Properties[name] = prop
	}
	validator.Properties["operation"] = openapi3.NewSchemaRef("", openapi3.NewSchema())

	ops := r.Operations()
	enum := make([]interface{}, len(ops))
	names := make([]string, len(ops))
	for i, op := range ops {
		enum[i] = op.Name
		names[i] = op.Name
	}
	operation := openapi3.NewStringSchema()
	operation.Enum = enum
	operation.Description = "Operation to perform: " + strings.Join(names, ", ")
	s.Properties["operation"] = openapi3.NewSchemaRef("", operation)
	s.Required = []string{"operation"}
	s.Description = r.Description()

	return &Tool{
		Name:        r.Name(),
		Description: r.Description(),
		Operations:  ops,
		Schema:      s,
		validator:   &validator,
	}, nil
}

// BuildAll generates schemas for every router, sorted by tool name
func BuildAll(all []routers.Router) ([]*Tool, error) {
	tools := make([]*Tool, 0, len(all))
	for _, r := range all {
		t, err := Build(r)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// Map renders the schema as the generic object MCP tool listings carry
func (t *Tool) Map() (map[string]interface{}, error) {
	raw, err := json.Marshal(t.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s schema: %w", t.Name, err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s schema: %w", t.Name, err)
	}
	return out, nil
}

// Validate checks the shape of args. Missing or unknown operations pass
// through so the router can answer with its own error.
func (t *Tool) Validate(args map[string]interface{}) error {
	if args == nil {
		return nil
	}
	err := t.validator.VisitJSON(args)
	if err == nil {
		return nil
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		return mcperrors.NewInvalidPayloadError(fieldPath(schemaErr.JSONPointer()), schemaErr.Reason, nil)
	}
	return mcperrors.NewInvalidPayloadError("arguments", err.Error(), nil)
}

// fieldPath renders a JSON pointer the way request errors name fields,
// for example agent_ids[2] or pagination.limit
func fieldPath(pointer []string) string {
	if len(pointer) == 0 {
		return "arguments"
	}
	var b strings.Builder
	for i, part := range pointer {
		if _, err := strconv.Atoi(part); err == nil && i > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func customize(name string, t reflect.Type, _ reflect.StructTag, s *openapi3.Schema) error {
	if nonNegative[name] && t.Kind() == reflect.Int {
		s.Min = openapi3.Float64Ptr(0)
	}
	if name == "source_type" && t.Kind() == reflect.String {
		s.Enum = make([]interface{}, len(routers.SourceTypes))
		for i, st := range routers.SourceTypes {
			s.Enum[i] = st
		}
	}
	return nil
}

// describe attaches property documentation to s and its nested objects
func describe(s *openapi3.Schema) {
	for name, ref := range s.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		prop := ref.Value
		if doc, found := fieldDocs[name]; found && prop.Description == "" {
			prop.Description = doc
		}
		if prop.Properties != nil {
			describe(prop)
		}
		if prop.Items != nil && prop.Items.Value != nil && prop.Items.Value.Properties != nil {
			describe(prop.Items.Value)
		}
	}
}
