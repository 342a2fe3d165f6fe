package docs

import (
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/schema"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPI describes the HTTP transport: the JSON-RPC endpoint, one direct
// call endpoint per tool and the operational endpoints
func OpenAPI(tools []*schema.Tool, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Letta MCP Server API",
			Description: "Model Context Protocol server exposing consolidated Letta tools",
			Version:     version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}

	envelope := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("operation", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema())
	envelope.AdditionalProperties = openapi3.AdditionalProperties{Has: openapi3.BoolPtr(true)}
	doc.Components.Schemas["Envelope"] = openapi3.NewSchemaRef("", envelope)
	envelopeRef := openapi3.NewSchemaRef("#/components/schemas/Envelope", envelope)

	errorSchema := openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("trace_id", openapi3.NewStringSchema())
	doc.Components.Schemas["Error"] = openapi3.NewSchemaRef("", errorSchema)
	errorRef := openapi3.NewSchemaRef("#/components/schemas/Error", errorSchema)

	rpc := openapi3.NewOperation()
	rpc.OperationID = "mcpJSONRPC"
	rpc.Tags = []string{"MCP Protocol"}
	rpc.Summary = "JSON-RPC 2.0 MCP endpoint"
	rpc.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithRequired(true).
		WithJSONSchema(openapi3.NewObjectSchema().
			WithProperty("jsonrpc", openapi3.NewStringSchema()).
			WithProperty("method", openapi3.NewStringSchema()).
			WithPropertyRef("params", openapi3.NewSchemaRef("", openapi3.NewObjectSchema())))}
	rpc.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse("JSON-RPC response", openapi3.NewSchemaRef("", openapi3.NewObjectSchema()))),
		openapi3.WithStatus(http.StatusUnauthorized, jsonResponse("Missing or invalid bearer token", errorRef)),
	)
	doc.AddOperation("/mcp", http.MethodPost, rpc)

	for _, tool := range tools {
		doc.Components.Schemas[tool.Name] = openapi3.NewSchemaRef("", tool.Schema)

		op := openapi3.NewOperation()
		op.OperationID = "call" + strings.ReplaceAll(Title(tool.Name), " ", "")
		op.Tags = []string{"Tools"}
		op.Summary = Title(tool.Name)
		op.Description = tool.Description
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+tool.Name, tool.Schema))}
		op.Responses = openapi3.NewResponses(
			openapi3.WithStatus(http.StatusOK, jsonResponse("Operation envelope", envelopeRef)),
			openapi3.WithStatus(http.StatusBadRequest, jsonResponse("Invalid arguments", errorRef)),
			openapi3.WithStatus(http.StatusNotFound, jsonResponse("Backend entity not found", errorRef)),
			openapi3.WithStatus(http.StatusTooManyRequests, jsonResponse("Rate limited", errorRef)),
			openapi3.WithStatus(http.StatusNotImplemented, jsonResponse("Operation not implemented", errorRef)),
		)
		doc.AddOperation("/tools/"+tool.Name, http.MethodPost, op)
	}

	health := openapi3.NewOperation()
	health.OperationID = "health"
	health.Tags = []string{"Health"}
	health.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResponse("Service is healthy", openapi3.NewSchemaRef("", openapi3.NewObjectSchema()))),
	)
	doc.AddOperation("/health", http.MethodGet, health)

	metrics := openapi3.NewOperation()
	metrics.OperationID = "metrics"
	metrics.Tags = []string{"Monitoring"}
	metrics.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription("Prometheus metrics").
			WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/plain"}))}),
	)
	doc.AddOperation("/metrics", http.MethodGet, metrics)

	return doc
}

// DefaultOpenAPI uses the running service version
func DefaultOpenAPI(tools []*schema.Tool) *openapi3.T {
	return OpenAPI(tools, config.ServiceVersion)
}

func jsonResponse(description string, ref *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(ref)}
}
