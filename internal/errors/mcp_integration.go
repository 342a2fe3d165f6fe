package errors

import (
	"context"
	"letta-mcp-server/internal/logging"
	"net/http"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// MCPErrorHandler converts errors into protocol responses
type MCPErrorHandler struct {
	traceIDGenerator func() string
}

// NewMCPErrorHandler creates a new MCP error handler
func NewMCPErrorHandler() *MCPErrorHandler {
	return &MCPErrorHandler{
		traceIDGenerator: logging.GenerateTraceID,
	}
}

// Normalize returns the StandardError for err, classifying unknown errors as
// backend failures
func (h *MCPErrorHandler) Normalize(ctx context.Context, err error) *StandardError {
	if err == nil {
		return nil
	}
	stdErr, ok := AsStandard(err)
	if !ok {
		stdErr = NewBackendError("request processing failed", err, nil)
	}
	if stdErr.ErrorInfo.TraceID == "" {
		traceID := logging.GetTraceID(ctx)
		if traceID == "" {
			traceID = h.traceIDGenerator()
		}
		stdErr = stdErr.clone().WithTraceID(traceID)
	}
	return stdErr
}

// HandleJSONRPCError processes errors for JSON-RPC responses
func (h *MCPErrorHandler) HandleJSONRPCError(ctx context.Context, err error, id interface{}) *protocol.JSONRPCResponse {
	if err == nil {
		return nil
	}
	return h.Normalize(ctx, err).ToJSONRPCError(id)
}

// HandleHTTPError processes errors for HTTP responses
func (h *MCPErrorHandler) HandleHTTPError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	h.Normalize(ctx, err).WriteHTTPError(w)
}

// ToolCallError renders err as an MCP tool result flagged isError, with the
// structured error as its text content
func (h *MCPErrorHandler) ToolCallError(ctx context.Context, err error) *protocol.ToolCallResult {
	stdErr := h.Normalize(ctx, err)
	payload, marshalErr := stdErr.ToJSON()
	if marshalErr != nil {
		return protocol.NewToolCallError(stdErr.Error())
	}
	return protocol.NewToolCallError(string(payload))
}

// clone returns a shallow copy so shared sentinels are never mutated
func (e *StandardError) clone() *StandardError {
	c := *e
	return &c
}
