package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Creation(t *testing.T) {
	tests := []struct {
		name            string
		createError     func() *StandardError
		expectedCode    ErrorCode
		expectedMessage string
		retryable       bool
	}{
		{
			name:            "missing field",
			createError:     func() *StandardError { return NewMissingFieldError("agent_id", "get") },
			expectedCode:    ErrorCodeMissingField,
			expectedMessage: "get: required field 'agent_id' is missing",
		},
		{
			name:            "invalid identifier",
			createError:     func() *StandardError { return NewInvalidIdentifierError("block_id", "nope", nil) },
			expectedCode:    ErrorCodeInvalidIdentifier,
			expectedMessage: `invalid identifier for 'block_id': "nope"`,
		},
		{
			name:            "invalid payload",
			createError:     func() *StandardError { return NewInvalidPayloadError("file_data", "not base64", nil) },
			expectedCode:    ErrorCodeInvalidPayload,
			expectedMessage: "invalid value for 'file_data': not base64",
		},
		{
			name:            "not found",
			createError:     func() *StandardError { return NewNotFoundError("agent", "agent-1") },
			expectedCode:    ErrorCodeNotFound,
			expectedMessage: "agent 'agent-1' not found",
		},
		{
			name:            "backend internal is retryable",
			createError:     func() *StandardError { return NewBackendError("list agents", assert.AnError, nil) },
			expectedCode:    ErrorCodeBackendInternal,
			expectedMessage: "list agents: " + assert.AnError.Error(),
			retryable:       true,
		},
		{
			name:            "not implemented",
			createError:     func() *StandardError { return NewNotImplementedError("connect", "server connection") },
			expectedCode:    ErrorCodeNotImplemented,
			expectedMessage: "connect: not implemented: server connection",
		},
		{
			name:            "rate limited",
			createError:     func() *StandardError { return NewRateLimitError(60, "1m", time.Second) },
			expectedCode:    ErrorCodeRateLimited,
			expectedMessage: "rate limit exceeded: 60 requests per 1m",
			retryable:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.createError()

			assert.Equal(t, tt.expectedCode, err.ErrorInfo.Code)
			assert.Equal(t, tt.expectedMessage, err.Error())
			assert.Equal(t, tt.retryable, err.ErrorInfo.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestStandardError_IsAcrossWrapping(t *testing.T) {
	err := fmt.Errorf("delete: %w", NewNotFoundError("agent", "agent-x"))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotImplemented(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, ErrorCodeNotFound, CodeOf(err))

	notImpl := fmt.Errorf("wrap: %w", NewNotImplementedError("connect", "x"))
	assert.True(t, IsNotImplemented(notImpl))
	assert.False(t, errors.Is(notImpl, ErrBackendInternal))
}

func TestStandardError_WithOperation(t *testing.T) {
	err := NewNotFoundError("tool", "tool-1").WithOperation("delete")
	assert.Equal(t, "delete: tool 'tool-1' not found", err.Error())
	assert.Equal(t, "delete", err.ErrorInfo.Operation)

	// applying twice does not double the prefix
	err.WithOperation("delete")
	assert.Equal(t, "delete: tool 'tool-1' not found", err.Error())
}

func TestStandardError_ToJSONRPCError(t *testing.T) {
	tests := []struct {
		name         string
		error        *StandardError
		expectedCode int
	}{
		{"missing field maps to invalid params", NewMissingFieldError("x", "get"), -32602},
		{"invalid identifier maps to invalid params", NewInvalidIdentifierError("x", "y", nil), -32602},
		{"not implemented maps to method not found", NewNotImplementedError("execute", "x"), -32601},
		{"not found maps to custom code", NewNotFoundError("job", "job-1"), -32004},
		{"unauthorized maps to server error", NewUnauthorizedError("bad token"), -32000},
		{"backend internal maps to internal error", NewBackendError("boom", nil, nil), -32603},
		{"rate limited maps to custom code", NewRateLimitError(1, "1s", time.Second), -32001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.error.ToJSONRPCError("id-1")

			assert.Equal(t, "2.0", resp.JSONRPC)
			assert.Equal(t, "id-1", resp.ID)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.error.ErrorInfo.Message, resp.Error.Message)
		})
	}
}

func TestStandardError_ToHTTPStatus(t *testing.T) {
	tests := []struct {
		error          *StandardError
		expectedStatus int
	}{
		{NewMissingFieldError("x", "op"), http.StatusBadRequest},
		{NewInvalidPayloadError("x", "bad", nil), http.StatusBadRequest},
		{NewNotFoundError("agent", "a"), http.StatusNotFound},
		{NewUnauthorizedError("r"), http.StatusUnauthorized},
		{NewNotImplementedError("op", "c"), http.StatusNotImplemented},
		{NewRateLimitError(1, "1s", time.Second), http.StatusTooManyRequests},
		{NewBackendError("b", nil, nil), http.StatusBadGateway},
		{&StandardError{ErrorInfo: ErrorDetails{Code: "UNKNOWN"}}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.error.ErrorInfo.Code), func(t *testing.T) {
			assert.Equal(t, tt.expectedStatus, tt.error.ToHTTPStatus())
		})
	}
}

func TestStandardError_WriteHTTPError(t *testing.T) {
	recorder := httptest.NewRecorder()
	NewRateLimitError(100, "1m", 60*time.Second).WithTraceID("trace-1").WriteHTTPError(recorder)

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "60", recorder.Header().Get("Retry-After"))
	assert.Equal(t, "100", recorder.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "trace-1", recorder.Header().Get("X-Trace-ID"))

	var response StandardError
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, ErrorCodeRateLimited, response.ErrorInfo.Code)
	assert.True(t, response.ErrorInfo.Retryable)
}

func TestMCPErrorHandler_ToolCallError(t *testing.T) {
	h := NewMCPErrorHandler()

	t.Run("classified error keeps its code", func(t *testing.T) {
		result := h.ToolCallError(context.Background(), fmt.Errorf("wrapped: %w", NewNotFoundError("agent", "agent-1")))
		require.True(t, result.IsError)
		require.Len(t, result.Content, 1)

		var payload StandardError
		require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &payload))
		assert.Equal(t, ErrorCodeNotFound, payload.ErrorInfo.Code)
		assert.NotEmpty(t, payload.ErrorInfo.TraceID)
	})

	t.Run("plain error becomes backend internal", func(t *testing.T) {
		stdErr := h.Normalize(context.Background(), errors.New("socket closed"))
		assert.Equal(t, ErrorCodeBackendInternal, stdErr.ErrorInfo.Code)
		assert.Contains(t, stdErr.Error(), "socket closed")
	})

	t.Run("sentinels are not mutated", func(t *testing.T) {
		_ = h.Normalize(context.Background(), ErrNotImplemented)
		assert.Empty(t, ErrNotImplemented.ErrorInfo.TraceID)
	})
}
