// Package errors provides the error taxonomy shared by the dispatch layer,
// the Letta backend client and the transports.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// ErrorCode represents semantic error codes for consistent error handling
type ErrorCode string

const (
	// Client input errors, never retried
	ErrorCodeMissingField      ErrorCode = "MISSING_FIELD"
	ErrorCodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"
	ErrorCodeInvalidPayload    ErrorCode = "INVALID_PAYLOAD"

	// Backend classified errors
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeBackendInternal ErrorCode = "BACKEND_INTERNAL"

	// Surface errors
	ErrorCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
)

// JSON-RPC codes outside the reserved -32600..-32603 range
const (
	rpcCodeUnauthorized = -32000
	rpcCodeRateLimited  = -32001
	rpcCodeNotFound     = -32004
)

// StandardError represents the unified error structure across all protocols
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
	cause     error
}

// Error implements the Go error interface
func (e *StandardError) Error() string {
	return e.ErrorInfo.Message
}

// Unwrap exposes the underlying cause, if any
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code, so sentinel
// comparisons like errors.Is(err, ErrNotImplemented) work across wrapping.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !errors.As(target, &t) {
		return false
	}
	return t.ErrorInfo.Code == e.ErrorInfo.Code
}

// ErrorDetails contains the detailed error information
type ErrorDetails struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Operation string      `json:"operation,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// FieldDetail names the request field an input error refers to
type FieldDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// BackendDetail records what the backend answered
type BackendDetail struct {
	Status   int    `json:"status,omitempty"`
	Method   string `json:"method,omitempty"`
	Path     string `json:"path,omitempty"`
	Response string `json:"response,omitempty"`
}

// RateLimitDetail provides rate limiting error information
type RateLimitDetail struct {
	Limit      int           `json:"limit"`
	Window     string        `json:"window"`
	RetryAfter time.Duration `json:"retry_after"`
}

// NewStandardError creates a new standardized error
func NewStandardError(code ErrorCode, message string, details interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:      code,
			Message:   message,
			Details:   details,
			Retryable: code == ErrorCodeBackendInternal || code == ErrorCodeRateLimited,
		},
	}
}

// NewMissingFieldError reports a required field absent for an operation
func NewMissingFieldError(field, operation string) *StandardError {
	err := NewStandardError(ErrorCodeMissingField,
		fmt.Sprintf("%s: required field '%s' is missing", operation, field),
		FieldDetail{Field: field, Reason: "missing_required_field"})
	err.ErrorInfo.Operation = operation
	return err
}

// NewInvalidIdentifierError reports an identifier that failed to parse
func NewInvalidIdentifierError(field, raw string, cause error) *StandardError {
	msg := fmt.Sprintf("invalid identifier for '%s': %q", field, raw)
	if cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, cause)
	}
	err := NewStandardError(ErrorCodeInvalidIdentifier, msg,
		FieldDetail{Field: field, Reason: "malformed_identifier", Value: raw})
	err.cause = cause
	return err
}

// NewInvalidPayloadError reports a field whose value has the wrong shape
func NewInvalidPayloadError(field, reason string, value interface{}) *StandardError {
	return NewStandardError(ErrorCodeInvalidPayload,
		fmt.Sprintf("invalid value for '%s': %s", field, reason),
		FieldDetail{Field: field, Reason: reason, Value: value})
}

// NewNotFoundError reports a backend entity that does not exist
func NewNotFoundError(resource, id string) *StandardError {
	return NewStandardError(ErrorCodeNotFound,
		fmt.Sprintf("%s '%s' not found", resource, id),
		map[string]interface{}{"resource": resource, "id": id})
}

// NewUnauthorizedError reports rejected credentials
func NewUnauthorizedError(reason string) *StandardError {
	return NewStandardError(ErrorCodeUnauthorized, "authentication rejected",
		map[string]interface{}{"reason": reason})
}

// NewBackendError reports an unexpected backend status or transport failure
func NewBackendError(message string, cause error, detail *BackendDetail) *StandardError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	var details interface{}
	if detail != nil {
		details = *detail
	}
	err := NewStandardError(ErrorCodeBackendInternal, message, details)
	err.cause = cause
	return err
}

// NewNotImplementedError reports an enumerated operation the backend
// integration cannot serve
func NewNotImplementedError(operation, capability string) *StandardError {
	err := NewStandardError(ErrorCodeNotImplemented,
		fmt.Sprintf("%s: not implemented: %s", operation, capability),
		map[string]interface{}{"capability": capability})
	err.ErrorInfo.Operation = operation
	return err
}

// NewRateLimitError creates a rate limiting error
func NewRateLimitError(limit int, window string, retryAfter time.Duration) *StandardError {
	return NewStandardError(ErrorCodeRateLimited,
		fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		RateLimitDetail{Limit: limit, Window: window, RetryAfter: retryAfter})
}

// WithTraceID adds a trace ID to the error for debugging
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// WithOperation prefixes the message with the operation that failed
func (e *StandardError) WithOperation(operation string) *StandardError {
	if e.ErrorInfo.Operation == "" {
		e.ErrorInfo.Operation = operation
	}
	if !strings.HasPrefix(e.ErrorInfo.Message, operation+":") {
		e.ErrorInfo.Message = operation + ": " + e.ErrorInfo.Message
	}
	return e
}

// ToJSONRPCError converts StandardError to JSON-RPC error format
func (e *StandardError) ToJSONRPCError(id interface{}) *protocol.JSONRPCResponse {
	return &protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &protocol.JSONRPCError{
			Code:    e.rpcCode(),
			Message: e.ErrorInfo.Message,
			Data:    e,
		},
	}
}

func (e *StandardError) rpcCode() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeMissingField, ErrorCodeInvalidIdentifier, ErrorCodeInvalidPayload:
		return protocol.InvalidParams
	case ErrorCodeNotImplemented:
		return protocol.MethodNotFound
	case ErrorCodeNotFound:
		return rpcCodeNotFound
	case ErrorCodeUnauthorized:
		return rpcCodeUnauthorized
	case ErrorCodeRateLimited:
		return rpcCodeRateLimited
	default:
		return protocol.InternalError
	}
}

// ToHTTPStatus maps StandardError to appropriate HTTP status code
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeMissingField, ErrorCodeInvalidIdentifier, ErrorCodeInvalidPayload:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeNotImplemented:
		return http.StatusNotImplemented
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrorCodeBackendInternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts StandardError to JSON bytes
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes StandardError as HTTP response
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}

	if e.ErrorInfo.Code == ErrorCodeRateLimited {
		if detail, ok := e.ErrorInfo.Details.(RateLimitDetail); ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", detail.RetryAfter.Seconds()))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", detail.Limit))
		}
	}

	w.WriteHeader(e.ToHTTPStatus())

	jsonBytes, _ := e.ToJSON()
	_, _ = w.Write(jsonBytes)
}

// Sentinels for errors.Is comparisons; only the code is compared.
var (
	ErrMissingField      = NewStandardError(ErrorCodeMissingField, "missing field", nil)
	ErrInvalidIdentifier = NewStandardError(ErrorCodeInvalidIdentifier, "invalid identifier", nil)
	ErrInvalidPayload    = NewStandardError(ErrorCodeInvalidPayload, "invalid payload", nil)
	ErrNotFound          = NewStandardError(ErrorCodeNotFound, "not found", nil)
	ErrUnauthorized      = NewStandardError(ErrorCodeUnauthorized, "unauthorized", nil)
	ErrBackendInternal   = NewStandardError(ErrorCodeBackendInternal, "backend internal error", nil)
	ErrNotImplemented    = NewStandardError(ErrorCodeNotImplemented, "not implemented", nil)
	ErrRateLimited       = NewStandardError(ErrorCodeRateLimited, "rate limited", nil)
)

// AsStandard extracts the StandardError from an error chain
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in the chain, or
// BACKEND_INTERNAL for unclassified errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.ErrorInfo.Code
	}
	return ErrorCodeBackendInternal
}

// IsInputError checks if the error was caused by caller input
func IsInputError(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeMissingField, ErrorCodeInvalidIdentifier, ErrorCodeInvalidPayload:
		return true
	default:
		return false
	}
}

func IsNotFound(err error) bool       { return errors.Is(err, ErrNotFound) }
func IsUnauthorized(err error) bool   { return errors.Is(err, ErrUnauthorized) }
func IsNotImplemented(err error) bool { return errors.Is(err, ErrNotImplemented) }

// IsRetryable reports whether a caller may retry the failed call
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.ErrorInfo.Retryable
	}
	return true
}
