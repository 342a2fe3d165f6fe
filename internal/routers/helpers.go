package routers

import (
	"context"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
)

// DefaultPageSize applies to list operations called without a limit
const DefaultPageSize = 50

// Pagination is the nested paging object some tools accept
type Pagination struct {
	Limit  int `json:"limit,omitempty" mapstructure:"limit"`
	Offset int `json:"offset,omitempty" mapstructure:"offset"`
}

// page validates limit/offset and applies the default page size
func page(limit, offset int) (letta.ListParams, error) {
	if limit < 0 {
		return letta.ListParams{}, mcperrors.NewInvalidPayloadError("limit", "must not be negative", limit)
	}
	if offset < 0 {
		return letta.ListParams{}, mcperrors.NewInvalidPayloadError("offset", "must not be negative", offset)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	return letta.ListParams{Limit: limit, Offset: offset}, nil
}

// window applies p to items the backend returned unpaged
func window[T any](items []T, p letta.ListParams) []T {
	if p.Offset >= len(items) {
		return items[:0]
	}
	end := len(items)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return items[p.Offset:end]
}

func countOf(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

// optionalID parses raw when it is set
func optionalID(field, raw string) (letta.ID, bool, error) {
	if raw == "" {
		return "", false, nil
	}
	id, err := letta.ParseID(field, raw)
	return id, err == nil, err
}

// BulkOutcome classifies the result of a bulk operation
type BulkOutcome string

const (
	OutcomeAllSucceeded BulkOutcome = "all_succeeded"
	OutcomePartial      BulkOutcome = "partial"
	OutcomeAllFailed    BulkOutcome = "all_failed"
)

// BulkItem is the result for one id of a bulk operation
type BulkItem struct {
	ID      string              `json:"id"`
	Success bool                `json:"success"`
	Code    mcperrors.ErrorCode `json:"code,omitempty"`
	Error   string              `json:"error,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
}

// BulkResult collects per-item results in caller order
type BulkResult struct {
	Outcome BulkOutcome `json:"outcome"`
	Results []BulkItem  `json:"results"`
	Errors  []BulkItem  `json:"errors"`
}

// Succeeded reports whether no item failed
func (b BulkResult) Succeeded() bool { return len(b.Errors) == 0 }

// runBulk applies fn to every id in order. An item failure is recorded and
// processing continues with the next id.
func runBulk(ctx context.Context, ids []letta.ID, fn func(ctx context.Context, id letta.ID) (interface{}, error)) BulkResult {
	result := BulkResult{Results: []BulkItem{}, Errors: []BulkItem{}}
	for _, id := range ids {
		data, err := fn(ctx, id)
		if err != nil {
			result.Errors = append(result.Errors, BulkItem{
				ID:    id.String(),
				Code:  mcperrors.CodeOf(err),
				Error: err.Error(),
			})
			continue
		}
		result.Results = append(result.Results, BulkItem{ID: id.String(), Success: true, Data: data})
	}

	switch {
	case len(result.Errors) == 0:
		result.Outcome = OutcomeAllSucceeded
	case len(result.Results) == 0:
		result.Outcome = OutcomeAllFailed
	default:
		result.Outcome = OutcomePartial
	}
	return result
}
