package letta

import (
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"strings"

	"github.com/google/uuid"
)

// ID is a Letta entity identifier of the form <prefix>-<uuid>, for example
// agent-6f1c2a9e-0b7d-4d39-9a57-0f4c2d1e8a10
type ID string

// String returns the wire form of the identifier
func (id ID) String() string { return string(id) }

// Prefix returns the entity prefix ("agent", "block", ...)
func (id ID) Prefix() string {
	prefix, _, _ := strings.Cut(string(id), "-")
	return prefix
}

// ParseID validates raw as a Letta identifier. field names the request
// field the value came from and is echoed in the returned error.
func ParseID(field, raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	prefix, rest, ok := strings.Cut(trimmed, "-")
	if !ok || prefix == "" {
		return "", mcperrors.NewInvalidIdentifierError(field, raw, fmt.Errorf("expected <prefix>-<uuid>"))
	}
	for _, r := range prefix {
		if (r < 'a' || r > 'z') && r != '_' {
			return "", mcperrors.NewInvalidIdentifierError(field, raw, fmt.Errorf("invalid prefix %q", prefix))
		}
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", mcperrors.NewInvalidIdentifierError(field, raw, err)
	}
	return ID(trimmed), nil
}

// ParseIDs parses every element of raw, failing on the first malformed one
func ParseIDs(field string, raw []string) ([]ID, error) {
	ids := make([]ID, 0, len(raw))
	for i, r := range raw {
		id, err := ParseID(fmt.Sprintf("%s[%d]", field, i), r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewID generates a fresh identifier with the given prefix
func NewID(prefix string) ID {
	return ID(prefix + "-" + uuid.NewString())
}
