package routers

import (
	"fmt"
	"letta-mcp-server/internal/letta"
)

// NewAll builds the seven consolidated routers in catalogue order. A handler
// table that does not cover its operations fails here, before any tool is
// registered.
func NewAll(client letta.Client, opts Options) ([]Router, error) {
	if client == nil {
		return nil, fmt.Errorf("routers: letta client is required")
	}

	builders := []func() (Router, error){
		func() (Router, error) { return NewAgentRouter(client, opts) },
		func() (Router, error) { return NewMemoryRouter(client, opts) },
		func() (Router, error) { return NewToolRouter(client, opts) },
		func() (Router, error) { return NewSourceRouter(client, opts) },
		func() (Router, error) { return NewJobRouter(client, opts) },
		func() (Router, error) { return NewFileFolderRouter(client, opts) },
		func() (Router, error) { return NewMCPOpsRouter(client, opts) },
	}

	all := make([]Router, 0, len(builders))
	for _, build := range builders {
		r, err := build()
		if err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	return all, nil
}
