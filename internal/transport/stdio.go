package transport

import (
	"context"
	"errors"
	"letta-mcp-server/internal/server"

	"github.com/fredcamaral/gomcp-sdk/transport"
)

// ServeStdio runs the MCP session over stdin and stdout until ctx ends
func ServeStdio(ctx context.Context, s *server.LettaServer) error {
	mcpServer := s.MCPServer()
	mcpServer.SetTransport(transport.NewStdioTransport())
	if err := mcpServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
