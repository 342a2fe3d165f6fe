// letta-mcp serves the consolidated Letta tools over the Model Context
// Protocol and prints their schemas and catalogue.
package main

import (
	"os"

	"letta-mcp-server/cmd/letta-mcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
