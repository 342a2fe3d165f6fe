// Package cmd holds the letta-mcp command tree.
package cmd

import (
	"fmt"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/letta"
	"letta-mcp-server/internal/logging"
	"letta-mcp-server/internal/routers"
	"letta-mcp-server/internal/schema"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "letta-mcp",
		Short: "MCP server for the Letta agent platform",
		Long: `letta-mcp exposes a Letta server through seven consolidated MCP tools:
agents, memory, tools, sources, jobs, files and folders, and MCP servers.

Configuration comes from .env, the YAML file named by LETTA_MCP_CONFIG and
the environment, in that order.`,
		Version:       config.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSchemaCmd(), newDocsCmd(), newAuditCmd())
	return root
}

// Execute runs the command tree and reports failures on stderr
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
	}
	return err
}

// newLogger builds the process logger from the logging section
func newLogger(cfg config.LoggingConfig) logging.Logger {
	logger := logging.NewLoggerWithOptions(logging.Options{
		Level:  logging.ParseLogLevel(cfg.Level),
		Format: cfg.Format,
	})
	logging.SetDefaultLogger(logger)
	return logger
}

// offlineTools generates the tool schemas without contacting the backend
func offlineTools(cfg *config.Config) ([]*schema.Tool, error) {
	client, err := letta.NewHTTPClient(cfg.Letta, logging.NewNoOpLogger())
	if err != nil {
		return nil, err
	}
	all, err := routers.NewAll(client, routers.Options{})
	if err != nil {
		return nil, err
	}
	return schema.BuildAll(all)
}
