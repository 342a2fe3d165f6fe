package cmd

import (
	"encoding/json"
	"fmt"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/docs"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchemaCmd() *cobra.Command {
	var format string
	var openapi bool

	c := &cobra.Command{
		Use:   "schema",
		Short: "Print the input schema of every tool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			tools, err := offlineTools(cfg)
			if err != nil {
				return err
			}

			var doc interface{} = tools
			if openapi {
				doc = docs.DefaultOpenAPI(tools)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer func() { _ = enc.Close() }()
				return enc.Encode(doc)
			default:
				return fmt.Errorf("unknown format %q: use json or yaml", format)
			}
		},
	}
	c.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	c.Flags().BoolVar(&openapi, "openapi", false, "print the OpenAPI document of the HTTP transport instead")
	return c
}
