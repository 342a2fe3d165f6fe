package cmd

import (
	"fmt"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/docs"

	"github.com/spf13/cobra"
)

func newDocsCmd() *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:   "docs",
		Short: "Render the tool catalogue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			tools, err := offlineTools(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "markdown", "md":
				_, err = fmt.Fprint(out, docs.Markdown(tools))
				return err
			case "html":
				page, err := docs.HTML(tools)
				if err != nil {
					return err
				}
				_, err = out.Write(page)
				return err
			default:
				return fmt.Errorf("unknown format %q: use markdown or html", format)
			}
		},
	}
	c.Flags().StringVarP(&format, "format", "f", "markdown", "output format: markdown or html")
	return c
}
