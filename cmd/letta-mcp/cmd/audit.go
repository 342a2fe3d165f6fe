package cmd

import (
	"fmt"
	"io"
	"letta-mcp-server/internal/audit"
	"letta-mcp-server/internal/config"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tool dispatch audit trail",
	}
	c.AddCommand(newAuditSearchCmd(), newAuditStatsCmd(), newAuditPruneCmd())
	return c
}

func openAudit(cmd *cobra.Command) (*audit.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return audit.Open(cmd.Context(), cfg.Audit.Driver, cfg.Audit.DSN)
}

func newAuditSearchCmd() *cobra.Command {
	var criteria audit.SearchCriteria
	var since time.Duration

	c := &cobra.Command{
		Use:   "search",
		Short: "List recent dispatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if since > 0 {
				criteria.Since = time.Now().Add(-since)
			}
			events, err := store.Search(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	c.Flags().StringVar(&criteria.Tool, "tool", "", "only this tool")
	c.Flags().StringVar(&criteria.Operation, "operation", "", "only this operation")
	c.Flags().BoolVar(&criteria.FailedOnly, "failed", false, "only failed dispatches")
	c.Flags().DurationVar(&since, "since", 0, "only dispatches newer than this, e.g. 24h")
	c.Flags().IntVar(&criteria.Limit, "limit", 50, "maximum number of events")
	return c
}

func printEvents(out io.Writer, events []audit.Event) {
	for _, e := range events {
		status := color.GreenString("ok")
		if !e.Success {
			status = color.RedString(e.ErrorCode)
		}
		fmt.Fprintf(out, "%s  %-22s %-24s %-18s %6dms  %s\n",
			e.Timestamp.Format(time.RFC3339), e.Tool, e.Operation, status, e.Duration.Milliseconds(), e.Client)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, color.YellowString("no matching dispatches"))
	}
}

func newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise dispatches per tool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %v\n", color.CyanString("Total:"), stats["total_events"])
			fmt.Fprintf(out, "%s %v\n", color.CyanString("Failed:"), stats["failed"])

			perTool, _ := stats["per_tool"].(map[string]int64)
			names := make([]string, 0, len(perTool))
			for name := range perTool {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %-24s %d\n", name, perTool[name])
			}
			return nil
		},
	}
}

func newAuditPruneCmd() *cobra.Command {
	var retention time.Duration

	c := &cobra.Command{
		Use:   "prune",
		Short: "Delete dispatches older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.Prune(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d events\n", color.GreenString("Pruned"), removed)
			return nil
		},
	}
	c.Flags().DurationVar(&retention, "older-than", 30*24*time.Hour, "retention period")
	return c
}
