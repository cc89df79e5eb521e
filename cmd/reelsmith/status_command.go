package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelsmith/internal/content"
)

var labelCaser = cases.Title(language.English)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked content items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContentStore(func(store *content.Store) error {
				var statuses []content.Status
				if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
					status, ok := content.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q (known: %s)", trimmed, knownStatuses())
					}
					statuses = append(statuses, status)
				}

				items, err := store.ListItems(cmd.Context(), statuses...)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No content items")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.Shortcode,
						statusLabel(item.Status, colorize),
						labelCaser.String(item.ProgressStage),
						fmt.Sprintf("%.0f%%", item.ProgressPercent),
						truncate(progressText(item), 48),
						item.UpdatedAt.Local().Format(time.DateTime),
					})
				}

				fmt.Fprintln(out, renderTable(
					[]string{"SHORTCODE", "STATUS", "STAGE", "PROGRESS", "MESSAGE", "UPDATED"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintf(out, "%d item(s)\n", len(items))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show items with this status")
	return cmd
}

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

func statusLabel(status content.Status, colorize bool) string {
	label := labelCaser.String(string(status))
	if !colorize {
		return label
	}
	switch status {
	case content.StatusFailed:
		return ansiRed + label + ansiReset
	case content.StatusAnalyzed:
		return ansiGreen + label + ansiReset
	default:
		return label
	}
}

// progressText prefers the persisted error for failed items.
func progressText(item *content.Item) string {
	if item.Status == content.StatusFailed && item.ErrorMessage != "" {
		return item.ErrorMessage
	}
	return item.ProgressMessage
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func knownStatuses() string {
	all := content.AllStatuses()
	names := make([]string, 0, len(all))
	for _, status := range all {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}
