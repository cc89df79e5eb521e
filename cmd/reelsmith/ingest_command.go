package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/content"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <shortcode>",
		Short: "Register a content item and queue its pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shortcode := strings.TrimSpace(args[0])
			if shortcode == "" {
				return fmt.Errorf("shortcode is required")
			}

			return ctx.withStores(func(store *content.Store, jobs *queue.Store) error {
				item, err := store.CreateItem(cmd.Context(), shortcode, "", "", 0)
				if err != nil {
					return err
				}
				jobID, err := jobs.Enqueue(cmd.Context(), pipeline.Queue, pipeline.JobPayload{ContentID: item.ID})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Ingested %s\n", shortcode)
				fmt.Fprintf(out, "Content id: %s\n", item.ID)
				fmt.Fprintf(out, "Pipeline job: %s\n", jobID)
				return nil
			})
		},
	}
}
