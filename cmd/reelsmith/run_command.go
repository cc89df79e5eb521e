package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/content"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts pipeline.Options

	cmd := &cobra.Command{
		Use:   "run <content-id|shortcode>",
		Short: "Queue a pipeline run for an existing content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(store *content.Store, jobs *queue.Store) error {
				item, err := resolveContentItem(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				jobID, err := jobs.Enqueue(cmd.Context(), pipeline.Queue, pipeline.JobPayload{
					ContentID: item.ID,
					Options:   opts,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pipeline job %s queued for %s\n", jobID, item.Shortcode)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.ForceReprocess, "force", false, "Replace existing template and derived generations")
	cmd.Flags().BoolVar(&opts.SkipDownload, "skip-download", false, "Require already-stored source media")
	cmd.Flags().BoolVar(&opts.SkipAnalysis, "skip-analysis", false, "Require an already-recorded analysis")
	cmd.Flags().BoolVar(&opts.UseAlternateAnalysis, "alternate-analysis", false, "Slice fixed-length scenes without frame extraction")
	return cmd
}

// resolveContentItem accepts either a content id or a shortcode.
func resolveContentItem(ctx context.Context, store *content.Store, ref string) (*content.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("content reference is required")
	}

	item, err := store.GetItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item == nil {
		item, err = store.GetItemByShortcode(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	if item == nil {
		return nil, fmt.Errorf("no content item matches %q", ref)
	}
	return item, nil
}
