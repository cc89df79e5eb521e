package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/composer"
	"reelsmith/internal/content"
	"reelsmith/internal/media"
	"reelsmith/internal/queue"
	"reelsmith/internal/storage"
)

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "compose <analysis-id>",
		Short: "Plan a composite from an analysis and queue its assembly",
		Long: `Plan a composite from an analysis and queue its assembly.

Without --plan, scene descriptors derive from the content's template: scenes
with an instruction are generated, the rest keep the original footage. With
--plan, descriptors are read from a JSON file holding the descriptor list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysisID := strings.TrimSpace(args[0])

			return ctx.withStores(func(store *content.Store, jobs *queue.Store) error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				blobs, err := storage.New(cfg)
				if err != nil {
					return err
				}

				descriptors, err := loadDescriptors(cmd.Context(), store, analysisID, planPath)
				if err != nil {
					return err
				}

				comp := composer.New(cfg, store, jobs, blobs, media.NewProcessor(cfg), nil)
				composite, err := comp.Plan(cmd.Context(), analysisID, descriptors)
				if err != nil {
					return err
				}
				jobID, err := jobs.Enqueue(cmd.Context(), composer.CompositeQueue, composer.CompositeJobPayload{
					CompositeID: composite.ID,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Composite id: %s (%d scenes)\n", composite.ID, len(composite.Descriptors))
				fmt.Fprintf(out, "Composite job: %s\n", jobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "JSON file holding the scene descriptor list")
	return cmd
}

func loadDescriptors(ctx context.Context, store *content.Store, analysisID, planPath string) ([]content.SceneDescriptor, error) {
	if planPath = strings.TrimSpace(planPath); planPath != "" {
		data, err := os.ReadFile(planPath)
		if err != nil {
			return nil, fmt.Errorf("read plan file: %w", err)
		}
		var descriptors []content.SceneDescriptor
		if err := json.Unmarshal(data, &descriptors); err != nil {
			return nil, fmt.Errorf("parse plan file: %w", err)
		}
		return descriptors, nil
	}

	record, err := store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("analysis %s does not exist", analysisID)
	}
	template, err := store.TemplateForContent(ctx, record.ContentID)
	if err != nil {
		return nil, err
	}
	if template == nil || template.AnalysisID != analysisID {
		return nil, fmt.Errorf("no template recorded for analysis %s; pass --plan or rerun the pipeline", analysisID)
	}

	descriptors := make([]content.SceneDescriptor, 0, len(template.Spec.Scenes))
	for _, scene := range template.Spec.Scenes {
		descriptors = append(descriptors, content.SceneDescriptor{
			SceneID:     fmt.Sprintf("scene-%d", scene.Index),
			SceneIndex:  scene.Index,
			UseOriginal: strings.TrimSpace(scene.Instruction) == "",
			StartTime:   scene.StartTime,
			EndTime:     scene.EndTime,
			Instruction: scene.Instruction,
		})
	}
	return descriptors, nil
}
