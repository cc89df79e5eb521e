package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"reelsmith/internal/content"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// runDownload fetches the source media and its metadata unless a usable blob
// is already in storage.
func (o *Orchestrator) runDownload(ctx context.Context, logger *slog.Logger, item *content.Item, opts Options, report ProgressFunc) error {
	ctx = services.WithStage(ctx, "download")

	if item.MediaKey != "" {
		present, err := o.blobs.Exists(ctx, item.MediaKey)
		if err != nil {
			return err
		}
		if present {
			logger.Info("source media already in storage", logging.String("media_key", item.MediaKey))
			return nil
		}
	}
	if opts.SkipDownload {
		return services.Wrap(services.ErrValidation, "download", "resume", fmt.Sprintf("cannot skip download for %s: no stored media", item.Shortcode), nil)
	}

	item.Status = content.StatusDownloading
	item.SetProgress("download", "fetching source media", 0)
	item.ErrorMessage = ""
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return err
	}
	report(ctx, 5, "fetching source media")

	meta, err := o.fetcher.FetchMetadata(ctx, item.Shortcode)
	if err != nil {
		return services.Wrap(services.ErrProviderTransient, "download", "metadata", fmt.Sprintf("fetching metadata for %s failed", item.Shortcode), err)
	}

	download, err := o.fetcher.Fetch(ctx, item.Shortcode)
	if err != nil {
		return err
	}

	mediaKey := "media/" + download.Filename
	if err := o.blobs.Put(ctx, mediaKey, bytes.NewReader(download.Data)); err != nil {
		return err
	}

	item.MediaKey = mediaKey
	item.Caption = meta.Caption
	item.Author = meta.Author
	item.DurationSec = meta.DurationSec
	item.ThumbnailURL = meta.ThumbnailURL
	item.Status = content.StatusDownloaded
	item.SetProgress("download", "source media stored", 100)
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return err
	}
	report(ctx, 35, "source media stored")

	logger.Info("download stage completed",
		logging.String("media_key", mediaKey),
		logging.Int("bytes", len(download.Data)))
	return nil
}

// runAnalyze produces (or reuses) the scene analysis for the item.
func (o *Orchestrator) runAnalyze(ctx context.Context, logger *slog.Logger, item *content.Item, opts Options, report ProgressFunc) (*content.Analysis, error) {
	ctx = services.WithStage(ctx, "analyze")

	latest, err := o.store.LatestAnalysis(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if opts.SkipAnalysis {
		if latest == nil {
			return nil, services.Wrap(services.ErrValidation, "analyze", "resume", fmt.Sprintf("cannot skip analysis for %s: none recorded", item.Shortcode), nil)
		}
		logger.Info("reusing recorded analysis", logging.String("analysis_id", latest.ID))
		return latest, nil
	}
	if latest != nil && !opts.ForceReprocess {
		logger.Info("analysis already recorded", logging.String("analysis_id", latest.ID))
		return latest, nil
	}

	item.Status = content.StatusAnalyzing
	item.SetProgress("analyze", "segmenting source media", 0)
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	report(ctx, 40, "segmenting source media")

	localPath := filepath.Join(o.stagingDir, "source", item.ID+filepath.Ext(item.MediaKey))
	if err := o.blobs.Fetch(ctx, item.MediaKey, localPath); err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	method := content.AnalysisMethodFrames
	if opts.UseAlternateAnalysis {
		method = content.AnalysisMethodInterval
	}
	record, err := o.analyzer.Analyze(ctx, item.ID, localPath, method)
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveAnalysis(ctx, record); err != nil {
		return nil, err
	}

	item.Status = content.StatusAnalyzed
	item.SetProgress("analyze", fmt.Sprintf("segmented into %d scenes", len(record.Scenes)), 100)
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	report(ctx, 75, fmt.Sprintf("segmented into %d scenes", len(record.Scenes)))

	logger.Info("analyze stage completed",
		logging.String("analysis_id", record.ID),
		logging.Int("scenes", len(record.Scenes)),
		logging.String("method", string(record.Method)))
	return record, nil
}

// runTemplate renders the typed template from the analysis. A forced run
// replaces the stale template and its derived children in one transaction.
func (o *Orchestrator) runTemplate(ctx context.Context, logger *slog.Logger, item *content.Item, record *content.Analysis, stale *content.Template, opts Options, report ProgressFunc) (*content.Template, error) {
	ctx = services.WithStage(ctx, "template")

	template := &content.Template{
		ContentID:  item.ID,
		AnalysisID: record.ID,
		Spec:       buildTemplateSpec(record),
	}

	if stale != nil {
		if err := o.store.ReplaceTemplate(ctx, stale, template); err != nil {
			return nil, err
		}
		logger.Info("template replaced",
			logging.String("template_id", template.ID),
			logging.String("replaced_template_id", stale.ID))
	} else {
		if err := o.store.SaveTemplate(ctx, template); err != nil {
			return nil, err
		}
		logger.Info("template created", logging.String("template_id", template.ID))
	}

	item.SetProgress("template", "generation template ready", 100)
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	report(ctx, 100, "generation template ready")
	return template, nil
}
