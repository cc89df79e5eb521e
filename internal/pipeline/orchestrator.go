package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"reelsmith/internal/analysis"
	"reelsmith/internal/config"
	"reelsmith/internal/content"
	"reelsmith/internal/fetcher"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
)

// Options selects which stages a run may skip and whether existing derived
// artifacts get replaced.
type Options struct {
	SkipDownload         bool `json:"skipDownload,omitempty"`
	SkipAnalysis         bool `json:"skipAnalysis,omitempty"`
	ForceReprocess       bool `json:"forceReprocess,omitempty"`
	UseAlternateAnalysis bool `json:"useAlternateAnalysis,omitempty"`
}

// ProgressFunc mirrors stage checkpoints onto the driving queue job.
type ProgressFunc func(ctx context.Context, percent float64, message string)

// MediaFetcher is the downloader collaborator surface.
type MediaFetcher interface {
	Fetch(ctx context.Context, shortcode string) (*fetcher.Download, error)
	FetchMetadata(ctx context.Context, shortcode string) (*fetcher.Metadata, error)
}

// SceneAnalyzer derives an Analysis from a local media file.
type SceneAnalyzer interface {
	Analyze(ctx context.Context, contentID, mediaPath string, method content.AnalysisMethod) (*content.Analysis, error)
}

// Orchestrator executes the per-content stage state machine.
type Orchestrator struct {
	store    *content.Store
	blobs    *storage.Store
	fetcher  MediaFetcher
	analyzer SceneAnalyzer
	logger   *slog.Logger

	stagingDir string
	lockDir    string
}

// New builds an orchestrator. The analyzer is typically *analysis.Analyzer;
// it is an interface so tests can substitute collaborators.
func New(cfg *config.Config, store *content.Store, blobs *storage.Store, mediaFetcher MediaFetcher, sceneAnalyzer SceneAnalyzer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:      store,
		blobs:      blobs,
		fetcher:    mediaFetcher,
		analyzer:   sceneAnalyzer,
		logger:     logger.With(logging.String(logging.FieldComponent, "pipeline")),
		stagingDir: cfg.Paths.StagingDir,
		lockDir:    filepath.Join(cfg.Paths.DataDir, "locks"),
	}
}

var _ SceneAnalyzer = (*analysis.Analyzer)(nil)

// Run executes the pipeline for one content item. A second concurrent Run
// for the same id fails fast instead of duplicating in-flight work. When a
// template already exists and ForceReprocess is off, the run short-circuits
// without executing any stage. report, when not nil, receives the same
// checkpoints the item row records, scaled to the whole run.
func (o *Orchestrator) Run(ctx context.Context, contentID string, opts Options, report ProgressFunc) (*content.Template, error) {
	if report == nil {
		report = func(context.Context, float64, string) {}
	}
	item, err := o.store.GetItem(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "run", fmt.Sprintf("content item %s does not exist", contentID), nil)
	}

	ctx = services.WithContentID(ctx, item.ID)
	logger := logging.WithContext(ctx, o.logger)

	existing, err := o.store.TemplateForContent(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !opts.ForceReprocess {
		logger.Info("template already exists, skipping pipeline",
			logging.String("template_id", existing.ID))
		return existing, nil
	}

	release, err := o.acquireLock(item.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	template, err := o.execute(ctx, logger, item, existing, opts, report)
	if err != nil {
		item.SetFailed(services.Details(err))
		if updateErr := o.store.UpdateItem(ctx, item); updateErr != nil {
			logger.Error("persisting pipeline failure state failed", logging.Error(updateErr))
		}
		logger.Error("pipeline failed",
			logging.String("classification", services.Classification(err)),
			logging.Error(err))
		return nil, err
	}
	return template, nil
}

// acquireLock takes the per-content advisory lock non-blockingly.
func (o *Orchestrator) acquireLock(contentID string) (func(), error) {
	if err := os.MkdirAll(o.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(o.lockDir, contentID+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "lock", fmt.Sprintf("pipeline already running for content %s", contentID), nil)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, item *content.Item, stale *content.Template, opts Options, report ProgressFunc) (*content.Template, error) {
	if err := o.runDownload(ctx, logger, item, opts, report); err != nil {
		return nil, err
	}

	analysisRecord, err := o.runAnalyze(ctx, logger, item, opts, report)
	if err != nil {
		return nil, err
	}

	return o.runTemplate(ctx, logger, item, analysisRecord, stale, opts, report)
}
