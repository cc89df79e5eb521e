package content_test

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/content"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
)

func newItem(t *testing.T, store *content.Store, shortcode string) *content.Item {
	t.Helper()
	item, err := store.CreateItem(context.Background(), shortcode, "caption", "author", 30)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func TestCreateItemAndLookups(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "ABC123")
	if item.Status != content.StatusScraped {
		t.Fatalf("expected scraped, got %s", item.Status)
	}
	if item.ID == "" {
		t.Fatal("expected id")
	}

	byID, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if byID == nil || byID.Shortcode != "ABC123" {
		t.Fatalf("unexpected item: %+v", byID)
	}

	byCode, err := store.GetItemByShortcode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("GetItemByShortcode: %v", err)
	}
	if byCode == nil || byCode.ID != item.ID {
		t.Fatalf("unexpected item: %+v", byCode)
	}

	missing, err := store.GetItem(ctx, "nope")
	if err != nil {
		t.Fatalf("GetItem missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown id")
	}
}

func TestCreateItemRejectsDuplicateShortcode(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))

	newItem(t, store, "DUP")
	_, err := store.CreateItem(context.Background(), "DUP", "", "", 0)
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateItemPersistsStatusAndProgress(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "UPD1")
	item.Status = content.StatusDownloading
	item.SetProgress("download", "fetching source", 25)
	item.MediaKey = "media/UPD1.mp4"
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	reloaded, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if reloaded.Status != content.StatusDownloading {
		t.Fatalf("expected downloading, got %s", reloaded.Status)
	}
	if reloaded.ProgressPercent != 25 || reloaded.ProgressStage != "download" {
		t.Fatalf("unexpected progress: %+v", reloaded)
	}
	if reloaded.MediaKey != "media/UPD1.mp4" {
		t.Fatalf("unexpected media key: %q", reloaded.MediaKey)
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "ANA1")
	analysis := &content.Analysis{
		ContentID:   item.ID,
		Method:      content.AnalysisMethodFrames,
		DurationSec: 18,
		FrameCount:  9,
		Scenes: []content.Scene{
			{Index: 0, StartTime: 0, EndTime: 6},
			{Index: 1, StartTime: 6, EndTime: 12},
			{Index: 2, StartTime: 12, EndTime: 18},
		},
	}
	if err := store.SaveAnalysis(ctx, analysis); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	loaded, err := store.GetAnalysis(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if loaded == nil || len(loaded.Scenes) != 3 {
		t.Fatalf("unexpected analysis: %+v", loaded)
	}
	if loaded.Scenes[1].StartTime != 6 {
		t.Fatalf("unexpected scene: %+v", loaded.Scenes[1])
	}

	latest, err := store.LatestAnalysis(ctx, item.ID)
	if err != nil {
		t.Fatalf("LatestAnalysis: %v", err)
	}
	if latest == nil || latest.ID != analysis.ID {
		t.Fatalf("unexpected latest: %+v", latest)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "TPL1")
	analysis := &content.Analysis{ContentID: item.ID, Method: content.AnalysisMethodFrames, Scenes: []content.Scene{{Index: 0, EndTime: 5}}}
	if err := store.SaveAnalysis(ctx, analysis); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	template := &content.Template{
		ContentID:  item.ID,
		AnalysisID: analysis.ID,
		Spec: content.TemplateSpec{
			AspectRatio: "9:16",
			KeepAudio:   true,
			Scenes: []content.TemplateScene{
				{Index: 0, StartTime: 0, EndTime: 5, Instruction: "replace background"},
			},
		},
	}
	if err := store.SaveTemplate(ctx, template); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	loaded, err := store.TemplateForContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("TemplateForContent: %v", err)
	}
	if loaded == nil || loaded.ID != template.ID {
		t.Fatalf("unexpected template: %+v", loaded)
	}
	if loaded.Spec.AspectRatio != "9:16" || len(loaded.Spec.Scenes) != 1 {
		t.Fatalf("unexpected spec: %+v", loaded.Spec)
	}
}

func TestReplaceTemplateIsTransactionalAndDeletesChildren(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "RPL1")
	analysis := &content.Analysis{ContentID: item.ID, Method: content.AnalysisMethodFrames, Scenes: []content.Scene{{Index: 0, EndTime: 5}}}
	if err := store.SaveAnalysis(ctx, analysis); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	stale := &content.Template{ContentID: item.ID, AnalysisID: analysis.ID}
	if err := store.SaveTemplate(ctx, stale); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	idx := 0
	child := &content.Generation{ContentID: item.ID, AnalysisID: analysis.ID, SceneIndex: &idx}
	if err := store.CreateGeneration(ctx, child); err != nil {
		t.Fatalf("CreateGeneration: %v", err)
	}

	replacement := &content.Template{ContentID: item.ID, AnalysisID: analysis.ID}
	if err := store.ReplaceTemplate(ctx, stale, replacement); err != nil {
		t.Fatalf("ReplaceTemplate: %v", err)
	}
	if replacement.ID == stale.ID {
		t.Fatal("replacement must get a fresh id")
	}

	gone, err := store.GetTemplate(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if gone != nil {
		t.Fatal("stale template should be deleted")
	}
	current, err := store.TemplateForContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("TemplateForContent: %v", err)
	}
	if current == nil || current.ID != replacement.ID {
		t.Fatalf("unexpected current template: %+v", current)
	}

	orphan, err := store.GetGeneration(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if orphan != nil {
		t.Fatal("derived generation should be deleted with the stale template")
	}
}

func TestGenerationRoundTrip(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "GEN1")
	idx := 2
	start, end := 4.0, 9.5
	gen := &content.Generation{
		ContentID:  item.ID,
		AnalysisID: "analysis-1",
		SceneIndex: &idx,
		StartTime:  &start,
		EndTime:    &end,
	}
	if err := store.CreateGeneration(ctx, gen); err != nil {
		t.Fatalf("CreateGeneration: %v", err)
	}

	loaded, err := store.GetGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if loaded.Status != content.GenerationPending {
		t.Fatalf("expected pending, got %s", loaded.Status)
	}
	if loaded.SceneIndex == nil || *loaded.SceneIndex != 2 {
		t.Fatalf("unexpected scene index: %+v", loaded.SceneIndex)
	}
	if loaded.EndTime == nil || *loaded.EndTime != 9.5 {
		t.Fatalf("unexpected end time: %+v", loaded.EndTime)
	}

	loaded.Status = content.GenerationCompleted
	loaded.ResultKey = "generated/gen1.mp4"
	loaded.ProviderTaskID = "task-77"
	if err := store.UpdateGeneration(ctx, loaded); err != nil {
		t.Fatalf("UpdateGeneration: %v", err)
	}

	byIDs, err := store.GetGenerations(ctx, []string{gen.ID, "missing"})
	if err != nil {
		t.Fatalf("GetGenerations: %v", err)
	}
	if len(byIDs) != 1 {
		t.Fatalf("expected 1 result, got %d", len(byIDs))
	}
	if byIDs[gen.ID].ResultKey != "generated/gen1.mp4" {
		t.Fatalf("unexpected result key: %q", byIDs[gen.ID].ResultKey)
	}
}

func TestCompositePersistsDescriptorsInSceneOrder(t *testing.T) {
	store := testsupport.MustOpenContent(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := newItem(t, store, "CMP1")
	composite := &content.Composite{
		ContentID:  item.ID,
		AnalysisID: "analysis-1",
		Descriptors: []content.SceneDescriptor{
			{SceneID: "s2", SceneIndex: 2, UseOriginal: true, StartTime: 10, EndTime: 15},
			{SceneID: "s0", SceneIndex: 0, UseOriginal: true, StartTime: 0, EndTime: 5},
			{SceneID: "s1", SceneIndex: 1, UseOriginal: false, StartTime: 5, EndTime: 10},
		},
	}
	if err := store.CreateComposite(ctx, composite); err != nil {
		t.Fatalf("CreateComposite: %v", err)
	}

	loaded, err := store.GetComposite(ctx, composite.ID)
	if err != nil {
		t.Fatalf("GetComposite: %v", err)
	}
	if loaded.Status != content.CompositePending {
		t.Fatalf("expected pending, got %s", loaded.Status)
	}
	for i, descriptor := range loaded.Descriptors {
		if descriptor.SceneIndex != i {
			t.Fatalf("descriptors not in scene order: %+v", loaded.Descriptors)
		}
	}

	loaded.Status = content.CompositeFailed
	loaded.FailedSceneID = "s1"
	loaded.ErrorMessage = "scene s1 generation failed"
	if err := store.UpdateComposite(ctx, loaded); err != nil {
		t.Fatalf("UpdateComposite: %v", err)
	}

	reloaded, err := store.GetComposite(ctx, composite.ID)
	if err != nil {
		t.Fatalf("GetComposite: %v", err)
	}
	if reloaded.FailedSceneID != "s1" {
		t.Fatalf("unexpected failed scene: %q", reloaded.FailedSceneID)
	}
}
