package pipeline

import (
	"reelsmith/internal/content"
)

// defaultAspectRatio matches the portrait source format the downloader
// produces.
const defaultAspectRatio = "9:16"

// buildTemplateSpec renders the typed generation blueprint from an analysis:
// one template scene per analyzed scene, in scene order. Instructions start
// empty; prompt construction happens outside the pipeline.
func buildTemplateSpec(record *content.Analysis) content.TemplateSpec {
	spec := content.TemplateSpec{
		AspectRatio: defaultAspectRatio,
		KeepAudio:   true,
		Scenes:      make([]content.TemplateScene, 0, len(record.Scenes)),
	}
	for _, scene := range record.Scenes {
		spec.Scenes = append(spec.Scenes, content.TemplateScene{
			Index:     scene.Index,
			StartTime: scene.StartTime,
			EndTime:   scene.EndTime,
		})
	}
	return spec
}
