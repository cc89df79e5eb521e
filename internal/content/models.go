package content

import (
	"strings"
	"time"
)

// Status represents the pipeline lifecycle of a content item.
type Status string

const (
	StatusScraped     Status = "scraped"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusAnalyzing   Status = "analyzing"
	StatusAnalyzed    Status = "analyzed"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusScraped,
	StatusDownloading,
	StatusDownloaded,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known content statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status admits no further pipeline work.
// Analyzed items can still be reprocessed explicitly; failed is terminal
// until a retry resets it.
func (s Status) IsTerminal() bool {
	return s == StatusAnalyzed || s == StatusFailed
}

// Item is a source video tracked through the pipeline.
type Item struct {
	ID              string
	Shortcode       string
	Status          Status
	Caption         string
	Author          string
	DurationSec     float64
	MediaKey        string
	ThumbnailURL    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetProgress updates the three progress fields together.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item failed with the given message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressMessage = message
}

// Scene is one contiguous range of the source video.
type Scene struct {
	Index       int     `json:"index"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	Description string  `json:"description,omitempty"`
}

// AnalysisMethod selects how scene boundaries are derived.
type AnalysisMethod string

const (
	// AnalysisMethodFrames extracts frames at a fixed interval and derives
	// scene ranges from them.
	AnalysisMethodFrames AnalysisMethod = "frames"
	// AnalysisMethodInterval slices the video into fixed-length scenes
	// without extracting frames.
	AnalysisMethodInterval AnalysisMethod = "interval"
)

// Analysis is the scene breakdown produced by the analyze stage.
type Analysis struct {
	ID          string
	ContentID   string
	Method      AnalysisMethod
	Scenes      []Scene
	FrameCount  int
	DurationSec float64
	CreatedAt   time.Time
}

// Template is the derived generation blueprint built from an analysis.
type Template struct {
	ID         string
	ContentID  string
	AnalysisID string
	Spec       TemplateSpec
	CreatedAt  time.Time
}

// TemplateSpec is the typed request blueprint rendered from an analysis.
// One entry per scene, in scene order.
type TemplateSpec struct {
	AspectRatio string          `json:"aspectRatio"`
	KeepAudio   bool            `json:"keepAudio"`
	Scenes      []TemplateScene `json:"scenes"`
}

// TemplateScene carries the per-scene generation instructions.
type TemplateScene struct {
	Index       int     `json:"index"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	Instruction string  `json:"instruction"`
	Negative    string  `json:"negative,omitempty"`
}

// GenerationStatus is the neutral 4-state model for provider tasks.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// IsTerminal reports whether the generation reached a final state.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// Generation is one asynchronous provider task. Scene-scoped generations
// carry a scene index and time range; single-clip generations leave them nil.
type Generation struct {
	ID              string
	ContentID       string
	AnalysisID      string
	SceneIndex      *int
	StartTime       *float64
	EndTime         *float64
	Status          GenerationStatus
	ProgressPercent float64
	ProviderTaskID  string
	ResultKey       string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// CompositeStatus is the composite fan-in state machine.
type CompositeStatus string

const (
	CompositePending       CompositeStatus = "pending"
	CompositeWaiting       CompositeStatus = "waiting"
	CompositeConcatenating CompositeStatus = "concatenating"
	CompositeUploading     CompositeStatus = "uploading"
	CompositeCompleted     CompositeStatus = "completed"
	CompositeFailed        CompositeStatus = "failed"
)

// IsTerminal reports whether the composite reached a final state.
func (s CompositeStatus) IsTerminal() bool {
	return s == CompositeCompleted || s == CompositeFailed
}

// SceneDescriptor describes one scene's role in a composite: either kept
// from the original source or replaced by a generation.
type SceneDescriptor struct {
	SceneID      string  `json:"sceneId"`
	SceneIndex   int     `json:"sceneIndex"`
	UseOriginal  bool    `json:"useOriginal"`
	GenerationID string  `json:"generationId,omitempty"`
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	Instruction  string  `json:"instruction,omitempty"`
}

// Composite aggregates an ordered list of scene descriptors into one
// concatenated output artifact.
type Composite struct {
	ID              string
	ContentID       string
	AnalysisID      string
	Descriptors     []SceneDescriptor
	Status          CompositeStatus
	Stage           string
	ProgressPercent float64
	Message         string
	ResultKey       string
	ErrorMessage    string
	FailedSceneID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
