package pipeline

// Queue is the job queue the daemon consumes pipeline runs from.
const Queue = "pipeline"

// JobPayload is the body of one pipeline job.
type JobPayload struct {
	ContentID string  `json:"contentId"`
	Options   Options `json:"options"`
}
