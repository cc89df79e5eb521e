package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// State represents the lifecycle of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var allStates = []State{
	StateWaiting,
	StateDelayed,
	StateActive,
	StateCompleted,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known job states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job represents a queued unit of work persisted in SQLite.
type Job struct {
	ID              string
	Queue           string
	State           State
	Payload         string
	Attempts        int
	ProgressPercent float64
	ProgressMessage string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	NotBefore       *time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	LastHeartbeat   *time.Time

	store *Store
}

// UnmarshalPayload decodes the job payload into dst.
func (j *Job) UnmarshalPayload(dst any) error {
	if strings.TrimSpace(j.Payload) == "" {
		return fmt.Errorf("job %s has empty payload", j.ID)
	}
	if err := json.Unmarshal([]byte(j.Payload), dst); err != nil {
		return fmt.Errorf("decode payload for job %s: %w", j.ID, err)
	}
	return nil
}

// ReportProgress persists structured progress for the job. Safe to call only
// while the job is active.
func (j *Job) ReportProgress(ctx context.Context, percent float64, message string) error {
	if j.store == nil {
		j.ProgressPercent = percent
		j.ProgressMessage = message
		return nil
	}
	if err := j.store.UpdateProgress(ctx, j.ID, percent, message); err != nil {
		return err
	}
	j.ProgressPercent = percent
	j.ProgressMessage = message
	return nil
}

// QueueInfo describes a named queue and its aggregate state.
type QueueInfo struct {
	Name    string
	Paused  bool
	Counts  map[State]int
	Oldest  *time.Time
	Updated *time.Time
}
