package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// authFailureLimit is how many authorization failures a poll tolerates
// before aborting the wait early.
const authFailureLimit = 3

// PollResult is the terminal outcome of one poll cycle.
type PollResult struct {
	Status    Status
	ResultURL string
	Message   string
}

// ProgressFunc receives one notification per poll tick.
type ProgressFunc func(status Status, elapsed string, tick int)

// Poll watches a provider task until it reaches a terminal state, the
// attempt budget runs out, or authorization failures pass the limit.
// Progress fires on every tick; status lines log only on transitions.
func (c *Client) Poll(ctx context.Context, taskID string, progress ProgressFunc) (PollResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return PollResult{}, services.Wrap(services.ErrValidation, "generation", "poll", "task id is empty", nil)
	}

	interval := c.pollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxTicks := c.maxPollTicks
	if maxTicks <= 0 {
		maxTicks = 120
	}

	started := c.now()
	lastStatus := Status("")
	authFailures := 0

	for tick := 1; tick <= maxTicks; tick++ {
		state, err := c.fetchTaskState(ctx, taskID)
		if err != nil {
			if services.IsAuthFailure(err) {
				authFailures++
				c.InvalidateCredentials()
				if authFailures >= authFailureLimit {
					return PollResult{Status: StatusFailed}, services.Wrap(services.ErrProviderPermanent, "generation", "poll",
						fmt.Sprintf("aborting after %d authorization failures for task %s", authFailures, taskID), err)
				}
			} else if !services.Retryable(err) {
				return PollResult{Status: StatusFailed}, err
			}
			// Transient poll errors consume a tick and wait for the next one.
			if sleepErr := c.sleep(ctx, interval); sleepErr != nil {
				return PollResult{Status: StatusFailed}, services.Wrap(services.ErrTimeout, "generation", "poll", "poll interrupted", sleepErr)
			}
			continue
		}

		elapsed := normalizeElapsed(c.now().Sub(started))
		if progress != nil {
			progress(state.status, elapsed, tick)
		}
		if state.status != lastStatus {
			c.logger.Info("generation task status changed",
				logging.String("task_id", taskID),
				logging.String("status", string(state.status)),
				logging.String("elapsed", elapsed))
			lastStatus = state.status
		}

		switch state.status {
		case StatusCompleted:
			if strings.TrimSpace(state.resultURL) == "" {
				return PollResult{Status: StatusFailed, Message: "provider reported success without a result"},
					services.Wrap(services.ErrProviderPermanent, "generation", "poll",
						fmt.Sprintf("task %s completed without an extractable result", taskID), nil)
			}
			return PollResult{Status: StatusCompleted, ResultURL: state.resultURL, Message: state.message}, nil
		case StatusFailed:
			message := state.message
			if message == "" {
				message = "provider reported failure"
			}
			return PollResult{Status: StatusFailed, Message: message},
				services.Wrap(services.ErrProviderPermanent, "generation", "poll",
					fmt.Sprintf("task %s failed: %s", taskID, message), nil)
		}

		if tick < maxTicks {
			if err := c.sleep(ctx, interval); err != nil {
				return PollResult{Status: StatusFailed}, services.Wrap(services.ErrTimeout, "generation", "poll", "poll interrupted", err)
			}
		}
	}

	return PollResult{Status: StatusFailed, Message: "timed out waiting for the provider"},
		services.Wrap(services.ErrTimeout, "generation", "poll",
			fmt.Sprintf("task %s did not reach a terminal state within %d attempts", taskID, maxTicks), nil)
}

type taskState struct {
	status    Status
	resultURL string
	message   string
}

func (c *Client) fetchTaskState(ctx context.Context, taskID string) (taskState, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return taskState{}, err
	}

	resp, err := c.doWithRetry(ctx, "poll", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/videos/generations/"+taskID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return taskState{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drainBody(resp)
		return taskState{}, services.Wrap(services.ErrAuthorization, "generation", "poll", fmt.Sprintf("status check rejected with %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		drainBody(resp)
		return taskState{}, services.Wrap(services.ErrNotFound, "generation", "poll", fmt.Sprintf("task %s does not exist", taskID), nil)
	case resp.StatusCode >= 400:
		detail := readErrorBody(resp)
		return taskState{}, services.Wrap(services.ErrProviderPermanent, "generation", "poll", fmt.Sprintf("status check returned %d%s", resp.StatusCode, detail), nil)
	}

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			TaskID     string `json:"task_id"`
			TaskStatus string `json:"task_status"`
			StatusMsg  string `json:"task_status_msg"`
			TaskResult struct {
				Videos []struct {
					URL string `json:"url"`
				} `json:"videos"`
			} `json:"task_result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return taskState{}, services.Wrap(services.ErrProviderTransient, "generation", "poll", "decoding status response failed", err)
	}

	state := taskState{
		status:  mapProviderStatus(body.Data.TaskStatus),
		message: strings.TrimSpace(body.Data.StatusMsg),
	}
	if len(body.Data.TaskResult.Videos) > 0 {
		state.resultURL = strings.TrimSpace(body.Data.TaskResult.Videos[0].URL)
	}
	return state, nil
}

// mapProviderStatus folds the provider's native vocabulary onto the neutral
// 4-state model. Unknown values count as processing so the poll keeps going.
func mapProviderStatus(native string) Status {
	switch strings.ToLower(strings.TrimSpace(native)) {
	case "submitted", "queued", "pending", "created":
		return StatusPending
	case "processing", "running", "in_progress":
		return StatusProcessing
	case "succeed", "succeeded", "completed", "success":
		return StatusCompleted
	case "failed", "error", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// normalizeElapsed renders a duration as a compact human label such as
// "45s" or "3m10s".
func normalizeElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if minutes == 0 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", minutes, seconds)
}
