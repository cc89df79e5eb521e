package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks rejected input: unknown ids, malformed descriptors,
	// operations invalid for the current state.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrProviderTransient marks provider failures worth retrying: rate
	// limits, gateway errors, timeouts, dropped connections.
	ErrProviderTransient = errors.New("provider transient failure")
	// ErrProviderPermanent marks provider failures that retrying cannot fix:
	// rejected credentials, invalid requests, tasks reported failed.
	ErrProviderPermanent = errors.New("provider permanent failure")
	// ErrAuthorization marks rejected provider credentials. Distinct from
	// ErrProviderPermanent so pollers can abort early on repeated 401s.
	ErrAuthorization = errors.New("authorization failure")
	// ErrTimeout marks exhausted budgets: poll attempts, composite waits.
	ErrTimeout = errors.New("timeout")
	// ErrConfiguration marks unusable configuration discovered at runtime.
	ErrConfiguration = errors.New("configuration error")
	// ErrInternal marks everything else.
	ErrInternal = errors.New("internal error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the error is worth resubmitting to the provider.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderTransient)
}

// IsAuthFailure reports whether the error stems from rejected credentials.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

var markerLabels = []string{
	ErrValidation.Error(),
	ErrNotFound.Error(),
	ErrProviderTransient.Error(),
	ErrProviderPermanent.Error(),
	ErrAuthorization.Error(),
	ErrTimeout.Error(),
	ErrConfiguration.Error(),
	ErrInternal.Error(),
}

// Details returns the human-readable portion of a wrapped error with the
// leading sentinel label removed. This is what gets persisted on content
// items and generations.
func Details(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, label := range markerLabels {
		prefix := label + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// Classification returns a short category string for persistence and logs.
func Classification(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProviderTransient):
		return "provider_transient"
	case errors.Is(err, ErrProviderPermanent):
		return "provider_permanent"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
