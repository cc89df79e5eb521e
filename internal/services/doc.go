// Package services defines the shared error taxonomy and context annotations
// used across the pipeline, queue, and provider client. Errors are classified
// by wrapping one of the exported sentinel markers so that callers can decide
// retry and persistence behavior with errors.Is.
package services
