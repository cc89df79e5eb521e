// Package logging builds the process slog logger: a pretty console handler
// for interactive use and a JSON handler for machine consumption, plus the
// standardized field keys and context helpers shared across components.
package logging
