// Package content persists the domain entities tracked across pipeline runs:
// content items, analyses, templates, generations, and composite generations.
// Status, progress, and error fields are always queryable so callers can
// render partial progress without reaching into queue internals.
package content
