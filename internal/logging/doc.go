// Package logging builds the slog loggers used across murmur and provides
// standardized attribute helpers so components emit consistent structured
// fields (component, task_id, stage, event_type).
//
// Two output formats are supported: a human-oriented console format for
// interactive use and JSON for machine consumption. Format and level come
// from the [logging] config section.
package logging
