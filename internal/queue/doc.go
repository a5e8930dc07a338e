// Package queue persists transcription and risk-detection tasks and
// exposes helpers for driving their lifecycle.
//
// Tasks are ordered by priority first and submission sequence second;
// Pop claims the best queued task atomically so no two workers receive
// the same task. The durable backend is SQLite; an in-memory store with
// identical semantics serves as fallback when the database cannot be
// opened. Periodic snapshots (see Backup) let a restarted daemon resume
// with the exact scheduling order it had before the crash.
//
// Treat this package as the single source of truth for queue semantics;
// status transitions happen only through its API.
package queue
