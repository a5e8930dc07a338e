// Package ingest watches the inbox directory and enqueues transcription
// tasks for audio files dropped into it.
package ingest
