// Package whisper wraps the whisper-timestamped CLI (invoked through uvx)
// along with the ffmpeg audio extraction it needs. The transcription
// engine feeds it whole files or chunk segments and parses the timestamped
// JSON output into segments.
package whisper
