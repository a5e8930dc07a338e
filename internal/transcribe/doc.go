// Package transcribe implements the chunked transcription pipeline:
// validation and preprocessing of input audio, silence-aware chunk
// planning, per-chunk transcription, and overlap-deduplicating merge of
// chunk transcripts into one time-aligned result.
package transcribe
