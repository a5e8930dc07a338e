// Package textutil provides small text helpers shared across murmur:
// token-set similarity used by the transcript merger's duplicate detection,
// and filename sanitization for ingest artifacts.
package textutil
