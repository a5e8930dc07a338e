// Package language normalizes user-provided language identifiers into the
// two-letter codes the whisper runner expects. All language handling is
// consolidated here so the engine, queue, and API agree on one spelling.
package language

import (
	"strings"

	xlang "golang.org/x/text/language"
)

// Normalize converts a language identifier ("th", "tha", "th-TH", "TH") into
// its ISO 639-1 base code. Returns the empty string when the value cannot be
// parsed as a language tag.
func Normalize(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	tag, err := xlang.Parse(trimmed)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlang.No {
		return ""
	}
	return base.String()
}

// NormalizeOrDefault normalizes value, falling back to fallback when value
// is empty or unparseable.
func NormalizeOrDefault(value, fallback string) string {
	if normalized := Normalize(value); normalized != "" {
		return normalized
	}
	return Normalize(fallback)
}
