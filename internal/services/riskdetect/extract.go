package riskdetect

import (
	"regexp"
	"strings"
)

var (
	thinkPattern = regexp.MustCompile(`(?is)<think>.*?</think>\s*(.*)$`)
	boxedPattern = regexp.MustCompile(`(?i)\\?boxed\s*\{\s*([^}]+)\s*\}`)
)

// ExtractRiskResult normalizes a free-form model answer to one of the
// verdict constants. Reasoning models wrap their deliberation in a
// <think> block; only the text after it counts as the answer. Failing
// that, direct Thai phrases, \boxed{} answers, and bare yes/no keywords
// are tried in order.
func ExtractRiskResult(response string) string {
	if m := thinkPattern.FindStringSubmatch(response); m != nil {
		afterThink := strings.ToLower(strings.TrimSpace(m[1]))
		if verdict := matchThaiVerdict(afterThink); verdict != "" {
			return verdict
		}
	}

	lower := strings.ToLower(response)
	if verdict := matchThaiVerdict(lower); verdict != "" {
		return verdict
	}
	if strings.Contains(lower, "ไม่มีความเสี่ยง") {
		return VerdictClear
	}

	if m := boxedPattern.FindStringSubmatch(response); m != nil {
		boxed := strings.ToLower(strings.TrimSpace(m[1]))
		switch {
		case strings.Contains(boxed, "ไม่ใช่"), strings.Contains(boxed, "no"), strings.Contains(boxed, "ไม่เข้าข่าย"):
			return VerdictClear
		case strings.Contains(boxed, "ใช่"), strings.Contains(boxed, "yes"), strings.Contains(boxed, "เข้าข่าย"):
			return VerdictRisky
		}
	}

	switch {
	case strings.Contains(lower, "ไม่ใช่"), strings.Contains(lower, "no"):
		return VerdictClear
	case strings.Contains(lower, "ใช่"), strings.Contains(lower, "yes"):
		return VerdictRisky
	}
	return VerdictInconclusive
}

func matchThaiVerdict(text string) string {
	switch {
	case strings.Contains(text, "เข้าข่ายผิด"), strings.Contains(text, "ผิดกฎหมาย"):
		return VerdictRisky
	case strings.Contains(text, "ไม่ผิด"), strings.Contains(text, "ไม่เข้าข่าย"):
		return VerdictClear
	}
	return ""
}
