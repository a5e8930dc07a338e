package whisper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePayload = `{
	"text": " สวัสดีครับ วันนี้อากาศดี",
	"segments": [
		{"text": " สวัสดีครับ", "start": 0.0, "end": 1.4, "words": [
			{"text": "สวัสดีครับ", "start": 0.0, "end": 1.4, "confidence": 0.94}
		]},
		{"text": " วันนี้อากาศดี", "start": 1.6, "end": 3.2, "words": []}
	]
}`

func TestParseSegments(t *testing.T) {
	segments, err := ParseSegments([]byte(samplePayload))
	if err != nil {
		t.Fatalf("ParseSegments failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].End != 1.4 {
		t.Fatalf("unexpected segment end: %v", segments[0].End)
	}
	if len(segments[0].Words) != 1 || segments[0].Words[0].Confidence != 0.94 {
		t.Fatalf("unexpected words: %+v", segments[0].Words)
	}
}

func TestParseSegmentsRejectsGarbage(t *testing.T) {
	if _, err := ParseSegments([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTranscribeFileBuildsCommandAndParsesOutput(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "chunk_0.wav")
	if err := os.WriteFile(source, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewService(Config{Model: "large"}, "")
	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		payloadPath := outputJSONPath(source, dir)
		return os.WriteFile(payloadPath, []byte(samplePayload), 0o644)
	})

	result, err := svc.TranscribeFile(context.Background(), source, dir, "tha")
	if err != nil {
		t.Fatalf("TranscribeFile failed: %v", err)
	}
	if gotName != UVXCommand {
		t.Fatalf("expected uvx invocation, got %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--model large") {
		t.Fatalf("model flag missing: %s", joined)
	}
	if !strings.Contains(joined, "--language th") {
		t.Fatalf("language should be normalized to ISO 639-1: %s", joined)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	if result.Text != "สวัสดีครับ วันนี้อากาศดี" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

func TestTranscribeFileRequiresSource(t *testing.T) {
	svc := NewService(Config{}, "")
	if _, err := svc.TranscribeFile(context.Background(), "", "", "th"); err == nil {
		t.Fatal("expected error for empty source")
	}
}
