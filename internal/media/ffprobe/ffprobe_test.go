package ffprobe

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	payload := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "mp3", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
		],
		"format": {"filename": "x.mp3", "nb_streams": 1, "duration": "245.10", "size": "3921408", "format_name": "mp3"}
	}`)
	result, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.FirstAudioStreamIndex() != 0 {
		t.Fatalf("expected first audio stream index 0, got %d", result.FirstAudioStreamIndex())
	}
	if result.DurationSeconds() != 245.10 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 3921408 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestFirstAudioStreamIndexNoAudio(t *testing.T) {
	result := Result{Streams: []Stream{{Index: 0, CodecType: "video"}}}
	if result.FirstAudioStreamIndex() != -1 {
		t.Fatal("expected -1 for container without audio")
	}
}
