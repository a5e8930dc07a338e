package silence

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Interval is one detected stretch of silence.
type Interval struct {
	Start float64
	End   float64
}

// Midpoint returns the center of the interval, the preferred cut point
// when splitting audio at this silence.
func (i Interval) Midpoint() float64 {
	return (i.Start + i.End) / 2
}

// Detector runs ffmpeg silencedetect against audio files.
type Detector struct {
	ffmpegBinary  string
	thresholdDB   float64
	minSilenceSec float64
	commandOutput func(ctx context.Context, name string, args ...string) (string, error)
}

// NewDetector creates a detector. thresholdDB is the noise floor in dBFS
// (e.g. -40) and minSilenceMillis the minimum silence length to report.
func NewDetector(ffmpegBinary string, thresholdDB float64, minSilenceMillis int) *Detector {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Detector{
		ffmpegBinary:  ffmpegBinary,
		thresholdDB:   thresholdDB,
		minSilenceSec: float64(minSilenceMillis) / 1000,
	}
}

// WithCommandOutput sets a custom command runner (for testing).
func (d *Detector) WithCommandOutput(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	d.commandOutput = runner
}

// Detect runs silencedetect over the whole file and returns the detected
// intervals in order of appearance.
func (d *Detector) Detect(ctx context.Context, source string) ([]Interval, error) {
	if source == "" {
		return nil, fmt.Errorf("silence detect: source path required")
	}
	args := []string{
		"-hide_banner",
		"-nostats",
		"-i", source,
		"-af", fmt.Sprintf("silencedetect=noise=%gdB:d=%g", d.thresholdDB, d.minSilenceSec),
		"-f", "null",
		"-",
	}
	output, err := d.run(ctx, d.ffmpegBinary, args...)
	if err != nil {
		return nil, fmt.Errorf("silence detect: %w", err)
	}
	return ParseOutput(output), nil
}

func (d *Detector) run(ctx context.Context, name string, args ...string) (string, error) {
	if d.commandOutput != nil {
		return d.commandOutput(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// silencedetect reports on stderr; the null muxer writes nothing.
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// ParseOutput extracts silence intervals from ffmpeg silencedetect log
// lines. An unmatched trailing silence_start (silence running into end of
// file) is dropped.
func ParseOutput(output string) []Interval {
	var intervals []Interval
	start, haveStart := 0.0, false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if value, ok := parseMarker(line, "silence_start:"); ok {
			start = value
			haveStart = true
			continue
		}
		if value, ok := parseMarker(line, "silence_end:"); ok && haveStart {
			if value > start {
				intervals = append(intervals, Interval{Start: start, End: value})
			}
			haveStart = false
		}
	}
	return intervals
}

func parseMarker(line, marker string) (float64, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len(marker):])
	if cut := strings.IndexByte(rest, '|'); cut >= 0 {
		rest = strings.TrimSpace(rest[:cut])
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		rest = fields[0]
	}
	value, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
