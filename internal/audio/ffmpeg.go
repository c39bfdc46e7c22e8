package audio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/silencecut/internal/timeline"
)

var (
	durationRe     = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)`)
)

// tailTolerance is how close a silence end must be to the stream end to
// count as trailing silence.
const tailTolerance = 10 * time.Millisecond

// FFmpegSilenceDetector implements Detector using the ffmpeg silencedetect
// filter. ffmpeg performs threshold and minimum-duration filtering, the
// speech-gap fusion is applied here.
type FFmpegSilenceDetector struct {
	ffmpegPath string
}

// NewFFmpegSilenceDetector creates a new FFmpegSilenceDetector.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegSilenceDetector(ffmpegPath string) *FFmpegSilenceDetector {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegSilenceDetector{ffmpegPath: ffmpegPath}
}

// DetectSilences implements Detector.DetectSilences.
func (s *FFmpegSilenceDetector) DetectSilences(ctx context.Context, sourcePath string, opts DetectOpts) (Analysis, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return Analysis{}, &DecodeError{Path: sourcePath, Err: err}
	}

	filter := fmt.Sprintf("silencedetect=noise=%gdB:d=%g",
		opts.ThresholdDB,
		float64(opts.MinSilenceMs)/1000.0,
	)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner",
		"-i", sourcePath,
		"-vn", "-sn", "-dn",
		"-af", filter,
		"-f", "null",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes silencedetect output to stderr
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return Analysis{}, fmt.Errorf("silencedetect cancelled: %w", ctx.Err())
	}

	output := stderr.String()
	duration, err := parseDuration(output)
	if err != nil {
		if runErr != nil {
			return Analysis{}, &DecodeError{Path: sourcePath, Stderr: output, Err: runErr}
		}
		return Analysis{}, &DecodeError{Path: sourcePath, Stderr: output, Err: err}
	}
	if duration <= 0 {
		return Analysis{}, &DecodeError{Path: sourcePath, Err: ErrEmptyAudio}
	}

	raw, open, err := parseSilenceOutput(output)
	if err != nil {
		return Analysis{}, fmt.Errorf("parse silencedetect output: %w", err)
	}
	raw = applyTrailingPolicy(raw, open, duration, opts.IncludeTrailingSilence)

	return Analysis{
		Silences: fuseSpeechGaps(raw, opts.MinSpeechMs),
		Duration: duration,
	}, nil
}

// parseDuration extracts "Duration: HH:MM:SS.ms" from ffmpeg stderr.
func parseDuration(output string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])
	frac, _ := strconv.ParseFloat("0."+matches[4], 64)

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		timeline.Seconds(frac), nil
}

// parseSilenceOutput parses silencedetect lines into intervals. A
// silence_start with no matching silence_end is returned as open.
func parseSilenceOutput(output string) (timeline.List, *time.Duration, error) {
	var (
		intervals    timeline.List
		currentStart time.Duration
		hasStart     bool
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if m := silenceStartRe.FindStringSubmatch(line); len(m) > 1 {
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			// silencedetect can report a tiny negative start at t=0
			if val < 0 {
				val = 0
			}
			currentStart = timeline.Seconds(val)
			hasStart = true
		}

		if m := silenceEndRe.FindStringSubmatch(line); len(m) > 1 && hasStart {
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			intervals = append(intervals, timeline.Interval{
				Start: currentStart,
				End:   timeline.Seconds(val),
			})
			hasStart = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	if hasStart {
		return intervals, &currentStart, nil
	}
	return intervals, nil, nil
}

// applyTrailingPolicy closes or drops silence that reaches the end of the
// stream according to includeTrailing.
func applyTrailingPolicy(raw timeline.List, open *time.Duration, duration time.Duration, includeTrailing bool) timeline.List {
	if includeTrailing {
		if open != nil && *open < duration {
			raw = append(raw, timeline.Interval{Start: *open, End: duration})
		}
		return raw
	}

	// Newer ffmpeg builds emit silence_end at EOF; treat it as open.
	if n := len(raw); n > 0 && raw[n-1].End >= duration-tailTolerance {
		raw = raw[:n-1]
	}
	return raw
}

// Verify interface implementation at compile time.
var _ Detector = (*FFmpegSilenceDetector)(nil)
