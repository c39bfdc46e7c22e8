// Package audio provides audio decoding and silence detection.
package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/maauso/silencecut/internal/timeline"
)

// DetectOpts configures silence detection.
type DetectOpts struct {
	// ThresholdDB is the peak level in dBFS below which a frame is silent.
	// Default: -40 dBFS.
	ThresholdDB float64

	// MinSilenceMs is the minimum silence duration in milliseconds.
	// Default: 700 milliseconds.
	MinSilenceMs int

	// MinSpeechMs is the minimum speech duration between two silences.
	// Shorter speech is absorbed into one silence interval.
	// Default: 500 milliseconds.
	MinSpeechMs int

	// IncludeTrailingSilence keeps a silence that runs to the end of the
	// stream. Default: false.
	IncludeTrailingSilence bool
}

// DefaultDetectOpts returns the default options for silence detection.
func DefaultDetectOpts() DetectOpts {
	return DetectOpts{
		ThresholdDB:  -40,
		MinSilenceMs: 700,
		MinSpeechMs:  500,
	}
}

func (o DetectOpts) mergeOpts() MergeOpts {
	return MergeOpts{
		MinSilenceMs:           o.MinSilenceMs,
		MinSpeechMs:            o.MinSpeechMs,
		IncludeTrailingSilence: o.IncludeTrailingSilence,
	}
}

// Detect scans buf and returns its silence list. It can be called any
// number of times on the same buffer with different options.
func Detect(buf *Buffer, opts DetectOpts) timeline.List {
	return Merge(Scan(buf, opts.ThresholdDB), buf.SampleRate(), opts.mergeOpts())
}

// Analysis is the result of running a Detector on a media file.
type Analysis struct {
	// Silences is the ordered, non-overlapping silence list.
	Silences timeline.List
	// Duration is the length of the analysed audio.
	Duration time.Duration
}

// Detector finds silence intervals in a media file.
type Detector interface {
	// DetectSilences analyses the audio track of sourcePath.
	// Returns a *DecodeError if the audio cannot be read or is empty.
	DetectSilences(ctx context.Context, sourcePath string, opts DetectOpts) (Analysis, error)
}

// SampleDetector implements Detector by decoding PCM and scanning it in
// process.
type SampleDetector struct {
	decoder Decoder
}

// NewSampleDetector creates a SampleDetector backed by decoder.
func NewSampleDetector(decoder Decoder) *SampleDetector {
	return &SampleDetector{decoder: decoder}
}

// DetectSilences decodes sourcePath and runs Detect on the result.
func (d *SampleDetector) DetectSilences(ctx context.Context, sourcePath string, opts DetectOpts) (Analysis, error) {
	buf, err := d.decoder.Decode(ctx, sourcePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("decode audio: %w", err)
	}
	return Analysis{
		Silences: Detect(buf, opts),
		Duration: buf.Duration(),
	}, nil
}

// Verify interface implementation at compile time.
var _ Detector = (*SampleDetector)(nil)
