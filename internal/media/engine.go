// Package media wraps the ffmpeg and ffprobe command line tools.
package media

import (
	"context"
	"time"

	"github.com/maauso/silencecut/internal/encoder"
)

// TrimRequest describes one cut-and-encode operation.
type TrimRequest struct {
	// Source is the input media file.
	Source string
	// Output is the file to write. It is overwritten if it exists.
	Output string
	// Start and End bound the kept range of Source. End is exclusive.
	Start time.Duration
	End   time.Duration
	// Profile selects the video encoder and its parameters.
	Profile encoder.Profile
}

// ElapsedFunc receives the amount of output encoded so far for the running
// operation. Values are reported in increasing order.
type ElapsedFunc func(elapsed time.Duration)

// Engine defines the media operations needed to cut a video.
// Implementations should use ffmpeg or a compatible tool.
type Engine interface {
	// Trim re-encodes the [Start, End) range of req.Source into req.Output.
	// onElapsed may be nil.
	Trim(ctx context.Context, req TrimRequest, onElapsed ElapsedFunc) error

	// Concat joins the files listed in a concat demuxer manifest into output
	// using stream copy.
	Concat(ctx context.Context, manifestPath, output string) error

	// Duration returns the container duration of a media file.
	Duration(ctx context.Context, path string) (time.Duration, error)

	// Encoders lists the encoder names the engine was built with.
	Encoders(ctx context.Context) ([]string, error)
}
