package export

import (
	"errors"
	"fmt"

	"github.com/maauso/silencecut/internal/media"
	"github.com/maauso/silencecut/internal/timeline"
)

// Static errors for export operations.
var (
	// ErrEmptySegment is returned when the engine reports success but the
	// segment file is missing or has no content.
	ErrEmptySegment = errors.New("encoded segment is empty")
	// ErrEmptyInterval is returned when a keep interval has no duration.
	ErrEmptyInterval = errors.New("keep interval has zero duration")
)

// SegmentEncodeError reports the keep interval whose encode failed.
// Segments produced before the failure are left on disk.
type SegmentEncodeError struct {
	Index      int
	Interval   timeline.Interval
	Diagnostic string
	Err        error
}

func (e *SegmentEncodeError) Error() string {
	return fmt.Sprintf("encode segment %d %s: %v", e.Index, e.Interval, e.Err)
}

func (e *SegmentEncodeError) Unwrap() error {
	return e.Err
}

// ConcatenationError reports a failed concat. The output file is left as
// the engine wrote it.
type ConcatenationError struct {
	Diagnostic string
	Err        error
}

func (e *ConcatenationError) Error() string {
	return fmt.Sprintf("concatenate segments: %v", e.Err)
}

func (e *ConcatenationError) Unwrap() error {
	return e.Err
}

// diagnosticOf extracts the engine's stderr from err, if any.
func diagnosticOf(err error) string {
	var ffErr *media.FFmpegError
	if errors.As(err, &ffErr) {
		return ffErr.Stderr
	}
	return ""
}
