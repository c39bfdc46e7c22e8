package audio

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for buffer construction.
var (
	// ErrInvalidSampleRate is returned when the sample rate is not positive.
	ErrInvalidSampleRate = errors.New("invalid sample rate: must be positive")
	// ErrInvalidChannels is returned when the channel count is not positive.
	ErrInvalidChannels = errors.New("invalid channel count: must be positive")
	// ErrEmptyAudio is returned when a decoded stream has no samples.
	ErrEmptyAudio = errors.New("audio stream is empty")
)

// Buffer holds decoded PCM audio as interleaved float samples normalized to
// [-1.0, 1.0]. A Buffer is immutable after construction and may be shared
// between goroutines, so repeated detection runs never touch the source file.
type Buffer struct {
	samples    []float32
	sampleRate int
	channels   int
}

// NewBuffer wraps interleaved samples. The slice is owned by the Buffer
// afterwards and must not be modified by the caller.
func NewBuffer(samples []float32, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}
	if len(samples) < channels {
		return nil, ErrEmptyAudio
	}
	// Drop a trailing partial frame.
	whole := len(samples) - len(samples)%channels
	return &Buffer{
		samples:    samples[:whole],
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// SampleRate returns frames per second.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Channels returns the number of interleaved channels.
func (b *Buffer) Channels() int { return b.channels }

// Frames returns the number of multi-channel frames.
func (b *Buffer) Frames() int { return len(b.samples) / b.channels }

// Bytes returns the memory held by the samples.
func (b *Buffer) Bytes() int64 { return int64(len(b.samples)) * 4 }

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	return FrameTime(b.Frames(), b.sampleRate)
}

// frame returns the samples of frame i. The returned slice aliases the
// buffer and must not be written to.
func (b *Buffer) frame(i int) []float32 {
	off := i * b.channels
	return b.samples[off : off+b.channels]
}

// FrameTime converts a frame index to a time offset without overflowing
// for long recordings.
func FrameTime(frame, sampleRate int) time.Duration {
	whole := frame / sampleRate
	rem := frame % sampleRate
	return time.Duration(whole)*time.Second +
		time.Duration(rem)*time.Second/time.Duration(sampleRate)
}
