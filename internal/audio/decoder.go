package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
)

// DefaultSampleRate matches the rate the decoder resamples to when none is
// configured.
const DefaultSampleRate = 44100

// DecodeError is returned when a source's audio stream cannot be read or
// turns out to be empty. It is fatal for the detection call and is never
// retried.
type DecodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("decode %s: %v\nstderr: %s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns a media file's audio track into a PCM Buffer.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Buffer, error)
}

// FFmpegDecoder implements Decoder by piping raw little-endian float32 PCM
// out of the ffmpeg CLI. Audio is downmixed to mono.
type FFmpegDecoder struct {
	ffmpegPath string
	sampleRate int
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// A non-positive sampleRate selects DefaultSampleRate.
func NewFFmpegDecoder(ffmpegPath string, sampleRate int) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, sampleRate: sampleRate}
}

// Decode reads the whole audio track of path into memory.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	samples, readErr := ReadFloat32LE(stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("decode cancelled: %w", ctx.Err())
	}
	if waitErr != nil {
		return nil, &DecodeError{Path: path, Stderr: stderr.String(), Err: waitErr}
	}
	if readErr != nil {
		return nil, &DecodeError{Path: path, Err: readErr}
	}

	buf, err := NewBuffer(samples, d.sampleRate, 1)
	if err != nil {
		return nil, &DecodeError{Path: path, Stderr: stderr.String(), Err: err}
	}
	return buf, nil
}

// ReadFloat32LE decodes a stream of little-endian IEEE-754 float32 values.
// A trailing partial value is ignored.
func ReadFloat32LE(r io.Reader) ([]float32, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		samples []float32
		word    [4]byte
	)
	for {
		_, err := io.ReadFull(br, word[:])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return samples, nil
			}
			return samples, fmt.Errorf("read pcm: %w", err)
		}
		samples = append(samples, math.Float32frombits(binary.LittleEndian.Uint32(word[:])))
	}
}

// Verify interface implementation at compile time.
var _ Decoder = (*FFmpegDecoder)(nil)
