package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/silencecut/internal/encoder"
	"github.com/maauso/silencecut/internal/timeline"
)

// Static errors for media operations.
var (
	// ErrNoPaths is returned when no files are provided for a concat manifest.
	ErrNoPaths = errors.New("no media paths provided")
	// ErrInvalidRange is returned when a trim range is empty or inverted.
	ErrInvalidRange = errors.New("invalid trim range: end must be after start")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// FFmpegEngine implements Engine using the ffmpeg CLI.
type FFmpegEngine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// Option configures an FFmpegEngine.
type Option func(*FFmpegEngine)

// WithFFprobePath sets the ffprobe binary used by Duration.
func WithFFprobePath(path string) Option {
	return func(e *FFmpegEngine) {
		if path != "" {
			e.ffprobePath = path
		}
	}
}

// NewFFmpegEngine creates a new FFmpegEngine.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEngine(ffmpegPath string, opts ...Option) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegEngine{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TrimArgs builds the ffmpeg arguments for req.
func TrimArgs(req TrimRequest) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-nostats",
		"-progress", "pipe:2", // key=value progress on stderr
		"-ss", formatSeconds(req.Start),
		"-to", formatSeconds(req.End),
		"-i", req.Source,
		"-avoid_negative_ts", "make_zero",
	}
	args = append(args, encoder.Args(req.Profile)...)
	args = append(args, "-c:a", "aac")
	args = append(args, encoder.OutputArgs(req.Profile)...)
	return append(args, req.Output)
}

// Trim implements Engine.Trim.
func (e *FFmpegEngine) Trim(ctx context.Context, req TrimRequest, onElapsed ElapsedFunc) error {
	if req.End <= req.Start {
		return fmt.Errorf("%w: %s", ErrInvalidRange, timeline.Interval{Start: req.Start, End: req.End})
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return e.runFFmpegWithProgress(ctx, TrimArgs(req), onElapsed)
}

// Concat implements Engine.Concat.
func (e *FFmpegEngine) Concat(ctx context.Context, manifestPath, output string) error {
	args := []string{
		"-y",           // Overwrite output file
		"-hide_banner", // Keep diagnostics short
		"-f", "concat", // Use concat demuxer
		"-safe", "0", // Allow absolute paths
		"-i", manifestPath, // Input file list
		"-c", "copy", // Copy streams without re-encoding
		output,
	}
	return e.runFFmpeg(ctx, args)
}

// ConcatManifest renders the concat demuxer list for paths. Paths are made
// absolute, use forward slashes and have single quotes escaped.
func ConcatManifest(paths []string) ([]byte, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	var buf bytes.Buffer
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(filepath.ToSlash(absPath), "'", `'\''`)
		fmt.Fprintf(&buf, "file '%s'\n", escapedPath)
	}
	return buf.Bytes(), nil
}

// Duration implements Engine.Duration using ffprobe.
func (e *FFmpegEngine) Duration(ctx context.Context, path string) (time.Duration, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return timeline.Seconds(seconds), nil
}

// Encoders implements Engine.Encoders by parsing `ffmpeg -encoders`.
func (e *FFmpegEngine) Encoders(ctx context.Context) ([]string, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, "-hide_banner", "-encoders")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{Args: []string{"-encoders"}, Stderr: stderr.String(), Err: err}
	}
	return parseEncoders(&stdout), nil
}

// parseEncoders reads the table printed by `ffmpeg -encoders`. Rows follow
// a "------" separator and look like " V....D libx264   description".
func parseEncoders(r io.Reader) []string {
	var (
		names   []string
		inTable bool
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inTable {
			inTable = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names
}

// CopyFile copies a file from src to dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination file: %w", err)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *FFmpegEngine) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// runFFmpegWithProgress is runFFmpeg for commands that write -progress
// output to stderr. Progress lines are reported to onElapsed and kept out of
// the diagnostic.
func (e *FFmpegEngine) runFFmpegWithProgress(ctx context.Context, args []string, onElapsed ElapsedFunc) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	pw := newProgressWriter(onElapsed)
	cmd.Stderr = pw

	err := cmd.Run()
	pw.flush()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: pw.diagnostic(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// formatSeconds renders d as seconds with millisecond precision.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Verify interface implementation at compile time.
var _ Engine = (*FFmpegEngine)(nil)
