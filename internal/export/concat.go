package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/silencecut/internal/media"
	"github.com/maauso/silencecut/internal/storage"
)

// Concatenator joins segments by stream copy.
type Concatenator struct {
	engine  media.Engine
	storage storage.Storage
	logger  *slog.Logger
}

// NewConcatenator creates a Concatenator. A nil logger uses slog.Default().
func NewConcatenator(engine media.Engine, store storage.Storage, logger *slog.Logger) *Concatenator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Concatenator{engine: engine, storage: store, logger: logger}
}

// Concatenate joins segments into outputPath in order and returns how many
// segments were joined. The manifest and the segment files are deleted on
// every path; deletion errors are logged and swallowed. An empty segment
// list is a no-op.
func (c *Concatenator) Concatenate(ctx context.Context, outputPath string, segments []string) (int, error) {
	if len(segments) == 0 {
		return 0, nil
	}

	var manifestPath string
	defer func() {
		paths := segments
		if manifestPath != "" {
			paths = append([]string{manifestPath}, segments...)
		}
		// Cleanup must run even when ctx is already cancelled.
		if cerr := c.storage.CleanupTemp(context.WithoutCancel(ctx), paths); cerr != nil {
			c.logger.Debug("concat cleanup incomplete", slog.String("error", cerr.Error()))
		}
	}()

	manifest, err := media.ConcatManifest(segments)
	if err != nil {
		return 0, &ConcatenationError{Err: err}
	}
	manifestPath, err = c.storage.SaveTemp(ctx, "concat", bytes.NewReader(manifest))
	if err != nil {
		return 0, &ConcatenationError{Err: fmt.Errorf("write manifest: %w", err)}
	}

	c.logger.Info("concatenating segments",
		slog.Int("segments", len(segments)),
		slog.String("output", outputPath),
	)

	if err := c.engine.Concat(ctx, manifestPath, outputPath); err != nil {
		return 0, &ConcatenationError{Diagnostic: diagnosticOf(err), Err: err}
	}

	// probing is informational; a missing ffprobe must not fail the cut
	if d, err := c.engine.Duration(ctx, outputPath); err != nil {
		c.logger.Debug("could not probe output duration", slog.String("error", err.Error()))
	} else {
		c.logger.Info("output written",
			slog.String("output", outputPath),
			slog.Duration("duration", d),
		)
	}
	return len(segments), nil
}
