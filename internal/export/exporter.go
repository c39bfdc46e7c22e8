// Package export turns a keep list into encoded segment files and joins
// them into the final output.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/silencecut/internal/encoder"
	"github.com/maauso/silencecut/internal/media"
	"github.com/maauso/silencecut/internal/storage"
	"github.com/maauso/silencecut/internal/timeline"
)

// Job is one trim-and-encode unit of work.
type Job struct {
	SourcePath string
	Interval   timeline.Interval
	OutputPath string
	Profile    encoder.Profile
	Index      int
}

// Exporter encodes each keep interval of a source into its own segment.
type Exporter struct {
	engine      media.Engine
	storage     storage.Storage
	logger      *slog.Logger
	maxParallel int
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithMaxParallel bounds how many segments encode at once. Values below 1
// are ignored. The default is 1.
func WithMaxParallel(n int) ExporterOption {
	return func(e *Exporter) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithLogger sets the exporter's logger.
func WithLogger(logger *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter creates an Exporter that runs engine and places segments in
// run directories provided by store.
func NewExporter(engine media.Engine, store storage.Storage, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		engine:      engine,
		storage:     store,
		logger:      slog.Default(),
		maxParallel: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan builds the jobs for keeps, writing outputs into dir.
func Plan(source, dir string, keeps timeline.List, p encoder.Profile) []Job {
	jobs := make([]Job, len(keeps))
	for i, iv := range keeps {
		jobs[i] = Job{
			SourcePath: source,
			Interval:   iv,
			OutputPath: filepath.Join(dir, fmt.Sprintf("seg_%d_%s.mp4", i, uuid.NewString())),
			Profile:    p,
			Index:      i,
		}
	}
	return jobs
}

// Export encodes every interval of keeps from source using profile p and
// returns the segment paths in interval order. Percentages in [0, 100] are
// sent on progress, which may be nil; the caller owns draining and closing
// the channel.
//
// On failure it returns a *SegmentEncodeError and leaves the segments that
// were already produced on disk. An empty keep list returns (nil, nil).
func (e *Exporter) Export(ctx context.Context, source string, keeps timeline.List, p encoder.Profile, progress chan<- float64) ([]string, error) {
	if len(keeps) == 0 {
		return nil, nil
	}
	if err := validateKeeps(keeps); err != nil {
		return nil, err
	}

	dir, err := e.storage.MkdirRun(ctx, "segments")
	if err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}
	return e.exportTo(ctx, dir, source, keeps, p, progress)
}

// ExportTo behaves like Export but writes the segments into dir, which the
// caller owns and removes.
func (e *Exporter) ExportTo(ctx context.Context, dir, source string, keeps timeline.List, p encoder.Profile, progress chan<- float64) ([]string, error) {
	if len(keeps) == 0 {
		return nil, nil
	}
	if err := validateKeeps(keeps); err != nil {
		return nil, err
	}
	return e.exportTo(ctx, dir, source, keeps, p, progress)
}

func validateKeeps(keeps timeline.List) error {
	if err := keeps.Validate(); err != nil {
		return fmt.Errorf("invalid keep list: %w", err)
	}
	for i, iv := range keeps {
		if iv.Duration() <= 0 {
			return &SegmentEncodeError{Index: i, Interval: iv, Err: ErrEmptyInterval}
		}
	}
	return nil
}

func (e *Exporter) exportTo(ctx context.Context, dir, source string, keeps timeline.List, p encoder.Profile, progress chan<- float64) ([]string, error) {
	jobs := Plan(source, dir, keeps, p)
	tracker := newProgressTracker(ctx, keeps.Total(), progress)
	defer tracker.close()

	e.logger.Info("exporting segments",
		slog.String("source", source),
		slog.Int("segments", len(jobs)),
		slog.Float64("keep_seconds", keeps.Total().Seconds()),
		slog.String("codec", p.Codec),
		slog.Int("max_parallel", e.maxParallel),
	)

	if e.maxParallel <= 1 || len(jobs) == 1 {
		return e.exportSequential(ctx, jobs, tracker)
	}
	return e.exportParallel(ctx, jobs, tracker)
}

// exportSequential folds the jobs in order, carrying the produced outputs.
func (e *Exporter) exportSequential(ctx context.Context, jobs []Job, tracker *progressTracker) ([]string, error) {
	outputs := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return outputs, fmt.Errorf("export cancelled: %w", err)
		}
		if err := e.runJob(ctx, job, tracker); err != nil {
			return outputs, err
		}
		outputs = append(outputs, job.OutputPath)
	}
	return outputs, nil
}

// exportParallel runs up to maxParallel jobs at once. Outputs keep the
// interval order regardless of completion order.
func (e *Exporter) exportParallel(ctx context.Context, jobs []Job, tracker *progressTracker) ([]string, error) {
	done := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("export cancelled: %w", err)
			}
			if err := e.runJob(gctx, job, tracker); err != nil {
				return err
			}
			done[job.Index] = true
			return nil
		})
	}

	err := g.Wait()

	outputs := make([]string, 0, len(jobs))
	for i, job := range jobs {
		if done[i] {
			outputs = append(outputs, job.OutputPath)
		}
	}
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("export cancelled: %w", ctx.Err())
	}
	return outputs, err
}

func (e *Exporter) runJob(ctx context.Context, job Job, tracker *progressTracker) error {
	nominal := job.Interval.Duration()
	start := time.Now()

	err := e.engine.Trim(ctx, media.TrimRequest{
		Source:  job.SourcePath,
		Output:  job.OutputPath,
		Start:   job.Interval.Start,
		End:     job.Interval.End,
		Profile: job.Profile,
	}, func(elapsed time.Duration) {
		tracker.advance(job.Index, elapsed, nominal)
	})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return fmt.Errorf("export cancelled: %w", err)
		}
		e.logger.Error("segment encode failed",
			slog.Int("index", job.Index),
			slog.String("interval", job.Interval.String()),
			slog.String("error", err.Error()),
		)
		return &SegmentEncodeError{
			Index:      job.Index,
			Interval:   job.Interval,
			Diagnostic: diagnosticOf(err),
			Err:        err,
		}
	}

	if err := verifySegment(job.OutputPath); err != nil {
		return &SegmentEncodeError{Index: job.Index, Interval: job.Interval, Err: err}
	}

	tracker.finish(job.Index, nominal)

	e.logger.Debug("segment encoded",
		slog.Int("index", job.Index),
		slog.String("output", job.OutputPath),
		slog.Duration("took", time.Since(start)),
		slog.Float64("percent", tracker.percent()),
	)
	return nil
}

func verifySegment(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmptySegment, err)
	}
	if info.Size() == 0 {
		return ErrEmptySegment
	}
	return nil
}
