package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maauso/silencecut/internal/audio"
	"github.com/maauso/silencecut/internal/encoder"
	"github.com/maauso/silencecut/internal/events"
	"github.com/maauso/silencecut/internal/media"
	"github.com/maauso/silencecut/internal/settings"
	"github.com/maauso/silencecut/internal/storage"
	"github.com/maauso/silencecut/internal/timeline"
)

// OutputSuffix is appended to the source name when no output path is given.
const OutputSuffix = "_cut"

// Static errors for job processing.
var (
	// ErrSourceRequired is returned when no source path is given.
	ErrSourceRequired = errors.New("source path is required")
	// ErrNothingToKeep is returned when the whole source is silence.
	ErrNothingToKeep = errors.New("source contains no speech to keep")
	// ErrJobNotRunning is returned when cancelling a job that already finished.
	ErrJobNotRunning = errors.New("job is not running")
)

// SegmentExporter trims keep intervals into segment files inside dir.
type SegmentExporter interface {
	ExportTo(ctx context.Context, dir, source string, keeps timeline.List, p encoder.Profile, progress chan<- float64) ([]string, error)
}

// SegmentJoiner joins segment files into one output.
type SegmentJoiner interface {
	Concatenate(ctx context.Context, outputPath string, segments []string) (int, error)
}

// CutInput describes one silence-cut request.
type CutInput struct {
	// SourcePath is the video to cut.
	SourcePath string
	// OutputPath is where the result goes. Empty means <name>_cut.mp4 next
	// to the source.
	OutputPath string
	// Params overrides the service defaults when set.
	Params *Params
	// Codec overrides the configured video encoder when set.
	Codec string
	// PushToS3 uploads the result after it is written.
	PushToS3 bool
}

// Preview is the result of a detection-only run.
type Preview struct {
	Duration time.Duration
	Silences timeline.List
	Keeps    timeline.List
}

// Service drives silence-cut jobs: detect, plan, export, concatenate and
// optionally publish. Jobs can run synchronously with Process or in the
// background with Submit.
type Service struct {
	repo     Repository
	detector audio.Detector
	exporter SegmentExporter
	joiner   SegmentJoiner
	store    storage.Storage
	hub      *events.Hub
	logger   *slog.Logger
	settings settings.Settings
	defaults Params

	mu   sync.Mutex
	runs map[string]*activeRun
	wg   sync.WaitGroup
}

// activeRun tracks a job whose pipeline is executing.
type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHub publishes status and progress events to hub.
func WithHub(hub *events.Hub) ServiceOption {
	return func(s *Service) { s.hub = hub }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSettings sets the encoder preferences used to build profiles.
func WithSettings(st settings.Settings) ServiceOption {
	return func(s *Service) { s.settings = st }
}

// WithDefaults sets the detection parameters used when a request has none.
func WithDefaults(p Params) ServiceOption {
	return func(s *Service) { s.defaults = p }
}

// DefaultParams returns the default detection parameters.
func DefaultParams() Params {
	d := audio.DefaultDetectOpts()
	return Params{
		ThresholdDB:  d.ThresholdDB,
		MinSilenceMs: d.MinSilenceMs,
		MinSpeechMs:  d.MinSpeechMs,
	}
}

// NewService creates a Service.
func NewService(repo Repository, detector audio.Detector, exporter SegmentExporter, joiner SegmentJoiner, store storage.Storage, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		detector: detector,
		exporter: exporter,
		joiner:   joiner,
		store:    store,
		hub:      events.NewHub(),
		logger:   slog.Default(),
		settings: settings.Defaults(),
		defaults: DefaultParams(),
		runs:     make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the event hub the service publishes to.
func (s *Service) Hub() *events.Hub {
	return s.hub
}

// DefaultOutputPath returns <dir>/<name>_cut.mp4 for source.
func DefaultOutputPath(source string) string {
	base := filepath.Base(source)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(source), name+OutputSuffix+".mp4")
}

// CreateJob validates input and persists a new IN_QUEUE job.
func (s *Service) CreateJob(ctx context.Context, input CutInput) (*Job, error) {
	if strings.TrimSpace(input.SourcePath) == "" {
		return nil, ErrSourceRequired
	}
	if _, err := os.Stat(input.SourcePath); err != nil {
		return nil, fmt.Errorf("source %s: %w", input.SourcePath, err)
	}

	job := New()
	job.SourcePath = input.SourcePath
	job.OutputPath = input.OutputPath
	if job.OutputPath == "" {
		job.OutputPath = DefaultOutputPath(input.SourcePath)
	}
	job.Params = s.defaults
	if input.Params != nil {
		job.Params = *input.Params
	}
	job.Codec = input.Codec
	if job.Codec == "" {
		job.Codec = s.settings.VideoEncoder
	}
	job.PushToS3 = input.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("source", job.SourcePath),
		slog.String("output", job.OutputPath),
		slog.String("codec", job.Codec),
		slog.Bool("push_to_s3", job.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.publishStatus(job)
	return job, nil
}

// Process creates a job and runs it to completion. The returned job is
// the final state even when err is non-nil. If progress is non-nil the
// caller must keep receiving from it until Process returns.
func (s *Service) Process(ctx context.Context, input CutInput, progress chan<- float64) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(job.ID, cancel)
	defer s.untrack(job.ID)

	err = s.run(ctx, job, progress)
	return job.Clone(), err
}

// Submit creates a job and runs it in the background. The run outlives
// ctx and can be stopped with CancelJob.
func (s *Service) Submit(ctx context.Context, input CutInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.track(job.ID, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(job.ID)
		defer cancel()
		_ = s.run(runCtx, job, nil)
	}()
	return job.Clone(), nil
}

// Wait blocks until every background job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels all running jobs and waits for them to stop or for
// ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// CancelJob stops a queued or running job.
func (s *Service) CancelJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrJobNotRunning
	}

	if r := s.active(id); r != nil {
		// the run goroutine records the CANCELLED state
		r.cancel()
		return nil
	}

	if err := job.Cancel(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return err
	}
	s.publishStatus(job)
	return nil
}

// DeleteJob cancels a running job, waits for it to stop and removes it
// from the repository. Output files are left in place.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	if r := s.active(id); r != nil {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.repo.Delete(ctx, id)
}

// Preview runs detection and planning without exporting anything.
func (s *Service) Preview(ctx context.Context, source string, params Params) (Preview, error) {
	if strings.TrimSpace(source) == "" {
		return Preview{}, ErrSourceRequired
	}
	analysis, err := s.detector.DetectSilences(ctx, source, params.detectOpts())
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Duration: analysis.Duration,
		Silences: analysis.Silences,
		Keeps:    timeline.Plan(analysis.Silences, analysis.Duration, params.planOpts()),
	}, nil
}

// run executes the pipeline for job and records the outcome.
func (s *Service) run(ctx context.Context, job *Job, progress chan<- float64) error {
	logger := s.logger.With(slog.String("job_id", job.ID))

	if err := job.Start(); err != nil {
		return err
	}
	s.save(ctx, job, logger)
	s.publishStatus(job)

	outputURL, err := s.execute(ctx, job, logger, progress)
	if err != nil {
		s.finishWithError(ctx, job, logger, err)
		return err
	}

	job.SetOutput(job.OutputPath, outputURL)
	if err := job.Complete(); err != nil {
		return err
	}
	s.save(ctx, job, logger)
	s.publishStatus(job)

	logger.Info("job completed",
		slog.String("output", job.OutputPath),
		slog.Int("segments", job.SegmentCount),
		slog.Float64("kept_seconds", job.KeptDuration().Seconds()),
	)
	return nil
}

func (s *Service) execute(ctx context.Context, job *Job, logger *slog.Logger, progress chan<- float64) (string, error) {
	s.setStage(ctx, job, StageAnalyzing, logger)
	analysis, err := s.detector.DetectSilences(ctx, job.SourcePath, job.Params.detectOpts())
	if err != nil {
		return "", fmt.Errorf("detect silences: %w", err)
	}
	keeps := timeline.Plan(analysis.Silences, analysis.Duration, job.Params.planOpts())
	job.SetAnalysis(analysis.Duration, analysis.Silences, keeps)
	s.save(ctx, job, logger)

	logger.Info("silences detected",
		slog.Int("silences", len(analysis.Silences)),
		slog.Int("keeps", len(keeps)),
		slog.Float64("duration_seconds", analysis.Duration.Seconds()),
	)

	switch {
	case len(analysis.Silences) == 0:
		logger.Info("nothing to cut, copying source")
		if err := media.CopyFile(job.SourcePath, job.OutputPath); err != nil {
			return "", fmt.Errorf("copy source: %w", err)
		}
		job.UpdateProgress(100)
		job.SetSegmentCount(1)
		if progress != nil {
			select {
			case progress <- 100:
			case <-ctx.Done():
			}
		}
	case len(keeps) == 0:
		return "", ErrNothingToKeep
	default:
		if err := s.cut(ctx, job, keeps, logger, progress); err != nil {
			return "", err
		}
	}

	if !job.PushToS3 {
		return "", nil
	}
	s.setStage(ctx, job, StagePublishing, logger)
	key := fmt.Sprintf("cuts/%s/%s", job.ID, filepath.Base(job.OutputPath))
	url, err := s.store.Publish(ctx, key, job.OutputPath)
	if err != nil {
		return "", fmt.Errorf("publish output: %w", err)
	}
	return url, nil
}

// cut exports the keep intervals into a per-job run directory and joins
// them into the output.
func (s *Service) cut(ctx context.Context, job *Job, keeps timeline.List, logger *slog.Logger, progress chan<- float64) error {
	dir, err := s.store.MkdirRun(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	defer func() {
		if err := s.store.RemoveRun(context.WithoutCancel(ctx), dir); err != nil {
			logger.Warn("failed to remove run dir", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}()

	st := s.settings
	if job.Codec != st.VideoEncoder {
		// The stored preset and crf belong to the configured encoder.
		st.VideoEncoder = job.Codec
		st.Preset, st.CRF = "", 0
	}
	profile := encoder.ClampThreads(encoder.FromSettings(st, logger), encoder.MaxThreads(ctx))

	s.setStage(ctx, job, StageEncoding, logger)
	ch := make(chan float64)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		saver := newProgressSaver(progressSaveStep, progressSaveInterval)
		s.hub.Relay(ctx, job.ID, ch, func(pct float64) {
			job.UpdateProgress(pct)
			if saver.due(pct, time.Now()) {
				s.save(ctx, job, logger)
			}
			if progress != nil {
				select {
				case progress <- pct:
				case <-ctx.Done():
				}
			}
		})
	}()
	segments, err := s.exporter.ExportTo(ctx, dir, job.SourcePath, keeps, profile, ch)
	close(ch)
	<-relayed
	if err != nil {
		return fmt.Errorf("export segments: %w", err)
	}

	s.setStage(ctx, job, StageConcatenating, logger)
	n, err := s.joiner.Concatenate(ctx, job.OutputPath, segments)
	if err != nil {
		return fmt.Errorf("concatenate: %w", err)
	}
	job.SetSegmentCount(n)
	return nil
}

// Progress is persisted at most once per step or interval while segments
// encode.
const (
	progressSaveStep     = 1.0
	progressSaveInterval = 500 * time.Millisecond
)

// progressSaver decides when a progress value is worth persisting.
type progressSaver struct {
	step     float64
	interval time.Duration
	lastPct  float64
	lastAt   time.Time
}

func newProgressSaver(step float64, interval time.Duration) *progressSaver {
	return &progressSaver{step: step, interval: interval, lastPct: -1}
}

// due reports whether pct should be saved now and records it if so. The
// first value and 100 are always due.
func (p *progressSaver) due(pct float64, now time.Time) bool {
	if p.lastPct >= 0 && pct < 100 &&
		pct-p.lastPct < p.step && now.Sub(p.lastAt) < p.interval {
		return false
	}
	p.lastPct = pct
	p.lastAt = now
	return true
}

func (s *Service) finishWithError(ctx context.Context, job *Job, logger *slog.Logger, err error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("job cancelled")
		_ = job.Cancel()
	} else {
		logger.Error("job failed", slog.String("error", err.Error()))
		_ = job.Fail(err.Error())
	}
	s.save(ctx, job, logger)
	s.publishStatus(job)
}

func (s *Service) setStage(ctx context.Context, job *Job, stage Stage, logger *slog.Logger) {
	job.SetStage(stage)
	logger.Debug("job stage", slog.String("stage", string(stage)))
	s.save(ctx, job, logger)
}

// save persists job and only logs failures. It runs even after ctx is
// cancelled so the final state is recorded.
func (s *Service) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		logger.Warn("failed to save job", slog.String("error", err.Error()))
	}
}

func (s *Service) publishStatus(job *Job) {
	snap := job.Clone()
	s.hub.Publish(events.Event{
		JobID:    snap.ID,
		Type:     events.TypeStatus,
		Status:   string(snap.Status),
		Progress: snap.Progress,
		Error:    snap.Error,
	})
}

func (s *Service) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.runs[id] = &activeRun{cancel: cancel, done: make(chan struct{})}
	s.mu.Unlock()
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	if r, ok := s.runs[id]; ok {
		close(r.done)
		delete(s.runs, id)
	}
	s.mu.Unlock()
}

func (s *Service) active(id string) *activeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (p Params) detectOpts() audio.DetectOpts {
	return audio.DetectOpts{
		ThresholdDB:            p.ThresholdDB,
		MinSilenceMs:           p.MinSilenceMs,
		MinSpeechMs:            p.MinSpeechMs,
		IncludeTrailingSilence: p.IncludeTrailingSilence,
	}
}

func (p Params) planOpts() timeline.PlanOpts {
	return timeline.PlanOpts{IncludeTrailingKeep: p.IncludeTrailingKeep}
}
