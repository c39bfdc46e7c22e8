// Package job provides the Job aggregate for silence-cut runs, its
// repositories and the service that drives a run from decode to output.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/silencecut/internal/job/id"
	"github.com/maauso/silencecut/internal/timeline"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting to be processed.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
)

// Stage names the step a running job is in.
type Stage string

const (
	StageQueued        Stage = "queued"
	StageAnalyzing     Stage = "analyzing"
	StageEncoding      Stage = "encoding"
	StageConcatenating Stage = "concatenating"
	StagePublishing    Stage = "publishing"
	StageDone          Stage = "done"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Params are the detection and planning parameters of a job.
type Params struct {
	ThresholdDB            float64 `json:"threshold_db"`
	MinSilenceMs           int     `json:"min_silence_ms"`
	MinSpeechMs            int     `json:"min_speech_ms"`
	IncludeTrailingSilence bool    `json:"include_trailing_silence"`
	IncludeTrailingKeep    bool    `json:"include_trailing_keep"`
}

// Job represents one silence-cut run.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Stage is the step the job is in.
	Stage Stage
	// Progress is the encode completion percentage (0-100).
	Progress float64
	// Error contains any error message if the job failed.
	Error string

	// SourcePath is the video being cut.
	SourcePath string
	// OutputPath is where the cut video is written.
	OutputPath string
	// Params holds the detection settings used for this job.
	Params Params
	// Codec is the video encoder id used for segments.
	Codec string

	// SourceDuration is the length of the source audio.
	SourceDuration time.Duration
	// Silences is the detected silence list.
	Silences timeline.List
	// Keeps is the planned keep list.
	Keeps timeline.List
	// SegmentCount is how many segments were joined into the output.
	SegmentCount int

	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// VideoURL is the S3 URL if PushToS3 was true.
	VideoURL string

	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Stage:     StageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.CompletedAt = j.UpdatedAt
		j.Stage = StageDone
		j.Progress = 100
	case StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
// The message is only recorded if the transition succeeds.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStage records the step a running job is in.
func (j *Job) SetStage(stage Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// UpdateProgress sets the progress percentage. Values are clamped to
// [0, 100] and never move backwards.
func (j *Job) UpdateProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = min(max(progress, 0), 100)
	if progress < j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetAnalysis records the detection result and the planned keep list.
func (j *Job) SetAnalysis(duration time.Duration, silences, keeps timeline.List) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.SourceDuration = duration
	j.Silences = slices.Clone(silences)
	j.Keeps = slices.Clone(keeps)
	j.UpdatedAt = time.Now()
}

// SetSegmentCount records how many segments made up the output.
func (j *Job) SetSegmentCount(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.SegmentCount = n
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output video path and optional S3 URL.
func (j *Job) SetOutput(videoPath, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = videoPath
	j.VideoURL = videoURL
	j.UpdatedAt = time.Now()
}

// KeptDuration returns the total length of the keep list.
func (j *Job) KeptDuration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Keeps.Total()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Stage:          j.Stage,
		Progress:       j.Progress,
		Error:          j.Error,
		SourcePath:     j.SourcePath,
		OutputPath:     j.OutputPath,
		Params:         j.Params,
		Codec:          j.Codec,
		SourceDuration: j.SourceDuration,
		Silences:       slices.Clone(j.Silences),
		Keeps:          slices.Clone(j.Keeps),
		SegmentCount:   j.SegmentCount,
		PushToS3:       j.PushToS3,
		VideoURL:       j.VideoURL,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
