// Package server provides the HTTP API for silencecut.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/silencecut/internal/job"
	"github.com/maauso/silencecut/internal/timeline"
)

// DetectionFields are the optional detection overrides shared by job and
// detect requests. Nil fields take the server defaults.
type DetectionFields struct {
	// ThresholdDB is the peak level in dBFS below which audio is silent.
	ThresholdDB *float64 `json:"threshold_db,omitempty" validate:"omitempty,min=-120,max=0"`
	// MinSilenceMs is the shortest silence that is cut.
	MinSilenceMs *int `json:"min_silence_ms,omitempty" validate:"omitempty,min=0,max=600000"`
	// MinSpeechMs is the shortest speech kept between two silences.
	MinSpeechMs *int `json:"min_speech_ms,omitempty" validate:"omitempty,min=0,max=600000"`
	// IncludeTrailingSilence also cuts silence that runs to the end.
	IncludeTrailingSilence *bool `json:"include_trailing_silence,omitempty"`
	// IncludeTrailingKeep keeps the audio after the last silence.
	IncludeTrailingKeep *bool `json:"include_trailing_keep,omitempty"`
}

// apply overlays the set fields on p.
func (f DetectionFields) apply(p job.Params) job.Params {
	if f.ThresholdDB != nil {
		p.ThresholdDB = *f.ThresholdDB
	}
	if f.MinSilenceMs != nil {
		p.MinSilenceMs = *f.MinSilenceMs
	}
	if f.MinSpeechMs != nil {
		p.MinSpeechMs = *f.MinSpeechMs
	}
	if f.IncludeTrailingSilence != nil {
		p.IncludeTrailingSilence = *f.IncludeTrailingSilence
	}
	if f.IncludeTrailingKeep != nil {
		p.IncludeTrailingKeep = *f.IncludeTrailingKeep
	}
	return p
}

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// SourcePath is the server-side path of the video to cut.
	SourcePath string `json:"source_path" validate:"required"`
	// OutputPath is where the cut video is written. Defaults to
	// <name>_cut.mp4 next to the source.
	OutputPath string `json:"output_path,omitempty"`
	// Codec overrides the configured video encoder.
	Codec string `json:"codec,omitempty" validate:"omitempty,max=64"`
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool `json:"push_to_s3"`

	DetectionFields
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// IntervalResponse is a time range in seconds.
type IntervalResponse struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func toIntervals(l timeline.List) []IntervalResponse {
	out := make([]IntervalResponse, len(l))
	for i, iv := range l {
		out[i] = IntervalResponse{Start: iv.Start.Seconds(), End: iv.End.Seconds()}
	}
	return out
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID              string             `json:"id"`
	Status          string             `json:"status"`
	Stage           string             `json:"stage"`
	Progress        float64            `json:"progress"`
	Error           string             `json:"error,omitempty"`
	SourcePath      string             `json:"source_path"`
	OutputPath      string             `json:"output_path"`
	Codec           string             `json:"codec"`
	Params          job.Params         `json:"params"`
	DurationSeconds float64            `json:"duration_seconds"`
	KeptSeconds     float64            `json:"kept_seconds"`
	Silences        []IntervalResponse `json:"silences"`
	Keeps           []IntervalResponse `json:"keeps"`
	SegmentCount    int                `json:"segment_count"`
	VideoURL        string             `json:"video_url,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Stage:           string(j.Stage),
		Progress:        j.Progress,
		Error:           j.Error,
		SourcePath:      j.SourcePath,
		OutputPath:      j.OutputPath,
		Codec:           j.Codec,
		Params:          j.Params,
		DurationSeconds: j.SourceDuration.Seconds(),
		KeptSeconds:     j.Keeps.Total().Seconds(),
		Silences:        toIntervals(j.Silences),
		Keeps:           toIntervals(j.Keeps),
		SegmentCount:    j.SegmentCount,
		VideoURL:        j.VideoURL,
		CreatedAt:       j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// DetectRequest is the HTTP request body for a detection preview.
type DetectRequest struct {
	// SourcePath is the server-side path of the video to analyse.
	SourcePath string `json:"source_path" validate:"required"`

	DetectionFields
}

// DetectResponse is the result of a detection preview.
type DetectResponse struct {
	DurationSeconds float64            `json:"duration_seconds"`
	KeptSeconds     float64            `json:"kept_seconds"`
	RemovedSeconds  float64            `json:"removed_seconds"`
	Silences        []IntervalResponse `json:"silences"`
	Keeps           []IntervalResponse `json:"keeps"`
}

// EncoderResponse describes one video encoder.
type EncoderResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Vendor      string `json:"vendor"`
}

// EncodersResponse lists the encoders the local ffmpeg build supports.
type EncodersResponse struct {
	Encoders   []EncoderResponse `json:"encoders"`
	MaxThreads int               `json:"max_threads"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
