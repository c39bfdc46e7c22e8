package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/silencecut/internal/audio"
	"github.com/maauso/silencecut/internal/encoder"
	"github.com/maauso/silencecut/internal/events"
	"github.com/maauso/silencecut/internal/job"
)

// JobService is the part of job.Service the handlers use.
type JobService interface {
	Submit(ctx context.Context, input job.CutInput) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	CancelJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error
	Preview(ctx context.Context, source string, params job.Params) (job.Preview, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   JobService
	encoders  encoder.Lister
	hub       *events.Hub
	validator *validator.Validate
	logger    *slog.Logger
	defaults  job.Params
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDefaultParams sets the detection parameters requests start from.
func WithDefaultParams(p job.Params) HandlerOption {
	return func(h *Handlers) {
		h.defaults = p
	}
}

// WithEncoderLister enables GET /encoders.
func WithEncoderLister(l encoder.Lister) HandlerOption {
	return func(h *Handlers) {
		h.encoders = l
	}
}

// WithHub enables the job events websocket.
func WithHub(hub *events.Hub) HandlerOption {
	return func(h *Handlers) {
		h.hub = hub
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
		defaults:  job.DefaultParams(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests. The cut runs in the background.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	params := req.DetectionFields.apply(h.defaults)
	created, err := h.service.Submit(r.Context(), job.CutInput{
		SourcePath: req.SourcePath,
		OutputPath: req.OutputPath,
		Params:     &params,
		Codec:      req.Codec,
		PushToS3:   req.PushToS3,
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, job.ErrSourceRequired) {
			writeError(w, http.StatusUnprocessableEntity, err.Error(), "SOURCE_NOT_FOUND")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", created.ID),
		slog.String("source", req.SourcePath),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := requireID(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobError(w, jobID, "failed to get job", "JOB_FETCH_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}
	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob handles POST /jobs/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelJob(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrJobNotRunning) {
			writeError(w, http.StatusConflict, "job is not running", "JOB_NOT_RUNNING")
			return
		}
		h.jobError(w, jobID, "failed to cancel job", "JOB_CANCEL_FAILED", err)
		return
	}
	writeJSON(w, http.StatusAccepted, CreateJobResponse{ID: jobID, Status: string(job.StatusCancelled)})
}

// DeleteJob handles DELETE /jobs/{id} requests. Output files are kept.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.jobError(w, jobID, "failed to delete job", "JOB_DELETE_FAILED", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Detect handles POST /detect requests: it previews the silences and the
// keep list for the given parameters without writing any video.
func (h *Handlers) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !h.decode(w, r, &req) {
		return
	}

	preview, err := h.service.Preview(r.Context(), req.SourcePath, req.DetectionFields.apply(h.defaults))
	if err != nil {
		var decErr *audio.DecodeError
		if errors.As(err, &decErr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error(), "DECODE_FAILED")
			return
		}
		h.logger.Error("detection failed",
			slog.String("source", req.SourcePath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "detection failed", "DETECT_FAILED")
		return
	}

	kept := preview.Keeps.Total()
	writeJSON(w, http.StatusOK, DetectResponse{
		DurationSeconds: preview.Duration.Seconds(),
		KeptSeconds:     kept.Seconds(),
		RemovedSeconds:  (preview.Duration - kept).Seconds(),
		Silences:        toIntervals(preview.Silences),
		Keeps:           toIntervals(preview.Keeps),
	})
}

// Encoders handles GET /encoders requests.
func (h *Handlers) Encoders(w http.ResponseWriter, r *http.Request) {
	if h.encoders == nil {
		writeError(w, http.StatusNotImplemented, "encoder listing is not configured", "NOT_CONFIGURED")
		return
	}
	codecs, err := encoder.AvailableCodecs(r.Context(), h.encoders)
	if err != nil {
		h.logger.Warn("failed to list encoders, offering CPU only", slog.String("error", err.Error()))
		codecs = encoder.Codecs()[:1]
	}
	resp := EncodersResponse{
		Encoders:   make([]EncoderResponse, 0, len(codecs)),
		MaxThreads: encoder.MaxThreads(r.Context()),
	}
	for _, c := range codecs {
		resp.Encoders = append(resp.Encoders, EncoderResponse{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Vendor:      c.Vendor,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads and validates a JSON body, writing the error response
// itself when it fails.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) jobError(w http.ResponseWriter, jobID, message, code string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error(message,
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, message, code)
}

func requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	return jobID, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
