package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/silencecut/internal/audio"
	"github.com/maauso/silencecut/internal/job"
	"github.com/maauso/silencecut/internal/timeline"
)

// mockService implements JobService for testing.
type mockService struct {
	mock.Mock
}

func (m *mockService) Submit(ctx context.Context, input job.CutInput) (*job.Job, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockService) GetJob(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockService) ListJobs(ctx context.Context) ([]*job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Job), args.Error(1)
}

func (m *mockService) CancelJob(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockService) DeleteJob(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockService) Preview(ctx context.Context, source string, params job.Params) (job.Preview, error) {
	args := m.Called(ctx, source, params)
	return args.Get(0).(job.Preview), args.Error(1)
}

// stubLister implements encoder.Lister.
type stubLister struct {
	names []string
	err   error
}

func (s stubLister) Encoders(context.Context) ([]string, error) {
	return s.names, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...HandlerOption) (*Handlers, *mockService) {
	t.Helper()
	svc := &mockService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return NewHandlers(svc, testLogger(), opts...), svc
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func withID(handler http.HandlerFunc, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.SetPathValue("id", id)
		handler(w, r)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func completedJob() *job.Job {
	j := job.NewWithID("cut-1700000000-abcdef012345")
	j.SourcePath = "/videos/talk.mp4"
	j.OutputPath = "/videos/talk_cut.mp4"
	j.Codec = "libx264"
	j.Params = job.DefaultParams()
	_ = j.Start()
	j.SetAnalysis(10*time.Second,
		timeline.List{{Start: 3 * time.Second, End: 5 * time.Second}},
		timeline.List{{Start: 0, End: 3 * time.Second}, {Start: 5 * time.Second, End: 10 * time.Second}},
	)
	j.SetSegmentCount(2)
	_ = j.Complete()
	return j
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := doJSON(t, h.Health, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob_Success(t *testing.T) {
	h, svc := newTestHandlers(t, WithDefaultParams(job.Params{ThresholdDB: -40, MinSilenceMs: 700, MinSpeechMs: 500}))
	created := job.NewWithID("cut-1")

	svc.On("Submit", mock.Anything, mock.MatchedBy(func(in job.CutInput) bool {
		return in.SourcePath == "/videos/talk.mp4" &&
			in.Codec == "h264_nvenc" &&
			in.PushToS3 &&
			in.Params != nil &&
			*in.Params == job.Params{ThresholdDB: -32, MinSilenceMs: 700, MinSpeechMs: 0, IncludeTrailingKeep: true}
	})).Return(created, nil)

	threshold := -32.0
	speech := 0
	keep := true
	rec := doJSON(t, h.CreateJob, http.MethodPost, "/jobs", CreateJobRequest{
		SourcePath: "/videos/talk.mp4",
		Codec:      "h264_nvenc",
		PushToS3:   true,
		DetectionFields: DetectionFields{
			ThresholdDB:         &threshold,
			MinSpeechMs:         &speech,
			IncludeTrailingKeep: &keep,
		},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cut-1", resp.ID)
	assert.Equal(t, "IN_QUEUE", resp.Status)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	positive := 6.0
	negative := -5
	tests := []struct {
		name string
		body CreateJobRequest
	}{
		{"missing source", CreateJobRequest{}},
		{"threshold above zero", CreateJobRequest{SourcePath: "/v.mp4", DetectionFields: DetectionFields{ThresholdDB: &positive}}},
		{"negative min silence", CreateJobRequest{SourcePath: "/v.mp4", DetectionFields: DetectionFields{MinSilenceMs: &negative}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandlers(t)
			rec := doJSON(t, h.CreateJob, http.MethodPost, "/jobs", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
		})
	}
}

func TestCreateJob_SourceMissing(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Submit", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("source /nope.mp4: %w", fs.ErrNotExist))

	rec := doJSON(t, h.CreateJob, http.MethodPost, "/jobs", CreateJobRequest{SourcePath: "/nope.mp4"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "SOURCE_NOT_FOUND", decodeError(t, rec).Code)
}

func TestCreateJob_ServiceError(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	rec := doJSON(t, h.CreateJob, http.MethodPost, "/jobs", CreateJobRequest{SourcePath: "/v.mp4"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "JOB_CREATION_FAILED", decodeError(t, rec).Code)
}

func TestGetJob_Success(t *testing.T) {
	h, svc := newTestHandlers(t)
	j := completedJob()
	svc.On("GetJob", mock.Anything, j.ID).Return(j, nil)

	rec := doJSON(t, withID(h.GetJob, j.ID), http.MethodGet, "/jobs/"+j.ID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, j.ID, resp.ID)
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, "done", resp.Stage)
	assert.Equal(t, 100.0, resp.Progress)
	assert.Equal(t, 10.0, resp.DurationSeconds)
	assert.Equal(t, 8.0, resp.KeptSeconds)
	assert.Equal(t, []IntervalResponse{{Start: 3, End: 5}}, resp.Silences)
	assert.Len(t, resp.Keeps, 2)
	assert.Equal(t, 2, resp.SegmentCount)
	assert.Equal(t, "/videos/talk_cut.mp4", resp.OutputPath)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetJob_NotFound(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("GetJob", mock.Anything, "missing").Return(nil, job.ErrJobNotFound)

	rec := doJSON(t, withID(h.GetJob, "missing"), http.MethodGet, "/jobs/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetJob_MissingID(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := doJSON(t, h.GetJob, http.MethodGet, "/jobs/", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_JOB_ID", decodeError(t, rec).Code)
}

func TestListJobs(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("ListJobs", mock.Anything).Return([]*job.Job{completedJob(), job.NewWithID("cut-2")}, nil)

	rec := doJSON(t, h.ListJobs, http.MethodGet, "/jobs", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListJobsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "IN_QUEUE", resp.Jobs[1].Status)
	assert.Empty(t, resp.Jobs[1].Silences)
}

func TestListJobs_Error(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("ListJobs", mock.Anything).Return(nil, errors.New("db locked"))

	rec := doJSON(t, h.ListJobs, http.MethodGet, "/jobs", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"running", nil, http.StatusAccepted},
		{"finished", job.ErrJobNotRunning, http.StatusConflict},
		{"unknown", job.ErrJobNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestHandlers(t)
			svc.On("CancelJob", mock.Anything, "cut-9").Return(tt.err)

			rec := doJSON(t, withID(h.CancelJob, "cut-9"), http.MethodPost, "/jobs/cut-9/cancel", nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestDeleteJob(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("DeleteJob", mock.Anything, "cut-1").Return(nil)
	svc.On("DeleteJob", mock.Anything, "cut-2").Return(job.ErrJobNotFound)

	rec := doJSON(t, withID(h.DeleteJob, "cut-1"), http.MethodDelete, "/jobs/cut-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, withID(h.DeleteJob, "cut-2"), http.MethodDelete, "/jobs/cut-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetect(t *testing.T) {
	h, svc := newTestHandlers(t)
	minSilence := 400
	svc.On("Preview", mock.Anything, "/videos/talk.mp4", job.Params{ThresholdDB: -40, MinSilenceMs: 400, MinSpeechMs: 500}).
		Return(job.Preview{
			Duration: 12 * time.Second,
			Silences: timeline.List{{Start: 2 * time.Second, End: 4500 * time.Millisecond}},
			Keeps:    timeline.List{{Start: 0, End: 2 * time.Second}},
		}, nil)

	rec := doJSON(t, h.Detect, http.MethodPost, "/detect", DetectRequest{
		SourcePath:      "/videos/talk.mp4",
		DetectionFields: DetectionFields{MinSilenceMs: &minSilence},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DetectResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 12.0, resp.DurationSeconds)
	assert.Equal(t, 2.0, resp.KeptSeconds)
	assert.Equal(t, 10.0, resp.RemovedSeconds)
	assert.Equal(t, []IntervalResponse{{Start: 2, End: 4.5}}, resp.Silences)
}

func TestDetect_DecodeError(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Preview", mock.Anything, "/videos/silent.mp4", mock.Anything).
		Return(job.Preview{}, &audio.DecodeError{Path: "/videos/silent.mp4", Err: audio.ErrEmptyAudio})

	rec := doJSON(t, h.Detect, http.MethodPost, "/detect", DetectRequest{SourcePath: "/videos/silent.mp4"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "DECODE_FAILED", decodeError(t, rec).Code)
}

func TestEncoders(t *testing.T) {
	h, _ := newTestHandlers(t, WithEncoderLister(stubLister{names: []string{"libx264", "h264_qsv", "aac"}}))

	rec := doJSON(t, h.Encoders, http.MethodGet, "/encoders", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EncodersResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Encoders, 2)
	assert.Equal(t, "libx264", resp.Encoders[0].ID)
	assert.Equal(t, "cpu", resp.Encoders[0].Vendor)
	assert.Equal(t, "h264_qsv", resp.Encoders[1].ID)
	assert.Equal(t, "qsv", resp.Encoders[1].Vendor)
	assert.Positive(t, resp.MaxThreads)
}

func TestEncoders_ListingFailsFallsBackToCPU(t *testing.T) {
	h, _ := newTestHandlers(t, WithEncoderLister(stubLister{err: errors.New("ffmpeg not found")}))

	rec := doJSON(t, h.Encoders, http.MethodGet, "/encoders", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EncodersResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Encoders, 1)
	assert.Equal(t, "libx264", resp.Encoders[0].ID)
}

func TestEncoders_NotConfigured(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := doJSON(t, h.Encoders, http.MethodGet, "/encoders", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRouter_Integration(t *testing.T) {
	h, svc := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())
	created := job.NewWithID("cut-42")
	svc.On("Submit", mock.Anything, mock.Anything).Return(created, nil)
	svc.On("GetJob", mock.Anything, "cut-42").Return(created, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body, _ := json.Marshal(CreateJobRequest{SourcePath: "/videos/talk.mp4"})
	req = httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/jobs/cut-42", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/jobs/cut-42", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
