package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/silencecut/internal/events"
	"github.com/maauso/silencecut/internal/job"
)

func dialEvents(t *testing.T, srv *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/" + jobID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	hub := events.NewHub()
	h, svc := newTestHandlers(t, WithHub(hub))
	running := job.NewWithID("cut-live")
	require.NoError(t, running.Start())
	svc.On("GetJob", mock.Anything, "cut-live").Return(running, nil)

	srv := httptest.NewServer(NewRouter(h, testLogger(), DefaultConfig()))
	defer srv.Close()

	conn := dialEvents(t, srv, "cut-live")

	snapshot := readEvent(t, conn)
	assert.Equal(t, events.TypeStatus, snapshot.Type)
	assert.Equal(t, "RUNNING", snapshot.Status)

	hub.Publish(events.Event{JobID: "other", Type: events.TypeProgress, Progress: 10})
	hub.Publish(events.Event{JobID: "cut-live", Type: events.TypeProgress, Progress: 50})
	hub.Publish(events.Event{JobID: "cut-live", Type: events.TypeStatus, Status: "COMPLETED", Progress: 100})

	progress := readEvent(t, conn)
	assert.Equal(t, events.TypeProgress, progress.Type)
	assert.Equal(t, 50.0, progress.Progress)

	final := readEvent(t, conn)
	assert.Equal(t, "COMPLETED", final.Status)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestJobEvents_TerminalJobClosesAfterSnapshot(t *testing.T) {
	hub := events.NewHub()
	h, svc := newTestHandlers(t, WithHub(hub))
	done := completedJob()
	svc.On("GetJob", mock.Anything, done.ID).Return(done, nil)

	srv := httptest.NewServer(NewRouter(h, testLogger(), DefaultConfig()))
	defer srv.Close()

	conn := dialEvents(t, srv, done.ID)

	snapshot := readEvent(t, conn)
	assert.Equal(t, "COMPLETED", snapshot.Status)
	assert.Equal(t, 100.0, snapshot.Progress)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestJobEvents_UnknownJob(t *testing.T) {
	hub := events.NewHub()
	h, svc := newTestHandlers(t, WithHub(hub))
	svc.On("GetJob", mock.Anything, "missing").Return(nil, job.ErrJobNotFound)

	rec := doJSON(t, withID(h.JobEvents, "missing"), http.MethodGet, "/jobs/missing/events", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, hub.SubscriberCount())
}

func TestJobEvents_NoHub(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := doJSON(t, withID(h.JobEvents, "cut-1"), http.MethodGet, "/jobs/cut-1/events", nil)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
