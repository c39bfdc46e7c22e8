package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maauso/silencecut/internal/events"
	"github.com/maauso/silencecut/internal/job"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by CORSMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// JobEvents handles GET /jobs/{id}/events. It upgrades to a websocket,
// sends the current job state and then streams status and progress
// events until the job reaches a terminal state or the client leaves.
func (h *Handlers) JobEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotImplemented, "event streaming is not configured", "NOT_CONFIGURED")
		return
	}
	jobID, ok := requireID(w, r)
	if !ok {
		return
	}

	// subscribe before the snapshot so no transition is missed
	sub := h.hub.Subscribe(jobID)
	defer h.hub.Unsubscribe(sub)

	current, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobError(w, jobID, "failed to get job", "JOB_FETCH_FAILED", err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() { _ = conn.Close() }()

	logger := h.logger.With(slog.String("job_id", jobID), slog.String("client_id", sub.ID))
	logger.Debug("event stream opened")

	closed := make(chan struct{})
	go readPump(conn, closed)

	snapshot := events.Event{
		JobID:    current.ID,
		Type:     events.TypeStatus,
		Status:   string(current.Status),
		Progress: current.Progress,
		Error:    current.Error,
	}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}
	if current.IsTerminal() {
		closeStream(conn)
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("event stream closed by client")
			return
		case <-sub.Done():
			return
		case ev := <-sub.C:
			if err := writeEvent(conn, ev); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logger.Debug("event write failed", slog.String("error", err.Error()))
				}
				return
			}
			if ev.Type == events.TypeStatus && isTerminal(ev.Status) {
				closeStream(conn)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and handles pongs. It closes closed
// when the connection drops.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev events.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

func isTerminal(status string) bool {
	switch job.Status(status) {
	case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
		return true
	}
	return false
}
