// Package events fans job lifecycle and progress updates out to listeners.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of an Event.
type Type string

const (
	// TypeStatus is published when a job changes status.
	TypeStatus Type = "status"
	// TypeProgress is published while segments are being encoded.
	TypeProgress Type = "progress"
)

// Event is a single job update.
type Event struct {
	JobID    string    `json:"job_id"`
	Type     Type      `json:"type"`
	Status   string    `json:"status,omitempty"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind
// before updates are dropped.
const subscriberBuffer = 64

// Subscriber receives events for one job, or for all jobs when JobID is empty.
type Subscriber struct {
	ID    string
	JobID string
	C     chan Event
	done  chan struct{}
}

// Done is closed when the subscriber is removed from the hub.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Hub fans out events to subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber for jobID. An empty jobID receives the
// events of every job.
func (h *Hub) Subscribe(jobID string) *Subscriber {
	s := &Subscriber{
		ID:    uuid.NewString(),
		JobID: jobID,
		C:     make(chan Event, subscriberBuffer),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and signals it to stop. It is safe to call twice.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.done)
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers ev to every matching subscriber. Slow subscribers have
// the event dropped rather than blocking the publisher.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		if s.JobID != "" && s.JobID != ev.JobID {
			continue
		}
		select {
		case s.C <- ev:
		default:
			// subscriber too slow, drop the update
		}
	}
}

// Relay reads percentages from progress and publishes them as progress
// events for jobID until progress is closed or ctx is done. onProgress, if
// set, is called with each value before it is published.
func (h *Hub) Relay(ctx context.Context, jobID string, progress <-chan float64, onProgress func(float64)) {
	for {
		select {
		case <-ctx.Done():
			return
		case pct, ok := <-progress:
			if !ok {
				return
			}
			if onProgress != nil {
				onProgress(pct)
			}
			h.Publish(Event{JobID: jobID, Type: TypeProgress, Progress: pct})
		}
	}
}
