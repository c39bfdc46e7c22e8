package export

import (
	"context"
	"sync"
	"time"
)

// progressTracker folds per-job elapsed time into a global percentage.
// Finished jobs count with their nominal duration and running jobs with
// their reported elapsed time. Emitted values never decrease.
//
// Reports never block on the output channel. A value the consumer is not
// ready for is left pending and delivered by a pump goroutine, which only
// ever sends the latest value, so a slow consumer sees fewer updates.
type progressTracker struct {
	mu       sync.Mutex
	total    time.Duration
	finished time.Duration
	running  map[int]time.Duration
	last     float64
	pending  bool
	out      chan<- float64

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func newProgressTracker(ctx context.Context, total time.Duration, out chan<- float64) *progressTracker {
	t := &progressTracker{
		total:   total,
		running: make(map[int]time.Duration),
		last:    -1,
		out:     out,
	}
	if out != nil && total > 0 {
		t.notify = make(chan struct{}, 1)
		t.stop = make(chan struct{})
		t.done = make(chan struct{})
		go t.pump(ctx)
	}
	return t
}

// advance records elapsed output for a running job. elapsed is capped at
// the job's nominal duration.
func (t *progressTracker) advance(index int, elapsed, nominal time.Duration) {
	if elapsed > nominal {
		elapsed = nominal
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[index] = elapsed
	t.emitLocked()
}

// finish moves a job from running to finished.
func (t *progressTracker) finish(index int, nominal time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, index)
	t.finished += nominal
	t.emitLocked()
}

// percent returns the last computed value.
func (t *progressTracker) percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last < 0 {
		return 0
	}
	return t.last
}

// close delivers any pending value and stops the pump. It returns early
// if the pump's context is cancelled.
func (t *progressTracker) close() {
	if t.done == nil {
		return
	}
	close(t.stop)
	<-t.done
}

func (t *progressTracker) emitLocked() {
	if t.total <= 0 {
		return
	}
	done := t.finished
	for _, e := range t.running {
		done += e
	}

	pct := float64(done) / float64(t.total) * 100
	if pct > 100 {
		pct = 100
	}
	if pct <= t.last {
		return
	}
	t.last = pct

	if t.out == nil {
		return
	}
	if !t.pending {
		select {
		case t.out <- pct:
			return
		default:
		}
		t.pending = true
	}
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *progressTracker) pump(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-t.notify:
			t.flush(ctx)
		case <-t.stop:
			t.flush(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// flush sends the latest value until nothing is pending. The send happens
// without holding mu; direct sends are suppressed while pending is set.
func (t *progressTracker) flush(ctx context.Context) {
	for {
		t.mu.Lock()
		if !t.pending {
			t.mu.Unlock()
			return
		}
		v := t.last
		t.mu.Unlock()

		select {
		case t.out <- v:
		case <-ctx.Done():
			return
		}

		t.mu.Lock()
		if t.last == v {
			t.pending = false
		}
		t.mu.Unlock()
	}
}
