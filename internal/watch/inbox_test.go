package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) submit(_ context.Context, path string) error {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	err := r.err
	r.mu.Unlock()
	r.ch <- path
	return err
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submission")
		return ""
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case p := <-r.ch:
		t.Fatalf("unexpected submission %s", p)
	case <-time.After(wait):
	}
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("video"), 0600))
	return path
}

func TestInbox_IsCandidate(t *testing.T) {
	in := NewInbox(t.TempDir(), "_cut", nil)

	tests := []struct {
		name string
		want bool
	}{
		{"talk.mp4", true},
		{"talk.MOV", true},
		{"lecture.mkv", true},
		{"old.avi", true},
		{"talk_cut.mp4", false},
		{"notes.txt", false},
		{".talk.mp4", false},
		{"talk.mp4.part", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, in.IsCandidate(tt.name), tt.name)
	}
}

func TestInbox_ScanSkipsProcessed(t *testing.T) {
	dir := t.TempDir()
	fresh := touch(t, dir, "fresh.mp4")
	touch(t, dir, "done.mov")
	touch(t, dir, "done_cut.mp4")
	touch(t, dir, "readme.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.mp4"), 0750))

	rec := newRecorder()
	in := NewInbox(dir, "_cut", rec.submit)

	require.NoError(t, in.Scan(context.Background()))
	assert.Equal(t, fresh, rec.next(t))
	rec.none(t, 50*time.Millisecond)

	// a second scan does not resubmit
	require.NoError(t, in.Scan(context.Background()))
	rec.none(t, 50*time.Millisecond)
}

func TestInbox_ScanMissingDir(t *testing.T) {
	in := NewInbox(filepath.Join(t.TempDir(), "missing"), "_cut", newRecorder().submit)
	assert.Error(t, in.Scan(context.Background()))
}

func TestInbox_SubmitErrorAllowsRetry(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "talk.mp4")
	rec := newRecorder()
	rec.err = errors.New("queue full")
	in := NewInbox(dir, "_cut", rec.submit)

	require.NoError(t, in.Scan(context.Background()))
	rec.next(t)

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	require.NoError(t, in.Scan(context.Background()))
	rec.next(t)
}

func TestInbox_RunSubmitsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	in := NewInbox(dir, "_cut", rec.submit, WithSettleDelay(100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	path := touch(t, dir, "new.mp4")
	touch(t, dir, "new_cut.mp4")
	touch(t, dir, "notes.txt")

	assert.Equal(t, path, rec.next(t))
	rec.none(t, 300*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestInbox_RunRemovedBeforeSettle(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	in := NewInbox(dir, "_cut", rec.submit, WithSettleDelay(300*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = in.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	path := touch(t, dir, "temp.mp4")
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	rec.none(t, 600*time.Millisecond)
}

func TestInbox_RunMissingDir(t *testing.T) {
	in := NewInbox(filepath.Join(t.TempDir(), "missing"), "_cut", newRecorder().submit)
	assert.Error(t, in.Run(context.Background()))
}
