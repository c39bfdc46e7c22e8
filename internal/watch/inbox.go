// Package watch turns video files dropped into a folder into cut jobs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long a file must go without writes before it
// is submitted.
const DefaultSettleDelay = 2 * time.Second

// VideoExtensions are the file types the inbox picks up.
var VideoExtensions = []string{".mp4", ".mov", ".mkv", ".avi"}

// SubmitFunc receives the path of a settled video file.
type SubmitFunc func(ctx context.Context, path string) error

// Inbox watches a directory and submits new video files once they stop
// changing. Files whose name ends in the output suffix, and sources that
// already have an output next to them, are skipped.
type Inbox struct {
	dir          string
	outputSuffix string
	settle       time.Duration
	submit       SubmitFunc
	logger       *slog.Logger

	mu        sync.Mutex
	pending   map[string]*time.Timer
	submitted map[string]bool
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Inbox) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// NewInbox creates an Inbox for dir. outputSuffix is the name suffix (before
// the extension) that marks produced files, e.g. "_cut".
func NewInbox(dir, outputSuffix string, submit SubmitFunc, opts ...Option) *Inbox {
	in := &Inbox{
		dir:          dir,
		outputSuffix: outputSuffix,
		settle:       DefaultSettleDelay,
		submit:       submit,
		logger:       slog.Default(),
		pending:      make(map[string]*time.Timer),
		submitted:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// IsCandidate reports whether name is a source video the inbox should cut.
func (in *Inbox) IsCandidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	if !slices.Contains(VideoExtensions, ext) {
		return false
	}
	return !strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), in.outputSuffix)
}

// outputOf returns the produced file name for source.
func (in *Inbox) outputOf(source string) string {
	base := filepath.Base(source)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(source), name+in.outputSuffix+".mp4")
}

// Scan submits every existing candidate in the directory that has no
// output yet.
func (in *Inbox) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("read inbox %s: %w", in.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !in.IsCandidate(e.Name()) {
			continue
		}
		path := filepath.Join(in.dir, e.Name())
		if _, err := os.Stat(in.outputOf(path)); err == nil {
			in.markSubmitted(path)
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		in.fire(ctx, path)
	}
	return nil
}

// Run scans the directory once and then watches it until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch %s: %w", in.dir, err)
	}
	in.logger.Info("watching inbox", slog.String("dir", in.dir))

	if err := in.Scan(ctx); err != nil {
		return err
	}

	defer in.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			in.handle(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watcher error", slog.String("error", err.Error()))
		}
	}
}

func (in *Inbox) handle(ctx context.Context, event fsnotify.Event) {
	if !in.IsCandidate(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		in.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		in.cancel(event.Name)
	}
}

// schedule (re)starts the settle timer for path.
func (in *Inbox) schedule(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.submitted[path] {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.settle, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.fire(ctx, path)
	})
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) stopPending() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) markSubmitted(path string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.submitted[path] {
		return false
	}
	in.submitted[path] = true
	return true
}

func (in *Inbox) fire(ctx context.Context, path string) {
	if ctx.Err() != nil || !in.markSubmitted(path) {
		return
	}
	if err := in.submit(ctx, path); err != nil {
		in.logger.Error("inbox submit failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		in.mu.Lock()
		delete(in.submitted, path)
		in.mu.Unlock()
		return
	}
	in.logger.Info("inbox file submitted", slog.String("path", path))
}
