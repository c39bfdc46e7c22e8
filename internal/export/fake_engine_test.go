package export

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/maauso/silencecut/internal/media"
)

// fakeEngine writes a small file for each Trim and reports elapsed time at
// the configured fractions of the interval.
type fakeEngine struct {
	mu        sync.Mutex
	steps     []float64
	failAt    map[int]error
	emptyAt   map[int]bool
	delay     time.Duration
	trims     []media.TrimRequest
	concatErr error
	manifests []string
	active    int
	maxActive int
}

func (f *fakeEngine) Trim(ctx context.Context, req media.TrimRequest, onElapsed media.ElapsedFunc) error {
	f.mu.Lock()
	index := len(f.trims)
	f.trims = append(f.trims, req)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	err := f.failAt[index]
	empty := f.emptyAt[index]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	length := req.End - req.Start
	for _, s := range f.steps {
		if onElapsed != nil {
			onElapsed(time.Duration(float64(length) * s))
		}
	}

	content := []byte("segment")
	if empty {
		content = nil
	}
	return os.WriteFile(req.Output, content, 0600)
}

func (f *fakeEngine) Concat(_ context.Context, manifestPath, output string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.manifests = append(f.manifests, string(data))
	f.mu.Unlock()
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(output, []byte("joined"), 0600)
}

func (f *fakeEngine) Duration(context.Context, string) (time.Duration, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeEngine) Encoders(context.Context) ([]string, error) {
	return []string{"libx264"}, nil
}

var _ media.Engine = (*fakeEngine)(nil)
