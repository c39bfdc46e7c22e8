package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/silencecut/internal/media"
)

func writeSegments(t *testing.T, dir string, n int) []string {
	t.Helper()
	var paths []string
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, "seg_"+string(rune('a'+i))+".mp4")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0600))
		paths = append(paths, p)
	}
	return paths
}

func manifestsLeft(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "concat_*"))
	require.NoError(t, err)
	return matches
}

func TestConcatenate_Success(t *testing.T) {
	store := newTestStorage(t)
	engine := &fakeEngine{}
	segments := writeSegments(t, t.TempDir(), 3)
	output := filepath.Join(t.TempDir(), "talk_cut.mp4")

	n, err := NewConcatenator(engine, store, nil).Concatenate(context.Background(), output, segments)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, output)

	require.Len(t, engine.manifests, 1)
	lines := strings.Split(strings.TrimSpace(engine.manifests[0]), "\n")
	require.Len(t, lines, 3)
	for i, seg := range segments {
		assert.Equal(t, "file '"+filepath.ToSlash(seg)+"'", lines[i])
	}

	for _, seg := range segments {
		assert.NoFileExists(t, seg)
	}
	assert.Empty(t, manifestsLeft(t, store.TempDir()))
}

func TestConcatenate_FailureStillCleansUp(t *testing.T) {
	store := newTestStorage(t)
	engine := &fakeEngine{concatErr: &media.FFmpegError{Stderr: "Non-monotonous DTS", Err: errors.New("exit status 1")}}
	segments := writeSegments(t, t.TempDir(), 2)

	n, err := NewConcatenator(engine, store, nil).Concatenate(context.Background(), filepath.Join(t.TempDir(), "out.mp4"), segments)

	var concatErr *ConcatenationError
	require.ErrorAs(t, err, &concatErr)
	assert.Equal(t, 0, n)
	assert.Equal(t, "Non-monotonous DTS", concatErr.Diagnostic)

	for _, seg := range segments {
		assert.NoFileExists(t, seg)
	}
	assert.Empty(t, manifestsLeft(t, store.TempDir()))
}

func TestConcatenate_EmptyIsNoop(t *testing.T) {
	store := newTestStorage(t)
	engine := &fakeEngine{}

	n, err := NewConcatenator(engine, store, nil).Concatenate(context.Background(), filepath.Join(t.TempDir(), "out.mp4"), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, engine.manifests)
	assert.Empty(t, manifestsLeft(t, store.TempDir()))
}

func TestConcatenate_CancelledContextStillDeletesSegments(t *testing.T) {
	store := newTestStorage(t)
	segments := writeSegments(t, t.TempDir(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConcatenator(&fakeEngine{}, store, nil).Concatenate(ctx, filepath.Join(t.TempDir(), "out.mp4"), segments)

	assert.ErrorIs(t, err, context.Canceled)
	for _, seg := range segments {
		assert.NoFileExists(t, seg)
	}
}
