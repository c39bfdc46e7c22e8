// Package storage provides the scratch space used while cutting a video and
// optional S3 delivery of the finished output.
package storage

import (
	"context"
	"io"
)

// Storage defines scratch file handling and output publishing.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// MkdirRun creates a fresh directory for one export run. Segment files
	// of concurrent runs never share a directory.
	MkdirRun(ctx context.Context, prefix string) (dir string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// RemoveRun deletes a run directory and anything left inside it.
	RemoveRun(ctx context.Context, dir string) error

	// Publish uploads the file at localPath under key and returns its URL.
	// Returns ErrS3NotConfigured if no remote store is configured.
	Publish(ctx context.Context, key, localPath string) (url string, err error)
}
