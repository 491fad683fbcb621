// Package storage keeps submitted whistle artifacts, either in a MinIO bucket or
// in a local objects directory when no object store is configured.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/audiolibrelab/whistle/internal/config"
)

var ErrObjectNotFound = errors.New("object not found")

const ContentType = "audio/mp4"

// ArtifactStore uploads and reads back whistle objects by key
type ArtifactStore interface {
	Put(ctx context.Context, key, path string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// New returns the MinIO store when enabled, otherwise the local directory store
func New(ctx context.Context, cfg *config.Config) (ArtifactStore, error) {
	if cfg.Storage.Minio.Enabled {
		return NewMinioStore(ctx, cfg.Storage.Minio)
	}
	return NewLocalStore(cfg.ObjectsDir()), nil
}
