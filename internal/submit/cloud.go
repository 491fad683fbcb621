package submit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/whistle/internal/store"
)

// ObjectStore receives the artifact file. storage.ArtifactStore satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, key, path string) error
}

// RecordWriter indexes a stored submission. *store.RecordStore satisfies it.
type RecordWriter interface {
	Insert(ctx context.Context, rec store.Record) error
}

// CloudSubmitter uploads the artifact and then records the submission
type CloudSubmitter struct {
	objects ObjectStore
	records RecordWriter
	newID   func() uuid.UUID
	now     func() time.Time
}

func NewCloudSubmitter(objects ObjectStore, records RecordWriter) *CloudSubmitter {
	return &CloudSubmitter{
		objects: objects,
		records: records,
		newID:   uuid.New,
		now:     time.Now,
	}
}

// ObjectKey is where a submission's audio lives in the object store
func ObjectKey(id uuid.UUID) string {
	return fmt.Sprintf("whistles/%s.m4a", id)
}

func (c *CloudSubmitter) Submit(ctx context.Context, req Request) error {
	id := c.newID()
	key := ObjectKey(id)

	if err := c.objects.Put(ctx, key, req.ArtifactPath()); err != nil {
		return fmt.Errorf("upload whistle: %w", err)
	}

	rec := store.Record{
		ID:        id.String(),
		Genre:     req.Genre(),
		Comments:  req.Comments(),
		ObjectKey: key,
		CreatedAt: c.now(),
	}
	if err := c.records.Insert(ctx, rec); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}

	slog.Debug("Submission stored", "id", rec.ID, "key", key)
	return nil
}
