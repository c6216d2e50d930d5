// Package export writes crawl results as JSON snapshots and announces them.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/movie"
)

const contentType = "application/json"

// BlobStore persists snapshot documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces written snapshots.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Snapshot describes one written export. It is also the published notification.
type Snapshot struct {
	ID          string    `json:"snapshot_id"`
	URI         string    `json:"uri"`
	Count       int       `json:"count"`
	GeneratedAt time.Time `json:"generated_at"`
	MessageID   string    `json:"-"`
}

type document struct {
	ID          string                 `json:"snapshot_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Count       int                    `json:"count"`
	Movies      []movie.EnrichedRecord `json:"movies"`
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithIDs overrides snapshot id generation.
func WithIDs(next func() (uuid.UUID, error)) Option {
	return func(e *Exporter) { e.newID = next }
}

// Exporter writes snapshots to a BlobStore and optionally publishes them.
type Exporter struct {
	store     BlobStore
	publisher Publisher
	prefix    string
	now       func() time.Time
	newID     func() (uuid.UUID, error)
	logger    *zap.Logger
}

// New builds an Exporter. publisher may be nil.
func New(store BlobStore, publisher Publisher, prefix string, logger *zap.Logger, opts ...Option) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("export: blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{
		store:     store,
		publisher: publisher,
		prefix:    prefix,
		now:       time.Now,
		newID:     uuid.NewV7,
		logger:    logger.Named("export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Export writes records to <prefix>/<YYYY-MM-DD>/<id>.json and publishes the resulting Snapshot.
// A publish failure is returned along with the written Snapshot.
func (e *Exporter) Export(ctx context.Context, records []movie.EnrichedRecord) (Snapshot, error) {
	id, err := e.newID()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	if records == nil {
		records = []movie.EnrichedRecord{}
	}
	generated := e.now().UTC()
	snap := Snapshot{ID: id.String(), Count: len(records), GeneratedAt: generated}

	body, err := json.MarshalIndent(document{
		ID:          snap.ID,
		GeneratedAt: generated,
		Count:       snap.Count,
		Movies:      records,
	}, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}

	objectPath := path.Join(e.prefix, generated.Format(time.DateOnly), snap.ID+".json")
	snap.URI, err = e.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}
	e.logger.Info("snapshot written", zap.String("uri", snap.URI), zap.Int("count", snap.Count))

	if e.publisher == nil {
		return snap, nil
	}
	snap.MessageID, err = e.publisher.Publish(ctx, snap)
	if err != nil {
		return snap, fmt.Errorf("publish snapshot: %w", err)
	}
	e.logger.Info("snapshot published", zap.String("snapshot_id", snap.ID), zap.String("message_id", snap.MessageID))
	return snap, nil
}
