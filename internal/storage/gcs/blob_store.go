// Package gcs stores snapshots in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const (
	defaultContentType  = "application/json"
	defaultCacheControl = "public, max-age=86400"
)

// ErrObjectExists is returned when a snapshot object is already present. Snapshots are write-once.
var ErrObjectExists = errors.New("object already exists")

// Config names the bucket and the headers snapshot objects are written with.
type Config struct {
	Bucket string
	// CacheControl defaults to a one day public cache, matching the pipeline TTL.
	CacheControl string
}

// BlobStore writes snapshot objects to a bucket without ever replacing one.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = defaultCacheControl
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, cacheControl: cfg.CacheControl}, nil
}

// PutObject uploads r as a new object at path and returns its gs:// URI.
// An empty contentType is stored as JSON. Writing over an existing object fails with ErrObjectExists.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	obj := s.client.Bucket(s.bucket).Object(path).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = s.cacheControl
	// snapshots are small; upload in a single request
	writer.ChunkSize = 0

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("copy snapshot %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("gs://%s/%s: %w", s.bucket, path, ErrObjectExists)
		}
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
