package store

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
)

const gcsTimeout = 30 * time.Second

// GCSStore keeps documents as JSON objects in a Cloud Storage bucket, under
// an optional prefix so several addresses can share one bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	mu     sync.RWMutex
}

// NewGCS creates a GCSStore writing to bucket. prefix may be empty.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Get retrieves a value by key. A missing object is ErrNotFound; an outage
// or permission problem is returned as is, so callers do not mistake it for
// an empty document.
func (s *GCSStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), gcsTimeout)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(s.objectName(key))
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening gs://%s/%s", s.bucket, s.objectName(key))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "reading gs://%s/%s", s.bucket, s.objectName(key))
	}
	return data, nil
}

// Set stores a value with the given key.
func (s *GCSStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), gcsTimeout)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(s.objectName(key))
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(value); err != nil {
		writer.Close()
		return errors.Wrapf(err, "writing gs://%s/%s", s.bucket, s.objectName(key))
	}
	return errors.Wrapf(writer.Close(), "writing gs://%s/%s", s.bucket, s.objectName(key))
}

// SetJSON marshals and stores a value as JSON.
func (s *GCSStore) SetJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, data)
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) objectName(key string) string {
	if s.prefix == "" {
		return key + ".json"
	}
	return s.prefix + "/" + key + ".json"
}
