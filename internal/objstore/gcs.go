// Package objstore persists blank templates, generated documents and
// signature images in a Google Cloud Storage bucket.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// StorageError wraps a transient I/O failure. Callers may retry; nothing in
// this core treats a storage failure as fatal.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("object storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrNotFound reports a missing object; it is not retryable.
var ErrNotFound = errors.New("object not found")

// Store is a bucket-scoped client.
type Store struct {
	client *storage.Client
	bucket string
	log    *logrus.Logger
}

// New connects to the configured bucket. Credentials come from application
// default credentials, or explicit JSON via GCS_CREDENTIALS_JSON for local
// runs.
func New(ctx context.Context, bucket string, log *logrus.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, log: log}, nil
}

// Upload writes an object under key.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return &StorageError{Op: "upload", Key: key, Err: err}
	}
	if err := wc.Close(); err != nil {
		return &StorageError{Op: "upload", Key: key, Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"key":  key,
		"size": len(data),
	}).Debug("object uploaded")
	return nil
}

// Download reads an object's full contents.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, &StorageError{Op: "download", Key: key, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StorageError{Op: "download", Key: key, Err: err}
	}
	return data, nil
}

// Delete removes an object; deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Exists checks object presence without reading it.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "stat", Key: key, Err: err}
	}
	return true, nil
}

// DocumentKey builds the canonical key for a generated deal document.
func DocumentKey(userID, dealID, documentID, filename string) string {
	return fmt.Sprintf("standalone/%s/deals/%s/documents/%s_%s", userID, dealID, documentID, filename)
}

// SignatureKey builds the key for a persisted signature image.
func SignatureKey(sessionToken, signatureID string) string {
	return fmt.Sprintf("signatures/%s/%s.png", sessionToken, signatureID)
}

// SignatureDisplayKey builds the key for the ephemeral display copy.
func SignatureDisplayKey(sessionToken, signatureID string) string {
	return fmt.Sprintf("signatures/%s/%s_display.png", sessionToken, signatureID)
}
