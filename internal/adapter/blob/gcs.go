package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/couchcryptid/raincast/internal/config"
)

// GCSStore is a Store backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore opens a client for the bucket named in creds. Without a key
// file or inline key it uses application default credentials.
func NewGCSStore(ctx context.Context, creds *config.Credentials) (*GCSStore, error) {
	var opts []option.ClientOption
	switch {
	case creds.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(creds.CredentialsFile))
	case creds.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.CredentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: creds.Bucket}, nil
}

// Upload streams r into object, replacing any existing object.
func (s *GCSStore) Upload(ctx context.Context, object string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", object, err)
	}
	return nil
}

// Download opens object for reading.
func (s *GCSStore) Download(ctx context.Context, object string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, object, ErrNotFound)
		}
		return nil, fmt.Errorf("gcs read %s: %w", object, err)
	}
	return r, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
