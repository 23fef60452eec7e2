package transcripts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSReader reads transcript blobs from one Cloud Storage bucket.
type GCSReader struct {
	client *storage.Client
	bucket string
}

// NewGCSReader builds a client from credentialsFile, or from application
// default credentials when it is empty.
func NewGCSReader(ctx context.Context, bucket, credentialsFile string) (*GCSReader, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSReader{client: client, bucket: bucket}, nil
}

func (r *GCSReader) ReadBlob(ctx context.Context, path string) ([]byte, error) {
	rc, err := r.client.Bucket(r.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("gcs read %s: %w", path, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxDocumentBytes))
}

func (r *GCSReader) Close() error { return r.client.Close() }
