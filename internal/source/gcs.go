package source

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSSource reads report files from Google Cloud Storage.
// Uses Application Default Credentials (ADC) for authentication.
func NewGCSSource(ctx context.Context, bucketName, prefix string, opts Options) (*BlobSource, error) {
	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	src, err := NewBlobSource(bucket, prefix, opts, "gcs")
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}
