package source

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// S3URL builds a gocloud.dev bucket URL for S3-compatible storage.
// endpoint can be empty for AWS S3, or a custom URL for MinIO, R2 or B2.
func S3URL(bucketName, endpoint, region string) string {
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		// custom endpoints rarely support virtual-host addressing
		params.Set("use_path_style", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}
	return bucketURL
}

// NewS3Source reads report files from S3-compatible storage.
func NewS3Source(ctx context.Context, bucketName, prefix, endpoint, region string, opts Options) (*BlobSource, error) {
	bucket, err := blob.OpenBucket(ctx, S3URL(bucketName, endpoint, region))
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	src, err := NewBlobSource(bucket, prefix, opts, "s3")
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}
