package source

import (
	"fmt"
	"os"

	"gocloud.dev/blob/fileblob"
)

// NewLocalSource reads report files from a directory tree on the local
// filesystem.
func NewLocalSource(basePath string, opts Options) (*BlobSource, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid local path %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path %s is not a directory", basePath)
	}

	bucket, err := fileblob.OpenBucket(basePath, nil)
	if err != nil {
		return nil, fmt.Errorf("open local dir %s: %w", basePath, err)
	}

	src, err := NewBlobSource(bucket, "", opts, "local")
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}
