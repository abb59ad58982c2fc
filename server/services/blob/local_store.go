package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/util"
)

type LocalBlobStoreDirectory string

func (l LocalBlobStoreDirectory) String() string {
	return string(l)
}

func (f LocalBlobStoreDirectory) Set(value string) error {
	f = LocalBlobStoreDirectory(value)
	return nil
}

// LocalBlobStore keeps objects as files under a root directory, one
// subdirectory per bucket. It provides a very naive mapping from objects to
// files and is only expected to be used in development and tests; production
// deployments use the S3 implementation.
//
// All keys use forward slash separators to stay S3-compatible; they are
// escaped into a single file name component on the way to the filesystem.
type LocalBlobStore struct {
	path string
}

func NewLocalBlobStore(path LocalBlobStoreDirectory) *LocalBlobStore {
	return &LocalBlobStore{
		path: string(path),
	}
}

// EnsureBucket creates the bucket's directory if it does not already exist.
func (s *LocalBlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	err := validateBucketAndKey(bucket, "-")
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Join(s.path, bucket), 0700)
	if err != nil {
		return errors.Wrapf(err, "error making bucket directory %s", bucket)
	}
	return nil
}

// Put writes all data in the source reader to the object identified by bucket
// and key. The caller is responsible for closing the reader. The content type
// is not stored; the filesystem has nowhere to keep it.
func (s *LocalBlobStore) Put(ctx context.Context, bucket string, key string, source io.Reader, contentType string) error {
	err := validateBucketAndKey(bucket, key)
	if err != nil {
		return err
	}
	blobPath := s.makeBlobPath(bucket, key)
	err = os.MkdirAll(filepath.Dir(blobPath), 0700)
	if err != nil {
		return errors.Wrap(err, "error making blob directory")
	}
	blobFile, err := os.Create(blobPath)
	if err != nil {
		return errors.Wrapf(err, "Error opening blob %s for writing", blobPath)
	}
	defer blobFile.Close()
	_, err = io.Copy(blobFile, source)
	if err != nil {
		return errors.Wrapf(err, "Error writing data to blob %s", blobPath)
	}
	err = blobFile.Sync()
	if err != nil {
		return errors.Wrapf(err, "Error syncing blob %s", blobPath)
	}
	return nil
}

// Get returns a reader positioned at the beginning of the object identified
// by bucket and key. The caller is responsible for closing the reader.
func (s *LocalBlobStore) Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error) {
	err := validateBucketAndKey(bucket, key)
	if err != nil {
		return nil, err
	}
	blobPath := s.makeBlobPath(bucket, key)
	blobFile, err := os.Open(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound(fmt.Sprintf("object %s/%s not found", bucket, key)).Wrap(err)
		}
		return nil, errors.Wrapf(err, "Error opening blob %s for reading", blobPath)
	}
	return blobFile, nil
}

// Presign returns a file:// URL for the object. Local files need no
// credentials, so the ttl is ignored.
func (s *LocalBlobStore) Presign(ctx context.Context, bucket string, key string, ttl time.Duration) (string, error) {
	err := validateBucketAndKey(bucket, key)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(s.makeBlobPath(bucket, key))
	if err != nil {
		return "", errors.Wrap(err, "error resolving blob path")
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", gerror.NewErrNotFound(fmt.Sprintf("object %s/%s not found", bucket, key)).Wrap(err)
		}
		return "", errors.Wrapf(err, "Error stating blob %s", absPath)
	}
	fileURL := url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}
	return fileURL.String(), nil
}

// makeBlobPath makes a path to a blob on the local filesystem.
func (s *LocalBlobStore) makeBlobPath(bucket string, key string) string {
	return filepath.Join(s.path, bucket, util.EscapeFileName(key))
}

func validateBucketAndKey(bucket string, key string) error {
	if bucket == "" {
		return fmt.Errorf("error bucket must be set")
	}
	if strings.ContainsAny(bucket, "/\\") {
		return fmt.Errorf("error bucket names cannot contain path separators")
	}
	if key == "" {
		return fmt.Errorf("error object keys must be set")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("error object keys cannot begin with /")
	}
	return nil
}
