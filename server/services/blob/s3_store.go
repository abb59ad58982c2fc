package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/accella/accella/common/logger"
)

type S3BlobStoreConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, for S3-compatible stores such as
	// MinIO. Empty means the real AWS S3.
	Endpoint string
	// ForcePathStyle addresses buckets as a path component instead of a
	// subdomain. Required by most S3-compatible stores.
	ForcePathStyle bool
	// DisableTLS connects to the endpoint over plain HTTP.
	DisableTLS bool
}

type S3BlobStore struct {
	s3       *s3.S3
	uploader *s3manager.Uploader
	config   S3BlobStoreConfig
	log      logger.Log
}

func NewS3BlobStore(config S3BlobStoreConfig, logFactory logger.LogFactory) (*S3BlobStore, error) {
	log := logFactory("AWSS3BlobStore")
	cfg := &aws.Config{}
	if config.Region != "" {
		log.Infof("Using region: %s", config.Region)
		cfg = cfg.WithRegion(config.Region)
	} else {
		log.Info("Using default region")
	}
	if config.Endpoint != "" {
		log.Infof("Using custom endpoint: %s", config.Endpoint)
		cfg = cfg.WithEndpoint(config.Endpoint)
	}
	if config.ForcePathStyle {
		cfg = cfg.WithS3ForcePathStyle(true)
	}
	if config.DisableTLS {
		cfg = cfg.WithDisableSSL(true)
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		log.Infof("Using static credentials: %s", config.AccessKeyID)
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	} else {
		log.Infof("Using default credentials")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return &S3BlobStore{
		s3:       s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		config:   config,
		log:      log,
	}, nil
}

// EnsureBucket creates the bucket if it does not already exist. Losing a
// creation race with another process counts as success.
func (s *S3BlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.s3.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || (aerr.Code() != "NotFound" && aerr.Code() != s3.ErrCodeNoSuchBucket) {
		return fmt.Errorf("error checking bucket %s: %w", bucket, err)
	}
	_, err = s.s3.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok &&
			(aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou || aerr.Code() == s3.ErrCodeBucketAlreadyExists) {
			return nil
		}
		return fmt.Errorf("error creating bucket %s: %w", bucket, err)
	}
	s.log.WithField("bucket", bucket).Infof("Created bucket")
	return nil
}

// Put writes all data in the source reader to the object identified by bucket
// and key. The caller is responsible for closing the reader.
func (s *S3BlobStore) Put(ctx context.Context, bucket string, key string, source io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3manager.UploadInput{
		Body:        source,
		Bucket:      aws.String(bucket),
		ContentType: aws.String(contentType),
		Key:         aws.String(key),
	}
	// NOTE For future selves: This will use multipart uploads if it needs to. If the upload fails it
	// will attempt to clean up the parts. This cleanup can fail for a variety of reasons, so we may
	// find we accumulate some dead parts over time and will need to have a background process remove them.
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error putting object %s: %s", key, err)
	}
	s.log.WithField("bucket", bucket).
		WithField("key", key).
		WithField("upload_id", out.UploadID).
		Infof("Uploaded object")
	return nil
}

// Get returns a reader positioned at the beginning of the object identified
// by bucket and key. The caller is responsible for closing the reader.
func (s *S3BlobStore) Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	output, err := s.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting object %s: %s", key, err)
	}
	s.log.WithField("bucket", bucket).
		WithField("key", key).
		Infof("Read object")
	return output.Body, nil
}

// Presign returns a URL that grants time-limited read access to the object
// without further credentials, suitable for handing to a worker or a browser.
func (s *S3BlobStore) Presign(ctx context.Context, bucket string, key string, ttl time.Duration) (string, error) {
	req, _ := s.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("error presigning object %s: %s", key, err)
	}
	return url, nil
}
