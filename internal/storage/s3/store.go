// Package s3 stores artifacts on Amazon S3 through the AWS SDK v2 upload manager.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lakeshift/lakeshift/internal/awsutil"
	"github.com/lakeshift/lakeshift/internal/storage"
)

type Config struct {
	Credentials awsutil.Credentials
	Bucket      string
	Prefix      string
	// Endpoint overrides the regional S3 endpoint; path-style addressing is
	// used whenever it is set.
	Endpoint string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Store struct {
	uploader uploader
	bucket   string
	prefix   string
}

var _ storage.ObjectStore = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	options := s3.Options{
		Region:      cfg.Credentials.Region,
		Credentials: cfg.Credentials.Provider(),
		Retryer:     aws.NopRetryer{},
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		options.BaseEndpoint = aws.String(endpoint)
		options.UsePathStyle = true
	}
	client := s3.New(options)
	return NewWithUploader(cfg.Bucket, cfg.Prefix, manager.NewUploader(client))
}

func NewWithUploader(bucket, prefix string, u uploader) (*Store, error) {
	if u == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Store{uploader: u, bucket: strings.TrimSpace(bucket), prefix: storage.CleanPrefix(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	normalized, err := storage.NormalizeKey(s.prefix, key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(normalized),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put object %q: %w", normalized, awsutil.DescribeError(err))
	}
	info := storage.ObjectInfo{Bucket: s.bucket, Key: normalized, Size: size}
	if out != nil && out.ETag != nil {
		info.ETag = strings.Trim(*out.ETag, `"`)
	}
	return info, nil
}
