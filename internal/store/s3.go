package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements ObjectStore on S3-compatible object storage.
// One handle covers every bucket reachable with its credentials and
// endpoint, so server-side copies work between any two of them.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
}

// S3Config contains S3Store configuration. Endpoint and PathStyle are
// for S3-compatible stores (MinIO etc.); empty Endpoint means AWS.
type S3Config struct {
	Region       string
	Endpoint     string
	PathStyle    bool
	AccessKey    string
	SecretKey    string
	SessionToken string // optional
}

// NewS3Store creates a new S3Store from config.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		func(opts *awsconfig.LoadOptions) error {
			if cfg.AccessKey != "" && cfg.SecretKey != "" {
				opts.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKey, cfg.SecretKey, cfg.SessionToken,
				)
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// ListPage fetches one page of objects under prefix. An empty token
// fetches the first page.
func (s *S3Store) ListPage(ctx context.Context, bucket, prefix, token string) (*Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	resp, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, &AccessError{Op: "list", Bucket: bucket, Err: err}
	}

	page := &Page{Objects: make([]Object, 0, len(resp.Contents))}
	for _, obj := range resp.Contents {
		page.Objects = append(page.Objects, Object{
			Key:          aws.ToString(obj.Key),
			ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if resp.IsTruncated != nil && *resp.IsTruncated {
		page.NextToken = aws.ToString(resp.NextContinuationToken)
	}
	return page, nil
}

// ServerSideCopy copies an object bucket-to-bucket without streaming the
// bytes through this process. The destination keeps the source's
// metadata (MetadataDirective COPY).
func (s *S3Store) ServerSideCopy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(dstBucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(srcBucket + "/" + srcKey),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		return &AccessError{Op: "copy", Bucket: dstBucket, Key: dstKey, Err: err}
	}
	return nil
}

// OpenRead opens the object body as a stream. The caller must close it.
func (s *S3Store) OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, &AccessError{Op: "get", Bucket: bucket, Key: key, Err: err}
	}
	return resp.Body, nil
}

// Upload writes body to bucket/key. The uploader switches to multipart
// automatically for large objects; size is passed through so single-part
// uploads carry an exact Content-Length.
func (s *S3Store) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return &AccessError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// isNotFound checks if an error is a "not found" error from S3.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

var _ ObjectStore = (*S3Store)(nil)
