// Package store defines the object-store contract the synchronizer runs
// against, plus the S3 and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Object is the normalized metadata for one stored object. ETag is an
// opaque content signature supplied by the store; it is only comparable
// between objects served by the same store handle.
type Object struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// Page is one page of a listing. A non-empty NextToken means more pages
// follow.
type Page struct {
	Objects   []Object
	NextToken string
}

// ObjectStore is the minimal capability surface the synchronizer needs.
// ServerSideCopy is only usable between buckets addressable by the same
// handle; cross-handle transfers go through OpenRead + Upload.
type ObjectStore interface {
	ListPage(ctx context.Context, bucket, prefix, token string) (*Page, error)
	ServerSideCopy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) error
}

var ErrNotFound = errors.New("object not found")

// AccessError is a listing or transfer call rejected by the store
// (auth, network, missing bucket).
type AccessError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *AccessError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// IsAccessError reports whether err is (or wraps) an AccessError.
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}
