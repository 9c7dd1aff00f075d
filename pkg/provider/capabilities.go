package provider

import (
	"context"
	"io"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// ObjectGetter can download objects as a stream.
//
// The local cache uses it to materialize a selected track.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// BucketChecker can verify that the configured bucket exists and is
// reachable with the current credentials.
type BucketChecker interface {
	HeadBucket(ctx context.Context) error
}
