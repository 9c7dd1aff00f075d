// Package provider defines the object-store surface the playlist needs.
//
// Providers are bound to a single bucket at construction time and expose
// paginated listing plus single-object metadata. Authentication uses SDK
// default credential chains - providers should not implement custom auth
// logic.
package provider

import (
	"context"
	"time"
)

// Provider abstracts bucket listing operations.
//
// Implementations should:
//   - Support pagination via continuation tokens
//   - Report failures as *ProviderError wrapping one of the sentinel errors
//     when the cause is recognizable
type Provider interface {
	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// It may be empty even when IsTruncated is set; callers must not loop
	// on an empty token.
	ContinuationToken string

	IsTruncated bool
}

// ObjectSummary contains the metadata returned from List operations.
type ObjectSummary struct {
	Key  string
	Size int64

	// ETag and LastModified are volatile and only informational.
	ETag         string
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
type ObjectMeta struct {
	ObjectSummary

	ContentType string
	Metadata    map[string]string
}

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local directory used in place of a bucket.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
