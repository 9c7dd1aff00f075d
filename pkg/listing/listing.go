// Package listing enumerates a bucket into a flat, normalized Listing and
// keeps a copy of it on local disk.
package listing

import (
	"fmt"

	"github.com/streambot/s3playlist/pkg/provider"
)

// ObjectDescriptor is the normalized form of a listed object. Volatile
// metadata (ETag, LastModified, storage class) is dropped on ingest.
type ObjectDescriptor struct {
	Key  string `json:"Key"`
	Size int64  `json:"Size"`
}

// Listing is the full enumeration of a bucket, optionally scoped to a prefix.
type Listing []ObjectDescriptor

// Keys returns the keys of the listing in order.
func (l Listing) Keys() []string {
	keys := make([]string, len(l))
	for i, d := range l {
		keys[i] = d.Key
	}
	return keys
}

// Find returns the descriptor with the given key.
func (l Listing) Find(key string) (ObjectDescriptor, bool) {
	for _, d := range l {
		if d.Key == key {
			return d, true
		}
	}
	return ObjectDescriptor{}, false
}

func normalize(summaries []provider.ObjectSummary) Listing {
	out := make(Listing, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, ObjectDescriptor{Key: s.Key, Size: s.Size})
	}
	return out
}

// RemoteListError reports that the bucket could not be enumerated.
type RemoteListError struct {
	Bucket string
	Prefix string
	Pages  int
	Err    error
}

func (e *RemoteListError) Error() string {
	target := e.Bucket
	if e.Prefix != "" {
		target += "/" + e.Prefix
	}
	return fmt.Sprintf("list %s (after %d pages): %v", target, e.Pages, e.Err)
}

func (e *RemoteListError) Unwrap() error {
	return e.Err
}

// CacheParseError reports an unreadable listing cache file. Cache.Get
// treats it as a miss.
type CacheParseError struct {
	Path string
	Err  error
}

func (e *CacheParseError) Error() string {
	return fmt.Sprintf("parse listing cache %s: %v", e.Path, e.Err)
}

func (e *CacheParseError) Unwrap() error {
	return e.Err
}
