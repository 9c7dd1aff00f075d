package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheFileName is the listing cache file name under the storage root.
const DefaultCacheFileName = "playlist_cache.txt"

// State describes whether a listing is held in the cache file.
type State int

const (
	StateAbsent State = iota
	StatePresent
)

func (s State) String() string {
	if s == StatePresent {
		return "present"
	}
	return "absent"
}

// Source produces a fresh Listing on a cache miss.
type Source interface {
	ListObjects(ctx context.Context, prefix string) (Listing, error)
}

// Cache is a single-file listing cache with no expiry. A present listing is
// served as-is until Invalidate removes it.
//
// The file is not keyed by prefix: changing the configured prefix requires
// an explicit Invalidate.
type Cache struct {
	path   string
	source Source
	log    *zap.Logger
	group  singleflight.Group
}

// NewCache creates a cache backed by the file at path.
func NewCache(path string, source Source, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{path: path, source: source, log: log}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load reads the cache file. A missing file is StateAbsent with no error;
// an unreadable or malformed file is StateAbsent with a *CacheParseError.
func (c *Cache) Load() (State, Listing, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StateAbsent, nil, nil
		}
		return StateAbsent, nil, &CacheParseError{Path: c.path, Err: err}
	}

	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return StateAbsent, nil, &CacheParseError{Path: c.path, Err: fmt.Errorf("expected a JSON array")}
	}

	var l Listing
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return StateAbsent, nil, &CacheParseError{Path: c.path, Err: err}
	}
	return StatePresent, l, nil
}

// Get returns the cached listing if present. Otherwise it enumerates the
// source, stores the result and returns it. Concurrent misses in one process
// share a single enumeration.
//
// Staleness is never checked. A corrupt cache file is logged and treated as
// a miss. Failing to write the cache after a successful enumeration is
// logged; the fresh listing is still returned.
func (c *Cache) Get(ctx context.Context, prefix string) (Listing, error) {
	if l, ok := c.cached(); ok {
		return l, nil
	}

	v, err, _ := c.group.Do(c.path, func() (any, error) {
		// Another caller may have stored a listing while this one waited.
		if state, l, _ := c.Load(); state == StatePresent {
			return l, nil
		}
		l, err := c.source.ListObjects(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if err := c.Store(l); err != nil {
			c.log.Warn("Failed to write listing cache", zap.String("path", c.path), zap.Error(err))
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	l, _ := v.(Listing)
	return l, nil
}

func (c *Cache) cached() (Listing, bool) {
	state, l, err := c.Load()
	if err != nil {
		c.log.Warn("Ignoring unreadable listing cache", zap.String("path", c.path), zap.Error(err))
	}
	if state != StatePresent {
		return nil, false
	}
	c.log.Debug("Listing cache hit", zap.String("path", c.path), zap.Int("objects", len(l)))
	return l, true
}

// Store writes the listing as indented UTF-8 JSON. The file is replaced via
// rename so readers never see a partial listing.
func (c *Cache) Store(l Listing) error {
	if l == nil {
		l = Listing{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp listing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp listing: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("rename listing cache: %w", err)
	}
	return nil
}

// Invalidate removes the cache file. Removing an absent cache is not an error.
func (c *Cache) Invalidate() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate listing cache: %w", err)
	}
	c.log.Info("Listing cache invalidated", zap.String("path", c.path))
	return nil
}
