// Package localcache maps remote keys to files under a storage directory,
// downloads them on first use and sweeps out files past a retention window.
//
// The filesystem is the only record: a key is cached when a regular file
// exists at PathFor(key), and its age is the file's modification time.
package localcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/streambot/s3playlist/pkg/listing"
	"github.com/streambot/s3playlist/pkg/provider"
)

// DefaultRetention is how long a downloaded file is kept.
const DefaultRetention = 2 * time.Hour

// maxNameLen is NAME_MAX on the filesystems we target.
const maxNameLen = 255

// hashSuffixLen is the number of sha256 hex digits kept for long names.
const hashSuffixLen = 16

// downloadPattern names in-flight downloads in the destination directory.
const downloadPattern = ".dl-*"

// unsafeRun matches path separators and whitespace runs in a key.
var unsafeRun = regexp.MustCompile(`[\s/\\]+`)

// Slugify turns a key into a single path element by collapsing every run of
// separators and whitespace into "-". Keys that differ only in those runs
// map to the same name.
//
// A slug longer than maxNameLen bytes is truncated and suffixed with a hash
// of the full key, keeping its extension, so distinct long keys still get
// distinct names.
func Slugify(key string) string {
	slug := unsafeRun.ReplaceAllString(key, "-")
	if slug == "" || slug == "." || slug == ".." {
		// Never resolve to the storage root or its parent.
		slug = "_" + slug
	}
	if len(slug) <= maxNameLen {
		return slug
	}

	sum := sha256.Sum256([]byte(key))
	suffix := "-" + hex.EncodeToString(sum[:])[:hashSuffixLen]
	ext := filepath.Ext(slug)
	if len(ext) > hashSuffixLen {
		ext = ""
	}
	cut := maxNameLen - len(suffix) - len(ext)
	for cut > 0 && !utf8.RuneStart(slug[cut]) {
		cut--
	}
	return slug[:cut] + suffix + ext
}

// Manager owns the storage directory tree.
type Manager struct {
	root     string
	getter   provider.ObjectGetter
	reserved map[string]struct{}
	now      func() time.Time
	log      *zap.Logger
	group    singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithReserved excludes paths owned by other components (the listing cache
// file) from purging.
func WithReserved(paths ...string) Option {
	return func(m *Manager) {
		for _, p := range paths {
			m.reserved[filepath.Clean(p)] = struct{}{}
		}
	}
}

// WithClock overrides time.Now for purge decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a Manager rooted at dir, creating the directory if needed.
func New(dir string, getter provider.ObjectGetter, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	m := &Manager{
		root:     filepath.Clean(dir),
		getter:   getter,
		reserved: map[string]struct{}{},
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Root returns the storage directory.
func (m *Manager) Root() string {
	return m.root
}

// PathFor returns the deterministic local path for key.
func (m *Manager) PathFor(key string) string {
	return filepath.Join(m.root, Slugify(key))
}

// Resolve returns the local path of d, downloading it first if no regular
// file is there yet. A cached file is returned without contacting the store
// or checking its content.
//
// Downloads go to a temp file in the destination directory and are renamed
// into place, so a partially written file is never visible at the final
// path. Concurrent calls for the same key inside one process share a single
// download.
func (m *Manager) Resolve(ctx context.Context, d listing.ObjectDescriptor) (string, error) {
	path := m.PathFor(d.Key)
	if isRegular(path) {
		m.log.Debug("Local cache hit", zap.String("key", d.Key), zap.String("path", path))
		return path, nil
	}

	_, err, _ := m.group.Do(path, func() (any, error) {
		if isRegular(path) {
			return nil, nil
		}
		return nil, m.download(ctx, d.Key, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, key, path string) error {
	if m.getter == nil {
		return &DownloadError{Key: key, Path: path, Err: fmt.Errorf("provider cannot download objects")}
	}

	m.log.Info("Fetching object", zap.String("key", key), zap.String("path", path))
	start := time.Now()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &DownloadError{Key: key, Path: path, Err: err}
	}

	body, _, err := m.getter.GetObject(ctx, key)
	if err != nil {
		return &DownloadError{Key: key, Path: path, Err: err}
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(dir, downloadPattern)
	if err != nil {
		return &DownloadError{Key: key, Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return &DownloadError{Key: key, Path: path, Err: err}
	}
	// CreateTemp creates 0600 files; downloads must be readable by other users.
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return &DownloadError{Key: key, Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &DownloadError{Key: key, Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &DownloadError{Key: key, Path: path, Err: err}
	}

	m.log.Debug("Object downloaded",
		zap.String("key", key),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func isRegular(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// DownloadError reports a failed materialization. No file is left at Path.
type DownloadError struct {
	Key  string
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s to %s: %v", e.Key, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
