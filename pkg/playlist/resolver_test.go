package playlist

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambot/s3playlist/pkg/listing"
	"github.com/streambot/s3playlist/pkg/localcache"
	"github.com/streambot/s3playlist/pkg/playable"
	"github.com/streambot/s3playlist/pkg/provider/file"
)

type fixture struct {
	bucketDir  string
	storageDir string
	cache      *listing.Cache
	manager    *localcache.Manager
	resolver   *Resolver
}

func newFixture(t *testing.T, objects map[string]string) *fixture {
	t.Helper()

	bucketDir := t.TempDir()
	for key, content := range objects {
		path := filepath.Join(bucketDir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	p, err := file.New(file.Config{BaseDir: bucketDir})
	require.NoError(t, err)

	storageDir := t.TempDir()
	cachePath := filepath.Join(storageDir, listing.DefaultCacheFileName)
	cache := listing.NewCache(cachePath, listing.NewLister(p, listing.ListerConfig{Bucket: "music"}, nil), nil)

	selector, err := playable.New(playable.Config{}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	manager, err := localcache.New(storageDir, p, localcache.WithReserved(cachePath))
	require.NoError(t, err)

	return &fixture{
		bucketDir:  bucketDir,
		storageDir: storageDir,
		cache:      cache,
		manager:    manager,
		resolver:   NewResolver(Config{Bucket: "music"}, cache, selector, manager, nil),
	}
}

func TestNext_EndToEnd(t *testing.T) {
	f := newFixture(t, map[string]string{
		"albums/one/01 Intro.mp3": "audio",
		"albums/one/cover.jpg":    "image",
		"notes.txt":               "text",
	})

	track, err := f.resolver.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "albums/one/01 Intro.mp3", track.Key)
	assert.Equal(t, int64(5), track.Size)
	assert.Equal(t, filepath.Join(f.storageDir, "albums-one-01-Intro.mp3"), track.Path)

	data, err := os.ReadFile(track.Path)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	state, l, err := f.cache.Load()
	require.NoError(t, err)
	assert.Equal(t, listing.StatePresent, state)
	assert.Len(t, l, 3)
}

func TestNext_UsesCachedListing(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mp3": "audio"})

	_, err := f.resolver.Next(context.Background())
	require.NoError(t, err)

	// New objects are invisible until the cache is invalidated.
	require.NoError(t, os.WriteFile(filepath.Join(f.bucketDir, "b.mp3"), []byte("new"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(f.bucketDir, "a.mp3")))

	track, err := f.resolver.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a.mp3", track.Key)

	require.NoError(t, f.cache.Invalidate())
	track, err = f.resolver.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b.mp3", track.Key)
}

func TestNext_NoPlayableFiles(t *testing.T) {
	f := newFixture(t, map[string]string{"notes.txt": "text", "c.FLAC": "upper"})

	_, err := f.resolver.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, playable.ErrNoPlayableFiles)
	assert.Contains(t, err.Error(), "music")

	entries, err := os.ReadDir(f.storageDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, listing.DefaultCacheFileName, e.Name())
	}
}

func TestNext_PurgesBeforeListing(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mp3": "audio"})

	stale := filepath.Join(f.storageDir, "old.mp3")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	_, err := f.resolver.Next(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)

	// The listing cache is never purged, however old.
	cachePath := f.cache.Path()
	require.NoError(t, os.Chtimes(cachePath, old, old))
	_, err = f.resolver.Next(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, cachePath)
}

// recorder captures the order of component calls.
type recorder struct {
	calls   []string
	listErr error
	getErr  error
}

func (r *recorder) Get(ctx context.Context, prefix string) (listing.Listing, error) {
	r.calls = append(r.calls, "list:"+prefix)
	if r.listErr != nil {
		return nil, r.listErr
	}
	return listing.Listing{{Key: "a.mp3", Size: 1}}, nil
}

func (r *recorder) SelectRandom(l listing.Listing) (listing.ObjectDescriptor, error) {
	r.calls = append(r.calls, "select")
	return l[0], nil
}

func (r *recorder) Purge(retention time.Duration) localcache.PurgeReport {
	r.calls = append(r.calls, "purge:"+retention.String())
	return localcache.PurgeReport{}
}

func (r *recorder) Resolve(ctx context.Context, d listing.ObjectDescriptor) (string, error) {
	r.calls = append(r.calls, "resolve:"+d.Key)
	if r.getErr != nil {
		return "", r.getErr
	}
	return "/tmp/" + d.Key, nil
}

func TestNext_CallOrder(t *testing.T) {
	rec := &recorder{}
	r := NewResolver(Config{Bucket: "music", Prefix: "albums/", Retention: time.Hour}, rec, rec, rec, nil)

	track, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Track{Key: "a.mp3", Size: 1, Path: "/tmp/a.mp3"}, track)
	assert.Equal(t, []string{"purge:1h0m0s", "list:albums/", "select", "resolve:a.mp3"}, rec.calls)
}

func TestNext_PropagatesErrors(t *testing.T) {
	listErr := &listing.RemoteListError{Bucket: "music", Err: errors.New("access denied")}
	rec := &recorder{listErr: listErr}
	_, err := NewResolver(Config{Bucket: "music"}, rec, rec, rec, nil).Next(context.Background())
	var rle *listing.RemoteListError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, []string{"purge:0s", "list:"}, rec.calls)

	dlErr := &localcache.DownloadError{Key: "a.mp3", Err: errors.New("reset")}
	rec = &recorder{getErr: dlErr}
	_, err = NewResolver(Config{Bucket: "music"}, rec, rec, rec, nil).Next(context.Background())
	var de *localcache.DownloadError
	require.ErrorAs(t, err, &de)
}
