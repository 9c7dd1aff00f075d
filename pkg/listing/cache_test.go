package listing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSource struct {
	listing Listing
	err     error
	calls   int
}

func (s *countingSource) ListObjects(ctx context.Context, prefix string) (Listing, error) {
	s.calls++
	return s.listing, s.err
}

// gatedSource blocks every enumeration until gate is closed.
type gatedSource struct {
	listing Listing
	gate    chan struct{}
	calls   atomic.Int32
}

func (s *gatedSource) ListObjects(ctx context.Context, prefix string) (Listing, error) {
	s.calls.Add(1)
	<-s.gate
	return s.listing, nil
}

func TestCache_MissListsAndStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCacheFileName)
	src := &countingSource{listing: Listing{{Key: "a.mp3", Size: 3}, {Key: "b.ogg", Size: 4}}}
	c := NewCache(path, src, nil)

	got, err := c.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, src.listing, got)
	assert.Equal(t, 1, src.calls)

	state, stored, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, StatePresent, state)
	assert.ElementsMatch(t, src.listing.Keys(), stored.Keys())
}

func TestCache_HitSkipsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCacheFileName)
	src := &countingSource{listing: Listing{{Key: "a.mp3"}}}
	c := NewCache(path, src, nil)

	_, err := c.Get(context.Background(), "")
	require.NoError(t, err)

	// Even with a failing source, a present cache is served.
	src.err = errors.New("unreachable")
	got, err := c.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3"}, got.Keys())
	assert.Equal(t, 1, src.calls)
}

func TestCache_RoundTripPreservesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultCacheFileName)
	original := Listing{
		{Key: "albums/Ünïcödé <live> & more.flac", Size: 10},
		{Key: "b.mp3", Size: 20},
		{Key: "c d.ogg", Size: 30},
	}
	c := NewCache(path, &countingSource{}, nil)
	require.NoError(t, c.Store(original))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ünïcödé <live> & more", "non-ASCII and HTML characters are written verbatim")
	assert.Contains(t, string(data), "\n    {\n        \"Key\"")

	state, loaded, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, StatePresent, state)
	assert.ElementsMatch(t, original.Keys(), loaded.Keys())
}

func TestCache_CorruptFileFallsBackToSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCacheFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	src := &countingSource{listing: Listing{{Key: "fresh.mp3", Size: 1}}}
	c := NewCache(path, src, zap.New(core))

	got, err := c.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh.mp3"}, got.Keys())
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, logs.FilterMessage("Ignoring unreadable listing cache").Len())

	state, loaded, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, StatePresent, state)
	assert.Equal(t, []string{"fresh.mp3"}, loaded.Keys())
}

func TestCache_LoadStates(t *testing.T) {
	dir := t.TempDir()

	state, l, err := NewCache(filepath.Join(dir, "missing"), nil, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)
	assert.Nil(t, l)

	for name, content := range map[string]string{"empty": "", "null": "null", "object": `{"Key":"a"}`} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			state, _, err := NewCache(path, nil, nil).Load()
			assert.Equal(t, StateAbsent, state)
			var parseErr *CacheParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}

	t.Run("empty array is present", func(t *testing.T) {
		path := filepath.Join(dir, "empty-array")
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
		state, l, err := NewCache(path, nil, nil).Load()
		require.NoError(t, err)
		assert.Equal(t, StatePresent, state)
		assert.Empty(t, l)
	})
}

func TestCache_Invalidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCacheFileName)
	src := &countingSource{listing: Listing{{Key: "a.mp3"}}}
	c := NewCache(path, src, nil)

	require.NoError(t, c.Invalidate(), "invalidating an absent cache is a no-op")

	_, err := c.Get(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate())

	state, _, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)

	_, err = c.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCache_ConcurrentMissesShareEnumeration(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCacheFileName)
	src := &gatedSource{listing: Listing{{Key: "a.mp3"}}, gate: make(chan struct{})}
	c := NewCache(path, src, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Listing, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "")
		}()
	}

	// Let the callers pile up behind the first enumeration.
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"a.mp3"}, results[i].Keys())
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCache_SourceErrorPropagates(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCacheFileName)
	src := &countingSource{err: &RemoteListError{Bucket: "music", Err: errors.New("boom")}}
	c := NewCache(path, src, nil)

	_, err := c.Get(context.Background(), "")
	var listErr *RemoteListError
	require.ErrorAs(t, err, &listErr)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no cache file is written on failure")
}

func TestCache_StoreFailureStillReturnsListing(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The cache directory is a regular file, so Store cannot succeed.
	core, logs := observer.New(zapcore.WarnLevel)
	src := &countingSource{listing: Listing{{Key: "a.mp3"}}}
	c := NewCache(filepath.Join(blocker, DefaultCacheFileName), src, zap.New(core))

	got, err := c.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3"}, got.Keys())
	assert.Equal(t, 1, logs.FilterMessage("Failed to write listing cache").Len())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "absent", StateAbsent.String())
	assert.Equal(t, "present", StatePresent.String())
}
