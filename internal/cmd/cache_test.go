package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambot/s3playlist/pkg/listing"
)

func TestCacheShowAndInvalidate(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.mp3": "12345", "b.txt": "1"}, "")
	cachePath := filepath.Join(env.storageDir, listing.DefaultCacheFileName)

	out, err := runCLI(t, "cache", "show", "--config", env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "absent")

	_, err = runCLI(t, "next", "--no-notify", "--config", env.configPath)
	require.NoError(t, err)

	out, err = runCLI(t, "cache", "show", "--json", "--config", env.configPath)
	require.NoError(t, err)
	var summary cacheSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "present", summary.State)
	assert.Equal(t, cachePath, summary.Path)
	assert.Equal(t, 2, summary.Objects)
	assert.Equal(t, 1, summary.Playable)
	assert.Equal(t, int64(6), summary.Bytes)

	_, err = runCLI(t, "cache", "invalidate", "--config", env.configPath)
	require.NoError(t, err)
	assert.NoFileExists(t, cachePath)

	// Invalidating an absent cache is not an error.
	_, err = runCLI(t, "cache", "invalidate", "--config", env.configPath)
	require.NoError(t, err)
}

func TestCacheShow_CorruptFile(t *testing.T) {
	env := newTestEnv(t, nil, "")
	cachePath := filepath.Join(env.storageDir, listing.DefaultCacheFileName)
	require.NoError(t, os.WriteFile(cachePath, []byte("{not json"), 0o644))

	out, err := runCLI(t, "cache", "show", "--config", env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "absent")
	assert.Contains(t, out, "Error:")
}

func TestPurgeCommand(t *testing.T) {
	env := newTestEnv(t, nil, "")

	old := time.Now().Add(-3 * time.Hour)
	stale := filepath.Join(env.storageDir, "stale.mp3")
	fresh := filepath.Join(env.storageDir, "fresh.mp3")
	cachePath := filepath.Join(env.storageDir, listing.DefaultCacheFileName)
	for _, p := range []string{stale, fresh, cachePath} {
		require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	}
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(cachePath, old, old))

	out, err := runCLI(t, "purge", "--config", env.configPath)
	require.NoError(t, err)
	assert.Equal(t, "removed 1 of 2 files (4 bytes)\n", out)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, cachePath)

	out, err = runCLI(t, "purge", "--retention", "1ns", "--config", env.configPath)
	require.NoError(t, err)
	assert.Equal(t, "removed 1 of 1 files (4 bytes)\n", out)
	assert.NoFileExists(t, fresh)
}
