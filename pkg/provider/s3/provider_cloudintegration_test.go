//go:build cloudintegration

package s3_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambot/s3playlist/pkg/provider"
	"github.com/streambot/s3playlist/pkg/provider/s3"
	"github.com/streambot/s3playlist/test/cloudtest"
)

func newMotoProvider(t *testing.T, ctx context.Context, bucket string) *s3.Provider {
	t.Helper()
	p, err := s3.New(ctx, s3.Config{
		Bucket:          bucket,
		Endpoint:        cloudtest.Endpoint,
		Region:          cloudtest.Region,
		AccessKeyID:     cloudtest.TestAccessKeyID,
		SecretAccessKey: cloudtest.TestSecretAccessKey,
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_List_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	t.Run("filters by prefix", func(t *testing.T) {
		bucket := cloudtest.CreateBucket(t, ctx)
		cloudtest.PutObjects(t, ctx, bucket, []string{"albums/a.mp3", "albums/b.ogg", "other/c.mp3"})
		p := newMotoProvider(t, ctx, bucket)

		result, err := p.List(ctx, provider.ListOptions{Prefix: "albums/"})
		require.NoError(t, err)
		assert.Len(t, result.Objects, 2)
	})

	t.Run("paginates with continuation token", func(t *testing.T) {
		bucket := cloudtest.CreateBucket(t, ctx)
		cloudtest.PutObjects(t, ctx, bucket, []string{"1.mp3", "2.mp3", "3.mp3"})
		p := newMotoProvider(t, ctx, bucket)

		first, err := p.List(ctx, provider.ListOptions{MaxKeys: 2})
		require.NoError(t, err)
		assert.Len(t, first.Objects, 2)
		require.True(t, first.IsTruncated)
		require.NotEmpty(t, first.ContinuationToken)

		second, err := p.List(ctx, provider.ListOptions{MaxKeys: 2, ContinuationToken: first.ContinuationToken})
		require.NoError(t, err)
		assert.Len(t, second.Objects, 1)
		assert.False(t, second.IsTruncated)
	})

	t.Run("missing bucket", func(t *testing.T) {
		p := newMotoProvider(t, ctx, "nonexistent-bucket-12345")
		_, err := p.List(ctx, provider.ListOptions{})
		require.Error(t, err)
		assert.True(t, provider.IsBucketNotFound(err))
	})
}

func TestProvider_GetObject_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.PutObject(t, ctx, bucket, "a.mp3", []byte("audio"))
	p := newMotoProvider(t, ctx, bucket)

	body, size, err := p.GetObject(ctx, "a.mp3")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
	assert.Equal(t, int64(5), size)

	_, _, err = p.GetObject(ctx, "missing.mp3")
	assert.True(t, provider.IsNotFound(err))

	require.NoError(t, p.HeadBucket(ctx))
}
