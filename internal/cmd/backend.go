package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/streambot/s3playlist/internal/config"
	"github.com/streambot/s3playlist/internal/observability"
	"github.com/streambot/s3playlist/pkg/listing"
	"github.com/streambot/s3playlist/pkg/localcache"
	"github.com/streambot/s3playlist/pkg/notify"
	"github.com/streambot/s3playlist/pkg/playable"
	"github.com/streambot/s3playlist/pkg/playlist"
	"github.com/streambot/s3playlist/pkg/provider"
	"github.com/streambot/s3playlist/pkg/provider/file"
	"github.com/streambot/s3playlist/pkg/provider/s3"
)

// storeBackend is an object store with the capabilities the CLI needs.
type storeBackend interface {
	provider.Provider
	provider.ObjectGetter
	provider.BucketChecker
}

func s3Config(cfg *config.Config) s3.Config {
	return s3.Config{
		Bucket:          cfg.Streamer.BucketName,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		Profile:         cfg.S3.Profile,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
		MaxKeys:         cfg.S3.MaxKeys,
	}
}

// openBackend connects to the configured object store.
func openBackend(ctx context.Context, cfg *config.Config) (storeBackend, error) {
	switch cfg.Streamer.Provider {
	case config.ProviderFile:
		p, err := file.New(file.Config{BaseDir: cfg.Streamer.BucketName})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderS3:
		p, err := s3.New(ctx, s3Config(cfg))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Streamer.Provider)
	}
}

// components are the pieces one resolution run is assembled from.
type components struct {
	backend  storeBackend
	cache    *listing.Cache
	resolver *playlist.Resolver
}

func (c *components) Close() {
	if c.backend != nil {
		_ = c.backend.Close()
	}
}

// newComponents wires the listing cache, selector and local cache manager
// over the configured backend.
func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	log := observability.CLILogger

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	lister := listing.NewLister(backend, listing.ListerConfig{
		Bucket:    cfg.Streamer.BucketName,
		MaxKeys:   cfg.S3.MaxKeys,
		RateLimit: cfg.S3.RateLimit,
	}, log)
	cache := listing.NewCache(cfg.CacheFilePath(), lister, log)

	selector, err := newSelector(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	manager, err := localcache.New(cfg.Storage.Dir, backend,
		localcache.WithReserved(cache.Path()),
		localcache.WithLogger(log))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	resolver := playlist.NewResolver(playlist.Config{
		Bucket:    cfg.Streamer.BucketName,
		Prefix:    cfg.Streamer.S3Prefix,
		Retention: cfg.Storage.Retention,
	}, cache, selector, manager, log)

	return &components{backend: backend, cache: cache, resolver: resolver}, nil
}

// newDispatcher builds the SQS/SNS dispatcher. Tests replace it.
var newDispatcher = func(ctx context.Context, cfg *config.Config) (*notify.Dispatcher, error) {
	targets := notify.Targets{QueueURL: cfg.Streamer.SQSURL, TopicARN: cfg.Streamer.SNSArn}
	if targets.QueueURL == "" && targets.TopicARN == "" {
		return notify.NewDispatcher(observability.CLILogger), nil
	}

	awsCfg, err := s3.LoadAWSConfig(ctx, s3Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	observability.CLILogger.Debug("Notification targets",
		zap.String("sqs_url", targets.QueueURL),
		zap.String("sns_arn", targets.TopicARN))
	return notify.FromConfig(awsCfg, targets, observability.CLILogger)
}

func newSelector(cfg *config.Config) (*playable.Selector, error) {
	return playable.New(playable.Config{
		Extensions: cfg.Selection.Extensions,
		Excludes:   cfg.Selection.Exclude,
	}, nil)
}
