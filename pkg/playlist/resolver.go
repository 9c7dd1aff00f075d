// Package playlist picks the next track: it evicts stale downloads, loads the
// bucket listing, draws a playable key and makes sure it is on local disk.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streambot/s3playlist/pkg/listing"
	"github.com/streambot/s3playlist/pkg/localcache"
	"github.com/streambot/s3playlist/pkg/playable"
)

// ListingSource returns the bucket listing for a prefix. *listing.Cache
// satisfies it.
type ListingSource interface {
	Get(ctx context.Context, prefix string) (listing.Listing, error)
}

// Selector draws one playable descriptor. *playable.Selector satisfies it.
type Selector interface {
	SelectRandom(l listing.Listing) (listing.ObjectDescriptor, error)
}

// Store evicts stale files and materializes objects locally.
// *localcache.Manager satisfies it.
type Store interface {
	Purge(retention time.Duration) localcache.PurgeReport
	Resolve(ctx context.Context, d listing.ObjectDescriptor) (string, error)
}

// Config configures a Resolver.
type Config struct {
	Bucket    string
	Prefix    string
	Retention time.Duration
}

// Track is the outcome of one resolution.
type Track struct {
	Key  string
	Size int64
	Path string
}

// Resolver performs one purge, list, select, resolve pass per call.
type Resolver struct {
	cfg      Config
	listings ListingSource
	selector Selector
	store    Store
	log      *zap.Logger
}

// NewResolver wires the components together. A nil logger disables logging.
func NewResolver(cfg Config, listings ListingSource, selector Selector, store Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{cfg: cfg, listings: listings, selector: selector, store: store, log: log}
}

// Next returns a locally available, randomly chosen playable track.
//
// The purge always runs first and never fails the call. Listing and
// download errors are returned as-is; an empty selection is reported as
// playable.ErrNoPlayableFiles wrapped with the bucket name.
func (r *Resolver) Next(ctx context.Context) (*Track, error) {
	report := r.store.Purge(r.cfg.Retention)
	if len(report.Removed) > 0 || len(report.Errors) > 0 {
		r.log.Info("Purged local cache",
			zap.Int("removed", len(report.Removed)),
			zap.Int64("bytes", report.BytesRemoved),
			zap.Int("errors", len(report.Errors)))
	}

	l, err := r.listings.Get(ctx, r.cfg.Prefix)
	if err != nil {
		return nil, err
	}

	d, err := r.selector.SelectRandom(l)
	if err != nil {
		if errors.Is(err, playable.ErrNoPlayableFiles) {
			return nil, fmt.Errorf("bucket %s: %w", r.cfg.Bucket, err)
		}
		return nil, err
	}
	r.log.Debug("Selected track", zap.String("key", d.Key), zap.Int64("size", d.Size))

	path, err := r.store.Resolve(ctx, d)
	if err != nil {
		return nil, err
	}

	return &Track{Key: d.Key, Size: d.Size, Path: path}, nil
}
