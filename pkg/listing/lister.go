package listing

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/streambot/s3playlist/pkg/provider"
)

// ListerConfig configures remote enumeration.
type ListerConfig struct {
	// Bucket is used for error messages and logs only; the provider is
	// already bound to it.
	Bucket string

	// MaxKeys is the page size. Zero uses the provider default.
	MaxKeys int

	// RateLimit caps list requests per second. Zero means unlimited.
	RateLimit float64
}

// Lister pages through a provider and returns a normalized Listing.
type Lister struct {
	provider provider.Provider
	config   ListerConfig
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewLister creates a Lister. A nil logger disables logging.
func NewLister(p provider.Provider, cfg ListerConfig, log *zap.Logger) *Lister {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Lister{provider: p, config: cfg, log: log}
	if cfg.RateLimit > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return l
}

// ListObjects enumerates every object under prefix.
//
// A page that claims truncation without a continuation token ends the
// enumeration with a warning instead of looping.
func (l *Lister) ListObjects(ctx context.Context, prefix string) (Listing, error) {
	var (
		all   []provider.ObjectSummary
		token string
		pages int
	)

	l.log.Info("Fetching bucket listing", zap.String("bucket", l.config.Bucket), zap.String("prefix", prefix))

	for {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return nil, &RemoteListError{Bucket: l.config.Bucket, Prefix: prefix, Pages: pages, Err: err}
			}
		}

		res, err := l.provider.List(ctx, provider.ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
			MaxKeys:           l.config.MaxKeys,
		})
		if err != nil {
			return nil, &RemoteListError{Bucket: l.config.Bucket, Prefix: prefix, Pages: pages, Err: err}
		}
		pages++
		all = append(all, res.Objects...)

		if !res.IsTruncated {
			break
		}
		if res.ContinuationToken == "" {
			l.log.Warn("Listing truncated without continuation token, stopping",
				zap.String("bucket", l.config.Bucket),
				zap.Int("pages", pages),
				zap.Int("objects", len(all)))
			break
		}
		token = res.ContinuationToken
	}

	l.log.Debug("Bucket listing complete",
		zap.String("bucket", l.config.Bucket),
		zap.Int("pages", pages),
		zap.Int("objects", len(all)))

	return normalize(all), nil
}
