// Package playable narrows a listing to media files and picks one of them.
package playable

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/streambot/s3playlist/pkg/listing"
)

// DefaultExtensions are the recognized media suffixes. Matching is
// case-sensitive: "c.FLAC" is not playable.
var DefaultExtensions = []string{".mp3", ".wav", ".flac", ".ogg"}

// ErrNoPlayableFiles is returned when a listing contains no playable keys.
var ErrNoPlayableFiles = errors.New("no playable files")

// Config configures a Selector.
type Config struct {
	// Extensions overrides DefaultExtensions when non-empty.
	Extensions []string

	// Excludes are doublestar globs; matching keys are never selected.
	Excludes []string
}

// Selector filters listings to playable keys and draws one uniformly.
type Selector struct {
	extensions []string
	excludes   []string
	rng        *rand.Rand
}

// New builds a Selector. rng may be nil to use a randomly seeded source.
func New(cfg Config, rng *rand.Rand) (*Selector, error) {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, pattern := range cfg.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{extensions: exts, excludes: cfg.Excludes, rng: rng}, nil
}

// IsPlayable reports whether key ends with one of the configured extensions
// and is not excluded.
func (s *Selector) IsPlayable(key string) bool {
	matched := false
	for _, ext := range s.extensions {
		if strings.HasSuffix(key, ext) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, pattern := range s.excludes {
		if ok, _ := doublestar.Match(pattern, key); ok {
			return false
		}
	}
	return true
}

// Filter returns the playable descriptors of l, deduplicated by key. The
// first occurrence of a key wins and listing order is kept.
func (s *Selector) Filter(l listing.Listing) []listing.ObjectDescriptor {
	seen := make(map[string]struct{}, len(l))
	out := make([]listing.ObjectDescriptor, 0, len(l))
	for _, d := range l {
		if !s.IsPlayable(d.Key) {
			continue
		}
		if _, dup := seen[d.Key]; dup {
			continue
		}
		seen[d.Key] = struct{}{}
		out = append(out, d)
	}
	return out
}

// SelectRandom draws one playable descriptor with equal probability per
// distinct key.
func (s *Selector) SelectRandom(l listing.Listing) (listing.ObjectDescriptor, error) {
	candidates := s.Filter(l)
	if len(candidates) == 0 {
		return listing.ObjectDescriptor{}, ErrNoPlayableFiles
	}
	return candidates[s.rng.IntN(len(candidates))], nil
}
