// Package trackmeta reads artist/title/album tags from downloaded audio files.
package trackmeta

import (
	"errors"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// Tag is the subset of audio metadata published with a track announcement.
type Tag struct {
	Artist string
	Title  string
	Album  string
}

// Read returns the tag of the file at path, or nil without error when the
// file has no recognizable tag.
func Read(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tags from %s: %w", path, err)
	}
	return &Tag{Artist: m.Artist(), Title: m.Title(), Album: m.Album()}, nil
}
