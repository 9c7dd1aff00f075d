package trackmeta

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// id3v1 builds a trailing 128-byte ID3v1 block.
func id3v1(title, artist, album string) []byte {
	field := func(s string, n int) []byte {
		b := make([]byte, n)
		copy(b, s)
		return b
	}
	var buf bytes.Buffer
	buf.WriteString("TAG")
	buf.Write(field(title, 30))
	buf.Write(field(artist, 30))
	buf.Write(field(album, 30))
	buf.Write(field("2001", 4))
	buf.Write(field("", 30))
	buf.WriteByte(0)
	return buf.Bytes()
}

func TestRead_ID3v1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	content := append(bytes.Repeat([]byte{0x00}, 512), id3v1("Intro", "Band", "Debut")...)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Intro", got.Title)
	assert.Equal(t, "Band", got.Artist)
	assert.Equal(t, "Debut", got.Album)
}

func TestRead_NoTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 512), 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}
