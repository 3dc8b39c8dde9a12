package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutOpenDelete(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := s.Put(ctx, "templates/t1/listening/a.mp3", strings.NewReader("ID3"))
	require.NoError(t, err)
	assert.Equal(t, "templates/t1/listening/a.mp3", key)

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "ID3", string(b))

	// directories are not blobs
	_, err = s.Open(ctx, "templates/t1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"a/b.mp3":          "a/b.mp3",
		"/a/./b.mp3":       "a/b.mp3",
		"../../etc/passwd": "etc/passwd",
		`a\..\..\b`:        "b",
	}
	for in, want := range cases {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "/", ".."} {
		_, err := CleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestListeningAudioKey(t *testing.T) {
	k := ListeningAudioKey("t1", "Track 01.MP3")
	assert.True(t, strings.HasPrefix(k, "templates/t1/listening/"))
	assert.True(t, strings.HasSuffix(k, ".mp3"))
	assert.NotContains(t, k, "Track")
}
