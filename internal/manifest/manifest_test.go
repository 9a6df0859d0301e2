package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SingleRendition(t *testing.T) {
	data, err := Build([]int{480})
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "#EXTM3U"))
	assert.Contains(t, text, "BANDWIDTH=800000")
	assert.Contains(t, text, "RESOLUTION=842x480")
	assert.Contains(t, text, "480p/playlist.m3u8")
	assert.NotContains(t, text, "720p")
}

func TestBuild_OrderedByHeightRegardlessOfInput(t *testing.T) {
	data, err := Build([]int{1080, 480, 720})
	require.NoError(t, err)

	text := string(data)
	i480 := strings.Index(text, "480p/playlist.m3u8")
	i720 := strings.Index(text, "720p/playlist.m3u8")
	i1080 := strings.Index(text, "1080p/playlist.m3u8")
	require.GreaterOrEqual(t, i480, 0)
	require.GreaterOrEqual(t, i720, 0)
	require.GreaterOrEqual(t, i1080, 0)
	assert.Less(t, i480, i720)
	assert.Less(t, i720, i1080)
}

func TestBuild_ExtendsByAppending(t *testing.T) {
	// Each regeneration with one more rendition must keep the earlier
	// variant entries byte-identical so already-playing clients only ever
	// see additions.
	base, err := Build([]int{480})
	require.NoError(t, err)

	extended, err := Build([]int{480, 720})
	require.NoError(t, err)

	full, err := Build([]int{480, 720, 1080})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(extended), string(base)))
	assert.True(t, strings.HasPrefix(string(full), string(extended)))
}

func TestBuild_UnknownHeight(t *testing.T) {
	_, err := Build([]int{360})
	assert.Error(t, err)
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}

func TestRenditionPlaylistPath(t *testing.T) {
	assert.Equal(t, "1080p/playlist.m3u8", RenditionPlaylistPath(1080))
}
