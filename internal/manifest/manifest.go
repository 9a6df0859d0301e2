// Package manifest builds the multivariant (master) playlist that fronts the
// per-rendition media playlists.
package manifest

import (
	"fmt"
	"sort"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// variantInfo is the advertised stream parameters for one rendition height.
// Bandwidth figures are nominal: clients only need relative ordering for ABR
// ladder decisions, and the encoder is CRF-driven so true rates vary.
type variantInfo struct {
	bandwidth int
	width     int
	height    int
	codecs    []string
}

var variantTable = map[int]variantInfo{
	480:  {bandwidth: 800000, width: 842, height: 480, codecs: []string{"avc1.64001e", "mp4a.40.2"}},
	720:  {bandwidth: 2800000, width: 1280, height: 720, codecs: []string{"avc1.64001f", "mp4a.40.2"}},
	1080: {bandwidth: 5000000, width: 1920, height: 1080, codecs: []string{"avc1.640028", "mp4a.40.2"}},
}

// Build renders the master playlist for the given rendition heights. Variants
// are always emitted in ascending height order no matter when each rendition
// finished, so regenerating the manifest with one more rendition appends a
// variant without disturbing the existing ones.
func Build(heights []int) ([]byte, error) {
	if len(heights) == 0 {
		return nil, fmt.Errorf("no renditions to advertise")
	}

	ordered := make([]int, len(heights))
	copy(ordered, heights)
	sort.Ints(ordered)

	mv := &playlist.Multivariant{
		Version:             3,
		IndependentSegments: true,
	}

	for _, h := range ordered {
		info, ok := variantTable[h]
		if !ok {
			return nil, fmt.Errorf("no variant parameters for %dp", h)
		}
		mv.Variants = append(mv.Variants, &playlist.MultivariantVariant{
			Bandwidth:  info.bandwidth,
			Codecs:     info.codecs,
			Resolution: fmt.Sprintf("%dx%d", info.width, info.height),
			URI:        RenditionPlaylistPath(h),
		})
	}

	return mv.Marshal()
}

// RenditionPlaylistPath is the media playlist location relative to the
// manifest, e.g. "480p/playlist.m3u8".
func RenditionPlaylistPath(height int) string {
	return fmt.Sprintf("%dp/playlist.m3u8", height)
}

// KnownHeight reports whether the builder can advertise the given height.
func KnownHeight(height int) bool {
	_, ok := variantTable[height]
	return ok
}
