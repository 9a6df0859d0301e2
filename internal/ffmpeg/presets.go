package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Fixed encoder parameters shared by every rendition. GOP and keyframe
// interval are locked so segment boundaries line up across renditions.
const (
	gopSize        = 48
	fastHLSTime    = 6
	slowHLSTime    = 4
	segmentPattern = "segment_%03d.ts"
	playlistName   = "playlist.m3u8"
)

// FastLaneCRF is the fixed quality parameter of the instant 480p rendition.
const FastLaneCRF = 23

// RenditionSpec describes one HLS rendition encode.
type RenditionSpec struct {
	Height  int    // scale target, width follows aspect ratio
	CRF     int
	Preset  string // veryfast for the fast lane, medium for the slow lane
	HLSTime int    // segment duration in seconds
}

// RenditionCommand builds the encode invocation for one rendition. Output is
// outDir/playlist.m3u8 plus numbered transport-stream segments.
func RenditionCommand(bin, input, outDir string, spec RenditionSpec) *Command {
	return NewCommandBuilder(bin).
		HideBanner().
		Stats().
		Overwrite().
		Input(input).
		VideoFilter(fmt.Sprintf("scale=-2:%d", spec.Height)).
		OutputGroup(
			"-c:v", "libx264",
			"-preset", spec.Preset,
			"-crf", strconv.Itoa(spec.CRF),
			"-g", strconv.Itoa(gopSize),
			"-keyint_min", strconv.Itoa(gopSize),
			"-sc_threshold", "0",
			"-c:a", "aac",
			"-b:a", "128k",
			"-f", "hls",
			"-hls_time", strconv.Itoa(spec.HLSTime),
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(outDir, segmentPattern),
			filepath.Join(outDir, playlistName),
		).
		Build()
}

// FastRendition is the fast lane's single deliverable: 480p, fast preset,
// fixed CRF.
func FastRendition() RenditionSpec {
	return RenditionSpec{Height: 480, CRF: FastLaneCRF, Preset: "veryfast", HLSTime: fastHLSTime}
}

// SlowRendition is a slow-lane rendition at the analyzer-chosen CRF.
func SlowRendition(height, crf int) RenditionSpec {
	return RenditionSpec{Height: height, CRF: crf, Preset: "medium", HLSTime: slowHLSTime}
}

// ThumbnailCommand grabs a single frame at the given offset, bounded to
// 320x180 preserving aspect ratio.
func ThumbnailCommand(bin, input, output string, atSeconds float64) *Command {
	return NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		InputArgs("-ss", strconv.FormatFloat(atSeconds, 'f', -1, 64)).
		Input(input).
		VideoFilter("scale=320:180:force_original_aspect_ratio=decrease").
		OutputGroup("-vframes", "1", output).
		Build()
}

// AudioExtractCommand produces the mono fixed-rate WAV track the subtitle
// service consumes.
func AudioExtractCommand(bin, input, output string) *Command {
	return NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		Input(input).
		OutputGroup(
			"-vn",
			"-ac", "1",
			"-ar", "16000",
			"-f", "wav",
			output,
		).
		Build()
}

// SpriteSheetCommand renders the whole thumbnail grid in one pass: sample a
// frame every interval seconds, scale to the fixed cell size, and tile.
func SpriteSheetCommand(bin, input, output string, interval float64, cols, rows int) *Command {
	return NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		Input(input).
		VideoFilter(fmt.Sprintf("fps=1/%g,scale=160:90,tile=%dx%d", interval, cols, rows)).
		OutputGroup("-frames:v", "1", output).
		Build()
}

// ClipCommand encodes a short clip into 480p and 720p in a single invocation:
// one decode, the filter graph split into two encode branches. Worth it for
// clip-length sources where decode dominates.
func ClipCommand(bin, input, outDir string, crf int) *Command {
	graph := "[0:v]split=2[a][b];[a]scale=-2:480[v480];[b]scale=-2:720[v720]"

	branch := func(label, subdir string) []string {
		dir := filepath.Join(outDir, subdir)
		return []string{
			"-map", label,
			"-map", "0:a?",
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", strconv.Itoa(crf),
			"-g", strconv.Itoa(gopSize),
			"-keyint_min", strconv.Itoa(gopSize),
			"-sc_threshold", "0",
			"-c:a", "aac",
			"-b:a", "128k",
			"-f", "hls",
			"-hls_time", strconv.Itoa(slowHLSTime),
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(dir, segmentPattern),
			filepath.Join(dir, playlistName),
		}
	}

	return NewCommandBuilder(bin).
		HideBanner().
		Stats().
		Overwrite().
		Input(input).
		FilterComplex(graph).
		OutputGroup(branch("[v480]", "480p")...).
		OutputGroup(branch("[v720]", "720p")...).
		Build()
}
