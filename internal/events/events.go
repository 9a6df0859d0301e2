// Package events defines the outbound event payloads and the bus publisher.
//
// Consumers of completion events must check the explicit Error/Failed fields;
// absence of a resource URL alone is not a reliable failure signal because
// partial-success states are designed in.
package events

// Playable announces that the fast lane produced a watchable rendition. On a
// fatal fast-lane failure the same event is emitted with Error set and empty
// URLs.
type Playable struct {
	VideoID         string   `json:"videoId"`
	HLSManifest480p string   `json:"hlsManifest480p"`
	Duration        float64  `json:"duration"`
	ThumbnailURL    string   `json:"thumbnailUrl"`
	Resolutions     []string `json:"resolutions"`
	Timestamp       int64    `json:"ts"`
	Error           string   `json:"error,omitempty"`
}

// SubtitleRequest asks the subtitle service to transcribe the extracted audio.
type SubtitleRequest struct {
	VideoID   string `json:"videoId"`
	AudioPath string `json:"audioPath"`
	Timestamp int64  `json:"ts"`
}

// VideoComplete announces that all adaptive renditions exist.
type VideoComplete struct {
	VideoID         string   `json:"videoId"`
	CRFUsed         int      `json:"crfUsed"`
	ComplexityScore float64  `json:"complexityScore"`
	Resolutions     []string `json:"resolutions"`
	HLSManifest     string   `json:"hlsManifest"`
	Timestamp       int64    `json:"ts"`
}

// SpritesComplete reports sprite/timeline generation. Failed=true with Reason
// set is the non-fatal terminal outcome for unprobeable sources.
type SpritesComplete struct {
	VideoID    string  `json:"videoId"`
	SpritePath string  `json:"spritePath,omitempty"`
	VTTPath    string  `json:"vttPath,omitempty"`
	FrameCount int     `json:"frameCount,omitempty"`
	Interval   float64 `json:"interval,omitempty"`
	Cols       int     `json:"cols,omitempty"`
	Rows       int     `json:"rows,omitempty"`
	Failed     bool    `json:"failed,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Timestamp  int64   `json:"ts"`
}

// ClipReady announces a finished clip rendition set.
type ClipReady struct {
	ClipID      string `json:"clipId"`
	HLSManifest string `json:"hlsManifest"`
	Timestamp   int64  `json:"ts"`
}

// ClipFailed reports a failed clip extraction.
type ClipFailed struct {
	ClipID    string `json:"clipId"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"ts"`
}
