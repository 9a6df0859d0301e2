// Package models defines the job descriptor and lane/step types shared by the
// pipelines, the router, and the event schemas.
package models

// TranscodeJob identifies one source video. It is immutable once created and
// is carried unchanged through every event in a job's lifetime, including
// slow-lane continuation events.
type TranscodeJob struct {
	VideoID          string `json:"videoId"`
	OwnerID          string `json:"ownerId,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	Bucket           string `json:"bucket,omitempty"`
	StoragePath      string `json:"storagePath"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	SizeBytes        int64  `json:"sizeBytes,omitempty"`
	Timestamp        int64  `json:"ts,omitempty"`

	// Step is present only on slow-lane continuation events. Empty means
	// "start at the first step".
	Step SlowLaneStep `json:"step,omitempty"`
}

// ClipJob identifies one clip extraction request. The clip source has already
// been stream-copied out of the parent video by the highlight worker.
type ClipJob struct {
	ClipID        string `json:"clipId"`
	ParentVideoID string `json:"videoId"`
	Bucket        string `json:"bucket,omitempty"`
	StoragePath   string `json:"storagePath"`
	CRF           int    `json:"crf,omitempty"`
	Timestamp     int64  `json:"ts,omitempty"`
}
