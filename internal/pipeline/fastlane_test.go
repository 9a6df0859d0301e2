package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstream/transcoder/internal/events"
	"github.com/openstream/transcoder/internal/models"
)

func newFastLane(t *testing.T, store *fakeStore, runner *fakeRunner, prober *stubProber, pub *fakePublisher) (*FastLane, *Scratch) {
	t.Helper()
	scratch := testScratch(t)
	lane := NewFastLane(store, runner, prober, pub, scratch, testTopics(), "openstream-uploads", "ffmpeg", testLogger())
	return lane, scratch
}

func fastJob() models.TranscodeJob {
	return models.TranscodeJob{
		VideoID:          "v1",
		StoragePath:      "raw/v1.mp4",
		OriginalFilename: "match.mp4",
	}
}

func TestFastLane_HappyPath(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	lane, scratch := newFastLane(t, store, runner, &stubProber{duration: 45}, pub)

	err := lane.Process(context.Background(), fastJob(), nil)
	require.NoError(t, err)

	require.True(t, runner.ran("encode-480p"))
	assert.Contains(t, runner.argvFor("encode-480p"), "-crf 23")
	assert.Contains(t, store.uploadDirs, "openstream-uploads/hls/v1/480p")

	playables := pub.onTopic("video.playable")
	require.Len(t, playables, 1)
	playable := playables[0].Payload.(events.Playable)
	assert.Empty(t, playable.Error)
	assert.Equal(t, "v1", playable.VideoID)
	assert.Equal(t, "openstream-uploads/hls/v1/master.m3u8", playable.HLSManifest480p)
	assert.Equal(t, "openstream-uploads/thumbnails/v1.jpg", playable.ThumbnailURL)
	assert.Equal(t, 45.0, playable.Duration)
	assert.Equal(t, []string{"480p"}, playable.Resolutions)

	subtitles := pub.onTopic("video.subtitle.requests")
	require.Len(t, subtitles, 1)
	req := subtitles[0].Payload.(events.SubtitleRequest)
	assert.Equal(t, "openstream-uploads/audio/v1.wav", req.AudioPath)

	assert.Empty(t, scratchLeftovers(t, scratch))
}

func TestFastLane_FatalDownload(t *testing.T) {
	store := &fakeStore{downloadErr: errors.New("object not found")}
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	lane, scratch := newFastLane(t, store, runner, &stubProber{}, pub)

	err := lane.Process(context.Background(), fastJob(), nil)
	require.Error(t, err)

	// Exactly one playable event: the error form with empty URLs.
	playables := pub.onTopic("video.playable")
	require.Len(t, playables, 1)
	playable := playables[0].Payload.(events.Playable)
	assert.NotEmpty(t, playable.Error)
	assert.Empty(t, playable.HLSManifest480p)
	assert.Empty(t, playable.ThumbnailURL)
	assert.Empty(t, playable.Resolutions)

	assert.False(t, runner.ran("encode-480p"))
	assert.Empty(t, pub.onTopic("video.subtitle.requests"))
	assert.Empty(t, scratchLeftovers(t, scratch))
}

func TestFastLane_FatalEncode(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{failOn: map[string]error{"encode-480p": errors.New("exit status 1")}}
	pub := &fakePublisher{}
	lane, scratch := newFastLane(t, store, runner, &stubProber{duration: 45}, pub)

	err := lane.Process(context.Background(), fastJob(), nil)
	require.Error(t, err)

	playables := pub.onTopic("video.playable")
	require.Len(t, playables, 1)
	assert.NotEmpty(t, playables[0].Payload.(events.Playable).Error)
	assert.Empty(t, scratchLeftovers(t, scratch))
}

func TestFastLane_ThumbnailFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{failOn: map[string]error{"thumbnail": errors.New("no video stream")}}
	pub := &fakePublisher{}
	lane, _ := newFastLane(t, store, runner, &stubProber{duration: 45}, pub)

	err := lane.Process(context.Background(), fastJob(), nil)
	require.NoError(t, err)

	playables := pub.onTopic("video.playable")
	require.Len(t, playables, 1)
	playable := playables[0].Payload.(events.Playable)
	assert.Empty(t, playable.Error)
	assert.Empty(t, playable.ThumbnailURL)
	assert.NotEmpty(t, playable.HLSManifest480p)
}

func TestFastLane_AudioFailureSkipsSubtitles(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{failOn: map[string]error{"extract-audio": errors.New("no audio stream")}}
	pub := &fakePublisher{}
	lane, _ := newFastLane(t, store, runner, &stubProber{duration: 45}, pub)

	err := lane.Process(context.Background(), fastJob(), nil)
	require.NoError(t, err)

	assert.Len(t, pub.onTopic("video.playable"), 1)
	assert.Empty(t, pub.onTopic("video.subtitle.requests"))
}

func TestFastLane_ProbeFailureReportsZeroDuration(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	lane, _ := newFastLane(t, store, runner, &stubProber{durationErr: errors.New("unreadable")}, pub)

	err := lane.Process(context.Background(), fastJob(), nil)
	require.NoError(t, err)

	playables := pub.onTopic("video.playable")
	require.Len(t, playables, 1)
	assert.Equal(t, 0.0, playables[0].Payload.(events.Playable).Duration)
}
