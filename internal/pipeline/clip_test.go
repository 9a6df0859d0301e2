package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstream/transcoder/internal/events"
	"github.com/openstream/transcoder/internal/models"
)

func newClipLane(t *testing.T, store *fakeStore, runner *fakeRunner, pub *fakePublisher) (*ClipLane, *Scratch) {
	t.Helper()
	scratch := testScratch(t)
	lane := NewClipLane(store, runner, pub, scratch, testTopics(), "openstream-uploads", "ffmpeg", testLogger())
	return lane, scratch
}

func clipJob() models.ClipJob {
	return models.ClipJob{
		ClipID:        "c1",
		ParentVideoID: "v1",
		StoragePath:   "highlights/v1/clip_001.mp4",
		CRF:           24,
	}
}

func TestClipLane_HappyPath(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	lane, scratch := newClipLane(t, store, runner, pub)

	err := lane.Process(context.Background(), clipJob(), nil)
	require.NoError(t, err)

	argv := runner.argvFor("encode-clip")
	assert.Contains(t, argv, "[0:v]split=2[a][b]")
	assert.Equal(t, 2, strings.Count(argv, "-crf 24"))
	assert.Contains(t, store.uploadDirs, "openstream-uploads/clips/c1")

	ready := pub.onTopic("clip.ready")
	require.Len(t, ready, 1)
	event := ready[0].Payload.(events.ClipReady)
	assert.Equal(t, "c1", event.ClipID)
	assert.Equal(t, "clips/c1/master.m3u8", event.HLSManifest)

	assert.Empty(t, pub.onTopic("clip.failed"))
	assert.Empty(t, scratchLeftovers(t, scratch))
}

func TestClipLane_DefaultCRF(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	lane, _ := newClipLane(t, store, runner, pub)

	job := clipJob()
	job.CRF = 0
	err := lane.Process(context.Background(), job, nil)
	require.NoError(t, err)

	assert.Contains(t, runner.argvFor("encode-clip"), "-crf 23")
}

func TestClipLane_EncodeFailureEmitsClipFailed(t *testing.T) {
	store := &fakeStore{}
	runner := &fakeRunner{failOn: map[string]error{"encode-clip": errors.New("exit status 1")}}
	pub := &fakePublisher{}
	lane, scratch := newClipLane(t, store, runner, pub)

	err := lane.Process(context.Background(), clipJob(), nil)
	require.Error(t, err)

	failed := pub.onTopic("clip.failed")
	require.Len(t, failed, 1)
	event := failed[0].Payload.(events.ClipFailed)
	assert.Equal(t, "c1", event.ClipID)
	assert.NotEmpty(t, event.Reason)

	assert.Empty(t, pub.onTopic("clip.ready"))
	assert.Empty(t, scratchLeftovers(t, scratch))
}

func TestClipLane_DownloadFailureEmitsClipFailed(t *testing.T) {
	store := &fakeStore{downloadErr: errors.New("object not found")}
	pub := &fakePublisher{}
	lane, scratch := newClipLane(t, store, &fakeRunner{}, pub)

	err := lane.Process(context.Background(), clipJob(), nil)
	require.Error(t, err)

	require.Len(t, pub.onTopic("clip.failed"), 1)
	assert.Empty(t, scratchLeftovers(t, scratch))
}
