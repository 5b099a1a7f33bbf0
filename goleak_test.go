package mediacore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestComposerStopJoinsMixWorker guards against the mix-loop goroutine
// outliving Stop(), the failure mode goleak is built to catch.
func TestComposerStopJoinsMixWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newTestComposer(t)
	track := newTestVideoTrack()
	clip, err := NewVideoClip(1, newMockVideoReader(5.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(clip))
	c.AddTrack(track, UnattachedID)

	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}

// TestAudioComposerStopJoinsMixWorker is the audio-side analogue.
func TestAudioComposerStopJoinsMixWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newTestAudioComposer(t)
	track := NewTrack(1, ClipAudio, OutputGeometry{Channels: 2, SampleRate: 48000})
	clip, err := NewAudioClip(1, newMockAudioReader(5.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(clip))
	c.AddTrack(track)

	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
