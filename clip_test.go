package mediacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVideoClipRejectsOffsetsExceedingSourceDuration(t *testing.T) {
	t.Parallel()
	reader := newMockVideoReader(5.0)
	_, err := NewVideoClip(1, reader, 0, 3000, 2500)
	require.Error(t, err)
}

func TestVideoClipDurationAndRange(t *testing.T) {
	t.Parallel()
	reader := newMockVideoReader(10.0)
	clip, err := NewVideoClip(1, reader, 2000, 1000, 1000)
	require.NoError(t, err)

	assert.Equal(t, int64(8000), clip.Duration())
	start, end := clip.Range()
	assert.Equal(t, int64(2000), start)
	assert.Equal(t, int64(10000), end)
}

func TestImageClipUsesUserSetDuration(t *testing.T) {
	t.Parallel()
	reader := newMockVideoReader(1.0)
	clip, err := NewImageClip(1, reader, 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), clip.Duration())

	_, err = NewImageClip(2, reader, 0, 0)
	require.Error(t, err)
}

func TestClipSeekToClampsToDuration(t *testing.T) {
	t.Parallel()
	reader := newMockVideoReader(10.0)
	clip, err := NewVideoClip(1, reader, 0, 0, 0)
	require.NoError(t, err)

	require.NoError(t, clip.SeekTo(-500))
	assert.True(t, reader.seekCalled)
	assert.InDelta(t, 0.0, reader.seekTo, 0.0001)

	reader.seekCalled = false
	require.NoError(t, clip.SeekTo(50000))
	assert.InDelta(t, 9.999, reader.seekTo, 0.0001)
}

func TestClipNotifyReadPosSuspendsAndWakes(t *testing.T) {
	t.Parallel()
	reader := newMockVideoReader(10.0)
	clip, err := NewVideoClip(1, reader, 0, 0, 0)
	require.NoError(t, err)

	clip.NotifyReadPos(-5000)
	assert.True(t, reader.suspended)

	clip.NotifyReadPos(1000)
	assert.False(t, reader.suspended)
}

func TestAudioClipReadAppliesFilter(t *testing.T) {
	t.Parallel()
	reader := newMockAudioReader(5.0)
	clip, err := NewAudioClip(1, reader, 0, 0, 0)
	require.NoError(t, err)

	applied := 0
	clip.SetFilter(gainFilterForTest{gain: 2.0, applied: &applied})
	blk, err := clip.ReadAudioSamples(128)
	require.NoError(t, err)
	assert.Equal(t, 128, blk.NumSamples)
	assert.Equal(t, 1, applied)
}

// gainFilterForTest is a trivial Filter used only to exercise Clip's
// filter-application path without depending on audio_effect_filter.go.
// It scales every sample by gain and counts its calls in *applied.
type gainFilterForTest struct {
	gain    float32
	applied *int
}

func (f gainFilterForTest) Clone() Filter                            { return f }
func (f gainFilterForTest) ApplyVideo(img Image, posMS int64) Image { return img }
func (f gainFilterForTest) ApplyAudio(blk AudioBlock, posMS int64) AudioBlock {
	if f.applied != nil {
		*f.applied++
	}
	for ch := range blk.Planes {
		for i := range blk.Planes[ch] {
			blk.Planes[ch][i] *= f.gain
		}
	}
	return blk
}
