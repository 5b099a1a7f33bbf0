package mediacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVideoTrack() *Track {
	geom := OutputGeometry{Width: 4, Height: 4, FrameRate: Ratio{Num: 25, Den: 1}}
	return NewTrack(1, ClipVideo, geom)
}

func TestTrackDurationIsMaxClipEnd(t *testing.T) {
	t.Parallel()
	track := newTestVideoTrack()
	assert.Equal(t, int64(0), track.Duration())

	c1, err := NewVideoClip(1, newMockVideoReader(5.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c1))

	c2, err := NewVideoClip(2, newMockVideoReader(10.0), 2000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c2))

	assert.Equal(t, int64(12000), track.Duration())
}

func TestTrackAddNewClipBuildsOverlap(t *testing.T) {
	t.Parallel()
	track := newTestVideoTrack()

	c1, err := NewVideoClip(1, newMockVideoReader(10.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c1))

	c2, err := NewVideoClip(2, newMockVideoReader(10.0), 5000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c2))

	require.Len(t, track.overlaps, 1)
	assert.Equal(t, int64(5000), track.overlaps[0].Start)
	assert.Equal(t, int64(10000), track.overlaps[0].End)
}

func TestTrackMoveClipRejectedWhenCrossingOverlapInterior(t *testing.T) {
	t.Parallel()
	track := newTestVideoTrack()

	c1, err := NewVideoClip(1, newMockVideoReader(10.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c1))

	c2, err := NewVideoClip(2, newMockVideoReader(10.0), 5000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c2))

	c3, err := NewVideoClip(3, newMockVideoReader(10.0), 20000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c3))

	err = track.MoveClip(3, 6000)
	require.Error(t, err)
	assert.Equal(t, int64(20000), track.findClip(3).Start)
}

func TestTrackRemoveClipDropsItsOverlaps(t *testing.T) {
	t.Parallel()
	track := newTestVideoTrack()

	c1, err := NewVideoClip(1, newMockVideoReader(10.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c1))

	c2, err := NewVideoClip(2, newMockVideoReader(10.0), 5000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c2))
	require.Len(t, track.overlaps, 1)

	require.NoError(t, track.RemoveClip(2))
	assert.Empty(t, track.overlaps)
	assert.Nil(t, track.findClip(2))
}

func TestTrackReadVideoFrameAdvancesByFrameStep(t *testing.T) {
	t.Parallel()
	track := newTestVideoTrack()
	c1, err := NewVideoClip(1, newMockVideoReader(10.0), 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c1))

	img, err := track.ReadVideoFrame()
	require.NoError(t, err)
	assert.False(t, img.Empty)
	assert.Equal(t, int64(0), img.TimeStampMS)

	img, err = track.ReadVideoFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(40), img.TimeStampMS)
}

func TestTrackReadVideoFrameIsTransparentOutsideAnyClip(t *testing.T) {
	t.Parallel()
	track := newTestVideoTrack()
	c1, err := NewVideoClip(1, newMockVideoReader(1.0), 5000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, track.AddNewClip(c1))

	img, err := track.ReadVideoFrame()
	require.NoError(t, err)
	assert.True(t, img.Empty)
}
