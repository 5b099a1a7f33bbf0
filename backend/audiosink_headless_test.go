//go:build headless

package backend

import (
	"testing"

	"github.com/intuitionamiga/mediacore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessSinkTracksQueuedSize(t *testing.T) {
	t.Parallel()
	s := &headlessSink{}
	require.NoError(t, s.Open(48000, 2, mediacore.SampleFmtFltPlanar))

	require.NoError(t, s.Write(make([]float32, 128)))
	require.NoError(t, s.Write(make([]float32, 64)))
	assert.Equal(t, 192, s.QueuedSize())

	require.NoError(t, s.Flush())
	assert.Equal(t, 0, s.QueuedSize())
}

func TestHeadlessSinkPauseResumeAreNoops(t *testing.T) {
	t.Parallel()
	s := &headlessSink{}
	require.NoError(t, s.Open(48000, 2, mediacore.SampleFmtFltPlanar))
	assert.NoError(t, s.Pause())
	assert.NoError(t, s.Resume())
	assert.NoError(t, s.Close())
}
