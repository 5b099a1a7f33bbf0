package mediacore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudioReader(t *testing.T, codec Codec) AudioSourceReader {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.WorkerPollInterval = time.Millisecond
	cfg.MaxPendingConvert = 8
	r := NewAudioSourceReader(codec, cfg, NewDefaultLogger(), NewMetrics(nil))
	require.NoError(t, r.Open(context.Background(), "fake://audio"))
	return r
}

func TestAudioSourceReaderOpenFindsAudioStream(t *testing.T) {
	t.Parallel()
	r := newTestAudioReader(t, newFakeAudioCodec(10))
	assert.Equal(t, StreamAudio, r.MediaInfo().Kind)
}

func TestAudioSourceReaderOpenErrorsWhenNoAudioStream(t *testing.T) {
	t.Parallel()
	cfg := DefaultEngineConfig()
	r := NewAudioSourceReader(newFakeVideoCodec(10), cfg, NewDefaultLogger(), NewMetrics(nil))
	err := r.Open(context.Background(), "fake://video-only")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotConfigured))
}

func TestAudioSourceReaderConfigureRejectedAfterStart(t *testing.T) {
	t.Parallel()
	r := newTestAudioReader(t, newFakeAudioCodec(10))
	require.NoError(t, r.Configure(2, 48000, SampleFmtFltPlanar))
	require.NoError(t, r.Start(false))
	defer r.Close()

	err := r.Configure(1, 44100, SampleFmtFltPlanar)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidArgument))
}

func TestAudioSourceReaderReadAudioSamplesPadsWithSilenceWhenEmpty(t *testing.T) {
	t.Parallel()
	r := newTestAudioReader(t, newFakeAudioCodec(10))
	require.NoError(t, r.Configure(2, 48000, SampleFmtFltPlanar))
	// Never started: no blocks will ever arrive, so reads must pad rather
	// than block.
	blk, err := r.ReadAudioSamples(16)
	require.NoError(t, err)
	assert.Equal(t, 16, blk.NumSamples)
	for _, plane := range blk.Planes {
		for _, s := range plane {
			assert.Equal(t, float32(0), s)
		}
	}
}

func TestAudioSourceReaderProducesRealSamplesAfterStart(t *testing.T) {
	t.Parallel()
	r := newTestAudioReader(t, newFakeAudioCodec(20))
	require.NoError(t, r.Configure(2, 48000, SampleFmtFltPlanar))
	require.NoError(t, r.Start(false))
	defer r.Close()

	assert.Eventually(t, func() bool {
		blk, err := r.ReadAudioSamples(16)
		if err != nil {
			return false
		}
		for _, s := range blk.Planes[0] {
			if s != 0 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestAudioSourceReaderSuspendReturnsSuspendedError(t *testing.T) {
	t.Parallel()
	r := newTestAudioReader(t, newFakeAudioCodec(10))
	require.NoError(t, r.Configure(2, 48000, SampleFmtFltPlanar))
	require.NoError(t, r.Start(false))
	defer r.Close()

	r.Suspend()
	_, err := r.ReadAudioSamples(16)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSuspended))
}

func TestAudioSourceReaderCloseStopsWorkersCleanly(t *testing.T) {
	t.Parallel()
	r := newTestAudioReader(t, newFakeAudioCodec(10))
	require.NoError(t, r.Configure(2, 48000, SampleFmtFltPlanar))
	require.NoError(t, r.Start(false))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}
