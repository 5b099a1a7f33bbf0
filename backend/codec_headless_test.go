//go:build headless

package backend

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/intuitionamiga/mediacore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessCodecOpenFormatReturnsVideoAndAudioStreams(t *testing.T) {
	t.Parallel()
	c := &headlessCodec{}
	infos, err := c.OpenFormat(context.Background(), "headless://synthetic")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, mediacore.StreamVideo, infos[0].Kind)
	assert.Equal(t, mediacore.StreamAudio, infos[1].Kind)
	assert.Equal(t, 640, infos[0].Width)
	assert.Equal(t, 48000, infos[1].SampleRate)
}

func TestHeadlessCodecReadPacketReachesEOFAfterDuration(t *testing.T) {
	t.Parallel()
	c := &headlessCodec{}
	_, err := c.OpenFormat(context.Background(), "headless://synthetic")
	require.NoError(t, err)

	count := 0
	for {
		_, err := c.ReadPacket(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
		if count > 1000 {
			t.Fatal("never reached EOF")
		}
	}
	assert.Equal(t, 250, count) // 10_000ms / 40ms-per-frame
}

func TestHeadlessCodecSeekRewindsVideoPosition(t *testing.T) {
	t.Parallel()
	c := &headlessCodec{}
	_, err := c.OpenFormat(context.Background(), "headless://synthetic")
	require.NoError(t, err)

	require.NoError(t, c.Seek(0, 2000))
	p, err := c.ReadPacket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2000), p.PTS)
}

func TestHeadlessCodecConvertVideoIsDeterministicByPTS(t *testing.T) {
	t.Parallel()
	c := &headlessCodec{}
	_, err := c.OpenFormat(context.Background(), "headless://synthetic")
	require.NoError(t, err)

	img1, err := c.ConvertVideo(mediacore.Frame{PTS: 400}, 8, 8, mediacore.PixFmtRGBA, mediacore.InterpBilinear)
	require.NoError(t, err)
	img2, err := c.ConvertVideo(mediacore.Frame{PTS: 400}, 8, 8, mediacore.PixFmtRGBA, mediacore.InterpBilinear)
	require.NoError(t, err)
	assert.Equal(t, img1.Buffer, img2.Buffer)

	img3, err := c.ConvertVideo(mediacore.Frame{PTS: 4000}, 8, 8, mediacore.PixFmtRGBA, mediacore.InterpBilinear)
	require.NoError(t, err)
	assert.NotEqual(t, img1.Buffer[0], img3.Buffer[0])
}

func TestHeadlessCodecConvertAudioAdvancesFirstSampleEachCall(t *testing.T) {
	t.Parallel()
	c := &headlessCodec{}
	_, err := c.OpenFormat(context.Background(), "headless://synthetic")
	require.NoError(t, err)

	blk1, err := c.ConvertAudio(mediacore.Frame{}, 2, 48000, mediacore.SampleFmtFltPlanar)
	require.NoError(t, err)
	blk2, err := c.ConvertAudio(mediacore.Frame{}, 2, 48000, mediacore.SampleFmtFltPlanar)
	require.NoError(t, err)

	assert.Equal(t, int64(0), blk1.FirstSample)
	assert.Equal(t, int64(1024), blk2.FirstSample)
	assert.Len(t, blk1.Planes, 2)
	assert.Equal(t, 1024, blk1.NumSamples)
}
