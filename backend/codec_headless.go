//go:build headless

package backend

import (
	"context"
	"io"
	"math"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterCodecFactory(func() mediacore.Codec { return &headlessCodec{} })
}

// headlessCodec is a synthetic, deterministic Codec for tests and CI
// that never link against a real decode library: a 10s, 25fps, 48kHz
// stereo source whose video frames are a flat colour keyed off frame
// index and whose audio is a pure sine tone, mirroring the teacher's
// HeadlessVideoOutput/HeadlessAudioOutput no-op backends.
type headlessCodec struct {
	durationMS int64
	frameRate  mediacore.Ratio
	sampleRate int
	channels   int

	videoPos int64 // next packet PTS to hand out, ms
	audioPos int64 // next packet PTS, in samples
	width    int
	height   int
}

func (c *headlessCodec) OpenFormat(ctx context.Context, url string) ([]mediacore.MediaInfo, error) {
	c.durationMS = 10_000
	c.frameRate = mediacore.Ratio{Num: 25, Den: 1}
	c.sampleRate = 48000
	c.channels = 2
	c.width, c.height = 640, 360
	return []mediacore.MediaInfo{
		{Kind: mediacore.StreamVideo, DurationS: 10, TimeBase: mediacore.Ratio{Num: 1, Den: 1000},
			Width: c.width, Height: c.height, PixFmt: mediacore.PixFmtRGBA, AvgFrameRate: c.frameRate},
		{Kind: mediacore.StreamAudio, DurationS: 10, TimeBase: mediacore.Ratio{Num: 1, Den: c.sampleRate},
			Channels: c.channels, SampleRate: c.sampleRate, SampleFmt: mediacore.SampleFmtFltPlanar},
	}, nil
}

func (c *headlessCodec) Close() error { return nil }

func (c *headlessCodec) Seek(streamIdx int, ts int64) error {
	if streamIdx == 0 {
		c.videoPos = ts
	} else {
		c.audioPos = ts * int64(c.sampleRate) / 1000
	}
	return nil
}

func (c *headlessCodec) ReadPacket(ctx context.Context) (mediacore.Packet, error) {
	frameMS := int64(1000 / c.frameRate.Float())
	if c.videoPos >= c.durationMS {
		return mediacore.Packet{}, io.EOF
	}
	p := mediacore.Packet{PTS: c.videoPos, StreamIdx: 0, IsVideo: true, IsKeyFrame: (c.videoPos/frameMS)%25 == 0}
	c.videoPos += frameMS
	return p, nil
}

func (c *headlessCodec) OpenDecoder(streamIdx int, hwAccel bool) error { return nil }
func (c *headlessCodec) SendPacket(p mediacore.Packet) error           { return nil }

func (c *headlessCodec) ReceiveFrame() (mediacore.Frame, error) {
	return mediacore.Frame{PTS: c.videoPos}, nil
}

func (c *headlessCodec) FlushDecoder() error { return nil }

// ConvertVideo paints a flat colour derived from the frame index so
// successive snapshots are visibly distinct without any real decode.
func (c *headlessCodec) ConvertVideo(f mediacore.Frame, outW, outH int, outFmt mediacore.PixFmt, interp mediacore.InterpMode) (mediacore.Image, error) {
	buf := make([]byte, outW*outH*4)
	shade := byte((f.PTS / 40) % 256)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = shade, shade/2, 255-shade, 255
	}
	return mediacore.Image{Buffer: buf, Width: outW, Height: outH, Format: mediacore.PixFmtRGBA, TimeStampMS: f.PTS}, nil
}

// ConvertAudio synthesizes a 440Hz sine tone, deterministic in the
// sample position so repeated reads of the same range agree exactly.
func (c *headlessCodec) ConvertAudio(f mediacore.Frame, channels, sampleRate int, fmtOut mediacore.SampleFormat) (mediacore.AudioBlock, error) {
	const blockSize = 1024
	planes := make([][]float32, channels)
	for ch := range planes {
		plane := make([]float32, blockSize)
		for i := 0; i < blockSize; i++ {
			t := float64(c.audioPos+int64(i)) / float64(sampleRate)
			plane[i] = float32(0.2 * math.Sin(2*math.Pi*440*t))
		}
		planes[ch] = plane
	}
	block := mediacore.AudioBlock{Planes: planes, Channels: channels, SampleRate: sampleRate, Format: fmtOut, NumSamples: blockSize, FirstSample: c.audioPos}
	c.audioPos += blockSize
	return block, nil
}
