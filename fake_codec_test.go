package mediacore

import (
	"context"
	"io"
	"sync"
)

// fakeCodec is a minimal Codec double: it demuxes a synthetic stream of
// fixed-duration packets then reports EOF forever, and its decode/convert
// steps are pass-through enough to exercise source_reader_video.go and
// source_reader_audio.go's worker loops without real media.
type fakeCodec struct {
	mu sync.Mutex

	streamKind StreamKind // stream reported by OpenFormat
	durationS  float64

	frameDurMS int64
	maxFrames  int

	nextPTS  int64
	emitted  int
	lastSent Packet

	seekCount int
}

func newFakeVideoCodec(maxFrames int) *fakeCodec {
	return &fakeCodec{streamKind: StreamVideo, durationS: 10, frameDurMS: 40, maxFrames: maxFrames}
}

func newFakeAudioCodec(maxFrames int) *fakeCodec {
	return &fakeCodec{streamKind: StreamAudio, durationS: 10, frameDurMS: 20, maxFrames: maxFrames}
}

func (c *fakeCodec) OpenFormat(ctx context.Context, url string) ([]MediaInfo, error) {
	info := MediaInfo{
		Kind:      c.streamKind,
		DurationS: c.durationS,
		TimeBase:  Ratio{Num: 1, Den: 1000},
	}
	if c.streamKind == StreamVideo {
		info.Width, info.Height = 64, 64
		info.AvgFrameRate = Ratio{Num: 25, Den: 1}
	} else {
		info.Channels, info.SampleRate = 2, 48000
	}
	return []MediaInfo{info}, nil
}

func (c *fakeCodec) Close() error { return nil }

func (c *fakeCodec) Seek(streamIdx int, ts int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekCount++
	c.nextPTS = ts
	c.emitted = 0
	return nil
}

func (c *fakeCodec) ReadPacket(ctx context.Context) (Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitted >= c.maxFrames {
		return Packet{}, io.EOF
	}
	p := Packet{
		Data:      []byte{0},
		PTS:       c.nextPTS,
		StreamIdx: 0,
		IsVideo:   c.streamKind == StreamVideo,
	}
	c.nextPTS += c.frameDurMS
	c.emitted++
	return p, nil
}

func (c *fakeCodec) OpenDecoder(streamIdx int, hwAccel bool) error { return nil }

func (c *fakeCodec) SendPacket(p Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent = p
	return nil
}

func (c *fakeCodec) ReceiveFrame() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Frame{PTS: c.lastSent.PTS, Dur: c.frameDurMS}, nil
}

func (c *fakeCodec) FlushDecoder() error { return nil }

func (c *fakeCodec) ConvertVideo(f Frame, outW, outH int, outFmt PixFmt, interp InterpMode) (Image, error) {
	return Image{
		Buffer:      make([]byte, outW*outH*4),
		Width:       outW,
		Height:      outH,
		Format:      outFmt,
		TimeStampMS: f.PTS,
	}, nil
}

func (c *fakeCodec) ConvertAudio(f Frame, channels, sampleRate int, format SampleFormat) (AudioBlock, error) {
	const samplesPerBlock = 32
	planes := make([][]float32, channels)
	for ch := range planes {
		plane := make([]float32, samplesPerBlock)
		for i := range plane {
			plane[i] = 0.5
		}
		planes[ch] = plane
	}
	return AudioBlock{
		Planes:      planes,
		Channels:    channels,
		SampleRate:  sampleRate,
		Format:      format,
		FirstSample: f.PTS,
		NumSamples:  samplesPerBlock,
	}, nil
}
