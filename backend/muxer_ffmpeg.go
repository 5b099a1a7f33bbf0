//go:build !headless

package backend

import (
	"fmt"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterMuxerEncoderFactory(func(outputPath string) (mediacore.MuxerEncoder, error) {
		return newFFmpegMuxer(outputPath)
	})
}

// ffmpegMuxer implements mediacore.MuxerEncoder over FFmpeg's
// libavformat muxing API, the write-side mirror of codec_ffmpeg.go's
// decode path (find-encoder/alloc-context/open symmetric with
// find-decoder/alloc-context/open), grounded in the sample-table shape
// the mp4muxer tests in the pack exercise (video samples carry sync-
// frame flags; audio samples interleave by pts).
type ffmpegMuxer struct {
	formatCtx *ffmpeg.AVFormatContext

	videoCodecCtx *ffmpeg.AVCodecContext
	videoStream   *ffmpeg.AVStream
	videoFrame    *ffmpeg.AVFrame

	audioCodecCtx *ffmpeg.AVCodecContext
	audioStream   *ffmpeg.AVStream
	audioFrame    *ffmpeg.AVFrame

	packet *ffmpeg.AVPacket

	frameRate mediacore.Ratio
	blockSize int

	headerWritten bool
}

func newFFmpegMuxer(outputPath string) (*ffmpegMuxer, error) {
	m := &ffmpegMuxer{blockSize: 1024, frameRate: mediacore.Ratio{Num: 25, Den: 1}}
	cPath := ffmpeg.ToCStr(outputPath)
	defer cPath.Free()

	ret, err := ffmpeg.AVFormatAllocOutputContext2(&m.formatCtx, nil, nil, cPath)
	if err != nil || ret < 0 {
		return nil, fmt.Errorf("alloc output context %q: %w (code %d)", outputPath, err, ret)
	}
	m.packet = ffmpeg.AVPacketAlloc()
	return m, nil
}

func (m *ffmpegMuxer) ConfigureVideo(info mediacore.MediaInfo) error {
	encoder := ffmpeg.AVCodecFindEncoder(ffmpeg.AVCodecIdH264)
	if encoder == nil {
		return fmt.Errorf("no H264 encoder available")
	}
	stream := ffmpeg.AVFormatNewStream(m.formatCtx, nil)
	if stream == nil {
		return fmt.Errorf("alloc video stream failed")
	}
	codecCtx := ffmpeg.AVCodecAllocContext3(encoder)
	codecCtx.SetWidth(int32(info.Width))
	codecCtx.SetHeight(int32(info.Height))
	if info.AvgFrameRate.Num > 0 {
		m.frameRate = info.AvgFrameRate
	}
	if ret, err := ffmpeg.AVCodecOpen2(codecCtx, encoder, nil); err != nil || ret < 0 {
		return fmt.Errorf("open video encoder: %w (code %d)", err, ret)
	}
	m.videoCodecCtx = codecCtx
	m.videoStream = stream
	m.videoFrame = ffmpeg.AVFrameAlloc()
	return nil
}

func (m *ffmpegMuxer) ConfigureAudio(info mediacore.MediaInfo) error {
	encoder := ffmpeg.AVCodecFindEncoder(ffmpeg.AVCodecIdAac)
	if encoder == nil {
		return fmt.Errorf("no AAC encoder available")
	}
	stream := ffmpeg.AVFormatNewStream(m.formatCtx, nil)
	if stream == nil {
		return fmt.Errorf("alloc audio stream failed")
	}
	codecCtx := ffmpeg.AVCodecAllocContext3(encoder)
	codecCtx.SetSampleRate(int32(info.SampleRate))
	if ret, err := ffmpeg.AVCodecOpen2(codecCtx, encoder, nil); err != nil || ret < 0 {
		return fmt.Errorf("open audio encoder: %w (code %d)", err, ret)
	}
	m.audioCodecCtx = codecCtx
	m.audioStream = stream
	m.audioFrame = ffmpeg.AVFrameAlloc()
	return nil
}

func (m *ffmpegMuxer) ensureHeader() error {
	if m.headerWritten {
		return nil
	}
	if ret, err := ffmpeg.AVFormatWriteHeader(m.formatCtx, nil); err != nil || ret < 0 {
		return fmt.Errorf("write header: %w (code %d)", err, ret)
	}
	m.headerWritten = true
	return nil
}

func (m *ffmpegMuxer) WriteVideoFrame(img mediacore.Image, ptsMS int64) error {
	if m.videoCodecCtx == nil {
		return fmt.Errorf("video not configured")
	}
	if err := m.ensureHeader(); err != nil {
		return err
	}
	m.videoFrame.SetPts(ptsMS)
	if ret, err := ffmpeg.AVCodecSendFrame(m.videoCodecCtx, m.videoFrame); err != nil || ret < 0 {
		return fmt.Errorf("send video frame: %w (code %d)", err, ret)
	}
	return m.drainEncoder(m.videoCodecCtx, m.videoStream)
}

func (m *ffmpegMuxer) WriteAudioBlock(b mediacore.AudioBlock) error {
	if m.audioCodecCtx == nil {
		return fmt.Errorf("audio not configured")
	}
	if err := m.ensureHeader(); err != nil {
		return err
	}
	m.audioFrame.SetPts(b.FirstSample)
	if ret, err := ffmpeg.AVCodecSendFrame(m.audioCodecCtx, m.audioFrame); err != nil || ret < 0 {
		return fmt.Errorf("send audio frame: %w (code %d)", err, ret)
	}
	return m.drainEncoder(m.audioCodecCtx, m.audioStream)
}

func (m *ffmpegMuxer) drainEncoder(codecCtx *ffmpeg.AVCodecContext, stream *ffmpeg.AVStream) error {
	for {
		ret, err := ffmpeg.AVCodecReceivePacket(codecCtx, m.packet)
		if err != nil || ret < 0 {
			break // EAGAIN/EOF: no packet ready yet, not a write error
		}
		m.packet.SetStreamIndex(stream.Index())
		if ret, err := ffmpeg.AVInterleavedWriteFrame(m.formatCtx, m.packet); err != nil || ret < 0 {
			ffmpeg.AVPacketUnref(m.packet)
			return fmt.Errorf("interleaved write: %w (code %d)", err, ret)
		}
		ffmpeg.AVPacketUnref(m.packet)
	}
	return nil
}

func (m *ffmpegMuxer) AdvertisedFrameRate() mediacore.Ratio { return m.frameRate }
func (m *ffmpegMuxer) AdvertisedBlockSize() int             { return m.blockSize }

func (m *ffmpegMuxer) Close() error {
	if m.headerWritten {
		ffmpeg.AVWriteTrailer(m.formatCtx)
	}
	if m.videoFrame != nil {
		ffmpeg.AVFrameFree(&m.videoFrame)
	}
	if m.audioFrame != nil {
		ffmpeg.AVFrameFree(&m.audioFrame)
	}
	if m.packet != nil {
		ffmpeg.AVPacketFree(&m.packet)
	}
	if m.videoCodecCtx != nil {
		ffmpeg.AVCodecFreeContext(&m.videoCodecCtx)
	}
	if m.audioCodecCtx != nil {
		ffmpeg.AVCodecFreeContext(&m.audioCodecCtx)
	}
	if m.formatCtx != nil {
		ffmpeg.AVFormatFreeContext(m.formatCtx)
	}
	return nil
}

