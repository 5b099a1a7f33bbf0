package mediacore

import "context"

// VideoSourceReader is the per-file decode pipeline a video Clip owns
// (spec §4.1). Three worker threads (demux/decode/convert) cooperate
// through bounded queues internally; see source_reader_video.go.
type VideoSourceReader interface {
	Open(ctx context.Context, url string) error
	Configure(outW, outH int, format PixFmt, interp InterpMode) error
	Start(suspended bool) error
	SeekTo(seconds float64) error
	SetDirection(forward bool)
	Suspend()
	WakeUp()
	SetCacheDuration(forwardS, backwardS float64)
	ReadVideoFrame(posSeconds float64, wait bool) (img Image, eof bool, err error)
	MediaInfo() MediaInfo
	Close() error
}

// AudioSourceReader is the audio analogue (spec §4.2).
type AudioSourceReader interface {
	Open(ctx context.Context, url string) error
	Configure(channels, sampleRate int, format SampleFormat) error
	Start(suspended bool) error
	SeekTo(seconds float64) error
	SetDirection(forward bool)
	Suspend()
	WakeUp()
	SetCacheDuration(forwardS, backwardS float64)
	ReadAudioSamples(n int) (AudioBlock, error)
	MediaInfo() MediaInfo
	Close() error
}
