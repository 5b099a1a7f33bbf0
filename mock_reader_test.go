package mediacore

import "context"

// mockVideoReader is a minimal VideoSourceReader stand-in for clip/overlap/
// track tests that need a reader without driving the real decode pipeline.
type mockVideoReader struct {
	info       MediaInfo
	frames     map[int64]Image // keyed by rounded millisecond position
	seekTo     float64
	seekCalled bool
	suspended  bool
}

func newMockVideoReader(durationS float64) *mockVideoReader {
	return &mockVideoReader{
		info:   MediaInfo{Kind: StreamVideo, DurationS: durationS, Width: 4, Height: 4, AvgFrameRate: Ratio{Num: 25, Den: 1}},
		frames: map[int64]Image{},
	}
}

func (m *mockVideoReader) Open(ctx context.Context, url string) error { return nil }
func (m *mockVideoReader) Configure(outW, outH int, format PixFmt, interp InterpMode) error {
	return nil
}
func (m *mockVideoReader) Start(suspended bool) error { return nil }
func (m *mockVideoReader) SeekTo(seconds float64) error {
	m.seekTo = seconds
	m.seekCalled = true
	return nil
}
func (m *mockVideoReader) SetDirection(forward bool)                     {}
func (m *mockVideoReader) Suspend()                                      { m.suspended = true }
func (m *mockVideoReader) WakeUp()                                       { m.suspended = false }
func (m *mockVideoReader) SetCacheDuration(forwardS, backwardS float64)  {}
func (m *mockVideoReader) ReadVideoFrame(posSeconds float64, wait bool) (Image, bool, error) {
	posMS := int64(posSeconds * 1000)
	eof := posSeconds*1000 >= m.info.DurationS*1000
	if img, ok := m.frames[posMS]; ok {
		return img, eof, nil
	}
	return Image{Width: m.info.Width, Height: m.info.Height, TimeStampMS: posMS}, eof, nil
}
func (m *mockVideoReader) MediaInfo() MediaInfo { return m.info }
func (m *mockVideoReader) Close() error         { return nil }

// mockAudioReader is the audio analogue of mockVideoReader.
type mockAudioReader struct {
	info       MediaInfo
	samples    AudioBlock
	seekTo     float64
	seekCalled bool
}

func newMockAudioReader(durationS float64) *mockAudioReader {
	return &mockAudioReader{
		info: MediaInfo{Kind: StreamAudio, DurationS: durationS, Channels: 2, SampleRate: 48000},
	}
}

func (m *mockAudioReader) Open(ctx context.Context, url string) error             { return nil }
func (m *mockAudioReader) Configure(channels, sampleRate int, format SampleFormat) error {
	return nil
}
func (m *mockAudioReader) Start(suspended bool) error { return nil }
func (m *mockAudioReader) SeekTo(seconds float64) error {
	m.seekTo = seconds
	m.seekCalled = true
	return nil
}
func (m *mockAudioReader) SetDirection(forward bool)                    {}
func (m *mockAudioReader) Suspend()                                     {}
func (m *mockAudioReader) WakeUp()                                      {}
func (m *mockAudioReader) SetCacheDuration(forwardS, backwardS float64) {}
func (m *mockAudioReader) ReadAudioSamples(n int) (AudioBlock, error) {
	return AudioBlock{Channels: m.info.Channels, SampleRate: m.info.SampleRate, NumSamples: n}, nil
}
func (m *mockAudioReader) MediaInfo() MediaInfo { return m.info }
func (m *mockAudioReader) Close() error         { return nil }
