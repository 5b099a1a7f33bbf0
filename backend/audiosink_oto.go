//go:build !headless && !alsa

package backend

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/oto/v3"
	"github.com/smallnest/ringbuffer"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterAudioSinkFactory(func() mediacore.AudioSink { return &otoSink{} })
}

// otoSink implements mediacore.AudioSink over ebitengine/oto v3,
// adapted from the teacher's OtoPlayer: the teacher pulls samples from
// a SoundChip's ring on every Read, here the push-style mediacore.
// AudioSink.Write feeds a smallnest/ringbuffer byte ring that Read
// drains instead, keeping the same oto.Player-as-io.Reader shape.
type otoSink struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	ring   *ringbuffer.RingBuffer
	paused bool
}

func (s *otoSink) Open(sampleRate, channels int, format mediacore.SampleFormat) error {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return err
	}
	<-ready
	s.ctx = ctx
	s.ring = ringbuffer.New(sampleRate * channels * 4 * 2).SetBlocking(false)
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return nil
}

// Read implements io.Reader for oto.Player's pull model, draining the
// ring and padding with silence on underflow exactly as the teacher's
// OtoPlayer.Read zero-fills when its chip pointer is nil.
func (s *otoSink) Read(p []byte) (int, error) {
	n, _ := s.ring.Read(p)
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (s *otoSink) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring == nil {
		return newSinkErr("otoSink.Write", "not open")
	}
	buf := (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[: len(samples)*4 : len(samples)*4]
	_, err := s.ring.Write(buf)
	return err
}

func (s *otoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
	s.paused = true
	return nil
}

func (s *otoSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Play()
	}
	s.paused = false
	return nil
}

func (s *otoSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring != nil {
		s.ring.Reset()
	}
	return nil
}

func (s *otoSink) QueuedSize() int {
	if s.ring == nil {
		return 0
	}
	return s.ring.Length() / 4
}

func (s *otoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Close()
	}
	return nil
}

func newSinkErr(op, detail string) error {
	return &sinkError{op: op, detail: detail}
}

type sinkError struct{ op, detail string }

func (e *sinkError) Error() string { return e.op + ": " + e.detail }
