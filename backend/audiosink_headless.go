//go:build headless

package backend

import (
	"sync"
	"sync/atomic"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterAudioSinkFactory(func() mediacore.AudioSink { return &headlessSink{} })
}

// headlessSink discards written samples but tracks a queued count, the
// audio equivalent of the teacher's HeadlessVideoOutput frame counter.
type headlessSink struct {
	mu     sync.Mutex
	queued atomic.Int64
	opened bool
}

func (s *headlessSink) Open(sampleRate, channels int, format mediacore.SampleFormat) error {
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	return nil
}

func (s *headlessSink) Write(samples []float32) error {
	s.queued.Add(int64(len(samples)))
	return nil
}

func (s *headlessSink) Pause() error  { return nil }
func (s *headlessSink) Resume() error { return nil }

func (s *headlessSink) Flush() error {
	s.queued.Store(0)
	return nil
}

func (s *headlessSink) QueuedSize() int { return int(s.queued.Load()) }

func (s *headlessSink) Close() error {
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	return nil
}
