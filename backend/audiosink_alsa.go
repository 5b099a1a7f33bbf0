//go:build !headless && alsa

package backend

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>

static snd_pcm_t* mediacore_openPCM(const char* device, int* err) {
    snd_pcm_t* handle;
    *err = snd_pcm_open(&handle, device, SND_PCM_STREAM_PLAYBACK, 0);
    return handle;
}

static int mediacore_setupPCM(snd_pcm_t* handle, unsigned int rate, unsigned int channels) {
    snd_pcm_hw_params_t* params;
    int err;

    snd_pcm_hw_params_alloca(&params);
    err = snd_pcm_hw_params_any(handle, params);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_access(handle, params, SND_PCM_ACCESS_RW_INTERLEAVED);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_format(handle, params, SND_PCM_FORMAT_FLOAT);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_channels(handle, params, channels);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_rate(handle, params, rate, 0);
    if (err < 0) return err;

    err = snd_pcm_hw_params(handle, params);
    if (err < 0) return err;

    return snd_pcm_prepare(handle);
}

static int mediacore_writePCM(snd_pcm_t* handle, float* buffer, int frames) {
    return snd_pcm_writei(handle, buffer, frames);
}

static void mediacore_closePCM(snd_pcm_t* handle) {
    if (handle != NULL) {
        snd_pcm_drain(handle);
        snd_pcm_close(handle);
    }
}
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterAudioSinkFactory(func() mediacore.AudioSink { return &alsaSink{} })
}

// alsaSink implements mediacore.AudioSink directly over ALSA, adapted
// from the teacher's ALSAPlayer (open/setup/writei/drain-close
// sequence), generalized from a hardcoded mono SAMPLE_RATE to the
// channels/sampleRate Open receives.
type alsaSink struct {
	mu       sync.Mutex
	handle   *C.snd_pcm_t
	channels int
	playing  bool
}

func (s *alsaSink) Open(sampleRate, channels int, format mediacore.SampleFormat) error {
	var cerr C.int
	handle := C.mediacore_openPCM(C.CString("default"), &cerr)
	if cerr < 0 {
		return fmt.Errorf("open PCM device: %s", C.GoString(C.snd_strerror(cerr)))
	}
	if ret := C.mediacore_setupPCM(handle, C.uint(sampleRate), C.uint(channels)); ret < 0 {
		C.mediacore_closePCM(handle)
		return fmt.Errorf("setup PCM: %s", C.GoString(C.snd_strerror(ret)))
	}
	s.handle = handle
	s.channels = channels
	s.playing = true
	return nil
}

func (s *alsaSink) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || len(samples) == 0 {
		return nil
	}
	frames := int(C.mediacore_writePCM(s.handle, (*C.float)(unsafe.Pointer(&samples[0])), C.int(len(samples)/max(s.channels, 1))))
	if frames < 0 {
		if frames == -int(C.EPIPE) {
			C.snd_pcm_prepare(s.handle)
			frames = int(C.mediacore_writePCM(s.handle, (*C.float)(unsafe.Pointer(&samples[0])), C.int(len(samples)/max(s.channels, 1))))
		}
		if frames < 0 {
			return fmt.Errorf("ALSA write failed: code %d", frames)
		}
	}
	return nil
}

func (s *alsaSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

func (s *alsaSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	return nil
}

func (s *alsaSink) Flush() error { return nil }

func (s *alsaSink) QueuedSize() int { return 0 }

func (s *alsaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.playing = false
		C.mediacore_closePCM(s.handle)
		s.handle = nil
	}
	return nil
}
