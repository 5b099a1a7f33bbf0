package mediacore

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// audioSourceReader implements AudioSourceReader (spec §4.2): the same
// three-stage shape as the video reader, simplified because PCM carries
// no spatial conversion, only resample/format remap.
type audioSourceReader struct {
	mu     sync.RWMutex
	codec  Codec
	info   MediaInfo
	stream int

	channels   int
	sampleRate int
	format     SampleFormat

	forward     atomic.Bool
	suspendedFl atomic.Bool
	quit        chan struct{}
	started     bool

	seekPending atomic.Bool
	seekTarget  atomic.Int64

	packets *boundedQueue[Packet]

	blockMu sync.Mutex
	blocks  []AudioBlock // buffered in arrival (increasing FirstSample) order

	readPosSamples atomic.Int64

	cfg     EngineConfig
	logger  Logger
	metrics *Metrics

	wg sync.WaitGroup
}

func NewAudioSourceReader(codec Codec, cfg EngineConfig, logger Logger, metrics *Metrics) AudioSourceReader {
	return &audioSourceReader{
		codec:   codec,
		cfg:     cfg,
		logger:  orNoop(logger),
		metrics: metrics,
		packets: newBoundedQueue[Packet](cfg.MaxPendingConvert),
	}
}

func (r *audioSourceReader) Open(ctx context.Context, url string) error {
	infos, err := r.codec.OpenFormat(ctx, url)
	if err != nil {
		return newErr(KindExternalFailure, "Open", url, err)
	}
	for i, in := range infos {
		if in.Kind == StreamAudio {
			r.info = in
			r.stream = i
			r.forward.Store(true)
			return nil
		}
	}
	return newErr(KindNotConfigured, "Open", "no audio stream found in "+url, nil)
}

func (r *audioSourceReader) Configure(channels, sampleRate int, format SampleFormat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return newErr(KindInvalidArgument, "Configure", "must precede Start", nil)
	}
	r.channels, r.sampleRate, r.format = channels, sampleRate, format
	return nil
}

func (r *audioSourceReader) Start(suspended bool) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.suspendedFl.Store(suspended)
	r.quit = make(chan struct{})
	r.mu.Unlock()
	if suspended {
		return nil
	}
	if err := r.codec.OpenDecoder(r.stream, false); err != nil {
		return newErr(KindExternalFailure, "Start", "decoder open", err)
	}
	r.wg.Add(2)
	go r.demuxDecodeLoop()
	go r.convertLoop()
	return nil
}

func (r *audioSourceReader) SeekTo(seconds float64) error {
	r.seekTarget.Store(int64(seconds * float64(r.sampleRateOr(44100))))
	r.seekPending.Store(true)
	return nil
}

func (r *audioSourceReader) sampleRateOr(def int) int {
	if r.info.SampleRate > 0 {
		return r.info.SampleRate
	}
	return def
}

// SetDirection flips playback direction. A real reversal re-seeks to the
// current position, which resets the resampler and discards the
// forward-buffered GOP so reverse emission starts from a clean block
// buffer (spec §4.2 "seek resets the resampler").
func (r *audioSourceReader) SetDirection(forward bool) {
	if r.forward.Swap(forward) != forward {
		_ = r.SeekTo(float64(r.readPosSamples.Load()) / float64(r.sampleRateOr(44100)))
	}
}

func (r *audioSourceReader) Suspend() { r.suspendedFl.Store(true) }
func (r *audioSourceReader) WakeUp()  { r.suspendedFl.Store(false) }

func (r *audioSourceReader) SetCacheDuration(forwardS, backwardS float64) {}

func (r *audioSourceReader) MediaInfo() MediaInfo { return r.info }

func (r *audioSourceReader) Close() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	close(r.quit)
	r.mu.Unlock()
	r.wg.Wait()
	return r.codec.Close()
}

func (r *audioSourceReader) demuxDecodeLoop() {
	defer r.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-r.quit:
			return
		default:
		}
		if r.suspendedFl.Load() {
			time.Sleep(r.cfg.WorkerPollInterval)
			continue
		}
		if r.seekPending.Load() {
			if err := r.codec.Seek(r.stream, r.seekTarget.Load()); err != nil {
				r.logger.Warn("audio seek failed", "err", err)
			}
			r.packets.clear()
			// Reset the resampler: any buffered blocks predate the new
			// position (spec §4.2 "seek resets the resampler").
			r.blockMu.Lock()
			r.blocks = nil
			r.blockMu.Unlock()
			r.seekPending.Store(false)
		}
		p, err := r.codec.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				time.Sleep(r.cfg.WorkerPollInterval)
			}
			continue
		}
		if p.IsVideo || p.StreamIdx != r.stream {
			continue
		}
		if err := r.codec.SendPacket(p); err != nil {
			r.metrics.incDrop("audio_decode_send")
			continue
		}
		f, err := r.codec.ReceiveFrame()
		if err != nil {
			continue
		}
		blk, err := r.codec.ConvertAudio(f, r.channels, r.sampleRate, r.format)
		if err != nil {
			r.metrics.incDrop("audio_convert")
			continue
		}
		r.blockMu.Lock()
		r.blocks = append(r.blocks, blk)
		if len(r.blocks) > r.cfg.MaxPendingConvert*8 {
			r.blocks = r.blocks[len(r.blocks)-r.cfg.MaxPendingConvert*8:]
		}
		r.blockMu.Unlock()
	}
}

// convertLoop is a no-op placeholder stage kept symmetric with the video
// reader's three-stage shape; conversion already happens inline above
// because audio carries no separate size/format conversion step beyond
// swr, which ConvertAudio already performs per spec §4.2.
func (r *audioSourceReader) convertLoop() {
	defer r.wg.Done()
	<-r.quit
}

// ReadAudioSamples pulls at most n samples across block boundaries
// (spec §4.2), producing one planar block tagged with the first sample's
// timestamp. Forward playback drains the buffered GOP head-first;
// reverse playback drains it tail-first, emitting whole sample-blocks in
// reverse arrival order while each block's own samples stay in their
// decoded (forward) order, per spec §4.2's reverse-playback note.
func (r *audioSourceReader) ReadAudioSamples(n int) (AudioBlock, error) {
	if r.suspendedFl.Load() {
		return AudioBlock{}, newErr(KindSuspended, "ReadAudioSamples", "reader suspended", nil)
	}
	r.blockMu.Lock()
	defer r.blockMu.Unlock()

	out := AudioBlock{Channels: r.channels, SampleRate: r.sampleRate, Format: r.format}
	out.Planes = make([][]float32, r.channels)
	for i := range out.Planes {
		out.Planes[i] = make([]float32, 0, n)
	}
	forward := r.forward.Load()
	first := int64(-1)
	consumed := 0
	for len(r.blocks) > 0 && consumed < n {
		idx := 0
		if !forward {
			idx = len(r.blocks) - 1
		}
		b := r.blocks[idx]
		take := n - consumed
		if take > b.NumSamples {
			take = b.NumSamples
		}
		start := 0
		if !forward {
			start = b.NumSamples - take
		}
		if first < 0 {
			first = b.FirstSample + int64(start)
		}
		for ch := 0; ch < r.channels && ch < len(b.Planes); ch++ {
			out.Planes[ch] = append(out.Planes[ch], b.Planes[ch][start:start+take]...)
		}
		switch {
		case take == b.NumSamples && forward:
			r.blocks = r.blocks[1:]
		case take == b.NumSamples:
			r.blocks = r.blocks[:idx]
		case forward:
			for ch := range b.Planes {
				b.Planes[ch] = b.Planes[ch][take:]
			}
			b.FirstSample += int64(take)
			b.NumSamples -= take
			r.blocks[idx] = b
		default:
			for ch := range b.Planes {
				b.Planes[ch] = b.Planes[ch][:start]
			}
			b.NumSamples -= take
			r.blocks[idx] = b
		}
		consumed += take
	}
	out.NumSamples = consumed
	out.FirstSample = first
	if consumed < n {
		// Underflow: pad with silence rather than block forever; callers
		// needing strict blocking reads should retry after a short wait.
		for ch := range out.Planes {
			out.Planes[ch] = append(out.Planes[ch], make([]float32, n-consumed)...)
		}
		out.NumSamples = n
	}
	if first >= 0 {
		r.readPosSamples.Store(first)
	}
	return out, nil
}
