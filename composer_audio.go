package mediacore

import (
	"sync"
	"sync/atomic"
	"time"
)

type probeStage int

const (
	probeSteady    probeStage = 0
	probeFadeIn    probeStage = 1
	probeFadeOut   probeStage = -1
)

// AudioComposer mixes N audio tracks into one PCM stream via a frame
// summing mixer plus a composer-wide AudioEffectFilter, with probe-mode
// scrub handling (spec §4.6 "Audio mixing worker loop", "Probe mode").
// Grounded on pipelined-audio's frame-based double-buffered Mixer and on
// grimnir_radio's crossfade progress-ratio pattern for the probe fade.
type AudioComposer struct {
	mu     sync.Mutex
	Geometry OutputGeometry
	tracks []*Track

	postMix Filter // composer-wide AudioEffectFilter

	started atomic.Bool
	quit    chan struct{}
	wg      sync.WaitGroup

	seekPending atomic.Bool
	seekTarget  atomic.Int64
	probeMode   atomic.Bool

	stage       probeStage
	stageMu     sync.Mutex
	probeSince  time.Time
	probePos    int64
	lastProbeAt time.Time
	fadeOutDone bool

	outQueue *boundedQueue[AudioBlock]

	cfg     EngineConfig
	logger  Logger
	metrics *Metrics
}

func NewAudioComposer(cfg EngineConfig, logger Logger, metrics *Metrics) *AudioComposer {
	return &AudioComposer{
		outQueue: newBoundedQueue[AudioBlock](cfg.OutputQueueCapacity),
		cfg:      cfg,
		logger:   orNoop(logger),
		metrics:  metrics,
		stage:    probeSteady,
	}
}

func (c *AudioComposer) Configure(g OutputGeometry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started.Load() {
		return newErr(KindInvalidArgument, "Configure", "audio composer already started", nil)
	}
	c.Geometry = g
	return nil
}

func (c *AudioComposer) SetPostMixFilter(f Filter) {
	c.mu.Lock()
	c.postMix = f
	c.mu.Unlock()
}

func (c *AudioComposer) AddTrack(t *Track) {
	wasStarted := c.started.Load()
	if wasStarted {
		c.Stop()
	}
	c.mu.Lock()
	c.tracks = append(c.tracks, t)
	c.mu.Unlock()
	if wasStarted {
		c.Start()
	}
}

func (c *AudioComposer) RemoveTrack(id ID) {
	wasStarted := c.started.Load()
	if wasStarted {
		c.Stop()
	}
	c.mu.Lock()
	for i, tr := range c.tracks {
		if tr.ID == id {
			c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if wasStarted {
		c.Start()
	}
}

func (c *AudioComposer) Start() {
	if c.started.Swap(true) {
		return
	}
	c.quit = make(chan struct{})
	c.wg.Add(1)
	go c.mixLoop()
}

func (c *AudioComposer) Stop() {
	if !c.started.Swap(false) {
		return
	}
	close(c.quit)
	c.wg.Wait()
}

// SeekTo in probeMode triggers the probe-mode fade state machine (spec
// §4.6 "Probe mode"); two probe seeks within probe_duration collapse
// into one.
func (c *AudioComposer) SeekTo(posMS int64, probeMode bool) {
	if probeMode {
		c.stageMu.Lock()
		now := timeNow()
		if !c.lastProbeAt.IsZero() && now.Sub(c.lastProbeAt) < time.Duration(c.cfg.ProbeDurationMS)*time.Millisecond {
			c.probePos = posMS
			c.lastProbeAt = now
			c.stageMu.Unlock()
			c.seekTarget.Store(posMS)
			c.seekPending.Store(true)
			return
		}
		c.stage = probeFadeIn
		c.fadeOutDone = false
		c.probeSince = now
		c.lastProbeAt = now
		c.probePos = posMS
		c.stageMu.Unlock()
		c.probeMode.Store(true)
	}
	c.seekTarget.Store(posMS)
	c.seekPending.Store(true)
}

// timeNow is indirected so tests can stub it if ever needed; wraps
// time.Now directly otherwise.
func timeNow() time.Time { return time.Now() }

func (c *AudioComposer) ReadAudioSamples(nonBlocking bool) (AudioBlock, bool) {
	for {
		blk, ok := c.outQueue.tryPop()
		if ok {
			return blk, true
		}
		if nonBlocking {
			return AudioBlock{}, false
		}
		time.Sleep(c.cfg.WorkerPollInterval)
	}
}

// mixLoop is the audio mixing worker (spec §4.6 "Audio mixing worker loop").
func (c *AudioComposer) mixLoop() {
	defer c.wg.Done()
	blockSize := c.cfg.AudioBlockSize
	if blockSize <= 0 {
		blockSize = 1024
	}
	for {
		select {
		case <-c.quit:
			return
		default:
		}

		c.handleProbeTransitions()

		if c.seekPending.CompareAndSwap(true, false) {
			pos := c.seekTarget.Load()
			c.mu.Lock()
			for _, tr := range c.tracks {
				tr.SeekTo(pos)
			}
			c.mu.Unlock()
		}

		if c.probeStageIs(probeFadeOut) && !c.fadeOutPending() {
			// Already rang the terminal fade-out block to silence: stop
			// reading more samples until the next probe seek.
			time.Sleep(c.cfg.WorkerPollInterval)
			continue
		}

		if c.outQueue.len() >= c.cfg.OutputQueueCapacity {
			time.Sleep(c.cfg.WorkerPollInterval)
			continue
		}

		mixed := c.mixOneBlock(blockSize)
		if from, to, apply := c.probeRamp(); apply {
			rampBlock(mixed, from, to)
		}

		c.mu.Lock()
		postMix := c.postMix
		c.mu.Unlock()
		if postMix != nil {
			mixed = postMix.ApplyAudio(mixed, 0)
		}
		c.outQueue.tryPush(mixed)
		c.metrics.setQueueDepth("composer_audio", c.outQueue.len())
	}
}

func (c *AudioComposer) probeStageIs(s probeStage) bool {
	c.stageMu.Lock()
	defer c.stageMu.Unlock()
	return c.stage == s
}

// probeRamp reports the per-block gain ramp endpoints for the current
// probe stage: fade-in ramps 0->1, fade-out ramps 1->0, steady applies no
// ramp at all (spec §4.6 "Probe mode").
func (c *AudioComposer) probeRamp() (from, to float32, apply bool) {
	c.stageMu.Lock()
	defer c.stageMu.Unlock()
	switch c.stage {
	case probeFadeIn:
		return 0, 1, true
	case probeFadeOut:
		return 1, 0, true
	default:
		return 1, 1, false
	}
}

// fadeOutPending reports whether the terminal fade-out block still needs
// to be mixed and ramped to silence, consuming the flag so it fires
// exactly once per probe before mixLoop goes quiet.
func (c *AudioComposer) fadeOutPending() bool {
	c.stageMu.Lock()
	defer c.stageMu.Unlock()
	if c.stage != probeFadeOut || c.fadeOutDone {
		return false
	}
	c.fadeOutDone = true
	return true
}

// handleProbeTransitions advances the probe-mode stage machine: fade-in
// lasts exactly one iteration (Open Question #2 in DESIGN.md) before
// settling to steady, then after probe_duration_ms returns to fade-out.
func (c *AudioComposer) handleProbeTransitions() {
	if !c.probeMode.Load() {
		return
	}
	c.stageMu.Lock()
	defer c.stageMu.Unlock()
	switch c.stage {
	case probeFadeIn:
		c.stage = probeSteady
	case probeSteady:
		if timeNow().Sub(c.probeSince) > time.Duration(c.cfg.ProbeDurationMS)*time.Millisecond {
			c.stage = probeFadeOut
			c.probeMode.Store(false)
		}
	}
}

// mixOneBlock reads one fixed-size block from every track and sums it
// (normalize=0: no clamp-free averaging, matching an `amix` graph with
// normalize disabled per spec §4.6 "Mixer construction (audio)").
func (c *AudioComposer) mixOneBlock(blockSize int) AudioBlock {
	c.mu.Lock()
	tracks := append([]*Track(nil), c.tracks...)
	geom := c.Geometry
	c.mu.Unlock()

	out := AudioBlock{Channels: geom.Channels, SampleRate: geom.SampleRate, Format: geom.SampleFormat, NumSamples: blockSize}
	out.Planes = make([][]float32, geom.Channels)
	for i := range out.Planes {
		out.Planes[i] = make([]float32, blockSize)
	}
	for _, tr := range tracks {
		if tr.Muted {
			tr.ReadAudioSamples(blockSize)
			continue
		}
		blk, err := tr.ReadAudioSamples(blockSize)
		if err != nil {
			continue
		}
		for ch := 0; ch < geom.Channels && ch < len(blk.Planes); ch++ {
			for i := 0; i < blockSize && i < len(blk.Planes[ch]); i++ {
				out.Planes[ch][i] += blk.Planes[ch][i]
			}
		}
	}
	return out
}

func scaleBlock(b AudioBlock, gain float32) {
	for ch := range b.Planes {
		for i := range b.Planes[ch] {
			b.Planes[ch][i] *= gain
		}
	}
}

// rampBlock applies a linear per-sample gain ramp from `from` to `to`
// across the block, the same progress-ratio fade curve grimnir_radio's
// crossfade uses (spec §4.6 "Probe mode").
func rampBlock(b AudioBlock, from, to float32) {
	n := b.NumSamples
	if n <= 1 {
		scaleBlock(b, to)
		return
	}
	for i := 0; i < n; i++ {
		p := float32(i) / float32(n-1)
		gain := from + (to-from)*p
		for ch := range b.Planes {
			if i < len(b.Planes[ch]) {
				b.Planes[ch][i] *= gain
			}
		}
	}
}
