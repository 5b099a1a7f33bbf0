package mediacore

import (
	"sync"
	"sync/atomic"
	"time"
)

// outputUnit is one item placed onto a Composer's bounded output queue:
// a blended frame plus its correlative-frame taps (spec §2, §GLOSSARY
// "Correlative frame").
type outputUnit struct {
	Image Image
	Taps  []CorrelativeFrame
}

// Composer reduces N video tracks into one image via alpha blending,
// running a background mixing worker with a bounded result queue (spec
// §3 "Composer", §4.6). Grounded on the teacher's video_compositor.go
// ticker-driven refreshLoop/composite shape.
type Composer struct {
	mu sync.Mutex

	Geometry OutputGeometry
	tracks   []*Track

	blender Blender

	started   atomic.Bool
	quit      chan struct{}
	wg        sync.WaitGroup
	pollEvery time.Duration

	seekPending atomic.Bool
	seekTarget  atomic.Int64
	inSeeking   atomic.Bool
	afterSeek   atomic.Bool

	forward atomic.Bool

	outQueue *boundedQueue[outputUnit]

	seekingFlash atomic.Pointer[outputUnit]

	debugTaps chan CorrelativeFrame // non-nil only once a caller subscribes

	logger  Logger
	metrics *Metrics
	cfg     EngineConfig
}

// NewComposer constructs an unconfigured video composer.
func NewComposer(cfg EngineConfig, logger Logger, metrics *Metrics) *Composer {
	return &Composer{
		pollEvery: cfg.WorkerPollInterval,
		outQueue:  newBoundedQueue[outputUnit](cfg.OutputQueueCapacity),
		logger:    orNoop(logger),
		metrics:   metrics,
		cfg:       cfg,
		blender:   NewBlender(),
	}
}

// Configure sets the output geometry; fails once the worker has started
// (spec §4.6 "configure").
func (c *Composer) Configure(g OutputGeometry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started.Load() {
		return newErr(KindInvalidArgument, "Configure", "composer already started", nil)
	}
	c.Geometry = g
	c.forward.Store(true)
	return nil
}

// AddTrack stops the worker, inserts the track at the end (or after
// insertAfter), re-seeks every surviving track, and restarts (spec §4.6).
func (c *Composer) AddTrack(t *Track, insertAfter ID) {
	c.withWorkerStopped(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if insertAfter == UnattachedID {
			c.tracks = append(c.tracks, t)
		} else {
			idx := len(c.tracks)
			for i, tr := range c.tracks {
				if tr.ID == insertAfter {
					idx = i + 1
					break
				}
			}
			c.tracks = append(c.tracks[:idx], append([]*Track{t}, c.tracks[idx:]...)...)
		}
		pos := int64(0)
		for _, tr := range c.tracks {
			tr.SeekTo(pos)
		}
	})
}

func (c *Composer) RemoveTrack(id ID) {
	c.withWorkerStopped(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, tr := range c.tracks {
			if tr.ID == id {
				c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
				break
			}
		}
	})
}

// ChangeTrackViewOrder reorders tracks without disturbing the worker
// (spec §4.6).
func (c *Composer) ChangeTrackViewOrder(target, insertAfter ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var moved *Track
	idx := -1
	for i, tr := range c.tracks {
		if tr.ID == target {
			moved = tr
			idx = i
			break
		}
	}
	if moved == nil {
		return
	}
	c.tracks = append(c.tracks[:idx], c.tracks[idx+1:]...)
	insertIdx := len(c.tracks)
	for i, tr := range c.tracks {
		if tr.ID == insertAfter {
			insertIdx = i + 1
			break
		}
	}
	c.tracks = append(c.tracks[:insertIdx], append([]*Track{moved}, c.tracks[insertIdx:]...)...)
}

func (c *Composer) withWorkerStopped(f func()) {
	wasStarted := c.started.Load()
	if wasStarted {
		c.Stop()
	}
	f()
	if wasStarted {
		c.Start()
	}
}

// SetDirection stops the worker, propagates to every track, re-seeks,
// restarts (spec §4.6).
func (c *Composer) SetDirection(forward bool) {
	c.withWorkerStopped(func() {
		c.forward.Store(forward)
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, tr := range c.tracks {
			tr.SetDirection(forward)
		}
	})
}

// Duration is max over track durations (Testable Property 4).
func (c *Composer) Duration() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var max int64
	for _, tr := range c.tracks {
		if d := tr.Duration(); d > max {
			max = d
		}
	}
	return max
}

// Start launches the mixing worker.
func (c *Composer) Start() {
	if c.started.Swap(true) {
		return
	}
	c.quit = make(chan struct{})
	c.wg.Add(1)
	go c.mixLoop()
}

// Stop cancels and joins the mixing worker.
func (c *Composer) Stop() {
	if !c.started.Swap(false) {
		return
	}
	close(c.quit)
	c.wg.Wait()
}

// SeekTo queues a seek to pos (ms); async selects blocking vs
// fire-and-forget semantics at the caller boundary (spec §4.6
// "seek_to(pos, async)").
func (c *Composer) SeekTo(posMS int64, async bool) {
	c.seekTarget.Store(posMS)
	c.seekPending.Store(true)
	c.inSeeking.Store(true)
	for !async && c.started.Load() && c.inSeeking.Load() {
		time.Sleep(c.pollEvery)
	}
}

// ReadVideoFrame pulls from the worker's output queue (spec §4.6
// "read_video_frame(pos, non_blocking, precise)").
func (c *Composer) ReadVideoFrame(posMS int64, nonBlocking, precise bool) (Image, []CorrelativeFrame, bool) {
	fps := c.Geometry.FrameRate.Float()
	wantIdx := int64(posMS) * int64(fps*1000) / 1_000_000 // floor(pos*fps) at ms granularity
	if fps > 0 {
		wantIdx = int64(float64(posMS) / 1000.0 * fps)
	}

	for {
		if flash := c.seekingFlash.Load(); flash != nil && !precise {
			c.seekingFlash.Store(nil)
			return flash.Image, flash.Taps, true
		}
		unit, ok := c.outQueue.tryPop()
		if ok {
			if precise {
				gotIdx := int64(float64(unit.Image.TimeStampMS) / 1000.0 * fps)
				if gotIdx != wantIdx {
					continue
				}
			}
			return unit.Image, unit.Taps, true
		}
		if nonBlocking {
			return Image{Empty: true}, nil, false
		}
		time.Sleep(c.pollEvery)
	}
}

// Taps returns (creating if necessary) the channel carrying
// CorrelativeFrame observations; disabled until first call (spec
// §GLOSSARY "Correlative frame", SPEC_FULL.md §4.9 supplement).
func (c *Composer) Taps() <-chan CorrelativeFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debugTaps == nil {
		c.debugTaps = make(chan CorrelativeFrame, 64)
	}
	return c.debugTaps
}

func (c *Composer) emitTap(trackID ID, phase string, img Image) {
	c.mu.Lock()
	ch := c.debugTaps
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- CorrelativeFrame{TrackID: trackID, Phase: phase, Image: img}:
	default:
	}
}

// mixLoop is the video mixing worker (spec §4.6 "Video mixing worker loop").
func (c *Composer) mixLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		default:
		}

		if c.seekPending.CompareAndSwap(true, false) {
			fps := c.Geometry.FrameRate.Float()
			pos := c.seekTarget.Load()
			frameIdx := int64(float64(pos) / 1000.0 * fps)
			snapped := int64(float64(frameIdx) / fps * 1000.0)
			c.mu.Lock()
			for _, tr := range c.tracks {
				tr.SeekTo(snapped)
			}
			c.mu.Unlock()
			c.outQueue.clear()
			c.afterSeek.Store(true)
			c.inSeeking.Store(false)
		}

		if c.outQueue.len() < c.cfg.OutputQueueCapacity {
			unit, ok := c.blendOneFrame()
			if ok {
				if c.afterSeek.CompareAndSwap(true, false) {
					c.seekingFlash.Store(&unit)
				}
				if !c.outQueue.tryPush(unit) {
					// Queue filled between the length check and push;
					// drop this unit, the worker will produce another.
				}
				c.metrics.setQueueDepth("composer_video", c.outQueue.len())
			}
		} else {
			time.Sleep(c.pollEvery)
		}
	}
}

func (c *Composer) blendOneFrame() (outputUnit, bool) {
	c.mu.Lock()
	tracks := append([]*Track(nil), c.tracks...)
	geom := c.Geometry
	c.mu.Unlock()

	base := Image{Buffer: make([]byte, geom.Width*geom.Height*4), Width: geom.Width, Height: geom.Height, Format: PixFmtRGBA}
	var taps []CorrelativeFrame
	var lastTS int64
	produced := false
	for _, tr := range tracks {
		if !tr.Visible {
			tr.ReadVideoFrame() // still advances cursor per spec §4.6
			continue
		}
		img, err := tr.ReadVideoFrame()
		if err != nil || img.Empty {
			continue
		}
		produced = true
		lastTS = img.TimeStampMS
		c.emitTap(tr.ID, "post-source", img)
		blended, err := c.blender.Blend(base, img, 0, 0)
		if err == nil {
			base = blended
		}
		taps = append(taps, CorrelativeFrame{TrackID: tr.ID, Phase: "post-mix", Image: base})
	}
	base.TimeStampMS = lastTS
	return outputUnit{Image: base, Taps: taps}, produced || len(tracks) == 0
}
