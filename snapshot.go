package mediacore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// SnapWindow is a viewer's view/cache extent over a video timeline (spec
// §3, §4.8).
type SnapWindow struct {
	WindowPosS float64
	ViewIdx    [2]int64
	CacheIdx   [2]int64
	SeekPts    [2]int64
}

// gopRange is GopTask.Range from spec §3/§4.8: a seek-pts interval plus
// the snapshot-slot indices it can serve.
type gopRange struct {
	SeekPts        [2]int64
	SsIdx          [2]int64
	InView         bool
	DistanceToView int64
}

func (r gopRange) equalKey(o gopRange) bool {
	return r.SeekPts[0] == o.SeekPts[0] && r.SeekPts[1] == o.SeekPts[1]
}

type candidate struct {
	bestPts   int64
	bias      int64
	delivered bool
}

// gopTask is one unit of demux+decode work keyed by a seek-pts range and
// a set of snapshot slots (spec §3 "GopTask", §4.8).
type gopTask struct {
	mu sync.Mutex

	rng gopRange

	candidates map[int64]*candidate
	ssAvfrm    map[int64]Frame
	ssImg      map[int64]Image

	// avpktQueue feeds the decode worker; avpktBackupQueue mirrors every
	// packet ever enqueued so a conversion failure can re-feed the decoder
	// after a flush without re-demuxing (spec §3 "GopTask", §4.8 worker-3).
	avpktQueue       []Packet
	avpktBackupQueue []Packet

	demuxing          bool
	demuxerEOF        bool
	decoding          bool
	redoDecoding      bool
	allCandidatesDone bool
	decoderEOF        bool
	cancel            bool
}

func newGopTask(rng gopRange, ssInterval int64) *gopTask {
	t := &gopTask{rng: rng, candidates: map[int64]*candidate{}, ssAvfrm: map[int64]Frame{}, ssImg: map[int64]Image{}}
	for idx := rng.SsIdx[0]; idx <= rng.SsIdx[1]; idx++ {
		t.candidates[idx] = &candidate{bestPts: -1, bias: math.MaxInt64}
	}
	return t
}

// Viewer is a caller's moving window over one SnapshotGenerator's video
// (spec §3 "SnapWindow" owner, §4.8 "Viewer").
type Viewer struct {
	mu       sync.Mutex
	gen      *SnapshotGenerator
	window   SnapWindow
	frameCnt int
	windowS  float64
}

// GetSnapshots implements spec §4.8 "Viewer.get_snapshots(window_pos)":
// recompute the window, then copy whatever is currently cached for each
// overlapping task into a per-slot vector. Never blocks.
func (v *Viewer) GetSnapshots(windowPosS float64) []Image {
	v.mu.Lock()
	v.recomputeWindow(windowPosS)
	idx0 := v.window.ViewIdx[0]
	idx1 := v.window.ViewIdx[1]
	ssInterval := v.gen.ssIntervalMS
	v.mu.Unlock()

	n := int(idx1-idx0) + 1
	out := make([]Image, n)
	for i := range out {
		out[i] = Image{Empty: true, TimeStampMS: (idx0 + int64(i)) * ssInterval}
	}

	v.gen.mu.RLock()
	defer v.gen.mu.RUnlock()
	for _, t := range v.gen.tasks {
		t.mu.Lock()
		if t.rng.SsIdx[1] < idx0 || t.rng.SsIdx[0] > idx1 {
			t.mu.Unlock()
			continue
		}
		for idx, img := range t.ssImg {
			if idx < idx0 || idx > idx1 {
				continue
			}
			out[idx-idx0] = img
		}
		t.mu.Unlock()
	}
	v.gen.reportWindow(v)
	return out
}

func (v *Viewer) recomputeWindow(windowPosS float64) {
	ssInterval := v.gen.ssIntervalMS
	idx0 := int64(windowPosS * 1000 / float64(ssInterval))
	idx1 := int64((windowPosS + v.windowS) * 1000 / float64(ssInterval))

	maxCache := int64(math.Ceil(float64(v.frameCnt) * v.gen.cacheFactor))
	prevCache := (maxCache - int64(math.Ceil(float64(v.frameCnt)))) / 2

	v.window = SnapWindow{
		WindowPosS: windowPosS,
		ViewIdx:    [2]int64{idx0, idx1},
		CacheIdx:   [2]int64{idx0 - prevCache, idx0 - prevCache + maxCache - 1},
	}
}

// ranges derives this viewer's current list of GopTask.Range from its
// cache window, one range per keyFrameSpanSlots consecutive slots across
// the window, each with the seek points seekPointsFor gives it (spec
// §4.8 "Viewer -> Task aggregation").
func (v *Viewer) ranges() []gopRange {
	v.mu.Lock()
	defer v.mu.Unlock()
	ssInterval := v.gen.ssIntervalMS
	lo, hi := v.window.CacheIdx[0], v.window.CacheIdx[1]
	if lo < 0 {
		lo = 0
	}
	var out []gopRange
	gopSpan := v.gen.keyFrameSpanSlots
	if gopSpan < 1 {
		gopSpan = 1
	}
	for idx := lo; idx <= hi; idx += gopSpan {
		end := idx + gopSpan - 1
		if end > hi {
			end = hi
		}
		seek0, seek1 := v.gen.seekPointsFor(idx*ssInterval, end*ssInterval)
		inView := idx <= v.window.ViewIdx[1] && end >= v.window.ViewIdx[0]
		out = append(out, gopRange{SeekPts: [2]int64{seek0, seek1}, SsIdx: [2]int64{idx, end}, InView: inView})
	}
	return out
}

// SnapshotGenerator is the sparse-frame thumbnail engine of spec §4.8:
// four worker threads (demux, decode, convert, free) servicing the union
// of all Viewers' GopTask.Ranges.
type SnapshotGenerator struct {
	mu sync.RWMutex

	codec Codec
	info  MediaInfo

	ssIntervalMS      int64
	cacheFactor       float64
	keyFrameSpanSlots int64
	keyFramePts       []int64 // sorted seek points from the parser

	tasks []*gopTask

	viewers []*Viewer

	demuxC  chan struct{}
	decodeC chan struct{}
	convertC chan struct{}
	freeC    chan struct{}
	cancelledTasks *boundedQueue[*gopTask]

	imgCache *gocache.Cache

	quit chan struct{}
	wg   sync.WaitGroup

	cfg     EngineConfig
	logger  Logger
	metrics *Metrics
}

// NewSnapshotGenerator opens url for sparse thumbnailing and computes
// ss_interval from windowSizeS/frameCount, lower-bounded by the frame
// interval (spec §4.8 "Indexing").
func NewSnapshotGenerator(ctx context.Context, codec Codec, url string, windowSizeS float64, frameCount int, cfg EngineConfig, logger Logger, metrics *Metrics) (*SnapshotGenerator, error) {
	infos, err := codec.OpenFormat(ctx, url)
	if err != nil {
		return nil, newErr(KindExternalFailure, "NewSnapshotGenerator", url, err)
	}
	var info MediaInfo
	found := false
	for _, in := range infos {
		if in.Kind == StreamVideo {
			info = in
			found = true
			break
		}
	}
	if !found {
		return nil, newErr(KindNotConfigured, "NewSnapshotGenerator", "no video stream", nil)
	}

	ssInterval := int64(windowSizeS * 1000 / float64(frameCount))
	frameInterval := int64(info.FrameIntervalMS())
	if ssInterval < frameInterval {
		ssInterval = frameInterval
	}

	g := &SnapshotGenerator{
		codec: codec, info: info,
		ssIntervalMS: ssInterval, cacheFactor: cfg.SnapshotCacheFactor,
		keyFrameSpanSlots: 10,
		cancelledTasks:    newBoundedQueue[*gopTask](256),
		imgCache:          gocache.New(gocache.NoExpiration, time.Minute),
		cfg:               cfg, logger: orNoop(logger), metrics: metrics,
	}
	if g.cacheFactor <= 0 {
		g.cacheFactor = 10
	}
	return g, nil
}

// MaxIdx is max_idx = floor((dur_ms - frame_interval_ms)/ss_interval_ms)
// (spec §4.8 "Indexing").
func (g *SnapshotGenerator) MaxIdx() int64 {
	durMS := g.info.DurationS * 1000
	frameMS := g.info.FrameIntervalMS()
	return int64(math.Floor((durMS - frameMS) / float64(g.ssIntervalMS)))
}

// seekPointsFor returns the largest key-frame pts <= the first slot's
// target minus half a frame interval, and the next key-frame pts (or
// MaxInt64 at end) -- spec §4.8 "Per-range seek_pts".
func (g *SnapshotGenerator) seekPointsFor(startMS, endMS int64) (int64, int64) {
	if len(g.keyFramePts) == 0 {
		return 0, math.MaxInt64
	}
	target := startMS - int64(g.info.FrameIntervalMS()/2)
	var seek0 int64
	seek1 := int64(math.MaxInt64)
	for i, kp := range g.keyFramePts {
		if kp <= target {
			seek0 = kp
		}
		if kp > target && i < len(g.keyFramePts) {
			seek1 = kp
			break
		}
	}
	return seek0, seek1
}

// SetKeyFramePts installs the parser's list of key-frame pts used by
// seekPointsFor; callers populate this from the Codec's index once
// available.
func (g *SnapshotGenerator) SetKeyFramePts(pts []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keyFramePts = pts
}

// NewViewer attaches a viewer with the given window geometry.
func (g *SnapshotGenerator) NewViewer(windowSizeS float64, frameCount int) *Viewer {
	v := &Viewer{gen: g, windowS: windowSizeS, frameCnt: frameCount}
	g.mu.Lock()
	g.viewers = append(g.viewers, v)
	g.mu.Unlock()
	return v
}

// reportWindow takes the union of all viewers' ranges (deduplicated by
// seek_pts, in_view OR'd) and diffs it against the live task list (spec
// §4.8 "Viewer -> Task aggregation").
func (g *SnapshotGenerator) reportWindow(changed *Viewer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	union := map[int64]gopRange{}
	key := func(r gopRange) int64 { return r.SeekPts[0] ^ (r.SeekPts[1] << 1) }
	for _, v := range g.viewers {
		for _, r := range v.ranges() {
			k := key(r)
			if existing, ok := union[k]; ok {
				existing.InView = existing.InView || r.InView
				union[k] = existing
			} else {
				union[k] = r
			}
		}
	}

	stillLive := map[int64]bool{}
	for _, r := range union {
		stillLive[key(r)] = true
	}
	keptTasks := g.tasks[:0:0]
	for _, t := range g.tasks {
		t.mu.Lock()
		if !stillLive[key(t.rng)] {
			t.cancel = true
			g.cancelledTasks.tryPush(t)
			t.mu.Unlock()
			continue
		}
		keptTasks = append(keptTasks, t)
		t.mu.Unlock()
	}
	existingKeys := map[int64]bool{}
	for _, t := range keptTasks {
		existingKeys[key(t.rng)] = true
	}
	for k, r := range union {
		if !existingKeys[k] {
			keptTasks = append(keptTasks, newGopTask(r, g.ssIntervalMS))
		}
	}
	g.tasks = keptTasks
}

// Start launches the four worker threads (spec §4.8).
func (g *SnapshotGenerator) Start() {
	g.quit = make(chan struct{})
	g.wg.Add(4)
	go g.demuxWorker()
	go g.decodeWorker()
	go g.convertWorker()
	go g.freeWorker()
}

func (g *SnapshotGenerator) Stop() {
	close(g.quit)
	g.wg.Wait()
}

// pickTask selects the next task to work, preferring tasks in view and
// then smallest distance-to-view (spec §4.8 "Demux" worker).
func (g *SnapshotGenerator) pickTask(filter func(*gopTask) bool) *gopTask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *gopTask
	for _, t := range g.tasks {
		t.mu.Lock()
		ok := filter(t) && !t.cancel
		inView, dist := t.rng.InView, t.rng.DistanceToView
		t.mu.Unlock()
		if !ok {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		best.mu.Lock()
		bestInView, bestDist := best.rng.InView, best.rng.DistanceToView
		best.mu.Unlock()
		if (inView && !bestInView) || (inView == bestInView && dist < bestDist) {
			best = t
		}
	}
	return best
}

// demuxWorker is spec §4.8's worker thread 1.
func (g *SnapshotGenerator) demuxWorker() {
	defer g.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-g.quit:
			return
		default:
		}
		t := g.pickTask(func(t *gopTask) bool { return !t.demuxing })
		if t == nil {
			time.Sleep(g.cfg.WorkerPollInterval)
			continue
		}
		t.mu.Lock()
		t.demuxing = true
		seek0, seek1 := t.rng.SeekPts[0], t.rng.SeekPts[1]
		t.mu.Unlock()

		if err := g.codec.Seek(0, seek0); err != nil {
			g.logger.Warn("snapshot demux seek failed, abandoning task", "err", err)
			t.mu.Lock()
			t.cancel = true
			t.mu.Unlock()
			continue
		}
		for {
			p, err := g.codec.ReadPacket(ctx)
			if err != nil {
				break
			}
			if !p.IsVideo {
				continue
			}
			if p.PTS >= seek1+200 {
				break
			}
			ssIdx := int64(math.Round(float64(p.PTS) / float64(g.ssIntervalMS)))
			bias := int64(math.Abs(float64(p.PTS - ssIdx*g.ssIntervalMS)))
			t.mu.Lock()
			if c, ok := t.candidates[ssIdx]; ok && bias < c.bias {
				c.bias = bias
				c.bestPts = p.PTS
			}
			// Packets not matching a candidate are still enqueued for the
			// decoder; the GOP has to be decoded in order regardless of
			// which frames end up wanted.
			t.avpktQueue = append(t.avpktQueue, p)
			t.avpktBackupQueue = append(t.avpktBackupQueue, p)
			t.demuxerEOF = false
			t.mu.Unlock()
		}
		t.mu.Lock()
		t.demuxerEOF = true
		t.mu.Unlock()
	}
}

// decodeWorker is spec §4.8's worker thread 2.
func (g *SnapshotGenerator) decodeWorker() {
	defer g.wg.Done()
	for {
		select {
		case <-g.quit:
			return
		default:
		}
		t := g.pickTask(func(t *gopTask) bool { return t.demuxing && (!t.decoding || t.redoDecoding) })
		if t == nil {
			time.Sleep(g.cfg.WorkerPollInterval)
			continue
		}
		t.mu.Lock()
		t.decoding = true
		if t.redoDecoding {
			_ = g.codec.FlushDecoder()
			// Conversion failed downstream: re-feed everything this task
			// ever demuxed so the freshly flushed decoder can reproduce
			// the frames again (spec §4.8 worker-3 "re-feeds packets from
			// avpkt_backup_queue").
			t.avpktQueue = append(t.avpktQueue, t.avpktBackupQueue...)
			t.redoDecoding = false
		}
		t.mu.Unlock()

		for {
			t.mu.Lock()
			if t.cancel || t.allCandidatesDone {
				t.mu.Unlock()
				break
			}
			if len(t.avpktQueue) == 0 {
				eof := t.demuxerEOF
				t.mu.Unlock()
				if eof {
					break
				}
				time.Sleep(g.cfg.WorkerPollInterval)
				continue
			}
			p := t.avpktQueue[0]
			t.avpktQueue = t.avpktQueue[1:]
			t.mu.Unlock()

			if err := g.codec.SendPacket(p); err != nil {
				g.metrics.incDrop("snapshot_decode_send")
				continue
			}
			f, err := g.codec.ReceiveFrame()
			if err != nil {
				continue
			}
			ssIdx := int64(math.Round(float64(f.PTS) / float64(g.ssIntervalMS)))
			t.mu.Lock()
			if c, ok := t.candidates[ssIdx]; ok && !c.delivered {
				t.ssAvfrm[ssIdx] = f
				c.delivered = true
			}
			allDone := true
			for _, c := range t.candidates {
				if !c.delivered {
					allDone = false
					break
				}
			}
			if allDone {
				t.allCandidatesDone = true
				t.decoderEOF = true
			}
			t.mu.Unlock()
		}
	}
}

// convertWorker is spec §4.8's worker thread 3 ("Update snapshots").
func (g *SnapshotGenerator) convertWorker() {
	defer g.wg.Done()
	for {
		select {
		case <-g.quit:
			return
		default:
		}
		t := g.pickTask(func(t *gopTask) bool { return len(t.ssAvfrm) > 0 })
		if t == nil {
			time.Sleep(g.cfg.WorkerPollInterval)
			continue
		}
		t.mu.Lock()
		var idx int64
		var f Frame
		found := false
		for i, fr := range t.ssAvfrm {
			if _, have := t.ssImg[i]; !have {
				idx, f, found = i, fr, true
				break
			}
		}
		t.mu.Unlock()
		if !found {
			time.Sleep(g.cfg.WorkerPollInterval)
			continue
		}

		img, err := g.codec.ConvertVideo(f, g.info.Width, g.info.Height, PixFmtRGBA, InterpBilinear)
		if err != nil {
			g.metrics.incDrop("snapshot_convert")
			t.mu.Lock()
			t.redoDecoding = true
			t.mu.Unlock()
			continue
		}
		t.mu.Lock()
		t.ssImg[idx] = img
		t.mu.Unlock()
		g.imgCache.Set(fmt.Sprintf("%d:%d", t.rng.SeekPts[0], idx), img, gocache.DefaultExpiration)
		if g.metrics != nil {
			g.metrics.CacheMisses.Inc()
		}
	}
}

// freeWorker is spec §4.8's worker thread 4, offloading cancelled-task
// teardown from the critical threads.
func (g *SnapshotGenerator) freeWorker() {
	defer g.wg.Done()
	for {
		select {
		case <-g.quit:
			return
		default:
		}
		t, ok := g.cancelledTasks.tryPop()
		if !ok {
			time.Sleep(g.cfg.WorkerPollInterval)
			continue
		}
		t.mu.Lock()
		t.ssAvfrm = nil
		t.ssImg = nil
		t.mu.Unlock()
	}
}
