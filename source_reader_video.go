package mediacore

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// pendingFrame is a decoded-but-maybe-not-yet-converted video frame kept
// in pts order inside the convert stage's working set.
type pendingFrame struct {
	frame     Frame
	converted bool
	image     Image
}

// videoSourceReader implements VideoSourceReader as the three-stage
// demux/decode/convert pipeline of spec §4.1, grounded on the teacher's
// worker-thread-plus-bounded-queue shape (video_compositor.go's
// refreshLoop) and on jivefire's decoder.go for the codec call sequence.
type videoSourceReader struct {
	mu     sync.RWMutex
	codec  Codec
	info   MediaInfo
	stream int

	outW, outH int
	outFmt     PixFmt
	interp     InterpMode

	forward     atomic.Bool
	suspendedFl atomic.Bool
	quit        chan struct{}
	started     bool

	seekPending atomic.Bool
	seekTarget  atomic.Int64 // pts, valid when seekPending

	// Reverse-traversal GOP walk (spec §4.1 "Reverse traversal rule"):
	// reverseMinPts is the smallest pts read since the last seek,
	// reverseLimit is the pts the in-GOP forward scan must reach before
	// stepping back to the previous GOP.
	reverseMinPts atomic.Int64
	reverseLimit  atomic.Int64

	packets *boundedQueue[Packet]

	frameMu sync.Mutex
	frames  []pendingFrame // sorted by pts, convert stage owns conversion

	cacheFwdS, cacheBwdS float64

	readPosS atomic.Int64 // fixed-point *1000 (ms) for lock-free reads

	cfg     EngineConfig
	logger  Logger
	metrics *Metrics

	wg sync.WaitGroup

	lastErr atomic.Value // string
}

// NewVideoSourceReader constructs an unopened reader around codec.
func NewVideoSourceReader(codec Codec, cfg EngineConfig, logger Logger, metrics *Metrics) VideoSourceReader {
	return &videoSourceReader{
		codec:     codec,
		cfg:       cfg,
		logger:    orNoop(logger),
		metrics:   metrics,
		cacheFwdS: cfg.ForwardCacheS,
		cacheBwdS: cfg.BackwardCacheS,
		packets:   newBoundedQueue[Packet](cfg.MaxPendingConvert),
	}
}

func (r *videoSourceReader) Open(ctx context.Context, url string) error {
	infos, err := r.codec.OpenFormat(ctx, url)
	if err != nil {
		return newErr(KindExternalFailure, "Open", url, err)
	}
	for i, in := range infos {
		if in.Kind == StreamVideo {
			r.info = in
			r.stream = i
			r.forward.Store(true)
			return nil
		}
	}
	return newErr(KindNotConfigured, "Open", "no video stream found in "+url, nil)
}

func (r *videoSourceReader) Configure(outW, outH int, format PixFmt, interp InterpMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return newErr(KindInvalidArgument, "Configure", "must precede Start", nil)
	}
	r.outW, r.outH, r.outFmt, r.interp = outW, outH, format, interp
	return nil
}

func (r *videoSourceReader) Start(suspended bool) error {
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
	if err := r.codec.OpenDecoder(r.stream, true); err != nil {
		r.logger.Warn("hardware decoder open failed, falling back to software", "err", err)
		if err := r.codec.OpenDecoder(r.stream, false); err != nil {
			return newErr(KindExternalFailure, "Start", "decoder open", err)
		}
	}

	r.wg.Add(3)
	go r.demuxLoop()
	go r.decodeLoop()
	go r.convertLoop()
	return nil
}

func (r *videoSourceReader) SeekTo(seconds float64) error {
	pts := r.secondsToPTS(seconds)
	r.seekTarget.Store(pts)
	r.seekPending.Store(true)
	return nil
}

func (r *videoSourceReader) SetDirection(forward bool) {
	if r.forward.Swap(forward) != forward {
		r.SeekTo(float64(r.readPosS.Load()) / 1000.0)
	}
}

func (r *videoSourceReader) Suspend() {
	if r.suspendedFl.Swap(true) {
		return
	}
	_ = r.codec.FlushDecoder()
}

func (r *videoSourceReader) WakeUp() {
	if !r.suspendedFl.Swap(false) {
		return
	}
	if err := r.codec.OpenDecoder(r.stream, true); err != nil {
		_ = r.codec.OpenDecoder(r.stream, false)
	}
	_ = r.SeekTo(float64(r.readPosS.Load()) / 1000.0)
}

func (r *videoSourceReader) SetCacheDuration(forwardS, backwardS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheFwdS, r.cacheBwdS = forwardS, backwardS
}

func (r *videoSourceReader) MediaInfo() MediaInfo { return r.info }

func (r *videoSourceReader) Close() error {
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

// secondsToPTS converts a timeline position in seconds into the stream's
// pts units via its time-base (round(pos*1000) rescaled), matching spec
// §4.1 "read_video_frame protocol".
func (r *videoSourceReader) secondsToPTS(seconds float64) int64 {
	ms := int64(math.Round(seconds * 1000))
	tb := r.info.TimeBase
	if tb.Num == 0 {
		tb = Ratio{1, 1000}
	}
	return roundDiv(ms*tb.Den, 1000*tb.Num) + roundDiv(int64(r.info.StartTimeS*1000)*tb.Den, 1000*tb.Num)
}

func (r *videoSourceReader) frameIntervalMS() float64 { return r.info.FrameIntervalMS() }

// computeReverseSeekTarget derives the seek point for the previous GOP
// during reverse playback: one unit before the smallest pts seen since
// the last seek, so a demuxer that snaps to the nearest key-frame at or
// before its target lands on the *previous* key-frame even when
// minPtsAfterSeek itself sits exactly on one (spec §4.1 reverse
// traversal rule; Open Question #1: ties resolve to the previous
// key-frame).
func (r *videoSourceReader) computeReverseSeekTarget(minPtsAfterSeek int64) int64 {
	if minPtsAfterSeek <= 0 {
		return 0
	}
	return minPtsAfterSeek - 1
}

// demuxLoop is stage 1 of the pipeline (spec §4.1 "Demux").
func (r *videoSourceReader) demuxLoop() {
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
			// Forward: seek_pts is read_pos itself. Reverse: read_pos is
			// also the initial seek_pts (the nearest frame <= read_pos),
			// but it also seeds the GOP-walk trackers below (spec §4.1
			// "compute seek_pts").
			target := r.seekTarget.Load()
			if err := r.codec.Seek(r.stream, target); err != nil {
				r.setErr(err)
			}
			r.packets.clear()
			r.seekPending.Store(false)
			if !r.forward.Load() {
				r.reverseLimit.Store(target)
				r.reverseMinPts.Store(math.MaxInt64)
			}
			continue
		}

		p, err := r.codec.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.packets.tryPush(Packet{PTS: math.MaxInt64, IsVideo: true})
			}
			time.Sleep(r.cfg.WorkerPollInterval)
			continue
		}
		if !p.IsVideo || p.StreamIdx != r.stream {
			continue
		}
		for !r.packets.tryPush(p) {
			select {
			case <-r.quit:
				return
			default:
			}
			time.Sleep(r.cfg.WorkerPollInterval)
		}

		if !r.forward.Load() {
			// Reverse traversal rule (spec §4.1): track min_pts_after_seek
			// and last_pkt_pts; once the in-GOP forward scan has covered
			// back_read_limit, step to the previous GOP by seeking to
			// just-before the smallest pts this GOP produced. The queue is
			// not cleared here: packets already enqueued from this GOP are
			// still valid decode work, and convertLoop keeps frames sorted
			// by pts regardless of arrival order.
			if p.PTS < r.reverseMinPts.Load() {
				r.reverseMinPts.Store(p.PTS)
			}
			if p.PTS >= r.reverseLimit.Load() {
				minPts := r.reverseMinPts.Load()
				seekPts := r.computeReverseSeekTarget(minPts)
				if err := r.codec.Seek(r.stream, seekPts); err != nil {
					r.setErr(err)
				}
				r.reverseLimit.Store(minPts)
				r.reverseMinPts.Store(math.MaxInt64)
			}
		}
	}
}

// decodeLoop is stage 2 (spec §4.1 "Decode").
func (r *videoSourceReader) decodeLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		default:
		}
		p, ok := r.packets.tryPop()
		if !ok {
			time.Sleep(r.cfg.WorkerPollInterval)
			continue
		}
		if p.PTS == math.MaxInt64 {
			r.insertFrame(Frame{PTS: math.MaxInt64, IsEOF: true})
			continue
		}
		if err := r.codec.SendPacket(p); err != nil {
			r.setErr(err)
			r.metrics.incDrop("decode_send")
			continue
		}
		f, err := r.codec.ReceiveFrame()
		if err != nil {
			continue
		}
		r.insertFrame(f)
	}
}

func (r *videoSourceReader) insertFrame(f Frame) {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	for _, existing := range r.frames {
		if existing.frame.PTS == f.PTS {
			r.logger.Warn("duplicate pts in decode queue, discarding", "pts", f.PTS)
			return
		}
	}
	r.frames = append(r.frames, pendingFrame{frame: f})
	sort.Slice(r.frames, func(i, j int) bool { return r.frames[i].frame.PTS < r.frames[j].frame.PTS })
	if len(r.frames) > r.cfg.MaxPendingConvert*4 {
		r.frames = r.frames[len(r.frames)-r.cfg.MaxPendingConvert*4:]
	}
}

// convertLoop is stage 3 (spec §4.1 "Convert").
func (r *videoSourceReader) convertLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		default:
		}
		r.mu.RLock()
		outW, outH, outFmt, interp := r.outW, r.outH, r.outFmt, r.interp
		r.mu.RUnlock()
		if outW == 0 || outH == 0 {
			time.Sleep(r.cfg.WorkerPollInterval)
			continue
		}

		r.frameMu.Lock()
		var target = -1
		for i := range r.frames {
			if !r.frames[i].converted {
				target = i
				break
			}
		}
		var f Frame
		if target >= 0 {
			f = r.frames[target].frame
		}
		r.frameMu.Unlock()

		if target < 0 {
			time.Sleep(r.cfg.WorkerPollInterval)
			continue
		}
		if f.IsEOF {
			r.frameMu.Lock()
			r.frames[target].converted = true
			r.frames[target].image = Image{Empty: true, TimeStampMS: -1}
			r.frameMu.Unlock()
			continue
		}

		img, err := r.codec.ConvertVideo(f, outW, outH, outFmt, interp)
		if err != nil {
			r.metrics.incDrop("convert")
			r.frameMu.Lock()
			r.frames = append(r.frames[:target], r.frames[target+1:]...)
			r.frameMu.Unlock()
			continue
		}
		r.frameMu.Lock()
		if target < len(r.frames) && r.frames[target].frame.PTS == f.PTS {
			r.frames[target].converted = true
			r.frames[target].image = img
		}
		r.frameMu.Unlock()
	}
}

// ReadVideoFrame implements spec §4.1's protocol: find the frame whose
// [pts, pts+dur) contains pos, waiting and polling if requested.
func (r *videoSourceReader) ReadVideoFrame(posSeconds float64, wait bool) (Image, bool, error) {
	if r.suspendedFl.Load() {
		return Image{Empty: true}, false, newErr(KindSuspended, "ReadVideoFrame", "reader suspended", nil)
	}
	if r.info.IsImage {
		return r.readImageFrame(posSeconds)
	}
	targetPTS := r.secondsToPTS(posSeconds)
	r.readPosS.Store(int64(posSeconds * 1000))

	for {
		select {
		case <-r.quit:
			return Image{Empty: true}, false, newErr(KindNotStarted, "ReadVideoFrame", "reader stopped", nil)
		default:
		}
		r.frameMu.Lock()
		for _, pf := range r.frames {
			if !pf.converted {
				continue
			}
			if pf.image.Empty && pf.frame.PTS == math.MaxInt64 {
				r.frameMu.Unlock()
				return Image{Empty: true}, true, nil
			}
			dur := pf.frame.Dur
			if dur <= 0 {
				dur = int64(r.frameIntervalMS())
			}
			if pf.frame.PTS <= targetPTS && targetPTS < pf.frame.PTS+dur {
				img := pf.image
				img.TimeStampMS = int64(posSeconds * 1000)
				r.frameMu.Unlock()
				return img, false, nil
			}
		}
		r.frameMu.Unlock()
		if !wait {
			return Image{Empty: true}, false, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *videoSourceReader) readImageFrame(posSeconds float64) (Image, bool, error) {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	for _, pf := range r.frames {
		if pf.converted {
			img := pf.image
			img.TimeStampMS = int64(posSeconds * 1000)
			eof := posSeconds*1000 >= r.info.DurationS*1000
			return img, eof, nil
		}
	}
	return Image{Empty: true}, false, nil
}

func (r *videoSourceReader) setErr(err error) {
	if err != nil {
		r.lastErr.Store(err.Error())
	}
}

func (r *videoSourceReader) LastError() string {
	if v, ok := r.lastErr.Load().(string); ok {
		return v
	}
	return ""
}
