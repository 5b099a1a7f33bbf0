package mediacore

import (
	"sort"
	"sync"
	"sync/atomic"
)

// OutputGeometry describes a track's (and a composer's) output format:
// video uses Width/Height/FrameRate, audio uses Channels/SampleRate/SampleFormat.
type OutputGeometry struct {
	Width, Height int
	FrameRate     Ratio
	Channels      int
	SampleRate    int
	SampleFormat  SampleFormat
}

// Track is an ordered clip list with a derived overlap list (spec §3
// "Track", §4.5).
type Track struct {
	mu sync.RWMutex

	ID       ID
	Kind     ClipKind // ClipVideo or ClipAudio
	Geometry OutputGeometry

	clips    []*Clip // sorted by Start
	overlaps []*Overlap

	readPosMS  int64
	readFrames int64
	forward    bool
	Visible    bool
	Muted      bool

	clipIdx    int
	overlapIdx int

	nextOverlapID atomic.Int64
}

// NewTrack constructs an empty track with the given output geometry.
func NewTrack(id ID, kind ClipKind, geometry OutputGeometry) *Track {
	return &Track{ID: id, Kind: kind, Geometry: geometry, Visible: true, forward: true}
}

// Duration is max(clip.end) over clips, or 0 if empty (Invariant C,
// spec §3 and Testable Property 4).
func (t *Track) Duration() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.durationLocked()
}

func (t *Track) durationLocked() int64 {
	var max int64
	for _, c := range t.clips {
		if e := c.End(); e > max {
			max = e
		}
	}
	return max
}

// AddNewClip validates Invariant A, inserts in start order, updates the
// overlap list, then re-seeks the track's cursor (spec §4.5 "add_new_clip").
func (t *Track) AddNewClip(c *Clip) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, end := c.Range()
	for _, o := range t.overlaps {
		if o.Front.ID == c.ID || o.Rear.ID == c.ID {
			continue
		}
		if o.Intersects(start, end) {
			return newErr(KindInvalidArgument, "AddNewClip", "would cross an existing overlap interior", nil)
		}
	}

	c.TrackID = t.ID
	t.clips = append(t.clips, c)
	t.sortClips()
	t.updateClipOverlap(c, false)
	t.seekToLocked(t.readPosMS)
	return nil
}

// MoveClip and ChangeClipRange are structurally identical: apply the
// change, re-validate Invariant A, sort, update overlaps, re-seek (spec
// §4.5).
func (t *Track) MoveClip(id ID, start int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.findClip(id)
	if c == nil {
		return newErr(KindInvalidArgument, "MoveClip", "no such clip", nil)
	}
	prevStart := c.Start
	c.SetStart(start)
	if err := t.revalidateInvariantA(c); err != nil {
		c.SetStart(prevStart)
		return err
	}
	t.sortClips()
	t.updateClipOverlap(c, false)
	t.seekToLocked(t.readPosMS)
	return nil
}

func (t *Track) ChangeClipRange(id ID, startOffset, endOffset int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.findClip(id)
	if c == nil {
		return newErr(KindInvalidArgument, "ChangeClipRange", "no such clip", nil)
	}
	prevSO, prevEO := c.StartOffset, c.EndOffset
	if err := c.ChangeStartOffset(startOffset); err != nil {
		return err
	}
	if err := c.ChangeEndOffset(endOffset); err != nil {
		c.ChangeStartOffset(prevSO)
		return err
	}
	if err := t.revalidateInvariantA(c); err != nil {
		c.ChangeStartOffset(prevSO)
		c.ChangeEndOffset(prevEO)
		return err
	}
	t.sortClips()
	t.updateClipOverlap(c, false)
	t.seekToLocked(t.readPosMS)
	return nil
}

func (t *Track) revalidateInvariantA(moved *Clip) error {
	start, end := moved.Range()
	for _, o := range t.overlaps {
		if o.Front.ID == moved.ID || o.Rear.ID == moved.ID {
			continue
		}
		if o.Intersects(start, end) {
			return newErr(KindInvalidArgument, "revalidateInvariantA", "mutation crosses an overlap interior", nil)
		}
	}
	return nil
}

// RemoveClip detaches the clip and updates overlaps (spec §4.5 "remove_clip").
func (t *Track) RemoveClip(id ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := -1
	for i, c := range t.clips {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newErr(KindInvalidArgument, "RemoveClip", "no such clip", nil)
	}
	c := t.clips[idx]
	c.TrackID = UnattachedID
	t.clips = append(t.clips[:idx], t.clips[idx+1:]...)
	t.updateClipOverlap(c, true)
	t.seekToLocked(t.readPosMS)
	return nil
}

func (t *Track) findClip(id ID) *Clip {
	for _, c := range t.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (t *Track) sortClips() {
	sort.Slice(t.clips, func(i, j int) bool { return t.clips[i].Start < t.clips[j].Start })
}

// updateClipOverlap drops overlaps no longer valid and, unless removing,
// creates missing ones for every intersecting pair involving clip (spec
// §4.5 "update_clip_overlap").
func (t *Track) updateClipOverlap(clip *Clip, remove bool) {
	kept := t.overlaps[:0:0]
	for _, o := range t.overlaps {
		if !t.stillOwns(o.Front) || !t.stillOwns(o.Rear) {
			continue
		}
		if (o.Front.ID == clip.ID || o.Rear.ID == clip.ID) && o.Duration() <= 0 {
			continue
		}
		o.Update()
		if o.Degenerate() {
			continue
		}
		kept = append(kept, o)
	}
	t.overlaps = kept

	if !remove {
		cStart, cEnd := clip.Range()
		for _, other := range t.clips {
			if other.ID == clip.ID {
				continue
			}
			oStart, oEnd := other.Range()
			if !hasOverlap(cStart, cEnd, oStart, oEnd) {
				continue
			}
			if t.findOverlapFor(clip.ID, other.ID) != nil {
				continue
			}
			t.overlaps = append(t.overlaps, NewOverlap(ID(t.nextOverlapID.Add(1)), clip, other, nil))
		}
	}

	sort.Slice(t.overlaps, func(i, j int) bool { return t.overlaps[i].Start < t.overlaps[j].Start })
}

func (t *Track) stillOwns(c *Clip) bool {
	for _, own := range t.clips {
		if own.ID == c.ID {
			return true
		}
	}
	return false
}

func (t *Track) findOverlapFor(a, b ID) *Overlap {
	for _, o := range t.overlaps {
		if (o.Front.ID == a && o.Rear.ID == b) || (o.Front.ID == b && o.Rear.ID == a) {
			return o
		}
	}
	return nil
}

// SeekTo repositions the track's read cursor (spec §4.5 "seek_to").
func (t *Track) SeekTo(posMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seekToLocked(posMS)
}

func (t *Track) seekToLocked(posMS int64) {
	t.readPosMS = posMS
	if t.forward {
		t.clipIdx = 0
		for i, c := range t.clips {
			localStart, localEnd := c.Range()
			_ = localEnd
			if posMS-localStart < c.durationFor(posMS) {
				t.clipIdx = i
				break
			}
			t.clipIdx = i + 1
		}
		t.overlapIdx = 0
		for i, o := range t.overlaps {
			if posMS < o.End {
				t.overlapIdx = i
				break
			}
			t.overlapIdx = i + 1
		}
	} else {
		t.clipIdx = len(t.clips) - 1
		for i := len(t.clips) - 1; i >= 0; i-- {
			if posMS-t.clips[i].Start >= 0 {
				t.clipIdx = i
				break
			}
			t.clipIdx = i - 1
		}
		t.overlapIdx = len(t.overlaps) - 1
		for i := len(t.overlaps) - 1; i >= 0; i-- {
			if posMS >= t.overlaps[i].Start {
				t.overlapIdx = i
				break
			}
			t.overlapIdx = i - 1
		}
	}
	for _, c := range t.clips {
		c.SeekTo(posMS - c.Start)
	}
	if t.Geometry.FrameRate.Num > 0 {
		t.readFrames = int64(float64(posMS) / 1000.0 * t.Geometry.FrameRate.Float())
	}
}

func (c *Clip) durationFor(int64) int64 { return c.Duration() }

func (t *Track) SetDirection(forward bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forward = forward
	t.seekToLocked(t.readPosMS)
}

// ReadVideoFrame advances the track by one frame step and returns the
// active overlap's or clip's output, or a transparent placeholder (spec
// §4.5 "read_video_frame").
func (t *Track) ReadVideoFrame() (Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.clips {
		c.NotifyReadPos(t.readPosMS - c.Start)
	}

	var (
		img Image
		err error
	)
	if t.forward {
		for t.overlapIdx < len(t.overlaps) && t.readPosMS >= t.overlaps[t.overlapIdx].End {
			t.overlapIdx++
		}
		if t.overlapIdx < len(t.overlaps) && t.readPosMS >= t.overlaps[t.overlapIdx].Start {
			o := t.overlaps[t.overlapIdx]
			img, _, err = o.ReadVideoFrame(t.readPosMS - o.Start)
		} else {
			for t.clipIdx < len(t.clips) && t.readPosMS >= t.clips[t.clipIdx].End() {
				t.clipIdx++
			}
			if t.clipIdx < len(t.clips) && t.readPosMS >= t.clips[t.clipIdx].Start {
				c := t.clips[t.clipIdx]
				img, _, err = c.ReadVideoFrame(t.readPosMS - c.Start)
			} else {
				img = Image{Empty: true, TimeStampMS: t.readPosMS}
			}
		}
	} else {
		if t.overlapIdx >= 0 && t.overlapIdx < len(t.overlaps) && t.readPosMS >= t.overlaps[t.overlapIdx].Start && t.readPosMS < t.overlaps[t.overlapIdx].End {
			o := t.overlaps[t.overlapIdx]
			img, _, err = o.ReadVideoFrame(t.readPosMS - o.Start)
		} else if t.clipIdx >= 0 && t.clipIdx < len(t.clips) {
			c := t.clips[t.clipIdx]
			img, _, err = c.ReadVideoFrame(t.readPosMS - c.Start)
		} else {
			img = Image{Empty: true, TimeStampMS: t.readPosMS}
		}
	}
	img.TimeStampMS = t.readPosMS

	frameMS := int64(1000.0 / t.Geometry.FrameRate.Float())
	if t.forward {
		t.readPosMS += frameMS
		t.readFrames++
	} else {
		t.readPosMS -= frameMS
		t.readFrames--
	}
	return img, err
}

// ReadAudioSamples walks clip/overlap boundaries sample-exactly,
// zero-filling gaps, and writes one plane per channel whatever the
// geometry's sample format (spec §4.5).
func (t *Track) ReadAudioSamples(n int) (AudioBlock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := AudioBlock{Channels: t.Geometry.Channels, SampleRate: t.Geometry.SampleRate, Format: t.Geometry.SampleFormat}
	out.Planes = make([][]float32, t.Geometry.Channels)
	for i := range out.Planes {
		out.Planes[i] = make([]float32, n)
	}
	out.NumSamples = n
	remaining := n
	posMS := t.readPosMS
	sr := t.Geometry.SampleRate
	if sr == 0 {
		sr = 44100
	}
	filled := 0
	for remaining > 0 {
		if t.overlapIdx < len(t.overlaps) && posMS >= t.overlaps[t.overlapIdx].Start && posMS < t.overlaps[t.overlapIdx].End {
			o := t.overlaps[t.overlapIdx]
			blk, _ := o.ReadAudioSamples(remaining)
			copyPlanes(out.Planes, filled, blk)
			taken := blk.NumSamples
			if taken == 0 {
				taken = remaining
			}
			filled += taken
			remaining -= taken
			posMS += int64(taken) * 1000 / int64(sr)
			if posMS >= t.overlaps[t.overlapIdx].End {
				t.overlapIdx++
			}
			continue
		}
		if t.clipIdx < len(t.clips) {
			c := t.clips[t.clipIdx]
			if posMS >= c.Start && posMS < c.End() {
				blk, _ := c.ReadAudioSamples(remaining)
				copyPlanes(out.Planes, filled, blk)
				taken := blk.NumSamples
				if taken == 0 {
					taken = remaining
				}
				filled += taken
				remaining -= taken
				posMS += int64(taken) * 1000 / int64(sr)
				if posMS >= c.End() {
					t.clipIdx++
				}
				continue
			}
		}
		// Gap between clips: silence.
		remaining = 0
	}
	t.readPosMS = posMS
	return out, nil
}

func copyPlanes(dst [][]float32, offset int, src AudioBlock) {
	for ch := range dst {
		if ch >= len(src.Planes) {
			continue
		}
		n := len(src.Planes[ch])
		if offset+n > len(dst[ch]) {
			n = len(dst[ch]) - offset
		}
		if n > 0 {
			copy(dst[ch][offset:offset+n], src.Planes[ch][:n])
		}
	}
}
