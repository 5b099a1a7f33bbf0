package mediacore

// Overlap is the auto-derived pair region where two clips on the same
// track intersect (spec §3 "Overlap", §4.4). Grounded on the interval
// intersection and transition-expansion logic of the OpenTimelineIO-style
// algorithms package (otio-algo's TrackTrimmedToRange/expandTransition).
type Overlap struct {
	ID    ID
	Front *Clip // front.start <= rear.start
	Rear  *Clip

	Start int64
	End   int64

	Transition Transition
}

// hasOverlap is the standard interval intersection test on [start, end)
// (spec §4.4 "has_overlap").
func hasOverlap(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart < bEnd && bStart < aEnd
}

// NewOverlap builds an Overlap for two clips already known to intersect,
// defaulting front/rear by Start and attaching the default transition.
func NewOverlap(id ID, a, b *Clip, transition Transition) *Overlap {
	aStart, aEnd := a.Range()
	bStart, bEnd := b.Range()
	o := &Overlap{ID: id}
	if aStart <= bStart {
		o.Front, o.Rear = a, b
	} else {
		o.Front, o.Rear = b, a
	}
	if transition == nil {
		transition = CrossFadeTransition{}
	}
	o.Transition = transition
	o.recompute(aStart, aEnd, bStart, bEnd)
	return o
}

// Update reorders front/rear by Start and recomputes [Start, End); if the
// clips no longer intersect it degenerates to Start=End=0, a state the
// owning Track immediately garbage-collects (spec §4.4 "Overlap.update").
func (o *Overlap) Update() {
	fStart, fEnd := o.Front.Range()
	rStart, rEnd := o.Rear.Range()
	if fStart > rStart {
		o.Front, o.Rear = o.Rear, o.Front
		fStart, fEnd, rStart, rEnd = rStart, rEnd, fStart, fEnd
	}
	o.recompute(fStart, fEnd, rStart, rEnd)
}

func (o *Overlap) recompute(fStart, fEnd, rStart, rEnd int64) {
	if fEnd <= rStart {
		o.Start, o.End = 0, 0
		return
	}
	o.Start = rStart
	if fEnd < rEnd {
		o.End = fEnd
	} else {
		o.End = rEnd
	}
}

// Degenerate reports whether this overlap's two clips no longer
// intersect (spec §4.4).
func (o *Overlap) Degenerate() bool { return o.Start == o.End }

func (o *Overlap) Duration() int64 { return o.End - o.Start }

// Intersects is the Invariant A / Invariant B helper: does [start,end)
// intersect this overlap's range at all?
func (o *Overlap) Intersects(start, end int64) bool {
	return hasOverlap(start, end, o.Start, o.End)
}

// ReadVideoFrame implements spec §4.4's overlap.read_video_frame:
// compute each clip's local position relative to its own start, read
// both, and mix via the transition (or pass through the non-empty one).
func (o *Overlap) ReadVideoFrame(localPosMS int64) (Image, bool, error) {
	frontLocal := localPosMS + o.Start - o.Front.Start
	rearLocal := localPosMS + o.Start - o.Rear.Start

	frontImg, frontEOF, err := o.Front.ReadVideoFrame(frontLocal)
	if err != nil {
		frontImg = Image{Empty: true}
	}
	rearImg, rearEOF, err := o.Rear.ReadVideoFrame(rearLocal)
	if err != nil {
		rearImg = Image{Empty: true}
	}

	eof := localPosMS == o.Duration()
	if frontImg.Empty {
		return rearImg, eof || rearEOF, nil
	}
	if rearImg.Empty {
		return frontImg, eof || frontEOF, nil
	}
	return o.Transition.MixVideo(frontImg, rearImg, localPosMS, o.Duration()), eof, nil
}

// ReadAudioSamples mirrors ReadVideoFrame for audio overlaps.
func (o *Overlap) ReadAudioSamples(n int) (AudioBlock, error) {
	front, _ := o.Front.ReadAudioSamples(n)
	rear, err := o.Rear.ReadAudioSamples(n)
	if err != nil {
		return front, err
	}
	return o.Transition.MixAudio(front, rear, 0, o.Duration()), nil
}
