package mediacore

import "sync"

type ClipKind int

const (
	ClipVideo ClipKind = iota
	ClipImage
	ClipAudio
)

// defaultWakeRangeMS is the default suspend/wake hysteresis band from
// spec §4.3 ("delta_ms < -wake_range or > duration + wake_range").
const defaultWakeRangeMS = 1000

// Clip is a trimmed window of one source placed at a timeline position
// (spec §3 "Clip"). Video/image/audio variants share this struct,
// switching behaviour on Kind.
type Clip struct {
	mu sync.Mutex

	ID      ID
	TrackID ID
	Kind    ClipKind

	Info MediaInfo

	Start       int64 // timeline ms
	StartOffset int64 // source ms
	EndOffset   int64 // source ms

	videoReader VideoSourceReader
	audioReader AudioSourceReader

	filter    Filter
	transform Filter // VideoTransformFilter, video clips only

	wakeRangeMS int64
	suspended   bool

	imageDurationMS int64 // Kind == ClipImage only
}

// NewVideoClip wraps an already-opened VideoSourceReader as a timeline
// clip (spec §4.3).
func NewVideoClip(id ID, reader VideoSourceReader, start, startOffset, endOffset int64) (*Clip, error) {
	srcDurMS := int64(reader.MediaInfo().DurationS * 1000)
	if err := validateClipRange(startOffset, endOffset, srcDurMS); err != nil {
		return nil, err
	}
	return &Clip{
		ID: id, TrackID: UnattachedID, Kind: ClipVideo,
		Info: reader.MediaInfo(), Start: start, StartOffset: startOffset, EndOffset: endOffset,
		videoReader: reader, wakeRangeMS: defaultWakeRangeMS,
	}, nil
}

// NewImageClip makes a still-image clip with a user-set duration (spec
// §4.3 "Image clip").
func NewImageClip(id ID, reader VideoSourceReader, start, durationMS int64) (*Clip, error) {
	if durationMS <= 0 {
		return nil, newErr(KindInvalidArgument, "NewImageClip", "duration must be > 0", nil)
	}
	info := reader.MediaInfo()
	info.IsImage = true
	return &Clip{
		ID: id, TrackID: UnattachedID, Kind: ClipImage,
		Info: info, Start: start, imageDurationMS: durationMS,
		videoReader: reader, wakeRangeMS: defaultWakeRangeMS,
	}, nil
}

// NewAudioClip mirrors NewVideoClip for the audio variant using
// sample-aware arithmetic at the reader boundary.
func NewAudioClip(id ID, reader AudioSourceReader, start, startOffset, endOffset int64) (*Clip, error) {
	srcDurMS := int64(reader.MediaInfo().DurationS * 1000)
	if err := validateClipRange(startOffset, endOffset, srcDurMS); err != nil {
		return nil, err
	}
	return &Clip{
		ID: id, TrackID: UnattachedID, Kind: ClipAudio,
		Info: reader.MediaInfo(), Start: start, StartOffset: startOffset, EndOffset: endOffset,
		audioReader: reader, wakeRangeMS: defaultWakeRangeMS,
	}, nil
}

func validateClipRange(startOffset, endOffset, srcDurMS int64) error {
	if startOffset < 0 || endOffset < 0 {
		return newErr(KindInvalidArgument, "validateClipRange", "offsets must be >= 0", nil)
	}
	if startOffset+endOffset >= srcDurMS {
		return newErr(KindInvalidArgument, "validateClipRange", "offsets exceed source duration", nil)
	}
	return nil
}

// Duration is src_dur - start_offset - end_offset for video/audio, or
// the user-set duration for images (spec §3 "Clip").
func (c *Clip) Duration() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationLocked()
}

func (c *Clip) durationLocked() int64 {
	if c.Kind == ClipImage {
		return c.imageDurationMS
	}
	srcDurMS := int64(c.Info.DurationS * 1000)
	return srcDurMS - c.StartOffset - c.EndOffset
}

// End is the clip's end timeline position (Start + Duration).
func (c *Clip) End() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Start + c.durationLocked()
}

// Range returns [Start, End) for overlap/invariant computation.
func (c *Clip) Range() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Start, c.Start + c.durationLocked()
}

func (c *Clip) SetFilter(f Filter)      { c.mu.Lock(); c.filter = f; c.mu.Unlock() }
func (c *Clip) SetTransform(f Filter)   { c.mu.Lock(); c.transform = f; c.mu.Unlock() }

// ReadVideoFrame implements spec §4.3's clip.read_video_frame for video
// and image clips: source read, then filter, then transform, in order.
func (c *Clip) ReadVideoFrame(localPosMS int64) (Image, bool, error) {
	c.mu.Lock()
	kind := c.Kind
	startOffset := c.StartOffset
	filter := c.filter
	transform := c.transform
	reader := c.videoReader
	imgDur := c.imageDurationMS
	c.mu.Unlock()

	if reader == nil {
		return Image{Empty: true}, true, newErr(KindNotConfigured, "ReadVideoFrame", "clip has no video reader", nil)
	}

	var (
		img Image
		eof bool
		err error
	)
	if kind == ClipImage {
		img, eof, err = reader.ReadVideoFrame(0, true)
		eof = localPosMS >= imgDur
	} else {
		posSeconds := float64(localPosMS+startOffset) / 1000.0
		img, eof, err = reader.ReadVideoFrame(posSeconds, true)
	}
	if err != nil {
		return img, eof, err
	}
	if filter != nil {
		img = filter.ApplyVideo(img, localPosMS)
	}
	if transform != nil {
		img = transform.ApplyVideo(img, localPosMS)
	}
	return img, eof, nil
}

// ReadAudioSamples mirrors ReadVideoFrame for audio clips.
func (c *Clip) ReadAudioSamples(n int) (AudioBlock, error) {
	c.mu.Lock()
	filter := c.filter
	reader := c.audioReader
	c.mu.Unlock()
	if reader == nil {
		return AudioBlock{}, newErr(KindNotConfigured, "ReadAudioSamples", "clip has no audio reader", nil)
	}
	blk, err := reader.ReadAudioSamples(n)
	if err != nil {
		return blk, err
	}
	if filter != nil {
		blk = filter.ApplyAudio(blk, 0)
	}
	return blk, nil
}

// SeekTo clamps to [0, duration) then seeks the underlying source,
// accounting for StartOffset (spec §4.3).
func (c *Clip) SeekTo(localPosMS int64) error {
	c.mu.Lock()
	dur := c.durationLocked()
	if localPosMS < 0 {
		localPosMS = 0
	}
	if dur > 0 && localPosMS >= dur {
		localPosMS = dur - 1
	}
	startOffset := c.StartOffset
	kind := c.Kind
	vr, ar := c.videoReader, c.audioReader
	c.mu.Unlock()

	if kind == ClipImage {
		return nil
	}
	seconds := float64(localPosMS+startOffset) / 1000.0
	if vr != nil {
		return vr.SeekTo(seconds)
	}
	if ar != nil {
		return ar.SeekTo(seconds)
	}
	return nil
}

// NotifyReadPos suspends or wakes the clip's source reader based on how
// far the current track read position is from the clip's own range
// (spec §4.3 "notify_read_pos").
func (c *Clip) NotifyReadPos(deltaMS int64) {
	c.mu.Lock()
	dur := c.durationLocked()
	wakeRange := c.wakeRangeMS
	vr, ar := c.videoReader, c.audioReader
	shouldSuspend := deltaMS < -wakeRange || deltaMS > dur+wakeRange
	alreadySuspended := c.suspended
	c.suspended = shouldSuspend
	c.mu.Unlock()

	if shouldSuspend == alreadySuspended {
		return
	}
	if shouldSuspend {
		if vr != nil {
			vr.Suspend()
		}
		if ar != nil {
			ar.Suspend()
		}
	} else {
		if vr != nil {
			vr.WakeUp()
		}
		if ar != nil {
			ar.WakeUp()
		}
	}
}

// ChangeStartOffset/ChangeEndOffset/SetStart validate the clip-range
// invariant locally; the owning Track re-checks Invariant A before
// accepting the mutation (spec §4.3 "Invariant changes").
func (c *Clip) ChangeStartOffset(v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	srcDurMS := int64(c.Info.DurationS * 1000)
	if err := validateClipRange(v, c.EndOffset, srcDurMS); err != nil && c.Kind != ClipImage {
		return err
	}
	c.StartOffset = v
	return nil
}

func (c *Clip) ChangeEndOffset(v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	srcDurMS := int64(c.Info.DurationS * 1000)
	if err := validateClipRange(c.StartOffset, v, srcDurMS); err != nil && c.Kind != ClipImage {
		return err
	}
	c.EndOffset = v
	return nil
}

func (c *Clip) SetStart(v int64) {
	c.mu.Lock()
	c.Start = v
	c.mu.Unlock()
}

func (c *Clip) Close() error {
	c.mu.Lock()
	vr, ar := c.videoReader, c.audioReader
	c.mu.Unlock()
	if vr != nil {
		return vr.Close()
	}
	if ar != nil {
		return ar.Close()
	}
	return nil
}
