package mediacore

import (
	"math"
	"strconv"
)

// EffectID names one stage of an AudioEffectFilter's chain, mirroring
// the FilterID-keyed builder registry of jivetalking's filters.go.
type EffectID string

const (
	EffectVolume     EffectID = "volume"
	EffectCompressor EffectID = "compressor"
	EffectGate       EffectID = "gate"
	EffectEqualizer  EffectID = "equalizer"
	EffectLimiter    EffectID = "limiter"
	EffectPan        EffectID = "pan"
)

// defaultEffectOrder is the fixed chain order applied when building the
// textual filter-graph spec, analogous to jivetalking's Pass1FilterOrder.
var defaultEffectOrder = []EffectID{EffectGate, EffectEqualizer, EffectCompressor, EffectLimiter, EffectVolume, EffectPan}

// AudioEffectFilterConfig holds the six parameter groups spec §4.7
// names: Volume, Compressor, Gate, Equalizer, Limiter, Pan, plus Mute.
type AudioEffectFilterConfig struct {
	Mute bool

	VolumeDB float64

	CompressorThresholdDB float64
	CompressorRatio       float64
	CompressorAttackMS    float64
	CompressorReleaseMS   float64

	GateThresholdDB float64
	GateAttackMS    float64
	GateReleaseMS   float64

	EqLowGainDB  float64
	EqMidGainDB  float64
	EqHighGainDB float64

	LimiterCeilingDB float64

	PanPosition float64 // -1 (left) .. +1 (right)
}

// filterBuilderFunc renders one stage of the spec-library textual filter
// graph, mirroring jivetalking's filterBuilders registry shape.
type filterBuilderFunc func(cfg AudioEffectFilterConfig) string

var effectBuilders = map[EffectID]filterBuilderFunc{
	EffectVolume: func(cfg AudioEffectFilterConfig) string {
		return sprintfVolume(cfg.VolumeDB)
	},
	EffectCompressor: func(cfg AudioEffectFilterConfig) string {
		return sprintfCompressor(cfg.CompressorThresholdDB, cfg.CompressorRatio, cfg.CompressorAttackMS, cfg.CompressorReleaseMS)
	},
	EffectGate: func(cfg AudioEffectFilterConfig) string {
		return sprintfGate(cfg.GateThresholdDB, cfg.GateAttackMS, cfg.GateReleaseMS)
	},
	EffectEqualizer: func(cfg AudioEffectFilterConfig) string {
		return sprintfEQ(cfg.EqLowGainDB, cfg.EqMidGainDB, cfg.EqHighGainDB)
	},
	EffectLimiter: func(cfg AudioEffectFilterConfig) string {
		return sprintfLimiter(cfg.LimiterCeilingDB)
	},
	EffectPan: func(cfg AudioEffectFilterConfig) string {
		return sprintfPan(cfg.PanPosition)
	},
}

// AudioEffectFilter implements spec §4.7: a live-updatable parameter set
// whose default (non-external-codec-library) execution path runs the DSP
// in-process, adapted from the teacher's audio_chip.go envelope/
// state-variable-filter/reverb network repurposed from a per-sample
// oscillator chip to a PCM-block effect chain.
type AudioEffectFilter struct {
	cfg AudioEffectFilterConfig

	// svf state per channel, for the Equalizer stage.
	svfLow, svfBand []float64

	// envelope follower state per channel, updated by the Compressor; the
	// Gate starts its own follow from it. The Limiter is a plain clamp.
	envelope []float64
}

// NewAudioEffectFilter returns a filter with all stages at identity
// (0 dB, no gate/compression, centred pan).
func NewAudioEffectFilter() *AudioEffectFilter {
	return &AudioEffectFilter{cfg: AudioEffectFilterConfig{
		LimiterCeilingDB: 0,
		GateThresholdDB:  math.Inf(-1),
	}}
}

func (f *AudioEffectFilter) Clone() Filter {
	clone := *f
	clone.svfLow = append([]float64(nil), f.svfLow...)
	clone.svfBand = append([]float64(nil), f.svfBand...)
	clone.envelope = append([]float64(nil), f.envelope...)
	return &clone
}

// Configure replaces the live parameter set. Unlike a rebuild, this
// never tears down filter-graph state; it is the "send_command"-style
// live update spec §4.7 describes.
func (f *AudioEffectFilter) Configure(cfg AudioEffectFilterConfig) { f.cfg = cfg }

// FilterGraphSpec renders the current parameters as a textual,
// comma-joined filter-graph spec for an external codec-library path
// (spec §4.7, grounded on jivetalking's buildXFilter functions).
func (f *AudioEffectFilter) FilterGraphSpec() string {
	spec := ""
	for i, id := range defaultEffectOrder {
		if i > 0 {
			spec += ","
		}
		spec += string(id) + "=" + effectBuilders[id](f.cfg)
	}
	return spec
}

func (f *AudioEffectFilter) ApplyVideo(img Image, posMS int64) Image { return img }

// ApplyAudio runs the in-process DSP chain over b in place (spec §4.7).
func (f *AudioEffectFilter) ApplyAudio(b AudioBlock, posMS int64) AudioBlock {
	if f.cfg.Mute {
		for ch := range b.Planes {
			for i := range b.Planes[ch] {
				b.Planes[ch][i] = 0
			}
		}
		return b
	}
	f.ensureState(len(b.Planes))
	for ch := range b.Planes {
		for i, s := range b.Planes[ch] {
			s = f.applyGate(ch, s)
			s = f.applyEqualizer(ch, s)
			s = f.applyCompressor(ch, s)
			s = f.applyLimiter(s)
			s = f.applyVolume(s)
			b.Planes[ch][i] = s
		}
	}
	f.applyPan(b)
	return b
}

func (f *AudioEffectFilter) ensureState(channels int) {
	for len(f.envelope) < channels {
		f.envelope = append(f.envelope, 0)
		f.svfLow = append(f.svfLow, 0)
		f.svfBand = append(f.svfBand, 0)
	}
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

func (f *AudioEffectFilter) applyVolume(s float32) float32 {
	return float32(float64(s) * dbToLinear(f.cfg.VolumeDB))
}

// applyEqualizer is a three-band shelf/peak built on the teacher's
// state-variable filter (audio_chip.go's lp/hp/bp network), here used
// as a coarse low/mid/high gain stage rather than the chip's resonant
// sweep filter.
func (f *AudioEffectFilter) applyEqualizer(ch int, s float32) float32 {
	const cutoff = 0.15 // normalized corner between low and high bands
	x := float64(s)
	band := f.svfBand[ch]
	low := f.svfLow[ch] + cutoff*band
	high := x - low - band
	f.svfLow[ch], f.svfBand[ch] = low, band+cutoff*high
	return float32(low*dbToLinear(f.cfg.EqLowGainDB) + band*dbToLinear(f.cfg.EqMidGainDB) + high*dbToLinear(f.cfg.EqHighGainDB))
}

// applyCompressor is an envelope-follower gain reduction above threshold,
// adapted from audio_chip.go's updateEnvelope ADSR shape (attack/release
// become the follower's rise/fall time constants instead of a note
// envelope).
func (f *AudioEffectFilter) applyCompressor(ch int, s float32) float32 {
	level := math.Abs(float64(s))
	f.envelope[ch] = followEnvelope(f.envelope[ch], level, f.cfg.CompressorAttackMS, f.cfg.CompressorReleaseMS)
	thresh := dbToLinear(f.cfg.CompressorThresholdDB)
	if f.envelope[ch] <= thresh || f.cfg.CompressorRatio <= 1 {
		return s
	}
	over := f.envelope[ch] / thresh
	reduced := thresh * math.Pow(over, 1.0/f.cfg.CompressorRatio)
	gain := reduced / f.envelope[ch]
	return float32(float64(s) * gain)
}

func (f *AudioEffectFilter) applyGate(ch int, s float32) float32 {
	level := math.Abs(float64(s))
	env := followEnvelope(f.envelope[ch], level, f.cfg.GateAttackMS, f.cfg.GateReleaseMS)
	thresh := dbToLinear(f.cfg.GateThresholdDB)
	if env < thresh {
		return 0
	}
	return s
}

func (f *AudioEffectFilter) applyLimiter(s float32) float32 {
	ceiling := float32(dbToLinear(f.cfg.LimiterCeilingDB))
	if s > ceiling {
		return ceiling
	}
	if s < -ceiling {
		return -ceiling
	}
	return s
}

func (f *AudioEffectFilter) applyPan(b AudioBlock) {
	if len(b.Planes) != 2 || f.cfg.PanPosition == 0 {
		return
	}
	left := math.Min(1, 1-f.cfg.PanPosition)
	right := math.Min(1, 1+f.cfg.PanPosition)
	for i := range b.Planes[0] {
		b.Planes[0][i] *= float32(left)
		b.Planes[1][i] *= float32(right)
	}
}

// followEnvelope is a one-pole attack/release follower, the same shape
// as the teacher's ADSR attack/decay phase stepping in
// Channel.updateEnvelope, generalized from a fixed per-sample step to a
// time-constant-driven follower.
func followEnvelope(prev, target, attackMS, releaseMS float64) float64 {
	rate := releaseMS
	if target > prev {
		rate = attackMS
	}
	if rate <= 0 {
		return target
	}
	coeff := math.Exp(-1.0 / (rate * 44.1)) // approx at 44.1kHz/ms
	return target + coeff*(prev-target)
}

func sprintfVolume(db float64) string     { return floatArg(db) + "dB" }
func sprintfCompressor(th, ratio, a, r float64) string {
	return "threshold=" + floatArg(th) + ":ratio=" + floatArg(ratio) + ":attack=" + floatArg(a) + ":release=" + floatArg(r)
}
func sprintfGate(th, a, r float64) string {
	return "threshold=" + floatArg(th) + ":attack=" + floatArg(a) + ":release=" + floatArg(r)
}
func sprintfEQ(low, mid, high float64) string {
	return "low=" + floatArg(low) + ":mid=" + floatArg(mid) + ":high=" + floatArg(high)
}
func sprintfLimiter(ceiling float64) string { return "limit=" + floatArg(ceiling) + "dB" }
func sprintfPan(pos float64) string         { return floatArg(pos) }

func floatArg(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
