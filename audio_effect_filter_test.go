package mediacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func blockOf(samples ...float32) AudioBlock {
	return AudioBlock{Planes: [][]float32{append([]float32(nil), samples...)}, Channels: 1, NumSamples: len(samples)}
}

func TestAudioEffectFilterMuteZeroesAllSamples(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{Mute: true})

	out := f.ApplyAudio(blockOf(0.5, -0.3, 1.0), 0)
	for _, s := range out.Planes[0] {
		assert.Equal(t, float32(0), s)
	}
}

func TestAudioEffectFilterVolumeAppliesGain(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{VolumeDB: 0, LimiterCeilingDB: 20, GateThresholdDB: -120})

	unity := f.ApplyAudio(blockOf(0.5), 0)
	assert.InDelta(t, 0.5, float64(unity.Planes[0][0]), 0.01)

	f2 := NewAudioEffectFilter()
	f2.Configure(AudioEffectFilterConfig{VolumeDB: -6, LimiterCeilingDB: 20, GateThresholdDB: -120})
	attenuated := f2.ApplyAudio(blockOf(0.5), 0)
	assert.Less(t, float64(attenuated.Planes[0][0]), 0.5)
}

func TestAudioEffectFilterLimiterClampsToCeiling(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{LimiterCeilingDB: 0})

	out := f.ApplyAudio(blockOf(2.0, -2.0), 0)
	assert.LessOrEqual(t, out.Planes[0][0], float32(1.0001))
	assert.GreaterOrEqual(t, out.Planes[0][1], float32(-1.0001))
}

func TestAudioEffectFilterGateSilencesBelowThreshold(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{GateThresholdDB: 0, LimiterCeilingDB: 20})

	out := f.ApplyAudio(blockOf(0.001), 0)
	assert.Equal(t, float32(0), out.Planes[0][0])
}

func TestAudioEffectFilterPanRequiresStereo(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{PanPosition: 1.0, LimiterCeilingDB: 20})

	mono := blockOf(1.0)
	out := f.ApplyAudio(mono, 0)
	assert.InDelta(t, 1.0, float64(out.Planes[0][0]), 0.01, "pan is a no-op on mono blocks")
}

func TestAudioEffectFilterPanHardLeftSilencesRightChannel(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{PanPosition: -1.0, LimiterCeilingDB: 20})

	stereo := AudioBlock{Planes: [][]float32{{1.0}, {1.0}}, Channels: 2, NumSamples: 1}
	out := f.ApplyAudio(stereo, 0)
	assert.InDelta(t, 1.0, float64(out.Planes[0][0]), 0.01)
	assert.InDelta(t, 0.0, float64(out.Planes[1][0]), 0.01)
}

func TestAudioEffectFilterCloneIsIndependent(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{VolumeDB: -3, LimiterCeilingDB: 20})
	f.ApplyAudio(blockOf(0.5), 0) // seed envelope state

	clone := f.Clone().(*AudioEffectFilter)
	clone.Configure(AudioEffectFilterConfig{VolumeDB: -20, LimiterCeilingDB: 20})

	assert.NotEqual(t, f.cfg.VolumeDB, clone.cfg.VolumeDB)
}

func TestAudioEffectFilterGraphSpecOrdersStages(t *testing.T) {
	t.Parallel()
	f := NewAudioEffectFilter()
	f.Configure(AudioEffectFilterConfig{VolumeDB: -3, LimiterCeilingDB: 0})
	spec := f.FilterGraphSpec()
	assert.Contains(t, spec, "volume=-3.00dB")
	assert.Contains(t, spec, "limiter=limit=0.00dB")
}
