package mediacore

import (
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EngineConfig holds the programmatic knobs spec §6 calls out for test
// harnesses (cache sizes, poll intervals, probe duration) plus the
// worker-count/queue-capacity values spec §5 leaves to the implementation.
type EngineConfig struct {
	// SourceReader cache window, in seconds, around the current read
	// position (spec §4.1 "Cache window").
	ForwardCacheS  float64 `mapstructure:"forward_cache_s" yaml:"forward_cache_s"`
	BackwardCacheS float64 `mapstructure:"backward_cache_s" yaml:"backward_cache_s"`

	// Bound on in-flight converted-but-unclaimed frames (spec §8
	// "Cache bound").
	MaxPendingConvert int `mapstructure:"max_pending_convert" yaml:"max_pending_convert"`

	// Worker poll interval when idle (spec §5 "bounded sleep").
	WorkerPollInterval time.Duration `mapstructure:"worker_poll_interval" yaml:"worker_poll_interval"`

	// Composer output queue capacity.
	OutputQueueCapacity int `mapstructure:"output_queue_capacity" yaml:"output_queue_capacity"`

	// Audio probe-mode steady-play time before the fade-out starts (spec
	// §4.6 "Probe mode").
	ProbeDurationMS int64 `mapstructure:"probe_duration_ms" yaml:"probe_duration_ms"`

	// Audio mixing block size in samples (spec §4.6 "fixed-size sample block").
	AudioBlockSize int `mapstructure:"audio_block_size" yaml:"audio_block_size"`

	// Snapshot generator default cache_factor (spec §4.8).
	SnapshotCacheFactor float64 `mapstructure:"snapshot_cache_factor" yaml:"snapshot_cache_factor"`
}

// DefaultEngineConfig returns the spec's stated defaults where given
// (probe_duration, cache_factor=10) and otherwise conservative values
// matching the teacher's own constants (5ms worker poll).
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ForwardCacheS:       2.0,
		BackwardCacheS:      1.0,
		MaxPendingConvert:   16,
		WorkerPollInterval:  5 * time.Millisecond,
		OutputQueueCapacity: 8,
		ProbeDurationMS:     300,
		AudioBlockSize:      1024,
		SnapshotCacheFactor: 10.0,
	}
}

// LoadEngineConfig reads an EngineConfig from a YAML/JSON/TOML file and
// environment overrides (MEDIACORE_ prefix), layered on top of
// DefaultEngineConfig so a partial file is enough.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	v := viper.New()
	v.SetEnvPrefix("MEDIACORE")
	v.AutomaticEnv()
	v.SetDefault("forward_cache_s", cfg.ForwardCacheS)
	v.SetDefault("backward_cache_s", cfg.BackwardCacheS)
	v.SetDefault("max_pending_convert", cfg.MaxPendingConvert)
	v.SetDefault("worker_poll_interval", cfg.WorkerPollInterval)
	v.SetDefault("output_queue_capacity", cfg.OutputQueueCapacity)
	v.SetDefault("probe_duration_ms", cfg.ProbeDurationMS)
	v.SetDefault("audio_block_size", cfg.AudioBlockSize)
	v.SetDefault("snapshot_cache_factor", cfg.SnapshotCacheFactor)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, newErr(KindExternalFailure, "LoadEngineConfig", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, newErr(KindExternalFailure, "LoadEngineConfig", "unmarshal", err)
	}
	return cfg, nil
}

// SaveEngineConfig writes cfg to path as YAML, letting a caller persist
// values edited at runtime (e.g. a settings UI) back to disk the way the
// teacher's updateSettingsHandler does for its own config file.
func SaveEngineConfig(cfg EngineConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return newErr(KindInvalidArgument, "SaveEngineConfig", "marshal", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newErr(KindExternalFailure, "SaveEngineConfig", path, err)
	}
	return nil
}
