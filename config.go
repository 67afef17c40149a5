package rangeindex

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BTreeParameters tunes the OrderedKeyMap substrate. Bits, PoolSize,
// MaxLeaves, and LeafExtra describe a persistent page-manager's sizing
// knobs and are carried for configuration compatibility with that
// substrate even though this repo's in-memory btree only consumes
// Delimiter directly (see btree.go's bTreeOrder for the actual node
// fan-out this implementation uses).
type BTreeParameters struct {
	Bits      int   `yaml:"bits"`
	PoolSize  int   `yaml:"poolSize"`
	MaxLeaves int   `yaml:"maxLeaves"`
	LeafExtra int   `yaml:"leafExtra"`
	Delimiter uint8 `yaml:"delimiter"`
}

// WriteQueueConfig tunes the C5 write pipeline.
type WriteQueueConfig struct {
	Capacity    int           `yaml:"capacity"`
	EnqueueWait time.Duration `yaml:"enqueueWait"`
}

// ReclaimQueueConfig tunes the C3 buffer-disposal pipeline.
type ReclaimQueueConfig struct {
	Capacity    int           `yaml:"capacity"`
	GracePeriod time.Duration `yaml:"gracePeriod"`
}

// MetricsConfig controls whether a MultiFieldIndex creates and feeds its
// Prometheus collectors. New does not register them with any registry.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls the package-level zerolog logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration for a MultiFieldIndex.
type Config struct {
	BTreeParameters BTreeParameters    `yaml:"btreeParameters"`
	WriteQueue      WriteQueueConfig   `yaml:"writeQueue"`
	ReclaimQueue    ReclaimQueueConfig `yaml:"reclaimQueue"`
	Metrics         MetricsConfig      `yaml:"metrics"`
	Logging         LoggingConfig      `yaml:"logging"`
}

// LoadConfig reads a YAML config file, if path is non-empty, layered over
// DefaultConfig, then applies RANGEINDEX_* environment overrides.
// Partially-specified files are fine: any field the file doesn't set keeps
// its default.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rangeindex: reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("rangeindex: parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultConfig returns the documented defaults: bits=16, pool_size=500,
// max_leaves=1,000,000, leaf_extra=0, delimiter=0x01.
func DefaultConfig() *Config {
	return &Config{
		BTreeParameters: BTreeParameters{
			Bits:      16,
			PoolSize:  500,
			MaxLeaves: 1_000_000,
			LeafExtra: 0,
			Delimiter: DefaultDelimiter,
		},
		WriteQueue: WriteQueueConfig{
			Capacity:    1024,
			EnqueueWait: 500 * time.Millisecond,
		},
		ReclaimQueue: ReclaimQueueConfig{
			Capacity:    1024,
			GracePeriod: DefaultGracePeriod,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyEnvOverrides reads RANGEINDEX_* environment variables, matching the
// override convention used elsewhere in the pack for container deployments
// where mounting a full YAML file is more than a single knob is worth.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RANGEINDEX_WRITE_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WriteQueue.Capacity = n
		}
	}
	if v := os.Getenv("RANGEINDEX_RECLAIM_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReclaimQueue.Capacity = n
		}
	}
	if v := os.Getenv("RANGEINDEX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RANGEINDEX_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}
