// Package config loads the daemon's tunables — isolation directory,
// on-disk layout roots, concurrency caps, TTL batch size, HTTP retry
// schedule — from a YAML file, environment variables, or defaults, via
// viper. Grounded in the teacher's cli.initConfig/viper.BindPFlag pattern,
// adapted from a Cobra-bound CLI to a library-style Load(path).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the engine and materializer read at startup.
type Config struct {
	// IsolationDir is the project root every ProjectFS path is relative to.
	IsolationDir string `mapstructure:"isolation_dir"`

	// OutputRoot is where materialized artifacts land, relative to IsolationDir.
	OutputRoot string `mapstructure:"output_root"`

	// ConcurrentReads and ConcurrentDirListings cap the materializer's
	// blocking I/O pool (spec §5).
	ConcurrentReads       int64 `mapstructure:"concurrent_reads"`
	ConcurrentDirListings int64 `mapstructure:"concurrent_dir_listings"`

	// TTLBatchSize bounds how many digests a single RefreshTTLs pass sends
	// to the CAS client at once (an open question spec.md §9 leaves to
	// implementers: "TTL refresh batching size is not fixed by the source").
	TTLBatchSize int `mapstructure:"ttl_batch_size"`

	// HTTPRetrySchedule is the fixed backoff between HTTP fetch attempts
	// (spec §4.2.4). It is not read from the config file or environment:
	// Load always sets it to the code default.
	HTTPRetrySchedule []time.Duration `mapstructure:"-"`

	// StoreDriver selects the materializer/store.Store backend: "memory",
	// "sqlite", or "mysql".
	StoreDriver string `mapstructure:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn"`

	// PrometheusNamespace prefixes every metric this daemon registers.
	PrometheusNamespace string `mapstructure:"prometheus_namespace"`
}

func defaults() *Config {
	return &Config{
		IsolationDir:          ".",
		OutputRoot:            "buck-out",
		ConcurrentReads:       100,
		ConcurrentDirListings: 400,
		TTLBatchSize:          500,
		HTTPRetrySchedule:     []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		StoreDriver:           "memory",
		PrometheusNamespace:   "dicemat",
	}
}

// Load reads configuration from path (if non-empty and present), then
// layers in DICEMAT_-prefixed environment variables, falling back to
// defaults for anything unset. A missing path is not an error — it just
// means every field takes its default or environment value, matching the
// teacher's "read config file if available" tolerance.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DICEMAT")
	v.AutomaticEnv()

	cfg := defaults()
	v.SetDefault("isolation_dir", cfg.IsolationDir)
	v.SetDefault("output_root", cfg.OutputRoot)
	v.SetDefault("concurrent_reads", cfg.ConcurrentReads)
	v.SetDefault("concurrent_dir_listings", cfg.ConcurrentDirListings)
	v.SetDefault("ttl_batch_size", cfg.TTLBatchSize)
	v.SetDefault("store_driver", cfg.StoreDriver)
	v.SetDefault("store_dsn", cfg.StoreDSN)
	v.SetDefault("prometheus_namespace", cfg.PrometheusNamespace)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	// HTTPRetrySchedule is deliberately excluded from mapstructure binding
	// (spec §4.2.4 fixes it); it stays at its default regardless of input.
	cfg.HTTPRetrySchedule = defaults().HTTPRetrySchedule
	return cfg, nil
}
