package cachetune

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the factory- and profiler-facing parameters read once from
// the environment, grounded on spec.md §6's table and on the teacher's
// internal/options.ParseOptionsFile numeric-parsing idiom (strconv with a
// documented default when a variable is absent; a value that fails to
// parse makes ConfigFromEnv return a *ConfigError), retargeted from an
// OPTIONS file to os.LookupEnv. These are disjoint from the manager's own
// env vars (CACHE_TOTAL_SIZE, CACHE_MIN_SIZE, CACHE_TUNING_UNIT,
// CACHE_TUNING_INTERVAL, CACHE_TUNING_STRATEGY, CACHE_PROFLER_CLEAR,
// CACHE_STABLE_STEPS — see internal/manager.NewManager), which the manager
// reads for itself.
type Config struct {
	// ReportInterval is CACHE_REPORT_INTERVAL: log cache stats every N updates.
	// Factory does not pass this value to the engines it builds, and no
	// engine or manager in this module reads it.
	ReportInterval int64
	// ProfilerBucketSize is CACHE_PROFILER_BUCKET_SIZE: reuse-time histogram bucket width.
	ProfilerBucketSize int64
	// ProfilerMaxReuseDist is CACHE_PROFILER_MAX_REUSE_DIST: overflow threshold.
	ProfilerMaxReuseDist int64
	// ProfilerSamplingInterval is CACHE_PROFILER_SAMPLING_INTERVAL: Bernoulli sampling denominator.
	ProfilerSamplingInterval int64
	// ShardShift is CACHE_SHARD_SHIFT: log2(number of shards).
	ShardShift int64
}

// ConfigError reports a malformed or out-of-range configuration value.
// Mirrors spec.md §7's "Configuration error" class.
type ConfigError struct {
	Var   string
	Value string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cachetune: invalid %s=%q: %s", e.Var, e.Value, e.Msg)
}

func envInt64(name string, def int64) (int64, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &ConfigError{Var: name, Value: v, Msg: "not a valid integer"}
	}
	return n, nil
}

// ConfigFromEnv reads Config from the environment, applying spec.md §6's
// defaults for any variable that is absent. It returns a *ConfigError if a
// present variable fails to parse, or if ShardShift is negative.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	var err error

	if cfg.ReportInterval, err = envInt64("CACHE_REPORT_INTERVAL", 10000); err != nil {
		return Config{}, err
	}
	if cfg.ProfilerBucketSize, err = envInt64("CACHE_PROFILER_BUCKET_SIZE", 10); err != nil {
		return Config{}, err
	}
	if cfg.ProfilerMaxReuseDist, err = envInt64("CACHE_PROFILER_MAX_REUSE_DIST", 100000); err != nil {
		return Config{}, err
	}
	if cfg.ProfilerSamplingInterval, err = envInt64("CACHE_PROFILER_SAMPLING_INTERVAL", 1); err != nil {
		return Config{}, err
	}
	if cfg.ShardShift, err = envInt64("CACHE_SHARD_SHIFT", 0); err != nil {
		return Config{}, err
	}
	if cfg.ShardShift < 0 {
		return Config{}, &ConfigError{
			Var: "CACHE_SHARD_SHIFT", Value: strconv.FormatInt(cfg.ShardShift, 10),
			Msg: "must be >= 0",
		}
	}
	return cfg, nil
}
