package config

import (
	"strings"
	"time"
)

// GetDefaultConfig returns a Config with every default applied, used
// when no config file is present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any unspecified configuration field with a
// sensible default. Zero values (0, "", false) are replaced; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.AlarmThreshold == 0 {
		cfg.AlarmThreshold = 0.1
	}
	if cfg.ImageDefaultFormat == "" {
		cfg.ImageDefaultFormat = "jpg"
	}

	applyThumbnailDefaults(&cfg.Thumbnail, cfg.ImageDefaultFormat)

	applyCacheLevelDefaults(&cfg.MemoryCache, cfg.AlarmThreshold)
	applyCacheLevelDefaults(&cfg.LocalCache, cfg.AlarmThreshold)
	applyCacheLevelDefaults(&cfg.SwiftCache, cfg.AlarmThreshold)

	applyPersistentStoreDefaults(&cfg.PersistentStore)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyThumbnailDefaults(cfg *ThumbnailConfig, imageDefaultFormat string) {
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = imageDefaultFormat
	}
	if cfg.Size == 0 {
		cfg.Size = 150
	}
	if cfg.LiquidCutinRatio == 0 {
		cfg.LiquidCutinRatio = 0.5
	}
}

// applyCacheLevelDefaults fills in eviction-ratio and policy defaults
// for a single cache tier; an unset alarm_free_ratio takes the global
// alarmThreshold. Path/Bucket get no default; Enabled alone decides
// whether the tier is built.
func applyCacheLevelDefaults(cfg *CacheLevelConfig, alarmThreshold float64) {
	if cfg.EvictStartRatio == 0 {
		cfg.EvictStartRatio = 0.9
	}
	if cfg.EvictStopRatio == 0 {
		cfg.EvictStopRatio = 0.75
	}
	if cfg.AlarmFreeRatio == 0 {
		cfg.AlarmFreeRatio = alarmThreshold
	}
	if cfg.Priority == "" {
		cfg.Priority = "newest"
	}
	if cfg.Writeback == "" {
		cfg.Writeback = "lazy"
	}
}

func applyPersistentStoreDefaults(cfg *PersistentStoreConfig) {
	if cfg.URLLifetime == 0 {
		cfg.URLLifetime = 15 * time.Minute
	}
	if cfg.URLLifetimeSlack == 0 {
		cfg.URLLifetimeSlack = 30 * time.Second
	}
	if cfg.URLMethod == "" {
		cfg.URLMethod = "GET"
	}
}
