package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct `validate` tags plus the
// cross-field rules validator tags cannot express (eviction-ratio
// ordering, at least one persisted store configured).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	for _, lvl := range []struct {
		name string
		cfg  CacheLevelConfig
	}{
		{"memory_cache_configuration", cfg.MemoryCache},
		{"local_cache_configuration", cfg.LocalCache},
		{"swift_cache_configuration", cfg.SwiftCache},
	} {
		if !lvl.cfg.Enabled {
			continue
		}
		if lvl.cfg.EvictStopRatio >= lvl.cfg.EvictStartRatio {
			return fmt.Errorf("%s: evict_stop_ratio (%.2f) must be less than evict_start_ratio (%.2f)",
				lvl.name, lvl.cfg.EvictStopRatio, lvl.cfg.EvictStartRatio)
		}
	}

	if cfg.PersistentStore.Bucket == "" {
		return fmt.Errorf("persistent_store_configuration.bucket is required")
	}

	return nil
}

// formatValidationError turns validator's per-field errors into a
// single readable message.
func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var msgs []string
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
