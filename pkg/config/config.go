// Package config loads and validates imaged's YAML configuration:
// cache-level tiers, eviction policy, the persistent object store, and
// the ambient logging/metrics surface.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (IMAGED_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ashgrove/imaged/internal/bytesize"
)

// Config is the top-level configuration for the imaged server.
type Config struct {
	// Logging controls log output behaviour.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// AlarmThreshold is the global default alarm_free_ratio applied to any
	// cache level that does not set its own.
	AlarmThreshold float64 `mapstructure:"alarm_threshold" validate:"gte=0,lte=1" yaml:"alarm_threshold"`

	// CanonicalFormat and CanonicalFormatUsed are loaded and saved but not
	// read by imaged: derivatives are encoded straight to their requested
	// format, with no intermediate format.
	CanonicalFormat     string `mapstructure:"canonical_format" yaml:"canonical_format,omitempty"`
	CanonicalFormatUsed bool   `mapstructure:"canonical_format_used" yaml:"canonical_format_used"`

	// CreateNew is loaded and saved but not read by imaged; no cache tier
	// is wiped at boot.
	CreateNew bool `mapstructure:"create_new" yaml:"create_new"`

	// ImageDefaultFormat is applied to a resolve request that names no
	// explicit kind.
	ImageDefaultFormat string `mapstructure:"image_default_format" validate:"required" yaml:"image_default_format"`

	// Thumbnail holds the defaults applied when a request asks for
	// thumbnail=true without overriding individual thumbnail parameters.
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail" yaml:"thumbnail"`

	// MaxImages and MaxSize are global, advisory-only diagnostics (see
	// DESIGN.md: source does not define whether these override or sum
	// with per-level caps).
	MaxImages int               `mapstructure:"max_images" yaml:"max_images,omitempty"`
	MaxSize   bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`

	// MemoryCache, LocalCache and SwiftCache configure C2 MemoryCache, C3
	// FileCache and C4 ObjectCache (the remote derivative container)
	// respectively. Names follow the source's historical terminology
	// ("swift" for the remote derivative-cache backend).
	MemoryCache CacheLevelConfig `mapstructure:"memory_cache_configuration" yaml:"memory_cache_configuration"`
	LocalCache  CacheLevelConfig `mapstructure:"local_cache_configuration" yaml:"local_cache_configuration"`
	SwiftCache  CacheLevelConfig `mapstructure:"swift_cache_configuration" yaml:"swift_cache_configuration"`

	// PersistentStore configures C5 ObjectStore, the authoritative
	// originals container.
	PersistentStore PersistentStoreConfig `mapstructure:"persistent_store_configuration" yaml:"persistent_store_configuration"`

	// PidFile and RepositoryBasePathname are externalised to the HTTP
	// collaborator; imaged's core records them only to pass through.
	PidFile              string `mapstructure:"pid_file" yaml:"pid_file,omitempty"`
	RepositoryBasePathname string `mapstructure:"repository_base_pathname" yaml:"repository_base_pathname,omitempty"`
}

// ThumbnailConfig holds the transform defaults applied to thumbnail
// requests.
type ThumbnailConfig struct {
	DefaultFormat    string  `mapstructure:"default_format" yaml:"default_format,omitempty"`
	Size             int     `mapstructure:"size" validate:"omitempty,gt=0" yaml:"size,omitempty"`
	Equalise         bool    `mapstructure:"equalise" yaml:"equalise"`
	Sharpen          bool    `mapstructure:"sharpen" yaml:"sharpen"`
	LiquidResize     bool    `mapstructure:"liquid_resize" yaml:"liquid_resize"`
	LiquidCutinRatio float64 `mapstructure:"liquid_cutin_ratio" validate:"gte=0,lte=1" yaml:"liquid_cutin_ratio,omitempty"`
}

// CacheLevelConfig configures one tier of the cache chain: its capacity,
// eviction behaviour, and writeback/priority policy (spec.md §4.2/§4.3).
type CacheLevelConfig struct {
	// Enabled allows a tier to be skipped entirely (e.g. no SwiftCache
	// configured, derivatives fall through straight to the origin).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the FileCache root directory; empty for MemoryCache/ObjectCache.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Bucket and KeyPrefix address the remote derivative-cache container
	// (ObjectCache); empty for MemoryCache/FileCache.
	Bucket    string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	MaxBytes    bytesize.ByteSize `mapstructure:"max_bytes" yaml:"max_bytes,omitempty"`
	MaxElements int               `mapstructure:"max_elements" yaml:"max_elements,omitempty"`

	EvictStartRatio float64 `mapstructure:"evict_start_ratio" validate:"omitempty,gt=0,lte=1" yaml:"evict_start_ratio,omitempty"`
	EvictStopRatio  float64 `mapstructure:"evict_stop_ratio" validate:"omitempty,gte=0,lt=1" yaml:"evict_stop_ratio,omitempty"`
	AlarmFreeRatio  float64 `mapstructure:"alarm_free_ratio" validate:"omitempty,gte=0,lte=1" yaml:"alarm_free_ratio,omitempty"`

	// Priority is one of newest, largest, smallest, thumbnail.
	Priority string `mapstructure:"priority" validate:"omitempty,oneof=newest largest smallest thumbnail" yaml:"priority,omitempty"`

	// Writeback is one of eager, lazy, never.
	Writeback string `mapstructure:"writeback" validate:"omitempty,oneof=eager lazy never" yaml:"writeback,omitempty"`

	// NextLevel names the tier immediately below this one in the chain
	// (spec.md's next_level). It is loaded and saved but not read:
	// Validate does not check it, and buildChain always orders the tiers
	// memory, local, swift.
	NextLevel string `mapstructure:"next_level" yaml:"next_level,omitempty"`

	// Initialise (*.initialise*) is loaded and saved but not read; this
	// tier's persisted state is not wiped at boot.
	Initialise bool `mapstructure:"initialise" yaml:"initialise"`
}

// PersistentStoreConfig configures C5 ObjectStore: the authoritative
// originals container plus presigned-URL parameters.
type PersistentStoreConfig struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region          string `mapstructure:"region" validate:"required" yaml:"region"`
	Bucket          string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	Initialise      bool   `mapstructure:"initialise" yaml:"initialise"`

	AccessKeyID     Credential `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey Credential `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// URLKey, when set, is the query parameter name external callers use
	// to request a presigned URL instead of a response body.
	URLKey string `mapstructure:"url_key" yaml:"url_key,omitempty"`

	URLLifetime      time.Duration `mapstructure:"url_lifetime" validate:"omitempty,gt=0" yaml:"url_lifetime,omitempty"`
	URLLifetimeSlack time.Duration `mapstructure:"url_lifetime_slack" validate:"omitempty,gte=0" yaml:"url_lifetime_slack,omitempty"`
	URLMethod        string        `mapstructure:"url_method" validate:"omitempty,oneof=GET PUT" yaml:"url_method,omitempty"`
}

// LoggingConfig controls logging behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server. When
// Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, failing with an actionable message when
// no config file exists at the requested (or default) location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"create one first, e.g.:\n  imaged config init",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML form. Credentials resolved from
// an environment variable are persisted as their resolved literal value,
// not as the ('env', VAR) tuple that produced them.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("IMAGED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom decode hooks: byte sizes,
// durations, and the ('env', VAR) credential tuple.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		credentialDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imaged")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "imaged")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
