package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/IvanBrykalov/tiercache/policy"
	"github.com/IvanBrykalov/tiercache/policy/fifo"
	"github.com/IvanBrykalov/tiercache/policy/lfu"
	"github.com/IvanBrykalov/tiercache/policy/lru"
	"github.com/IvanBrykalov/tiercache/policy/ttl"
)

// Defaults applied by DefaultConfig and by New for zero-valued limits.
const (
	DefaultMaxSizeBytes         int64 = 100 * 1024 * 1024
	DefaultMaxEntries                 = 10_000
	DefaultTTL                        = time.Hour
	DefaultCompressionThreshold int64 = 1024
	DefaultCleanupInterval            = 30 * time.Second
	DefaultCleanupBatchSize           = 256
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("cache: invalid config")

// EvictionPolicy selects the strategy used when the hot tier is full.
type EvictionPolicy string

const (
	PolicyLRU  EvictionPolicy = "lru"
	PolicyLFU  EvictionPolicy = "lfu"
	PolicyFIFO EvictionPolicy = "fifo"
	PolicyTTL  EvictionPolicy = "ttl"
)

// ParseEvictionPolicy accepts lru, lfu, fifo or ttl in any case.
// The empty string selects LRU.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch p := EvictionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyLRU, nil
	case PolicyLRU, PolicyLFU, PolicyFIFO, PolicyTTL:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown eviction policy %q", ErrInvalidConfig, s)
	}
}

func (p EvictionPolicy) String() string {
	if p == "" {
		return string(PolicyLRU)
	}
	return string(p)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *EvictionPolicy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseEvictionPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// factory maps the configured name onto a policy implementation.
func (p EvictionPolicy) factory() policy.Policy {
	switch p {
	case PolicyLFU:
		return lfu.New()
	case PolicyFIFO:
		return fifo.New()
	case PolicyTTL:
		return ttl.New()
	default:
		return lru.New()
	}
}

// Config is the serializable part of the cache configuration.
// It is copied by New and never changes afterwards.
type Config struct {
	// MaxSizeBytes bounds the summed estimated size of hot-tier entries.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
	// MaxEntries bounds the number of hot-tier entries.
	MaxEntries int `yaml:"max_entries"`
	// DefaultTTL applies to Put; zero means entries never expire.
	DefaultTTL        time.Duration  `yaml:"default_ttl"`
	StatisticsEnabled bool           `yaml:"statistics_enabled"`
	EvictionPolicy    EvictionPolicy `yaml:"eviction_policy"`

	CompressionEnabled bool `yaml:"compression_enabled"`
	// CompressionThreshold is the raw payload size above which string and
	// []byte values are stored compressed.
	CompressionThreshold int64 `yaml:"compression_threshold"`

	// Warm tier bounds. Zero mirrors the hot-tier limit.
	WarmMaxSizeBytes int64 `yaml:"warm_max_size_bytes"`
	WarmMaxEntries   int   `yaml:"warm_max_entries"`

	// Janitor schedule. A negative interval disables the background sweep.
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	CleanupBatchSize int           `yaml:"cleanup_batch_size"`
}

// seconds reads a YAML duration. Bare numbers are seconds ("3600", "1.5");
// strings use Go syntax ("90s", "1h").
type seconds time.Duration

func (s *seconds) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n float64
	if err := unmarshal(&n); err == nil {
		*s = seconds(time.Duration(n * float64(time.Second)))
		return nil
	}
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return err
	}
	*s = seconds(d)
	return nil
}

// configYAML mirrors Config with duration fields read as seconds.
type configYAML struct {
	MaxSizeBytes         int64          `yaml:"max_size_bytes"`
	MaxEntries           int            `yaml:"max_entries"`
	DefaultTTL           seconds        `yaml:"default_ttl"`
	StatisticsEnabled    bool           `yaml:"statistics_enabled"`
	EvictionPolicy       EvictionPolicy `yaml:"eviction_policy"`
	CompressionEnabled   bool           `yaml:"compression_enabled"`
	CompressionThreshold int64          `yaml:"compression_threshold"`
	WarmMaxSizeBytes     int64          `yaml:"warm_max_size_bytes"`
	WarmMaxEntries       int            `yaml:"warm_max_entries"`
	CleanupInterval      seconds        `yaml:"cleanup_interval"`
	CleanupBatchSize     int            `yaml:"cleanup_batch_size"`
}

// UnmarshalYAML implements yaml.Unmarshaler. Keys absent from the document
// keep their current values, so decoding onto DefaultConfig overlays it.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := configYAML{
		MaxSizeBytes:         c.MaxSizeBytes,
		MaxEntries:           c.MaxEntries,
		DefaultTTL:           seconds(c.DefaultTTL),
		StatisticsEnabled:    c.StatisticsEnabled,
		EvictionPolicy:       c.EvictionPolicy,
		CompressionEnabled:   c.CompressionEnabled,
		CompressionThreshold: c.CompressionThreshold,
		WarmMaxSizeBytes:     c.WarmMaxSizeBytes,
		WarmMaxEntries:       c.WarmMaxEntries,
		CleanupInterval:      seconds(c.CleanupInterval),
		CleanupBatchSize:     c.CleanupBatchSize,
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*c = Config{
		MaxSizeBytes:         raw.MaxSizeBytes,
		MaxEntries:           raw.MaxEntries,
		DefaultTTL:           time.Duration(raw.DefaultTTL),
		StatisticsEnabled:    raw.StatisticsEnabled,
		EvictionPolicy:       raw.EvictionPolicy,
		CompressionEnabled:   raw.CompressionEnabled,
		CompressionThreshold: raw.CompressionThreshold,
		WarmMaxSizeBytes:     raw.WarmMaxSizeBytes,
		WarmMaxEntries:       raw.WarmMaxEntries,
		CleanupInterval:      time.Duration(raw.CleanupInterval),
		CleanupBatchSize:     raw.CleanupBatchSize,
	}
	return nil
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:         DefaultMaxSizeBytes,
		MaxEntries:           DefaultMaxEntries,
		DefaultTTL:           DefaultTTL,
		StatisticsEnabled:    true,
		EvictionPolicy:       PolicyLRU,
		CompressionEnabled:   false,
		CompressionThreshold: DefaultCompressionThreshold,
		CleanupInterval:      DefaultCleanupInterval,
		CleanupBatchSize:     DefaultCleanupBatchSize,
	}
}

// Validate reports the first inconsistent field.
func (c Config) Validate() error {
	switch {
	case c.MaxSizeBytes < 0:
		return fmt.Errorf("%w: max_size_bytes must be >= 0, got %d", ErrInvalidConfig, c.MaxSizeBytes)
	case c.MaxEntries < 0:
		return fmt.Errorf("%w: max_entries must be >= 0, got %d", ErrInvalidConfig, c.MaxEntries)
	case c.DefaultTTL < 0:
		return fmt.Errorf("%w: default_ttl must be >= 0, got %s", ErrInvalidConfig, c.DefaultTTL)
	case c.CompressionThreshold < 0:
		return fmt.Errorf("%w: compression_threshold must be >= 0, got %d", ErrInvalidConfig, c.CompressionThreshold)
	case c.WarmMaxSizeBytes < 0 || c.WarmMaxEntries < 0:
		return fmt.Errorf("%w: warm tier limits must be >= 0", ErrInvalidConfig)
	case c.CleanupBatchSize < 0:
		return fmt.Errorf("%w: cleanup_batch_size must be >= 0, got %d", ErrInvalidConfig, c.CleanupBatchSize)
	}
	if _, err := ParseEvictionPolicy(string(c.EvictionPolicy)); err != nil {
		return err
	}
	return nil
}

// withDefaults fills zero-valued limits. DefaultTTL and the boolean
// switches are taken as given, since their zero values are meaningful.
func (c Config) withDefaults() Config {
	if c.MaxSizeBytes == 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.EvictionPolicy == "" {
		c.EvictionPolicy = PolicyLRU
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = DefaultCompressionThreshold
	}
	if c.WarmMaxSizeBytes == 0 {
		c.WarmMaxSizeBytes = c.MaxSizeBytes
	}
	if c.WarmMaxEntries == 0 {
		c.WarmMaxEntries = c.MaxEntries
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.CleanupBatchSize == 0 {
		c.CleanupBatchSize = DefaultCleanupBatchSize
	}
	return c
}

// ParseConfigYAML overlays a YAML document onto DefaultConfig and validates
// the result. Durations are seconds when given as numbers and Go syntax
// ("90s", "1h") when given as strings.
func ParseConfigYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
