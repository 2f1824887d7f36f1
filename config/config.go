package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookflow/models"
)

// Duration wraps time.Duration so yaml values like "10s" or "500ms" decode
// directly.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

type Config struct {
	Bookflow ServiceConfig  `yaml:"bookflow"`
	Feed     FeedConfig     `yaml:"feed"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Markets  []MarketConfig `yaml:"markets"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	MaxStreamsPerConn int           `yaml:"max_streams_per_conn"`
	FrameBuffer       int           `yaml:"frame_buffer"`
	BroadcastCapacity int           `yaml:"broadcast_capacity"`
	HandshakeTimeout  Duration      `yaml:"handshake_timeout"`
	Depth             string        `yaml:"depth"` // "top" or "full"
	Retry             RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

type SnapshotConfig struct {
	Limit             int     `yaml:"limit"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type MarketConfig struct {
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`
	Kind  string `yaml:"kind"`
}

type CacheConfig struct {
	Enabled bool     `yaml:"enabled"`
	Addr    string   `yaml:"addr"`
	DB      int      `yaml:"db"`
	TTL     Duration `yaml:"ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Report     ReportConfig     `yaml:"report"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type ReportConfig struct {
	Interval Duration `yaml:"interval"`
}

// Market converts the config entry into its unified identity.
func (m MarketConfig) Market() models.Market {
	kind := models.MarketKind(strings.ToLower(m.Kind))
	if kind == "" {
		kind = models.Spot
	}
	return models.Market{
		Base:  strings.ToUpper(m.Base),
		Quote: strings.ToUpper(m.Quote),
		Kind:  kind,
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			MaxStreamsPerConn: 100,
			FrameBuffer:       1024,
			BroadcastCapacity: 4096,
			HandshakeTimeout:  Duration{10 * time.Second},
			Depth:             "top",
		},
		Snapshot: SnapshotConfig{
			Limit:             1000,
			RequestsPerSecond: 5,
			Burst:             1,
		},
		Metrics: MetricsConfig{
			Report: ReportConfig{Interval: Duration{30 * time.Second}},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override cache settings from environment variables if available
	if config.Cache.Enabled {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			config.Cache.Addr = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("AWS_REGION"); v != "" && config.Metrics.CloudWatch.Enabled {
		config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bookflow.Name == "" {
		return fmt.Errorf("bookflow.name is required")
	}

	if cfg.Bookflow.Version == "" {
		return fmt.Errorf("bookflow.version is required")
	}

	if cfg.Feed.Endpoint == "" {
		return fmt.Errorf("feed.endpoint is required")
	}

	if cfg.Feed.MaxStreamsPerConn <= 0 {
		return fmt.Errorf("feed.max_streams_per_conn must be greater than 0")
	}

	if cfg.Feed.FrameBuffer <= 0 {
		return fmt.Errorf("feed.frame_buffer must be greater than 0")
	}

	if cfg.Feed.BroadcastCapacity <= 0 {
		return fmt.Errorf("feed.broadcast_capacity must be greater than 0")
	}

	switch cfg.Feed.Depth {
	case "top", "full":
	default:
		return fmt.Errorf("feed.depth must be 'top' or 'full', got '%s'", cfg.Feed.Depth)
	}

	if cfg.Snapshot.Limit <= 0 {
		return fmt.Errorf("snapshot.limit must be greater than 0")
	}

	if cfg.Snapshot.RequestsPerSecond <= 0 {
		return fmt.Errorf("snapshot.requests_per_second must be greater than 0")
	}

	if len(cfg.Markets) == 0 {
		return fmt.Errorf("at least one market must be configured")
	}

	for i, m := range cfg.Markets {
		if m.Base == "" || m.Quote == "" {
			return fmt.Errorf("markets[%d]: base and quote are required", i)
		}
	}

	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}

	return nil
}
