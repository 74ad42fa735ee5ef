package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Source names accepted by tracker.source and tracker.live_source.
const (
	SourceOpenNotify  = "opennotify"
	SourceWhereTheISS = "wheretheiss"
	SourceSGP4        = "sgp4"
)

// wheretheissMaxBatch is the most timestamps api.wheretheiss.at accepts per request.
const wheretheissMaxBatch = 10

// TrackerConfig controls the poller and track assembly.
type TrackerConfig struct {
	PollIntervalMs     int    `mapstructure:"poll_interval_ms"`
	TrackWindowMinutes int    `mapstructure:"track_window_minutes"`
	TrackStepSeconds   int    `mapstructure:"track_step_seconds"`
	MaxBatchSize       int    `mapstructure:"max_batch_size"`
	RequestTimeoutMs   int    `mapstructure:"request_timeout_ms"`
	Source             string `mapstructure:"source"`
	LiveSource         string `mapstructure:"live_source"`
	LiveURL            string `mapstructure:"live_url"`
	BatchURL           string `mapstructure:"batch_url"`
	NoradID            int    `mapstructure:"norad_id"`
	TLELine1           string `mapstructure:"tle_line1"`
	TLELine2           string `mapstructure:"tle_line2"`
}

// PollInterval returns the poll cadence.
func (t TrackerConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout for upstream sources.
func (t TrackerConfig) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutMs) * time.Millisecond
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	OTLPAddr    string  `mapstructure:"otlp_addr"`
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	return load(service, viper.New())
}

func load(service string, v *viper.Viper) (*Config, error) {
	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("tracker.poll_interval_ms", 5000)
	v.SetDefault("tracker.track_window_minutes", 90)
	v.SetDefault("tracker.track_step_seconds", 120)
	v.SetDefault("tracker.max_batch_size", 10)
	v.SetDefault("tracker.request_timeout_ms", 10000)
	v.SetDefault("tracker.source", SourceWhereTheISS)
	v.SetDefault("tracker.live_source", SourceOpenNotify)
	v.SetDefault("tracker.live_url", "http://api.open-notify.org/iss-now.json")
	v.SetDefault("tracker.batch_url", "https://api.wheretheiss.at")
	v.SetDefault("tracker.norad_id", 25544)
	v.SetDefault("tracker.tle_line1", "")
	v.SetDefault("tracker.tle_line2", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("valkey.addr", "")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ORBITTRACK_TRACKER_POLL_INTERVAL_MS → tracker.poll_interval_ms
	v.SetEnvPrefix("ORBITTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	t := c.Tracker
	if t.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Sprintf("tracker.poll_interval_ms must be positive, got %d", t.PollIntervalMs))
	}
	if t.TrackWindowMinutes <= 0 {
		errs = append(errs, fmt.Sprintf("tracker.track_window_minutes must be positive, got %d", t.TrackWindowMinutes))
	}
	if t.TrackStepSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("tracker.track_step_seconds must be positive, got %d", t.TrackStepSeconds))
	}
	if t.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("tracker.max_batch_size must be positive, got %d", t.MaxBatchSize))
	}
	if t.RequestTimeoutMs <= 0 {
		errs = append(errs, "tracker.request_timeout_ms must be positive")
	}

	switch t.Source {
	case SourceWhereTheISS:
		if t.BatchURL == "" {
			errs = append(errs, "tracker.batch_url is required for the wheretheiss source")
		}
		if t.MaxBatchSize > wheretheissMaxBatch {
			errs = append(errs, fmt.Sprintf("tracker.max_batch_size must be at most %d for the wheretheiss source, got %d",
				wheretheissMaxBatch, t.MaxBatchSize))
		}
	case SourceSGP4:
	default:
		errs = append(errs, fmt.Sprintf("tracker.source must be %q or %q, got %q", SourceWhereTheISS, SourceSGP4, t.Source))
	}

	switch t.LiveSource {
	case SourceOpenNotify:
		if t.LiveURL == "" {
			errs = append(errs, "tracker.live_url is required for the opennotify live source")
		}
	case SourceWhereTheISS:
		if t.BatchURL == "" {
			errs = append(errs, "tracker.batch_url is required for the wheretheiss live source")
		}
	case SourceSGP4:
	default:
		errs = append(errs, fmt.Sprintf("tracker.live_source must be one of %q, %q, %q, got %q",
			SourceOpenNotify, SourceWhereTheISS, SourceSGP4, t.LiveSource))
	}

	if (t.Source == SourceSGP4 || t.LiveSource == SourceSGP4) && (t.TLELine1 == "" || t.TLELine2 == "") {
		errs = append(errs, "tracker.tle_line1 and tracker.tle_line2 are required for the sgp4 source")
	}
	if t.NoradID <= 0 {
		errs = append(errs, "tracker.norad_id must be positive")
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPAddr == "" {
		errs = append(errs, "telemetry.otlp_addr is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
