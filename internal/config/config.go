// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Browser providers.
const (
	BrowserHeadless = "headless"
	BrowserStatic   = "static"
)

// Output providers.
const (
	OutputLocal  = "local"
	OutputGCS    = "gcs"
	OutputMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Output    OutputConfig    `mapstructure:"output"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// Workers is the number of runs executed concurrently.
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs fetching, pacing, and crawl expansion.
type CrawlerConfig struct {
	Browser                string   `mapstructure:"browser"`
	RequestsPerSecond      float64  `mapstructure:"requests_per_second"`
	MaxAttempts            int      `mapstructure:"max_attempts"`
	BackoffUnitMs          int      `mapstructure:"backoff_unit_ms"`
	PageTimeoutSeconds     int      `mapstructure:"page_timeout_seconds"`
	DetailTimeoutSeconds   int      `mapstructure:"detail_timeout_seconds"`
	SelectorTimeoutSeconds int      `mapstructure:"selector_timeout_seconds"`
	SettleDelayMs          int      `mapstructure:"settle_delay_ms"`
	MaxPages               int      `mapstructure:"max_pages"`
	MaxDetailPages         int      `mapstructure:"max_detail_pages"`
	JSBodyThreshold        int      `mapstructure:"js_body_threshold"`
	UserAgents             []string `mapstructure:"user_agents"`
	RespectRobots          bool     `mapstructure:"respect_robots"`
	SiteModules            bool     `mapstructure:"site_modules"`
}

// HeadlessConfig configures the Chrome provider.
type HeadlessConfig struct {
	ExecPath       string `mapstructure:"exec_path"`
	Headful        bool   `mapstructure:"headful"`
	AllowResources bool   `mapstructure:"allow_resources"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
}

// ResolverConfig configures media URL resolution.
type ResolverConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	VerifyRetries  int    `mapstructure:"verify_retries"`
	YTDLPPath      string `mapstructure:"ytdlp_path"`
}

// OutputConfig selects where result documents are written.
type OutputConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres record store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for per-site completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Tracing     bool    `mapstructure:"tracing"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEETINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.queue_depth", 16)
	v.SetDefault("crawler.browser", BrowserHeadless)
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.backoff_unit_ms", 1000)
	v.SetDefault("crawler.page_timeout_seconds", 30)
	v.SetDefault("crawler.detail_timeout_seconds", 15)
	v.SetDefault("crawler.selector_timeout_seconds", 20)
	v.SetDefault("crawler.settle_delay_ms", 4000)
	v.SetDefault("crawler.max_pages", 10)
	v.SetDefault("crawler.max_detail_pages", 25)
	v.SetDefault("crawler.js_body_threshold", 2048)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.site_modules", true)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("resolver.concurrency", 4)
	v.SetDefault("resolver.timeout_seconds", 15)
	v.SetDefault("resolver.verify_retries", 2)
	v.SetDefault("output.provider", OutputLocal)
	v.SetDefault("output.dir", "output")
	v.SetDefault("db.table", "meetings")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "meeting-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be > 0")
	}
	if c.Server.QueueDepth < 0 {
		return fmt.Errorf("server.queue_depth must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Crawler.Browser {
	case BrowserHeadless, BrowserStatic:
	default:
		return fmt.Errorf("crawler.browser must be %q or %q", BrowserHeadless, BrowserStatic)
	}
	if c.Crawler.RequestsPerSecond <= 0 {
		return fmt.Errorf("crawler.requests_per_second must be > 0")
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Crawler.PageTimeoutSeconds <= 0 || c.Crawler.DetailTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.page_timeout_seconds and crawler.detail_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Resolver.Concurrency <= 0 {
		return fmt.Errorf("resolver.concurrency must be > 0")
	}
	switch c.Output.Provider {
	case OutputLocal:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return fmt.Errorf("output.dir must be set for the local provider")
		}
	case OutputGCS:
		if c.Output.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket must be set for the gcs provider")
		}
	case OutputMemory:
	default:
		return fmt.Errorf("output.provider must be one of local, gcs, memory")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

// PageTimeout is the per-fetch budget for seed and pagination pages.
func (c CrawlerConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// DetailTimeout is the per-fetch budget for detail pages.
func (c CrawlerConfig) DetailTimeout() time.Duration {
	return time.Duration(c.DetailTimeoutSeconds) * time.Second
}

// SelectorTimeout bounds render waits on script-heavy pages.
func (c CrawlerConfig) SelectorTimeout() time.Duration {
	return time.Duration(c.SelectorTimeoutSeconds) * time.Second
}

// SettleDelay is the fixed render wait when no platform selector applies.
func (c CrawlerConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// BackoffUnit is the base of the transient retry backoff.
func (c CrawlerConfig) BackoffUnit() time.Duration {
	return time.Duration(c.BackoffUnitMs) * time.Millisecond
}
