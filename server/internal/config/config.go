package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gateload/gateload/pkg/types"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort             = 8080
	DefaultSourcePath           = "data/flight_data.csv"
	DefaultPollInterval         = time.Second
	DefaultAlpha                = 0.25
	DefaultThroughputPerOfficer = 0.5
	DefaultGreenThreshold       = 0.7
	DefaultYellowThreshold      = 0.9
	DefaultMinServiceRate       = 0.01
	DefaultHistoryCapacity      = 600
	DefaultAnalysisWindow       = 60
	DefaultStreamInterval       = 5 * time.Second
	DefaultPublishBufferSize    = 1000
)

// DefaultTimestampColumns are the header names probed, case-insensitively and
// in order, for the event timestamp.
var DefaultTimestampColumns = []string{
	"CheckDate", "ts", "timestamp", "datetime", "created_at", "flightdate", "date",
}

// Config holds the whole service configuration parsed from config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Capacity  CapacityConfig  `yaml:"capacity"`
	History   HistoryConfig   `yaml:"history"`
	Stream    StreamConfig    `yaml:"stream"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Publish   PublishConfig   `yaml:"publish"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth guards the operator write path (capacity updates).
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls client authentication for write endpoints.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// SourceConfig describes the passage CSV file.
type SourceConfig struct {
	// Path is the CSV file. The CSV_PATH environment variable overrides it.
	Path string `yaml:"path"`

	// PollInterval is the update loop tick (default 1s).
	PollInterval time.Duration `yaml:"poll_interval"`

	// DefaultCheckpoint is assigned to rows without a checkpoint id.
	DefaultCheckpoint string `yaml:"default_checkpoint"`

	// TimestampColumns are probed in order, case-insensitively.
	TimestampColumns []string `yaml:"timestamp_columns"`

	// CheckpointColumn names the checkpoint id column (default "checkpoint_id").
	CheckpointColumn string `yaml:"checkpoint_column"`

	// Timezone is the IANA zone used for timestamps without an offset.
	// Empty means the process local zone.
	Timezone string `yaml:"timezone"`

	// Watch enables fsnotify nudges in addition to polling.
	Watch bool `yaml:"watch"`
}

// Location resolves Timezone. Validation guarantees the name loads.
func (s SourceConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// EstimatorConfig holds the EWMA smoothing factor.
type EstimatorConfig struct {
	// Alpha must lie in (0, 1). Default 0.25.
	Alpha float64 `yaml:"alpha"`
}

// CapacityConfig holds the capacity model parameters.
type CapacityConfig struct {
	// ThroughputPerOfficer is passengers per minute one officer can serve.
	ThroughputPerOfficer float64 `yaml:"throughput_per_officer"`

	// GreenThreshold and YellowThreshold are utilization ratios, green < yellow.
	GreenThreshold  float64 `yaml:"green_threshold"`
	YellowThreshold float64 `yaml:"yellow_threshold"`

	// MinServiceRate floors the service rate to avoid division by zero.
	MinServiceRate float64 `yaml:"min_service_rate"`

	// Officers seeds per-checkpoint officer counts. Re-applied on hot reload.
	Officers map[string]int `yaml:"officers"`
}

// HistoryConfig sizes the in-memory record buffer.
type HistoryConfig struct {
	// Capacity is the ring buffer size (default 600, about 10 hours of minutes).
	Capacity int `yaml:"capacity"`

	// AnalysisWindow is how many deduplicated records the streak and
	// color-duration reports consider (default 60).
	AnalysisWindow int `yaml:"analysis_window"`
}

// StreamConfig controls the WebSocket broadcast cadence.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "utilization > 0.9", "level == RED",
	// "red_streak >= 5", "smoothed_rate > 12".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// PublishConfig configures optional downstream record publishing.
type PublishConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables the Kafka publisher when Brokers and Topic are set.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"buffer_size"`
}

// Enabled reports whether records should be published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// LogConfig sets the slog level.
type LogConfig struct {
	// Level is one of: debug | info | warn | error (default info).
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path. An empty path yields the
// defaults. Missing fields are filled with defaults before validation, and the
// CSV_PATH environment variable overrides source.path.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if p := os.Getenv("CSV_PATH"); p != "" {
		cfg.Source.Path = p
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: DefaultHTTPPort},
		Source: SourceConfig{
			Path:              DefaultSourcePath,
			PollInterval:      DefaultPollInterval,
			DefaultCheckpoint: types.DefaultCheckpoint,
			TimestampColumns:  append([]string(nil), DefaultTimestampColumns...),
			CheckpointColumn:  types.ColumnCheckpoint,
			Watch:             true,
		},
		Estimator: EstimatorConfig{Alpha: DefaultAlpha},
		Capacity: CapacityConfig{
			ThroughputPerOfficer: DefaultThroughputPerOfficer,
			GreenThreshold:       DefaultGreenThreshold,
			YellowThreshold:      DefaultYellowThreshold,
			MinServiceRate:       DefaultMinServiceRate,
		},
		History: HistoryConfig{
			Capacity:       DefaultHistoryCapacity,
			AnalysisWindow: DefaultAnalysisWindow,
		},
		Stream:  StreamConfig{Interval: DefaultStreamInterval},
		Publish: PublishConfig{Kafka: KafkaConfig{BufferSize: DefaultPublishBufferSize}},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Source.Path == "" {
		return fmt.Errorf("source.path must not be empty")
	}
	if cfg.Source.PollInterval <= 0 {
		return fmt.Errorf("source.poll_interval must be positive")
	}
	if cfg.Source.DefaultCheckpoint == "" {
		return fmt.Errorf("source.default_checkpoint must not be empty")
	}
	if len(cfg.Source.TimestampColumns) == 0 {
		return fmt.Errorf("source.timestamp_columns must list at least one column")
	}
	if cfg.Source.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Source.Timezone); err != nil {
			return fmt.Errorf("source.timezone: %w", err)
		}
	}
	if a := cfg.Estimator.Alpha; a <= 0 || a >= 1 {
		return fmt.Errorf("estimator.alpha %v must lie in (0, 1)", a)
	}
	c := cfg.Capacity
	if c.ThroughputPerOfficer <= 0 {
		return fmt.Errorf("capacity.throughput_per_officer must be positive")
	}
	if c.GreenThreshold <= 0 || c.GreenThreshold >= c.YellowThreshold {
		return fmt.Errorf("capacity thresholds must satisfy 0 < green (%v) < yellow (%v)",
			c.GreenThreshold, c.YellowThreshold)
	}
	if c.MinServiceRate <= 0 {
		return fmt.Errorf("capacity.min_service_rate must be positive")
	}
	for cp, n := range c.Officers {
		if n < 1 {
			return fmt.Errorf("capacity.officers[%s] = %d, want >= 1", cp, n)
		}
	}
	if cfg.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive")
	}
	if cfg.History.AnalysisWindow <= 0 {
		return fmt.Errorf("history.analysis_window must be positive")
	}
	if cfg.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval must be positive")
	}
	if cfg.Publish.Kafka.Enabled() && cfg.Publish.Kafka.BufferSize <= 0 {
		return fmt.Errorf("publish.kafka.buffer_size must be positive")
	}
	return nil
}
