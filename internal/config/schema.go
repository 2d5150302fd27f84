// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for briefwire.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Policy    PolicyConfig    `yaml:"policy,omitempty"`
	Executor  ExecutorConfig  `yaml:"executor,omitempty"`
	Source    SourceConfig    `yaml:"source"`
	Sinks     SinksConfig     `yaml:"sinks,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// DatabaseConfig locates the task database.
type DatabaseConfig struct {
	// Path is the SQLite database file. Created if absent.
	Path string `yaml:"path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level,omitempty"`

	// Format is text or json. Default text.
	Format string `yaml:"format,omitempty"`
}

// GatewayConfig controls the HTTP admin surface.
type GatewayConfig struct {
	// Listen is the bind address, e.g. ":8080". Empty disables the gateway.
	Listen string `yaml:"listen,omitempty"`
}

// SchedulerConfig tunes the worker pool and housekeeping.
type SchedulerConfig struct {
	Workers         int      `yaml:"workers,omitempty"`
	QueueSize       int      `yaml:"queue_size,omitempty"`
	CleanupInterval Duration `yaml:"cleanup_interval,omitempty"`
	TaskRetention   Duration `yaml:"task_retention,omitempty"`
}

// PolicyConfig tunes the shared failure policy.
type PolicyConfig struct {
	MaxFailures int      `yaml:"max_failures,omitempty"`
	BaseDelay   Duration `yaml:"base_delay,omitempty"`
	MaxDelay    Duration `yaml:"max_delay,omitempty"`
	Jitter      float64  `yaml:"jitter,omitempty"`
}

// ExecutorConfig tunes per-run timeouts and retention.
type ExecutorConfig struct {
	FetchTimeout    Duration `yaml:"fetch_timeout,omitempty"`
	ProduceTimeout  Duration `yaml:"produce_timeout,omitempty"`
	DefaultLookback Duration `yaml:"default_lookback,omitempty"`
	ResultRetention Duration `yaml:"result_retention,omitempty"`
}

// SourceConfig selects and configures the content source.
type SourceConfig struct {
	// Kind names the source implementation. Currently "feed".
	Kind string `yaml:"kind"`

	// URL is the feed endpoint for the feed source.
	URL string `yaml:"url,omitempty"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token,omitempty"`
}

// SinksConfig configures the delivery sinks. A nil section leaves that
// sink unregistered; tasks targeting it fail delivery with a clear message.
type SinksConfig struct {
	Webhook *WebhookSinkConfig `yaml:"webhook,omitempty"`
	File    *FileSinkConfig    `yaml:"file,omitempty"`
	SMTP    *SMTPSinkConfig    `yaml:"smtp,omitempty"`
}

// WebhookSinkConfig tunes the HTTP POST sink.
type WebhookSinkConfig struct {
	Timeout       Duration `yaml:"timeout,omitempty"`
	RatePerSecond float64  `yaml:"rate_per_second,omitempty"`
	Burst         int      `yaml:"burst,omitempty"`
}

// FileSinkConfig tunes the append-to-file sink.
type FileSinkConfig struct {
	// Dir is the directory destination targets are resolved under.
	Dir string `yaml:"dir"`
}

// SMTPSinkConfig tunes the email sink.
type SMTPSinkConfig struct {
	// Addr is the host:port of the SMTP server.
	Addr string `yaml:"addr"`

	// From is the sender address.
	From string `yaml:"from"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// TelemetryConfig controls trace export. Disabled when Endpoint is empty.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint,omitempty"`

	// ServiceName overrides the reported service name. Default "briefwire".
	ServiceName string `yaml:"service_name,omitempty"`

	// Insecure disables TLS toward the collector.
	Insecure bool `yaml:"insecure,omitempty"`
}
