package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "briefwire.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
version: "1"
database:
  path: ./briefwire.db
source:
  kind: feed
  url: https://feed.example.com/items
`

func TestLoadMinimal(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "./briefwire.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Source.Kind != "feed" {
		t.Errorf("source.kind = %q", cfg.Source.Kind)
	}
}

func TestLoadFull(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
version: "1"
database:
  path: /var/lib/briefwire/tasks.db
log:
  level: debug
  format: json
gateway:
  listen: ":8080"
scheduler:
  workers: 8
  queue_size: 128
  cleanup_interval: 12h
  task_retention: 720h
policy:
  max_failures: 5
  base_delay: 30s
  max_delay: 10m
  jitter: 0.2
executor:
  fetch_timeout: 1m
  produce_timeout: 3m
  default_lookback: 12h
source:
  kind: feed
  url: https://feed.example.com/items
sinks:
  webhook:
    timeout: 15s
    rate_per_second: 2
    burst: 5
  file:
    dir: /var/lib/briefwire/digests
  smtp:
    addr: smtp.example.com:587
    from: digests@example.com
telemetry:
  endpoint: localhost:4318
  insecure: true
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := cfg.Scheduler.CleanupInterval.Std(); got != 12*time.Hour {
		t.Errorf("cleanup_interval = %v, want 12h", got)
	}
	if got := cfg.Policy.BaseDelay.Std(); got != 30*time.Second {
		t.Errorf("base_delay = %v, want 30s", got)
	}
	if cfg.Sinks.Webhook == nil || cfg.Sinks.Webhook.Burst != 5 {
		t.Errorf("webhook sink = %+v", cfg.Sinks.Webhook)
	}
	if cfg.Sinks.SMTP == nil || cfg.Sinks.SMTP.Addr != "smtp.example.com:587" {
		t.Errorf("smtp sink = %+v", cfg.Sinks.SMTP)
	}
	if !cfg.Telemetry.Insecure || cfg.Telemetry.Endpoint != "localhost:4318" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("BW_DB_PATH", "/tmp/env.db")

	cfg, err := Load(writeConfig(t, `
version: "1"
database:
  path: ${BW_DB_PATH}
source:
  kind: feed
  url: ${BW_FEED_URL:-https://feed.example.com/items}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("database.path = %q, want env value", cfg.Database.Path)
	}
	if cfg.Source.URL != "https://feed.example.com/items" {
		t.Errorf("source.url = %q, want default value", cfg.Source.URL)
	}
}

func TestLoadUnresolvedVariable(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, `
version: "1"
database:
  path: ${BW_DEFINITELY_UNSET_VAR}
source:
  kind: feed
  url: https://feed.example.com/items
`))
	if err == nil || !strings.Contains(err.Error(), "BW_DEFINITELY_UNSET_VAR") {
		t.Errorf("err = %v, want unresolved variable error", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, `
version: "1"
database:
  path: ./t.db
scheduler:
  cleanup_interval: soon
source:
  kind: feed
  url: https://feed.example.com/items
`))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("err = %v, want duration parse error", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing version",
			mutate:  func(c *Config) { c.Version = "" },
			wantErr: "version field is required",
		},
		{
			name:    "unsupported version",
			mutate:  func(c *Config) { c.Version = "2" },
			wantErr: "unsupported version",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "unknown log.level",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Gateway.Listen = "8080" },
			wantErr: "gateway.listen",
		},
		{
			name:    "unknown source kind",
			mutate:  func(c *Config) { c.Source.Kind = "carrier-pigeon" },
			wantErr: "unknown source.kind",
		},
		{
			name:    "relative source url",
			mutate:  func(c *Config) { c.Source.URL = "/items" },
			wantErr: "not an absolute URL",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Policy.Jitter = 1.5 },
			wantErr: "policy.jitter",
		},
		{
			name:    "file sink without dir",
			mutate:  func(c *Config) { c.Sinks.File = &FileSinkConfig{} },
			wantErr: "sinks.file.dir",
		},
		{
			name: "smtp sink without from",
			mutate: func(c *Config) {
				c.Sinks.SMTP = &SMTPSinkConfig{Addr: "smtp.example.com:587"}
			},
			wantErr: "sinks.smtp.from",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{
				Version:  "1",
				Database: DatabaseConfig{Path: "./t.db"},
				Source:   SourceConfig{Kind: "feed", URL: "https://feed.example.com/items"},
			}
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
