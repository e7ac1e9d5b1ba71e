package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
  default_tenant: "acme"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  qos: 1
api:
  port: 8090
protocols:
  counter:
    device_id: "lobby-counter"
    serial:
      path: "/dev/ttyS1"
      baud_rate: 19200
    poll_interval_ms: 500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Site.DefaultTenant != "acme" {
		t.Errorf("Site.DefaultTenant = %q, want %q", cfg.Site.DefaultTenant, "acme")
	}

	c := cfg.Protocols.Counter
	if c.DeviceID != "lobby-counter" {
		t.Errorf("Counter.DeviceID = %q, want %q", c.DeviceID, "lobby-counter")
	}
	if c.Serial.Path != "/dev/ttyS1" {
		t.Errorf("Counter.Serial.Path = %q, want %q", c.Serial.Path, "/dev/ttyS1")
	}
	if c.Serial.BaudRate != 19200 {
		t.Errorf("Counter.Serial.BaudRate = %d, want 19200", c.Serial.BaudRate)
	}
	if c.PollInterval() != 500*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 500ms", c.PollInterval())
	}
	// Unset keys keep their defaults.
	if c.ResponseTimeout() != time.Second {
		t.Errorf("ResponseTimeout() = %v, want 1s", c.ResponseTimeout())
	}
	if c.Serial.LineEnding != "\r" {
		t.Errorf("Counter.Serial.LineEnding = %q, want CR", c.Serial.LineEnding)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "missing device id",
			mutate:  func(c *Config) { c.Protocols.Counter.DeviceID = "" },
			wantErr: "device_id",
		},
		{
			name:    "missing serial path",
			mutate:  func(c *Config) { c.Protocols.Counter.Serial.Path = "" },
			wantErr: "serial.path",
		},
		{
			name: "missing serial path in simulation",
			mutate: func(c *Config) {
				c.Protocols.Counter.Serial.Path = ""
				c.Protocols.Counter.Simulate = true
			},
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Protocols.Counter.PollIntervalMS = 0 },
			wantErr: "poll_interval_ms",
		},
		{
			name:    "negative reset delay",
			mutate:  func(c *Config) { c.Protocols.Counter.ResetDelayMS = -1 },
			wantErr: "reset_delay_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_COUNTER_SERIAL_PATH", "/dev/ttyAMA0")
	t.Setenv("GRAYLOGIC_COUNTER_SIMULATE", "true")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Protocols.Counter.Serial.Path != "/dev/ttyAMA0" {
		t.Errorf("Counter.Serial.Path = %q, want %q", cfg.Protocols.Counter.Serial.Path, "/dev/ttyAMA0")
	}
	if !cfg.Protocols.Counter.Simulate {
		t.Error("Counter.Simulate = false, want true")
	}
}

func TestApplyEnvOverrides_InvalidBoolIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GRAYLOGIC_COUNTER_SIMULATE", "sometimes")

	applyEnvOverrides(cfg)

	if cfg.Protocols.Counter.Simulate {
		t.Error("Counter.Simulate = true, want default false for unparseable value")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}

	c := cfg.Protocols.Counter
	if c.Serial.BaudRate != 9600 {
		t.Errorf("defaultConfig Counter.Serial.BaudRate = %d, want 9600", c.Serial.BaudRate)
	}
	if c.PollInterval() != time.Second {
		t.Errorf("defaultConfig PollInterval() = %v, want 1s", c.PollInterval())
	}
	if c.ResetDelay() != 50*time.Millisecond {
		t.Errorf("defaultConfig ResetDelay() = %v, want 50ms", c.ResetDelay())
	}
	if c.HealthInterval() != 30*time.Second {
		t.Errorf("defaultConfig HealthInterval() = %v, want 30s", c.HealthInterval())
	}
}
