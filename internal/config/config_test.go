package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8765 {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Relay.KeepAliveMs != 30000 || cfg.Relay.RequestTimeoutMs != 30000 {
		t.Errorf("unexpected relay defaults: %+v", cfg.Relay)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.CallLog.Path != "toolbridge.db" {
		t.Errorf("unexpected call log default: %+v", cfg.CallLog)
	}
}

func TestDefaultsDoNotOverride(t *testing.T) {
	cfg := Config{}
	cfg.Server.Port = 9000
	cfg.Log.Level = "debug"
	cfg.SetDefaults()

	if cfg.Server.Port != 9000 {
		t.Errorf("explicit port overridden: %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("explicit level overridden: %s", cfg.Log.Level)
	}
}

func TestAddrAndDurations(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	if cfg.Server.Addr() != "0.0.0.0:8765" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr())
	}
	if cfg.Relay.KeepAlive() != 30*time.Second {
		t.Errorf("unexpected keepalive: %s", cfg.Relay.KeepAlive())
	}
	if cfg.Relay.RequestTimeout() != 30*time.Second {
		t.Errorf("unexpected timeout: %s", cfg.Relay.RequestTimeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, true},
		{"empty host", func(c *Config) { c.Server.Host = "" }, true},
		{"keepalive too small", func(c *Config) { c.Relay.KeepAliveMs = 10 }, true},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, true},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"json format valid", func(c *Config) { c.Log.Format = "json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	doc := map[string]any{
		"server": map[string]any{"host": "127.0.0.1", "port": 9100},
		"relay":  map[string]any{"keep_alive_ms": 5000, "request_timeout_ms": 200},
		"log":    map[string]any{"level": "debug", "format": "json"},
		"call_log": map[string]any{
			"enabled": true,
			"path":    "relay-calls.db",
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "toolbridge.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:9100" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr())
	}
	if cfg.Relay.RequestTimeout() != 200*time.Millisecond {
		t.Errorf("unexpected timeout: %s", cfg.Relay.RequestTimeout())
	}
	if !cfg.CallLog.Enabled || cfg.CallLog.Path != "relay-calls.db" {
		t.Errorf("unexpected call log config: %+v", cfg.CallLog)
	}
	if ConfigFileUsed() != path {
		t.Errorf("expected config file %q, got %q", path, ConfigFileUsed())
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("TOOLBRIDGE_SERVER_PORT", "9222")
	t.Setenv("TOOLBRIDGE_LOG_LEVEL", "warn")

	InitViper("")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 9222 {
		t.Errorf("env port override ignored: %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env level override ignored: %s", cfg.Log.Level)
	}
}
