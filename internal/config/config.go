// Package config provides configuration types and loading for the relay.
//
// Configuration is file-based (toolbridge.yaml) with environment variable
// overrides under the TOOLBRIDGE_ prefix, e.g. TOOLBRIDGE_SERVER_PORT=9000
// overrides server.port.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level relay configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Relay configures routing behavior: heartbeats and forward timeouts.
	Relay RelayConfig `yaml:"relay" mapstructure:"relay"`

	// CallLog configures the optional SQLite call log.
	CallLog CallLogConfig `yaml:"call_log" mapstructure:"call_log"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Trace enables the debug trace pipeline.
	Trace TraceConfig `yaml:"trace" mapstructure:"trace"`

	// PidFile is where the serve command records its pid for `stop`.
	PidFile string `yaml:"pid_file" mapstructure:"pid_file"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host" mapstructure:"host" validate:"required"`

	// Port is the listen port.
	Port int `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig configures routing behavior.
type RelayConfig struct {
	// KeepAliveMs is the push-channel heartbeat interval in milliseconds.
	KeepAliveMs int `yaml:"keep_alive_ms" mapstructure:"keep_alive_ms" validate:"gte=100"`

	// RequestTimeoutMs is the forward timeout for pending routes in
	// milliseconds.
	RequestTimeoutMs int `yaml:"request_timeout_ms" mapstructure:"request_timeout_ms" validate:"gte=100"`
}

// KeepAlive returns the heartbeat interval as a duration.
func (r RelayConfig) KeepAlive() time.Duration {
	return time.Duration(r.KeepAliveMs) * time.Millisecond
}

// RequestTimeout returns the forward timeout as a duration.
func (r RelayConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutMs) * time.Millisecond
}

// CallLogConfig configures the SQLite call log.
type CallLogConfig struct {
	// Enabled controls whether completed calls are persisted.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database path.
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum log level.
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format selects the handler: text or json.
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// TraceConfig configures the debug trace pipeline.
type TraceConfig struct {
	// Enabled turns on span export to stderr.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults fills in defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8765
	}
	if c.Relay.KeepAliveMs == 0 {
		c.Relay.KeepAliveMs = 30000
	}
	if c.Relay.RequestTimeoutMs == 0 {
		c.Relay.RequestTimeoutMs = 30000
	}
	if c.CallLog.Path == "" {
		c.CallLog.Path = "toolbridge.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.PidFile == "" {
		c.PidFile = "toolbridge.pid"
	}
}
