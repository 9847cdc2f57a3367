// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/lib/compress"
)

// EnvironmentVariable names the variable [Load] reads the config path from.
const EnvironmentVariable = "IPCBRIDGE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Transport kinds accepted in transport.kind.
const (
	TransportUnix      = "unix"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// Config is the master configuration for the bridge binaries.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment" json:"environment"`

	// Bridge configures the message layer shared by host and peer.
	Bridge BridgeConfig `yaml:"bridge" json:"bridge"`

	// Transport selects and configures how host and peer are connected.
	Transport TransportConfig `yaml:"transport" json:"transport"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" json:"log"`

	// Metrics configures the Prometheus endpoint served by the host.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Host configures behavior specific to ipcbridge-host.
	Host HostConfig `yaml:"host" json:"host"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty" json:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty" json:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Bridge    *BridgeConfig    `yaml:"bridge,omitempty" json:"bridge,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty" json:"transport,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty" json:"log,omitempty"`
	Metrics   *MetricsConfig   `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Host      *HostConfig      `yaml:"host,omitempty" json:"host,omitempty"`
}

// BridgeConfig configures the message layer.
type BridgeConfig struct {
	// Channel is the logical channel name stamped on every envelope.
	// Both sides must agree on it.
	// Default: IPC-bridge
	Channel string `yaml:"channel" json:"channel"`

	// Codec is the envelope serialization: "cbor" or "json".
	// Default: cbor
	Codec string `yaml:"codec" json:"codec"`

	// MaxInflight bounds concurrently running request handlers.
	// Zero means unbounded.
	MaxInflight int `yaml:"max_inflight" json:"max_inflight"`

	// SendTimeout bounds a single send when the caller's context has
	// no deadline.
	// Default: 10s
	SendTimeout string `yaml:"send_timeout" json:"send_timeout"`
}

// TransportConfig configures the connection between host and peer.
type TransportConfig struct {
	// Kind is one of unix, tcp, websocket, redis.
	// Default: unix
	Kind string `yaml:"kind" json:"kind"`

	// SocketPath is the Unix socket path for kind=unix.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/ipcbridge.sock
	SocketPath string `yaml:"socket_path" json:"socket_path"`

	// ListenAddr is the host:port for kind=tcp and kind=websocket.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// WebSocketPath is the HTTP path the WebSocket upgrade is served on.
	// Default: /bridge
	WebSocketPath string `yaml:"websocket_path" json:"websocket_path"`

	// RedisAddr is the Redis server for kind=redis.
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`

	// RedisPrefix prefixes the pub/sub topics for kind=redis.
	// Default: ipcbridge
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix"`

	// Compression is applied to stream frames: none, lz4, zstd.
	// Default: none
	Compression string `yaml:"compression" json:"compression"`

	// MaxFrameSize bounds a single envelope on the wire, in bytes.
	// Zero selects the transport default.
	MaxFrameSize int `yaml:"max_frame_size" json:"max_frame_size"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is text, json, or auto (text on a terminal, json otherwise).
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr is where /metrics is served. Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// HostConfig configures ipcbridge-host.
type HostConfig struct {
	// TickInterval is the period of the "tick" event. "0s" disables it.
	// Default: 5s
	TickInterval string `yaml:"tick_interval" json:"tick_interval"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Bridge: BridgeConfig{
			Channel:     "IPC-bridge",
			Codec:       "cbor",
			SendTimeout: "10s",
		},
		Transport: TransportConfig{
			Kind:          TransportUnix,
			SocketPath:    "${XDG_RUNTIME_DIR:-/tmp}/ipcbridge.sock",
			WebSocketPath: "/bridge",
			RedisPrefix:   "ipcbridge",
			Compression:   "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Host: HostConfig{
			TickInterval: "5s",
		},
	}
}

// Builtin returns the default configuration with variables expanded,
// for commands run without any config file.
func Builtin() *Config {
	cfg := Default()
	cfg.expandVariables()
	return cfg
}

// Load loads configuration from the IPCBRIDGE_CONFIG environment variable.
//
// There are no fallbacks: if IPCBRIDGE_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your ipcbridge.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending in
// .json or .jsonc are decoded as JSON after comments and trailing commas
// are stripped; everything else is YAML. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Bridge != nil {
		if overrides.Bridge.Channel != "" {
			c.Bridge.Channel = overrides.Bridge.Channel
		}
		if overrides.Bridge.Codec != "" {
			c.Bridge.Codec = overrides.Bridge.Codec
		}
		if overrides.Bridge.MaxInflight != 0 {
			c.Bridge.MaxInflight = overrides.Bridge.MaxInflight
		}
		if overrides.Bridge.SendTimeout != "" {
			c.Bridge.SendTimeout = overrides.Bridge.SendTimeout
		}
	}

	if overrides.Transport != nil {
		if overrides.Transport.Kind != "" {
			c.Transport.Kind = overrides.Transport.Kind
		}
		if overrides.Transport.SocketPath != "" {
			c.Transport.SocketPath = overrides.Transport.SocketPath
		}
		if overrides.Transport.ListenAddr != "" {
			c.Transport.ListenAddr = overrides.Transport.ListenAddr
		}
		if overrides.Transport.WebSocketPath != "" {
			c.Transport.WebSocketPath = overrides.Transport.WebSocketPath
		}
		if overrides.Transport.RedisAddr != "" {
			c.Transport.RedisAddr = overrides.Transport.RedisAddr
		}
		if overrides.Transport.RedisPrefix != "" {
			c.Transport.RedisPrefix = overrides.Transport.RedisPrefix
		}
		if overrides.Transport.Compression != "" {
			c.Transport.Compression = overrides.Transport.Compression
		}
		if overrides.Transport.MaxFrameSize != 0 {
			c.Transport.MaxFrameSize = overrides.Transport.MaxFrameSize
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}

	if overrides.Metrics != nil && overrides.Metrics.ListenAddr != "" {
		c.Metrics.ListenAddr = overrides.Metrics.ListenAddr
	}

	if overrides.Host != nil && overrides.Host.TickInterval != "" {
		c.Host.TickInterval = overrides.Host.TickInterval
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and addresses.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Transport.SocketPath = expandVars(c.Transport.SocketPath, vars)
	c.Transport.ListenAddr = expandVars(c.Transport.ListenAddr, vars)
	c.Transport.RedisAddr = expandVars(c.Transport.RedisAddr, vars)
	c.Metrics.ListenAddr = expandVars(c.Metrics.ListenAddr, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Bridge.Channel == "" {
		errs = append(errs, fmt.Errorf("bridge.channel is required"))
	}
	if _, err := codec.Lookup(c.Bridge.Codec); err != nil {
		errs = append(errs, fmt.Errorf("bridge.codec: %w", err))
	}
	if c.Bridge.MaxInflight < 0 {
		errs = append(errs, fmt.Errorf("bridge.max_inflight must not be negative"))
	}
	if _, err := c.Bridge.ParseSendTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("bridge.send_timeout: %w", err))
	}

	switch c.Transport.Kind {
	case TransportUnix:
		if c.Transport.SocketPath == "" {
			errs = append(errs, fmt.Errorf("transport.socket_path is required for kind=unix"))
		}
	case TransportTCP:
		if c.Transport.ListenAddr == "" {
			errs = append(errs, fmt.Errorf("transport.listen_addr is required for kind=tcp"))
		}
	case TransportWebSocket:
		if c.Transport.ListenAddr == "" {
			errs = append(errs, fmt.Errorf("transport.listen_addr is required for kind=websocket"))
		}
		if !strings.HasPrefix(c.Transport.WebSocketPath, "/") {
			errs = append(errs, fmt.Errorf("transport.websocket_path must start with /"))
		}
	case TransportRedis:
		if c.Transport.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("transport.redis_addr is required for kind=redis"))
		}
		if c.Transport.RedisPrefix == "" {
			errs = append(errs, fmt.Errorf("transport.redis_prefix is required for kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind must be one of: %v",
			[]string{TransportUnix, TransportTCP, TransportWebSocket, TransportRedis}))
	}
	if _, err := compress.Parse(c.Transport.Compression); err != nil {
		errs = append(errs, fmt.Errorf("transport.compression: %w", err))
	}
	if c.Transport.MaxFrameSize < 0 {
		errs = append(errs, fmt.Errorf("transport.max_frame_size must not be negative"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"auto", "text", "json"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if _, err := c.Host.ParseTickInterval(); err != nil {
		errs = append(errs, fmt.Errorf("host.tick_interval: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseSendTimeout returns the send timeout. An empty value means zero,
// which leaves the bridge default in place.
func (b BridgeConfig) ParseSendTimeout() (time.Duration, error) {
	return parseDuration(b.SendTimeout)
}

// ParseTickInterval returns the tick period; zero disables ticking.
func (h HostConfig) ParseTickInterval() (time.Duration, error) {
	return parseDuration(h.TickInterval)
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s is negative", value)
	}
	return duration, nil
}

// EnsureSocketDir creates the directory holding the Unix socket with
// owner-only permissions. It does nothing for other transport kinds.
func (c *Config) EnsureSocketDir() error {
	if c.Transport.Kind != TransportUnix || c.Transport.SocketPath == "" {
		return nil
	}
	dir := filepath.Dir(c.Transport.SocketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
