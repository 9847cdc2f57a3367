// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Bridge.Channel != "IPC-bridge" {
		t.Errorf("expected channel=IPC-bridge, got %s", cfg.Bridge.Channel)
	}
	if cfg.Bridge.Codec != "cbor" {
		t.Errorf("expected codec=cbor, got %s", cfg.Bridge.Codec)
	}
	if cfg.Transport.Kind != TransportUnix {
		t.Errorf("expected kind=unix, got %s", cfg.Transport.Kind)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when IPCBRIDGE_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "IPCBRIDGE_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err)
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, "ipcbridge.yaml", `
environment: staging
bridge:
  channel: control
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Bridge.Channel != "control" {
		t.Errorf("expected channel=control, got %s", cfg.Bridge.Channel)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "ipcbridge.yaml", `
environment: staging

bridge:
  codec: json
  max_inflight: 8
  send_timeout: 3s

transport:
  kind: websocket
  listen_addr: 127.0.0.1:9100
  websocket_path: /ipc
  compression: zstd
  max_frame_size: 65536

log:
  level: debug
  format: text

metrics:
  listen_addr: 127.0.0.1:9101

host:
  tick_interval: 250ms
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Bridge.Channel != "IPC-bridge" {
		t.Errorf("unset channel should keep default, got %s", cfg.Bridge.Channel)
	}
	if cfg.Bridge.Codec != "json" || cfg.Bridge.MaxInflight != 8 {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if timeout, _ := cfg.Bridge.ParseSendTimeout(); timeout != 3*time.Second {
		t.Errorf("send timeout = %v, want 3s", timeout)
	}
	if cfg.Transport.Kind != TransportWebSocket || cfg.Transport.WebSocketPath != "/ipc" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Transport.Compression != "zstd" || cfg.Transport.MaxFrameSize != 65536 {
		t.Errorf("transport framing = %+v", cfg.Transport)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Metrics.ListenAddr != "127.0.0.1:9101" {
		t.Errorf("metrics listen_addr = %s", cfg.Metrics.ListenAddr)
	}
	if interval, _ := cfg.Host.ParseTickInterval(); interval != 250*time.Millisecond {
		t.Errorf("tick interval = %v, want 250ms", interval)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "ipcbridge.jsonc", `{
	// Tabs and comments are fine here.
	"environment": "development",
	"transport": {
		"kind": "tcp",
		"listen_addr": "127.0.0.1:9200", /* inline */
	},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Transport.Kind != TransportTCP || cfg.Transport.ListenAddr != "127.0.0.1:9200" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
}

func TestLoadFile_UnknownKeysRejected(t *testing.T) {
	for name, content := range map[string]string{
		"ipcbridge.yaml": "bridge:\n  chanel: typo\n",
		"ipcbridge.json": `{"bridge": {"chanel": "typo"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, name, content)); err == nil {
				t.Error("expected error for unknown key")
			}
		})
	}
}

func TestLoadFile_Empty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "ipcbridge.yaml", ""))
	if err != nil {
		t.Fatalf("LoadFile of empty file: %v", err)
	}
	if cfg.Bridge.Channel != "IPC-bridge" {
		t.Errorf("empty file should yield defaults, got channel %s", cfg.Bridge.Channel)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "ipcbridge.yaml", `
environment: production

bridge:
  channel: base

transport:
  socket_path: /base/ipcbridge.sock

production:
  bridge:
    channel: prod
    max_inflight: 32
  transport:
    socket_path: /run/ipcbridge/ipcbridge.sock
  host:
    tick_interval: 1m
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Bridge.Channel != "prod" || cfg.Bridge.MaxInflight != 32 {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.Transport.SocketPath != "/run/ipcbridge/ipcbridge.sock" {
		t.Errorf("socket_path = %s", cfg.Transport.SocketPath)
	}
	if cfg.Host.TickInterval != "1m" {
		t.Errorf("tick_interval = %s", cfg.Host.TickInterval)
	}
	// An explicit production section replaces the built-in production
	// defaults rather than merging with them.
	if cfg.Log.Format != "auto" {
		t.Errorf("log format = %s, want auto", cfg.Log.Format)
	}
}

func TestProductionDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "ipcbridge.yaml", "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("production log format = %s, want json", cfg.Log.Format)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("IPCBRIDGE_CHANNEL", "from-env")
	t.Setenv("IPCBRIDGE_SOCKET", "/env/ipcbridge.sock")

	cfg, err := LoadFile(writeConfig(t, "ipcbridge.yaml", `
bridge:
  channel: from-file
transport:
  socket_path: /file/ipcbridge.sock
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Bridge.Channel != "from-file" {
		t.Errorf("channel = %s (env vars should not override)", cfg.Bridge.Channel)
	}
	if cfg.Transport.SocketPath != "/file/ipcbridge.sock" {
		t.Errorf("socket_path = %s (env vars should not override)", cfg.Transport.SocketPath)
	}
}

func TestSocketPathExpansion(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg, err := LoadFile(writeConfig(t, "ipcbridge.yaml", "log:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Transport.SocketPath != "/run/user/1000/ipcbridge.sock" {
		t.Errorf("socket_path = %s", cfg.Transport.SocketPath)
	}
}

func TestBuiltin(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	cfg := Builtin()
	if cfg.Transport.SocketPath != "/tmp/ipcbridge.sock" {
		t.Errorf("socket_path = %s, want /tmp/ipcbridge.sock", cfg.Transport.SocketPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Builtin() should validate: %v", err)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/ipcbridge.sock",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/ipcbridge.sock",
		},
		{
			input:    "${IPCBRIDGE_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}:${B}",
			vars:     map[string]string{"A": "localhost", "B": "6379"},
			expected: "localhost:6379",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: "invalid environment",
		},
		{
			name:    "empty channel",
			modify:  func(c *Config) { c.Bridge.Channel = "" },
			wantErr: "bridge.channel",
		},
		{
			name:    "unknown codec",
			modify:  func(c *Config) { c.Bridge.Codec = "protobuf" },
			wantErr: "bridge.codec",
		},
		{
			name:    "negative inflight",
			modify:  func(c *Config) { c.Bridge.MaxInflight = -1 },
			wantErr: "bridge.max_inflight",
		},
		{
			name:    "bad send timeout",
			modify:  func(c *Config) { c.Bridge.SendTimeout = "soon" },
			wantErr: "bridge.send_timeout",
		},
		{
			name:    "unknown transport",
			modify:  func(c *Config) { c.Transport.Kind = "carrier-pigeon" },
			wantErr: "transport.kind",
		},
		{
			name:    "unix without socket",
			modify:  func(c *Config) { c.Transport.SocketPath = "" },
			wantErr: "transport.socket_path",
		},
		{
			name:    "tcp without address",
			modify:  func(c *Config) { c.Transport.Kind = TransportTCP },
			wantErr: "transport.listen_addr",
		},
		{
			name: "websocket path without slash",
			modify: func(c *Config) {
				c.Transport.Kind = TransportWebSocket
				c.Transport.ListenAddr = "127.0.0.1:0"
				c.Transport.WebSocketPath = "bridge"
			},
			wantErr: "transport.websocket_path",
		},
		{
			name:    "redis without address",
			modify:  func(c *Config) { c.Transport.Kind = TransportRedis },
			wantErr: "transport.redis_addr",
		},
		{
			name:    "unknown compression",
			modify:  func(c *Config) { c.Transport.Compression = "gzip" },
			wantErr: "transport.compression",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:    "negative tick",
			modify:  func(c *Config) { c.Host.TickInterval = "-1s" },
			wantErr: "host.tick_interval",
		},
		{
			name:   "ticking disabled",
			modify: func(c *Config) { c.Host.TickInterval = "0s" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureSocketDir(t *testing.T) {
	cfg := Default()
	cfg.Transport.SocketPath = filepath.Join(t.TempDir(), "run", "ipcbridge", "ipcbridge.sock")

	if err := cfg.EnsureSocketDir(); err != nil {
		t.Fatalf("EnsureSocketDir failed: %v", err)
	}
	info, err := os.Stat(filepath.Dir(cfg.Transport.SocketPath))
	if err != nil {
		t.Fatalf("socket directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("socket directory is not a directory")
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("socket directory mode = %o, want 700", info.Mode().Perm())
	}
}
