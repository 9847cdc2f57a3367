// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipcbridge/bridge"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/lib/compress"
	"github.com/bureau-foundation/ipcbridge/lib/config"
	"github.com/bureau-foundation/ipcbridge/lib/logging"
	"github.com/bureau-foundation/ipcbridge/transport"
)

// dialTimeout bounds the connect phase of stream transports.
const dialTimeout = 5 * time.Second

// ConfigFlags holds the flags shared by every command that loads
// configuration. Non-empty flag values override the loaded file.
type ConfigFlags struct {
	ConfigPath string
	Transport  string
	Socket     string
	Address    string
	Channel    string
	Codec      string
	LogLevel   string
}

// AddFlags registers the shared flags on flagSet.
func (f *ConfigFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&f.Transport, "transport", "", "transport kind: unix, tcp, websocket, redis")
	flagSet.StringVarP(&f.Socket, "socket", "s", "", "unix socket path")
	flagSet.StringVarP(&f.Address, "address", "a", "", "tcp/websocket listen address or redis server address")
	flagSet.StringVar(&f.Channel, "channel", "", "bridge channel name")
	flagSet.StringVar(&f.Codec, "codec", "", "envelope codec: cbor, json")
	flagSet.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
}

// Load reads the config file named by --config or IPCBRIDGE_CONFIG,
// applies flag overrides and validates the result. With neither set,
// the built-in defaults are used; no file is searched for.
func (f *ConfigFlags) Load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.ConfigPath != "":
		cfg, err = config.LoadFile(f.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Builtin()
	}
	if err != nil {
		return nil, Validation("%w", err)
	}

	if f.Transport != "" {
		cfg.Transport.Kind = f.Transport
	}
	if f.Socket != "" {
		cfg.Transport.SocketPath = f.Socket
	}
	if f.Address != "" {
		if cfg.Transport.Kind == config.TransportRedis {
			cfg.Transport.RedisAddr = f.Address
		} else {
			cfg.Transport.ListenAddr = f.Address
		}
	}
	if f.Channel != "" {
		cfg.Bridge.Channel = f.Channel
	}
	if f.Codec != "" {
		cfg.Bridge.Codec = f.Codec
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, Validation("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// NewLogger builds the logger described by cfg.Log.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, Validation("%w", err)
	}
	return logger, nil
}

// BridgeOptions translates cfg.Bridge into bridge options. cfg must
// already be validated.
func BridgeOptions(cfg *config.Config, logger *slog.Logger) []bridge.Option {
	wire, _ := codec.Lookup(cfg.Bridge.Codec)
	options := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithCodec(wire),
		bridge.WithMaxInflight(cfg.Bridge.MaxInflight),
	}
	if timeout, _ := cfg.Bridge.ParseSendTimeout(); timeout > 0 {
		options = append(options, bridge.WithSendTimeout(timeout))
	}
	return options
}

// StreamOptions translates the framing settings of cfg.Transport.
func StreamOptions(cfg *config.Config) transport.StreamOptions {
	tag, _ := compress.Parse(cfg.Transport.Compression)
	return transport.StreamOptions{
		Compression:  tag,
		MaxFrameSize: cfg.Transport.MaxFrameSize,
	}
}

// Dial connects to the host described by cfg from the peer side.
func Dial(ctx context.Context, cfg *config.Config) (transport.Endpoint, error) {
	var endpoint transport.Endpoint
	var err error
	switch cfg.Transport.Kind {
	case config.TransportUnix:
		dialer := &transport.UnixDialer{Options: StreamOptions(cfg)}
		endpoint, err = dialer.DialContext(ctx, cfg.Transport.SocketPath)
	case config.TransportTCP:
		dialer := &transport.TCPDialer{Timeout: dialTimeout, Options: StreamOptions(cfg)}
		endpoint, err = dialer.DialContext(ctx, cfg.Transport.ListenAddr)
	case config.TransportWebSocket:
		endpoint, err = transport.DialWebSocket(ctx, WebSocketURL(cfg), cfg.Transport.MaxFrameSize)
	case config.TransportRedis:
		endpoint, err = DialRedis(ctx, cfg, transport.RedisPeer)
	default:
		return nil, Validation("unknown transport %q", cfg.Transport.Kind)
	}
	if err != nil {
		return nil, Transient("connecting over %s: %w", cfg.Transport.Kind, err)
	}
	return endpoint, nil
}

// WebSocketURL returns the ws:// URL of the host's upgrade endpoint.
func WebSocketURL(cfg *config.Config) string {
	return "ws://" + cfg.Transport.ListenAddr + cfg.Transport.WebSocketPath
}

// DialRedis opens a Redis client for cfg and joins the pub/sub pair as
// side. Closing the returned endpoint also closes the client.
func DialRedis(ctx context.Context, cfg *config.Config, side transport.RedisSide) (transport.Endpoint, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Transport.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Transport.RedisAddr, err)
	}
	endpoint, err := transport.DialRedis(ctx, client, cfg.Transport.RedisPrefix, cfg.Bridge.Channel, side)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &ownedRedisEndpoint{RedisEndpoint: endpoint, client: client}, nil
}

type ownedRedisEndpoint struct {
	*transport.RedisEndpoint
	client *redis.Client
}

func (e *ownedRedisEndpoint) Close() error {
	err := e.RedisEndpoint.Close()
	if clientErr := e.client.Close(); err == nil {
		err = clientErr
	}
	return err
}
