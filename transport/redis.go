// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisSide names which end of a Redis-backed bridge an endpoint is.
// Each side subscribes to its own topic and publishes to the other's.
type RedisSide string

const (
	RedisHost RedisSide = "host"
	RedisPeer RedisSide = "peer"
)

func (side RedisSide) opposite() RedisSide {
	if side == RedisHost {
		return RedisPeer
	}
	return RedisHost
}

// RedisTopic returns the pub/sub topic that side receives on:
// "<prefix>:<channel>:<side>".
func RedisTopic(prefix, channel string, side RedisSide) string {
	return prefix + ":" + channel + ":" + string(side)
}

// RedisEndpoint presents a pair of Redis pub/sub topics as an Endpoint.
//
// Pub/sub delivery is at-most-once and Redis does not report when the
// other side goes away, so a vanished peer is only noticed through
// call cancellation. Use it where host and peer share a Redis instance
// and no socket path can be shared between them.
type RedisEndpoint struct {
	client       *redis.Client
	subscription *redis.PubSub
	messages     <-chan *redis.Message
	publishTopic string
	info         Info

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Endpoint = (*RedisEndpoint)(nil)

// DialRedis subscribes side's topic for channel and returns the
// endpoint once the subscription is confirmed, so messages the other
// side publishes afterwards are not lost. The client is owned by the
// caller and stays open after Close.
func DialRedis(ctx context.Context, client *redis.Client, prefix, channel string, side RedisSide) (*RedisEndpoint, error) {
	if side != RedisHost && side != RedisPeer {
		return nil, fmt.Errorf("invalid redis side %q", side)
	}
	receiveTopic := RedisTopic(prefix, channel, side)
	subscription := client.Subscribe(ctx, receiveTopic)
	if _, err := subscription.Receive(ctx); err != nil {
		subscription.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", receiveTopic, err)
	}
	return &RedisEndpoint{
		client:       client,
		subscription: subscription,
		messages:     subscription.Channel(redis.WithChannelSize(1024)),
		publishTopic: RedisTopic(prefix, channel, side.opposite()),
		info:         Info{Kind: "redis", RemoteAddress: client.Options().Addr + "/" + RedisTopic(prefix, channel, side.opposite())},
		closed:       make(chan struct{}),
	}, nil
}

func (e *RedisEndpoint) Send(ctx context.Context, message []byte) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	if err := e.client.Publish(ctx, e.publishTopic, message).Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == redis.ErrClosed {
			return closedError(err)
		}
		return fmt.Errorf("publishing to %s: %w", e.publishTopic, err)
	}
	return nil
}

func (e *RedisEndpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case message, ok := <-e.messages:
		if !ok {
			return nil, ErrClosed
		}
		return []byte(message.Payload), nil
	case <-e.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes. The Redis client is left open.
func (e *RedisEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.subscription.Close()
	})
	return err
}

func (e *RedisEndpoint) Info() Info { return e.info }
