// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// Publish sends an event to every attached connection. The envelope is
// encoded once. Delivery failures are logged per connection and not
// returned; the only error is a payload that cannot be encoded.
// Publishing with no connections attached is not an error.
func (b *Bridge) Publish(name string, payload ...any) error {
	if name == "" {
		return errors.New("bridge: event name must not be empty")
	}
	values, err := codec.Encode(b.codec, payload...)
	if err != nil {
		return fmt.Errorf("encoding payload for event %q: %w", name, err)
	}
	data, err := encodeEnvelope(b.codec, &Envelope{
		Kind:    KindEvent,
		Channel: b.channel,
		Name:    name,
		Payload: values,
	})
	if err != nil {
		return err
	}
	b.metrics.eventPublished(b.channel)

	for _, conn := range b.Conns() {
		ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
		err := conn.send(ctx, data)
		cancel()
		if err != nil {
			conn.logger.Warn("event delivery failed", "event", name, "error", err)
		}
	}
	return nil
}
