// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// Message is a received event as seen by a listener.
type Message struct {
	// Name is the event name.
	Name string

	// Payload holds the publisher's arguments, still encoded.
	Payload []codec.Raw

	// Conn is the connection the event arrived on.
	Conn *Conn

	codec codec.Codec
}

// Len returns the number of payload values.
func (m Message) Len() int { return len(m.Payload) }

// Decode unmarshals payload value index into target.
func (m Message) Decode(index int, target any) error {
	if index < 0 || index >= len(m.Payload) {
		return fmt.Errorf("payload %d of event %q: event has %d values", index, m.Name, len(m.Payload))
	}
	if err := m.codec.Unmarshal(m.Payload[index], target); err != nil {
		return fmt.Errorf("payload %d of event %q: %w", index, m.Name, err)
	}
	return nil
}

// EventListener receives events of one name.
type EventListener func(Message)

type listenerEntry struct {
	id       uint64
	listener EventListener
}

// listenerRegistry holds the ordered listeners for each event name.
type listenerRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string][]listenerEntry
}

func (r *listenerRegistry) add(name string, listener EventListener) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries[name] = append(r.entries[name], listenerEntry{id: r.nextID, listener: listener})
	return r.nextID
}

func (r *listenerRegistry) remove(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[name]
	for i, entry := range entries {
		if entry.id != id {
			continue
		}
		// Build a new slice: snapshots handed to dispatch share the
		// old backing array.
		remaining := make([]listenerEntry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		remaining = append(remaining, entries[i+1:]...)
		if len(remaining) == 0 {
			delete(r.entries, name)
		} else {
			r.entries[name] = remaining
		}
		return
	}
}

func (r *listenerRegistry) removeAll(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

func (r *listenerRegistry) snapshot(name string) []listenerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[name]
}

func (r *listenerRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string][]listenerEntry)
}

// On adds listener for events named name, after any listeners already
// registered. The returned function removes exactly this registration
// and may be called more than once. Listeners hear events from every
// attached connection and stay registered across disconnects until
// they are removed or the bridge is closed.
func (b *Bridge) On(name string, listener EventListener) (unsubscribe func()) {
	id := b.listeners.add(name, listener)
	var once sync.Once
	return func() {
		once.Do(func() { b.listeners.remove(name, id) })
	}
}

// Off removes every listener for name.
func (b *Bridge) Off(name string) {
	b.listeners.removeAll(name)
}

// dispatchEvent runs the listeners registered for an event when it
// arrived. Listeners added or removed during dispatch take effect from
// the next event.
func (b *Bridge) dispatchEvent(conn *Conn, envelope *Envelope) {
	b.metrics.eventReceived(b.channel)
	entries := b.listeners.snapshot(envelope.Name)
	if len(entries) == 0 {
		conn.logger.Debug("event with no listeners", "event", envelope.Name)
		return
	}
	message := Message{Name: envelope.Name, Payload: envelope.Payload, Conn: conn, codec: b.codec}
	for _, entry := range entries {
		b.runListener(entry.listener, message)
	}
}

func (b *Bridge) runListener(listener EventListener, message Message) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.onListenerError(message.Name, fmt.Errorf("listener for %q panicked: %v", message.Name, recovered))
		}
	}()
	listener(message)
}
