// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/testutil"
)

func muxPair(t *testing.T) (*Mux, *Mux) {
	t.Helper()
	a, b := Pipe()
	left, right := NewMux(a, nil), NewMux(b, nil)
	t.Cleanup(func() {
		left.Close()
		right.Close()
	})
	return left, right
}

func openChannel(t *testing.T, mux *Mux, name string) Endpoint {
	t.Helper()
	channel, err := mux.Channel(name)
	if err != nil {
		t.Fatalf("Channel(%q): %v", name, err)
	}
	return channel
}

func TestMuxRoutesByChannel(t *testing.T) {
	left, right := muxPair(t)
	leftBridge, rightBridge := openChannel(t, left, "IPC-bridge"), openChannel(t, right, "IPC-bridge")
	leftTerminal, rightTerminal := openChannel(t, left, "terminal"), openChannel(t, right, "terminal")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := leftTerminal.Send(ctx, []byte("keystrokes")); err != nil {
		t.Fatalf("Send terminal: %v", err)
	}
	if err := leftBridge.Send(ctx, []byte("envelope")); err != nil {
		t.Fatalf("Send bridge: %v", err)
	}

	message, err := rightBridge.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive bridge: %v", err)
	}
	if string(message) != "envelope" {
		t.Errorf("bridge channel received %q", message)
	}
	message, err = rightTerminal.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive terminal: %v", err)
	}
	if string(message) != "keystrokes" {
		t.Errorf("terminal channel received %q", message)
	}

	exchange(t, leftBridge, rightBridge)

	if kind := rightBridge.Info().Kind; kind != "mux/pipe" {
		t.Errorf("Info().Kind = %q, want mux/pipe", kind)
	}
	if address := rightBridge.Info().RemoteAddress; !strings.HasSuffix(address, "#IPC-bridge") {
		t.Errorf("Info().RemoteAddress = %q, want channel suffix", address)
	}
}

func TestMuxDropsUnopenedChannel(t *testing.T) {
	left, right := muxPair(t)
	orphan := openChannel(t, left, "orphan")
	leftOpen, rightOpen := openChannel(t, left, "open"), openChannel(t, right, "open")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := orphan.Send(ctx, []byte("nobody listens")); err != nil {
		t.Fatalf("Send orphan: %v", err)
	}
	if err := leftOpen.Send(ctx, []byte("delivered")); err != nil {
		t.Fatalf("Send open: %v", err)
	}
	message, err := rightOpen.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(message) != "delivered" {
		t.Errorf("received %q, want delivered", message)
	}
}

func TestMuxChannelNames(t *testing.T) {
	left, _ := muxPair(t)
	openChannel(t, left, "IPC-bridge")

	if _, err := left.Channel("IPC-bridge"); err == nil {
		t.Error("opening a channel twice should fail")
	}
	if _, err := left.Channel(""); err == nil {
		t.Error("empty channel name should be rejected")
	}
	if _, err := left.Channel(strings.Repeat("x", 256)); err == nil {
		t.Error("256-byte channel name should be rejected")
	}
}

func TestMuxChannelCloseIsIndependent(t *testing.T) {
	left, right := muxPair(t)
	first := openChannel(t, left, "first")
	leftSecond, rightSecond := openChannel(t, left, "second"), openChannel(t, right, "second")

	first.Close()
	if _, err := first.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive on closed channel = %v, want ErrClosed", err)
	}
	if err := first.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send on closed channel = %v, want ErrClosed", err)
	}

	exchange(t, leftSecond, rightSecond)

	// The name is free again once closed.
	openChannel(t, left, "first")
}

func TestMuxEndpointFailureClosesChannels(t *testing.T) {
	a, b := Pipe()
	mux := NewMux(a, nil)
	defer mux.Close()
	channel := openChannel(t, mux, "IPC-bridge")

	received := make(chan error, 1)
	go func() {
		_, err := channel.Receive(context.Background())
		received <- err
	}()
	b.Close()

	testutil.RequireClosed(t, mux.Done(), 5*time.Second, "mux done after endpoint close")
	if !errors.Is(mux.Err(), ErrClosed) {
		t.Errorf("mux.Err() = %v, want ErrClosed", mux.Err())
	}
	err := testutil.RequireReceive(t, received, 5*time.Second, "channel Receive after endpoint close")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("channel Receive = %v, want ErrClosed", err)
	}
	if _, err := mux.Channel("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Channel after failure = %v, want ErrClosed", err)
	}
}
