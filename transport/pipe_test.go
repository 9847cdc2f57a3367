// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/testutil"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	exchange(t, a, b)

	if a.Info().Kind != "pipe" || b.Info().Kind != "pipe" {
		t.Errorf("Info().Kind = %q/%q, want pipe", a.Info().Kind, b.Info().Kind)
	}
}

func TestPipeOrdering(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	const count = 200
	go func() {
		for i := 0; i < count; i++ {
			if err := a.Send(ctx, []byte(fmt.Sprint(i))); err != nil {
				t.Errorf("Send %d: %v", i, err)
				return
			}
		}
	}()
	for i := 0; i < count; i++ {
		message, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if string(message) != fmt.Sprint(i) {
			t.Fatalf("message %d = %q", i, message)
		}
	}
}

func TestPipeSendCopiesMessage(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	buffer := []byte("original")
	if err := a.Send(ctx, buffer); err != nil {
		t.Fatalf("Send: %v", err)
	}
	copy(buffer, "mutated!")

	message, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(message) != "original" {
		t.Errorf("received %q, want original", message)
	}
}

func TestPipeCloseClosesBothEnds(t *testing.T) {
	a, b := Pipe()

	received := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		received <- err
	}()

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := testutil.RequireReceive(t, received, 5*time.Second, "Receive after peer close")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Receive error = %v, want ErrClosed", err)
	}
	if err := b.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close = %v, want ErrClosed", err)
	}
	// Second close is harmless.
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive with cancelled context = %v, want context.Canceled", err)
	}
}

func TestPipeListener(t *testing.T) {
	listener := NewPipeListener()
	accepted := acceptOne(t, listener)

	peer, err := listener.DialContext(context.Background(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	host := testutil.RequireReceive(t, accepted, 5*time.Second, "accepting pipe")
	if host == nil {
		t.Fatal("Accept failed")
	}
	exchange(t, peer, host)

	listener.Close()
	if _, err := listener.Accept(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Accept after Close = %v, want ErrClosed", err)
	}
	if _, err := listener.Dial(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Dial after Close = %v, want ErrClosed", err)
	}
}
