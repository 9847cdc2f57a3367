// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/testutil"
	"github.com/bureau-foundation/ipcbridge/transport"
)

type listenerFailure struct {
	event string
	err   error
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	failures := make(chan listenerFailure, 1)
	host := newTestBridge(t)
	peer := newTestBridge(t, WithListenerErrorHandler(func(event string, err error) {
		failures <- listenerFailure{event, err}
	}))
	attach(t, host, peer)

	delivered := make(chan struct{}, 1)
	peer.On("tick", func(Message) { panic("listener bug") })
	peer.On("tick", func(Message) { delivered <- struct{}{} })

	host.Publish("tick")

	testutil.RequireReceive(t, delivered, testTimeout, "second listener ran")
	failure := testutil.RequireReceive(t, failures, testTimeout, "panic reported")
	if failure.event != "tick" || !strings.Contains(failure.err.Error(), "listener bug") {
		t.Errorf("failure = %+v", failure)
	}
}

func TestOffRemovesAllListeners(t *testing.T) {
	host, peer := newPair(t)
	removed := make(chan struct{}, 2)
	delivered := make(chan struct{}, 1)
	peer.On("tick", func(Message) { removed <- struct{}{} })
	peer.On("tick", func(Message) { removed <- struct{}{} })
	peer.Off("tick")
	peer.On("tock", func(Message) { delivered <- struct{}{} })

	host.Publish("tick")
	host.Publish("tock")

	// Events on one connection arrive in order, so tick was dispatched
	// before tock.
	testutil.RequireReceive(t, delivered, testTimeout, "tock delivered")
	select {
	case <-removed:
		t.Error("a listener removed by Off still ran")
	default:
	}
}

func TestListenerMayCallBackIntoBridge(t *testing.T) {
	host, peer := newPair(t)
	host.Handle("echo", echoHandler)

	replies := make(chan string, 1)
	peer.On("tick", func(message Message) {
		var label string
		message.Decode(0, &label)
		result, err := peer.Call(context.Background(), "echo", label)
		if err != nil {
			t.Errorf("Call from listener: %v", err)
			replies <- ""
			return
		}
		var text string
		result.Decode(&text)
		replies <- text
	})

	host.Publish("tick", "from listener")
	if reply := testutil.RequireReceive(t, replies, testTimeout, "listener call answered"); reply != "from listener" {
		t.Errorf("reply = %q", reply)
	}
}

func TestListenerSeesConnection(t *testing.T) {
	host, peer := newPair(t)
	conns := make(chan *Conn, 1)
	peer.On("tick", func(message Message) { conns <- message.Conn })

	host.Publish("tick")
	conn := testutil.RequireReceive(t, conns, testTimeout, "tick delivered")
	if conn == nil || conn != peer.Conns()[0] {
		t.Errorf("Message.Conn = %v, want the peer's connection", conn)
	}
}

func TestPublish(t *testing.T) {
	lonely := newTestBridge(t)
	if err := lonely.Publish("tick", 1); err != nil {
		t.Errorf("Publish with no connections: %v", err)
	}
	if err := lonely.Publish("tick", make(chan int)); err == nil {
		t.Error("Publish with an unencodable payload should fail")
	}
	if err := lonely.Publish(""); err == nil {
		t.Error("Publish with an empty name should fail")
	}
}

func TestMessageDecodeOutOfRange(t *testing.T) {
	host, peer := newPair(t)
	errs := make(chan error, 1)
	peer.On("tick", func(message Message) {
		var value int
		errs <- message.Decode(1, &value)
	})

	host.Publish("tick", 1)
	if err := testutil.RequireReceive(t, errs, testTimeout, "tick delivered"); err == nil {
		t.Error("Decode past the last payload value should fail")
	}
}

func TestListenerCallSurvivesEventFlood(t *testing.T) {
	// A short send timeout turns a stalled read loop into a lost
	// response instead of a slow one.
	host := newTestBridge(t, WithSendTimeout(300*time.Millisecond))
	peer := newTestBridge(t)
	attach(t, host, peer)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	host.Handle("slow", func(context.Context, *Request) (any, error) {
		started <- struct{}{}
		<-release
		return "done", nil
	})

	const flood = 400
	ctx := testContext(t)
	replies := make(chan error, 1)
	allSeen := make(chan struct{})
	var seen atomic.Int64
	var first sync.Once
	peer.On("tick", func(Message) {
		if seen.Add(1) == flood+1 {
			close(allSeen)
		}
		first.Do(func() {
			result, err := peer.Call(ctx, "slow")
			if err == nil {
				var text string
				err = result.Decode(&text)
				if err == nil && text != "done" {
					err = fmt.Errorf("result = %q, want done", text)
				}
			}
			replies <- err
		})
	})

	host.Publish("tick")
	testutil.RequireReceive(t, started, testTimeout, "listener's call reached the handler")
	for i := 0; i < flood; i++ {
		if err := host.Publish("tick"); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	close(release)

	if err := testutil.RequireReceive(t, replies, testTimeout, "listener's call settled"); err != nil {
		t.Fatalf("listener's call failed: %v", err)
	}
	testutil.RequireClosed(t, allSeen, testTimeout, "every tick dispatched")
}

func TestEventQueueLimit(t *testing.T) {
	queue := newEventQueue(2)
	if !queue.push(&Envelope{Name: "a"}) || !queue.push(&Envelope{Name: "b"}) {
		t.Fatal("push below the limit refused")
	}
	if queue.push(&Envelope{Name: "c"}) {
		t.Fatal("push above the limit accepted")
	}
	if queue.len() != 2 {
		t.Errorf("len() = %d, want 2", queue.len())
	}
	for _, want := range []string{"a", "b"} {
		envelope, ok := queue.pop()
		if !ok || envelope.Name != want {
			t.Fatalf("pop() = %v, %v; want %s", envelope, ok, want)
		}
	}
	if _, ok := queue.pop(); ok {
		t.Error("pop() on an empty queue succeeded")
	}
	if !queue.push(&Envelope{Name: "d"}) {
		t.Error("push after draining refused")
	}
}

func TestListenerMayCloseBridge(t *testing.T) {
	host, peer := newPair(t)
	closed := make(chan struct{})
	peer.On("shutdown", func(Message) {
		peer.Close()
		close(closed)
	})

	host.Publish("shutdown")

	testutil.RequireClosed(t, closed, testTimeout, "Close from a listener returned")
	if conns := peer.Conns(); len(conns) != 0 {
		t.Errorf("peer still has %d connections after Close", len(conns))
	}
	end, other := transport.Pipe()
	defer other.Close()
	if _, err := peer.Attach(end); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("Attach after Close = %v, want ErrBridgeClosed", err)
	}
}

func TestListenersSurviveReconnect(t *testing.T) {
	host := newTestBridge(t)
	peer := newTestBridge(t)
	hostConn := attach(t, host, peer)
	oldPeerConns := peer.Conns()
	if len(oldPeerConns) != 1 {
		t.Fatalf("peer has %d connections, want 1", len(oldPeerConns))
	}

	delivered := make(chan int, 1)
	peer.On("tick", func(message Message) {
		var sequence int
		message.Decode(0, &sequence)
		delivered <- sequence
	})

	hostConn.Close()
	testutil.RequireClosed(t, oldPeerConns[0].Done(), testTimeout, "peer saw the disconnect")

	attach(t, host, peer)
	host.Publish("tick", 2)

	if sequence := testutil.RequireReceive(t, delivered, testTimeout, "tick after reconnect"); sequence != 2 {
		t.Errorf("sequence = %d, want 2", sequence)
	}
}
