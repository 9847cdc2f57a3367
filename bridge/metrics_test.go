// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/ipcbridge/lib/testutil"
)

// metricValue returns the value of the counter or gauge series name
// whose labels include every pair in labels, or 0 if there is none.
func metricValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	series:
		for _, metric := range family.GetMetric() {
			present := make(map[string]string)
			for _, pair := range metric.GetLabel() {
				present[pair.GetName()] = pair.GetValue()
			}
			for key, value := range labels {
				if present[key] != value {
					continue series
				}
			}
			if counter := metric.GetCounter(); counter != nil {
				return counter.GetValue()
			}
			if gauge := metric.GetGauge(); gauge != nil {
				return gauge.GetValue()
			}
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	host := newTestBridge(t, WithMetrics(metrics))
	peer := newTestBridge(t, WithMetrics(metrics))
	attach(t, host, peer)

	host.Handle("echo", echoHandler)
	host.Handle("boom", func(context.Context, *Request) (any, error) { return nil, errors.New("explode") })
	received := make(chan struct{}, 1)
	peer.On("tick", func(Message) { received <- struct{}{} })

	ctx := testContext(t)
	peer.Call(ctx, "echo", "a")
	peer.Call(ctx, "echo", "b")
	peer.Call(ctx, "boom")
	peer.Call(ctx, "nope")
	host.Publish("tick")
	testutil.RequireReceive(t, received, testTimeout, "tick delivered")

	channel := map[string]string{"channel": DefaultChannel}
	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"ipcbridge_requests_total", map[string]string{"action": "echo", "outcome": outcomeOK}, 2},
		{"ipcbridge_requests_total", map[string]string{"action": "boom", "outcome": outcomeError}, 1},
		{"ipcbridge_requests_total", map[string]string{"action": unknownActionLabel, "outcome": outcomeUnknown}, 1},
		{"ipcbridge_calls_total", map[string]string{"outcome": outcomeOK}, 2},
		{"ipcbridge_calls_total", map[string]string{"outcome": outcomeError}, 2},
		{"ipcbridge_pending_calls", channel, 0},
		{"ipcbridge_events_published_total", channel, 1},
		{"ipcbridge_events_received_total", channel, 1},
	}
	for _, check := range checks {
		if got := metricValue(t, registry, check.name, check.labels); got != check.want {
			t.Errorf("%s%v = %v, want %v", check.name, check.labels, got, check.want)
		}
	}
}

func TestMalformedEnvelopesAreCounted(t *testing.T) {
	registry := prometheus.NewRegistry()
	host := newTestBridge(t, WithMetrics(NewMetrics(registry)))
	host.Handle("echo", echoHandler)
	raw := newRawPeer(t, host)

	raw.sendBytes([]byte{0x01, 0x02})
	raw.request("after", "echo", "x")
	raw.receive()

	if got := metricValue(t, registry, "ipcbridge_malformed_envelopes_total", nil); got != 1 {
		t.Errorf("malformed envelopes = %v, want 1", got)
	}
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var metrics *Metrics
	metrics.request("c", "a", outcomeOK)
	metrics.call("c", outcomeOK)
	metrics.pendingAdd("c", 1)
	metrics.eventPublished("c")
	metrics.eventReceived("c")
	metrics.malformedEnvelope("c")
}
