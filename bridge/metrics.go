// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by the responder.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeUnknown   = "unknown_action"
	outcomePanic     = "panic"
	outcomeCancelled = "cancelled"
	outcomeClosed    = "closed"
	outcomeFailed    = "send_failed"
	outcomeDuplicate = "duplicate_id"
)

// unknownActionLabel replaces the action label for requests naming an
// unregistered action, so a misbehaving peer cannot create unbounded
// label values.
const unknownActionLabel = "(unknown)"

// Metrics holds the Prometheus collectors a Bridge updates. A nil
// *Metrics records nothing. One Metrics may be shared by several
// bridges; series are labelled by channel.
type Metrics struct {
	requests  *prometheus.CounterVec
	calls     *prometheus.CounterVec
	pending   *prometheus.GaugeVec
	published *prometheus.CounterVec
	received  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	malformed *prometheus.CounterVec
}

// NewMetrics creates the bridge collectors and registers them with
// registerer. Registering twice with the same registerer panics, as
// with any Prometheus collector.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_requests_total",
			Help: "Requests dispatched to handlers, by outcome.",
		}, []string{"channel", "action", "outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_calls_total",
			Help: "Outgoing calls settled, by outcome.",
		}, []string{"channel", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ipcbridge_pending_calls",
			Help: "Outgoing calls awaiting a response.",
		}, []string{"channel"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_events_published_total",
			Help: "Events published, counted once per publish regardless of connection count.",
		}, []string{"channel"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_events_received_total",
			Help: "Events received from peers.",
		}, []string{"channel"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_events_dropped_total",
			Help: "Received events dropped because the connection's listener queue was full.",
		}, []string{"channel"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_malformed_envelopes_total",
			Help: "Incoming messages dropped because they could not be decoded.",
		}, []string{"channel"}),
	}
	registerer.MustRegister(m.requests, m.calls, m.pending, m.published, m.received, m.dropped, m.malformed)
	return m
}

func (m *Metrics) request(channel, action, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(channel, action, outcome).Inc()
}

func (m *Metrics) call(channel, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) pendingAdd(channel string, delta float64) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(channel).Add(delta)
}

func (m *Metrics) eventPublished(channel string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(channel).Inc()
}

func (m *Metrics) eventReceived(channel string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(channel).Inc()
}

func (m *Metrics) eventDropped(channel string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(channel).Inc()
}

func (m *Metrics) malformedEnvelope(channel string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(channel).Inc()
}
