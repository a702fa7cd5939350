// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay directions, used as the "direction" label.
const (
	directionToUpstream = "channel_to_upstream"
	directionToChannel  = "upstream_to_channel"
)

// Teardown reasons, used as the "reason" label and in logs.
const (
	reasonFailed            = "failed"
	reasonClosed            = "closed"
	reasonDisconnected      = "disconnected"
	reasonShutdown          = "shutdown"
	reasonNegotiationFailed = "negotiation_failed"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	SessionsActive          prometheus.Gauge
	SessionsTotal           prometheus.Counter
	NegotiationFailures     prometheus.Counter
	Teardowns               *prometheus.CounterVec
	TeardownErrors          prometheus.Counter
	ChannelsActive          prometheus.Gauge
	ChannelsTotal           prometheus.Counter
	UpstreamConnectFailures prometheus.Counter
	RelayBytes              *prometheus.CounterVec
	RelayErrors             *prometheus.CounterVec
	DroppedMessages         prometheus.Counter
}

// NewMetrics creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered, which suits tests and
// embedders that do not export metrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dcgate_sessions_active",
			Help: "Number of negotiated sessions not yet torn down.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcgate_sessions_total",
			Help: "Total number of successfully negotiated sessions.",
		}),
		NegotiationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcgate_negotiation_failures_total",
			Help: "Total number of offers that did not produce an answer.",
		}),
		Teardowns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dcgate_teardowns_total",
			Help: "Total number of session teardowns by trigger.",
		}, []string{"reason"}),
		TeardownErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcgate_teardown_errors_total",
			Help: "Total number of peer connection close failures during teardown.",
		}),
		ChannelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dcgate_channels_active",
			Help: "Number of data channels with a live bridge.",
		}),
		ChannelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcgate_channels_total",
			Help: "Total number of data channels announced by peers.",
		}),
		UpstreamConnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcgate_upstream_connect_failures_total",
			Help: "Total number of upstream connects that failed, leaving a channel unbridged.",
		}),
		RelayBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dcgate_relay_bytes_total",
			Help: "Total number of bytes relayed, by direction.",
		}, []string{"direction"}),
		RelayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dcgate_relay_errors_total",
			Help: "Total number of relay I/O failures, by direction.",
		}, []string{"direction"}),
		DroppedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcgate_dropped_messages_total",
			Help: "Total number of channel messages discarded without reaching the upstream.",
		}),
	}
}
