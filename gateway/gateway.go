// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/dcgate/lib/config"
	"github.com/bureau-foundation/dcgate/relay"
	"github.com/bureau-foundation/dcgate/upstream"
)

// Options configures a Gateway. The zero value is usable: host
// candidates only, default relay sizes, no timeouts.
type Options struct {
	// ICEServers are offered to pion during candidate gathering.
	ICEServers []webrtc.ICEServer

	// IncludeLoopbackCandidates adds 127.0.0.1 host candidates, needed
	// when the peer runs on the same machine.
	IncludeLoopbackCandidates bool

	// TeardownOnDisconnect tears a session down on the Disconnected
	// state as well as on Failed and Closed. ICE can recover from
	// Disconnected, so this is off by default.
	TeardownOnDisconnect bool

	// RelayBufferSize is the upstream read size, which bounds the size
	// of each message sent on a channel. Zero uses relay.DefaultBufferSize.
	RelayBufferSize int

	// RelayQueueLength bounds each channel's pending-message queue.
	// Zero uses relay.DefaultQueueLength.
	RelayQueueLength int

	// GatherTimeout bounds ICE candidate gathering during negotiation.
	// Zero leaves only the caller's context.
	GatherTimeout time.Duration

	// Connector opens upstream connections. Nil uses a Connector with
	// no timeout that logs to Logger.
	Connector *upstream.Connector

	// Metrics receives gateway metrics. Nil uses unregistered
	// collectors.
	Metrics *Metrics

	// Logger receives session lifecycle logs and pion's own logging.
	// Nil uses slog.Default().
	Logger *slog.Logger
}

// OptionsFromConfig builds Options from the gateway configuration.
func OptionsFromConfig(cfg *config.Config, metrics *Metrics, logger *slog.Logger) Options {
	return Options{
		ICEServers:                ICEServers(cfg.ICEServers),
		IncludeLoopbackCandidates: cfg.IncludeLoopbackCandidates,
		TeardownOnDisconnect:      cfg.TeardownOnDisconnect,
		RelayBufferSize:           cfg.Relay.BufferSize,
		RelayQueueLength:          cfg.Relay.QueueLength,
		GatherTimeout:             cfg.Timeouts.Gather,
		Connector: &upstream.Connector{
			Timeout: cfg.Timeouts.Connect,
			Logger:  logger,
		},
		Metrics: metrics,
		Logger:  logger,
	}
}

// Gateway negotiates sessions and keeps the registry of live ones.
type Gateway struct {
	api       *webrtc.API
	options   Options
	connector *upstream.Connector
	metrics   *Metrics
	logger    *slog.Logger

	sessionCounter atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// New creates a Gateway. It validates the options and builds the pion
// API shared by every session.
func New(options Options) (*Gateway, error) {
	if options.RelayBufferSize < 0 {
		return nil, fmt.Errorf("relay buffer size must not be negative, got %d", options.RelayBufferSize)
	}
	if options.RelayQueueLength < 0 {
		return nil, fmt.Errorf("relay queue length must not be negative, got %d", options.RelayQueueLength)
	}
	if options.GatherTimeout < 0 {
		return nil, fmt.Errorf("gather timeout must not be negative, got %s", options.GatherTimeout)
	}
	if options.RelayBufferSize == 0 {
		options.RelayBufferSize = relay.DefaultBufferSize
	}
	if options.RelayQueueLength == 0 {
		options.RelayQueueLength = relay.DefaultQueueLength
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	connector := options.Connector
	if connector == nil {
		connector = &upstream.Connector{Logger: logger}
	}

	settingEngine := webrtc.SettingEngine{
		LoggerFactory: pionLoggerFactory{logger: logger.With("component", "pion")},
	}
	if options.IncludeLoopbackCandidates {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	return &Gateway{
		api:       webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		options:   options,
		connector: connector,
		metrics:   metrics,
		logger:    logger,
		sessions:  make(map[string]*session),
	}, nil
}

// SessionCount returns the number of live sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Close tears down every live session and waits for the teardowns to
// finish. Negotiations that complete afterwards fail with ErrClosed.
// Close is idempotent.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	live := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		live = append(live, s)
	}
	g.mu.Unlock()

	if len(live) > 0 {
		g.logger.Info("closing gateway, tearing down sessions", "sessions", len(live))
	}
	for _, s := range live {
		s.signalTermination(reasonShutdown)
	}
	for _, s := range live {
		<-s.done
	}
	return nil
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// register adds a negotiated session to the registry. It fails once the
// gateway is closed; the caller then tears the session down itself.
func (g *Gateway) register(s *session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.sessions[s.id] = s
	g.metrics.SessionsActive.Inc()
	g.metrics.SessionsTotal.Inc()
	return nil
}

// unregister removes a session. Sessions that never registered (failed
// negotiations) are ignored.
func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.sessions[s.id]; ok && current == s {
		delete(g.sessions, s.id)
		g.metrics.SessionsActive.Dec()
	}
}

func (g *Gateway) nextSessionID() string {
	return fmt.Sprintf("session-%d", g.sessionCounter.Add(1))
}

// newPeerConnection creates a pion PeerConnection with the configured
// ICE servers.
func (g *Gateway) newPeerConnection() (*webrtc.PeerConnection, error) {
	return g.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: g.options.ICEServers,
	})
}
