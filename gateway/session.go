// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/dcgate/lib/netutil"
	"github.com/bureau-foundation/dcgate/upstream"
)

// sessionEventQueueLength is the capacity of a session's event queue.
// When it fills, pion's callback goroutines wait for the dispatcher.
const sessionEventQueueLength = 64

type eventKind int

const (
	eventChannelCreated eventKind = iota
	eventChannelOpen
	eventChannelMessage
	eventChannelClosed
	eventUpstreamConnected
	eventUpstreamFailed
)

var eventKindNames = [...]string{
	eventChannelCreated:    "channel_created",
	eventChannelOpen:       "channel_open",
	eventChannelMessage:    "channel_message",
	eventChannelClosed:     "channel_closed",
	eventUpstreamConnected: "upstream_connected",
	eventUpstreamFailed:    "upstream_failed",
}

func (k eventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// sessionEvent is one input to the dispatcher. channelKey identifies
// the bridge; the remaining fields depend on kind.
type sessionEvent struct {
	kind       eventKind
	channelKey uint64
	channel    dataChannel
	data       []byte
	connection *upstream.Conn
	err        error
}

// dataChannel is the part of *webrtc.DataChannel a bridge uses.
type dataChannel interface {
	Label() string
	Send(data []byte) error
}

// session is one negotiated peer connection and its channel bridges.
type session struct {
	id              string
	upstreamAddress string
	gateway         *Gateway
	logger          *slog.Logger

	// closePeer closes the PeerConnection. It is the only handle the
	// supervisor needs on the peer.
	closePeer func() error

	ctx    context.Context
	cancel context.CancelFunc

	events         chan sessionEvent
	dispatcherDone chan struct{}
	channelCounter atomic.Uint64

	// channels is owned by the dispatcher goroutine.
	channels map[uint64]*channelBridge

	// terminate holds at most one pending termination reason. Later
	// signals are dropped; teardownOnce makes the teardown itself run
	// once no matter how it is reached.
	terminate    chan string
	teardownOnce sync.Once
	done         chan struct{}
}

// newSession creates a session. The caller starts its dispatcher.
func newSession(g *Gateway, id, upstreamAddress string, closePeer func() error) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:              id,
		upstreamAddress: upstreamAddress,
		gateway:         g,
		logger:          g.logger.With("session", id, "upstream", upstreamAddress),
		closePeer:       closePeer,
		ctx:             ctx,
		cancel:          cancel,
		events:          make(chan sessionEvent, sessionEventQueueLength),
		dispatcherDone:  make(chan struct{}),
		channels:        make(map[uint64]*channelBridge),
		terminate:       make(chan string, 1),
		done:            make(chan struct{}),
	}
	return s
}

// post hands an event to the dispatcher. It returns false once the
// session is being torn down.
func (s *session) post(event sessionEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// handleDataChannel is the OnDataChannel callback. pion runs it before
// it starts the channel's read loop, so every message handler is in
// place before the first message can arrive.
func (s *session) handleDataChannel(channel *webrtc.DataChannel) {
	key := s.channelCounter.Add(1)
	if !s.post(sessionEvent{kind: eventChannelCreated, channelKey: key, channel: channel}) {
		return
	}
	channel.OnOpen(func() {
		s.post(sessionEvent{kind: eventChannelOpen, channelKey: key})
	})
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		s.post(sessionEvent{kind: eventChannelMessage, channelKey: key, data: message.Data})
	})
	channel.OnClose(func() {
		s.post(sessionEvent{kind: eventChannelClosed, channelKey: key})
	})
}

// handleConnectionState is the OnConnectionStateChange callback.
func (s *session) handleConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Info("peer connection state change", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateFailed:
		s.signalTermination(reasonFailed)
	case webrtc.PeerConnectionStateClosed:
		s.signalTermination(reasonClosed)
	case webrtc.PeerConnectionStateDisconnected:
		if s.gateway.options.TeardownOnDisconnect {
			s.signalTermination(reasonDisconnected)
		} else {
			s.logger.Warn("peer connection disconnected, waiting for ICE to recover or fail")
		}
	}
}

// signalTermination records a termination request. It never blocks:
// if a request is already pending, this one is dropped.
func (s *session) signalTermination(reason string) {
	select {
	case s.terminate <- reason:
	default:
	}
}

// supervise waits for the first termination request and tears the
// session down.
func (s *session) supervise() {
	reason := <-s.terminate
	s.teardown(reason)
}

// teardown stops the dispatcher (which closes every upstream
// connection), closes the peer connection and leaves the registry. It
// runs at most once; later calls wait for the first to finish.
func (s *session) teardown(reason string) {
	s.teardownOnce.Do(func() {
		s.logger.Info("tearing down session", "reason", reason)
		metrics := s.gateway.metrics

		s.cancel()
		<-s.dispatcherDone

		if err := s.closePeer(); err != nil {
			metrics.TeardownErrors.Inc()
			level := slog.LevelError
			if netutil.IsExpectedCloseError(err) {
				level = slog.LevelDebug
			}
			s.logger.Log(context.Background(), level, "closing peer connection failed", "error", err)
		}

		metrics.Teardowns.WithLabelValues(reason).Inc()
		s.gateway.unregister(s)
		close(s.done)
	})
	<-s.done
}

// dispatch applies events in arrival order until the session ends, then
// shuts every remaining bridge down.
func (s *session) dispatch() {
	defer close(s.dispatcherDone)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case event := <-s.events:
			s.apply(event)
		}
	}
}

// shutdown closes every remaining bridge. It runs on the dispatcher
// after the session context ends. Connections announced by events still
// in the queue belong to their bridges, which close them.
func (s *session) shutdown() {
	for key, bridge := range s.channels {
		delete(s.channels, key)
		bridge.close()
	}
}

func (s *session) apply(event sessionEvent) {
	if event.kind == eventChannelCreated {
		s.channels[event.channelKey] = newChannelBridge(s, event.channelKey, event.channel)
		return
	}

	bridge := s.channels[event.channelKey]
	if bridge == nil {
		s.logger.Debug("event for closed channel ignored",
			"event", event.kind.String(),
			"channel_key", event.channelKey,
		)
		return
	}

	switch event.kind {
	case eventChannelOpen:
		bridge.opened()
	case eventChannelMessage:
		bridge.received(event.data)
	case eventUpstreamConnected:
		bridge.connected(event.connection)
	case eventUpstreamFailed:
		bridge.connectFailed(event.err)
	case eventChannelClosed:
		delete(s.channels, event.channelKey)
		bridge.close()
	}
}
