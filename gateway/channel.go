// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jpillora/sizestr"

	"github.com/bureau-foundation/dcgate/lib/netutil"
	"github.com/bureau-foundation/dcgate/relay"
	"github.com/bureau-foundation/dcgate/upstream"
)

// upstreamState tracks a bridge's upstream connection.
type upstreamState int

const (
	upstreamConnecting upstreamState = iota
	upstreamConnected
	// upstreamUnavailable: the connect failed. The channel stays open
	// and its messages are discarded.
	upstreamUnavailable
)

// channelBridge pairs one data channel with one upstream connection.
// The dispatcher owns everything except the handoff fields under mu,
// which the connector goroutine also touches.
type channelBridge struct {
	session *session
	key     uint64
	channel dataChannel
	logger  *slog.Logger

	writer        *relay.Writer
	cancelConnect context.CancelFunc

	// Handoff between the connector goroutine and close. Whichever runs
	// first decides who closes the connection.
	mu         sync.Mutex
	connection *upstream.Conn
	closed     bool

	state          upstreamState
	pumpConnection *upstream.Conn
	open           bool
	pumping        bool
}

// newChannelBridge creates the bridge for an announced channel and
// starts its single upstream connect.
func newChannelBridge(s *session, key uint64, channel dataChannel) *channelBridge {
	logger := s.logger.With("channel", channel.Label(), "channel_key", key)
	connectContext, cancelConnect := context.WithCancel(s.ctx)
	b := &channelBridge{
		session:       s,
		key:           key,
		channel:       channel,
		logger:        logger,
		writer:        relay.NewWriter(s.gateway.options.RelayQueueLength, logger),
		cancelConnect: cancelConnect,
		state:         upstreamConnecting,
	}

	metrics := s.gateway.metrics
	metrics.ChannelsTotal.Inc()
	metrics.ChannelsActive.Inc()
	logger.Debug("data channel announced, connecting to upstream")

	go b.connect(connectContext)
	return b
}

// connect runs on its own goroutine. It attaches the writer itself
// rather than through the dispatcher: the dispatcher may be blocked on
// a full writer queue that only an attached writer will drain.
func (b *channelBridge) connect(ctx context.Context) {
	defer b.cancelConnect()
	s := b.session

	connection, err := s.gateway.connector.Connect(ctx, s.upstreamAddress)
	if err != nil {
		b.writer.Attach(nil)
		s.post(sessionEvent{kind: eventUpstreamFailed, channelKey: b.key, err: err})
		return
	}
	if !b.adopt(connection) {
		connection.Close()
		return
	}
	s.post(sessionEvent{kind: eventUpstreamConnected, channelKey: b.key, connection: connection})
}

// adopt hands connection to the bridge and attaches it to the writer.
// It returns false once the bridge has closed; the caller then owns the
// connection.
func (b *channelBridge) adopt(connection *upstream.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.connection = connection
	b.writer.Attach(connection.Writer())
	return true
}

// opened handles the channel's open signal. Repeats are ignored.
func (b *channelBridge) opened() {
	if b.open {
		b.logger.Debug("repeated open signal ignored")
		return
	}
	b.open = true
	b.logger.Info("data channel open")
	b.startPump()
}

// received queues one message for the upstream, in arrival order. Before
// the connection exists the message waits in the queue; on a bridge
// whose connect failed the writer discards it.
func (b *channelBridge) received(data []byte) {
	b.logger.Debug("channel message", "bytes", len(data))
	if !b.writer.Enqueue(b.session.ctx, data) {
		b.logger.Debug("message dropped, session ending", "bytes", len(data))
	}
}

// connected records the attached upstream connection and starts the
// pump if the channel is already open.
func (b *channelBridge) connected(connection *upstream.Conn) {
	b.state = upstreamConnected
	b.pumpConnection = connection
	b.logger.Info("connected to upstream", "remote", connection.RemoteAddr().String())
	b.startPump()
}

// connectFailed leaves the channel open but unbridged.
func (b *channelBridge) connectFailed(err error) {
	b.state = upstreamUnavailable
	b.session.gateway.metrics.UpstreamConnectFailures.Inc()

	var connectError *upstream.ConnectError
	if errors.As(err, &connectError) {
		err = connectError.Err
	}
	b.logger.Warn("upstream unavailable, channel stays open without a bridge", "error", err)
}

// startPump starts the upstream-to-channel relay once the channel is
// open and the upstream is connected, whichever happens last.
func (b *channelBridge) startPump() {
	if !b.open || b.pumpConnection == nil || b.pumping {
		return
	}
	b.pumping = true
	go b.pump(b.pumpConnection)
}

func (b *channelBridge) pump(connection *upstream.Conn) {
	metrics := b.session.gateway.metrics
	sent, err := relay.Pump(connection.Reader(), b.channel, b.session.gateway.options.RelayBufferSize)
	metrics.RelayBytes.WithLabelValues(directionToChannel).Add(float64(sent))

	switch {
	case err == nil:
		b.logger.Info("upstream closed, relay to channel finished",
			"sent", sizestr.ToString(sent),
		)
	case netutil.IsExpectedCloseError(err):
		b.logger.Debug("relay to channel finished",
			"sent", sizestr.ToString(sent),
			"error", err,
		)
	default:
		metrics.RelayErrors.WithLabelValues(directionToChannel).Inc()
		b.logger.Warn("relay to channel failed",
			"sent", sizestr.ToString(sent),
			"error", err,
		)
	}
}

// close ends the bridge after its channel closed or its session ended.
// The writer drains what is already queued, then the upstream
// connection is half-closed and closed, which also ends the pump. If
// the session is ending the drain is cut short. A connect still in
// flight is cancelled, and its queued messages are discarded.
func (b *channelBridge) close() {
	b.cancelConnect()

	b.mu.Lock()
	b.closed = true
	connection := b.connection
	if connection == nil {
		b.writer.Attach(nil)
	}
	b.mu.Unlock()

	finished := b.writer.Finish()
	s := b.session
	go func() {
		select {
		case <-finished:
		case <-s.ctx.Done():
		}
		if connection != nil {
			b.closeUpstream(connection)
		}
		b.writer.Stop()
		b.report()
	}()
}

// closeUpstream signals EOF to the upstream and then releases the
// connection.
func (b *channelBridge) closeUpstream(connection *upstream.Conn) {
	if err := connection.CloseWrite(); err != nil && !netutil.IsExpectedCloseError(err) {
		b.logger.Debug("half-closing upstream connection failed", "error", err)
	}
	if err := connection.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
		b.logger.Warn("closing upstream connection failed", "error", err)
	}
}

// report records the writer's totals once it has exited.
func (b *channelBridge) report() {
	metrics := b.session.gateway.metrics
	written := b.writer.Written()
	metrics.ChannelsActive.Dec()
	metrics.RelayBytes.WithLabelValues(directionToUpstream).Add(float64(written))
	if failed := b.writer.Failed(); failed > 0 {
		metrics.RelayErrors.WithLabelValues(directionToUpstream).Add(float64(failed))
	}
	if dropped := b.writer.Dropped(); dropped > 0 {
		metrics.DroppedMessages.Add(float64(dropped))
	}
	b.logger.Info("data channel closed",
		"received", sizestr.ToString(written),
		"dropped_messages", b.writer.Dropped(),
	)
}
