// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway answers WebRTC offers and bridges every data channel
// the remote peer opens to its own TCP connection to a fixed upstream
// service.
//
// One negotiation produces one session: a pion PeerConnection, a
// dispatcher goroutine that owns the session's channel bridges, and a
// supervisor that tears everything down exactly once when the peer
// connection fails or closes, or when the gateway shuts down.
//
// Each channel gets its own upstream connection, opened as soon as the
// channel is announced. Messages from the channel are queued in arrival
// order and written upstream once the connection exists; bytes read
// from the upstream are sent back on the channel as they arrive. If the
// upstream cannot be reached the channel stays open and unbridged.
//
// pion callbacks never touch bridge state directly. They post events to
// the session's queue, and the dispatcher applies them one at a time:
//
//	OnDataChannel -> created -> connect started
//	OnOpen        -> open    -> pump starts once connected
//	OnMessage     -> message -> writer queue
//	OnClose       -> closed  -> drain writer, close upstream
//
// The gateway keeps a registry of live sessions so that Close can tear
// them all down during shutdown.
package gateway
