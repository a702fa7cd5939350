// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay moves bytes between a message-oriented data channel and
// a stream-oriented upstream connection. The two directions are
// independent:
//
// [Pump] reads the upstream in fixed-size chunks and sends every
// non-empty read as one message. Chunk boundaries are whatever the OS
// delivered; only byte order is preserved. Pump returns on EOF (nil
// error) or on the first read or send failure, and never closes either
// side itself.
//
// [Writer] is the channel-to-upstream direction. It is a small actor: one
// goroutine exclusively owns the upstream write half and drains a FIFO
// queue of inbound messages into it, so write order is queue order and
// no caller ever holds a lock around the connection. The writer exists
// before the upstream does: messages enqueued while the connect is still
// in flight are held and written first once [Writer.Attach] supplies the
// destination. Attaching nil turns the writer into a sink that discards,
// which is how a channel whose upstream could not be reached stays open
// without ever blocking its producer.
//
// A failed write is logged and that message is dropped; later messages
// are still attempted. There is no retry and no signal back to the
// sender beyond the transport's own flow control, which the bounded
// queue feeds into: when it is full, [Writer.Enqueue] blocks.
package relay
