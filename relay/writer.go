// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/dcgate/lib/netutil"
)

// DefaultQueueLength bounds the writer queue when the caller does not.
const DefaultQueueLength = 256

// Writer owns the upstream write half for one channel. Create it with
// NewWriter, feed it with Enqueue from a single producer goroutine, give
// it a destination with Attach, and end it with Finish (drain, then
// exit) or Stop (exit now).
type Writer struct {
	queue    chan []byte
	attached chan io.Writer
	stop     chan struct{}
	done     chan struct{}

	attachOnce sync.Once
	finishOnce sync.Once
	stopOnce   sync.Once

	logger *slog.Logger

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewWriter starts a writer goroutine with room for queueLength pending
// messages. A nil logger uses slog.Default().
func NewWriter(queueLength int, logger *slog.Logger) *Writer {
	if queueLength <= 0 {
		queueLength = DefaultQueueLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		queue:    make(chan []byte, queueLength),
		attached: make(chan io.Writer, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go w.run()
	return w
}

// Enqueue appends message to the queue, blocking while the queue is
// full. It returns false, dropping the message, if the writer was
// stopped or ctx ended first. Enqueue must not be called concurrently
// with itself or after Finish.
func (w *Writer) Enqueue(ctx context.Context, message []byte) bool {
	select {
	case <-w.stop:
		w.dropped.Add(1)
		return false
	default:
	}
	select {
	case w.queue <- message:
		return true
	case <-w.stop:
	case <-ctx.Done():
	}
	w.dropped.Add(1)
	return false
}

// Attach supplies the destination. Only the first call has any effect.
// A nil destination discards every queued and future message.
func (w *Writer) Attach(destination io.Writer) {
	w.attachOnce.Do(func() {
		w.attached <- destination
	})
}

// Finish closes the queue. The writer writes (or, when attached to nil,
// discards) what is already queued and then exits. The returned channel
// is closed when it has. A writer that was never attached stays parked
// until Attach or Stop.
func (w *Writer) Finish() <-chan struct{} {
	w.finishOnce.Do(func() {
		close(w.queue)
	})
	return w.done
}

// Stop makes the writer exit without draining and waits for it. Queued
// messages are counted as dropped.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

// Done is closed when the writer goroutine has exited.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Written returns the number of bytes written to the destination.
func (w *Writer) Written() int64 { return w.written.Load() }

// Dropped returns the number of messages discarded: rejected by Enqueue
// after Stop, left in the queue at Stop, or consumed with no destination.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Failed returns the number of messages whose write returned an error.
func (w *Writer) Failed() int64 { return w.failed.Load() }

func (w *Writer) run() {
	defer close(w.done)

	var destination io.Writer
	select {
	case destination = <-w.attached:
	case <-w.stop:
		w.dropped.Add(int64(len(w.queue)))
		return
	}

	for {
		select {
		case message, ok := <-w.queue:
			if !ok {
				return
			}
			w.deliver(destination, message)
		case <-w.stop:
			w.dropped.Add(int64(len(w.queue)))
			return
		}
	}
}

// deliver writes one message. A failure drops only that message.
func (w *Writer) deliver(destination io.Writer, message []byte) {
	if destination == nil {
		w.dropped.Add(1)
		return
	}
	written, err := destination.Write(message)
	w.written.Add(int64(written))
	if err == nil {
		return
	}

	// Only the first failure is worth a warning: once the upstream is gone
	// every later write fails the same way.
	if w.failed.Add(1) == 1 && !netutil.IsExpectedCloseError(err) {
		w.logger.Warn("write to upstream failed, dropping message",
			"bytes", len(message),
			"error", err,
		)
	} else {
		w.logger.Debug("write to upstream failed, dropping message",
			"bytes", len(message),
			"error", err,
		)
	}
}
