// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/dcgate/lib/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lockedBuffer is a bytes.Buffer safe to read while the writer goroutine
// appends to it.
type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func TestWriter_QueuedBeforeAttachAreWrittenInOrder(t *testing.T) {
	writer := NewWriter(16, quietLogger())
	var expected bytes.Buffer
	for index := 0; index < 10; index++ {
		message := []byte(fmt.Sprintf("<%d>", index))
		expected.Write(message)
		if !writer.Enqueue(context.Background(), message) {
			t.Fatalf("Enqueue %d rejected", index)
		}
	}

	destination := &lockedBuffer{}
	writer.Attach(destination)
	writer.Enqueue(context.Background(), []byte("<after>"))
	expected.WriteString("<after>")

	testutil.RequireClosed(t, writer.Finish(), 5*time.Second, "writer drain")

	if destination.String() != expected.String() {
		t.Fatalf("destination = %q, want %q", destination.String(), expected.String())
	}
	if writer.Written() != int64(expected.Len()) {
		t.Errorf("Written() = %d, want %d", writer.Written(), expected.Len())
	}
}

func TestWriter_AttachOnlyOnce(t *testing.T) {
	writer := NewWriter(4, quietLogger())
	first := &lockedBuffer{}
	second := &lockedBuffer{}
	writer.Attach(first)
	writer.Attach(second)
	writer.Enqueue(context.Background(), []byte("data"))
	testutil.RequireClosed(t, writer.Finish(), 5*time.Second, "writer drain")

	if first.String() != "data" || second.String() != "" {
		t.Fatalf("first=%q second=%q, want only the first attachment used", first.String(), second.String())
	}
}

func TestWriter_NilDestinationDiscards(t *testing.T) {
	writer := NewWriter(2, quietLogger())
	writer.Attach(nil)

	// More messages than the queue holds: a discarding writer must keep
	// consuming so the producer never blocks.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for index := 0; index < 50; index++ {
			writer.Enqueue(context.Background(), []byte("lost"))
		}
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "enqueue against a discarding writer")
	testutil.RequireClosed(t, writer.Finish(), 5*time.Second, "writer drain")

	if writer.Dropped() != 50 {
		t.Errorf("Dropped() = %d, want 50", writer.Dropped())
	}
	if writer.Written() != 0 {
		t.Errorf("Written() = %d, want 0", writer.Written())
	}
}

// failingWriter fails the writes whose index is in failAt.
type failingWriter struct {
	lockedBuffer
	calls  int
	failAt map[int]bool
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.failAt[w.calls] {
		return 0, errors.New("simulated write failure")
	}
	return w.lockedBuffer.Write(p)
}

func TestWriter_WriteFailureDropsOnlyThatMessage(t *testing.T) {
	writer := NewWriter(8, quietLogger())
	destination := &failingWriter{failAt: map[int]bool{2: true}}
	writer.Attach(destination)

	writer.Enqueue(context.Background(), []byte("one,"))
	writer.Enqueue(context.Background(), []byte("two,"))
	writer.Enqueue(context.Background(), []byte("three"))
	testutil.RequireClosed(t, writer.Finish(), 5*time.Second, "writer drain")

	if destination.String() != "one,three" {
		t.Fatalf("destination = %q, want the failed message skipped", destination.String())
	}
	if writer.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", writer.Failed())
	}
}

func TestWriter_StopBeforeAttach(t *testing.T) {
	writer := NewWriter(8, quietLogger())
	writer.Enqueue(context.Background(), []byte("a"))
	writer.Enqueue(context.Background(), []byte("b"))
	writer.Stop()

	if writer.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2 queued messages", writer.Dropped())
	}
	if writer.Enqueue(context.Background(), []byte("c")) {
		t.Error("Enqueue accepted a message after Stop")
	}
	if writer.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", writer.Dropped())
	}
	testutil.RequireClosed(t, writer.Done(), time.Second, "done after stop")
}

// blockingWriter blocks every Write until released.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	select {
	case w.entered <- struct{}{}:
	default:
	}
	<-w.release
	return len(p), nil
}

func TestWriter_EnqueueUnblocksOnStop(t *testing.T) {
	writer := NewWriter(1, quietLogger())
	destination := &blockingWriter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	writer.Attach(destination)

	writer.Enqueue(context.Background(), []byte("in flight"))
	testutil.RequireReceive(t, destination.entered, 5*time.Second, "first write started")
	writer.Enqueue(context.Background(), []byte("queued"))

	rejected := make(chan bool, 1)
	go func() { rejected <- !writer.Enqueue(context.Background(), []byte("blocked")) }()

	stopped := make(chan struct{})
	go func() {
		writer.Stop()
		close(stopped)
	}()
	close(destination.release)

	if !testutil.RequireReceive(t, rejected, 5*time.Second, "blocked enqueue released by Stop") {
		// The third message can legitimately win the race into the slot
		// freed when the in-flight write returned; Stop still drops it.
		t.Log("blocked message was queued before Stop took effect")
	}
	testutil.RequireClosed(t, stopped, 5*time.Second, "Stop returns")
}

func TestWriter_EnqueueHonorsContext(t *testing.T) {
	writer := NewWriter(1, quietLogger())
	defer writer.Stop()

	// Never attached: the first message fills the queue, the second
	// can only leave through the context.
	writer.Enqueue(context.Background(), []byte("held"))
	ctx, cancel := context.WithCancel(context.Background())
	rejected := make(chan bool, 1)
	go func() { rejected <- !writer.Enqueue(ctx, []byte("abandoned")) }()
	cancel()

	if !testutil.RequireReceive(t, rejected, 5*time.Second, "enqueue released by context") {
		t.Fatal("Enqueue reported success after its context ended")
	}
	if writer.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", writer.Dropped())
	}
}
