// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"io"
)

// DefaultBufferSize is the upstream read size, and so the largest message
// Pump sends.
const DefaultBufferSize = 1024

// MessageSender delivers one message to the remote peer. *webrtc.DataChannel
// satisfies it.
type MessageSender interface {
	Send(data []byte) error
}

// Pump copies source to sink until source reports EOF or either side
// fails. Each non-empty read of up to bufferSize bytes becomes exactly
// one Send. It returns the number of bytes sent and nil on EOF, or the
// first read or send error.
func Pump(source io.Reader, sink MessageSender, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	buffer := make([]byte, bufferSize)
	var sent int64
	for {
		count, readError := source.Read(buffer)
		if count > 0 {
			// The sink may retain the slice; the buffer is reused.
			message := make([]byte, count)
			copy(message, buffer[:count])
			if err := sink.Send(message); err != nil {
				return sent, &SendError{Err: err}
			}
			sent += int64(count)
		}
		if readError != nil {
			if errors.Is(readError, io.EOF) {
				return sent, nil
			}
			return sent, fmt.Errorf("reading upstream: %w", readError)
		}
	}
}

// SendError reports that Pump stopped because the channel rejected a
// message, as opposed to the upstream failing.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("sending to channel: %v", e.Err) }

func (e *SendError) Unwrap() error { return e.Err }
