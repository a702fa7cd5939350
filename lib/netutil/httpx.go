// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network and HTTP I/O utilities for dcgate.
//
// [ReadBody] bounds request body reads so a misbehaving client cannot make
// the signaling endpoint buffer an unbounded offer. [IsExpectedCloseError]
// classifies errors that occur during normal relay teardown.
package netutil

import (
	"errors"
	"fmt"
	"io"
)

// ErrBodyTooLarge is returned by ReadBody when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadBody reads body up to limit bytes. A body longer than limit is an
// error rather than a silent truncation: a truncated session description
// would fail later with a far less useful message.
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid body limit %d", limit)
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return data, nil
}
