// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package upstream opens the TCP connection a data channel is bridged to.
//
// [Connector.Connect] makes a single attempt against the configured
// address: no retry, and no deadline beyond the caller's context and the
// optional [Connector].Timeout (zero leaves the OS connect timeout in
// charge). A failed attempt returns a [*ConnectError] carrying the target
// address and is logged; the caller abandons bridging for that channel
// without affecting the rest of the session.
//
// A successful attempt returns a [*Conn] whose [Conn.Reader] and
// [Conn.Writer] views are handed to different owners: the read side to
// the upstream-to-channel pump, the write side to the channel's writer.
// Closing the Conn ends both.
package upstream
