// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

// Dialer opens network connections. *net.Dialer satisfies it; tests
// substitute wrappers that observe or fail dials.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnectError reports that the upstream could not be reached.
type ConnectError struct {
	// Address is the upstream address that was dialed.
	Address string

	// Err is the underlying dial error.
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to upstream %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Connector opens upstream TCP connections.
type Connector struct {
	// Dialer performs the connect. Nil uses a zero net.Dialer.
	Dialer Dialer

	// Timeout bounds each connect attempt. Zero means no standalone
	// timeout: only the context deadline and the OS apply.
	Timeout time.Duration

	// Logger receives connect failures. Nil uses slog.Default().
	Logger *slog.Logger
}

func (c *Connector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Connect makes one TCP connect attempt to address.
func (c *Connector) Connect(ctx context.Context, address string) (*Conn, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	connection, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.logger().Error("failed to connect to upstream",
			"address", address,
			"error", err,
		)
		return nil, &ConnectError{Address: address, Err: err}
	}
	return &Conn{connection: connection}, nil
}

// Conn is an established upstream connection.
type Conn struct {
	connection net.Conn
}

// Reader returns the read half.
func (c *Conn) Reader() io.Reader { return c.connection }

// Writer returns the write half.
func (c *Conn) Writer() io.Writer { return c.connection }

// RemoteAddr returns the upstream address actually connected to.
func (c *Conn) RemoteAddr() net.Addr { return c.connection.RemoteAddr() }

// CloseWrite half-closes the connection when the transport supports it,
// signalling EOF to the upstream while leaving the read half open.
func (c *Conn) CloseWrite() error {
	if closer, ok := c.connection.(interface{ CloseWrite() error }); ok {
		return closer.CloseWrite()
	}
	return nil
}

// Close closes both halves.
func (c *Conn) Close() error {
	return c.connection.Close()
}
