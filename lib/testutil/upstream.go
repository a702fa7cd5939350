// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"io"
	"net"
	"testing"
	"time"
)

// Upstream is a TCP listener on loopback that hands each accepted
// connection to the test. Connections and the listener are closed when
// the test completes.
type Upstream struct {
	// Address is the "127.0.0.1:port" the listener is bound to.
	Address string

	connections chan net.Conn
}

// ListenUpstream starts an Upstream on an ephemeral loopback port.
func ListenUpstream(t *testing.T) *Upstream {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUpstream: listen: %v", err)
	}

	upstream := &Upstream{
		Address:     listener.Addr().String(),
		connections: make(chan net.Conn, 16),
	}
	var accepted []net.Conn
	stop := make(chan struct{})
	done := make(chan struct{})
	t.Cleanup(func() {
		close(stop)
		listener.Close()
		<-done
		for _, connection := range accepted {
			connection.Close()
		}
	})

	go func() {
		defer close(done)
		for {
			connection, acceptError := listener.Accept()
			if acceptError != nil {
				return
			}
			accepted = append(accepted, connection)
			select {
			case upstream.connections <- connection:
			case <-stop:
				return
			}
		}
	}()
	return upstream
}

// Accept returns the next connection the gateway opened, failing the
// test if none arrives within timeout.
func (u *Upstream) Accept(t *testing.T, timeout time.Duration) net.Conn {
	t.Helper()
	return RequireReceive(t, u.connections, timeout, "waiting for upstream connection on %s", u.Address)
}

// Connections exposes accepted connections for tests that need to
// select on them.
func (u *Upstream) Connections() <-chan net.Conn {
	return u.connections
}

// EchoUpstream starts a loopback TCP service that echoes every byte
// back on the same connection, and returns its address.
func EchoUpstream(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("EchoUpstream: listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			connection, acceptError := listener.Accept()
			if acceptError != nil {
				return
			}
			go func() {
				defer connection.Close()
				io.Copy(connection, connection)
			}()
		}
	}()
	return listener.Addr().String()
}

// ClosedAddress returns a loopback address with nothing listening on it.
// The port was bound and released, so connecting to it is refused.
func ClosedAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ClosedAddress: listen: %v", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("ClosedAddress: close: %v", err)
	}
	return address
}
