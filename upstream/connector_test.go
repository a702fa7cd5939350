// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/dcgate/lib/testutil"
)

func TestConnect_Success(t *testing.T) {
	upstream := testutil.ListenUpstream(t)
	connector := &Connector{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	connection, err := connector.Connect(context.Background(), upstream.Address)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer connection.Close()

	server := upstream.Accept(t, 5*time.Second)

	if _, err := connection.Writer().Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	received := make([]byte, 4)
	if _, err := io.ReadFull(server, received); err != nil {
		t.Fatalf("server ReadFull: %v", err)
	}
	if string(received) != "ping" {
		t.Fatalf("server received %q, want ping", received)
	}

	if _, err := server.Write([]byte("pong")); err != nil {
		t.Fatalf("server Write: %v", err)
	}
	if _, err := io.ReadFull(connection.Reader(), received); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(received) != "pong" {
		t.Fatalf("received %q, want pong", received)
	}
}

func TestConnect_Refused(t *testing.T) {
	address := testutil.ClosedAddress(t)
	var logs bytes.Buffer
	connector := &Connector{Logger: slog.New(slog.NewTextHandler(&logs, nil))}

	connection, err := connector.Connect(context.Background(), address)
	if err == nil {
		connection.Close()
		t.Fatal("expected error connecting to closed port")
	}

	var connectError *ConnectError
	if !errors.As(err, &connectError) {
		t.Fatalf("expected *ConnectError, got %T: %v", err, err)
	}
	if connectError.Address != address {
		t.Errorf("ConnectError.Address = %q, want %q", connectError.Address, address)
	}
	if !strings.Contains(logs.String(), address) {
		t.Errorf("failure log does not mention the target address: %s", logs.String())
	}
}

type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConnect_Timeout(t *testing.T) {
	connector := &Connector{
		Dialer:  blockingDialer{},
		Timeout: 10 * time.Millisecond,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err := connector.Connect(context.Background(), "192.0.2.1:5900")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	connector := &Connector{
		Dialer: blockingDialer{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := connector.Connect(ctx, "192.0.2.1:5900")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConn_CloseWrite(t *testing.T) {
	upstream := testutil.ListenUpstream(t)
	connector := &Connector{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	connection, err := connector.Connect(context.Background(), upstream.Address)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer connection.Close()
	server := upstream.Accept(t, 5*time.Second)

	connection.Writer().Write([]byte("last"))
	if err := connection.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	data, err := io.ReadAll(server)
	if err != nil {
		t.Fatalf("server ReadAll: %v", err)
	}
	if string(data) != "last" {
		t.Fatalf("server read %q, want last", data)
	}
}
