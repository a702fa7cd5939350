// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/requestlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Negotiator answers offers. *gateway.Gateway implements it.
type Negotiator interface {
	Negotiate(ctx context.Context, offer []byte, upstreamAddress string) ([]byte, error)
	Close() error
}

// ServerConfig configures a signaling Server.
type ServerConfig struct {
	// ListenAddress is the TCP address to listen on. Required.
	ListenAddress string

	// UpstreamAddress is passed to every negotiation. Required.
	UpstreamAddress string

	// Negotiator handles offers. Shutdown closes it. Required.
	Negotiator Negotiator

	// AllowOrigin is sent as Access-Control-Allow-Origin. Empty means "*".
	AllowOrigin string

	// MaxOfferBytes bounds the offer body. Zero means 64 KiB.
	MaxOfferBytes int64

	// StaticDirectory, when set, is served under /ui/.
	StaticDirectory string

	// AccessLog wraps the handler in a request logger writing to stdout.
	AccessLog bool

	// Metrics, when set, is served on /metrics.
	Metrics prometheus.Gatherer

	// Logger receives server lifecycle and request failures. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

const defaultMaxOfferBytes = 64 << 10

// Server serves the signaling endpoints.
type Server struct {
	listenAddress   string
	upstreamAddress string
	negotiator      Negotiator
	allowOrigin     string
	maxOfferBytes   int64
	handler         http.Handler
	httpServer      *http.Server
	logger          *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer validates the configuration and builds the handler. It does
// not listen; call Start.
func NewServer(config ServerConfig) (*Server, error) {
	if config.ListenAddress == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if config.UpstreamAddress == "" {
		return nil, fmt.Errorf("upstream address is required")
	}
	if config.Negotiator == nil {
		return nil, fmt.Errorf("negotiator is required")
	}
	if config.MaxOfferBytes < 0 {
		return nil, fmt.Errorf("max offer bytes must not be negative, got %d", config.MaxOfferBytes)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		listenAddress:   config.ListenAddress,
		upstreamAddress: config.UpstreamAddress,
		negotiator:      config.Negotiator,
		allowOrigin:     config.AllowOrigin,
		maxOfferBytes:   config.MaxOfferBytes,
		logger:          logger,
	}
	if server.allowOrigin == "" {
		server.allowOrigin = "*"
	}
	if server.maxOfferBytes == 0 {
		server.maxOfferBytes = defaultMaxOfferBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", server.handleGreeting)
	mux.HandleFunc("POST /sdp", server.handleOffer)
	mux.HandleFunc("OPTIONS /sdp", server.handlePreflight)
	mux.HandleFunc("GET /healthz", server.handleHealth)
	if config.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(config.Metrics, promhttp.HandlerOpts{}))
	}
	if config.StaticDirectory != "" {
		mux.Handle("GET /ui/", http.StripPrefix("/ui/", http.FileServer(http.Dir(config.StaticDirectory))))
	}
	// Without a catch-all the mux answers known paths with the wrong
	// method with 405.
	mux.HandleFunc("/", http.NotFound)

	var handler http.Handler = mux
	if config.AccessLog {
		handler = requestlog.Wrap(handler)
	}
	server.handler = handler
	server.httpServer = &http.Server{
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}
	return server, nil
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listenAddress, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("signaling server started",
		"address", listener.Addr().String(),
		"upstream", s.upstreamAddress,
	)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("signaling server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests, waits for in-flight negotiations
// until ctx ends, and then closes the negotiator, which tears down every
// live session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down signaling server")
	httpErr := s.httpServer.Shutdown(ctx)
	if httpErr != nil {
		httpErr = fmt.Errorf("stopping HTTP server: %w", httpErr)
	}
	closeErr := s.negotiator.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("closing gateway: %w", closeErr)
	}
	return errors.Join(httpErr, closeErr)
}
