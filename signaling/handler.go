// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bureau-foundation/dcgate/gateway"
	"github.com/bureau-foundation/dcgate/lib/netutil"
)

const greeting = "dcgate: POST a WebRTC offer to /sdp\n"

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, greeting)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// handleOffer runs one negotiation. The request context bounds it, so a
// client that gives up aborts the negotiation too.
func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)

	offer, err := netutil.ReadBody(r.Body, s.maxOfferBytes)
	if err != nil {
		if errors.Is(err, netutil.ErrBodyTooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "offer exceeds %d bytes", s.maxOfferBytes)
			return
		}
		s.sendError(w, http.StatusBadRequest, "reading offer: %v", err)
		return
	}

	answer, err := s.negotiator.Negotiate(r.Context(), offer, s.upstreamAddress)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrClosed):
			s.sendError(w, http.StatusServiceUnavailable, "gateway is shutting down")
		case errors.Is(err, gateway.ErrInvalidOffer):
			s.sendError(w, http.StatusBadRequest, "%v", err)
		default:
			s.logger.Error("negotiation failed",
				"remote", r.RemoteAddr,
				"error", err,
			)
			s.sendError(w, http.StatusInternalServerError, "negotiation failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(answer); err != nil {
		s.logger.Warn("writing answer", "remote", r.RemoteAddr, "error", err)
	}
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", s.allowOrigin)
	header.Set("Access-Control-Allow-Headers", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
}

func (s *Server) sendError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: fmt.Sprintf(format, args...)}); err != nil {
		s.logger.Warn("writing JSON error response", "error", err, "status", status)
	}
}
