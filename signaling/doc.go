// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling is the HTTP front door of the gateway. Browsers
// POST their gathered offer to /sdp and receive the gathered answer in
// the response body; there is no other signaling traffic.
//
// Endpoints:
//
//	GET     /         plain-text greeting
//	POST    /sdp      offer in, answer out (JSON session descriptions)
//	OPTIONS /sdp      CORS preflight
//	GET     /healthz  liveness
//	GET     /metrics  Prometheus metrics, when enabled
//	GET     /ui/...   static browser client, when configured
//
// Everything else is 404.
package signaling
