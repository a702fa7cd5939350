// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for dcgate packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only place in
// the test suite where real wall-clock timeouts are used.
//
// [ListenUpstream], [EchoUpstream] and [ClosedAddress] stand in for the
// fixed upstream TCP service the gateway bridges to: a listener whose
// accepted connections the test drives directly, an echo service, and
// an address that refuses connections.
//
// [UniqueID] generates monotonically increasing identifiers for payloads
// that must be distinguishable across concurrent sessions.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dcgate-internal dependencies.
package testutil
