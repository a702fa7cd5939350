// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. [Fatal] is the one
// place raw output to stderr is allowed: it runs when run() fails,
// possibly before the structured logger exists.
package process
