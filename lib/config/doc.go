// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for dcgate.
//
// A [Config] is built exactly once at startup: [Default] values, then an
// optional YAML file, then command-line flags applied by the binary.
// After [Config.Validate] succeeds the value is handed to the gateway
// and the signaling server by pointer and is never mutated again, so
// nothing reads it under a lock.
//
// The file is named by the --config flag or, failing that, the
// DCGATE_CONFIG environment variable (see [Resolve]). Without either, the
// defaults stand and the binary's flags must supply the upstream
// address. Unknown keys are rejected so that a misspelled setting fails
// loudly instead of being ignored.
//
// Variable expansion is performed on ICE server credentials after
// loading: ${TURN_PASSWORD} and ${VAR:-default} patterns are expanded
// from the environment, so TURN secrets do not have to live in the file.
// No other environment variables override config values.
//
// Durations (timeouts.*) use Go duration syntax ("5s", "250ms"). Zero
// means no deadline, which matches the gateway's behavior when nothing
// is configured.
//
// This package depends on no other dcgate packages.
package config
