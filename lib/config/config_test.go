// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("listen_address = %q, want 127.0.0.1:8080", cfg.ListenAddress)
	}
	if cfg.UpstreamAddress != "" {
		t.Errorf("upstream_address = %q, want empty", cfg.UpstreamAddress)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != DefaultSTUNServer {
		t.Errorf("ice_servers = %+v, want one STUN hint", cfg.ICEServers)
	}
	if cfg.Relay.BufferSize != 1024 {
		t.Errorf("relay.buffer_size = %d, want 1024", cfg.Relay.BufferSize)
	}
	if cfg.Timeouts.Connect != 0 || cfg.Timeouts.Gather != 0 {
		t.Errorf("timeouts should default to zero, got %+v", cfg.Timeouts)
	}
	if !cfg.Signaling.Metrics {
		t.Error("expected signaling.metrics=true by default")
	}
}

func TestDefault_FailsValidationWithoutUpstream(t *testing.T) {
	err := Default().Validate()
	if err == nil {
		t.Fatal("expected validation error without upstream_address")
	}
	if !strings.Contains(err.Error(), "upstream_address is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
upstream_address: 127.0.0.1:5900
include_loopback_candidates: true
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: gateway
    credential: secret
relay:
  buffer_size: 4096
timeouts:
  connect: 5s
  gather: 250ms
signaling:
  allow_origin: https://console.example.com
log:
  level: debug
  format: json
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.UpstreamAddress != "127.0.0.1:5900" {
		t.Errorf("upstream_address = %q", cfg.UpstreamAddress)
	}
	if !cfg.IncludeLoopbackCandidates {
		t.Error("include_loopback_candidates not applied")
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Username != "gateway" {
		t.Errorf("ice_servers should be replaced, got %+v", cfg.ICEServers)
	}
	if cfg.Relay.BufferSize != 4096 {
		t.Errorf("relay.buffer_size = %d, want 4096", cfg.Relay.BufferSize)
	}
	if cfg.Relay.QueueLength != 256 {
		t.Errorf("relay.queue_length = %d, want default 256", cfg.Relay.QueueLength)
	}
	if cfg.Timeouts.Connect != 5*time.Second || cfg.Timeouts.Gather != 250*time.Millisecond {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Signaling.MaxOfferBytes != 64<<10 {
		t.Errorf("signaling.max_offer_bytes = %d, want default", cfg.Signaling.MaxOfferBytes)
	}
	if !cfg.Signaling.Metrics {
		t.Error("signaling.metrics default lost by partial signaling section")
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("upstream_adress: 127.0.0.1:5900\n"))
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.ListenAddress != Default().ListenAddress {
		t.Errorf("empty document should yield defaults, got %+v", cfg)
	}
}

func TestParse_ExpandsCredentials(t *testing.T) {
	t.Setenv("DCGATE_TEST_TURN_SECRET", "hunter2")
	cfg, err := Parse([]byte(`
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: ${DCGATE_TEST_TURN_USER:-gateway}
    credential: ${DCGATE_TEST_TURN_SECRET}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	server := cfg.ICEServers[0]
	if server.Username != "gateway" {
		t.Errorf("username = %q, want default expansion", server.Username)
	}
	if server.Credential != "hunter2" {
		t.Errorf("credential = %q, want environment expansion", server.Credential)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.UpstreamAddress = "127.0.0.1:5900"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"upstream without port", func(c *Config) { c.UpstreamAddress = "localhost" }, "upstream_address"},
		{"upstream without host", func(c *Config) { c.UpstreamAddress = ":5900" }, "host and port are required"},
		{"bad listen", func(c *Config) { c.ListenAddress = "8080" }, "listen_address"},
		{"zero buffer", func(c *Config) { c.Relay.BufferSize = 0 }, "relay.buffer_size"},
		{"zero queue", func(c *Config) { c.Relay.QueueLength = 0 }, "relay.queue_length"},
		{"negative connect", func(c *Config) { c.Timeouts.Connect = -time.Second }, "timeouts.connect"},
		{"ice server without urls", func(c *Config) { c.ICEServers = []ICEServer{{}} }, "ice_servers[0]"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"missing static directory", func(c *Config) {
			c.Signaling.StaticDirectory = filepath.Join(t.TempDir(), "missing")
		}, "signaling.static_directory"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, test.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Relay.BufferSize = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"upstream_address is required", "relay.buffer_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestResolve(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "dcgate.yaml")
	if err := os.WriteFile(path, []byte("upstream_address: 10.0.0.5:5900\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("explicit path", func(t *testing.T) {
		t.Setenv(EnvironmentVariable, "")
		cfg, err := Resolve(path)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if cfg.UpstreamAddress != "10.0.0.5:5900" {
			t.Errorf("upstream_address = %q", cfg.UpstreamAddress)
		}
	})

	t.Run("environment variable", func(t *testing.T) {
		t.Setenv(EnvironmentVariable, path)
		cfg, err := Resolve("")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if cfg.UpstreamAddress != "10.0.0.5:5900" {
			t.Errorf("upstream_address = %q", cfg.UpstreamAddress)
		}
	})

	t.Run("neither", func(t *testing.T) {
		t.Setenv(EnvironmentVariable, "")
		cfg, err := Resolve("")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if cfg.UpstreamAddress != "" {
			t.Errorf("expected defaults, got upstream %q", cfg.UpstreamAddress)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Resolve(filepath.Join(directory, "absent.yaml")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buffer bytes.Buffer
	logger := cfg.Logger(&buffer)
	logger.Info("suppressed")
	logger.Warn("kept", "channel", "vnc")

	output := buffer.String()
	if strings.Contains(output, "suppressed") {
		t.Errorf("info record emitted at warn level: %s", output)
	}
	if !strings.Contains(output, `"msg":"kept"`) || !strings.Contains(output, `"channel":"vnc"`) {
		t.Errorf("expected JSON warn record, got %s", output)
	}
}
