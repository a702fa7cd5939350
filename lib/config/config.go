// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is not given.
const EnvironmentVariable = "DCGATE_CONFIG"

// DefaultSTUNServer is the public rendezvous hint offered to peers when
// no ICE servers are configured.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// Config is the complete dcgate configuration.
type Config struct {
	// ListenAddress is the TCP address the signaling endpoint binds to.
	ListenAddress string `yaml:"listen_address"`

	// UpstreamAddress is the fixed TCP service every data channel is
	// bridged to, in "host:port" form.
	UpstreamAddress string `yaml:"upstream_address"`

	// ICEServers are the STUN/TURN servers used during candidate
	// gathering. Order matters: pion tries them in sequence.
	ICEServers []ICEServer `yaml:"ice_servers"`

	// IncludeLoopbackCandidates adds 127.0.0.1 host candidates to the
	// answer. Needed when the browser and gateway share a machine and
	// in tests; leave off in production.
	IncludeLoopbackCandidates bool `yaml:"include_loopback_candidates"`

	// TeardownOnDisconnect also tears sessions down when the connection
	// state reaches "disconnected". By default only "failed" and
	// "closed" do, since ICE can recover from a disconnect.
	TeardownOnDisconnect bool `yaml:"teardown_on_disconnect"`

	// Relay tunes the byte relay between channels and the upstream.
	Relay RelayConfig `yaml:"relay"`

	// Timeouts are opt-in deadlines. Zero disables each one.
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Signaling configures the HTTP front door.
	Signaling SignalingConfig `yaml:"signaling"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`
}

// ICEServer is one STUN or TURN server entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// RelayConfig tunes the per-channel byte relay.
type RelayConfig struct {
	// BufferSize is the upstream read buffer; each non-empty read
	// becomes one data channel message. Default: 1024.
	BufferSize int `yaml:"buffer_size"`

	// QueueLength bounds the number of inbound messages waiting for the
	// upstream writer. Default: 256.
	QueueLength int `yaml:"queue_length"`
}

// TimeoutConfig holds the optional deadlines.
type TimeoutConfig struct {
	// Connect bounds the upstream TCP connect. Zero uses OS defaults.
	Connect time.Duration `yaml:"connect"`

	// Gather bounds ICE candidate gathering during negotiation. The
	// signaling request context bounds it regardless.
	Gather time.Duration `yaml:"gather"`

	// Shutdown bounds graceful shutdown of the signaling server.
	// Default: 10s.
	Shutdown time.Duration `yaml:"shutdown"`
}

// SignalingConfig configures the HTTP front door.
type SignalingConfig struct {
	// AllowOrigin is the Access-Control-Allow-Origin value. Default: "*".
	AllowOrigin string `yaml:"allow_origin"`

	// MaxOfferBytes bounds the offer request body. Default: 64 KiB.
	MaxOfferBytes int64 `yaml:"max_offer_bytes"`

	// StaticDirectory, when set, is served under /ui/ so the browser
	// client can be loaded from the gateway itself.
	StaticDirectory string `yaml:"static_directory"`

	// AccessLog enables per-request access logging on stdout.
	AccessLog bool `yaml:"access_log"`

	// Metrics exposes Prometheus metrics at /metrics. Default: true.
	Metrics bool `yaml:"metrics"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// Default returns the configuration used before any file or flag is
// applied. UpstreamAddress is deliberately empty: there is no sensible
// default target and Validate rejects a missing one.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8080",
		ICEServers: []ICEServer{
			{URLs: []string{DefaultSTUNServer}},
		},
		Relay: RelayConfig{
			BufferSize:  1024,
			QueueLength: 256,
		},
		Timeouts: TimeoutConfig{
			Shutdown: 10 * time.Second,
		},
		Signaling: SignalingConfig{
			AllowOrigin:   "*",
			MaxOfferBytes: 64 << 10,
			Metrics:       true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve loads the file named by path, or by DCGATE_CONFIG when path is
// empty. With neither set it returns Default().
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a YAML file on top of Default().
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML configuration on top of Default(). Keys that do not
// correspond to a Config field are an error.
func Parse(data []byte) (*Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.expandVariables()
	return config, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in ICE credentials.
func (c *Config) expandVariables() {
	for index := range c.ICEServers {
		c.ICEServers[index].Username = expandVars(c.ICEServers[index].Username)
		c.ICEServers[index].Credential = expandVars(c.ICEServers[index].Credential)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("listen_address is required"))
	} else if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("listen_address %q: %w", c.ListenAddress, err))
	}

	if c.UpstreamAddress == "" {
		errs = append(errs, fmt.Errorf("upstream_address is required"))
	} else if host, port, err := net.SplitHostPort(c.UpstreamAddress); err != nil {
		errs = append(errs, fmt.Errorf("upstream_address %q: %w", c.UpstreamAddress, err))
	} else if host == "" || port == "" {
		errs = append(errs, fmt.Errorf("upstream_address %q: host and port are required", c.UpstreamAddress))
	}

	for index, server := range c.ICEServers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice_servers[%d]: at least one url is required", index))
		}
	}

	if c.Relay.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.buffer_size must be positive, got %d", c.Relay.BufferSize))
	}
	if c.Relay.QueueLength <= 0 {
		errs = append(errs, fmt.Errorf("relay.queue_length must be positive, got %d", c.Relay.QueueLength))
	}

	if c.Timeouts.Connect < 0 {
		errs = append(errs, fmt.Errorf("timeouts.connect must not be negative"))
	}
	if c.Timeouts.Gather < 0 {
		errs = append(errs, fmt.Errorf("timeouts.gather must not be negative"))
	}
	if c.Timeouts.Shutdown < 0 {
		errs = append(errs, fmt.Errorf("timeouts.shutdown must not be negative"))
	}

	if c.Signaling.MaxOfferBytes <= 0 {
		errs = append(errs, fmt.Errorf("signaling.max_offer_bytes must be positive, got %d", c.Signaling.MaxOfferBytes))
	}
	if c.Signaling.StaticDirectory != "" {
		if info, err := os.Stat(c.Signaling.StaticDirectory); err != nil {
			errs = append(errs, fmt.Errorf("signaling.static_directory: %w", err))
		} else if !info.IsDir() {
			errs = append(errs, fmt.Errorf("signaling.static_directory %s is not a directory", c.Signaling.StaticDirectory))
		}
	}

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be one of: [text json], got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Logger builds the process logger described by c.Log, writing to w.
// Call after Validate; an invalid level falls back to Info.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Log.level()
	if err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level must be one of: [debug info warn error], got %q", l.Level)
	}
	return level, nil
}
