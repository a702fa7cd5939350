// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dcgate answers WebRTC offers over HTTP and bridges every data channel
// a browser opens to its own TCP connection to one fixed upstream
// service, typically a VNC server.
//
// Configuration comes from defaults, then an optional YAML file
// (--config or DCGATE_CONFIG), then flags. SIGINT or SIGTERM stops the
// signaling server and tears down every live session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dcgate/gateway"
	"github.com/bureau-foundation/dcgate/lib/config"
	"github.com/bureau-foundation/dcgate/lib/process"
	"github.com/bureau-foundation/dcgate/lib/version"
	"github.com/bureau-foundation/dcgate/signaling"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// flags holds the command line. Only flags the user actually set
// override the configuration file.
type flags struct {
	configPath      string
	listen          string
	upstream        string
	iceServers      []string
	includeLoopback bool
	verbose         bool
	help            bool
	version         bool
}

func newFlagSet(values *flags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("dcgate", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&values.configPath, "config", "", "YAML configuration file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&values.listen, "listen", "l", "", "signaling HTTP listen address (default: 127.0.0.1:8080)")
	flagSet.StringVarP(&values.upstream, "upstream", "u", "", "upstream TCP service address, host:port")
	flagSet.StringArrayVar(&values.iceServers, "ice-server", nil, "ICE server URL; repeat for several, replaces the configured list")
	flagSet.BoolVar(&values.includeLoopback, "include-loopback", false, "gather loopback host candidates")
	flagSet.BoolVarP(&values.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVarP(&values.help, "help", "h", false, "show help")
	flagSet.BoolVar(&values.version, "version", false, "print version information (with -v, also the Go toolchain and platform)")
	return flagSet
}

func run(args []string) error {
	var values flags
	flagSet := newFlagSet(&values)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(os.Stdout, flagSet)
			return nil
		}
		return fmt.Errorf("%w (see --help)", err)
	}
	if values.help {
		printHelp(os.Stdout, flagSet)
		return nil
	}
	if values.version {
		if values.verbose {
			fmt.Printf("dcgate %s\n", version.Full())
			return nil
		}
		version.Print("dcgate")
		return nil
	}
	if remaining := flagSet.Args(); len(remaining) > 0 {
		return fmt.Errorf("unexpected argument: %s", remaining[0])
	}

	cfg, err := loadConfig(flagSet, &values)
	if err != nil {
		return err
	}

	logger := cfg.Logger(os.Stderr)
	logger.Info("dcgate starting",
		"version", version.Info(),
		"listen", cfg.ListenAddress,
		"upstream", cfg.UpstreamAddress,
	)

	var (
		registry *prometheus.Registry
		metrics  *gateway.Metrics
	)
	if cfg.Signaling.Metrics {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = gateway.NewMetrics(registry)
	} else {
		metrics = gateway.NewMetrics(nil)
	}

	gw, err := gateway.New(gateway.OptionsFromConfig(cfg, metrics, logger))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	serverConfig := signaling.ServerConfig{
		ListenAddress:   cfg.ListenAddress,
		UpstreamAddress: cfg.UpstreamAddress,
		Negotiator:      gw,
		AllowOrigin:     cfg.Signaling.AllowOrigin,
		MaxOfferBytes:   cfg.Signaling.MaxOfferBytes,
		StaticDirectory: cfg.Signaling.StaticDirectory,
		AccessLog:       cfg.Signaling.AccessLog,
		Logger:          logger,
	}
	if registry != nil {
		serverConfig.Metrics = registry
	}
	server, err := signaling.NewServer(serverConfig)
	if err != nil {
		gw.Close()
		return fmt.Errorf("creating signaling server: %w", err)
	}
	if err := server.Start(); err != nil {
		gw.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	logger.Info("shutdown signal received", "sessions", gw.SessionCount())
	shutdownContext := context.Background()
	if cfg.Timeouts.Shutdown > 0 {
		var cancel context.CancelFunc
		shutdownContext, cancel = context.WithTimeout(shutdownContext, cfg.Timeouts.Shutdown)
		defer cancel()
	}
	if err := server.Shutdown(shutdownContext); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("dcgate stopped")
	return nil
}

// loadConfig resolves the configuration file, overlays the flags that
// were set and validates the result.
func loadConfig(flagSet *pflag.FlagSet, values *flags) (*config.Config, error) {
	cfg, err := config.Resolve(values.configPath)
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("listen") {
		cfg.ListenAddress = values.listen
	}
	if flagSet.Changed("upstream") {
		cfg.UpstreamAddress = values.upstream
	}
	if flagSet.Changed("ice-server") {
		cfg.ICEServers = make([]config.ICEServer, 0, len(values.iceServers))
		for _, url := range values.iceServers {
			cfg.ICEServers = append(cfg.ICEServers, config.ICEServer{URLs: []string{url}})
		}
	}
	if flagSet.Changed("include-loopback") {
		cfg.IncludeLoopbackCandidates = values.includeLoopback
	}
	if values.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `dcgate - WebRTC data channel to TCP gateway

USAGE
    dcgate --upstream <host:port> [flags]

Browsers POST their WebRTC offer to http://<listen>/sdp and receive the
answer in the response. Every data channel they open is relayed to its
own TCP connection to the upstream.

FLAGS
%s
EXAMPLES
    # Expose a local VNC server to browsers on this machine
    dcgate --upstream 127.0.0.1:5900 --include-loopback

    # Use a configuration file with TURN credentials
    dcgate --config /etc/dcgate/dcgate.yaml
`, flagSet.FlagUsages())
}
