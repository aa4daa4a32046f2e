// Command sertcp-client creates a local virtual serial device backed by
// a remote sertcp-bridge.
//
// The device exists as soon as the client starts, even while the bridge
// is unreachable; the TCP connection is re-established with exponential
// backoff whenever it drops. Applications open the device like any
// serial port.
//
// Usage:
//
//	sertcp-client [flags] <host> <tcp-port>
//	sertcp-client -discover [flags]
//
// Flags:
//
//	-d string         Publish the device at this path (e.g. /tmp/ttyV0)
//	-m uint           Device permission bits (default 0660)
//	-log-file string  Write a binary event log to this file
//	-discover         Find a bridge via multicast DNS
//	-v                Verbose logging
//
// Examples:
//
//	# Virtual device for a bridge on the bench server
//	sertcp-client -d /tmp/ttyV0 bench.local 4000
//
//	# Find the bridge automatically
//	sertcp-client -discover -d /tmp/ttyV0
package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sertcp/sertcp-go/pkg/client"
	"github.com/sertcp/sertcp-go/pkg/config"
	"github.com/sertcp/sertcp-go/pkg/discovery"
	sertcplog "github.com/sertcp/sertcp-go/pkg/log"
	"github.com/sertcp/sertcp-go/pkg/vserial"
)

var (
	devicePath = flag.String("d", "", "Publish the device at this path")
	mode       = flag.Uint("m", 0o660, "Device permission bits")
	logFile    = flag.String("log-file", "", "Write a binary event log to this file")
	discover   = flag.Bool("discover", false, "Find a bridge via multicast DNS")
	verbose    = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	setupLogging(*verbose)

	cfg := config.Client{
		DevicePath: *devicePath,
		Discover:   *discover,
		LogFile:    *logFile,
	}
	if flag.NArg() >= 2 {
		cfg.Address = net.JoinHostPort(flag.Arg(0), flag.Arg(1))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Discover {
		addr, err := discoverBridge(ctx)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		cfg.Address = addr
	}

	logger, closeLogger, err := buildLogger(cfg.LogFile, *verbose)
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLogger()

	c := client.New(client.Config{
		Address:    cfg.Address,
		DevicePath: cfg.DevicePath,
		Device:     vserial.Options{Mode: fs.FileMode(*mode)},
		Logger:     logger,
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Wait for the device to exist before reporting it.
	log.Printf("Connecting to %s", cfg.Address)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v, shutting down", sig)
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatalf("Client failed: %v", err)
		}
	}
}

// discoverBridge finds the first advertised bridge on the local network.
func discoverBridge(ctx context.Context) (string, error) {
	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	svc, err := browser.FindFirst(ctx)
	if err != nil {
		return "", err
	}
	log.Printf("Discovered bridge %q at %s (device %s)", svc.InstanceName, svc.Address(), svc.Info.Device)
	return svc.Address(), nil
}

func buildLogger(path string, verbose bool) (sertcplog.Logger, func(), error) {
	var loggers []sertcplog.Logger

	closeLogger := func() {}
	if path != "" {
		fl, err := sertcplog.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeLogger = func() { fl.Close() }
	}
	if verbose {
		slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		loggers = append(loggers, sertcplog.NewSlogAdapter(slogger))
	}

	switch len(loggers) {
	case 0:
		return sertcplog.NoopLogger{}, closeLogger, nil
	case 1:
		return loggers[0], closeLogger, nil
	default:
		return sertcplog.NewMultiLogger(loggers...), closeLogger, nil
	}
}

func setupLogging(verbose bool) {
	if verbose {
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	} else {
		log.SetFlags(log.Ltime)
	}
}
