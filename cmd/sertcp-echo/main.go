// Command sertcp-echo creates a virtual serial device that echoes every
// byte written to it. It is a loopback test double for serial
// applications: no hardware, no network.
//
// Usage:
//
//	sertcp-echo [flags] <device-path>
//
// Flags:
//
//	-b int            Reported baud rate (default 9600)
//	-m uint           Device permission bits (default 0660)
//	-log-file string  Write a binary event log to this file
//	-v                Verbose logging
//
// Example:
//
//	sertcp-echo -b 115200 /tmp/ttyEcho
package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sertcp/sertcp-go/pkg/config"
	"github.com/sertcp/sertcp-go/pkg/echo"
	sertcplog "github.com/sertcp/sertcp-go/pkg/log"
	"github.com/sertcp/sertcp-go/pkg/vserial"
)

var (
	// The device is a pty; baud is reported to users but imposes no
	// timing on the loopback.
	baud    = flag.Int("b", 9600, "Reported baud rate")
	mode    = flag.Uint("m", 0o660, "Device permission bits")
	logFile = flag.String("log-file", "", "Write a binary event log to this file")
	verbose = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	setupLogging(*verbose)

	cfg := config.Echo{
		DevicePath: flag.Arg(0),
		Baud:       *baud,
		LogFile:    *logFile,
	}
	if err := cfg.Validate(); err != nil {
		flag.Usage()
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closeLogger, err := buildLogger(cfg.LogFile, *verbose)
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLogger()

	e := echo.New(echo.Config{
		DevicePath: cfg.DevicePath,
		Device:     vserial.Options{Mode: fs.FileMode(*mode)},
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// The device appears shortly after Run starts; report its path once
	// it does.
	go func() {
		for e.SlavePath() == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		log.Printf("Echo device ready at %s (%d baud)", e.DevicePath(), cfg.Baud)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v, shutting down", sig)
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatalf("Echo failed: %v", err)
		}
	}
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
