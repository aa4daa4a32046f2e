// Command sertcp-bridge exposes a physical serial device over TCP.
//
// Bytes read from the serial line are broadcast to every connected TCP
// client; bytes received from any client are written to the serial
// line. The byte stream is relayed unmodified in both directions.
//
// Usage:
//
//	sertcp-bridge [flags] <serial-device> <tcp-port>
//
// Flags:
//
//	-b int            Baud rate (default 9600)
//	-d int            Data bits: 5-8 (default 8)
//	-p string         Parity: N, E, O, M, S (default "N")
//	-s float          Stop bits: 1, 1.5, 2 (default 1)
//	-t duration       Serial read timeout (default 1s)
//	-max-clients int  Maximum concurrent TCP clients (default 10)
//	-config string    YAML configuration file (flags override it)
//	-log-file string  Write a binary event log to this file
//	-mdns             Advertise the bridge via multicast DNS
//	-name string      mDNS instance name (default: hostname)
//	-v                Verbose logging
//
// Examples:
//
//	# Share an FTDI adapter on port 4000
//	sertcp-bridge /dev/ttyUSB0 4000
//
//	# 115200 baud, even parity, at most two clients
//	sertcp-bridge -b 115200 -p E -max-clients 2 /dev/ttyUSB0 4000
//
//	# Settings from a config file, advertised on the local network
//	sertcp-bridge -config /etc/sertcp/bridge.yaml -mdns /dev/ttyUSB0 4000
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sertcp/sertcp-go/pkg/bridge"
	"github.com/sertcp/sertcp-go/pkg/config"
	"github.com/sertcp/sertcp-go/pkg/discovery"
	sertcplog "github.com/sertcp/sertcp-go/pkg/log"
)

var (
	baud       = flag.Int("b", 9600, "Baud rate")
	dataBits   = flag.Int("d", 8, "Data bits: 5-8")
	parity     = flag.String("p", "N", "Parity: N, E, O, M, S")
	stopBits   = flag.Float64("s", 1, "Stop bits: 1, 1.5, 2")
	timeout    = flag.Duration("t", time.Second, "Serial read timeout")
	maxClients = flag.Int("max-clients", 10, "Maximum concurrent TCP clients")
	configFile = flag.String("config", "", "YAML configuration file (flags override it)")
	logFile    = flag.String("log-file", "", "Write a binary event log to this file")
	mdns       = flag.Bool("mdns", false, "Advertise the bridge via multicast DNS")
	mdnsName   = flag.String("name", "", "mDNS instance name (default: hostname)")
	verbose    = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	setupLogging(*verbose)

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closeLogger, err := buildLogger(cfg.LogFile, *verbose)
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLogger()

	b := bridge.New(bridge.Config{
		Serial:     cfg.Serial(),
		Address:    cfg.Address(),
		MaxClients: cfg.MaxClients,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		log.Fatalf("Failed to start bridge: %v", err)
	}
	log.Printf("Bridge listening on %s, serial device %s (%d baud)", b.Addr(), cfg.Device, cfg.Baud)

	var advertiser *discovery.Advertiser
	if cfg.MDNS {
		advertiser = discovery.NewAdvertiser(discovery.DefaultAdvertiserConfig())
		err := advertiser.Advertise(discovery.Info{
			Name:   cfg.Name,
			Port:   cfg.Port,
			Device: cfg.Device,
			Baud:   cfg.Baud,
		})
		if err != nil {
			log.Printf("Warning: mDNS advertisement failed: %v", err)
			advertiser = nil
		} else {
			log.Printf("Advertising %s via mDNS", discovery.ServiceType)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v, shutting down", sig)
	case <-b.Done():
	}

	if advertiser != nil {
		advertiser.Stop()
	}
	if err := b.Stop(); err != nil {
		log.Printf("Bridge failed: %v", err)
		closeLogger()
		os.Exit(1)
	}
}

// buildConfig merges defaults, the optional config file and the command
// line. Flags set explicitly override file values.
func buildConfig() (config.Bridge, error) {
	cfg := config.DefaultBridge()

	if *configFile != "" {
		loaded, err := config.LoadBridgeFile(*configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "b":
			cfg.Baud = *baud
		case "d":
			cfg.DataBits = *dataBits
		case "p":
			cfg.Parity = *parity
		case "s":
			cfg.StopBits = *stopBits
		case "t":
			cfg.Timeout = config.Duration(*timeout)
		case "max-clients":
			cfg.MaxClients = *maxClients
		case "log-file":
			cfg.LogFile = *logFile
		case "mdns":
			cfg.MDNS = *mdns
		case "name":
			cfg.Name = *mdnsName
		}
	})

	if flag.NArg() > 0 {
		cfg.Device = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		port, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			return cfg, fmt.Errorf("invalid port %q: %v", flag.Arg(1), err)
		}
		cfg.Port = port
	}

	return cfg, cfg.Validate()
}

// buildLogger assembles the event logger: a CBOR file log when
// requested, mirrored to stderr in verbose mode.
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
