// Package echo provides a loopback test double: a virtual serial device
// that writes every byte it receives straight back to the writer. It
// lets serial applications be exercised without hardware or a network.
package echo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sertcp/sertcp-go/pkg/log"
	"github.com/sertcp/sertcp-go/pkg/relay"
	"github.com/sertcp/sertcp-go/pkg/vserial"
)

// DefaultMaxChunk bounds a single echo transfer.
const DefaultMaxChunk = 1024

// Config configures an echo device.
type Config struct {
	// DevicePath is where the device symlink is published (optional).
	DevicePath string

	// Device passes through virtual device options.
	Device vserial.Options

	// MaxChunk bounds a single transfer (default 1024).
	MaxChunk int

	// PollInterval bounds blocking reads (default relay.DefaultPollInterval).
	PollInterval time.Duration

	// Logger receives echo events (optional).
	Logger log.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxChunk <= 0 {
		c.MaxChunk = DefaultMaxChunk
	}
	if c.PollInterval <= 0 {
		c.PollInterval = relay.DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
}

// Echo owns one virtual serial device and reflects all traffic on it.
type Echo struct {
	cfg    Config
	device *vserial.Device
}

// New creates an echo device. Call Run to create the device and serve.
func New(cfg Config) *Echo {
	cfg.applyDefaults()
	return &Echo{cfg: cfg}
}

// SlavePath returns the application-facing device path once Run has
// created the device, empty before that.
func (e *Echo) SlavePath() string {
	if e.device == nil {
		return ""
	}
	return e.device.SlavePath()
}

// DevicePath returns the published symlink path, or the slave path when
// no symlink was requested.
func (e *Echo) DevicePath() string {
	if e.device == nil {
		return ""
	}
	return e.device.Path()
}

// Run creates the virtual device and echoes every received byte back
// until ctx is cancelled. Bytes written while no reader exists sit in
// the pty buffer like on any serial line.
func (e *Echo) Run(ctx context.Context) error {
	opts := e.cfg.Device
	if opts.Path == "" {
		opts.Path = e.cfg.DevicePath
	}
	if opts.Logger == nil {
		opts.Logger = e.cfg.Logger
	}

	device, err := vserial.Open(opts)
	if err != nil {
		return fmt.Errorf("create virtual device: %w", err)
	}
	e.device = device
	defer device.Close()

	ep := relay.NewFileEndpoint(device.Master(), device.Path())
	buf := make([]byte, e.cfg.MaxChunk)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := ep.ReadChunk(buf, e.cfg.PollInterval)
		if errors.Is(err, relay.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read virtual device: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := ep.Write(buf[:n]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write virtual device: %w", err)
		}

		e.cfg.Logger.Log(log.Event{
			Timestamp:  time.Now(),
			Direction:  log.DirectionOut,
			Layer:      log.LayerDevice,
			Category:   log.CategoryData,
			DevicePath: device.Path(),
			Transfer:   log.NewTransferEvent(buf, n),
		})
	}
}
