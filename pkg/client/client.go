// Package client connects a local virtual serial device to a remote
// bridge over TCP. The virtual device exists for the whole lifetime of
// the client; the network connection is re-established with exponential
// backoff whenever it drops.
package client

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sertcp/sertcp-go/pkg/backoff"
	"github.com/sertcp/sertcp-go/pkg/log"
	"github.com/sertcp/sertcp-go/pkg/relay"
	"github.com/sertcp/sertcp-go/pkg/vserial"
)

// State is the client lifecycle state.
type State uint8

const (
	// StateDisconnected indicates no connection attempt is active.
	StateDisconnected State = iota

	// StateConnecting indicates a dial or backoff wait is in progress.
	StateConnecting

	// StateConnected indicates bytes are being relayed.
	StateConnected

	// StateShuttingDown indicates shutdown is in progress.
	StateShuttingDown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Defaults for the client.
const (
	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 10 * time.Second

	// DefaultKeepAlive is the TCP keepalive period on established
	// connections, so a silently dead peer is detected.
	DefaultKeepAlive = 30 * time.Second
)

// Config configures a client.
type Config struct {
	// Address of the remote bridge ("host:port").
	Address string

	// DevicePath is where the virtual device symlink is published
	// (optional; without it applications use the raw slave path).
	DevicePath string

	// Device passes through virtual device options.
	Device vserial.Options

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// KeepAlive is the TCP keepalive period (0 uses the default).
	KeepAlive time.Duration

	// Backoff tunes the reconnect schedule.
	Backoff backoff.Config

	// MaxChunk bounds a single transfer (default relay.DefaultMaxChunk).
	MaxChunk int

	// PollInterval bounds blocking reads (default relay.DefaultPollInterval).
	PollInterval time.Duration

	// OnStateChange is invoked on every lifecycle transition (optional).
	OnStateChange func(State)

	// Logger receives client events (optional).
	Logger log.Logger
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
}

// Client owns one virtual serial device and maintains a connection to
// the bridge that backs it.
type Client struct {
	cfg    Config
	device *vserial.Device
	back   *backoff.Backoff
	state  atomic.Uint32
}

// New creates a client. Call Run to create the device and connect.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:  cfg,
		back: backoff.NewWithConfig(cfg.Backoff),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// SlavePath returns the application-facing device path once Run has
// created the device, empty before that.
func (c *Client) SlavePath() string {
	if c.device == nil {
		return ""
	}
	return c.device.SlavePath()
}

// DevicePath returns the published symlink path, or the slave path when
// no symlink was requested.
func (c *Client) DevicePath() string {
	if c.device == nil {
		return ""
	}
	return c.device.Path()
}

// Run creates the virtual device and keeps it connected to the bridge
// until ctx is cancelled. The device is created before the first dial
// so applications can open it immediately; writes made while the link
// is down are discarded by the kernel pty buffer semantics, not queued.
//
// A failure to create the device is returned directly. Network failures
// are retried forever with exponential backoff. A device-side I/O error
// after the device existed is fatal and returned.
func (c *Client) Run(ctx context.Context) error {
	opts := c.cfg.Device
	if opts.Path == "" {
		opts.Path = c.cfg.DevicePath
	}
	if opts.Logger == nil {
		opts.Logger = c.cfg.Logger
	}

	device, err := vserial.Open(opts)
	if err != nil {
		return fmt.Errorf("create virtual device: %w", err)
	}
	c.device = device
	defer device.Close()
	defer c.setState(StateDisconnected, "shutdown")

	deviceEP := relay.NewFileEndpoint(device.Master(), device.Path())

	for {
		c.setState(StateConnecting, "")

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateShuttingDown, "")
				return nil
			}
			c.logError(err, "dial "+c.cfg.Address)
			if !c.sleep(ctx, c.back.Next()) {
				c.setState(StateShuttingDown, "")
				return nil
			}
			continue
		}

		c.back.Reset()
		connID := uuid.NewString()
		c.setState(StateConnected, "")
		c.logConnEvent(connID, conn.RemoteAddr().String(), "CONNECTING", "CONNECTED")

		err = relay.Run(ctx, relay.NewConnEndpoint(conn), deviceEP, relay.Options{
			MaxChunk:     c.cfg.MaxChunk,
			PollInterval: c.cfg.PollInterval,
			ConnectionID: connID,
			Logger:       c.cfg.Logger,
		})
		conn.Close()

		if ctx.Err() != nil {
			c.setState(StateShuttingDown, "")
			return nil
		}
		if err != nil {
			if leg, ok := relay.FailedLeg(err); ok && leg == relay.LegB {
				// The virtual device itself failed; reconnecting
				// cannot help.
				c.setState(StateDisconnected, err.Error())
				return fmt.Errorf("virtual device failed: %w", err)
			}
			c.logConnEvent(connID, conn.RemoteAddr().String(), "CONNECTED", "DISCONNECTED")
		}
	}
}

// dial attempts one connection with keepalive enabled.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{
		Timeout:   c.cfg.DialTimeout,
		KeepAlive: c.cfg.KeepAlive,
	}
	return d.DialContext(ctx, "tcp", c.cfg.Address)
}

// sleep waits for d or cancellation, reporting false on cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) setState(s State, reason string) {
	old := State(c.state.Swap(uint32(s)))
	if old == s {
		return
	}
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
	c.cfg.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerBridge,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityBridge,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

func (c *Client) logConnEvent(connID, remote, oldState, newState string) {
	c.cfg.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *Client) logError(err error, context string) {
	c.cfg.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: context,
		},
	})
}
