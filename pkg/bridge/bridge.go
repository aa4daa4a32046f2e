// Package bridge exposes a physical serial device over TCP: one serial
// endpoint is fanned out to a bounded set of network clients, and bytes
// from any client are written back to the serial line.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sertcp/sertcp-go/pkg/log"
	"github.com/sertcp/sertcp-go/pkg/relay"
	"github.com/sertcp/sertcp-go/pkg/serial"
)

// State is the bridge lifecycle state.
type State uint8

const (
	// StateStarting indicates resources are being acquired.
	StateStarting State = iota

	// StateListening indicates the bridge is serving clients.
	StateListening

	// StateShuttingDown indicates shutdown is in progress.
	StateShuttingDown

	// StateStopped indicates the bridge has released all resources.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateListening:
		return "LISTENING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a bridge.
type Config struct {
	// Serial is the physical endpoint configuration.
	Serial serial.Config

	// Address to listen on (e.g. ":4000").
	Address string

	// MaxClients bounds concurrent connections (default 10).
	MaxClients int

	// MaxChunk bounds a single transfer (default relay.DefaultMaxChunk).
	MaxChunk int

	// PollInterval bounds blocking reads; shutdown latency is bounded
	// by it (default relay.DefaultPollInterval).
	PollInterval time.Duration

	// Logger receives bridge events (optional).
	Logger log.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = relay.DefaultMaxChunk
	}
	if c.PollInterval <= 0 {
		c.PollInterval = relay.DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
}

// Bridge serves one serial endpoint to many TCP clients.
type Bridge struct {
	cfg      Config
	port     *serial.Port
	listener net.Listener
	registry *Registry

	// serialMu serializes client writes to the shared serial endpoint.
	serialMu sync.Mutex

	state   atomic.Uint32
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	done      chan struct{}
	fatalOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// New creates a bridge. Call Start to acquire resources.
func New(cfg Config) *Bridge {
	cfg.applyDefaults()
	return &Bridge{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxClients),
		done:     make(chan struct{}),
	}
}

// Done is closed once the bridge has fully stopped, whether by Stop or
// by a serial endpoint failure.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns the serial endpoint failure that brought the bridge down,
// or nil after a clean Stop. Settled once Done is closed.
func (b *Bridge) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Addr returns the listener address, nil before Start.
func (b *Bridge) Addr() net.Addr {
	if b.listener != nil {
		return b.listener.Addr()
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (b *Bridge) ClientCount() int {
	return b.registry.Len()
}

// Start opens the serial endpoint, binds the listener and begins
// serving. A failure to acquire either resource leaves the bridge
// Stopped with an error; nothing is half-open.
func (b *Bridge) Start(ctx context.Context) error {
	if b.running.Load() {
		return errors.New("bridge already running")
	}
	b.setState(StateStarting, "")

	port, err := serial.Open(b.cfg.Serial)
	if err != nil {
		b.setState(StateStopped, err.Error())
		return fmt.Errorf("open serial endpoint: %w", err)
	}

	listener, err := net.Listen("tcp", b.cfg.Address)
	if err != nil {
		port.Close()
		b.setState(StateStopped, err.Error())
		return fmt.Errorf("bind listener: %w", err)
	}

	b.port = port
	b.listener = listener
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running.Store(true)
	b.setState(StateListening, "")

	b.wg.Add(2)
	go b.acceptLoop()
	go b.serialLoop()

	return nil
}

// Stop shuts the bridge down: the listener closes first so no new
// clients arrive, then every client socket and the serial endpoint are
// closed so blocked reads return immediately. Serial data read but not
// yet broadcast is discarded.
func (b *Bridge) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return b.Err()
	}
	b.setState(StateShuttingDown, "")
	b.cancel()

	b.listener.Close()
	b.registry.CloseAll()
	b.port.Close()

	b.wg.Wait()
	b.setState(StateStopped, "")
	close(b.done)
	return b.Err()
}

// fatal records the first serial endpoint failure and tears the bridge
// down. Client connections are transient; the serial leg is not, so its
// death ends the bridge rather than leaving a listener serving a dead
// line.
func (b *Bridge) fatal(err error) {
	b.fatalOnce.Do(func() {
		b.errMu.Lock()
		b.err = err
		b.errMu.Unlock()
		b.logError(err, "serial endpoint")
		go b.Stop()
	})
}

// acceptLoop accepts incoming connections and enforces the registry
// bound. A rejected connection is closed immediately and the server
// keeps serving.
func (b *Bridge) acceptLoop() {
	defer b.wg.Done()

	for b.running.Load() {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.running.Load() {
				continue
			}
			return
		}

		cc, err := b.registry.Add(conn)
		if err != nil {
			b.logError(err, "accept "+conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		b.logConnState(cc, "", "CONNECTED")
		b.wg.Add(1)
		go b.handleClient(cc)
	}
}

// handleClient copies bytes from one TCP client to the shared serial
// endpoint until the client disconnects or shutdown begins. The reverse
// direction is the broadcast in serialLoop.
func (b *Bridge) handleClient(cc *ClientConn) {
	defer b.wg.Done()
	defer func() {
		b.registry.Remove(cc.ID)
		cc.Conn.Close()
		b.logConnState(cc, "CONNECTED", "DISCONNECTED")
	}()

	ep := relay.NewConnEndpoint(cc.Conn)
	buf := make([]byte, b.cfg.MaxChunk)

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		n, err := ep.ReadChunk(buf, b.cfg.PollInterval)
		if errors.Is(err, relay.ErrTimeout) {
			continue
		}
		if err != nil || n == 0 {
			return
		}

		b.serialMu.Lock()
		_, werr := b.port.Write(buf[:n])
		b.serialMu.Unlock()
		if werr != nil {
			if b.running.Load() {
				b.fatal(fmt.Errorf("write %s: %w", b.cfg.Serial.Device, werr))
			}
			return
		}

		b.cfg.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: cc.ID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryData,
			RemoteAddr:   cc.RemoteAddr.String(),
			Transfer:     log.NewTransferEvent(buf, n),
		})
	}
}

// serialLoop continuously reads the serial endpoint and fans the bytes
// out to every connected client.
func (b *Bridge) serialLoop() {
	defer b.wg.Done()

	ep := b.port.Endpoint()
	buf := make([]byte, b.cfg.MaxChunk)

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		n, err := ep.ReadChunk(buf, b.cfg.PollInterval)
		if errors.Is(err, relay.ErrTimeout) {
			continue
		}
		if err != nil || n == 0 {
			if b.running.Load() {
				if err == nil {
					err = io.EOF
				}
				b.fatal(fmt.Errorf("read %s: %w", b.cfg.Serial.Device, err))
			}
			return
		}

		dropped := b.registry.Broadcast(buf[:n])
		for _, id := range dropped {
			b.cfg.Logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: id,
				Layer:        log.LayerTransport,
				Category:     log.CategoryState,
				StateChange: &log.StateChangeEvent{
					Entity:   log.StateEntityConnection,
					OldState: "CONNECTED",
					NewState: "DISCONNECTED",
					Reason:   "broadcast write failed",
				},
			})
		}

		b.cfg.Logger.Log(log.Event{
			Timestamp:  time.Now(),
			Direction:  log.DirectionIn,
			Layer:      log.LayerDevice,
			Category:   log.CategoryData,
			DevicePath: b.cfg.Serial.Device,
			Transfer:   log.NewTransferEvent(buf, n),
		})
	}
}

func (b *Bridge) setState(s State, reason string) {
	old := State(b.state.Swap(uint32(s)))
	if old == s {
		return
	}
	b.cfg.Logger.Log(log.Event{
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

func (b *Bridge) logConnState(cc *ClientConn, oldState, newState string) {
	b.cfg.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: cc.ID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   cc.RemoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (b *Bridge) logError(err error, context string) {
	b.cfg.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerBridge,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerBridge,
			Message: err.Error(),
			Context: context,
		},
	})
}
