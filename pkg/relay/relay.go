package relay

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sertcp/sertcp-go/pkg/log"
)

// Defaults for the relay loop.
const (
	// DefaultMaxChunk bounds a single transfer.
	DefaultMaxChunk = 4096

	// DefaultPollInterval bounds how long a direction blocks before
	// re-checking for cancellation. Shutdown latency is bounded by
	// this interval.
	DefaultPollInterval = 500 * time.Millisecond
)

// Options configures a relay.
type Options struct {
	// MaxChunk is the largest single transfer (default 4096). Reads
	// never exceed it; larger bursts are moved in consecutive chunks.
	MaxChunk int

	// PollInterval bounds each blocking read (default 500ms).
	PollInterval time.Duration

	// ConnectionID tags log events (optional).
	ConnectionID string

	// Logger receives transfer and error events (optional).
	Logger log.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxChunk <= 0 {
		o.MaxChunk = DefaultMaxChunk
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = log.NoopLogger{}
	}
}

// Run relays bytes between a and b in both directions until either
// endpoint reaches end-of-stream, an I/O error occurs, or ctx is
// cancelled. Each direction runs on its own goroutine so a write stall
// on one never blocks the other beyond natural backpressure.
//
// The returned error is nil on cancellation and a *Error otherwise;
// end-of-stream is a *Error wrapping io.EOF on the closing leg.
func Run(ctx context.Context, a, b Endpoint, opts Options) error {
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- copyLoop(ctx, a, LegA, b, LegB, opts)
		cancel()
	}()
	go func() {
		errCh <- copyLoop(ctx, b, LegB, a, LegA, opts)
		cancel()
	}()

	// The first terminal error wins; the second goroutine exits on the
	// cancelled context and reports nil.
	err1 := <-errCh
	err2 := <-errCh
	if err1 != nil {
		return err1
	}
	return err2
}

// copyLoop moves bytes src -> dst until end-of-stream, error, or
// cancellation. The shutdown flag (ctx) is observed at least once per
// poll interval.
func copyLoop(ctx context.Context, src Endpoint, srcLeg Leg, dst Endpoint, dstLeg Leg, opts Options) error {
	buf := make([]byte, opts.MaxChunk)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := src.ReadChunk(buf, opts.PollInterval)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				// Endpoint was closed as part of shutdown.
				return nil
			}
			relayErr := &Error{Leg: srcLeg, Name: src.Name(), Op: OpRead, Err: err}
			logError(opts, relayErr)
			return relayErr
		}
		if n == 0 {
			// Zero-byte read without error: stream closed.
			relayErr := &Error{Leg: srcLeg, Name: src.Name(), Op: OpRead, Err: io.EOF}
			logError(opts, relayErr)
			return relayErr
		}

		if _, werr := dst.Write(buf[:n]); werr != nil {
			if ctx.Err() != nil {
				return nil
			}
			relayErr := &Error{Leg: dstLeg, Name: dst.Name(), Op: OpWrite, Err: werr}
			logError(opts, relayErr)
			return relayErr
		}

		opts.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: opts.ConnectionID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerBridge,
			Category:     log.CategoryData,
			Transfer:     log.NewTransferEvent(buf, n),
		})
	}
}

func logError(opts Options, relayErr *Error) {
	opts.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: opts.ConnectionID,
		Layer:        log.LayerBridge,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerBridge,
			Message: relayErr.Err.Error(),
			Context: relayErr.Op.String() + " " + relayErr.Name,
		},
	})
}
