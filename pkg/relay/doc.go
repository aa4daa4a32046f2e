// Package relay implements the duplex byte-copy engine shared by the
// bridge, client and echo modes.
//
// A relay joins two stream endpoints and copies bytes in both directions
// until one endpoint reaches end-of-stream, fails, or the context is
// cancelled. Endpoints hide the difference between file-descriptor
// devices (serial ports, pty masters) and network connections: both
// expose a bounded-wait read so a shutdown signal is observed within one
// poll interval instead of blocking indefinitely.
//
// Errors are classified by leg and operation so callers can apply
// endpoint-specific recovery, e.g. reconnect the network leg while the
// virtual device stays alive.
package relay
