package log

import (
	"time"
)

// Event represents a toolkit log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the network connection (UUID).
	// Empty for events not tied to a connection (device lifecycle etc.).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates data flow relative to the local process.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port) for network events.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// DevicePath is the serial or virtual device path for device events.
	DevicePath string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Transfer    *TransferEvent    `cbor:"8,keyasint,omitempty"`  // Byte transfer
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`  // Lifecycle state
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates data received by the local process.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent by the local process.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the toolkit captured the event.
type Layer uint8

const (
	// LayerTransport is the TCP leg (sockets, listener).
	LayerTransport Layer = 0
	// LayerDevice is the serial or pseudo-terminal leg.
	LayerDevice Layer = 1
	// LayerBridge is the bridging engine (registry, relay, reconnect).
	LayerBridge Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerDevice:
		return "DEVICE"
	case LayerBridge:
		return "BRIDGE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryData indicates a byte transfer.
	CategoryData Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// TransferEvent captures a byte transfer between two endpoints.
type TransferEvent struct {
	// Bytes is the number of bytes transferred.
	Bytes int `cbor:"1,keyasint"`

	// Data holds the transferred bytes (may be truncated for large transfers).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures connection and device lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a network connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityDevice indicates a serial or virtual device state change.
	StateEntityDevice StateEntity = 1
	// StateEntityBridge indicates a bridge or client state machine change.
	StateEntityBridge StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityDevice:
		return "DEVICE"
	case StateEntityBridge:
		return "BRIDGE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// MaxCapturedData bounds the Data field of TransferEvent. Larger transfers
// are truncated so the log file does not mirror the full byte stream.
const MaxCapturedData = 64

// NewTransferEvent builds a data event for n bytes of p, truncating the
// captured payload to MaxCapturedData.
func NewTransferEvent(p []byte, n int) *TransferEvent {
	ev := &TransferEvent{Bytes: n}
	if n > MaxCapturedData {
		ev.Data = append([]byte(nil), p[:MaxCapturedData]...)
		ev.Truncated = true
	} else {
		ev.Data = append([]byte(nil), p[:n]...)
	}
	return ev
}
