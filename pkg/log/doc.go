// Package log provides structured event logging for the serial-over-TCP
// toolkit.
//
// This package defines the Logger interface and Event types for capturing
// events at the transport (TCP), device (serial/pty) and bridge layers.
// It is separate from operational logging (slog) - event capture provides
// a machine-readable trace of transfers, state changes and errors for
// debugging a running bridge or client.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	logger, _ := log.NewFileLogger("/var/log/sertcp/bridge.slog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events. The sertcp-log CLI tool
// provides viewing and filtering.
package log
