// Package commands implements the sertcp-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sertcp/sertcp-go/pkg/log"
)

// RunView prints every event matching the filter in a human-readable
// format.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	var typeLabel string
	switch {
	case event.Transfer != nil:
		typeLabel = "Transfer"
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n",
		ts, connID, event.Direction.String(), event.Layer.String(), typeLabel)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}
	if event.DevicePath != "" {
		fmt.Fprintf(w, "  Device: %s\n", event.DevicePath)
	}

	switch {
	case event.Transfer != nil:
		formatTransferDetails(w, event.Transfer)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatTransferDetails(w io.Writer, transfer *log.TransferEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", transfer.Bytes)
	if len(transfer.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(transfer.Data))
		if transfer.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s: %s -> %s\n", sc.Entity.String(), sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", sc.Entity.String(), sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Error: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}
