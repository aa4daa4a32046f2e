package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sertcp/sertcp-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	TotalBytes        int
	EventsByLayer     map[log.Layer]int
	EventsByDirection map[log.Direction]int
	Errors            int
	Connections       map[string]*ConnectionStats
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Bytes     int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++

	if event.Transfer != nil {
		s.EventsByDirection[event.Direction]++
		s.TotalBytes += event.Transfer.Bytes
	}
	if event.Error != nil {
		s.Errors++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID == "" {
		return
	}
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	conn.LastSeen = event.Timestamp
	if event.Transfer != nil {
		conn.Bytes += event.Transfer.Bytes
	}
}

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Total bytes:  %d\n", s.TotalBytes)
	fmt.Fprintf(w, "Errors:       %d\n", s.Errors)

	if !s.TimeRange.Start.IsZero() {
		fmt.Fprintf(w, "Time range:   %s - %s (%s)\n",
			s.TimeRange.Start.UTC().Format(time.RFC3339),
			s.TimeRange.End.UTC().Format(time.RFC3339),
			s.TimeRange.End.Sub(s.TimeRange.Start).Round(time.Millisecond))
	}

	fmt.Fprintln(w, "\nEvents by layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerDevice, log.LayerBridge} {
		if count := s.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", layer.String(), count)
		}
	}

	if len(s.EventsByDirection) > 0 {
		fmt.Fprintln(w, "\nTransfers by direction:")
		for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
			if count := s.EventsByDirection[dir]; count > 0 {
				fmt.Fprintf(w, "  %-10s %d\n", dir.String(), count)
			}
		}
	}

	if len(s.Connections) > 0 {
		ids := make([]string, 0, len(s.Connections))
		for id := range s.Connections {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(w, "\nConnections:")
		for _, id := range ids {
			conn := s.Connections[id]
			fmt.Fprintf(w, "  %s  events=%d bytes=%d duration=%s\n",
				shortenConnID(id), conn.Events, conn.Bytes,
				conn.LastSeen.Sub(conn.FirstSeen).Round(time.Millisecond))
		}
	}
}
