package commands

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sertcp/sertcp-go/pkg/log"
)

func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.slog")

	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)
	defer fl.Close()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fl.Log(log.Event{
		Timestamp:    base,
		ConnectionID: "aabbccdd-1234",
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryData,
		RemoteAddr:   "192.168.1.5:50000",
		Transfer:     log.NewTransferEvent([]byte("PING"), 4),
	})
	fl.Log(log.Event{
		Timestamp: base.Add(time.Second),
		Layer:     log.LayerBridge,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityBridge,
			OldState: "STARTING",
			NewState: "LISTENING",
		},
	})
	fl.Log(log.Event{
		Timestamp: base.Add(2 * time.Second),
		Layer:     log.LayerDevice,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerDevice,
			Message: "input/output error",
			Context: "read serial",
		},
	})
	return path
}

func TestRunView(t *testing.T) {
	path := writeTestLog(t)

	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &buf))

	out := buf.String()
	assert.Contains(t, out, "Transfer")
	assert.Contains(t, out, "conn:aabbccdd")
	assert.Contains(t, out, "50494e47") // "PING" in hex
	assert.Contains(t, out, "STARTING -> LISTENING")
	assert.Contains(t, out, "input/output error")
}

func TestRunViewFiltered(t *testing.T) {
	path := writeTestLog(t)

	layer := log.LayerDevice
	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{Layer: &layer}, &buf))

	out := buf.String()
	assert.Contains(t, out, "input/output error")
	assert.NotContains(t, out, "Transfer")
}

func TestRunStats(t *testing.T) {
	path := writeTestLog(t)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))

	out := buf.String()
	assert.Contains(t, out, "Total events: 3")
	assert.Contains(t, out, "Total bytes:  4")
	assert.Contains(t, out, "Errors:       1")
	assert.Contains(t, out, "aabbccdd")
}

func TestParseFlags(t *testing.T) {
	l, err := ParseLayerFlag("device")
	require.NoError(t, err)
	assert.Equal(t, log.LayerDevice, l)
	_, err = ParseLayerFlag("wire")
	assert.Error(t, err)

	d, err := ParseDirectionFlag("OUT")
	require.NoError(t, err)
	assert.Equal(t, log.DirectionOut, d)
	_, err = ParseDirectionFlag("sideways")
	assert.Error(t, err)

	c, err := ParseCategoryFlag("state")
	require.NoError(t, err)
	assert.Equal(t, log.CategoryState, c)
	_, err = ParseCategoryFlag("message")
	assert.Error(t, err)
}
