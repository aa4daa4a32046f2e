package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(9).String())

	assert.Equal(t, "TRANSPORT", LayerTransport.String())
	assert.Equal(t, "DEVICE", LayerDevice.String())
	assert.Equal(t, "BRIDGE", LayerBridge.String())

	assert.Equal(t, "DATA", CategoryData.String())
	assert.Equal(t, "STATE", CategoryState.String())
	assert.Equal(t, "ERROR", CategoryError.String())

	assert.Equal(t, "CONNECTION", StateEntityConnection.String())
	assert.Equal(t, "DEVICE", StateEntityDevice.String())
	assert.Equal(t, "BRIDGE", StateEntityBridge.String())
}

func TestEncodeDecodeEvent(t *testing.T) {
	ev := Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: "7a4d6c2e-0000-0000-0000-000000000001",
		Direction:    DirectionOut,
		Layer:        LayerTransport,
		Category:     CategoryData,
		RemoteAddr:   "127.0.0.1:9999",
		Transfer:     &TransferEvent{Bytes: 4, Data: []byte("PING")},
	}

	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.Equal(t, ev.ConnectionID, got.ConnectionID)
	assert.Equal(t, ev.Direction, got.Direction)
	assert.Equal(t, ev.Layer, got.Layer)
	assert.Equal(t, ev.Category, got.Category)
	assert.Equal(t, ev.RemoteAddr, got.RemoteAddr)
	require.NotNil(t, got.Transfer)
	assert.Equal(t, 4, got.Transfer.Bytes)
	assert.Equal(t, []byte("PING"), got.Transfer.Data)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))
}

func TestNewTransferEventTruncation(t *testing.T) {
	big := make([]byte, MaxCapturedData*3)
	for i := range big {
		big[i] = byte(i)
	}

	ev := NewTransferEvent(big, len(big))
	assert.Equal(t, len(big), ev.Bytes)
	assert.Len(t, ev.Data, MaxCapturedData)
	assert.True(t, ev.Truncated)

	small := NewTransferEvent([]byte("abc"), 3)
	assert.Equal(t, 3, small.Bytes)
	assert.Equal(t, []byte("abc"), small.Data)
	assert.False(t, small.Truncated)
}
