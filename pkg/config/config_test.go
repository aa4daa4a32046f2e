package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBridge(t *testing.T) {
	b := DefaultBridge()
	assert.Equal(t, 9600, b.Baud)
	assert.Equal(t, 8, b.DataBits)
	assert.Equal(t, "N", b.Parity)
	assert.Equal(t, 1.0, b.StopBits)
	assert.Equal(t, Duration(time.Second), b.Timeout)
	assert.Equal(t, 4000, b.Port)
	assert.Equal(t, 10, b.MaxClients)
}

func TestLoadBridgeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `device: /dev/ttyUSB0
baud: 115200
parity: E
timeout: 250ms
port: 5000
max-clients: 4
mdns: true
name: bench-bridge
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := LoadBridgeFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", b.Device)
	assert.Equal(t, 115200, b.Baud)
	assert.Equal(t, "E", b.Parity)
	assert.Equal(t, 5000, b.Port)
	assert.Equal(t, 4, b.MaxClients)
	assert.True(t, b.MDNS)
	assert.Equal(t, "bench-bridge", b.Name)

	// Unset keys keep their defaults.
	assert.Equal(t, 8, b.DataBits)
	assert.Equal(t, Duration(250*time.Millisecond), b.Timeout)

	require.NoError(t, b.Validate())
	assert.Equal(t, ":5000", b.Address())
}

func TestLoadBridgeFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: /dev/ttyUSB0\nbaudrate: 9600\n"), 0o644))

	_, err := LoadBridgeFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadBridgeFileMissing(t *testing.T) {
	_, err := LoadBridgeFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBridgeValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Bridge)
		wantErr bool
	}{
		{"defaults with device", func(b *Bridge) { b.Device = "/dev/ttyUSB0" }, false},
		{"missing device", func(b *Bridge) {}, true},
		{"port zero", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.Port = 0 }, true},
		{"port too large", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.Port = 70000 }, true},
		{"no clients", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.MaxClients = 0 }, true},
		{"bad baud", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.Baud = 1234 }, true},
		{"bad parity", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.Parity = "X" }, true},
		{"mark parity", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.Parity = "M" }, false},
		{"bad stop bits", func(b *Bridge) { b.Device = "/dev/ttyUSB0"; b.StopBits = 3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := DefaultBridge()
			tt.modify(&b)
			err := b.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientValidate(t *testing.T) {
	assert.NoError(t, Client{Address: "127.0.0.1:4000"}.Validate())
	assert.NoError(t, Client{Discover: true}.Validate())

	assert.ErrorIs(t, Client{}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Client{Address: "no-port"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Client{Address: "127.0.0.1:4000", Discover: true}.Validate(), ErrInvalidConfig)
}

func TestEchoValidate(t *testing.T) {
	assert.NoError(t, Echo{DevicePath: "/tmp/ttyEcho", Baud: 9600}.Validate())

	assert.ErrorIs(t, Echo{Baud: 9600}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Echo{DevicePath: "/tmp/ttyEcho"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Echo{DevicePath: "/tmp/ttyEcho", Baud: -1}.Validate(), ErrInvalidConfig)
}
