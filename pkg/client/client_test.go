package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sertcp/sertcp-go/pkg/backoff"
	"github.com/sertcp/sertcp-go/pkg/vserial"
)

func fastBackoff() backoff.Config {
	return backoff.Config{
		Initial:    20 * time.Millisecond,
		Max:        100 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// freeAddr reserves a local port and releases it so the test can bring
// a listener up on it later.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startClient(t *testing.T, cfg Config) (*Client, context.CancelFunc, chan error) {
	t.Helper()
	cfg.Backoff = fastBackoff()
	cfg.PollInterval = 50 * time.Millisecond

	c := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx); close(done) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("client did not shut down")
		}
	})
	return c, cancel, done
}

func waitForDevice(t *testing.T, c *Client) string {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.SlavePath() != ""
	}, 2*time.Second, 10*time.Millisecond)
	return c.SlavePath()
}

func TestClientCreatesDeviceBeforeServerExists(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "ttyV0")

	c, _, _ := startClient(t, Config{
		Address:    freeAddr(t),
		DevicePath: link,
		Device:     vserial.Options{AllowedRoots: []string{dir}},
	})

	waitForDevice(t, c)

	// The symlink is usable while the client is still retrying.
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, c.SlavePath(), target)
	assert.NotEqual(t, StateConnected, c.State())
}

func TestClientConnectsToLateServer(t *testing.T) {
	addr := freeAddr(t)

	c, _, _ := startClient(t, Config{Address: addr})
	slavePath := waitForDevice(t, c)

	// Let a few attempts fail before the server shows up.
	time.Sleep(100 * time.Millisecond)

	l, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer l.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, aerr := l.Accept()
		if aerr == nil {
			connCh <- conn
		}
	}()

	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	var server net.Conn
	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	defer server.Close()

	app, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	require.NoError(t, err)
	defer app.Close()

	// Remote to application.
	_, err = server.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := app.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf[:n])

	// Application to remote.
	_, err = app.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), buf[:n])
}

func TestClientReconnectsAfterServerDrop(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	c, _, _ := startClient(t, Config{Address: l.Addr().String()})
	waitForDevice(t, c)

	first, err := l.Accept()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	// Backoff was reset by the successful connection, so the retry
	// after the drop starts from the initial delay again.
	first.Close()

	second, err := l.Accept()
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClientShutdownWhileConnected(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	c, cancel, done := startClient(t, Config{Address: l.Addr().String()})
	waitForDevice(t, c)

	server, err := l.Accept()
	require.NoError(t, err)
	defer server.Close()

	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientRejectsBadDevicePath(t *testing.T) {
	c := New(Config{
		Address:    "127.0.0.1:1",
		DevicePath: "relative/ttyV0",
	})
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vserial.ErrInvalidPath)
}
