package echo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sertcp/sertcp-go/pkg/vserial"
)

func startEcho(t *testing.T, cfg Config) *Echo {
	t.Helper()
	cfg.PollInterval = 50 * time.Millisecond

	e := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("echo did not shut down")
		}
	})

	require.Eventually(t, func() bool {
		return e.SlavePath() != ""
	}, 2*time.Second, 10*time.Millisecond)
	return e
}

func TestEchoRoundtrip(t *testing.T) {
	e := startEcho(t, Config{})

	app, err := os.OpenFile(e.SlavePath(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Write([]byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := app.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), buf[:n])
}

func TestEchoThroughPublishedPath(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "ttyEcho")

	e := startEcho(t, Config{
		DevicePath: link,
		Device:     vserial.Options{AllowedRoots: []string{dir}},
	})
	assert.Equal(t, link, e.DevicePath())

	app, err := os.OpenFile(link, os.O_RDWR, 0)
	require.NoError(t, err)
	defer app.Close()

	payload := []byte("serial echo test")
	_, err = app.Write(payload)
	require.NoError(t, err)

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < len(payload) && time.Now().Before(deadline) {
		n, rerr := app.Read(buf)
		require.NoError(t, rerr)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, payload, got)
}

func TestEchoInvalidPath(t *testing.T) {
	e := New(Config{DevicePath: "not/absolute"})
	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vserial.ErrInvalidPath)
}
