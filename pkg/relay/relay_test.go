package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// pipePair builds one relay endpoint and the test's handle to it.
func pipePair() (Endpoint, net.Conn) {
	inner, outer := net.Pipe()
	return NewConnEndpoint(inner), outer
}

// openRawPty allocates a pty pair with the slave in raw mode so bytes
// cross in both directions without line buffering or echo.
func openRawPty(t *testing.T) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	termios, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)
	termios.Iflag &^= unix.BRKINT | unix.ICRNL | unix.INPCK | unix.ISTRIP | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN | unix.ISIG
	require.NoError(t, unix.IoctlSetTermios(int(slave.Fd()), unix.TCSETS, termios))
	return master, slave
}

func TestRunBothDirections(t *testing.T) {
	epA, userA := pipePair()
	epB, userB := pipePair()
	t.Cleanup(func() { userA.Close(); userB.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, epA, epB, Options{PollInterval: 20 * time.Millisecond}) }()

	// a -> b
	_, err := userA.Write([]byte("PING"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	require.NoError(t, userB.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := userB.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "PING", string(buf[:n]))

	// b -> a
	_, err = userB.Write([]byte("PONG"))
	require.NoError(t, err)
	require.NoError(t, userA.SetReadDeadline(time.Now().Add(time.Second)))
	n, err = userA.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(buf[:n]))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}

func TestRunChunksOversizedBursts(t *testing.T) {
	epA, userA := pipePair()
	epB, userB := pipePair()
	t.Cleanup(func() { userA.Close(); userB.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, epA, epB, Options{MaxChunk: 8, PollInterval: 20 * time.Millisecond})

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	received := make(chan []byte, 1)
	go func() {
		var got bytes.Buffer
		buf := make([]byte, 64)
		for got.Len() < len(payload) {
			userB.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := userB.Read(buf)
			if err != nil {
				received <- got.Bytes()
				return
			}
			got.Write(buf[:n])
		}
		received <- got.Bytes()
	}()

	_, err := userA.Write(payload)
	require.NoError(t, err)

	select {
	case got := <-received:
		// Content-equal regardless of chunk boundaries.
		assert.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for chunked payload")
	}
}

func TestRunReportsSourceEOF(t *testing.T) {
	epA, userA := pipePair()
	epB, userB := pipePair()
	t.Cleanup(func() { userB.Close() })

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), epA, epB, Options{PollInterval: 20 * time.Millisecond})
	}()

	// Closing the far side of A ends the a->b direction with EOF.
	require.NoError(t, userA.Close())

	select {
	case err := <-done:
		var relayErr *Error
		require.ErrorAs(t, err, &relayErr)
		assert.Equal(t, LegA, relayErr.Leg)
		assert.True(t, relayErr.Source())
		assert.True(t, errors.Is(err, io.EOF) || relayErr.Err != nil)

		leg, ok := FailedLeg(err)
		require.True(t, ok)
		assert.Equal(t, LegA, leg)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not terminate after endpoint close")
	}
}

func TestFileEndpointPollAndTimeout(t *testing.T) {
	master, slave := openRawPty(t)

	ep := NewFileEndpoint(master, slave.Name())

	// Nothing written yet: bounded wait elapses.
	buf := make([]byte, 16)
	start := time.Now()
	_, err := ep.ReadChunk(buf, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	_, err = slave.Write([]byte("hello"))
	require.NoError(t, err)

	n, err := ep.ReadChunk(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestRunFileToConn(t *testing.T) {
	master, slave := openRawPty(t)

	epConn, user := pipePair()
	t.Cleanup(func() { user.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, NewFileEndpoint(master, slave.Name()), epConn,
		Options{PollInterval: 20 * time.Millisecond})

	// device -> network
	_, err := slave.Write([]byte("from-device"))
	require.NoError(t, err)
	buf := make([]byte, 32)
	user.SetReadDeadline(time.Now().Add(time.Second))
	n, err := user.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "from-device", string(buf[:n]))

	// network -> device
	_, err = user.Write([]byte("from-net"))
	require.NoError(t, err)
	reply := make([]byte, 32)
	readDone := make(chan int, 1)
	go func() {
		n, _ := slave.Read(reply)
		readDone <- n
	}()
	select {
	case n := <-readDone:
		assert.Equal(t, "from-net", string(reply[:n]))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for data on the device side")
	}
}

func TestErrorPredicates(t *testing.T) {
	src := &Error{Leg: LegB, Name: "/dev/pts/5", Op: OpRead, Err: io.EOF}
	assert.True(t, src.Source())
	assert.False(t, src.Sink())
	assert.ErrorIs(t, src, io.EOF)
	assert.Contains(t, src.Error(), "/dev/pts/5")

	sink := &Error{Leg: LegA, Name: "peer", Op: OpWrite, Err: errors.New("broken pipe")}
	assert.True(t, sink.Sink())
	assert.False(t, sink.Source())

	_, ok := FailedLeg(errors.New("plain"))
	assert.False(t, ok)
}
