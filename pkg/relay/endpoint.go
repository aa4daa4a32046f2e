package relay

import (
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Endpoint is one side of a relay: a readable/writable byte stream with
// a bounded-wait read so callers never block past the poll interval.
type Endpoint interface {
	// ReadChunk reads up to len(p) bytes into p, waiting at most wait
	// for data to become available. Returns ErrTimeout when nothing
	// arrived within the interval.
	ReadChunk(p []byte, wait time.Duration) (int, error)

	// Write writes all of p, returning the number of bytes written.
	Write(p []byte) (int, error)

	// Name identifies the endpoint in logs and errors.
	Name() string

	// Close releases the endpoint. Closing unblocks in-flight reads.
	Close() error
}

// FileEndpoint adapts a file-descriptor stream (serial port, pty master)
// to the Endpoint interface. Readiness is multiplexed with poll(2) so a
// read never blocks longer than the wait interval.
type FileEndpoint struct {
	file *os.File
	fd   int
	name string
}

// NewFileEndpoint wraps an open file. The name is used in logs and
// errors; pass the device path.
func NewFileEndpoint(f *os.File, name string) *FileEndpoint {
	return &FileEndpoint{file: f, fd: int(f.Fd()), name: name}
}

// ReadChunk polls the descriptor for readability, then reads.
func (e *FileEndpoint) ReadChunk(p []byte, wait time.Duration) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(wait.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return 0, ErrTimeout
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	// POLLHUP/POLLERR fall through to Read, which reports the real
	// condition (EOF or EIO) instead of a synthesized one.
	return e.file.Read(p)
}

// Write writes p to the underlying file.
func (e *FileEndpoint) Write(p []byte) (int, error) {
	return e.file.Write(p)
}

// Name returns the device path the endpoint was created with.
func (e *FileEndpoint) Name() string {
	return e.name
}

// Close closes the underlying file.
func (e *FileEndpoint) Close() error {
	return e.file.Close()
}

// ConnEndpoint adapts a net.Conn to the Endpoint interface using read
// deadlines for the bounded wait.
type ConnEndpoint struct {
	conn net.Conn
}

// NewConnEndpoint wraps a network connection.
func NewConnEndpoint(conn net.Conn) *ConnEndpoint {
	return &ConnEndpoint{conn: conn}
}

// ReadChunk reads with a deadline of now+wait, mapping the deadline
// expiry to ErrTimeout.
func (e *ConnEndpoint) ReadChunk(p []byte, wait time.Duration) (int, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, err
	}
	n, err := e.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			// A partial read before the deadline still carries data;
			// only a truly empty wait maps to ErrTimeout.
			if n > 0 {
				return n, nil
			}
			return 0, ErrTimeout
		}
		return n, err
	}
	return n, nil
}

// Write writes p to the connection.
func (e *ConnEndpoint) Write(p []byte) (int, error) {
	return e.conn.Write(p)
}

// Name returns the remote address of the connection.
func (e *ConnEndpoint) Name() string {
	return e.conn.RemoteAddr().String()
}

// Close closes the connection.
func (e *ConnEndpoint) Close() error {
	return e.conn.Close()
}

// Compile-time interface satisfaction checks.
var (
	_ Endpoint = (*FileEndpoint)(nil)
	_ Endpoint = (*ConnEndpoint)(nil)
)
