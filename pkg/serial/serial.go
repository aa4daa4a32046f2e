// Package serial opens and configures Linux serial ports for the
// toolkit. Ports are configured raw and byte-transparent; only baud
// rate, data bits, parity and stop bits are interpreted, everything
// else passes through untouched.
package serial

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sertcp/sertcp-go/pkg/relay"
)

// Parity is the parity mode of a serial line.
type Parity byte

const (
	ParityNone  Parity = 'N'
	ParityEven  Parity = 'E'
	ParityOdd   Parity = 'O'
	ParityMark  Parity = 'M'
	ParitySpace Parity = 'S'
)

// CMSPAR enables mark/space ("stick") parity. Not exported by x/sys on
// every architecture, so it is defined here.
const cmspar = 0x40000000

// Config holds the parameters for opening a serial port.
type Config struct {
	// Device is the port path, e.g. /dev/ttyUSB0.
	Device string

	// Baud is the line speed (default 9600).
	Baud int

	// DataBits is the character size, 5-8 (default 8).
	DataBits int

	// Parity is one of N, E, O, M, S (default N).
	Parity Parity

	// StopBits is 1, 1.5 or 2 (default 1). Linux termios cannot
	// express 1.5 stop bits; it is applied as 2.
	StopBits float64

	// ReadTimeout bounds a single blocking read (default 1s).
	ReadTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == 0 {
		c.Parity = ParityNone
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = time.Second
	}
}

var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// Validate checks the configuration without opening anything.
func (c Config) Validate() error {
	c.applyDefaults()
	if c.Device == "" {
		return errors.New("device path is required")
	}
	if _, ok := baudRates[c.Baud]; !ok {
		return fmt.Errorf("unsupported baud rate %d", c.Baud)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("data bits must be 5-8, got %d", c.DataBits)
	}
	switch c.Parity {
	case ParityNone, ParityEven, ParityOdd, ParityMark, ParitySpace:
	default:
		return fmt.Errorf("unknown parity %q", string(c.Parity))
	}
	switch c.StopBits {
	case 1, 1.5, 2:
	default:
		return fmt.Errorf("stop bits must be 1, 1.5 or 2, got %v", c.StopBits)
	}
	return nil
}

// Port is an exclusively-owned open serial port.
type Port struct {
	file      *os.File
	fd        int
	cfg       Config
	ep        *relay.FileEndpoint
	closeOnce sync.Once
}

// Open opens the device and applies the line configuration.
func Open(cfg Config) (*Port, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	if err := configure(fd, cfg); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", cfg.Device, err)
	}

	// Back to blocking mode now that configuration is done; reads are
	// multiplexed with poll, never left to block indefinitely.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set blocking %s: %w", cfg.Device, err)
	}

	file := os.NewFile(uintptr(fd), cfg.Device)
	return &Port{
		file: file,
		fd:   fd,
		cfg:  cfg,
		ep:   relay.NewFileEndpoint(file, cfg.Device),
	}, nil
}

// configure applies raw mode and the line parameters via termios.
func configure(fd int, cfg Config) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag |= unix.CREAD | unix.CLOCAL

	// Baud rate
	baud := baudRates[cfg.Baud]
	t.Cflag &^= unix.CBAUD
	t.Cflag |= baud
	t.Ispeed = baud
	t.Ospeed = baud

	// Character size
	t.Cflag &^= unix.CSIZE
	switch cfg.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	case 8:
		t.Cflag |= unix.CS8
	}

	// Parity
	t.Cflag &^= unix.PARENB | unix.PARODD | cmspar
	t.Iflag &^= unix.INPCK
	switch cfg.Parity {
	case ParityNone:
	case ParityEven:
		t.Cflag |= unix.PARENB
		t.Iflag |= unix.INPCK
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
		t.Iflag |= unix.INPCK
	case ParityMark:
		t.Cflag |= unix.PARENB | cmspar | unix.PARODD
		t.Iflag |= unix.INPCK
	case ParitySpace:
		t.Cflag |= unix.PARENB | cmspar
		t.Iflag |= unix.INPCK
	}

	// Stop bits. 1.5 is not representable; CSTOPB means 2.
	if cfg.StopBits > 1 {
		t.Cflag |= unix.CSTOPB
	} else {
		t.Cflag &^= unix.CSTOPB
	}

	// Immediate reads; readiness handled by poll.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// Endpoint returns the port as a relay endpoint.
func (p *Port) Endpoint() *relay.FileEndpoint {
	return p.ep
}

// File returns the underlying file.
func (p *Port) File() *os.File {
	return p.file
}

// Device returns the port path.
func (p *Port) Device() string {
	return p.cfg.Device
}

// Read reads from the port, blocking at most the configured ReadTimeout.
// Returns relay.ErrTimeout when no data arrived in time.
func (p *Port) Read(buf []byte) (int, error) {
	return p.Endpoint().ReadChunk(buf, p.cfg.ReadTimeout)
}

// Write writes to the port.
func (p *Port) Write(buf []byte) (int, error) {
	return p.file.Write(buf)
}

// Close releases the port. Safe to call multiple times.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.file.Close()
	})
	return err
}
