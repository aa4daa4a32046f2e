package vserial

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sertcp/sertcp-go/pkg/log"
)

// Device errors.
var (
	// ErrDeviceCreation indicates the pty pair could not be allocated.
	ErrDeviceCreation = errors.New("virtual device creation failed")

	// ErrInvalidPath indicates a requested publish path failed validation.
	ErrInvalidPath = errors.New("invalid device path")
)

// DefaultMode is the permission mode applied to the device unless
// overridden. The single-owner 0660 policy assumes a trusted local host.
const DefaultMode fs.FileMode = 0o660

// Options configures a virtual device.
type Options struct {
	// Path is the optional stable path to publish via symlink.
	// Empty means the kernel-assigned slave path is used directly.
	Path string

	// Mode is the permission mode for the device (default 0660).
	Mode fs.FileMode

	// AllowedRoots restricts where Path may live.
	// Empty means DefaultAllowedRoots().
	AllowedRoots []string

	// Logger receives device lifecycle events (optional).
	Logger log.Logger
}

// Device is an exclusively-owned pty pair, optionally published under a
// stable filesystem path.
type Device struct {
	master    *os.File
	slave     *os.File
	slavePath string
	linkPath  string

	logger    log.Logger
	closeOnce sync.Once
	closeErr  error
}

// Open allocates a pty pair, puts the slave into raw mode and, when a
// path is requested, atomically publishes it. A stale symlink at the
// requested path is replaced in the same rename; a regular file there is
// an error.
func Open(opts Options) (*Device, error) {
	if opts.Mode == 0 {
		opts.Mode = DefaultMode
	}
	if opts.Logger == nil {
		opts.Logger = log.NoopLogger{}
	}
	roots := opts.AllowedRoots
	if len(roots) == 0 {
		roots = DefaultAllowedRoots()
	}

	if opts.Path != "" {
		if err := validatePath(opts.Path, roots); err != nil {
			return nil, err
		}
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceCreation, err)
	}

	d := &Device{
		master:    master,
		slave:     slave,
		slavePath: slave.Name(),
		logger:    opts.Logger,
	}

	// Raw mode on the slave so local applications see a byte-transparent
	// device. The device still works without it, so errors are not fatal.
	if err := setRawMode(int(slave.Fd())); err != nil {
		d.logEvent(log.CategoryError, &log.ErrorEventData{
			Layer:   log.LayerDevice,
			Message: err.Error(),
			Context: "set raw mode",
		}, nil)
	}

	if err := os.Chmod(d.slavePath, opts.Mode); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("%w: chmod %s: %v", ErrDeviceCreation, d.slavePath, err)
	}

	if opts.Path != "" {
		if err := d.publish(opts.Path); err != nil {
			master.Close()
			slave.Close()
			return nil, err
		}
		d.linkPath = opts.Path
	}

	d.logEvent(log.CategoryState, nil, &log.StateChangeEvent{
		Entity:   log.StateEntityDevice,
		NewState: "OPEN",
	})
	return d, nil
}

// publish creates a uniquely-named temporary symlink next to the target
// and renames it over the target path. rename(2) is atomic, so a
// concurrent open sees either the previous link or the new one, never a
// missing or half-written entry.
func (d *Device) publish(target string) error {
	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink == 0 {
		return fmt.Errorf("%w: %q exists and is not a symlink", ErrInvalidPath, target)
	}

	tmp := fmt.Sprintf("%s.tmp.%s", target, uuid.NewString()[:8])
	if err := os.Symlink(d.slavePath, tmp); err != nil {
		return fmt.Errorf("%w: create temporary symlink: %v", ErrDeviceCreation, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: publish symlink: %v", ErrDeviceCreation, err)
	}
	return nil
}

// Master returns the master side of the pair. The bridge engine reads
// and writes the device through it.
func (d *Device) Master() *os.File {
	return d.master
}

// SlavePath returns the kernel-assigned slave path.
func (d *Device) SlavePath() string {
	return d.slavePath
}

// Path returns the published path if one was requested, else the slave
// path. This is the path local applications should open.
func (d *Device) Path() string {
	if d.linkPath != "" {
		return d.linkPath
	}
	return d.slavePath
}

// Close removes the published symlink (only while it still points at
// this device's slave) and releases the pty pair. Safe to call multiple
// times.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		if d.linkPath != "" {
			// Never delete a link some other process has replaced.
			if target, err := os.Readlink(d.linkPath); err == nil && target == d.slavePath {
				if err := os.Remove(d.linkPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
					d.closeErr = err
				}
			}
		}
		if err := d.master.Close(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
		if err := d.slave.Close(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
		d.logEvent(log.CategoryState, nil, &log.StateChangeEvent{
			Entity:   log.StateEntityDevice,
			OldState: "OPEN",
			NewState: "CLOSED",
		})
	})
	return d.closeErr
}

func (d *Device) logEvent(cat log.Category, errData *log.ErrorEventData, state *log.StateChangeEvent) {
	d.logger.Log(log.Event{
		Timestamp:   time.Now(),
		Layer:       log.LayerDevice,
		Category:    cat,
		DevicePath:  d.Path(),
		Error:       errData,
		StateChange: state,
	})
}

// setRawMode disables all input/output processing on the descriptor so
// the pair is transparent to arbitrary byte streams.
func setRawMode(fd int) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	termios.Iflag &^= unix.BRKINT | unix.ICRNL | unix.INPCK | unix.ISTRIP | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8
	termios.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN | unix.ISIG

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}
