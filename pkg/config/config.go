// Package config holds the typed configuration for the bridge, client
// and echo commands. All validation happens here, before any device or
// network resource is acquired.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sertcp/sertcp-go/pkg/serial"
)

// ErrInvalidConfig indicates a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Bridge configures a bridge process.
type Bridge struct {
	// Device is the physical serial device path.
	Device string `yaml:"device"`

	// Baud is the serial line speed.
	Baud int `yaml:"baud"`

	// DataBits per character (5-8).
	DataBits int `yaml:"databits"`

	// Parity is one of N, E, O, M, S.
	Parity string `yaml:"parity"`

	// StopBits is 1, 1.5 or 2.
	StopBits float64 `yaml:"stopbits"`

	// Timeout bounds a blocking serial read.
	Timeout Duration `yaml:"timeout"`

	// Port to listen on.
	Port int `yaml:"port"`

	// Host to bind (empty binds all interfaces).
	Host string `yaml:"host"`

	// MaxClients bounds concurrent connections.
	MaxClients int `yaml:"max-clients"`

	// LogFile receives the binary event log (optional).
	LogFile string `yaml:"log-file"`

	// MDNS advertises the bridge via multicast DNS.
	MDNS bool `yaml:"mdns"`

	// Name is the mDNS instance name (defaults to the hostname).
	Name string `yaml:"name"`
}

// DefaultBridge returns a bridge configuration with the standard
// serial defaults (9600 8N1, 1s timeout).
func DefaultBridge() Bridge {
	return Bridge{
		Baud:       9600,
		DataBits:   8,
		Parity:     "N",
		StopBits:   1,
		Timeout:    Duration(time.Second),
		Port:       4000,
		MaxClients: 10,
	}
}

// LoadBridgeFile reads a YAML bridge configuration. Unknown keys are
// rejected so typos surface at startup instead of being ignored.
func LoadBridgeFile(path string) (Bridge, error) {
	cfg := DefaultBridge()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: open config file: %v", ErrInvalidConfig, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate checks the bridge configuration.
func (b Bridge) Validate() error {
	if b.Device == "" {
		return fmt.Errorf("%w: device path is required", ErrInvalidConfig)
	}
	if b.Port < 1 || b.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, b.Port)
	}
	if b.MaxClients < 1 {
		return fmt.Errorf("%w: max-clients must be at least 1, got %d", ErrInvalidConfig, b.MaxClients)
	}
	if err := b.Serial().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Address returns the listen address.
func (b Bridge) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// Serial returns the serial endpoint configuration.
func (b Bridge) Serial() serial.Config {
	var parity serial.Parity
	if b.Parity != "" {
		parity = serial.Parity(b.Parity[0])
	}
	return serial.Config{
		Device:      b.Device,
		Baud:        b.Baud,
		DataBits:    b.DataBits,
		Parity:      parity,
		StopBits:    b.StopBits,
		ReadTimeout: time.Duration(b.Timeout),
	}
}

// Client configures a client process.
type Client struct {
	// Address of the remote bridge ("host:port").
	Address string

	// DevicePath is where the virtual device symlink is published
	// (optional).
	DevicePath string

	// Discover finds a bridge via mDNS instead of a fixed address.
	Discover bool

	// LogFile receives the binary event log (optional).
	LogFile string
}

// Validate checks the client configuration.
func (c Client) Validate() error {
	if c.Discover {
		if c.Address != "" {
			return fmt.Errorf("%w: address and discovery are mutually exclusive", ErrInvalidConfig)
		}
		return nil
	}
	if c.Address == "" {
		return fmt.Errorf("%w: bridge address is required", ErrInvalidConfig)
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("%w: address must be host:port, got %q", ErrInvalidConfig, c.Address)
	}
	return nil
}

// Echo configures an echo process.
type Echo struct {
	// DevicePath is where the virtual device symlink is published.
	DevicePath string

	// Baud is the rate reported to users. The device is a pty, so it
	// carries no timing weight.
	Baud int

	// LogFile receives the binary event log (optional).
	LogFile string
}

// Validate checks the echo configuration.
func (e Echo) Validate() error {
	if e.DevicePath == "" {
		return fmt.Errorf("%w: device path is required", ErrInvalidConfig)
	}
	if e.Baud <= 0 {
		return fmt.Errorf("%w: baud must be positive, got %d", ErrInvalidConfig, e.Baud)
	}
	return nil
}
