package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// ErrNoBridgeFound indicates a browse that ended without results.
var ErrNoBridgeFound = errors.New("no bridge found")

// DefaultBrowseTimeout bounds a FindFirst call.
const DefaultBrowseTimeout = 10 * time.Second

// Service is one discovered bridge.
type Service struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Addresses are the resolved IP addresses.
	Addresses []string

	// Port is the bridge TCP port.
	Port int

	// Info is the decoded TXT payload.
	Info Info
}

// Address returns a dialable "host:port" for the service, preferring
// the first resolved address.
func (s *Service) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// BrowserConfig configures browse behavior.
type BrowserConfig struct {
	// Timeout bounds FindFirst (default 10 seconds).
	Timeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// Browser finds bridges on the local network.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Timeout <= 0 {
		config.Timeout = DefaultBrowseTimeout
	}
	return &Browser{config: config}
}

// Browse emits every bridge found until ctx is cancelled. The channel
// is closed when browsing stops.
func (b *Browser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go forwardEntries(ctx, entries, removed, out)
	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// forwardEntries turns resolver announcements into Services, one per
// instance name. Departures are drained but not reported; a bridge that
// vanished mid-browse is caught at dial time anyway. A closed removed
// channel is set to nil so its case stops being selectable.
func forwardEntries(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *Service) {
	defer close(out)
	seen := make(map[string]bool)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if seen[entry.Instance] {
				continue
			}
			seen[entry.Instance] = true
			select {
			case out <- entryToService(entry):
			case <-ctx.Done():
				return
			}

		case _, ok := <-removed:
			if !ok {
				removed = nil
			}

		case <-ctx.Done():
			return
		}
	}
}

// FindFirst returns the first bridge to answer, or ErrNoBridgeFound
// after the configured timeout.
func (b *Browser) FindFirst(ctx context.Context) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case svc, ok := <-results:
		if !ok {
			return nil, ErrNoBridgeFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNoBridgeFound
	}
}

func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func entryToService(entry *zeroconf.ServiceEntry) *Service {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Addresses:    addrs,
		Port:         entry.Port,
		Info:         DecodeTXT(entry.Text),
	}
}
