// Package discovery advertises running bridges on the local network via
// multicast DNS and lets clients find them without a configured address.
package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ServiceType is the mDNS service type for a bridge.
	ServiceType = "_sertcp._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// TXTVersion is the advertised TXT record schema version.
	TXTVersion = 1
)

// Info describes one advertised bridge.
type Info struct {
	// Name is the mDNS instance name.
	Name string

	// Port is the TCP port the bridge listens on.
	Port int

	// Device is the serial device path behind the bridge.
	Device string

	// Baud is the configured serial line speed.
	Baud int
}

// EncodeTXT renders the bridge info as mDNS TXT records.
func EncodeTXT(info Info) []string {
	return []string{
		fmt.Sprintf("v=%d", TXTVersion),
		"device=" + info.Device,
		fmt.Sprintf("baud=%d", info.Baud),
	}
}

// DecodeTXT parses TXT records back into bridge info. Unknown keys are
// ignored so newer bridges stay discoverable by older clients.
func DecodeTXT(records []string) Info {
	var info Info
	for _, r := range records {
		key, value, ok := strings.Cut(r, "=")
		if !ok {
			continue
		}
		switch key {
		case "device":
			info.Device = value
		case "baud":
			if baud, err := strconv.Atoi(value); err == nil {
				info.Baud = baud
			}
		}
	}
	return info
}
