package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Relay is a wsrelay server found on the network
type Relay struct {
	// Instance is the advertised service instance name (e.g., "wsrelay")
	Instance string

	// Hostname is the mDNS hostname (e.g., "chatbox.local.")
	Hostname string

	// IP is the preferred address (IPv4 when available)
	IP string

	// Port is the listening port
	Port int

	// Path is the WebSocket endpoint path from the TXT record
	Path string

	// Scheme is "ws" or "wss"
	Scheme string

	// Metadata contains all TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the relay was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the relay
func (r *Relay) String() string {
	return fmt.Sprintf("%s (%s) at %s", r.Instance, r.Hostname, r.URL())
}

// URL returns the WebSocket URL of the relay
func (r *Relay) URL() string {
	u := url.URL{
		Scheme: r.Scheme,
		Host:   net.JoinHostPort(r.IP, strconv.Itoa(r.Port)),
		Path:   r.Path,
	}
	return u.String()
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (r *Relay) GetMetadata(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}
