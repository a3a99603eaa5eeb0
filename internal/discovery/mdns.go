package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/wsrelay/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the DNS-SD service type wsrelay servers advertise
	ServiceType = "_wsrelay._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for relay discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPath is assumed when a relay does not publish a path
	DefaultPath = "/websocket"
)

// TXT is the metadata published alongside the service.
type TXT struct {
	Path    string
	Secure  bool
	Version string
}

// Records renders the TXT records.
func (t TXT) Records() []string {
	scheme := "ws"
	if t.Secure {
		scheme = "wss"
	}
	path := t.Path
	if path == "" {
		path = DefaultPath
	}
	records := []string{"path=" + path, "scheme=" + scheme}
	if t.Version != "" {
		records = append(records, "version="+t.Version)
	}
	return records
}

// Advertisement is a running mDNS announcement.
type Advertisement struct {
	server   *zeroconf.Server
	instance string
	once     sync.Once
}

// Advertise announces a relay listening on port on all multicast interfaces.
func Advertise(instance string, port int, txt TXT) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt.Records(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising relay over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.Strings("txt", txt.Records()),
	)

	return &Advertisement{server: server, instance: instance}, nil
}

// Shutdown withdraws the announcement. Safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.once.Do(func() {
		a.server.Shutdown()
		logging.Info("Stopped mDNS advertisement", zap.String("instance", a.instance))
	})
}

// Scanner handles mDNS relay discovery
type Scanner struct {
	// Timeout is the maximum time to wait for relay discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers relays on the local network until the timeout elapses or
// ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context) ([]*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})

	var (
		mu     sync.Mutex
		relays []*Relay
		seen   = make(map[string]bool)
	)

	go func() {
		defer close(done)
		for entry := range entries {
			relay := parseServiceEntry(entry)
			if relay == nil {
				continue
			}
			key := relay.URL()
			mu.Lock()
			if !seen[key] {
				seen[key] = true
				relays = append(relays, relay)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once the browse context is done
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Relay(nil), relays...), nil
}

// First returns the first relay that answers, or an error on timeout.
func (s *Scanner) First(ctx context.Context) (*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Relay, 1)

	go func() {
		for entry := range entries {
			if relay := parseServiceEntry(entry); relay != nil {
				select {
				case found <- relay:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case relay := <-found:
		return relay, nil
	case <-ctx.Done():
		// A relay may have been delivered just as the context ended
		select {
		case relay := <-found:
			return relay, nil
		default:
		}
		return nil, fmt.Errorf("no relay found within %s", s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Relay.
// Returns nil if the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Relay {
	if entry == nil {
		return nil
	}

	// Prefer IPv4
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	path := metadata["path"]
	if path == "" {
		path = DefaultPath
	}
	scheme := metadata["scheme"]
	if scheme != "wss" {
		scheme = "ws"
	}

	return &Relay{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Path:         path,
		Scheme:       scheme,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
