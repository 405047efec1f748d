package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// BridgeServiceType is the mDNS service type oink bridges announce
	BridgeServiceType = "_oink._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 3 * time.Second

	// ReceiverKey is the TXT record key holding the bridged receiver address
	ReceiverKey = "receiver"
)

// Bridge is an oink HTTP bridge found through mDNS
type Bridge struct {
	// Instance is the announced instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "livingroom.local.")
	Hostname string

	// IP is the bridge address, IPv4 preferred
	IP string

	// Port is the HTTP port
	Port int

	// Receiver is the host:port of the receiver the bridge controls
	Receiver string

	// Metadata contains the remaining TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("oink bridge %s at %s:%d (receiver %s)", b.Instance, b.IP, b.Port, b.Receiver)
}

// BaseURL returns the HTTP base URL for the bridge
func (b *Bridge) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", b.IP, b.Port)
}

// Announcement is a running mDNS registration
type Announcement struct {
	server *zeroconf.Server
}

// Shutdown withdraws the announcement
func (a *Announcement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Announce registers a bridge serving HTTP on port. receiver is stored in
// the TXT record; extra entries are "key=value" strings.
func Announce(instance string, port int, receiver string, extra ...string) (*Announcement, error) {
	txt := append([]string{ReceiverKey + "=" + receiver}, extra...)

	server, err := zeroconf.Register(instance, BridgeServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Announcement{server: server}, nil
}

// BridgeScanner browses mDNS for oink bridges
type BridgeScanner struct {
	// Timeout is the maximum time to wait for bridge discovery
	Timeout time.Duration
}

// NewBridgeScanner creates a new mDNS scanner with default settings
func NewBridgeScanner() *BridgeScanner {
	return &BridgeScanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForBridges collects every bridge that answers before the timeout
func (s *BridgeScanner) ScanForBridges(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	bridges := make([]*Bridge, 0)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var mu sync.Mutex
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for entry := range entries {
			if bridge := s.parseServiceEntry(entry); bridge != nil {
				mu.Lock()
				bridges = append(bridges, bridge)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, BridgeServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	// The resolver closes entries once browsing stops
	select {
	case <-collected:
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Bridge(nil), bridges...), nil
}

// WaitForBridge waits for the bridge announced as instance
func (s *BridgeScanner) WaitForBridge(ctx context.Context, instance string) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Bridge, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			bridge := s.parseServiceEntry(entry)
			if bridge != nil && bridge.Instance == instance {
				found <- bridge
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, BridgeServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case bridge := <-found:
		return bridge, nil
	case <-ctx.Done():
		select {
		case bridge := <-found:
			return bridge, nil
		default:
		}
		return nil, fmt.Errorf("bridge %q not found within timeout", instance)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Bridge.
// Returns nil for entries without an instance name or address.
func (s *BridgeScanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
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

	receiver := metadata[ReceiverKey]
	delete(metadata, ReceiverKey)

	return &Bridge{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Receiver:     receiver,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForBridges is a convenience function to scan with a custom timeout
func ScanForBridges(ctx context.Context, timeout time.Duration) ([]*Bridge, error) {
	scanner := NewBridgeScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.ScanForBridges(ctx)
}
