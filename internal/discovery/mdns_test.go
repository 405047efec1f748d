package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func bridgeEntry(instance, host string, port int, v4, v6 []net.IP, text ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, BridgeServiceType, ServiceDomain)
	entry.HostName = host
	entry.Port = port
	entry.AddrIPv4 = v4
	entry.AddrIPv6 = v6
	entry.Text = text
	return entry
}

func TestBridgeScanner_parseServiceEntry(t *testing.T) {
	scanner := NewBridgeScanner()

	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantIP       string
		wantPort     int
		wantReceiver string
	}{
		{
			name: "bridge with IPv4",
			entry: bridgeEntry("livingroom", "pi.local.", 8080,
				[]net.IP{net.ParseIP("192.168.1.10")}, nil,
				"receiver=192.168.1.20:60128", "version=1.0.0"),
			wantIP:       "192.168.1.10",
			wantPort:     8080,
			wantReceiver: "192.168.1.20:60128",
		},
		{
			name: "IPv6 only bridge",
			entry: bridgeEntry("den", "den.local.", 8080,
				nil, []net.IP{net.ParseIP("fe80::1")},
				"receiver=10.0.0.9:60128"),
			wantIP:       "fe80::1",
			wantPort:     8080,
			wantReceiver: "10.0.0.9:60128",
		},
		{
			name: "prefers IPv4",
			entry: bridgeEntry("office", "office.local.", 9000,
				[]net.IP{net.ParseIP("10.0.0.5")}, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:   "10.0.0.5",
			wantPort: 9000,
		},
		{
			name:    "no address",
			entry:   bridgeEntry("ghost", "ghost.local.", 8080, nil, nil),
			wantNil: true,
		},
		{
			name:    "no instance",
			entry:   bridgeEntry("", "anon.local.", 8080, []net.IP{net.ParseIP("10.0.0.5")}, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if bridge != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", bridge)
				}
				return
			}
			if bridge == nil {
				t.Fatal("parseServiceEntry() = nil, want bridge")
			}

			if bridge.IP != tt.wantIP {
				t.Errorf("bridge.IP = %v, want %v", bridge.IP, tt.wantIP)
			}
			if bridge.Port != tt.wantPort {
				t.Errorf("bridge.Port = %v, want %v", bridge.Port, tt.wantPort)
			}
			if bridge.Receiver != tt.wantReceiver {
				t.Errorf("bridge.Receiver = %q, want %q", bridge.Receiver, tt.wantReceiver)
			}
			if bridge.Instance != tt.entry.Instance {
				t.Errorf("bridge.Instance = %q, want %q", bridge.Instance, tt.entry.Instance)
			}
			if time.Since(bridge.DiscoveredAt) > time.Second {
				t.Errorf("bridge.DiscoveredAt is not recent: %v", bridge.DiscoveredAt)
			}
		})
	}
}

func TestBridgeScanner_parseServiceEntry_Metadata(t *testing.T) {
	scanner := NewBridgeScanner()

	entry := bridgeEntry("livingroom", "pi.local.", 8080,
		[]net.IP{net.ParseIP("192.168.1.10")}, nil,
		"receiver=192.168.1.20:60128", "version=1.0.0", "flag")

	bridge := scanner.parseServiceEntry(entry)
	if bridge == nil {
		t.Fatal("parseServiceEntry() = nil, want bridge")
	}

	expected := map[string]string{
		"version": "1.0.0",
		"flag":    "",
	}
	if len(bridge.Metadata) != len(expected) {
		t.Errorf("bridge.Metadata has %d entries, want %d", len(bridge.Metadata), len(expected))
	}
	for key, want := range expected {
		if got, ok := bridge.Metadata[key]; !ok {
			t.Errorf("bridge.Metadata missing key %q", key)
		} else if got != want {
			t.Errorf("bridge.Metadata[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestBridge_BaseURL(t *testing.T) {
	b := &Bridge{Instance: "den", IP: "10.0.0.5", Port: 8080, Receiver: "10.0.0.9:60128"}

	if got := b.BaseURL(); got != "http://10.0.0.5:8080" {
		t.Errorf("BaseURL() = %q", got)
	}
	if got := b.String(); got != "oink bridge den at 10.0.0.5:8080 (receiver 10.0.0.9:60128)" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewBridgeScanner(t *testing.T) {
	scanner := NewBridgeScanner()

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}
