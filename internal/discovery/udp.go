package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/protocol"
)

// DefaultTimeLimit is how long Discover waits for responses
const DefaultTimeLimit = 1 * time.Second

const maxDatagramSize = 1024

// Options bound a discovery run
type Options struct {
	// DeviceLimit stops discovery once this many responses arrived (0 = no limit)
	DeviceLimit int

	// TimeLimit stops discovery this long after the queries were sent
	TimeLimit time.Duration

	// SkipInvalid ignores responses that fail to decode instead of failing
	SkipInvalid bool
}

// TransportError reports a socket failure during discovery
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying socket error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ListenFunc opens the socket discovery sends from and reads on
type ListenFunc func() (net.PacketConn, error)

// Scanner broadcasts eISCP discovery queries and collects the answers
type Scanner struct {
	// Listen opens the socket; defaults to an ephemeral UDP4 port
	Listen ListenFunc

	// Target is where queries are sent; defaults to 255.255.255.255:60128
	Target *net.UDPAddr

	// Decoder decodes responses
	Decoder protocol.Decoder
}

// NewScanner creates a scanner that broadcasts on the local network
func NewScanner() *Scanner {
	return &Scanner{
		Listen: listenBroadcast,
		Target: &net.UDPAddr{IP: net.IPv4bcast, Port: protocol.DiscoveryPort},
	}
}

// listenBroadcast binds an ephemeral UDP4 port. The Go runtime enables
// SO_BROADCAST on every datagram socket it creates.
func listenBroadcast() (net.PacketConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
}

// Discover runs a discovery with a default scanner
func Discover(ctx context.Context, opts Options) ([]*DiscoveredDevice, error) {
	return NewScanner().Discover(ctx, opts)
}

// Discover sends both discovery queries and collects responses in arrival
// order until opts.DeviceLimit responses arrived or opts.TimeLimit passed.
//
// Reaching the time limit is not an error; the result may be empty. Socket
// failures return a *TransportError and discard what was collected.
// Cancelling ctx returns ctx.Err().
func (s *Scanner) Discover(ctx context.Context, opts Options) ([]*DiscoveredDevice, error) {
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = DefaultTimeLimit
	}
	listen := s.Listen
	if listen == nil {
		listen = listenBroadcast
	}
	target := s.Target
	if target == nil {
		target = &net.UDPAddr{IP: net.IPv4bcast, Port: protocol.DiscoveryPort}
	}

	conn, err := listen()
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	defer func() { _ = conn.Close() }()

	logging.Debug("Starting eISCP discovery",
		zap.String("target", target.String()),
		zap.Int("device_limit", opts.DeviceLimit),
		zap.Duration("time_limit", opts.TimeLimit),
	)

	for _, query := range protocol.DiscoveryPackets() {
		if _, err := conn.WriteTo(query, target); err != nil {
			return nil, &TransportError{Op: "send", Err: err}
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(opts.TimeLimit)); err != nil {
		return nil, &TransportError{Op: "deadline", Err: err}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	devices := make([]*DiscoveredDevice, 0)
	buf := make([]byte, maxDatagramSize)

	for opts.DeviceLimit <= 0 || len(devices) < opts.DeviceLimit {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return nil, &TransportError{Op: "receive", Err: err}
		}

		address := hostOf(addr)
		dev, err := parseResponse(s.Decoder, buf[:n], address)
		if err != nil {
			if opts.SkipInvalid {
				logging.Debug("Ignoring invalid discovery response",
					zap.String("address", address),
					zap.Error(err),
				)
				logging.LogRawBytes("Invalid discovery response", buf[:n])
				continue
			}
			return nil, err
		}

		logging.Debug("Discovered receiver",
			zap.String("address", dev.Address),
			zap.String("model", dev.Model),
			zap.String("identifier", dev.Identifier),
		)
		devices = append(devices, dev)
	}

	return devices, nil
}

func hostOf(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
