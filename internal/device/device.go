package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/protocol"
)

const (
	// DefaultConnectTimeout bounds the TCP connect
	DefaultConnectTimeout = 1 * time.Second

	// DefaultCommandTimeout is used by Send when the timeout is not positive
	DefaultCommandTimeout = 1 * time.Second

	readBufferSize = 256
)

// Dialer opens the TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Option configures a Device
type Option func(*Device)

// WithDialer replaces the default net.Dialer
func WithDialer(dialer Dialer) Option {
	return func(d *Device) {
		d.dialer = dialer
	}
}

// WithConnectTimeout sets how long Connect waits for the TCP handshake
func WithConnectTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		if timeout > 0 {
			d.connectTimeout = timeout
		}
	}
}

// WithDecoder sets the decoder used for inbound packets
func WithDecoder(decoder protocol.Decoder) Option {
	return func(d *Device) {
		d.decoder = decoder
	}
}

// WithDecodeErrorHandler registers fn to receive inbound frames that failed
// to decode. The frame is dropped either way.
func WithDecodeErrorHandler(fn func(error)) Option {
	return func(d *Device) {
		d.onDecodeError = fn
	}
}

type listener struct {
	ch chan protocol.Packet
}

type dialResult struct {
	conn net.Conn
	err  error
}

// Device is a receiver reachable at Address:Port.
//
// All methods are safe for concurrent use.
type Device struct {
	Address string
	Port    int
	Type    string

	dialer         Dialer
	connectTimeout time.Duration
	decoder        protocol.Decoder
	onDecodeError  func(error)

	connectGroup singleflight.Group

	mu          sync.Mutex
	conn        net.Conn
	listeners   map[string][]*listener
	subscribers map[uint64]func(protocol.Packet)
	nextSubID   uint64
}

// New creates an unconnected device
func New(address string, port int, deviceType string, opts ...Option) *Device {
	d := &Device{
		Address:        address,
		Port:           port,
		Type:           deviceType,
		dialer:         &net.Dialer{},
		connectTimeout: DefaultConnectTimeout,
		listeners:      make(map[string][]*listener),
		subscribers:    make(map[uint64]func(protocol.Packet)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// String returns host:port
func (d *Device) String() string {
	return d.hostPort()
}

func (d *Device) hostPort() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// Connected reports whether a connection is open
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Connect opens the TCP connection.
//
// It returns nil at once when already connected. Concurrent callers share a
// single attempt and all observe its outcome. ctx only bounds the caller's
// wait; the shared attempt is bounded by the connect timeout.
func (d *Device) Connect(ctx context.Context) error {
	if d.Connected() {
		return nil
	}

	ch := d.connectGroup.DoChan("connect", func() (interface{}, error) {
		return nil, d.connect()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) connect() error {
	if d.Connected() {
		return nil
	}

	addr := d.hostPort()
	logging.Debug("Connecting to receiver", zap.String("address", addr))

	dialCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan dialResult, 1)
	go func() {
		conn, err := d.dialer.DialContext(dialCtx, "tcp", addr)
		results <- dialResult{conn: conn, err: err}
	}()

	timer := time.NewTimer(d.connectTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			logging.Debug("Connect failed", zap.String("address", addr), zap.Error(res.err))
			return &ConnectError{Address: addr, Err: res.err}
		}
		d.attach(res.conn)
		logging.Debug("Connected to receiver", zap.String("address", addr))
		return nil

	case <-timer.C:
		// A dial that completes after the deadline must not leak its socket
		go func() {
			if res := <-results; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		logging.Debug("Connect timed out", zap.String("address", addr), zap.Duration("timeout", d.connectTimeout))
		return ErrConnectTimedOut
	}
}

func (d *Device) attach(conn net.Conn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	go d.readLoop(conn)
}

// readLoop owns the reassembler for the lifetime of conn
func (d *Device) readLoop(conn net.Conn) {
	r := protocol.NewReassembler(d.decoder)
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p, decodeErr := r.Feed(buf[:n])
			switch {
			case decodeErr != nil:
				logging.Debug("Dropping undecodable frame",
					zap.String("address", d.hostPort()),
					zap.Error(decodeErr),
				)
				logging.LogRawBytes("Undecodable chunk", buf[:n])
				if d.onDecodeError != nil {
					d.onDecodeError(decodeErr)
				}
			case p != nil:
				d.dispatch(*p)
			}
		}
		if err != nil {
			logging.Debug("Receiver connection ended", zap.String("address", d.hostPort()), zap.Error(err))
			d.detach(conn)
			return
		}
	}
}

// dispatch resolves the oldest listener for p.Command, then notifies subscribers
func (d *Device) dispatch(p protocol.Packet) {
	logging.LogPacket(d.hostPort(), "recv", p.Command, p.Parameter, p.DeviceType)

	d.mu.Lock()
	if queue := d.listeners[p.Command]; len(queue) > 0 {
		l := queue[0]
		if len(queue) == 1 {
			delete(d.listeners, p.Command)
		} else {
			d.listeners[p.Command] = queue[1:]
		}
		// Each listener is resolved at most once; the buffered send never blocks
		l.ch <- p
	}
	subs := make([]func(protocol.Packet), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// detach forgets conn if it is still current and fails pending sends
func (d *Device) detach(conn net.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != conn {
		return
	}
	d.conn = nil
	d.failListenersLocked()
}

func (d *Device) failListenersLocked() {
	for cmd, queue := range d.listeners {
		for _, l := range queue {
			close(l.ch)
		}
		delete(d.listeners, cmd)
	}
}

// removeListener reports whether l was still pending
func (d *Device) removeListener(command string, l *listener) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue := d.listeners[command]
	for i, candidate := range queue {
		if candidate != l {
			continue
		}
		queue = append(queue[:i:i], queue[i+1:]...)
		if len(queue) == 0 {
			delete(d.listeners, command)
		} else {
			d.listeners[command] = queue
		}
		return true
	}
	return false
}

// Send writes p and waits for the first inbound packet with the same command.
//
// A timeout that is not positive means DefaultCommandTimeout. The listener
// is registered before the write so a fast response cannot be missed.
func (d *Device) Send(ctx context.Context, p protocol.Packet, timeout time.Duration) (protocol.Packet, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	d.mu.Lock()
	conn := d.conn
	if conn == nil {
		d.mu.Unlock()
		return protocol.Packet{}, ErrNotConnected
	}
	l := &listener{ch: make(chan protocol.Packet, 1)}
	d.listeners[p.Command] = append(d.listeners[p.Command], l)
	d.mu.Unlock()

	logging.LogPacket(d.hostPort(), "send", p.Command, p.Parameter, p.DeviceType)
	if _, err := conn.Write(p.Bytes()); err != nil {
		d.removeListener(p.Command, l)
		return protocol.Packet{}, fmt.Errorf("write %s: %w", p.Command, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-l.ch:
		if !ok {
			return protocol.Packet{}, ErrClosed
		}
		return resp, nil
	case <-timer.C:
		return d.abandon(p.Command, l, ErrCommandTimedOut)
	case <-ctx.Done():
		return d.abandon(p.Command, l, ctx.Err())
	}
}

// abandon removes l after a timeout or cancellation. If a response or close
// won the race the listener is already gone and its outcome is returned.
func (d *Device) abandon(command string, l *listener, cause error) (protocol.Packet, error) {
	if d.removeListener(command, l) {
		logging.Debug("Abandoned pending command", zap.String("command", command), zap.Error(cause))
		return protocol.Packet{}, cause
	}
	resp, ok := <-l.ch
	if !ok {
		return protocol.Packet{}, ErrClosed
	}
	return resp, nil
}

// SendCommand sends command with parameter to the main unit
func (d *Device) SendCommand(ctx context.Context, command, parameter string, timeout time.Duration) (protocol.Packet, error) {
	return d.Send(ctx, protocol.NewPacket(command, parameter), timeout)
}

// Query sends command with the QSTN parameter
func (d *Device) Query(ctx context.Context, command string, timeout time.Duration) (protocol.Packet, error) {
	return d.SendCommand(ctx, command, protocol.QueryParameter, timeout)
}

// Subscribe calls fn for every inbound packet, including responses to sends.
// fn runs on the reader goroutine and must not block.
func (d *Device) Subscribe(fn func(protocol.Packet)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.subscribers[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, id)
			d.mu.Unlock()
		})
	}
}

// Close closes the connection. Pending sends fail with ErrClosed.
// Closing an unconnected device is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.failListenersLocked()
	d.mu.Unlock()

	if conn == nil {
		return nil
	}
	logging.Debug("Closing receiver connection", zap.String("address", d.hostPort()))
	return conn.Close()
}
