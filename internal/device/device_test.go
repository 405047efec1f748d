package device

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsdavidson/oink/internal/protocol"
)

// receiverFrame encodes p the way receivers send it: EOF byte then CRLF
func receiverFrame(p protocol.Packet) []byte {
	data := "!" + p.DeviceType + p.Command + p.Parameter + "\x1a\r\n"
	buf := make([]byte, protocol.HeaderSize+len(data))
	copy(buf, protocol.Magic)
	binary.BigEndian.PutUint32(buf[4:], protocol.HeaderSize)
	binary.BigEndian.PutUint32(buf[8:], uint32(len(data)))
	buf[12] = protocol.Version
	copy(buf[protocol.HeaderSize:], data)
	return buf
}

// pipeDialer hands out the client end of a net.Pipe per dial
type pipeDialer struct {
	servers chan net.Conn
	calls   int32
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{servers: make(chan net.Conn, 4)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	atomic.AddInt32(&d.calls, 1)
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

// blockingDialer ignores ctx and waits for release before returning
type blockingDialer struct {
	release chan struct{}
	calls   int32
	conn    net.Conn
	err     error
}

func (d *blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	atomic.AddInt32(&d.calls, 1)
	<-d.release
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type errDialer struct {
	err error
}

func (d errDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, d.err
}

type countingConn struct {
	net.Conn
	closes int32
}

func (c *countingConn) Close() error {
	atomic.AddInt32(&c.closes, 1)
	return c.Conn.Close()
}

// fakeReceiver is the far end of a device connection
type fakeReceiver struct {
	conn    net.Conn
	packets chan protocol.Packet
}

func newFakeReceiver(conn net.Conn) *fakeReceiver {
	f := &fakeReceiver{conn: conn, packets: make(chan protocol.Packet, 16)}
	go func() {
		r := protocol.NewReassembler(protocol.Decoder{})
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if p, _ := r.Feed(buf[:n]); p != nil {
					f.packets <- *p
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return f
}

func (f *fakeReceiver) expect(t *testing.T, command string) protocol.Packet {
	t.Helper()
	select {
	case p := <-f.packets:
		if p.Command != command {
			t.Fatalf("receiver got %s, want %s", p.Command, command)
		}
		return p
	case <-time.After(time.Second):
		t.Fatalf("receiver did not get %s", command)
		return protocol.Packet{}
	}
}

func (f *fakeReceiver) reply(t *testing.T, p protocol.Packet) {
	t.Helper()
	if _, err := f.conn.Write(receiverFrame(p)); err != nil {
		t.Fatalf("receiver write: %v", err)
	}
}

func connectedDevice(t *testing.T, opts ...Option) (*Device, *fakeReceiver) {
	t.Helper()

	dialer := newPipeDialer()
	opts = append([]Option{WithDialer(dialer)}, opts...)
	dev := New("192.168.1.20", protocol.DiscoveryPort, "1", opts...)

	if err := dev.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	server := <-dialer.servers
	t.Cleanup(func() {
		_ = dev.Close()
		_ = server.Close()
	})
	return dev, newFakeReceiver(server)
}

type sendResult struct {
	packet protocol.Packet
	err    error
}

func sendAsync(dev *Device, p protocol.Packet, timeout time.Duration) <-chan sendResult {
	ch := make(chan sendResult, 1)
	go func() {
		resp, err := dev.Send(context.Background(), p, timeout)
		ch <- sendResult{resp, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan sendResult) sendResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("send did not complete")
		return sendResult{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	dev := New("1.2.3.4", 60128, "1")

	if dev.Address != "1.2.3.4" || dev.Port != 60128 || dev.Type != "1" {
		t.Errorf("New() = %s:%d type %s", dev.Address, dev.Port, dev.Type)
	}
	if dev.Connected() {
		t.Error("new device should not be connected")
	}
	if dev.connectTimeout != DefaultConnectTimeout {
		t.Errorf("connectTimeout = %v, want %v", dev.connectTimeout, DefaultConnectTimeout)
	}
	if dev.String() != "1.2.3.4:60128" {
		t.Errorf("String() = %q", dev.String())
	}
}

func TestConnect_Success(t *testing.T) {
	dev, _ := connectedDevice(t)

	if !dev.Connected() {
		t.Error("Connected() = false after Connect")
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	dialer := newPipeDialer()
	dev := New("1.2.3.4", 60128, "1", WithDialer(dialer))
	defer dev.Close()

	for i := 0; i < 3; i++ {
		if err := dev.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() #%d error = %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&dialer.calls); calls != 1 {
		t.Errorf("dial calls = %d, want 1", calls)
	}
}

func TestConnect_ConcurrentCallersShareAttempt(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	dialer := &blockingDialer{release: make(chan struct{}), conn: client}
	dev := New("1.2.3.4", 60128, "1", WithDialer(dialer), WithConnectTimeout(5*time.Second))
	defer dev.Close()

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- dev.Connect(context.Background())
		}()
	}

	waitFor(t, "dial to start", func() bool { return atomic.LoadInt32(&dialer.calls) == 1 })
	close(dialer.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Connect() error = %v", err)
		}
	}
	if calls := atomic.LoadInt32(&dialer.calls); calls != 1 {
		t.Errorf("dial calls = %d, want 1", calls)
	}
	if !dev.Connected() {
		t.Error("Connected() = false")
	}
}

func TestConnect_Error(t *testing.T) {
	dialErr := errors.New("connection refused")
	dev := New("1.2.3.4", 60128, "1", WithDialer(errDialer{err: dialErr}))

	err := dev.Connect(context.Background())
	if !errors.Is(err, ErrConnectFailed) {
		t.Errorf("error = %v, want ErrConnectFailed", err)
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("error = %v, should wrap the dial error", err)
	}
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Address != "1.2.3.4:60128" {
		t.Errorf("error = %#v, want *ConnectError for 1.2.3.4:60128", err)
	}
	if dev.Connected() {
		t.Error("Connected() = true after failed connect")
	}
}

func TestConnect_TimeoutClosesLateConnection(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	late := &countingConn{Conn: client}
	dialer := &blockingDialer{release: make(chan struct{}), conn: late}
	dev := New("1.2.3.4", 60128, "1", WithDialer(dialer), WithConnectTimeout(20*time.Millisecond))

	err := dev.Connect(context.Background())
	if !errors.Is(err, ErrConnectTimedOut) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimedOut", err)
	}
	if err.Error() != "connection timed out" {
		t.Errorf("error message = %q", err.Error())
	}
	if dev.Connected() {
		t.Error("Connected() = true after timeout")
	}

	close(dialer.release)
	waitFor(t, "late connection to close", func() bool { return atomic.LoadInt32(&late.closes) == 1 })
	time.Sleep(20 * time.Millisecond)
	if closes := atomic.LoadInt32(&late.closes); closes != 1 {
		t.Errorf("late connection closed %d times, want 1", closes)
	}
	if dev.Connected() {
		t.Error("late connection should not be adopted")
	}
}

func TestConnect_ContextCanceled(t *testing.T) {
	dialer := &blockingDialer{release: make(chan struct{}), err: errors.New("unused")}
	defer close(dialer.release)
	dev := New("1.2.3.4", 60128, "1", WithDialer(dialer), WithConnectTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := dev.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSend_NotConnected(t *testing.T) {
	dev := New("1.2.3.4", 60128, "1")

	_, err := dev.Query(context.Background(), "MVL", 0)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Query() error = %v, want ErrNotConnected", err)
	}
	if err.Error() != "device not connected" {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestSend_Correlation(t *testing.T) {
	dev, rx := connectedDevice(t)

	done := sendAsync(dev, protocol.NewQuery("MVL"), time.Second)

	query := rx.expect(t, "MVL")
	if query.Parameter != "QSTN" || query.DeviceType != "1" {
		t.Errorf("receiver got %+v, want MVL QSTN", query)
	}
	rx.reply(t, protocol.NewPacket("PWR", "01"))
	rx.reply(t, protocol.NewPacket("MVL", "2A"))

	res := waitResult(t, done)
	if res.err != nil {
		t.Fatalf("Send() error = %v", res.err)
	}
	want := protocol.Packet{Command: "MVL", Parameter: "2A", DeviceType: "1"}
	if res.packet != want {
		t.Errorf("Send() = %+v, want %+v", res.packet, want)
	}
}

func TestSend_OtherCommandsDoNotResolve(t *testing.T) {
	dev, rx := connectedDevice(t)

	mvl := sendAsync(dev, protocol.NewQuery("MVL"), time.Second)
	rx.expect(t, "MVL")
	pwr := sendAsync(dev, protocol.NewQuery("PWR"), time.Second)
	rx.expect(t, "PWR")

	rx.reply(t, protocol.NewPacket("PWR", "01"))
	rx.reply(t, protocol.NewPacket("MVL", "10"))

	if res := waitResult(t, pwr); res.err != nil || res.packet.Parameter != "01" {
		t.Errorf("PWR send = %+v, %v; want 01", res.packet, res.err)
	}
	if res := waitResult(t, mvl); res.err != nil || res.packet.Parameter != "10" {
		t.Errorf("MVL send = %+v, %v; want 10", res.packet, res.err)
	}
}

func TestSend_SameCommandFIFO(t *testing.T) {
	dev, rx := connectedDevice(t)

	first := sendAsync(dev, protocol.NewPacket("MVL", "UP"), time.Second)
	rx.expect(t, "MVL")
	second := sendAsync(dev, protocol.NewPacket("MVL", "UP"), time.Second)
	rx.expect(t, "MVL")

	rx.reply(t, protocol.NewPacket("MVL", "11"))
	rx.reply(t, protocol.NewPacket("MVL", "12"))

	if res := waitResult(t, first); res.err != nil || res.packet.Parameter != "11" {
		t.Errorf("first send = %+v, %v; want 11", res.packet, res.err)
	}
	if res := waitResult(t, second); res.err != nil || res.packet.Parameter != "12" {
		t.Errorf("second send = %+v, %v; want 12", res.packet, res.err)
	}
}

func TestSend_TimeoutIgnoresLatePacket(t *testing.T) {
	dev, rx := connectedDevice(t)

	seen := make(chan protocol.Packet, 4)
	unsubscribe := dev.Subscribe(func(p protocol.Packet) { seen <- p })
	defer unsubscribe()

	res := waitResult(t, sendAsync(dev, protocol.NewQuery("MVL"), 30*time.Millisecond))
	if !errors.Is(res.err, ErrCommandTimedOut) {
		t.Fatalf("Send() error = %v, want ErrCommandTimedOut", res.err)
	}
	if res.err.Error() != "command timed out" {
		t.Errorf("error message = %q", res.err.Error())
	}
	rx.expect(t, "MVL")

	// The late response reaches subscribers only
	rx.reply(t, protocol.NewPacket("MVL", "01"))
	select {
	case p := <-seen:
		if p.Parameter != "01" {
			t.Errorf("subscriber got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("late packet was not dispatched")
	}

	// The connection is still usable and the next send gets its own response
	next := sendAsync(dev, protocol.NewQuery("MVL"), time.Second)
	rx.expect(t, "MVL")
	rx.reply(t, protocol.NewPacket("MVL", "02"))
	if res := waitResult(t, next); res.err != nil || res.packet.Parameter != "02" {
		t.Errorf("next send = %+v, %v; want 02", res.packet, res.err)
	}
}

func TestSend_DefaultTimeout(t *testing.T) {
	dev, rx := connectedDevice(t)

	start := time.Now()
	res := waitResult(t, sendAsync(dev, protocol.NewQuery("PWR"), 0))
	rx.expect(t, "PWR")

	if !errors.Is(res.err, ErrCommandTimedOut) {
		t.Fatalf("Send() error = %v, want ErrCommandTimedOut", res.err)
	}
	if elapsed := time.Since(start); elapsed < DefaultCommandTimeout-50*time.Millisecond {
		t.Errorf("timed out after %v, want about %v", elapsed, DefaultCommandTimeout)
	}
}

func TestSend_FragmentedResponse(t *testing.T) {
	dev, rx := connectedDevice(t)

	done := sendAsync(dev, protocol.NewQuery("MVL"), time.Second)
	rx.expect(t, "MVL")

	buf := []byte("ISCP\x00\x00\x00\x10\x00\x00\x00\x09\x01\x00\x00\x00!1MVL01\x1a\r")
	for _, chunk := range [][]byte{buf[:10], buf[10:20], buf[20:]} {
		if _, err := rx.conn.Write(chunk); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	}

	res := waitResult(t, done)
	if res.err != nil {
		t.Fatalf("Send() error = %v", res.err)
	}
	if res.packet.Parameter != "01" {
		t.Errorf("Parameter = %q, want 01", res.packet.Parameter)
	}
}

func TestSend_ResponseLineFeedInLaterRead(t *testing.T) {
	dev, rx := connectedDevice(t)

	done := sendAsync(dev, protocol.NewQuery("PWR"), time.Second)
	rx.expect(t, "PWR")

	// The data size counts the LF, which arrives after the CR
	buf := receiverFrame(protocol.NewPacket("PWR", "01"))
	for _, chunk := range [][]byte{buf[:len(buf)-1], buf[len(buf)-1:]} {
		if _, err := rx.conn.Write(chunk); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	}

	res := waitResult(t, done)
	if res.err != nil {
		t.Fatalf("Send() error = %v", res.err)
	}
	if res.packet.Parameter != "01" {
		t.Errorf("Parameter = %q, want 01", res.packet.Parameter)
	}
}

func TestDecodeErrorsAreSwallowed(t *testing.T) {
	decodeErrs := make(chan error, 1)
	dev, rx := connectedDevice(t, WithDecodeErrorHandler(func(err error) { decodeErrs <- err }))

	done := sendAsync(dev, protocol.NewQuery("MVL"), time.Second)
	rx.expect(t, "MVL")

	bad := receiverFrame(protocol.NewPacket("MVL", "99"))
	copy(bad[0:4], "XXXX")
	if _, err := rx.conn.Write(bad); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-decodeErrs:
		if !errors.Is(err, protocol.ErrMalformedFrame) {
			t.Errorf("handler got %v, want ErrMalformedFrame", err)
		}
	case <-time.After(time.Second):
		t.Fatal("decode error handler not called")
	}

	rx.reply(t, protocol.NewPacket("MVL", "20"))
	if res := waitResult(t, done); res.err != nil || res.packet.Parameter != "20" {
		t.Errorf("Send() = %+v, %v; want 20", res.packet, res.err)
	}
}

func TestClose_FailsPendingSends(t *testing.T) {
	dev, rx := connectedDevice(t)

	done := sendAsync(dev, protocol.NewQuery("MVL"), 5*time.Second)
	rx.expect(t, "MVL")

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if res := waitResult(t, done); !errors.Is(res.err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", res.err)
	}
	if dev.Connected() {
		t.Error("Connected() = true after Close")
	}
	if err := dev.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRemoteClose(t *testing.T) {
	dev, rx := connectedDevice(t)

	done := sendAsync(dev, protocol.NewQuery("MVL"), 5*time.Second)
	rx.expect(t, "MVL")
	_ = rx.conn.Close()

	if res := waitResult(t, done); !errors.Is(res.err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", res.err)
	}
	waitFor(t, "disconnect", func() bool { return !dev.Connected() })
}

func TestSubscribe(t *testing.T) {
	dev, rx := connectedDevice(t)

	var mu sync.Mutex
	var got []string
	unsubscribe := dev.Subscribe(func(p protocol.Packet) {
		mu.Lock()
		got = append(got, p.Command+p.Parameter)
		mu.Unlock()
	})

	rx.reply(t, protocol.NewPacket("PWR", "01"))
	rx.reply(t, protocol.NewPacket("AMT", "00"))
	waitFor(t, "two packets", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	unsubscribe()
	unsubscribe()
	rx.reply(t, protocol.NewPacket("MVL", "01"))

	// A send round trip proves the MVL packet was dispatched
	done := sendAsync(dev, protocol.NewQuery("SLI"), time.Second)
	rx.expect(t, "SLI")
	rx.reply(t, protocol.NewPacket("SLI", "10"))
	waitResult(t, done)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "PWR01" || got[1] != "AMT00" {
		t.Errorf("subscriber got %v, want [PWR01 AMT00]", got)
	}
}
