package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestReassembler_Fragmented(t *testing.T) {
	buf := []byte("ISCP\x00\x00\x00\x10\x00\x00\x00\x09\x01\x00\x00\x00!1MVL01\x1a\r")
	r := NewReassembler(Decoder{})

	chunks := [][]byte{buf[:10], buf[10:20], buf[20:]}
	for i, chunk := range chunks[:2] {
		p, err := r.Feed(chunk)
		if p != nil || err != nil {
			t.Fatalf("Feed(chunk %d) = %v, %v; want nil, nil", i, p, err)
		}
	}
	if r.Buffered() != 20 {
		t.Errorf("Buffered() = %d, want 20", r.Buffered())
	}

	p, err := r.Feed(chunks[2])
	if err != nil {
		t.Fatalf("Feed(last) error = %v", err)
	}
	if p == nil {
		t.Fatal("Feed(last) returned no packet")
	}
	want := Packet{Command: "MVL", Parameter: "01", DeviceType: "1"}
	if *p != want {
		t.Errorf("packet = %+v, want %+v", *p, want)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d after packet, want 0", r.Buffered())
	}
}

func TestReassembler_ByteAtATime(t *testing.T) {
	buf := Encode(NewPacket("PWR", "01"))
	r := NewReassembler(Decoder{})

	var got *Packet
	for i := range buf {
		p, err := r.Feed(buf[i : i+1])
		if err != nil {
			t.Fatalf("Feed(byte %d) error = %v", i, err)
		}
		if p != nil {
			if i != len(buf)-1 {
				t.Fatalf("packet completed early at byte %d", i)
			}
			got = p
		}
	}
	if got == nil || got.Command != "PWR" || got.Parameter != "01" {
		t.Errorf("packet = %+v, want PWR 01", got)
	}
}

func TestReassembler_CRInHeader(t *testing.T) {
	// 13 byte payload puts 0x0d in the data size field
	p := NewPacket("NLS", "C0P-FM1")
	buf := Encode(p)
	if buf[11] != CarriageReturn {
		t.Fatalf("test packet data size = %d, want 13", buf[11])
	}

	r := NewReassembler(Decoder{})
	if got, err := r.Feed(buf[:12]); got != nil || err != nil {
		t.Fatalf("Feed(header) = %v, %v; want nil, nil", got, err)
	}
	got, err := r.Feed(buf[12:])
	if err != nil {
		t.Fatalf("Feed(rest) error = %v", err)
	}
	if got == nil || *got != p {
		t.Errorf("packet = %+v, want %+v", got, p)
	}
}

func TestReassembler_ResetsAfterDecodeError(t *testing.T) {
	r := NewReassembler(Decoder{})

	bad := frame("ISCP", 16, -1, 9, "!1PWR01\x1a\r")
	p, err := r.Feed(bad)
	if p != nil {
		t.Errorf("Feed(bad) packet = %+v, want nil", p)
	}
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Feed(bad) error = %v, want ErrMalformedFrame", err)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d after error, want 0", r.Buffered())
	}

	p, err = r.Feed(Encode(NewPacket("PWR", "00")))
	if err != nil {
		t.Fatalf("Feed(good) error = %v", err)
	}
	if p == nil || p.Parameter != "00" {
		t.Errorf("Feed(good) = %+v, want PWR 00", p)
	}
}

func TestReassembler_TwoPacketsInOneChunk(t *testing.T) {
	r := NewReassembler(Decoder{})
	chunk := append(Encode(NewPacket("PWR", "01")), Encode(NewPacket("MVL", "20"))...)

	p, err := r.Feed(chunk)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if p == nil || p.Command != "PWR" {
		t.Errorf("Feed() = %+v, want the first packet", p)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", r.Buffered())
	}
}

func TestReassembler_EOFCRLF(t *testing.T) {
	// Receivers end frames with EOF CR LF and count the LF in the data size
	buf := frame("ISCP", 16, -1, 1, "!1PWR01\x1a\r\n")
	want := Packet{Command: "PWR", Parameter: "01", DeviceType: "1"}

	tests := []struct {
		name   string
		chunks [][]byte
	}{
		{"one chunk", [][]byte{buf}},
		{"10/10/rest", [][]byte{buf[:10], buf[10:20], buf[20:]}},
		{"LF in its own chunk", [][]byte{buf[:len(buf)-1], buf[len(buf)-1:]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReassembler(Decoder{})
			last := len(tt.chunks) - 1
			for i, chunk := range tt.chunks[:last] {
				p, err := r.Feed(chunk)
				if p != nil || err != nil {
					t.Fatalf("Feed(chunk %d) = %v, %v; want nil, nil", i, p, err)
				}
			}

			p, err := r.Feed(tt.chunks[last])
			if err != nil {
				t.Fatalf("Feed(last) error = %v", err)
			}
			if p == nil || *p != want {
				t.Errorf("packet = %+v, want %+v", p, want)
			}
			if r.Buffered() != 0 {
				t.Errorf("Buffered() = %d after packet, want 0", r.Buffered())
			}
		})
	}
}

func TestReassembler_Overflow(t *testing.T) {
	r := NewReassembler(Decoder{})

	header := frame("ISCP", 16, 10, 1, "")
	if p, err := r.Feed(header); p != nil || err != nil {
		t.Fatalf("Feed(header) = %v, %v; want nil, nil", p, err)
	}

	junk := bytes.Repeat([]byte{'A'}, MaxPayloadSize+1)
	p, err := r.Feed(junk)
	if p != nil {
		t.Errorf("Feed(junk) packet = %+v, want nil", p)
	}
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Feed(junk) error = %v, want ErrMalformedFrame", err)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d after overflow, want 0", r.Buffered())
	}

	p, err = r.Feed(Encode(NewPacket("MVL", "20")))
	if err != nil {
		t.Fatalf("Feed(good) error = %v", err)
	}
	if p == nil || p.Parameter != "20" {
		t.Errorf("Feed(good) = %+v, want MVL 20", p)
	}
}

func TestReassembler_OversizedDeclarationIsRejected(t *testing.T) {
	r := NewReassembler(Decoder{})

	bad := frame("ISCP", 16, MaxPayloadSize+1, 1, "!1PWR01\x1a\r\n")
	p, err := r.Feed(bad)
	if p != nil {
		t.Errorf("Feed() packet = %+v, want nil", p)
	}
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Feed() error = %v, want ErrMalformedFrame", err)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", r.Buffered())
	}
}
