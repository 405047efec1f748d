package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxPayloadSize bounds the data segment the reassembler will buffer.
// NJA artwork chunks are the largest receiver messages.
const MaxPayloadSize = 8192

// MaxFrameSize is the largest frame a Reassembler holds before giving up
const MaxFrameSize = HeaderSize + MaxPayloadSize

const initialReassemblyBuffer = 1024

// Reassembler turns a TCP byte stream into eISCP packets.
//
// Receivers may split a packet across reads. Chunks are appended to an
// internal buffer and only the newly appended bytes past the 16 byte header
// are scanned for the CR that ends a data segment. Once a CR is seen and the
// payload size declared in the header has arrived, the whole buffer is
// decoded and then reset, whether or not decoding succeeded. Receivers end
// frames with EOF CR LF and count the LF in the payload size, so a frame is
// not cut at the CR.
//
// If a single chunk carries more than one complete packet only the first is
// decoded; the remainder is discarded with the reset. Receivers send one
// packet per write in practice.
//
// A peer that never sends a CR cannot grow the buffer past MaxFrameSize:
// Feed resets and returns a *FrameError instead.
//
// A Reassembler is not safe for concurrent use.
type Reassembler struct {
	decoder Decoder
	buf     []byte

	// terminated is set once a CR past the header has been buffered
	terminated bool
}

// NewReassembler creates a reassembler that decodes with d
func NewReassembler(d Decoder) *Reassembler {
	return &Reassembler{
		decoder: d,
		buf:     make([]byte, 0, initialReassemblyBuffer),
	}
}

// Feed appends chunk and returns the packet it completes.
// It returns nil, nil while the frame is incomplete.
func (r *Reassembler) Feed(chunk []byte) (*Packet, error) {
	start := len(r.buf)
	r.buf = append(r.buf, chunk...)

	// The payload size field can itself be 0x0d, so header bytes are
	// never treated as a terminator.
	if start < HeaderSize {
		start = HeaderSize
	}
	if !r.terminated && start < len(r.buf) && bytes.IndexByte(r.buf[start:], CarriageReturn) >= 0 {
		r.terminated = true
	}
	if !r.terminated || r.pending() {
		return nil, r.checkOverflow()
	}

	p, err := r.decoder.Decode(r.buf)
	r.Reset()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// pending reports whether the header is well formed and declares more
// payload than is buffered. Frames with a bad header are never pending, so
// they are decoded (and rejected) as soon as their CR arrives.
func (r *Reassembler) pending() bool {
	if len(r.buf) < HeaderSize || string(r.buf[:4]) != Magic {
		return false
	}
	size := uint64(binary.BigEndian.Uint32(r.buf[offsetDataSize:]))
	if size > MaxPayloadSize {
		return false
	}
	return uint64(HeaderSize)+size > uint64(len(r.buf))
}

func (r *Reassembler) checkOverflow() error {
	if len(r.buf) <= MaxFrameSize {
		return nil
	}
	n := len(r.buf)
	r.Reset()
	return &FrameError{
		Field:   "data",
		Message: fmt.Sprintf("frame exceeds %d bytes (buffered %d bytes)", MaxFrameSize, n),
	}
}

// Buffered returns the number of bytes waiting for a terminator
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Reset drops any buffered bytes
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.terminated = false
}
