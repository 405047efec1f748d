package protocol

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
)

// TerminatorMode selects how the end of a data segment is recognised.
//
// Receivers in the wild disagree: some end responses with an EOF byte
// (0x1a, or 0x19 on some firmware) followed by CR/LF, others send the line
// terminator alone.
type TerminatorMode int

const (
	// TerminatorLenient accepts an optional EOF byte before CR, LF or CRLF
	TerminatorLenient TerminatorMode = iota
	// TerminatorEOF requires the EOF byte before the line terminator
	TerminatorEOF
	// TerminatorCR expects no EOF byte; everything before CR/LF is parameter
	TerminatorCR
)

var (
	lenientPattern = regexp.MustCompile(`!(.)(...)(.*?)[\x19\x1a]?(?:\r\n|\r|\n)`)
	eofPattern     = regexp.MustCompile(`!(.)(...)(.*?)[\x19\x1a](?:\r\n|\r|\n)`)
	crPattern      = regexp.MustCompile(`!(.)(...)(.*?)(?:\r\n|\r|\n)`)
)

// String returns the configuration name of the mode
func (m TerminatorMode) String() string {
	switch m {
	case TerminatorLenient:
		return "lenient"
	case TerminatorEOF:
		return "eof"
	case TerminatorCR:
		return "cr"
	default:
		return fmt.Sprintf("TerminatorMode(%d)", int(m))
	}
}

// ParseTerminatorMode maps "lenient", "eof" or "cr" to a TerminatorMode.
// An empty string selects TerminatorLenient.
func ParseTerminatorMode(s string) (TerminatorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return TerminatorLenient, nil
	case "eof":
		return TerminatorEOF, nil
	case "cr":
		return TerminatorCR, nil
	default:
		return TerminatorLenient, fmt.Errorf("unknown terminator mode %q (expected lenient, eof or cr)", s)
	}
}

func (m TerminatorMode) pattern() *regexp.Regexp {
	switch m {
	case TerminatorEOF:
		return eofPattern
	case TerminatorCR:
		return crPattern
	default:
		return lenientPattern
	}
}

// Decoder decodes eISCP buffers using the configured terminator mode.
// The zero value is a lenient decoder.
type Decoder struct {
	Terminator TerminatorMode
}

// DefaultDecoder is used by the package level Decode
var DefaultDecoder = Decoder{Terminator: TerminatorLenient}

// Decode decodes buf with DefaultDecoder
func Decode(buf []byte) (Packet, error) {
	return DefaultDecoder.Decode(buf)
}

// Decode validates buf and extracts its packet.
//
// Checks run in a fixed order and stop at the first failure: magic, header
// size, version, declared payload length, data segment pattern. Every
// failure is a *FrameError matching ErrMalformedFrame.
func (d Decoder) Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, &FrameError{
			Field:   "header",
			Message: fmt.Sprintf("short header (expected %d bytes, got %d bytes)", HeaderSize, len(buf)),
		}
	}

	magic := string(buf[0:4])
	headerSize := binary.BigEndian.Uint32(buf[offsetHeaderSize:])
	dataSize := binary.BigEndian.Uint32(buf[offsetDataSize:])
	version := buf[offsetVersion]

	if magic != Magic {
		return Packet{}, badValue("magic", Magic, magic)
	}
	if headerSize != HeaderSize {
		return Packet{}, badValue("headerSize", HeaderSize, headerSize)
	}
	if version != Version {
		return Packet{}, badValue("version", Version, version)
	}

	available := len(buf) - HeaderSize
	if uint64(dataSize) > uint64(available) {
		return Packet{}, &FrameError{
			Field:   "data",
			Message: fmt.Sprintf("not enough data (expected %d bytes, got %d bytes)", dataSize, available),
		}
	}

	data := buf[HeaderSize : HeaderSize+int(dataSize)]
	matches := d.Terminator.pattern().FindSubmatch(data)
	if matches == nil {
		return Packet{}, &FrameError{
			Field:   "data",
			Message: fmt.Sprintf("invalid data (%s)", data),
		}
	}

	return Packet{
		DeviceType: string(matches[1]),
		Command:    string(matches[2]),
		Parameter:  string(matches[3]),
	}, nil
}
