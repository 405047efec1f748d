// Package protocol implements the eISCP packet format used by Onkyo and
// Integra AV receivers.
//
// # Wire Format
//
// Every packet is a 16 byte header followed by a data segment. Integers are
// big-endian:
//   - Magic: "ISCP"
//   - Header size: 4 bytes, always 16
//   - Data size: 4 bytes
//   - Version: 1 byte, always 1
//   - Reserved: 3 NUL bytes
//
// The data segment is "!", a device type character ("1" for the receiver),
// a three character command, its parameter and a terminator. Clients end
// the segment with CR. Receivers usually add an EOF byte (0x1a, sometimes
// 0x19) before CR or CRLF.
//
// # Usage Example - Encoding
//
//	buf := protocol.NewQuery("MVL").Bytes()
//	conn.Write(buf)
//
// # Usage Example - Decoding a stream
//
//	r := protocol.NewReassembler(protocol.Decoder{})
//	for {
//	    n, err := conn.Read(chunk)
//	    ...
//	    p, err := r.Feed(chunk[:n])
//	    if p != nil {
//	        fmt.Println(p.Command, p.Parameter)
//	    }
//	}
//
// # Terminators
//
// Decoder.Terminator selects how strictly the end of a data segment is
// checked. TerminatorLenient, the default, accepts every variant seen on
// real hardware; TerminatorEOF requires the EOF byte.
package protocol
