package protocol

import (
	"encoding/binary"
	"fmt"
)

// eISCP framing constants
const (
	Magic      = "ISCP"
	HeaderSize = 16
	Version    = 1

	// DiscoveryPort is the fixed UDP (and default TCP) port of eISCP receivers
	DiscoveryPort = 60128

	// DefaultDeviceType addresses the main unit ("1" = receiver)
	DefaultDeviceType = "1"

	// QueryParameter asks the receiver to report the current value
	QueryParameter = "QSTN"
)

// Bytes of the data segment
const (
	StartChar      = '!'
	CarriageReturn = 0x0d
	LineFeed       = 0x0a
	EOF            = 0x1a // Onkyo end-of-packet marker
	EOFAlt         = 0x19 // seen on some Integra firmware
)

// Header field offsets
const (
	offsetHeaderSize = 4
	offsetDataSize   = 8
	offsetVersion    = 12
	offsetReserved   = 13
)

// Packet is a single eISCP message: a 3 character command, its parameter
// and the device type (zone) character it targets.
type Packet struct {
	Command    string `json:"command" cbor:"command"`
	Parameter  string `json:"parameter" cbor:"parameter"`
	DeviceType string `json:"deviceType" cbor:"deviceType"`
}

// NewPacket creates a packet for the main unit
func NewPacket(command, parameter string) Packet {
	return Packet{
		Command:    command,
		Parameter:  parameter,
		DeviceType: DefaultDeviceType,
	}
}

// NewQuery creates a QSTN packet for command
func NewQuery(command string) Packet {
	return NewPacket(command, QueryParameter)
}

// WithDeviceType returns a copy of p addressed to deviceType
func (p Packet) WithDeviceType(deviceType string) Packet {
	p.DeviceType = deviceType
	return p
}

// IsQuery reports whether the packet is a QSTN request
func (p Packet) IsQuery() bool {
	return p.Parameter == QueryParameter
}

// String returns the data segment without terminator, e.g. "!1MVLQSTN"
func (p Packet) String() string {
	return fmt.Sprintf("%c%s%s%s", StartChar, p.deviceType(), p.Command, p.Parameter)
}

func (p Packet) deviceType() string {
	if p.DeviceType == "" {
		return DefaultDeviceType
	}
	return p.DeviceType
}

// Bytes encodes the packet to wire format
func (p Packet) Bytes() []byte {
	return Encode(p)
}

// Encode builds the 16 byte header followed by the data segment
// "!" + device type + command + parameter + CR.
//
// The data segment is written as given; callers are responsible for keeping
// terminator bytes out of the parameter.
func Encode(p Packet) []byte {
	data := p.String() + "\r"

	buf := make([]byte, HeaderSize+len(data))
	copy(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[offsetHeaderSize:], HeaderSize)
	binary.BigEndian.PutUint32(buf[offsetDataSize:], uint32(len(data)))
	buf[offsetVersion] = Version
	// buf[offsetReserved:HeaderSize] stays zero
	copy(buf[HeaderSize:], data)

	return buf
}

// DiscoveryPackets returns the ECN query packets broadcast during discovery,
// one per device-type marker receivers answer to.
func DiscoveryPackets() [][]byte {
	return [][]byte{
		NewQuery("ECN").WithDeviceType("x").Bytes(),
		NewQuery("ECN").WithDeviceType("p").Bytes(),
	}
}
