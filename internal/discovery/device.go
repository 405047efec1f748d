package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bsdavidson/oink/internal/device"
	"github.com/bsdavidson/oink/internal/protocol"
)

// DiscoveredDevice is a receiver that answered the ECN discovery query
type DiscoveredDevice struct {
	// Address is the IP the response came from
	Address string `json:"address"`

	// Port is the TCP control port the receiver reported (usually 60128)
	Port int `json:"port"`

	// Type is the device type character of the response
	Type string `json:"type"`

	// Model is the model name, e.g. "TX-NR686"
	Model string `json:"model"`

	// Region is the destination area code, e.g. "DX", "XX", "JJ"
	Region string `json:"region"`

	// Identifier is the unique id, usually the MAC address
	Identifier string `json:"identifier"`
}

// String returns a human-readable description of the receiver
func (d *DiscoveredDevice) String() string {
	return fmt.Sprintf("%s (%s) at %s:%d", d.Model, d.Identifier, d.Address, d.Port)
}

// ToDevice returns an unconnected Device for the same address, port and type
func (d *DiscoveredDevice) ToDevice(opts ...device.Option) *device.Device {
	return device.New(d.Address, d.Port, d.Type, opts...)
}

// ParseResponse decodes a discovery response received from address
func ParseResponse(buf []byte, address string) (*DiscoveredDevice, error) {
	return parseResponse(protocol.DefaultDecoder, buf, address)
}

func parseResponse(decoder protocol.Decoder, buf []byte, address string) (*DiscoveredDevice, error) {
	p, err := decoder.Decode(buf)
	if err != nil {
		return nil, err
	}
	return fromPacket(p, address)
}

// fromPacket reads "model/port/region/identifier" from an ECN parameter
func fromPacket(p protocol.Packet, address string) (*DiscoveredDevice, error) {
	fields := strings.Split(p.Parameter, "/")
	if len(fields) != 4 {
		return nil, fmt.Errorf("invalid parameter %q (expected 4 items, got %d)", p.Parameter, len(fields))
	}

	rawPort := fields[1]
	port, err := strconv.Atoi(strings.TrimSpace(rawPort))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %q", rawPort)
	}

	return &DiscoveredDevice{
		Address:    address,
		Port:       port,
		Type:       p.DeviceType,
		Model:      fields[0],
		Region:     fields[2],
		Identifier: fields[3],
	}, nil
}
