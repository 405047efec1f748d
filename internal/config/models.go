package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bsdavidson/oink/internal/protocol"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Config represents the entire user configuration file.
type Config struct {
	Version   int                       `yaml:"version"`
	Receiver  ReceiverConfig            `yaml:"receiver"`
	Server    ServerConfig              `yaml:"server"`
	Discovery DiscoveryConfig           `yaml:"discovery"`
	Protocol  ProtocolConfig            `yaml:"protocol"`
	Timeouts  TimeoutConfig             `yaml:"timeouts"`
	LogLevel  string                    `yaml:"log_level,omitempty"`
	Receivers map[string]*KnownReceiver `yaml:"receivers,omitempty"` // Keyed by receiver identifier
}

// ReceiverConfig is the receiver commands talk to when --device is not given.
// An empty Address means discover one.
type ReceiverConfig struct {
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port"`
	Type    string `yaml:"type"`
}

// ServerConfig configures "oink serve"
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Advertise bool   `yaml:"advertise"` // Announce the bridge over mDNS
	Instance  string `yaml:"instance,omitempty"`
}

// DiscoveryConfig holds the defaults for UDP discovery
type DiscoveryConfig struct {
	TimeLimitMS int  `yaml:"time_limit_ms"`
	DeviceLimit int  `yaml:"device_limit"`
	SkipInvalid bool `yaml:"skip_invalid"`
}

// ProtocolConfig selects protocol variants
type ProtocolConfig struct {
	Terminator string `yaml:"terminator"` // lenient, eof or cr
}

// TimeoutConfig holds connection and command timeouts in milliseconds
type TimeoutConfig struct {
	ConnectMS int `yaml:"connect_ms"`
	CommandMS int `yaml:"command_ms"`
}

// KnownReceiver is user metadata for a receiver seen during discovery.
type KnownReceiver struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	Model    string    `yaml:"model,omitempty"`     // Model reported in the ECN response
	LastIP   string    `yaml:"last_ip,omitempty"`   // Last known IP address
	Port     int       `yaml:"port,omitempty"`      // Last reported control port
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery time
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Receiver: ReceiverConfig{
			Port: protocol.DiscoveryPort,
			Type: protocol.DefaultDeviceType,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Discovery: DiscoveryConfig{
			TimeLimitMS: 1000,
			DeviceLimit: 0,
		},
		Protocol: ProtocolConfig{
			Terminator: "lenient",
		},
		Timeouts: TimeoutConfig{
			ConnectMS: 1000,
			CommandMS: 1000,
		},
		Receivers: make(map[string]*KnownReceiver),
	}
}

// applyDefaults fills zero values left by a partial file
func (c *Config) applyDefaults() {
	def := NewConfig()
	if c.Receiver.Port == 0 {
		c.Receiver.Port = def.Receiver.Port
	}
	if c.Receiver.Type == "" {
		c.Receiver.Type = def.Receiver.Type
	}
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Discovery.TimeLimitMS == 0 {
		c.Discovery.TimeLimitMS = def.Discovery.TimeLimitMS
	}
	if c.Protocol.Terminator == "" {
		c.Protocol.Terminator = def.Protocol.Terminator
	}
	if c.Timeouts.ConnectMS == 0 {
		c.Timeouts.ConnectMS = def.Timeouts.ConnectMS
	}
	if c.Timeouts.CommandMS == 0 {
		c.Timeouts.CommandMS = def.Timeouts.CommandMS
	}
	if c.Receivers == nil {
		c.Receivers = make(map[string]*KnownReceiver)
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Receiver.Port < 1 || c.Receiver.Port > 65535 {
		return fmt.Errorf("receiver.port %d out of range", c.Receiver.Port)
	}
	if len(c.Receiver.Type) != 1 {
		return fmt.Errorf("receiver.type %q must be a single character", c.Receiver.Type)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Discovery.TimeLimitMS < 0 || c.Discovery.DeviceLimit < 0 {
		return fmt.Errorf("discovery limits must not be negative")
	}
	if c.Timeouts.ConnectMS < 0 || c.Timeouts.CommandMS < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if _, err := protocol.ParseTerminatorMode(c.Protocol.Terminator); err != nil {
		return fmt.Errorf("protocol.terminator: %w", err)
	}
	return nil
}

// Decoder returns the decoder for the configured terminator mode
func (c *Config) Decoder() protocol.Decoder {
	mode, _ := protocol.ParseTerminatorMode(c.Protocol.Terminator)
	return protocol.Decoder{Terminator: mode}
}

// ConnectTimeout returns Timeouts.ConnectMS as a duration
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Timeouts.ConnectMS) * time.Millisecond
}

// CommandTimeout returns Timeouts.CommandMS as a duration
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Timeouts.CommandMS) * time.Millisecond
}

// DiscoveryTimeLimit returns Discovery.TimeLimitMS as a duration
func (c *Config) DiscoveryTimeLimit() time.Duration {
	return time.Duration(c.Discovery.TimeLimitMS) * time.Millisecond
}

// GetReceiver retrieves receiver metadata by identifier.
// Returns nil if the receiver is not known.
func (c *Config) GetReceiver(identifier string) *KnownReceiver {
	return c.Receivers[identifier]
}

// EnsureReceiver returns the entry for identifier, creating it if needed.
func (c *Config) EnsureReceiver(identifier string) *KnownReceiver {
	if c.Receivers == nil {
		c.Receivers = make(map[string]*KnownReceiver)
	}
	if r, exists := c.Receivers[identifier]; exists {
		return r
	}
	r := &KnownReceiver{}
	c.Receivers[identifier] = r
	return r
}

// UpdateReceiverLastSeen records a discovery of identifier.
func (c *Config) UpdateReceiverLastSeen(identifier, model, ip string, port int) {
	r := c.EnsureReceiver(identifier)
	r.Model = model
	r.LastIP = ip
	r.Port = port
	r.LastSeen = time.Now()
}

// SetReceiverNickname sets a user-friendly nickname for a receiver.
func (c *Config) SetReceiverNickname(identifier, nickname string) {
	c.EnsureReceiver(identifier).Nickname = nickname
}

// FindReceiver looks a receiver up by identifier or nickname (case-insensitive).
func (c *Config) FindReceiver(nameOrID string) (string, *KnownReceiver) {
	if r, ok := c.Receivers[nameOrID]; ok {
		return nameOrID, r
	}
	for id, r := range c.Receivers {
		if r.Nickname != "" && strings.EqualFold(r.Nickname, nameOrID) {
			return id, r
		}
	}
	return "", nil
}
