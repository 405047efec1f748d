package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/bsdavidson/oink/internal/config"
	"github.com/bsdavidson/oink/internal/device"
	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/logging"
)

// target is the receiver a command talks to
type target struct {
	Address string
	Port    int
	Type    string

	// Identifier is set when the receiver is known to the config file
	Identifier string
}

func (t target) String() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// lookupTarget resolves name (an address or a saved nickname) or, when name
// is empty, the receiver from the config file. It reports false when
// discovery is needed.
func lookupTarget(c *config.Config, name string, portSet bool) (target, bool) {
	t := target{
		Address: name,
		Port:    c.Receiver.Port,
		Type:    c.Receiver.Type,
	}
	if name == "" {
		t.Address = c.Receiver.Address
	}
	if t.Address == "" {
		return t, false
	}

	if id, known := c.FindReceiver(t.Address); known != nil && known.LastIP != "" {
		t.Address = known.LastIP
		t.Identifier = id
		if !portSet && known.Port != 0 {
			t.Port = known.Port
		}
	}
	return t, true
}

// getTarget returns the receiver to use (via --device, the config file, or
// discovery). Discovery must find exactly one receiver.
func getTarget(ctx context.Context, status io.Writer) (target, error) {
	if t, ok := lookupTarget(cfg, deviceAddr, portFlagSet); ok {
		return t, nil
	}

	fmt.Fprintln(status, "No receiver specified, attempting auto-discovery...")
	scanner := discovery.NewScanner()
	scanner.Decoder = cfg.Decoder()
	devices, err := scanner.Discover(ctx, discovery.Options{
		TimeLimit:   cfg.DiscoveryTimeLimit(),
		DeviceLimit: cfg.Discovery.DeviceLimit,
		SkipInvalid: true,
	})
	if err != nil {
		return target{}, fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		return target{}, fmt.Errorf("no receivers found. Use --device flag to specify IP manually")
	}

	if len(devices) > 1 {
		fmt.Fprintf(status, "Found %d receivers:\n", len(devices))
		for i, d := range devices {
			fmt.Fprintf(status, "%d. %s\n", i+1, d)
		}
		return target{}, fmt.Errorf("multiple receivers found. Use --device flag to specify which one")
	}

	d := devices[0]
	fmt.Fprintf(status, "Found receiver: %s\n\n", d)
	return target{
		Address:    d.Address,
		Port:       d.Port,
		Type:       d.Type,
		Identifier: d.Identifier,
	}, nil
}

// deviceOptions builds device options from the loaded config
func deviceOptions() []device.Option {
	return []device.Option{
		device.WithConnectTimeout(cfg.ConnectTimeout()),
		device.WithDecoder(cfg.Decoder()),
		device.WithDecodeErrorHandler(func(err error) {
			logging.Warn("Dropped malformed frame", zap.Error(err))
		}),
	}
}

func newDevice(t target) *device.Device {
	return device.New(t.Address, t.Port, t.Type, deviceOptions()...)
}

// connect resolves the target and opens the control connection
func connect(ctx context.Context, status io.Writer) (*device.Device, error) {
	t, err := getTarget(ctx, status)
	if err != nil {
		return nil, err
	}

	dev := newDevice(t)
	if err := dev.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", t, err)
	}
	logging.Debug("Connected to receiver", zap.String("receiver", t.String()))
	return dev, nil
}
