package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive remote",
	Long: `Launch the full-screen remote.

Without --device (and without a receiver in the config file) the remote
starts on the discovery screen. Select a receiver to control power,
volume, muting and input, or type raw commands.`,
	Example: `  # Discover and pick a receiver
  oink tui

  # Control a given receiver directly
  oink tui --device 192.168.1.50`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	opts := tui.Options{
		Scan:           scanFunc(),
		TimeLimit:      cfg.DiscoveryTimeLimit(),
		CommandTimeout: cfg.CommandTimeout(),
		NewReceiver: func(d *discovery.DiscoveredDevice) tui.Receiver {
			return d.ToDevice(deviceOptions()...)
		},
	}

	if t, ok := lookupTarget(cfg, deviceAddr, portFlagSet); ok {
		opts.Receiver = newDevice(t)
	}

	if err := tui.Run(opts); err != nil {
		return fmt.Errorf("remote error: %w", err)
	}
	return nil
}

// scanFunc runs discovery with the config file settings
func scanFunc() tui.ScanFunc {
	return func(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
		scanner := discovery.NewScanner()
		scanner.Decoder = cfg.Decoder()
		return scanner.Discover(ctx, discovery.Options{
			DeviceLimit: cfg.Discovery.DeviceLimit,
			TimeLimit:   cfg.DiscoveryTimeLimit(),
			SkipInvalid: cfg.Discovery.SkipInvalid,
		})
	}
}
