package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/ui"
)

var (
	discoverLimit     int
	discoverTimeoutMS int
	discoverLenient   bool
	discoverJSON      bool
	discoverSave      bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find receivers on the local network",
	Long: `Broadcast the eISCP discovery query on UDP port 60128 and list every
receiver that answers before the time limit.`,
	Example: `  # Discover receivers for one second
  oink discover

  # Stop after the first receiver, wait at most 3 seconds
  oink discover --limit 1 --timeout 3000

  # Remember the receivers found so they can be addressed by nickname
  oink discover --save`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "Stop after this many receivers (0 = no limit)")
	discoverCmd.Flags().IntVar(&discoverTimeoutMS, "timeout", 0, "Time limit in milliseconds (default from config, 1000)")
	discoverCmd.Flags().BoolVar(&discoverLenient, "lenient", false, "Skip responses that fail to decode instead of failing")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Print receivers as JSON")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "Save the receivers found to the config file")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	opts := discovery.Options{
		DeviceLimit: cfg.Discovery.DeviceLimit,
		TimeLimit:   cfg.DiscoveryTimeLimit(),
		SkipInvalid: cfg.Discovery.SkipInvalid || discoverLenient,
	}
	if cmd.Flags().Changed("limit") {
		opts.DeviceLimit = discoverLimit
	}
	if cmd.Flags().Changed("timeout") {
		opts.TimeLimit = time.Duration(discoverTimeoutMS) * time.Millisecond
	}

	scanner := discovery.NewScanner()
	scanner.Decoder = cfg.Decoder()

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if !discoverJSON {
		printer.PrintHeader("Receiver Discovery", "oink discover", map[string]string{
			"Time limit": opts.TimeLimit.String(),
			"Limit":      limitString(opts.DeviceLimit),
		})
	}

	devices, err := scanner.Discover(cmd.Context(), opts)
	if err != nil {
		if !discoverJSON {
			printer.PrintError("Discovery failed", err, []string{
				"Check that this machine is on the same network as the receiver",
				"Make sure UDP port 60128 is not blocked by a firewall",
				"Use --lenient to skip responses from misbehaving devices",
			})
		}
		return err
	}

	if discoverSave && len(devices) > 0 {
		if err := saveDiscovered(devices); err != nil {
			return err
		}
	}

	if discoverJSON {
		return writeJSON(cmd.OutOrStdout(), devices)
	}

	if len(devices) == 0 {
		printer.PrintWarning("No receivers found", map[string]string{
			"Time limit": opts.TimeLimit.String(),
		})
		return nil
	}
	printer.PrintDevices(devices)
	if discoverSave {
		printer.Println(fmt.Sprintf("%s Saved %d receiver(s) to the config file", ui.SuccessMarker, len(devices)))
	}
	return nil
}

func saveDiscovered(devices []*discovery.DiscoveredDevice) error {
	for _, d := range devices {
		cfg.UpdateReceiverLastSeen(d.Identifier, d.Model, d.Address, d.Port)
	}
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("save receivers: %w", err)
	}
	return nil
}

func limitString(limit int) string {
	if limit <= 0 {
		return "none"
	}
	return fmt.Sprintf("%d", limit)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
