package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/ui"
)

var commandsCmd = &cobra.Command{
	Use:   "commands [zone]",
	Short: "List the named commands of a zone",
	Long: `List the commands and value names "oink send --name" understands.

Zones: main (default), zone2, zone3, zone4, dock.`,
	Example: `  oink commands
  oink commands zone2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommands,
}

var bridgesTimeoutMS int

var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "Find oink bridges announced over mDNS",
	Long: `Browse the local network for bridges started with "oink serve --advertise".`,
	Args:  cobra.NoArgs,
	RunE:  runBridges,
}

func init() {
	bridgesCmd.Flags().IntVar(&bridgesTimeoutMS, "timeout", int(discovery.DefaultScanTimeout/time.Millisecond), "Browse time in milliseconds")
}

func runCommands(cmd *cobra.Command, args []string) error {
	zone := "main"
	if len(args) == 1 {
		zone = strings.ToLower(args[0])
	}

	table, err := commands.Default()
	if err != nil {
		return err
	}
	cmds, err := table.Commands(zone)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(table.Zones(), ", "))
	}

	ui.NewPrinter(cmd.OutOrStdout()).PrintCommands(cmds)
	return nil
}

func runBridges(cmd *cobra.Command, args []string) error {
	timeout := time.Duration(bridgesTimeoutMS) * time.Millisecond

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintHeader("Bridge Discovery", "oink bridges", map[string]string{
		"Service": discovery.BridgeServiceType,
		"Timeout": timeout.String(),
	})

	bridges, err := discovery.ScanForBridges(cmd.Context(), timeout)
	if err != nil {
		printer.PrintError("Browse failed", err, []string{
			"Check that multicast traffic is allowed on this network",
		})
		return err
	}

	if len(bridges) == 0 {
		printer.PrintWarning("No bridges found", map[string]string{
			"Hint": "start one with: oink serve --advertise",
		})
		return nil
	}
	printer.PrintBridges(bridges)
	return nil
}
