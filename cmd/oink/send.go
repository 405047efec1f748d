package main

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/device"
	"github.com/bsdavidson/oink/internal/protocol"
	"github.com/bsdavidson/oink/internal/ui"
)

var commandCodePattern = regexp.MustCompile(`^[A-Z0-9]{3}$`)

var (
	sendByName bool
	sendZone   string
	sendJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <CMD>",
	Short: "Ask the receiver for the current value of a command",
	Long: `Send the QSTN parameter for a three character command and print the
receiver's answer.`,
	Example: `  # Master volume
  oink query MVL --device 192.168.1.50

  # Power state of the first receiver found
  oink query PWR`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var sendCmd = &cobra.Command{
	Use:   "send <CMD> <PARAM>",
	Short: "Send a command to the receiver",
	Long: `Send a raw three character command with a parameter, or a named
command and value from the command table with --name.

The first packet the receiver sends back for the same command is printed.`,
	Example: `  # Raw: volume to 0x2A
  oink send MVL 2A

  # Named: power on the main zone
  oink send --name system-power on

  # Named, zone 2
  oink send --name volume level-up --zone zone2`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	queryCmd.Flags().BoolVar(&sendJSON, "json", false, "Print the response packet as JSON")

	sendCmd.Flags().BoolVar(&sendByName, "name", false, "Treat arguments as a command name and value name")
	sendCmd.Flags().StringVar(&sendZone, "zone", "main", "Zone for named commands")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Print the response packet as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	code, err := parseCommandCode(args[0])
	if err != nil {
		return err
	}
	return exchange(cmd, protocol.NewQuery(code))
}

func runSend(cmd *cobra.Command, args []string) error {
	p, err := buildPacket(args[0], args[1], sendByName, sendZone)
	if err != nil {
		return err
	}
	return exchange(cmd, p)
}

// buildPacket turns command line arguments into a packet, either raw or
// through the command table
func buildPacket(command, parameter string, byName bool, zone string) (protocol.Packet, error) {
	if byName {
		p, err := commands.Lookup(zone, command, parameter)
		if err != nil {
			return protocol.Packet{}, fmt.Errorf("lookup %s %s: %w", command, parameter, err)
		}
		return p, nil
	}

	code, err := parseCommandCode(command)
	if err != nil {
		return protocol.Packet{}, err
	}
	if parameter == "" {
		return protocol.Packet{}, fmt.Errorf("parameter is required")
	}
	return protocol.NewPacket(code, parameter), nil
}

func parseCommandCode(s string) (string, error) {
	code := strings.ToUpper(s)
	if !commandCodePattern.MatchString(code) {
		return "", fmt.Errorf("invalid command %q: expected three letters or digits", s)
	}
	return code, nil
}

// exchange connects, sends p and prints both sides of the exchange
func exchange(cmd *cobra.Command, p protocol.Packet) error {
	ctx := cmd.Context()
	dev, err := connect(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer dev.Close()

	if p.DeviceType == protocol.DefaultDeviceType && cfg.Receiver.Type != "" {
		p = p.WithDeviceType(cfg.Receiver.Type)
	}

	resp, err := dev.Send(ctx, p, cfg.CommandTimeout())
	if err != nil {
		printExchangeError(cmd.ErrOrStderr(), p, err)
		return err
	}

	if sendJSON {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintPacket(ui.SendMarker, p)
	printer.PrintPacket(ui.ReceiveMarker, resp)
	return nil
}

func printExchangeError(w io.Writer, p protocol.Packet, err error) {
	var hints []string
	switch {
	case errors.Is(err, device.ErrCommandTimedOut):
		hints = []string{
			"The receiver did not answer " + p.Command + " in time; raise --timeout",
			"Some commands are only answered while the receiver is powered on",
		}
	default:
		hints = []string{"Check the receiver is reachable and network control is enabled"}
	}
	ui.NewPrinter(w).PrintError("Command failed", err, hints)
}
