package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/config"
	"github.com/bsdavidson/oink/internal/protocol"
	"github.com/bsdavidson/oink/internal/tui"
	"github.com/bsdavidson/oink/internal/ui"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive command prompt for a receiver",
	Long: `Open a connection to the receiver and read commands from a prompt.

Raw commands are typed as the receiver expects them (MVL2A, PWRQSTN, or
PWR alone for a query). Named commands from the command table use "set".
Type "help" at the prompt for the full list.`,
	Example: `  oink shell --device 192.168.1.50`,
	Args:    cobra.NoArgs,
	RunE:    runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dev, err := connect(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer dev.Close()

	table, err := commands.Default()
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "oink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryFile:     historyFile(),
		AutoComplete:    shellCompleter(table),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	sh := newShell(dev, table, rl.Stdout(), cfg.CommandTimeout())
	defer sh.close()

	fmt.Fprintf(rl.Stdout(), "Connected to %s\n", dev)
	sh.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil
		}

		if quit := sh.dispatch(ctx, line); quit {
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil
		}
	}
}

// historyFile keeps prompt history next to the config file
func historyFile() string {
	dir, err := config.GetConfigDir()
	if err != nil {
		return ""
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return ""
	}
	return filepath.Join(dir, "shell_history")
}

func shellCompleter(table *commands.Table) *readline.PrefixCompleter {
	names := func(string) []string {
		cmds, err := table.Commands("main")
		if err != nil {
			return nil
		}
		out := make([]string, 0, len(cmds))
		for _, c := range cmds {
			out = append(out, c.Name)
		}
		return out
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("send"),
		readline.PcItem("query"),
		readline.PcItem("set", readline.PcItemDynamic(names)),
		readline.PcItem("zone", readline.PcItemDynamic(func(string) []string { return table.Zones() })),
		readline.PcItem("commands"),
		readline.PcItem("watch", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("exit"),
	)
}

// shellDevice is the part of the receiver connection the shell uses
type shellDevice interface {
	Send(ctx context.Context, p protocol.Packet, timeout time.Duration) (protocol.Packet, error)
	Subscribe(fn func(protocol.Packet)) (unsubscribe func())
}

type shell struct {
	dev     shellDevice
	table   *commands.Table
	out     io.Writer
	printer *ui.Printer
	timeout time.Duration
	zone    string

	// watch prints every inbound packet as it arrives
	watch       atomic.Bool
	unsubscribe func()
}

func newShell(dev shellDevice, table *commands.Table, out io.Writer, timeout time.Duration) *shell {
	s := &shell{
		dev:     dev,
		table:   table,
		out:     out,
		printer: ui.NewPrinter(out),
		timeout: timeout,
		zone:    "main",
	}
	s.unsubscribe = dev.Subscribe(func(p protocol.Packet) {
		if s.watch.Load() {
			s.printer.PrintPacket(ui.ReceiveMarker, p)
		}
	})
	return s
}

func (s *shell) close() {
	s.unsubscribe()
}

// dispatch runs one input line. It reports whether the shell should exit.
func (s *shell) dispatch(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "send":
		if len(args) != 2 {
			s.printUsage("send <CMD> <PARAM>")
			return false
		}
		p, err := buildPacket(args[0], args[1], false, "")
		if err != nil {
			s.printErr(err)
			return false
		}
		s.exchange(ctx, p)

	case "query":
		if len(args) != 1 {
			s.printUsage("query <CMD>")
			return false
		}
		code, err := parseCommandCode(args[0])
		if err != nil {
			s.printErr(err)
			return false
		}
		s.exchange(ctx, protocol.NewQuery(code))

	case "set":
		if len(args) != 2 {
			s.printUsage("set <command-name> <value-name>")
			return false
		}
		p, err := s.table.Lookup(s.zone, args[0], args[1])
		if err != nil {
			s.printErr(err)
			return false
		}
		s.exchange(ctx, p)

	case "zone":
		s.cmdZone(args)

	case "commands":
		cmds, err := s.table.Commands(s.zone)
		if err != nil {
			s.printErr(err)
			return false
		}
		s.printer.PrintCommands(cmds)

	case "watch":
		s.cmdWatch(args)

	case "quit", "exit", "q":
		return true

	default:
		// Anything else is a raw command such as MVL2A or PWR
		code, param, err := tui.ParseRawCommand(input)
		if err == nil {
			code, err = parseCommandCode(code)
		}
		if err != nil {
			fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
			return false
		}
		s.exchange(ctx, protocol.NewPacket(code, param))
	}
	return false
}

func (s *shell) exchange(ctx context.Context, p protocol.Packet) {
	s.printer.PrintPacket(ui.SendMarker, p)
	resp, err := s.dev.Send(ctx, p, s.timeout)
	if err != nil {
		s.printErr(err)
		return
	}
	if !s.watch.Load() {
		s.printer.PrintPacket(ui.ReceiveMarker, resp)
	}
}

func (s *shell) cmdZone(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Zone: %s (available: %s)\n", s.zone, strings.Join(s.table.Zones(), ", "))
		return
	}
	zone := strings.ToLower(args[0])
	if _, err := s.table.Commands(zone); err != nil {
		s.printErr(err)
		return
	}
	s.zone = zone
	fmt.Fprintf(s.out, "Zone: %s\n", s.zone)
}

func (s *shell) cmdWatch(args []string) {
	on := !s.watch.Load()
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on":
			on = true
		case "off":
			on = false
		default:
			s.printUsage("watch [on|off]")
			return
		}
	}
	s.watch.Store(on)
	if on {
		fmt.Fprintln(s.out, "Watching all packets from the receiver")
	} else {
		fmt.Fprintln(s.out, "Stopped watching")
	}
}

func (s *shell) printUsage(usage string) {
	fmt.Fprintf(s.out, "Usage: %s\n", usage)
}

func (s *shell) printErr(err error) {
	marker := ui.FailureMarker
	if errors.Is(err, commands.ErrUnknownValue) || errors.Is(err, commands.ErrUnknownCommand) {
		marker = ui.WarningMarker
	}
	fmt.Fprintf(s.out, "%s %v\n", marker, err)
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
oink shell commands:
  Raw:
    MVL2A                 - Send a raw command (command code + parameter)
    PWR                   - Query a command (same as PWRQSTN)
    send <CMD> <PARAM>    - Send a raw command
    query <CMD>           - Query the current value

  Named:
    set <command> <value> - Send a named command from the current zone
    zone [name]           - Show or change the current zone
    commands              - List the commands of the current zone

  Other:
    watch [on|off]        - Print every packet the receiver sends
    help                  - Show this help
    exit                  - Leave the shell`)
}
