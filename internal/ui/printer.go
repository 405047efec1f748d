package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/protocol"
)

// Printer provides methods for printing UI components to a writer.
// This is the primary way CLI commands should output styled content.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details map[string]string) {
	p.Println(NewWarningResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintDevices prints a table of discovered receivers
func (p *Printer) PrintDevices(devices []*discovery.DiscoveredDevice) {
	p.Println(DevicesTable(devices))
}

// PrintCommands prints a table of commands
func (p *Printer) PrintCommands(cmds []commands.Command) {
	p.Println(CommandsTable(cmds))
}

// PrintBridges prints a table of bridges
func (p *Printer) PrintBridges(bridges []*discovery.Bridge) {
	p.Println(BridgesTable(bridges))
}

// PrintPacket prints one packet line, naming it from the default table
func (p *Printer) PrintPacket(direction string, packet protocol.Packet) {
	name, value := DescribePacket(packet)
	p.Println(PacketLine(direction, packet, name, value))
}

// DescribePacket names packet from the default command table. Both results
// are empty for unknown commands.
func DescribePacket(packet protocol.Packet) (name, value string) {
	t, err := commands.Default()
	if err != nil {
		return "", ""
	}
	_, name, value, _ = t.Identify(packet)
	return name, value
}
