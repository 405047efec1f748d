package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/protocol"
)

// newTable renders a rounded table; mutedColumns use TableMutedCellStyle
func newTable(headers []string, rows [][]string, mutedColumns ...int) string {
	muted := make(map[int]bool, len(mutedColumns))
	for _, col := range mutedColumns {
		muted[col] = true
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case muted[col]:
				return TableMutedCellStyle
			default:
				return TableCellStyle
			}
		}).
		Render()
}

// DevicesTable renders discovered receivers
func DevicesTable(devices []*discovery.DiscoveredDevice) string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.Model,
			d.Address,
			strconv.Itoa(d.Port),
			d.Region,
			d.Identifier,
		})
	}
	return newTable([]string{"Model", "Address", "Port", "Region", "Identifier"}, rows, 3, 4)
}

// CommandsTable renders the commands of one zone
func CommandsTable(cmds []commands.Command) string {
	rows := make([][]string, 0, len(cmds))
	for _, c := range cmds {
		values := strings.Join(c.ValueNames(), ", ")
		if c.Raw != "" {
			if values != "" {
				values += ", "
			}
			values += "<raw>"
		}
		rows = append(rows, []string{c.Code, c.Name, values})
	}
	return newTable([]string{"Code", "Name", "Values"}, rows, 2)
}

// BridgesTable renders bridges found over mDNS
func BridgesTable(bridges []*discovery.Bridge) string {
	rows := make([][]string, 0, len(bridges))
	for _, b := range bridges {
		rows = append(rows, []string{b.Instance, b.BaseURL(), b.Receiver})
	}
	return newTable([]string{"Instance", "URL", "Receiver"}, rows, 2)
}

// PacketLine renders one packet as "→ MVL 1F  master-volume" with the
// command and value names when known. direction is SendMarker or ReceiveMarker.
func PacketLine(direction string, p protocol.Packet, name, value string) string {
	var b strings.Builder
	b.WriteString(PacketDirectionStyle.Render(direction))
	b.WriteString(" ")
	b.WriteString(PacketCommandStyle.Render(p.Command))
	b.WriteString(" ")
	b.WriteString(p.Parameter)

	label := name
	if value != "" {
		label += " " + value
	}
	if label != "" {
		b.WriteString("  ")
		b.WriteString(MutedStyle.Render(label))
	}
	return b.String()
}
