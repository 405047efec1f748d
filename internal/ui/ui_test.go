package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/protocol"
)

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Receiver Discovery", "oink discover", map[string]string{
		"Timeout": "1000ms",
		"Limit":   "1",
	}).SetWidth(80)

	out := h.Render()
	for _, want := range []string{"RECEIVER DISCOVERY", "oink discover", "Timeout:", "1000ms", "Limit:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Limit:") > strings.Index(out, "Timeout:") {
		t.Error("params are not rendered in key order")
	}
}

func TestHeaderRender_NoParams(t *testing.T) {
	out := NewHeader("Version", "oink version", nil).SetWidth(10).Render()
	if !strings.Contains(out, "VERSION") {
		t.Errorf("Render() missing title:\n%s", out)
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Volume set", map[string]string{"Command": "MVL", "Parameter": "1F"}),
			want:   []string{SuccessMarker, "SUCCESS", "Volume set", "Command:", "1F"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Query failed", errors.New("command timed out"), []string{"Check the receiver is on"}),
			want:   []string{FailureMarker, "FAILED", "Error: command timed out", "Troubleshooting:", "Check the receiver is on"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No receivers found", nil),
			want:   []string{WarningMarker, "WARNING", "No receivers found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestResultAddDetail(t *testing.T) {
	r := &Result{}
	r.AddDetail("Model", "TX-NR686")
	if r.Details["Model"] != "TX-NR686" {
		t.Errorf("Details = %v", r.Details)
	}
}

func TestDevicesTable(t *testing.T) {
	out := DevicesTable([]*discovery.DiscoveredDevice{
		{Address: "192.168.1.50", Port: 60128, Type: "1", Model: "TX-NR686", Region: "DX", Identifier: "0009B0123456"},
	})
	for _, want := range []string{"Model", "Identifier", "TX-NR686", "192.168.1.50", "60128", "DX", "0009B0123456"} {
		if !strings.Contains(out, want) {
			t.Errorf("DevicesTable() missing %q:\n%s", want, out)
		}
	}
}

func TestCommandsTable(t *testing.T) {
	out := CommandsTable([]commands.Command{
		{Code: "PWR", Name: "system-power", Values: []commands.Value{{Code: "01", Name: "on"}, {Code: "00", Name: "standby"}}},
		{Code: "MVL", Name: "master-volume", Raw: "^[0-9A-F]{2}$"},
	})
	for _, want := range []string{"PWR", "system-power", "on, standby", "MVL", "<raw>"} {
		if !strings.Contains(out, want) {
			t.Errorf("CommandsTable() missing %q:\n%s", want, out)
		}
	}
}

func TestBridgesTable(t *testing.T) {
	out := BridgesTable([]*discovery.Bridge{
		{Instance: "den", IP: "192.168.1.9", Port: 8080, Receiver: "192.168.1.50:60128"},
	})
	for _, want := range []string{"den", "http://192.168.1.9:8080", "192.168.1.50:60128"} {
		if !strings.Contains(out, want) {
			t.Errorf("BridgesTable() missing %q:\n%s", want, out)
		}
	}
}

func TestPacketLine(t *testing.T) {
	out := PacketLine(ReceiveMarker, protocol.NewPacket("PWR", "01"), "system-power", "on")
	for _, want := range []string{ReceiveMarker, "PWR", "01", "system-power on"} {
		if !strings.Contains(out, want) {
			t.Errorf("PacketLine() missing %q: %s", want, out)
		}
	}

	bare := PacketLine(SendMarker, protocol.NewPacket("ZZZ", "01"), "", "")
	if strings.HasSuffix(bare, "  ") {
		t.Errorf("PacketLine() without names has trailing label padding: %q", bare)
	}
}

func TestDescribePacket(t *testing.T) {
	name, value := DescribePacket(protocol.NewPacket("AMT", "00"))
	if name != "audio-muting" || value != "off" {
		t.Errorf("DescribePacket(AMT00) = (%q, %q)", name, value)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf).SetWidth(80)

	p.PrintPacket(SendMarker, protocol.NewPacket("MVL", "QSTN"))
	p.PrintSuccess("Done", nil)

	out := buf.String()
	if !strings.Contains(out, "MVL") || !strings.Contains(out, "Done") {
		t.Errorf("Printer output = %q", out)
	}
	if p.Width() != 80 {
		t.Errorf("Width() = %d, want 80", p.Width())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(tt.input), &out, "Overwrite?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Overwrite? [y/N]") {
			t.Errorf("Confirm(%q) prompt = %q", tt.input, out.String())
		}
	}
}
