package commands

import (
	"errors"
	"testing"

	"github.com/bsdavidson/oink/internal/protocol"
)

func mustDefault(t *testing.T) *Table {
	t.Helper()
	table, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	return table
}

func TestDefault_Zones(t *testing.T) {
	table := mustDefault(t)

	want := []string{"main", "zone2", "zone3", "zone4", "dock"}
	got := table.Zones()
	if len(got) != len(want) {
		t.Fatalf("Zones() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Zones()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		zone    string
		command string
		value   string
		want    protocol.Packet
		wantErr error
	}{
		{"by names", "main", "system-power", "on", protocol.NewPacket("PWR", "01"), nil},
		{"by codes", "main", "PWR", "00", protocol.NewPacket("PWR", "00"), nil},
		{"case insensitive", "MAIN", "mvl", "Level-Up", protocol.NewPacket("MVL", "UP"), nil},
		{"default zone", "", "audio-muting", "toggle", protocol.NewPacket("AMT", "TG"), nil},
		{"query alias", "main", "input-selector", "query", protocol.NewQuery("SLI"), nil},
		{"query on any command", "zone2", "selector", "QSTN", protocol.NewQuery("SLZ"), nil},
		{"raw volume", "main", "master-volume", "1f", protocol.NewPacket("MVL", "1F"), nil},
		{"raw half step volume", "main", "MVL", "2A.5", protocol.NewPacket("MVL", "2A.5"), nil},
		{"zone2 volume", "zone2", "volume", "20", protocol.NewPacket("ZVL", "20"), nil},
		{"zone3 power", "zone3", "power", "on", protocol.NewPacket("PW3", "01"), nil},
		{"dock play", "dock", "network-usb", "play", protocol.NewPacket("NTC", "PLAY"), nil},
		{"unknown zone", "zone9", "power", "on", protocol.Packet{}, ErrUnknownZone},
		{"unknown command", "main", "warp-drive", "on", protocol.Packet{}, ErrUnknownCommand},
		{"unknown value", "main", "system-power", "maybe", protocol.Packet{}, ErrUnknownValue},
		{"raw not accepted", "main", "system-power", "02", protocol.Packet{}, ErrUnknownValue},
		{"raw out of pattern", "main", "master-volume", "XYZ", protocol.Packet{}, ErrUnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup(tt.zone, tt.command, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Lookup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCommands_SortedByCode(t *testing.T) {
	table := mustDefault(t)

	cmds, err := table.Commands("main")
	if err != nil {
		t.Fatalf("Commands() error = %v", err)
	}
	if len(cmds) == 0 {
		t.Fatal("Commands(main) is empty")
	}
	for i := 1; i < len(cmds); i++ {
		if cmds[i-1].Code > cmds[i].Code {
			t.Errorf("commands not sorted: %s before %s", cmds[i-1].Code, cmds[i].Code)
		}
	}

	if _, err := table.Commands("attic"); !errors.Is(err, ErrUnknownZone) {
		t.Errorf("Commands(attic) error = %v, want ErrUnknownZone", err)
	}
}

func TestDescribe(t *testing.T) {
	table := mustDefault(t)

	cmd, value, ok := table.Describe("main", protocol.NewPacket("PWR", "01"))
	if !ok || cmd != "system-power" || value != "on" {
		t.Errorf("Describe(PWR01) = %q, %q, %v", cmd, value, ok)
	}

	cmd, value, ok = table.Describe("main", protocol.NewPacket("MVL", "2A"))
	if !ok || cmd != "master-volume" || value != "" {
		t.Errorf("Describe(MVL2A) = %q, %q, %v", cmd, value, ok)
	}

	if _, _, ok := table.Describe("main", protocol.NewPacket("ZZZ", "00")); ok {
		t.Error("Describe(ZZZ) should not be found")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "zones: [unclosed"},
		{"short code", "zones:\n  - name: main\n    commands:\n      - code: PW\n"},
		{"bad raw pattern", "zones:\n  - name: main\n    commands:\n      - code: MVL\n        raw: \"[\"\n"},
		{"unnamed zone", "zones:\n  - commands: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.data)); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestCommand_ValueNames(t *testing.T) {
	table := mustDefault(t)
	cmds, _ := table.Commands("main")

	for _, c := range cmds {
		if c.Code != "PWR" {
			continue
		}
		names := c.ValueNames()
		if len(names) != 3 || names[0] != "standby" || names[1] != "on" || names[2] != "query" {
			t.Errorf("ValueNames() = %v", names)
		}
		return
	}
	t.Fatal("PWR not found")
}

func TestIdentify(t *testing.T) {
	table := mustDefault(t)

	tests := []struct {
		name      string
		packet    protocol.Packet
		wantZone  string
		wantName  string
		wantValue string
		wantOK    bool
	}{
		{"main named value", protocol.NewPacket("PWR", "01"), "main", "system-power", "on", true},
		{"main raw value", protocol.NewPacket("MVL", "1F"), "main", "master-volume", "", true},
		{"zone2", protocol.NewPacket("ZPW", "00"), "zone2", "power", "standby", true},
		{"unknown", protocol.NewPacket("ZZZ", "01"), "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, name, value, ok := table.Identify(tt.packet)
			if zone != tt.wantZone || name != tt.wantName || value != tt.wantValue || ok != tt.wantOK {
				t.Errorf("Identify() = (%q, %q, %q, %v), want (%q, %q, %q, %v)",
					zone, name, value, ok, tt.wantZone, tt.wantName, tt.wantValue, tt.wantOK)
			}
		})
	}
}
