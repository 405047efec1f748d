package commands

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bsdavidson/oink/internal/protocol"
)

//go:embed commands.yaml
var defaultTable []byte

var (
	// ErrUnknownZone is returned for zone names not in the table
	ErrUnknownZone = errors.New("unknown zone")

	// ErrUnknownCommand is returned for command names or codes not in the zone
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownValue is returned for values the command does not accept
	ErrUnknownValue = errors.New("unknown value")
)

// Value is a named parameter of a command
type Value struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Command is a three character eISCP command and the values it accepts
type Command struct {
	Code        string  `yaml:"code"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Raw         string  `yaml:"raw,omitempty"`
	Values      []Value `yaml:"values"`

	raw *regexp.Regexp
}

// Zone groups the commands addressed to one part of the receiver
type Zone struct {
	Name     string    `yaml:"name"`
	Commands []Command `yaml:"commands"`
}

type document struct {
	Zones []Zone `yaml:"zones"`
}

// Table is a parsed command table
type Table struct {
	zones  []Zone
	byName map[string]*Zone
}

var (
	defaultOnce  sync.Once
	defaultValue *Table
	defaultErr   error
)

// Default returns the embedded command table
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultValue, defaultErr = Load(defaultTable)
	})
	return defaultValue, defaultErr
}

// Load parses a YAML command table
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse command table: %w", err)
	}

	t := &Table{
		zones:  doc.Zones,
		byName: make(map[string]*Zone, len(doc.Zones)),
	}
	for i := range t.zones {
		zone := &t.zones[i]
		if zone.Name == "" {
			return nil, fmt.Errorf("zone %d has no name", i)
		}
		for j := range zone.Commands {
			cmd := &zone.Commands[j]
			if len(cmd.Code) != 3 {
				return nil, fmt.Errorf("zone %s: command %q must have a 3 character code", zone.Name, cmd.Code)
			}
			if cmd.Raw != "" {
				re, err := regexp.Compile(cmd.Raw)
				if err != nil {
					return nil, fmt.Errorf("zone %s: command %s: invalid raw pattern: %w", zone.Name, cmd.Code, err)
				}
				cmd.raw = re
			}
		}
		t.byName[strings.ToLower(zone.Name)] = zone
	}
	return t, nil
}

// Zones returns the zone names in table order
func (t *Table) Zones() []string {
	names := make([]string, 0, len(t.zones))
	for _, z := range t.zones {
		names = append(names, z.Name)
	}
	return names
}

// Commands returns the commands of zone sorted by code
func (t *Table) Commands(zone string) ([]Command, error) {
	z, err := t.zone(zone)
	if err != nil {
		return nil, err
	}
	cmds := append([]Command(nil), z.Commands...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Code < cmds[j].Code })
	return cmds, nil
}

// Lookup builds the packet for command and value in zone.
//
// command is a name ("master-volume") or code ("MVL"); value is a value name
// ("level-up"), a value code ("UP"), or a raw value the command accepts
// ("1F" for a volume level). "query" always maps to QSTN.
func (t *Table) Lookup(zone, command, value string) (protocol.Packet, error) {
	z, err := t.zone(zone)
	if err != nil {
		return protocol.Packet{}, err
	}
	cmd := z.command(command)
	if cmd == nil {
		return protocol.Packet{}, fmt.Errorf("%w %q in zone %s", ErrUnknownCommand, command, z.Name)
	}
	code, err := cmd.resolve(value)
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.NewPacket(cmd.Code, code), nil
}

// Describe names the command and value of p as found in zone.
// ok is false when the command is not in the table; valueName is empty
// for raw values.
func (t *Table) Describe(zone string, p protocol.Packet) (commandName, valueName string, ok bool) {
	z, err := t.zone(zone)
	if err != nil {
		return "", "", false
	}
	cmd := z.command(p.Command)
	if cmd == nil {
		return "", "", false
	}
	for _, v := range cmd.Values {
		if v.Code == p.Parameter {
			return cmd.Name, v.Name, true
		}
	}
	return cmd.Name, "", true
}

// Identify is Describe over every zone in table order. A code listed in
// more than one zone is reported for the earliest one.
func (t *Table) Identify(p protocol.Packet) (zone, commandName, valueName string, ok bool) {
	for _, z := range t.zones {
		if commandName, valueName, ok = t.Describe(z.Name, p); ok {
			return z.Name, commandName, valueName, true
		}
	}
	return "", "", "", false
}

func (t *Table) zone(name string) (*Zone, error) {
	if name == "" {
		name = "main"
	}
	z, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (expected one of %s)", ErrUnknownZone, name, strings.Join(t.Zones(), ", "))
	}
	return z, nil
}

func (z *Zone) command(nameOrCode string) *Command {
	for i := range z.Commands {
		cmd := &z.Commands[i]
		if strings.EqualFold(cmd.Name, nameOrCode) || strings.EqualFold(cmd.Code, nameOrCode) {
			return cmd
		}
	}
	return nil
}

func (c *Command) resolve(value string) (string, error) {
	for _, v := range c.Values {
		if strings.EqualFold(v.Name, value) || strings.EqualFold(v.Code, value) {
			return v.Code, nil
		}
	}
	if strings.EqualFold(value, "query") || strings.EqualFold(value, protocol.QueryParameter) {
		return protocol.QueryParameter, nil
	}
	if c.raw != nil {
		upper := strings.ToUpper(value)
		if c.raw.MatchString(upper) {
			return upper, nil
		}
	}
	return "", fmt.Errorf("%w %q for %s (%s)", ErrUnknownValue, value, c.Name, c.Code)
}

// ValueNames returns the value names accepted by c
func (c *Command) ValueNames() []string {
	names := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		names = append(names, v.Name)
	}
	return names
}

// Lookup resolves against the embedded table
func Lookup(zone, command, value string) (protocol.Packet, error) {
	t, err := Default()
	if err != nil {
		return protocol.Packet{}, err
	}
	return t.Lookup(zone, command, value)
}
