package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/protocol"
	"github.com/bsdavidson/oink/internal/ui"
)

const (
	maxLogLines    = 200
	packetBuffer   = 64
	connectTimeout = 5 * time.Second
)

// statusCommands are queried after connecting and on refresh
var statusCommands = []string{"PWR", "MVL", "AMT", "SLI"}

// Receiver is the connection the control screen drives. *device.Device
// satisfies it.
type Receiver interface {
	Connect(ctx context.Context) error
	SendCommand(ctx context.Context, command, parameter string, timeout time.Duration) (protocol.Packet, error)
	Subscribe(fn func(protocol.Packet)) (unsubscribe func())
	Close() error
	String() string
}

type connectedMsg struct {
	err error
}

type packetMsg struct {
	packet protocol.Packet
}

type commandResultMsg struct {
	sent protocol.Packet
	err  error
}

// controlKeyMap defines key bindings for the control screen
type controlKeyMap struct {
	Power      key.Binding
	Mute       key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	InputNext  key.Binding
	Refresh    key.Binding
	Raw        key.Binding
	Back       key.Binding
}

func (k controlKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Power, k.Mute, k.VolumeUp, k.VolumeDown, k.InputNext, k.Refresh, k.Raw, k.Back}
}

func (k controlKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Power, k.Mute, k.InputNext},
		{k.VolumeUp, k.VolumeDown},
		{k.Refresh, k.Raw, k.Back},
	}
}

// ReceiverState is what the control screen knows about the receiver,
// updated from every inbound packet.
type ReceiverState struct {
	Power  string // "on", "standby" or "" when unknown
	Volume int    // -1 when unknown
	Muted  string // "on", "off" or ""
	Input  string // selector value name, or the raw code
}

// Apply folds p into the state. It reports whether p changed anything.
func (s *ReceiverState) Apply(p protocol.Packet) bool {
	switch p.Command {
	case "PWR":
		switch p.Parameter {
		case "01":
			s.Power = "on"
		case "00":
			s.Power = "standby"
		default:
			return false
		}
	case "AMT":
		switch p.Parameter {
		case "01":
			s.Muted = "on"
		case "00":
			s.Muted = "off"
		default:
			return false
		}
	case "MVL":
		v, err := strconv.ParseUint(p.Parameter, 16, 8)
		if err != nil {
			return false
		}
		s.Volume = int(v)
	case "SLI":
		if p.Parameter == "" || p.Parameter == "N/A" {
			return false
		}
		s.Input = p.Parameter
		if _, _, value, ok := describe(p); ok && value != "" {
			s.Input = value
		}
	default:
		return false
	}
	return true
}

// ControlModel is the remote control screen for one receiver
type ControlModel struct {
	Receiver   Receiver
	Timeout    time.Duration
	State      ReceiverState
	Connected  bool
	Connecting bool
	Err        error
	Log        []string

	RawMode  bool
	RawInput textinput.Model

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    controlKeyMap

	back        bool
	packets     chan protocol.Packet
	done        chan struct{}
	unsubscribe func()
}

// NewControlModel creates a control screen for r. timeout bounds each command.
func NewControlModel(r Receiver, timeout time.Duration) ControlModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "MVL1F"
	input.CharLimit = 64
	input.Width = 30

	return ControlModel{
		Receiver:   r,
		Timeout:    timeout,
		State:      ReceiverState{Volume: -1},
		Connecting: true,
		RawInput:   input,
		Spinner:    s,
		Help:       help.New(),
		Keys: controlKeyMap{
			Power:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "power")),
			Mute:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
			VolumeUp:   key.NewBinding(key.WithKeys("+", "=", "up"), key.WithHelp("+", "vol up")),
			VolumeDown: key.NewBinding(key.WithKeys("-", "down"), key.WithHelp("-", "vol down")),
			InputNext:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "next input")),
			Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
			Raw:        key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "raw command")),
			Back:       key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("q", "back")),
		},
		packets: make(chan protocol.Packet, packetBuffer),
		done:    make(chan struct{}),
	}
}

// Init connects and subscribes to inbound packets
func (m ControlModel) Init() tea.Cmd {
	return tea.Batch(m.connectCmd(), m.Spinner.Tick)
}

func (m ControlModel) connectCmd() tea.Cmd {
	r := m.Receiver
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return connectedMsg{err: r.Connect(ctx)}
	}
}

// waitForPacket delivers the next subscribed packet as a packetMsg
func waitForPacket(ch <-chan protocol.Packet, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case p := <-ch:
			return packetMsg{packet: p}
		case <-done:
			return nil
		}
	}
}

func (m ControlModel) sendCmd(command, parameter string) tea.Cmd {
	r, timeout := m.Receiver, m.Timeout
	return func() tea.Msg {
		sent := protocol.NewPacket(command, parameter)
		_, err := r.SendCommand(context.Background(), command, parameter, timeout)
		return commandResultMsg{sent: sent, err: err}
	}
}

func (m ControlModel) refreshCmd() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(statusCommands))
	for _, c := range statusCommands {
		cmds = append(cmds, m.sendCmd(c, protocol.QueryParameter))
	}
	return tea.Sequence(cmds...)
}

// Update handles messages and updates the model
func (m ControlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.Connecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case connectedMsg:
		m.Connecting = false
		if msg.err != nil {
			m.Err = fmt.Errorf("connect to %s: %w", m.Receiver, msg.err)
			return m, nil
		}
		m.Connected = true
		m.Err = nil
		ch, done := m.packets, m.done
		m.unsubscribe = m.Receiver.Subscribe(func(p protocol.Packet) {
			select {
			case ch <- p:
			case <-done:
			default:
			}
		})
		return m, tea.Batch(waitForPacket(ch, done), m.refreshCmd())

	case packetMsg:
		m.State.Apply(msg.packet)
		m.appendLog(ui.ReceiveMarker, msg.packet)
		return m, waitForPacket(m.packets, m.done)

	case commandResultMsg:
		m.appendLog(ui.SendMarker, msg.sent)
		m.Err = msg.err
		return m, nil

	case tea.KeyMsg:
		if m.RawMode {
			return m.updateRawMode(msg)
		}
		return m.updateNormalMode(msg)
	}

	return m, nil
}

func (m ControlModel) updateNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.Keys.Back) {
		m.back = true
		return m, nil
	}
	if !m.Connected {
		if key.Matches(msg, m.Keys.Refresh) && !m.Connecting {
			m.Connecting = true
			m.Err = nil
			return m, tea.Batch(m.connectCmd(), m.Spinner.Tick)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.Keys.Power):
		if m.State.Power == "on" {
			return m, m.sendCmd("PWR", "00")
		}
		return m, m.sendCmd("PWR", "01")

	case key.Matches(msg, m.Keys.Mute):
		return m, m.sendCmd("AMT", "TG")

	case key.Matches(msg, m.Keys.VolumeUp):
		return m, m.sendCmd("MVL", "UP")

	case key.Matches(msg, m.Keys.VolumeDown):
		return m, m.sendCmd("MVL", "DOWN")

	case key.Matches(msg, m.Keys.InputNext):
		return m, m.sendCmd("SLI", "UP")

	case key.Matches(msg, m.Keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.Keys.Raw):
		m.RawMode = true
		m.RawInput.SetValue("")
		return m, m.RawInput.Focus()
	}
	return m, nil
}

func (m ControlModel) updateRawMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.RawMode = false
		m.RawInput.Blur()
		return m, nil

	case "enter":
		command, parameter, err := ParseRawCommand(m.RawInput.Value())
		m.RawMode = false
		m.RawInput.Blur()
		if err != nil {
			m.Err = err
			return m, nil
		}
		return m, m.sendCmd(command, parameter)
	}

	var cmd tea.Cmd
	m.RawInput, cmd = m.RawInput.Update(msg)
	return m, cmd
}

// ParseRawCommand splits "MVL1F" or "mvl 1f" into command and parameter.
// A missing parameter means a query.
func ParseRawCommand(input string) (command, parameter string, err error) {
	input = strings.ToUpper(strings.Join(strings.Fields(input), ""))
	if len(input) < 3 {
		return "", "", fmt.Errorf("command %q is too short (expected e.g. MVL1F)", input)
	}
	command, parameter = input[:3], input[3:]
	if parameter == "" {
		parameter = protocol.QueryParameter
	}
	return command, parameter, nil
}

func (m *ControlModel) appendLog(direction string, p protocol.Packet) {
	name, value := ui.DescribePacket(p)
	line := time.Now().Format("15:04:05") + " " + ui.PacketLine(direction, p, name, value)
	m.Log = append(m.Log, line)
	if len(m.Log) > maxLogLines {
		m.Log = m.Log[len(m.Log)-maxLogLines:]
	}
}

// IsBackRequested reports whether the user asked to leave the screen
func (m ControlModel) IsBackRequested() bool {
	return m.back
}

// Close unsubscribes and closes the receiver connection. Call it once.
func (m ControlModel) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	close(m.done)
	_ = m.Receiver.Close()
}

// View renders the control screen
func (m ControlModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Receiver " + m.Receiver.String()))
	b.WriteString("\n")

	switch {
	case m.Connecting:
		b.WriteString("  " + m.Spinner.View() + " Connecting...\n")
	case !m.Connected:
		b.WriteString(RenderError(fmt.Sprintf("%v", m.Err)))
		b.WriteString("\n\n  Press 'r' to retry or 'q' to go back.\n")
	default:
		b.WriteString(m.renderStatus())
		b.WriteString("\n")
		if m.RawMode {
			b.WriteString("  Command: " + m.RawInput.View() + "\n")
		}
		if m.Err != nil {
			b.WriteString(lipgloss.NewStyle().Foreground(ErrorColor).Render("  " + m.Err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.renderLog())
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m ControlModel) renderStatus() string {
	row := func(label, value string) string {
		return StatusLabelStyle.Render(label) + value
	}
	onOff := func(v, on string) string {
		switch v {
		case "":
			return OffStyle.Render("?")
		case on:
			return OnStyle.Render(v)
		default:
			return OffStyle.Render(v)
		}
	}

	volume := "?"
	if m.State.Volume >= 0 {
		volume = fmt.Sprintf("%d (%02X)", m.State.Volume, m.State.Volume)
	}
	input := m.State.Input
	if input == "" {
		input = "?"
	}

	lines := []string{
		row("Power", onOff(m.State.Power, "on")),
		row("Volume", StatusValueStyle.Render(volume)),
		row("Muted", onOff(m.State.Muted, "on")),
		row("Input", StatusValueStyle.Render(input)),
	}
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func (m ControlModel) renderLog() string {
	height := m.Height - 20 // header, status panel, footer
	if height < 3 {
		height = 3
	}
	lines := m.Log
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	if len(lines) == 0 {
		return LogLineStyle.Render("  No packets yet")
	}
	return "  " + strings.Join(lines, "\n  ")
}

// describe names p from the default command table
func describe(p protocol.Packet) (zone, name, value string, ok bool) {
	t, err := commands.Default()
	if err != nil {
		return "", "", "", false
	}
	return t.Identify(p)
}
