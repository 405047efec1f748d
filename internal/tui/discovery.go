package tui

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/protocol"
)

// ScanFunc runs one discovery
type ScanFunc func(ctx context.Context) ([]*discovery.DiscoveredDevice, error)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	devices []*discovery.DiscoveredDevice
	err     error
}

// discoveryKeyMap defines key bindings for the discovery screen
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Quit},
	}
}

// manualModeKeyMap defines key bindings for manual address entry
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// deviceItem wraps a DiscoveredDevice for use with bubbles/list
type deviceItem struct {
	device *discovery.DiscoveredDevice
}

func (d deviceItem) FilterValue() string {
	return d.device.Model + " " + d.device.Address + " " + d.device.Identifier
}

func (d deviceItem) Title() string {
	return d.device.Model
}

func (d deviceItem) Description() string {
	return fmt.Sprintf("%s:%d • %s • %s", d.device.Address, d.device.Port, d.device.Region, d.device.Identifier)
}

// deviceDelegate renders each receiver as a card
type deviceDelegate struct {
	width int
}

func (d deviceDelegate) Height() int { return 6 } // Card height including borders

func (d deviceDelegate) Spacing() int { return 1 }

func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(deviceItem)
	if !ok {
		return
	}
	dev := it.device
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + dev.Model))
	} else {
		content.WriteString("  " + dev.Model)
	}
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  Address:  %s:%d\n", dev.Address, dev.Port))
	content.WriteString(fmt.Sprintf("  Region:   %s   ID: %s", dev.Region, dev.Identifier))

	cardWidth := d.width - 6
	if cardWidth < MinTerminalWidth-6 {
		cardWidth = MinTerminalWidth - 6
	}
	if cardWidth > MaxContentWidth-6 {
		cardWidth = MaxContentWidth - 6
	}

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2).
		Width(cardWidth)
	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	_, _ = fmt.Fprint(w, cardStyle.Render(content.String()))
}

// DiscoveryModel is the receiver discovery screen
type DiscoveryModel struct {
	Scanning   bool
	DeviceList list.Model
	Selected   bool
	Err        error

	ManualMode   bool
	AddressInput textinput.Model
	ManualErr    string

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	TimeLimit     time.Duration
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap

	scan ScanFunc
}

// NewDiscoveryModel creates a discovery screen that scans with scan.
// timeLimit only drives the progress bar.
func NewDiscoveryModel(scan ScanFunc, timeLimit time.Duration) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "192.168.1.50 or 192.168.1.50:60128"
	input.CharLimit = 64
	input.Width = 40

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	deviceList := list.New([]list.Item{}, deviceDelegate{width: MinTerminalWidth}, 0, 0)
	deviceList.Title = "Discovered Receivers"
	deviceList.SetShowStatusBar(false)
	deviceList.SetFilteringEnabled(true)
	deviceList.SetShowHelp(false)
	deviceList.Styles.Title = TitleStyle

	if timeLimit <= 0 {
		timeLimit = discovery.DefaultTimeLimit
	}

	return DiscoveryModel{
		DeviceList:   deviceList,
		AddressInput: input,
		Spinner:      s,
		ProgressBar:  bar,
		TimeLimit:    timeLimit,
		Help:         help.New(),
		Keys: discoveryKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "control")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Manual: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "enter address")),
			Quit:   key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		},
		ManualKeys: manualModeKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		},
		scan: scan,
	}
}

// Init starts the first scan
func (m DiscoveryModel) Init() tea.Cmd {
	return m.startScan()
}

func (m DiscoveryModel) startScan() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		scanCmd(m.scan, m.TimeLimit),
		m.Spinner.Tick,
	)
}

// scanCmd runs scan in the background. The context outlives the time limit
// only by a grace period so a stuck scan cannot hang the screen.
func scanCmd(scan ScanFunc, timeLimit time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeLimit+2*time.Second)
		defer cancel()
		devices, err := scan(ctx)
		return scanCompleteMsg{devices: devices, err: err}
	}
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		if !m.Scanning && m.DeviceList.FilterState() != list.Filtering {
			if handled, model, cmd := m.updateNormalMode(msg); handled {
				return model, cmd
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DeviceList.SetDelegate(deviceDelegate{width: msg.Width - 4})
		m.DeviceList.SetWidth(msg.Width - 4)
		m.DeviceList.SetHeight(msg.Height - 8) // Leave room for header/footer

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()
		return m, nil

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, dev := range msg.devices {
			items[i] = deviceItem{device: dev}
		}
		cmd = m.DeviceList.SetItems(items)
		return m, cmd

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.ManualMode && !m.Scanning {
		m.DeviceList, cmd = m.DeviceList.Update(msg)
	}
	return m, cmd
}

func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Enter):
		if m.DeviceList.SelectedItem() != nil {
			m.Selected = true
		}
		return true, m, nil

	case key.Matches(msg, m.Keys.Rescan):
		m.Err = nil
		m.DeviceList.SetItems(nil)
		return true, m, m.startScan()

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.ManualErr = ""
		m.AddressInput.SetValue("")
		return true, m, m.AddressInput.Focus()
	}
	return false, m, nil
}

func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.AddressInput.Blur()
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		dev, err := parseManualAddress(m.AddressInput.Value())
		if err != nil {
			m.ManualErr = err.Error()
			return m, nil
		}
		items := append([]list.Item{deviceItem{device: dev}}, m.DeviceList.Items()...)
		cmd = m.DeviceList.SetItems(items)
		m.DeviceList.Select(0)
		m.ManualMode = false
		m.AddressInput.Blur()
		return m, cmd
	}

	m.AddressInput, cmd = m.AddressInput.Update(msg)
	return m, cmd
}

// parseManualAddress accepts "host" or "host:port"
func parseManualAddress(value string) (*discovery.DiscoveredDevice, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("address is required")
	}

	host, port := value, protocol.DiscoveryPort
	if h, p, err := net.SplitHostPort(value); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		host, port = h, n
	}

	return &discovery.DiscoveredDevice{
		Address: host,
		Port:    port,
		Type:    protocol.DefaultDeviceType,
		Model:   "Manual: " + host,
	}, nil
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning(width)
		helpText = "ctrl+c quit"
	default:
		content = m.renderDeviceResults()
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

func (m DiscoveryModel) renderScanning(width int) string {
	elapsed := time.Since(m.ScanStartTime)
	percent := float64(elapsed) / float64(m.TimeLimit)
	if percent > 1 {
		percent = 1
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR RECEIVERS", m.Spinner.View())),
		SubtitleStyle.Render("Broadcasting eISCP discovery on your network..."),
		"",
		m.ProgressBar.ViewAs(percent),
		"",
	)
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m DiscoveryModel) renderDeviceResults() string {
	var b strings.Builder
	b.WriteString("\n")

	troubleshooting := "  Troubleshooting:\n" +
		"    • Ensure the receiver is powered on or in network standby\n" +
		"    • Check that this machine is on the same subnet\n" +
		"    • Press 'a' to enter the receiver address by hand\n"

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Scan failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting)
	case len(m.DeviceList.Items()) == 0:
		warning := lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
		b.WriteString("  ")
		b.WriteString(warning.Render("⚠ No receivers found on your network"))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting)
	default:
		b.WriteString(m.DeviceList.View())
	}
	return b.String()
}

func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString(RenderSubtitle("Enter receiver address"))
	b.WriteString("\n\n  Address: ")
	b.WriteString(m.AddressInput.View())
	b.WriteString("\n")
	if m.ManualErr != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(ErrorColor).Render("  " + m.ManualErr))
		b.WriteString("\n")
	}
	return b.String()
}

// GetSelectedDevice returns the selected receiver, if any
func (m DiscoveryModel) GetSelectedDevice() *discovery.DiscoveredDevice {
	if !m.Selected {
		return nil
	}
	if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
		return item.device
	}
	return nil
}
