package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bsdavidson/oink/internal/discovery"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenControl   Screen = "control"
)

// Options configures the application
type Options struct {
	// Scan runs discovery for the discovery screen
	Scan ScanFunc

	// TimeLimit is the discovery time limit, for the progress bar
	TimeLimit time.Duration

	// NewReceiver turns the selected receiver into a connection
	NewReceiver func(d *discovery.DiscoveredDevice) Receiver

	// CommandTimeout bounds each command sent from the control screen
	CommandTimeout time.Duration

	// Receiver skips discovery and opens the control screen directly
	Receiver Receiver
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	DiscoveryModel DiscoveryModel
	ControlModel   ControlModel

	// directOnly is set when started on a given receiver; leaving the
	// control screen quits instead of returning to discovery
	directOnly bool

	opts   Options
	Width  int
	Height int
}

// NewAppModel creates the application model
func NewAppModel(opts Options) AppModel {
	m := AppModel{opts: opts}
	if opts.Receiver != nil {
		m.CurrentScreen = ScreenControl
		m.ControlModel = NewControlModel(opts.Receiver, opts.CommandTimeout)
		m.directOnly = true
	} else {
		m.CurrentScreen = ScreenDiscovery
		m.DiscoveryModel = NewDiscoveryModel(opts.Scan, opts.TimeLimit)
	}
	return m
}

// Init initializes the current screen
func (m AppModel) Init() tea.Cmd {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.Init()
	case ScreenControl:
		return m.ControlModel.Init()
	default:
		return nil
	}
}

// Update handles global keys and routes everything else to the current screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.CurrentScreen == ScreenControl {
				m.ControlModel.Close()
			}
			return m, tea.Quit
		}
	}

	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.updateDiscovery(msg)
	case ScreenControl:
		return m.updateControl(msg)
	}
	return m, nil
}

func (m AppModel) updateDiscovery(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Quit from the device list, but let the list filter and manual entry
	// have their keystrokes
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !m.DiscoveryModel.Scanning && !m.DiscoveryModel.ManualMode &&
		!m.DiscoveryModel.DeviceList.SettingFilter() {
		if keyMsg.String() == "q" || keyMsg.String() == "esc" {
			return m, tea.Quit
		}
	}

	updated, cmd := m.DiscoveryModel.Update(msg)
	m.DiscoveryModel = updated.(DiscoveryModel)

	if selected := m.DiscoveryModel.GetSelectedDevice(); selected != nil {
		m.DiscoveryModel.Selected = false
		return m.openControl(selected)
	}
	return m, cmd
}

func (m AppModel) updateControl(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.ControlModel.Update(msg)
	m.ControlModel = updated.(ControlModel)

	if m.ControlModel.IsBackRequested() {
		m.ControlModel.Close()
		if m.directOnly {
			return m, tea.Quit
		}
		m.CurrentScreen = ScreenDiscovery
		m.DiscoveryModel = NewDiscoveryModel(m.opts.Scan, m.opts.TimeLimit)
		m.DiscoveryModel.Width, m.DiscoveryModel.Height = m.Width, m.Height
		return m, m.DiscoveryModel.Init()
	}
	return m, cmd
}

func (m AppModel) openControl(d *discovery.DiscoveredDevice) (tea.Model, tea.Cmd) {
	m.CurrentScreen = ScreenControl
	m.ControlModel = NewControlModel(m.opts.NewReceiver(d), m.opts.CommandTimeout)
	m.ControlModel.Width, m.ControlModel.Height = m.Width, m.Height
	return m, m.ControlModel.Init()
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.View()
	case ScreenControl:
		return m.ControlModel.View()
	default:
		return "Unknown screen"
	}
}

// Run starts the application in the alternate screen and blocks until it exits
func Run(opts Options) error {
	_, err := tea.NewProgram(NewAppModel(opts), tea.WithAltScreen()).Run()
	return err
}
