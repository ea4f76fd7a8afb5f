// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"discolights/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// StandardSampleRates are offered on the configuration screen.
var StandardSampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the outcome of the device picker.
type Selection struct {
	DeviceID   int
	SampleRate float64
	Confirmed  bool
}

var (
	quitKeys  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKeys    = key.NewBinding(key.WithKeys("up", "k"))
	downKeys  = key.NewBinding(key.WithKeys("down", "j"))
	enterKeys = key.NewBinding(key.WithKeys("enter"))
	backKeys  = key.NewBinding(key.WithKeys("esc"))
)

// DeviceListModel lists input devices and lets the user pick one and a
// sample rate.
type DeviceListModel struct {
	devices         []audio.Device
	selectedIndex   int
	viewport        viewport.Model
	ready           bool
	activeScreen    ScreenType
	sampleRateIndex int
	selection       Selection
}

// NewDeviceListModel creates a picker over the input-capable devices.
func NewDeviceListModel(devices []audio.Device) DeviceListModel {
	inputs := make([]audio.Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return DeviceListModel{
		devices:      inputs,
		activeScreen: ListScreen,
	}
}

// Init initializes the Bubble Tea model
func (m DeviceListModel) Init() tea.Cmd {
	return nil
}

// Selection returns what the user chose. Confirmed is false if they quit.
func (m DeviceListModel) Selection() Selection {
	return m.selection
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKeys):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKeys):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKeys):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.sampleRateIndex = 0
					for i, rate := range StandardSampleRates {
						if rate == m.devices[m.selectedIndex].DefaultSampleRate {
							m.sampleRateIndex = i
							break
						}
					}
				}
			}

		case ConfigScreen:
			switch {
			case key.Matches(msg, backKeys):
				m.activeScreen = ListScreen
			case key.Matches(msg, upKeys):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, downKeys):
				if m.sampleRateIndex < len(StandardSampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, enterKeys):
				m.selection = Selection{
					DeviceID:   m.devices[m.selectedIndex].ID,
					SampleRate: StandardSampleRates[m.sampleRateIndex],
					Confirmed:  true,
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderDeviceConfig())
	}
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Sample Rate • Enter: Listen • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Type())
		info += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configure Device: %s\n\nSample Rate:\n", m.devices[m.selectedIndex].Name)

	for i, rate := range StandardSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevice runs the picker full screen and returns the selection.
func PickDevice(devices []audio.Device) (Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(devices), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, err
	}
	return final.(DeviceListModel).Selection(), nil
}
