// SPDX-License-Identifier: MIT
package tui

import (
	"strings"
	"testing"

	"discolights/internal/audio"
	"discolights/internal/transport"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func update[M tea.Model](t *testing.T, m M, msgs ...tea.Msg) (M, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	var next tea.Model = m
	for _, msg := range msgs {
		next, cmd = next.Update(msg)
	}
	return next.(M), cmd
}

func TestMeterQuits(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		_, cmd := update(t, NewMeterModel("test", nil), keyMsg(k))
		if !isQuit(cmd) {
			t.Errorf("key %q did not quit", k)
		}
	}
	if _, cmd := update(t, NewMeterModel("test", nil), keyMsg("x")); isQuit(cmd) {
		t.Errorf("key %q quit", "x")
	}
}

func TestMeterMessages(t *testing.T) {
	m, _ := update(t, NewMeterModel("test", nil),
		transport.AmplitudeMessage{Type: transport.TypeAmplitude, Min: -0.5, Max: 0.5},
		transport.BandsMessage{Type: transport.TypeBands, Block: 3, Names: []string{"bass", "treble"}, Levels: []float64{0.8, 0.2}},
		transport.BeatMessage{Type: transport.TypeBeat, Swing: 1},
	)

	if m.min != -0.5 || m.max != 0.5 {
		t.Errorf("envelope = (%g, %g), want (-0.5, 0.5)", m.min, m.max)
	}
	if diff := cmp.Diff([]float64{0.8, 0.2}, m.levels); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}
	if m.beats != 1 || m.beatHold != beatHoldTicks {
		t.Errorf("beats = %d, hold = %d, want 1, %d", m.beats, m.beatHold, beatHoldTicks)
	}

	view := m.View()
	for _, want := range []string{"bass", "treble", "BEAT", "beats: 1", "block: 3"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestMeterTickDecays(t *testing.T) {
	calls := 0
	stats := func() Stats { calls++; return Stats{Delivered: 7, Dropped: 2} }
	m, _ := update(t, NewMeterModel("test", stats),
		transport.BandsMessage{Names: []string{"bass"}, Levels: []float64{1}},
		transport.BeatMessage{},
	)

	for range beatHoldTicks {
		var cmd tea.Cmd
		m, cmd = update(t, m, tickMsg{})
		if cmd == nil {
			t.Fatalf("tick did not schedule the next tick")
		}
	}

	if m.beatHold != 0 {
		t.Errorf("beatHold = %d after %d ticks, want 0", m.beatHold, beatHoldTicks)
	}
	if m.levels[0] >= 1 {
		t.Errorf("level = %g after ticks, want decayed below 1", m.levels[0])
	}
	if calls != beatHoldTicks || m.status.Dropped != 2 {
		t.Errorf("stats polled %d times (status %+v), want %d", calls, m.status, beatHoldTicks)
	}
	if strings.Contains(m.View(), "BEAT") {
		t.Errorf("View() still shows BEAT after hold expired")
	}

	// A lower level does not pull a held peak down.
	m, _ = update(t, m, transport.BandsMessage{Names: []string{"bass"}, Levels: []float64{0}})
	if m.levels[0] == 0 {
		t.Errorf("level dropped to 0 immediately, want decay")
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		v      float64
		filled int
	}{
		{-1, 0},
		{0, 0},
		{0.5, 5},
		{1, 10},
		{2, 10},
	}
	for _, tt := range tests {
		got := bar(tt.v, 10)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("bar(%g) has %d filled cells, want %d", tt.v, n, tt.filled)
		}
		if n := strings.Count(got, "░"); n != 10-tt.filled {
			t.Errorf("bar(%g) has %d empty cells, want %d", tt.v, n, 10-tt.filled)
		}
	}
}

var testDevices = []audio.Device{
	{ID: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
	{ID: 1, Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 44100},
	{ID: 2, Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 48000},
}

func TestDeviceListFiltersInputs(t *testing.T) {
	m := NewDeviceListModel(testDevices)
	if len(m.devices) != 2 || m.devices[0].ID != 1 || m.devices[1].ID != 2 {
		t.Errorf("devices = %+v, want only IDs 1 and 2", m.devices)
	}
}

func TestDeviceListSelection(t *testing.T) {
	m, cmd := update(t, NewDeviceListModel(testDevices),
		tea.WindowSizeMsg{Width: 80, Height: 24},
		keyMsg("down"),  // Interface
		keyMsg("enter"), // config screen, 48000 preselected
		keyMsg("down"),  // 88200
		keyMsg("enter"),
	)

	if !isQuit(cmd) {
		t.Errorf("confirming a selection did not quit")
	}
	want := Selection{DeviceID: 2, SampleRate: 88200, Confirmed: true}
	if diff := cmp.Diff(want, m.Selection()); diff != "" {
		t.Errorf("Selection() mismatch (-want +got):\n%s", diff)
	}
}

func TestDeviceListBackAndQuit(t *testing.T) {
	m, _ := update(t, NewDeviceListModel(testDevices),
		tea.WindowSizeMsg{Width: 80, Height: 24},
		keyMsg("enter"),
		keyMsg("esc"),
	)
	if m.activeScreen != ListScreen {
		t.Errorf("activeScreen = %v after esc, want ListScreen", m.activeScreen)
	}
	if !strings.Contains(m.View(), "Mic") {
		t.Errorf("View() missing device list:\n%s", m.View())
	}

	m, cmd := update(t, m, keyMsg("q"))
	if !isQuit(cmd) || m.Selection().Confirmed {
		t.Errorf("q should quit without a confirmed selection")
	}
}

func TestDeviceListEmpty(t *testing.T) {
	m, _ := update(t, NewDeviceListModel(nil), tea.WindowSizeMsg{Width: 80, Height: 24}, keyMsg("enter"))
	if m.activeScreen != ListScreen {
		t.Errorf("enter with no devices changed screen")
	}
	if !strings.Contains(m.View(), "No input devices found.") {
		t.Errorf("View() = %q, want empty notice", m.View())
	}
}
