// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"discolights/internal/transport"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	meterTick     = 50 * time.Millisecond
	beatHoldTicks = 4    // Ticks a beat stays lit
	levelDecay    = 0.85 // Per tick fall-off of displayed band levels
	defaultWidth  = 80
)

// Stats is polled on every tick for the status line.
type Stats struct {
	Delivered uint64
	Dropped   uint64
}

// MeterModel shows the live envelope, band levels and beat flashes.
type MeterModel struct {
	title string
	stats func() Stats
	width int

	min, max  float64
	bandNames []string
	levels    []float64
	block     uint64
	beats     uint64
	beatHold  int
	status    Stats
}

type tickMsg time.Time

// NewMeterModel creates a meter. stats may be nil.
func NewMeterModel(title string, stats func() Stats) MeterModel {
	return MeterModel{title: title, stats: stats, width: defaultWidth}
}

func tick() tea.Cmd {
	return tea.Tick(meterTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MeterModel) Init() tea.Cmd {
	return tick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		if m.beatHold > 0 {
			m.beatHold--
		}
		for i := range m.levels {
			m.levels[i] *= levelDecay
		}
		if m.stats != nil {
			m.status = m.stats()
		}
		return m, tick()

	case transport.AmplitudeMessage:
		m.min, m.max = msg.Min, msg.Max

	case transport.BandsMessage:
		if len(m.levels) != len(msg.Levels) {
			m.levels = make([]float64, len(msg.Levels))
		}
		m.bandNames = msg.Names
		m.block = msg.Block
		// Peak hold with decay keeps bars readable at high block rates.
		for i, v := range msg.Levels {
			m.levels[i] = math.Max(m.levels[i], v)
		}

	case transport.BeatMessage:
		m.beats++
		m.beatHold = beatHoldTicks
	}
	return m, nil
}

func (m MeterModel) View() string {
	barWidth := max(10, m.width-labelStyle.GetWidth()-10)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	swing := math.Min(1, (m.max-m.min)/2)
	fmt.Fprintf(&sb, "%s%s %5.3f\n", labelStyle.Render("level"), bar(swing, barWidth), swing)
	sb.WriteString("\n")

	for i, name := range m.bandNames {
		fmt.Fprintf(&sb, "%s%s %5.3f\n", labelStyle.Render(name), bar(m.levels[i], barWidth), m.levels[i])
	}
	sb.WriteString("\n")

	if m.beatHold > 0 {
		sb.WriteString(beatStyle.Render("BEAT"))
	} else {
		sb.WriteString(infoStyle.Render("    "))
	}
	fmt.Fprintf(&sb, "  beats: %d  block: %d  delivered: %d  dropped: %d\n\n",
		m.beats, m.block, m.status.Delivered, m.status.Dropped)
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

// bar renders v in [0, 1] as a horizontal bar of width cells.
func bar(v float64, width int) string {
	v = math.Max(0, math.Min(1, v))
	filled := int(math.Round(v * float64(width)))
	return barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
}

// Transport forwards relay messages into a running program. Send blocks
// until the program accepts the message or exits.
type Transport struct {
	p *tea.Program
}

// NewTransport wraps p.
func NewTransport(p *tea.Program) *Transport {
	return &Transport{p: p}
}

func (t *Transport) Send(data any) error {
	t.p.Send(data)
	return nil
}

// Close is a no-op, the program is owned by the caller.
func (t *Transport) Close() error {
	return nil
}

var _ transport.Transport = (*Transport)(nil)

// NewMeterProgram creates the full screen meter program.
func NewMeterProgram(title string, stats func() Stats) *tea.Program {
	return tea.NewProgram(NewMeterModel(title, stats), tea.WithAltScreen())
}
