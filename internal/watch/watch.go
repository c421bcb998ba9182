// Package watch renders a running frame live in the terminal with a
// sparkline of one selected field.
package watch

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/musicinmybrain/simframe/internal/frame"
)

const (
	graphWidth      = 70
	graphHeight     = 12
	historyCapacity = 600
	stepsPerTick    = 8
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// Model drives a frame forward a few steps per frame tick and plots the
// watched field's history.
type Model struct {
	fr      *frame.Frame
	title   string
	field   string
	h       float64
	tEnd    float64
	history []float64
	retries int
	lastH   float64
	paused  bool
	done    bool
	err     error
}

func NewModel(fr *frame.Frame, title, field string, h0, tEnd float64) Model {
	return Model{
		fr:      fr,
		title:   title,
		field:   field,
		h:       h0,
		tEnd:    tEnd,
		history: make([]float64, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		}
	case TickMsg:
		if !m.paused && !m.done && m.err == nil {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) advance() {
	for i := 0; i < stepsPerTick; i++ {
		if m.fr.X() >= m.tEnd {
			m.done = true
			return
		}
		accepted, err := m.fr.Step(m.h)
		if err != nil {
			m.err = err
			return
		}
		m.lastH = accepted
		if next := m.fr.NextStep(); next > 0 {
			m.h = next
		}
		if f, err := m.fr.Field(m.field); err == nil {
			m.history = append(m.history, f.Float())
			if len(m.history) > historyCapacity {
				m.history = m.history[len(m.history)-historyCapacity:]
			}
		}
	}
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render(m.title) + "\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("t", fmt.Sprintf("%.4f", m.fr.X()))
	row("h", fmt.Sprintf("%.2e", m.lastH))
	row("steps", fmt.Sprintf("%d", m.fr.Steps()))
	if f, err := m.fr.Field(m.field); err == nil {
		row(m.field, fmt.Sprintf("%.6f", f.Float()))
	}

	if len(m.history) > 1 {
		graph := asciigraph.Plot(m.history,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption(m.field),
		)
		sb.WriteString(graphStyle.Render(graph) + "\n")
	}

	switch {
	case m.err != nil:
		sb.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n")
	case m.done:
		sb.WriteString(valueStyle.Render("finished") + "\n")
	case m.paused:
		sb.WriteString(valueStyle.Render("paused") + "\n")
	}

	sb.WriteString(helpStyle.Render("space pause · q quit"))
	return sb.String()
}

// Run blocks until the user quits the live view.
func Run(fr *frame.Frame, title, field string, h0, tEnd float64) error {
	_, err := tea.NewProgram(NewModel(fr, title, field, h0, tEnd)).Run()
	return err
}
