// Package tui hosts the interactive terminal front end: a bubbletea
// program that advances an integration grid point by grid point and
// plots the trajectory as it grows.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/daesim/internal/integrator"
	"github.com/san-kum/daesim/internal/models"
	"github.com/san-kum/daesim/internal/viz"
)

const (
	graphWidth  = 70
	graphHeight = 14
	tickEvery   = 30 * time.Millisecond
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Model drives one integration instance interactively.
type Model struct {
	model models.Model
	sol   *integrator.Solver
	mem   *integrator.Memory
	grid  []float64

	idx     int
	hist    [][]float64 // per differential component
	running bool
	err     error
}

func NewModel(m models.Model, opts integrator.Options) (Model, error) {
	sys := m.System()
	sol, err := integrator.New(m.Name(), sys, m.Grid(), opts)
	if err != nil {
		return Model{}, err
	}
	mem, err := sol.InitMemory()
	if err != nil {
		return Model{}, err
	}
	lm := Model{
		model:   m,
		sol:     sol,
		mem:     mem,
		grid:    sol.Grid(),
		running: true,
	}
	if err := lm.reset(); err != nil {
		mem.Close()
		return Model{}, err
	}
	return lm, nil
}

func (m *Model) reset() error {
	x0, z0, p := m.model.Initial()
	if err := m.mem.Reset(x0, z0, p); err != nil {
		return err
	}
	m.idx = 0
	m.hist = make([][]float64, m.sol.Dimensions().Nx)
	return nil
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.mem.Close()
			return m, tea.Quit
		case " ":
			m.running = !m.running
			if m.running {
				return m, tick()
			}
			return m, nil
		case "r":
			m.err = m.reset()
			m.running = m.err == nil
			return m, tick()
		}
	case TickMsg:
		if !m.running || m.err != nil || m.idx >= len(m.grid) {
			return m, nil
		}
		d := m.sol.Dimensions()
		x := make([]float64, d.Nx)
		if err := m.mem.Advance(m.grid[m.idx], x, nil, nil); err != nil {
			m.err = err
			m.running = false
			return m, nil
		}
		for j := range m.hist {
			m.hist[j] = append(m.hist[j], x[j])
		}
		m.idx++
		if m.idx >= len(m.grid) {
			m.running = false
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(viz.HeaderStyle.Render(fmt.Sprintf("daesim live: %s", m.model.Name())) + "\n")

	if len(m.hist) > 0 && len(m.hist[0]) > 1 {
		graph := asciigraph.PlotMany(m.hist,
			asciigraph.Width(graphWidth),
			asciigraph.Height(graphHeight),
		)
		b.WriteString(viz.GraphStyle.Render(graph) + "\n")
	}

	progress := 0.0
	if len(m.grid) > 0 {
		progress = float64(m.idx) / float64(len(m.grid))
	}
	b.WriteString(viz.ProgressBar(progress, graphWidth) + "\n")

	st := m.mem.StatsForward()
	b.WriteString(viz.StatRow("t", fmt.Sprintf("%.4g", st.CurrentTime)))
	b.WriteString(viz.StatRow("  steps", fmt.Sprintf("%d", st.Steps)))
	b.WriteString(viz.StatRow("  order", fmt.Sprintf("%d", st.LastOrder)) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(viz.StatusFailed.Render("error: "+m.err.Error()) + "\n")
	case m.idx >= len(m.grid):
		b.WriteString(viz.StatusRunning.Render("done") + "\n")
	case !m.running:
		b.WriteString(viz.Subtle.Render("paused") + "\n")
	}

	b.WriteString(viz.HelpStyle.Render("space pause · r reset · q quit"))
	return b.String()
}
