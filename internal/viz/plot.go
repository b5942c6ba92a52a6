package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/daesim/internal/sim"
)

// PlotTrajectory renders the differential states of a result as one
// asciigraph panel, one series per component.
func PlotTrajectory(res *sim.Result, width, height int) string {
	if len(res.Times) == 0 || len(res.X[0]) == 0 {
		return Subtle.Render("no trajectory")
	}
	series := columns(res.X)
	graph := asciigraph.PlotMany(series,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption(fmt.Sprintf("x(t), t in [%g, %g]", res.Times[0], res.Times[len(res.Times)-1])),
	)
	return GraphStyle.Render(graph)
}

// PlotAdjoint renders the adjoint states recorded by a backward pass.
func PlotAdjoint(res *sim.Result, width, height int) string {
	if len(res.RX) == 0 || len(res.RX[0]) == 0 {
		return Subtle.Render("no adjoint trajectory")
	}
	series := columns(res.RX)
	graph := asciigraph.PlotMany(series,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption("adjoint rx(t)"),
	)
	return GraphStyle.Render(graph)
}

// PlotQuadrature renders the accumulated quadratures.
func PlotQuadrature(res *sim.Result, width, height int) string {
	if len(res.Q) == 0 || len(res.Q[0]) == 0 {
		return Subtle.Render("no quadratures")
	}
	series := columns(res.Q)
	graph := asciigraph.PlotMany(series,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption("q(t)"),
	)
	return GraphStyle.Render(graph)
}

// StatsPanel renders the engine statistics of a run.
func StatsPanel(res *sim.Result) string {
	var b strings.Builder
	st := res.Stats
	b.WriteString(StatRow("steps", fmt.Sprintf("%d", st.Steps)) + "\n")
	b.WriteString(StatRow("res evals", fmt.Sprintf("%d", st.ResEvals)) + "\n")
	b.WriteString(StatRow("lin setups", fmt.Sprintf("%d", st.LinSetups)) + "\n")
	b.WriteString(StatRow("err-test fails", fmt.Sprintf("%d", st.ErrTestFails)) + "\n")
	b.WriteString(StatRow("last order", fmt.Sprintf("%d", st.LastOrder)) + "\n")
	b.WriteString(StatRow("first step", fmt.Sprintf("%.3g", st.FirstStep)) + "\n")
	b.WriteString(StatRow("last step", fmt.Sprintf("%.3g", st.LastStep)))
	if res.Checkpoints > 0 {
		b.WriteString("\n" + StatRow("checkpoints", fmt.Sprintf("%d", res.Checkpoints)))
	}
	if len(res.RX) > 0 {
		stB := res.StatsB
		b.WriteString("\n" + Separator(30) + "\n")
		b.WriteString(StatRow("adjoint steps", fmt.Sprintf("%d", stB.Steps)) + "\n")
		b.WriteString(StatRow("adjoint evals", fmt.Sprintf("%d", stB.ResEvals)))
	}
	return PanelStyle.Render(b.String())
}

// columns transposes row-major samples into per-component series.
func columns(rows [][]float64) [][]float64 {
	n := len(rows[0])
	out := make([][]float64, n)
	for j := 0; j < n; j++ {
		out[j] = make([]float64, len(rows))
		for i := range rows {
			out[j][i] = rows[i][j]
		}
	}
	return out
}
