package sim

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/daesim/internal/models"
)

func TestEnsembleDecayRates(t *testing.T) {
	m := models.NewDecay()
	e := NewEnsemble(m.Name(), m.System(), m.Grid(), tightOptions())

	params := [][]float64{{0.5}, {1.0}, {2.0}}
	x0, z0, _ := m.Initial()
	members := e.Run(context.Background(), x0, z0, params)

	if len(members) != len(params) {
		t.Fatalf("got %d members, expected %d", len(members), len(params))
	}
	for i, mb := range members {
		if mb.Err != nil {
			t.Fatalf("member %d: %v", i, mb.Err)
		}
		rate := params[i][0]
		last := len(mb.Result.Times) - 1
		want := math.Exp(-rate * m.T)
		if math.Abs(mb.Result.X[last][0]-want) > 1e-6 {
			t.Errorf("rate %g: x(T) = %.10f, expected %.10f", rate, mb.Result.X[last][0], want)
		}
	}
}

func TestEnsembleWorkerCap(t *testing.T) {
	m := models.NewDecay()
	e := NewEnsemble(m.Name(), m.System(), m.Grid(), tightOptions())
	e.Workers = 1

	x0, z0, _ := m.Initial()
	members := e.Run(context.Background(), x0, z0, [][]float64{{1}, {1}})
	for i, mb := range members {
		if mb.Err != nil {
			t.Fatalf("member %d: %v", i, mb.Err)
		}
	}
	if members[0].Result.X[len(members[0].Result.X)-1][0] !=
		members[1].Result.X[len(members[1].Result.X)-1][0] {
		t.Error("identical parameters must give identical results")
	}
}

func TestEnsembleCancelled(t *testing.T) {
	m := models.NewDecay()
	e := NewEnsemble(m.Name(), m.System(), m.Grid(), tightOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x0, z0, _ := m.Initial()
	members := e.Run(ctx, x0, z0, [][]float64{{1}})
	if members[0].Err == nil {
		t.Error("expected a context error from a cancelled ensemble")
	}
}
