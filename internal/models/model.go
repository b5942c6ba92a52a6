// Package models bundles the built-in DAE test systems. Each model
// carries its parameters as struct fields, builds an oracle.System on
// demand and knows a sensible default time grid and initial point.
package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/daesim/internal/oracle"
)

// Model is one simulatable DAE system.
type Model interface {
	Name() string
	Describe() string
	System() *oracle.System
	Grid() []float64
	// Initial returns the initial differential state, algebraic guess
	// and parameter vector.
	Initial() (x, z, p []float64)
}

var builtins = map[string]func() Model{
	"decay":     func() Model { return NewDecay() },
	"robertson": func() Model { return NewRobertson() },
	"pendulum":  func() Model { return NewPendulum() },
}

// New constructs a built-in model by name.
func New(name string) (Model, error) {
	mk, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("models: unknown model %q", name)
	}
	return mk(), nil
}

// Names lists the built-in models, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// uniformGrid returns n+1 points from t0 to t1 inclusive.
func uniformGrid(t0, t1 float64, n int) []float64 {
	g := make([]float64, n+1)
	for i := range g {
		g[i] = t0 + (t1-t0)*float64(i)/float64(n)
	}
	return g
}
