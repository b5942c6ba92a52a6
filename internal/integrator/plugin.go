package integrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/san-kum/daesim/internal/oracle"
)

// Creator builds a solver instance for a registered method.
type Creator func(name string, prov oracle.Provider, grid []float64, opts Options) (*Solver, error)

// Plugin describes one registered integration method.
type Plugin struct {
	Creator Creator
	Name    string
	Doc     string
	Version int
}

var (
	pluginMu sync.RWMutex
	plugins  = make(map[string]Plugin)
)

// Register adds a method to the plugin table. Duplicate names are
// rejected.
func Register(p Plugin) error {
	pluginMu.Lock()
	defer pluginMu.Unlock()
	if p.Creator == nil || p.Name == "" {
		return configErrf("plugin needs a name and a creator")
	}
	if _, ok := plugins[p.Name]; ok {
		return configErrf("plugin %q already registered", p.Name)
	}
	plugins[p.Name] = p
	return nil
}

// Lookup resolves a registered method by name.
func Lookup(name string) (Plugin, error) {
	pluginMu.RLock()
	defer pluginMu.RUnlock()
	p, ok := plugins[name]
	if !ok {
		return Plugin{}, fmt.Errorf("integrator: no plugin %q", name)
	}
	return p, nil
}

// Methods lists the registered method names, sorted.
func Methods() []string {
	pluginMu.RLock()
	defer pluginMu.RUnlock()
	names := make([]string, 0, len(plugins))
	for n := range plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(Plugin{
		Creator: New,
		Name:    "bdf",
		Doc:     "variable-step BDF method for fully implicit DAEs with quadratures and adjoint sensitivities",
		Version: 30,
	})
}
