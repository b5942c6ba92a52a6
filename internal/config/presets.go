package config

var Presets = map[string]map[string]*Config{
	"decay": {
		"default": {
			Model: "decay", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-6, AbsTol: 1e-8, StopAtEnd: true, CalcIC: true, CJScaling: true},
		},
		"tight": {
			Model: "decay", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-10, AbsTol: 1e-12, StopAtEnd: true, CalcIC: true, CJScaling: true, QuadErrCon: true},
		},
		"krylov": {
			Model: "decay", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-6, AbsTol: 1e-8, StopAtEnd: true, CalcIC: true, CJScaling: true},
			Linear: LinearConfig{Iterative: true, Family: "gmres", MaxKrylov: 10, Precondition: true},
		},
	},
	"robertson": {
		"default": {
			Model: "robertson", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-6, AbsTol: 1e-10, StopAtEnd: true, CalcIC: true, CJScaling: true, SuppressAlgebraic: true},
		},
		"loose": {
			Model: "robertson", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-4, AbsTol: 1e-8, StopAtEnd: true, CalcIC: true, CJScaling: true, SuppressAlgebraic: true},
		},
	},
	"pendulum": {
		"default": {
			Model: "pendulum", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-8, AbsTol: 1e-10, StopAtEnd: true, CalcIC: true, CJScaling: true},
		},
		"bicgstab": {
			Model: "pendulum", Method: "bdf",
			Solver: SolverConfig{RelTol: 1e-8, AbsTol: 1e-10, StopAtEnd: true, CalcIC: true, CJScaling: true},
			Linear: LinearConfig{Iterative: true, Family: "bicgstab", MaxKrylov: 15},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
