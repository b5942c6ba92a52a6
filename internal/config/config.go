package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/integrator"
)

const (
	DefaultRelTol   = 1e-6
	DefaultAbsTol   = 1e-8
	DefaultMaxSteps = 10000
	DefaultMaxOrder = 2
)

type Config struct {
	Model  string       `yaml:"model"`
	Method string       `yaml:"method"`
	Solver SolverConfig `yaml:"solver"`
	Linear LinearConfig `yaml:"linear"`
	Output OutputConfig `yaml:"output"`
}

type SolverConfig struct {
	RelTol            float64 `yaml:"reltol"`
	AbsTol            float64 `yaml:"abstol"`
	MaxSteps          int     `yaml:"max_num_steps"`
	MaxOrder          int     `yaml:"max_multistep_order"`
	MaxStepSize       float64 `yaml:"max_step_size"`
	StopAtEnd         bool    `yaml:"stop_at_end"`
	SuppressAlgebraic bool    `yaml:"suppress_algebraic"`
	QuadErrCon        bool    `yaml:"quad_err_con"`
	CalcIC            bool    `yaml:"calc_ic"`
	CJScaling         bool    `yaml:"cj_scaling"`
	Interpolation     string  `yaml:"interpolation"`
	StepsPerCheck     int     `yaml:"steps_per_checkpoint"`
}

type LinearConfig struct {
	Iterative    bool   `yaml:"iterative"`
	Family       string `yaml:"iterative_solver"`
	MaxKrylov    int    `yaml:"max_krylov"`
	Precondition bool   `yaml:"use_preconditioner"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:  "decay",
		Method: "bdf",
		Solver: SolverConfig{
			RelTol:        DefaultRelTol,
			AbsTol:        DefaultAbsTol,
			MaxSteps:      DefaultMaxSteps,
			MaxOrder:      DefaultMaxOrder,
			StopAtEnd:     true,
			CalcIC:        true,
			CJScaling:     true,
			Interpolation: "hermite",
			StepsPerCheck: 20,
		},
		Linear: LinearConfig{
			Family:    "gmres",
			MaxKrylov: 10,
		},
		Output: OutputConfig{
			Dir:    "runs",
			Format: "csv",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Options translates the file representation into integrator options.
func (c *Config) Options() integrator.Options {
	opts := integrator.DefaultOptions()
	s := c.Solver
	if s.RelTol > 0 {
		opts.RelTol = s.RelTol
	}
	if s.AbsTol > 0 {
		opts.AbsTol = s.AbsTol
	}
	if s.MaxSteps > 0 {
		opts.MaxSteps = s.MaxSteps
	}
	if s.MaxOrder > 0 {
		opts.MaxOrder = s.MaxOrder
	}
	opts.MaxStepSize = s.MaxStepSize
	opts.StopAtEnd = s.StopAtEnd
	opts.SuppressAlgebraic = s.SuppressAlgebraic
	opts.QuadErrCon = s.QuadErrCon
	opts.CalcIC = s.CalcIC
	opts.CJScaling = s.CJScaling
	if s.Interpolation == "polynomial" {
		opts.Interp = bdf.Polynomial
	}
	if s.StepsPerCheck > 0 {
		opts.StepsPerCheckpoint = s.StepsPerCheck
	}
	opts.Iterative = c.Linear.Iterative
	opts.Precondition = c.Linear.Precondition
	if c.Linear.MaxKrylov > 0 {
		opts.MaxKrylov = c.Linear.MaxKrylov
	}
	switch c.Linear.Family {
	case "bicgstab":
		opts.Family = bdf.BiCGStab
	case "tfqmr":
		opts.Family = bdf.TFQMR
	default:
		opts.Family = bdf.GMRES
	}
	return opts
}
