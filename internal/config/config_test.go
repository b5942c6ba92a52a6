package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/daesim/internal/bdf"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "decay", cfg.Model)
	assert.Equal(t, "bdf", cfg.Method)
	assert.Equal(t, DefaultRelTol, cfg.Solver.RelTol)
	assert.Equal(t, DefaultAbsTol, cfg.Solver.AbsTol)
	assert.True(t, cfg.Solver.StopAtEnd)
	assert.True(t, cfg.Solver.CalcIC)
	assert.Equal(t, "hermite", cfg.Solver.Interpolation)
	assert.Equal(t, "gmres", cfg.Linear.Family)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Model = "robertson"
	cfg.Solver.RelTol = 1e-4
	cfg.Solver.SuppressAlgebraic = true
	cfg.Linear.Iterative = true
	cfg.Linear.Family = "tfqmr"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "model: pendulum\nsolver:\n  reltol: 1e-9\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pendulum", cfg.Model)
	assert.Equal(t, 1e-9, cfg.Solver.RelTol)
	// fields missing from the file keep their defaults
	assert.Equal(t, "bdf", cfg.Method)
	assert.Equal(t, DefaultMaxSteps, cfg.Solver.MaxSteps)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestOptionsTranslation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Solver.RelTol = 1e-9
	cfg.Solver.AbsTol = 1e-11
	cfg.Solver.MaxSteps = 500
	cfg.Solver.SuppressAlgebraic = true
	cfg.Solver.Interpolation = "polynomial"
	cfg.Linear.Iterative = true
	cfg.Linear.Family = "bicgstab"
	cfg.Linear.MaxKrylov = 25
	cfg.Linear.Precondition = true

	opts := cfg.Options()
	assert.Equal(t, 1e-9, opts.RelTol)
	assert.Equal(t, 1e-11, opts.AbsTol)
	assert.Equal(t, 500, opts.MaxSteps)
	assert.True(t, opts.SuppressAlgebraic)
	assert.Equal(t, bdf.Polynomial, opts.Interp)
	assert.True(t, opts.Iterative)
	assert.Equal(t, bdf.BiCGStab, opts.Family)
	assert.Equal(t, 25, opts.MaxKrylov)
	assert.True(t, opts.Precondition)
}

func TestOptionsFamilyDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Linear.Family = "unknown"
	assert.Equal(t, bdf.GMRES, cfg.Options().Family)
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("decay", "tight")
	require.NotNil(t, cfg)
	assert.Equal(t, 1e-10, cfg.Solver.RelTol)
	assert.True(t, cfg.Solver.QuadErrCon)

	cfg = GetPreset("robertson", "default")
	require.NotNil(t, cfg)
	assert.True(t, cfg.Solver.SuppressAlgebraic)
}

func TestGetPresetNotFound(t *testing.T) {
	assert.Nil(t, GetPreset("decay", "nonexistent"))
	assert.Nil(t, GetPreset("nonexistent", "default"))
}

func TestListPresets(t *testing.T) {
	names := ListPresets("decay")
	assert.Contains(t, names, "default")
	assert.Contains(t, names, "tight")
	assert.Contains(t, names, "krylov")
	assert.Nil(t, ListPresets("nonexistent"))
}

func TestPresetsTranslate(t *testing.T) {
	// every preset must translate to usable options
	for model, presets := range Presets {
		for name, cfg := range presets {
			opts := cfg.Options()
			assert.Greater(t, opts.RelTol, 0.0, "%s/%s", model, name)
			assert.Greater(t, opts.AbsTol, 0.0, "%s/%s", model, name)
		}
	}
}
