package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/daesim/internal/bdf"
	"github.com/san-kum/daesim/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		Times: []float64{0, 0.5, 1},
		X:     [][]float64{{1}, {0.6}, {0.37}},
		Z:     [][]float64{{1}, {0.6}, {0.37}},
		Q:     [][]float64{{0}, {0.4}, {0.63}},
		Stats: bdf.Stats{Steps: 42, ResEvals: 99, LinSetups: 7, ErrTestFails: 1},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Init())

	id, err := s.Save("decay", "bdf", 1e-6, 1e-8, sampleResult())
	require.NoError(t, err)

	meta, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "decay", meta.Model)
	assert.Equal(t, "bdf", meta.Method)
	assert.Equal(t, 1e-6, meta.RelTol)
	assert.Equal(t, 42, meta.Steps)
	assert.Equal(t, 99, meta.ResEvals)
	assert.False(t, meta.Adjoint)
}

func TestSaveAdjointFlag(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Init())

	res := sampleResult()
	res.RX = [][]float64{{0.37}, {0.6}, {1}}
	res.RZ = [][]float64{{0}, {0}, {0}}
	res.RQ = [][]float64{{-0.37}, {-0.2}, {0}}
	res.Checkpoints = 3

	id, err := s.Save("decay", "bdf", 1e-6, 1e-8, res)
	require.NoError(t, err)

	meta, err := s.Load(id)
	require.NoError(t, err)
	assert.True(t, meta.Adjoint)
	assert.Equal(t, 3, meta.Checkpoints)

	_, rows, err := s.LoadTrajectory(id)
	require.NoError(t, err)
	// time column stripped: x, z, q, rx, rq
	assert.Len(t, rows[0], 5)
	assert.InDelta(t, 0.37, rows[0][3], 1e-12)
}

func TestLoadTrajectory(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Init())

	id, err := s.Save("decay", "bdf", 1e-6, 1e-8, sampleResult())
	require.NoError(t, err)

	times, rows, err := s.LoadTrajectory(id)
	require.NoError(t, err)
	require.Len(t, times, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{0, 0.5, 1}, times)
	for i, want := range []float64{1, 0.6, 0.37} {
		if math.Abs(rows[i][0]-want) > 1e-12 {
			t.Errorf("row %d x: got %g, expected %g", i, rows[i][0], want)
		}
	}
}

func TestList(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Init())

	runs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = s.Save("decay", "bdf", 1e-6, 1e-8, sampleResult())
	require.NoError(t, err)

	runs, err = s.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "decay", runs[0].Model)
}

func TestListMissingDir(t *testing.T) {
	s := New(t.TempDir() + "/nope")
	runs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLoadMissingRun(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Init())
	_, err := s.Load("nonexistent")
	assert.Error(t, err)
}
