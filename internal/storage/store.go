package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/daesim/internal/sim"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Method       string    `json:"method"`
	Timestamp    time.Time `json:"timestamp"`
	RelTol       float64   `json:"reltol"`
	AbsTol       float64   `json:"abstol"`
	Steps        int       `json:"steps"`
	ResEvals     int       `json:"res_evals"`
	LinSetups    int       `json:"lin_setups"`
	ErrTestFails int       `json:"err_test_fails"`
	Checkpoints  int       `json:"checkpoints"`
	Adjoint      bool      `json:"adjoint"`
}

// Save writes one run as a directory with metadata.json and
// trajectory.csv, returning the run identifier.
func (s *Store) Save(model, method string, rtol, atol float64, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", model, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Model:        model,
		Method:       method,
		Timestamp:    time.Now(),
		RelTol:       rtol,
		AbsTol:       atol,
		Steps:        result.Stats.Steps,
		ResEvals:     result.Stats.ResEvals,
		LinSetups:    result.Stats.LinSetups,
		ErrTestFails: result.Stats.ErrTestFails,
		Checkpoints:  result.Checkpoints,
		Adjoint:      len(result.RX) > 0,
	}

	metaPath := filepath.Join(runDir, "metadata.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvPath := filepath.Join(runDir, "trajectory.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if len(result.Times) == 0 {
		return runID, nil
	}

	header := []string{"time"}
	for i := range result.X[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for i := range result.Z[0] {
		header = append(header, fmt.Sprintf("z%d", i))
	}
	for i := range result.Q[0] {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	if len(result.RX) > 0 {
		for i := range result.RX[0] {
			header = append(header, fmt.Sprintf("rx%d", i))
		}
		for i := range result.RQ[0] {
			header = append(header, fmt.Sprintf("rq%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range result.Times {
		row := []string{strconv.FormatFloat(result.Times[i], 'g', 10, 64)}
		for _, block := range [][]float64{result.X[i], result.Z[i], result.Q[i]} {
			for _, v := range block {
				row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
			}
		}
		if len(result.RX) > 0 {
			for _, v := range result.RX[i] {
				row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
			}
			for _, v := range result.RQ[i] {
				row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		metaPath := filepath.Join(s.baseDir, entry.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		runs = append(runs, meta)
	}

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadTrajectory reads back the CSV rows of a run: the times and the
// full row values in file order.
func (s *Store) LoadTrajectory(runID string) ([]float64, [][]float64, error) {
	csvPath := filepath.Join(s.baseDir, runID, "trajectory.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	if len(records) < 2 {
		return []float64{}, [][]float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	rows := make([][]float64, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		row := make([]float64, 0, len(record)-1)
		for _, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				break
			}
			row = append(row, v)
		}
		times = append(times, t)
		rows = append(rows, row)
	}
	return times, rows, nil
}
