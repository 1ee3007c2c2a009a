package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/stitchsim/internal/config"
	"github.com/san-kum/stitchsim/internal/scenario"
	"github.com/san-kum/stitchsim/internal/vec"
)

const (
	metadataFile = "metadata.json"
	dataFile     = "dpred.csv"
	modelFile    = "model.csv"
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
	ID        string             `json:"id"`
	Scenario  string             `json:"scenario"`
	Variant   string             `json:"variant"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Workers   int                `json:"workers"`
	NModel    int                `json:"n_model"`
	NData     int                `json:"n_data"`
	Offsets   []int              `json:"offsets"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes a run directory holding metadata.json, dpred.csv (one row per
// datum with its pairing block) and model.csv (model and sensitivity
// diagonal).
func (s *Store) Save(cfg *config.Config, result *scenario.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", cfg.Name, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Scenario:  cfg.Name,
		Variant:   cfg.Variant,
		Timestamp: now,
		Seed:      cfg.Seed,
		Workers:   cfg.Workers,
		NModel:    len(result.Model),
		NData:     len(result.Dpred),
		Offsets:   result.Offsets,
		Metrics:   result.Metrics,
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	blocks := blockIndex(result.Offsets, len(result.Dpred), cfg.Variant == "sum")
	err = writeCSV(filepath.Join(runDir, dataFile), []string{"index", "block", "dpred"}, len(result.Dpred), func(i int) []string {
		return []string{strconv.Itoa(i), strconv.Itoa(blocks[i]), formatFloat(result.Dpred[i])}
	})
	if err != nil {
		return "", err
	}

	err = writeCSV(filepath.Join(runDir, modelFile), []string{"index", "model", "jtj_diag"}, len(result.Model), func(i int) []string {
		diag := "0"
		if i < len(result.JtJDiag) {
			diag = formatFloat(result.JtJDiag[i])
		}
		return []string{strconv.Itoa(i), formatFloat(result.Model[i]), diag}
	})
	if err != nil {
		return "", err
	}

	return runID, nil
}

// blockIndex labels each datum with the pairing that produced it. Summed
// data belong to every pairing and are labelled -1.
func blockIndex(offsets []int, n int, summed bool) []int {
	blocks := make([]int, n)
	if summed || len(offsets) < 2 {
		for i := range blocks {
			blocks[i] = -1
		}
		return blocks
	}
	b := 0
	for i := range blocks {
		for b+1 < len(offsets)-1 && i >= offsets[b+1] {
			b++
		}
		blocks[i] = b
	}
	return blocks
}

func writeCSV(path string, header []string, rows int, row func(int) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// List returns the metadata of every run, oldest first.
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

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadData returns the predicted data of a run and the block of each datum.
func (s *Store) LoadData(runID string) (vec.Vector, []int, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, dataFile))
	if err != nil {
		return nil, nil, err
	}

	dpred := make(vec.Vector, 0, len(records))
	blocks := make([]int, 0, len(records))
	for _, record := range records {
		if len(record) < 3 {
			continue
		}
		b, err := strconv.Atoi(record[1])
		if err != nil {
			continue
		}
		d, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			continue
		}
		blocks = append(blocks, b)
		dpred = append(dpred, d)
	}

	return dpred, blocks, nil
}

// LoadModel returns the model of a run and its sensitivity diagonal.
func (s *Store) LoadModel(runID string) (vec.Vector, vec.Vector, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, modelFile))
	if err != nil {
		return nil, nil, err
	}

	model := make(vec.Vector, 0, len(records))
	diag := make(vec.Vector, 0, len(records))
	for _, record := range records {
		if len(record) < 3 {
			continue
		}
		m, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			continue
		}
		d, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			continue
		}
		model = append(model, m)
		diag = append(diag, d)
	}

	return model, diag, nil
}

// readCSV returns every record after the header.
func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return [][]string{}, nil
	}
	return records[1:], nil
}
