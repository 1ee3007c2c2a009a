package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/stitchsim/internal/config"
	"github.com/san-kum/stitchsim/internal/scenario"
)

type ExportData struct {
	Scenario string             `json:"scenario"`
	Variant  string             `json:"variant"`
	Seed     int64              `json:"seed"`
	Offsets  []int              `json:"offsets"`
	Model    []float64          `json:"model"`
	Dpred    []float64          `json:"dpred"`
	JtJDiag  []float64          `json:"jtj_diag"`
	Metrics  map[string]float64 `json:"metrics"`
}

func newExportData(cfg *config.Config, result *scenario.Result) ExportData {
	return ExportData{
		Scenario: cfg.Name,
		Variant:  cfg.Variant,
		Seed:     cfg.Seed,
		Offsets:  result.Offsets,
		Model:    result.Model,
		Dpred:    result.Dpred,
		JtJDiag:  result.JtJDiag,
		Metrics:  result.Metrics,
	}
}

func ExportJSON(path string, cfg *config.Config, result *scenario.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteJSON(file, cfg, result)
}

func WriteJSON(w io.Writer, cfg *config.Config, result *scenario.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newExportData(cfg, result))
}
