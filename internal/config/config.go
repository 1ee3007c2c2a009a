package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultVariant   = "concat"
	DefaultModelSize = 6
	DefaultNData     = 4
	DefaultSeed      = 1
	DefaultScale     = 0.1
)

// Mapping kinds.
const (
	MapIdentity   = "identity"
	MapSlice      = "slice"
	MapProjection = "projection"
	MapScaling    = "scaling"
	MapExpSlice   = "exp_slice"
	MapLinear     = "linear"
)

// Simulation model-map kinds.
const (
	SimIdentity = "identity"
	SimExp      = "exp"
)

var ErrInvalid = errors.New("config: invalid scenario")

type Config struct {
	Name        string             `yaml:"name"`
	Variant     string             `yaml:"variant"`
	ModelSize   int                `yaml:"model_size"`
	Seed        int64              `yaml:"seed"`
	Workers     int                `yaml:"workers"`
	Scale       float64            `yaml:"scale"`
	Model       []float64          `yaml:"model,omitempty"`
	Simulations []SimulationConfig `yaml:"simulations"`
	Mappings    []MappingConfig    `yaml:"mappings"`
}

// SimulationConfig describes one synthetic forward simulation d = G·f(m).
type SimulationConfig struct {
	NData    int    `yaml:"n_data"`
	Params   int    `yaml:"params"`
	ModelMap string `yaml:"model_map"`
}

type MappingConfig struct {
	Kind    string    `yaml:"kind"`
	Start   int       `yaml:"start"`
	End     int       `yaml:"end"`
	Indices []int     `yaml:"indices,omitempty"`
	Factors []float64 `yaml:"factors,omitempty"`
	// Rows sets the output width of a linear mapping.
	Rows int `yaml:"rows,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:      "default",
		Variant:   DefaultVariant,
		ModelSize: DefaultModelSize,
		Seed:      DefaultSeed,
		Scale:     DefaultScale,
		Simulations: []SimulationConfig{
			{NData: DefaultNData, Params: 3, ModelMap: SimIdentity},
			{NData: DefaultNData, Params: 3, ModelMap: SimIdentity},
		},
		Mappings: []MappingConfig{
			{Kind: MapSlice, Start: 0, End: 3},
			{Kind: MapSlice, Start: 3, End: 6},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// Lists replace the defaults rather than merging into them.
	cfg.Simulations, cfg.Mappings = nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
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

// Validate checks the parts of a scenario that do not depend on the engine.
// Pairing shapes are checked when the composite is built.
func (c *Config) Validate() error {
	switch c.Variant {
	case "concat", "multi", "sum", "repeated", "":
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalid, c.Variant)
	}
	if c.ModelSize <= 0 {
		return fmt.Errorf("%w: model_size must be positive, got %d", ErrInvalid, c.ModelSize)
	}
	if c.Model != nil && len(c.Model) != c.ModelSize {
		return fmt.Errorf("%w: model has %d entries, model_size is %d", ErrInvalid, len(c.Model), c.ModelSize)
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("%w: no mappings", ErrInvalid)
	}
	if c.Variant == "repeated" && len(c.Simulations) != 1 {
		return fmt.Errorf("%w: repeated variant takes exactly one simulation, got %d", ErrInvalid, len(c.Simulations))
	}
	if c.Variant != "repeated" && len(c.Simulations) != len(c.Mappings) {
		return fmt.Errorf("%w: %d simulations for %d mappings", ErrInvalid, len(c.Simulations), len(c.Mappings))
	}

	for i, s := range c.Simulations {
		if s.NData <= 0 || s.Params <= 0 {
			return fmt.Errorf("%w: simulation %d needs positive n_data and params", ErrInvalid, i)
		}
		switch s.ModelMap {
		case SimIdentity, SimExp, "":
		default:
			return fmt.Errorf("%w: simulation %d has unknown model_map %q", ErrInvalid, i, s.ModelMap)
		}
	}
	for i, m := range c.Mappings {
		switch m.Kind {
		case MapIdentity, MapSlice, MapProjection, MapScaling, MapExpSlice, MapLinear:
		default:
			return fmt.Errorf("%w: mapping %d has unknown kind %q", ErrInvalid, i, m.Kind)
		}
	}
	return nil
}

// Pairings returns the number of (mapping, simulation) pairs.
func (c *Config) Pairings() int {
	return len(c.Mappings)
}

// Clone returns a deep copy, so presets can be tweaked safely.
func (c *Config) Clone() *Config {
	out := *c
	out.Model = append([]float64(nil), c.Model...)
	out.Simulations = append([]SimulationConfig(nil), c.Simulations...)
	out.Mappings = make([]MappingConfig, len(c.Mappings))
	for i, m := range c.Mappings {
		m.Indices = append([]int(nil), m.Indices...)
		m.Factors = append([]float64(nil), m.Factors...)
		out.Mappings[i] = m
	}
	return &out
}
