package scenario

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/san-kum/stitchsim/internal/config"
	"github.com/san-kum/stitchsim/internal/maps"
	"github.com/san-kum/stitchsim/internal/simulation"
	"github.com/san-kum/stitchsim/internal/vec"
	"gonum.org/v1/gonum/mat"
)

// MappingBuilder turns a mapping config into a mapping over a model of width
// nIn. r is the scenario's seeded source.
type MappingBuilder func(r *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error)

type Registry struct {
	mappings  map[string]MappingBuilder
	modelMaps map[string]func() maps.Mapping
}

func NewRegistry() *Registry {
	r := &Registry{
		mappings:  make(map[string]MappingBuilder),
		modelMaps: make(map[string]func() maps.Mapping),
	}

	r.mappings[config.MapIdentity] = func(_ *rand.Rand, nIn int, _ config.MappingConfig) (maps.Mapping, error) {
		return maps.NewIdentity(nIn), nil
	}
	r.mappings[config.MapSlice] = func(_ *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error) {
		return maps.NewSlice(nIn, mc.Start, mc.End)
	}
	r.mappings[config.MapProjection] = func(_ *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error) {
		return maps.NewProjection(nIn, mc.Indices)
	}
	r.mappings[config.MapScaling] = func(_ *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error) {
		if len(mc.Factors) != nIn {
			return nil, fmt.Errorf("%w: scaling has %d factors, model has %d entries", maps.ErrInvalidMapping, len(mc.Factors), nIn)
		}
		return maps.NewScaling(vec.Vector(mc.Factors))
	}
	r.mappings[config.MapExpSlice] = func(_ *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error) {
		slice, err := maps.NewSlice(nIn, mc.Start, mc.End)
		if err != nil {
			return nil, err
		}
		return maps.NewChain(maps.NewExp(0), slice)
	}
	r.mappings[config.MapLinear] = func(rng *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error) {
		if mc.Rows <= 0 {
			return nil, fmt.Errorf("%w: linear mapping needs positive rows", maps.ErrInvalidMapping)
		}
		return maps.NewLinear(randomDense(rng, mc.Rows, nIn), nil)
	}

	r.modelMaps[config.SimIdentity] = func() maps.Mapping { return nil }
	r.modelMaps[""] = r.modelMaps[config.SimIdentity]
	r.modelMaps[config.SimExp] = func() maps.Mapping { return maps.NewExp(0) }

	return r
}

// Register adds or replaces a mapping kind.
func (r *Registry) Register(kind string, b MappingBuilder) {
	r.mappings[kind] = b
}

func (r *Registry) Mapping(rng *rand.Rand, nIn int, mc config.MappingConfig) (maps.Mapping, error) {
	fn, ok := r.mappings[mc.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown mapping: %s", mc.Kind)
	}
	return fn(rng, nIn, mc)
}

// Simulation builds a synthetic linear simulation with a seeded random
// sensitivity matrix.
func (r *Registry) Simulation(rng *rand.Rand, sc config.SimulationConfig) (*simulation.Linear, error) {
	fn, ok := r.modelMaps[sc.ModelMap]
	if !ok {
		return nil, fmt.Errorf("unknown model map: %s", sc.ModelMap)
	}
	return simulation.NewLinear(randomDense(rng, sc.NData, sc.Params), fn())
}

func (r *Registry) ListMappings() []string {
	names := make([]string, 0, len(r.mappings))
	for name := range r.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// randomDense draws entries from N(0, 1/cols) so predicted data stay O(1).
func randomDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	scale := 1 / float64(cols)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(rows, cols, data)
}
