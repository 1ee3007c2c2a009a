package config

import "sort"

// Presets holds ready-made scenarios keyed by variant, then name.
var Presets = map[string]map[string]*Config{
	"concat": {
		"timelapse": {
			Name: "timelapse", Variant: "concat", ModelSize: 8, Seed: 7, Scale: 0.1,
			Simulations: []SimulationConfig{
				{NData: 6, Params: 4, ModelMap: SimExp},
				{NData: 6, Params: 4, ModelMap: SimExp},
			},
			Mappings: []MappingConfig{
				{Kind: MapSlice, Start: 0, End: 4},
				{Kind: MapSlice, Start: 4, End: 8},
			},
		},
		"joint": {
			Name: "joint", Variant: "concat", ModelSize: 5, Seed: 11, Scale: 0.2,
			Simulations: []SimulationConfig{
				{NData: 4, Params: 5, ModelMap: SimIdentity},
				{NData: 8, Params: 5, ModelMap: SimExp},
			},
			Mappings: []MappingConfig{
				{Kind: MapIdentity},
				{Kind: MapScaling, Factors: []float64{1, 0.5, 2, 1, 0.25}},
			},
		},
		"overlap": {
			Name: "overlap", Variant: "concat", ModelSize: 6, Seed: 3, Scale: 0.1,
			Simulations: []SimulationConfig{
				{NData: 5, Params: 4, ModelMap: SimIdentity},
				{NData: 5, Params: 4, ModelMap: SimIdentity},
				{NData: 3, Params: 2, ModelMap: SimExp},
			},
			Mappings: []MappingConfig{
				{Kind: MapExpSlice, Start: 0, End: 4},
				{Kind: MapSlice, Start: 2, End: 6},
				{Kind: MapLinear, Rows: 2},
			},
		},
	},
	"sum": {
		"superposition": {
			Name: "superposition", Variant: "sum", ModelSize: 6, Seed: 5, Scale: 0.1,
			Simulations: []SimulationConfig{
				{NData: 10, Params: 3, ModelMap: SimIdentity},
				{NData: 10, Params: 3, ModelMap: SimExp},
			},
			Mappings: []MappingConfig{
				{Kind: MapSlice, Start: 0, End: 3},
				{Kind: MapSlice, Start: 3, End: 6},
			},
		},
		"background": {
			Name: "background", Variant: "sum", ModelSize: 4, Seed: 9, Scale: 0.3,
			Simulations: []SimulationConfig{
				{NData: 6, Params: 4, ModelMap: SimIdentity},
				{NData: 6, Params: 1, ModelMap: SimExp},
			},
			Mappings: []MappingConfig{
				{Kind: MapIdentity},
				{Kind: MapProjection, Indices: []int{0}},
			},
		},
	},
	"repeated": {
		"tiles": {
			Name: "tiles", Variant: "repeated", ModelSize: 12, Seed: 13, Scale: 0.1,
			Simulations: []SimulationConfig{
				{NData: 5, Params: 3, ModelMap: SimExp},
			},
			Mappings: []MappingConfig{
				{Kind: MapSlice, Start: 0, End: 3},
				{Kind: MapSlice, Start: 3, End: 6},
				{Kind: MapSlice, Start: 6, End: 9},
				{Kind: MapSlice, Start: 9, End: 12},
			},
		},
		"sweep": {
			Name: "sweep", Variant: "repeated", ModelSize: 4, Seed: 17, Scale: 0.2,
			Simulations: []SimulationConfig{
				{NData: 3, Params: 2, ModelMap: SimIdentity},
			},
			Mappings: []MappingConfig{
				{Kind: MapProjection, Indices: []int{0, 1}},
				{Kind: MapProjection, Indices: []int{1, 2}},
				{Kind: MapProjection, Indices: []int{2, 3}},
			},
		},
	},
}

// GetPreset returns a copy of a named preset, or nil.
func GetPreset(variant, preset string) *Config {
	variantPresets, ok := Presets[variant]
	if !ok {
		return nil
	}
	cfg, ok := variantPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// FindPreset looks a preset up by name across all variants.
func FindPreset(name string) *Config {
	for _, variant := range ListVariants() {
		if cfg := GetPreset(variant, name); cfg != nil {
			return cfg
		}
	}
	return nil
}

func ListPresets(variant string) []string {
	variantPresets, ok := Presets[variant]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(variantPresets))
	for name := range variantPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListVariants() []string {
	variants := make([]string, 0, len(Presets))
	for v := range Presets {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return variants
}
