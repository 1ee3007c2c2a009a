package stitch

import (
	"reflect"
	"strconv"

	"github.com/san-kum/stitchsim/internal/maps"
	"github.com/san-kum/stitchsim/internal/simulation"
)

// validatePairs checks a candidate (simulations, mappings) list for kind and
// returns the shared model width. It never mutates its arguments.
func validatePairs(kind Kind, sims []simulation.Simulation, mappings []maps.Mapping) (int, error) {
	if len(mappings) == 0 {
		return 0, pairingErr(ErrShape, -1, "at least one mapping is required")
	}
	if len(sims) != len(mappings) {
		return 0, pairingErr(ErrShape, -1, "got %d simulations and %d mappings", len(sims), len(mappings))
	}

	for i := range sims {
		if isNil(sims[i]) {
			return 0, pairingErr(ErrInvalidType, i, "simulation is nil")
		}
		if isNil(mappings[i]) {
			return 0, pairingErr(ErrInvalidType, i, "mapping is nil")
		}
	}

	if kind != KindRepeated {
		for i := 1; i < len(sims); i++ {
			for j := 0; j < i; j++ {
				if sameInstance(sims[i], sims[j]) {
					return 0, pairingErr(ErrDuplicate, i, "simulation already supplied at index %d", j)
				}
			}
		}
	}

	if kind == KindSum {
		nD := sims[0].NData()
		for i, sim := range sims {
			if sim.NData() != nD {
				return 0, pairingErr(ErrShape, i, "simulation has %d data, simulation 0 has %d", sim.NData(), nD)
			}
		}
	}

	_, nIn := mappings[0].Shape()
	for i, mapping := range mappings {
		out, in := mapping.Shape()
		if in != nIn {
			return 0, pairingErr(ErrShape, i, "mapping input width %s differs from mapping 0 input width %s", width(in), width(nIn))
		}
		for _, simIn := range sims[i].InputWidths() {
			if !maps.Compatible(out, simIn) {
				return 0, pairingErr(ErrShape, i, "simulation input width %s incompatible with mapping output width %s", width(simIn), width(out))
			}
		}
	}

	return nIn, nil
}

func width(n int) string {
	if n == maps.Wildcard {
		return "*"
	}
	return strconv.Itoa(n)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// sameInstance reports whether a and b are the same simulation. Pointer
// implementations compare by identity; non-comparable values never match.
func sameInstance(a, b simulation.Simulation) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
