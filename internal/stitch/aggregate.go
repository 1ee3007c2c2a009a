package stitch

import (
	"github.com/san-kum/stitchsim/internal/vec"
)

// aggregator is the data-space policy of a composite variant: how many data
// the composite exposes, which part of a data vector each pairing sees, and
// how per-pairing data vectors combine.
type aggregator interface {
	nData(vnD []int) int
	split(v vec.Vector, offsets DataOffsets, i int) vec.Vector
	combine(parts []vec.Vector, nD int) (vec.Vector, error)
}

// concatenation stacks per-pairing data blocks in pairing order.
type concatenation struct{}

func (concatenation) nData(vnD []int) int {
	return NewDataOffsets(vnD).Total()
}

func (concatenation) split(v vec.Vector, offsets DataOffsets, i int) vec.Vector {
	return offsets.Block(v, i)
}

func (concatenation) combine(parts []vec.Vector, nD int) (vec.Vector, error) {
	out := vec.Concat(parts...)
	if len(out) != nD {
		return nil, pairingErr(ErrShape, -1, "simulations returned %d data in total, expected %d", len(out), nD)
	}
	return out, nil
}

// summation adds per-pairing data elementwise; every pairing lives in the
// same data space.
type summation struct{}

func (summation) nData(vnD []int) int {
	if len(vnD) == 0 {
		return 0
	}
	return vnD[0]
}

func (summation) split(v vec.Vector, _ DataOffsets, _ int) vec.Vector {
	return v
}

func (summation) combine(parts []vec.Vector, nD int) (vec.Vector, error) {
	return sumParts(parts, nD)
}

// sumParts adds equal-length vectors in index order so results are
// reproducible regardless of which goroutine finished first.
func sumParts(parts []vec.Vector, n int) (vec.Vector, error) {
	out := vec.Zeros(n)
	for i, p := range parts {
		if err := out.AddInPlace(p); err != nil {
			return nil, pairingErr(ErrShape, i, "result has %d entries, expected %d", len(p), n)
		}
	}
	return out, nil
}
