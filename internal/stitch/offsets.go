package stitch

import "github.com/san-kum/stitchsim/internal/vec"

// DataOffsets locates each pairing's block in a concatenated data vector.
// offsets[0] is 0, offsets[k] is the start of block k and the last entry is
// the total data count.
type DataOffsets []int

func NewDataOffsets(vnD []int) DataOffsets {
	offsets := make(DataOffsets, len(vnD)+1)
	for i, n := range vnD {
		offsets[i+1] = offsets[i] + n
	}
	return offsets
}

func (o DataOffsets) Total() int {
	if len(o) == 0 {
		return 0
	}
	return o[len(o)-1]
}

// Block returns the view of v belonging to pairing i. It aliases v.
func (o DataOffsets) Block(v vec.Vector, i int) vec.Vector {
	return v[o[i]:o[i+1]]
}
