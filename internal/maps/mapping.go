package maps

import (
	"errors"
	"fmt"

	"github.com/san-kum/stitchsim/internal/vec"
	"gonum.org/v1/gonum/mat"
)

// Wildcard is a shape entry that matches any width.
const Wildcard = -1

var (
	// ErrDimension indicates a vector whose length does not fit the mapping or operator.
	ErrDimension = errors.New("maps: dimension mismatch")

	// ErrInvalidMapping indicates a mapping built from inconsistent parameters.
	ErrInvalidMapping = errors.New("maps: invalid mapping parameters")
)

// Mapping transforms a global model into a simulation submodel.
//
// Deriv returns the Jacobian of Apply at m as an (nOut, nIn) operator. Either
// entry of Shape may be Wildcard, in which case the derivative takes its size
// from m.
type Mapping interface {
	Shape() (nOut, nIn int)
	Apply(m vec.Vector) (vec.Vector, error)
	Deriv(m vec.Vector) (mat.Matrix, error)
}

// Compatible reports whether two widths can be connected.
func Compatible(a, b int) bool {
	return a == Wildcard || b == Wildcard || a == b
}

func checkInput(name string, nIn int, m vec.Vector) error {
	if nIn != Wildcard && len(m) != nIn {
		return fmt.Errorf("%w: %s expects %d model entries, got %d", ErrDimension, name, nIn, len(m))
	}
	return nil
}

// MulVec returns op·v, reporting a dimension error instead of panicking.
func MulVec(op mat.Matrix, v vec.Vector) (vec.Vector, error) {
	r, c := op.Dims()
	if len(v) != c {
		return nil, fmt.Errorf("%w: operator has %d columns, vector has %d entries", ErrDimension, c, len(v))
	}
	out := make(vec.Vector, r)
	if r == 0 || c == 0 {
		return out, nil
	}
	dst := mat.NewVecDense(r, out)
	dst.MulVec(op, mat.NewVecDense(c, v))
	return out, nil
}

// MulVecTrans returns opᵀ·v.
func MulVecTrans(op mat.Matrix, v vec.Vector) (vec.Vector, error) {
	return MulVec(op.T(), v)
}
