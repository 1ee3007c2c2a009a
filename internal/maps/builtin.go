package maps

import (
	"fmt"
	"math"

	"github.com/san-kum/stitchsim/internal/vec"
	"gonum.org/v1/gonum/mat"
)

// Identity passes the model through unchanged.
type Identity struct {
	n int
}

// NewIdentity returns an identity of width n. n <= 0 gives a wildcard identity.
func NewIdentity(n int) *Identity {
	if n <= 0 {
		n = Wildcard
	}
	return &Identity{n: n}
}

func (m *Identity) Shape() (int, int) { return m.n, m.n }

func (m *Identity) Apply(x vec.Vector) (vec.Vector, error) {
	if err := checkInput("identity", m.n, x); err != nil {
		return nil, err
	}
	return x.Clone(), nil
}

func (m *Identity) Deriv(x vec.Vector) (mat.Matrix, error) {
	if err := checkInput("identity", m.n, x); err != nil {
		return nil, err
	}
	return identityOp(len(x)), nil
}

func identityOp(n int) *mat.DiagDense {
	return mat.NewDiagDense(n, vec.Ones(n))
}

// Projection selects a subset of model entries, e.g. one tile or one time
// slice of a space-time model.
type Projection struct {
	nIn     int
	indices []int
}

func NewProjection(nIn int, indices []int) (*Projection, error) {
	if nIn <= 0 {
		return nil, fmt.Errorf("%w: projection input width must be positive, got %d", ErrInvalidMapping, nIn)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: projection selects no entries", ErrInvalidMapping)
	}
	for i, idx := range indices {
		if idx < 0 || idx >= nIn {
			return nil, fmt.Errorf("%w: projection index %d at position %d outside [0, %d)", ErrInvalidMapping, idx, i, nIn)
		}
	}
	idx := make([]int, len(indices))
	copy(idx, indices)
	return &Projection{nIn: nIn, indices: idx}, nil
}

// NewSlice projects the contiguous range [start, end).
func NewSlice(nIn, start, end int) (*Projection, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: invalid slice [%d, %d)", ErrInvalidMapping, start, end)
	}
	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, i)
	}
	return NewProjection(nIn, indices)
}

func (p *Projection) Shape() (int, int) { return len(p.indices), p.nIn }

func (p *Projection) Apply(x vec.Vector) (vec.Vector, error) {
	if err := checkInput("projection", p.nIn, x); err != nil {
		return nil, err
	}
	out := make(vec.Vector, len(p.indices))
	for i, idx := range p.indices {
		out[i] = x[idx]
	}
	return out, nil
}

func (p *Projection) Deriv(x vec.Vector) (mat.Matrix, error) {
	if err := checkInput("projection", p.nIn, x); err != nil {
		return nil, err
	}
	d := mat.NewDense(len(p.indices), p.nIn, nil)
	for i, idx := range p.indices {
		d.Set(i, idx, 1)
	}
	return d, nil
}

// Linear applies A·m + b.
type Linear struct {
	a *mat.Dense
	b vec.Vector
}

// NewLinear builds a linear mapping. b may be nil.
func NewLinear(a *mat.Dense, b vec.Vector) (*Linear, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil operator", ErrInvalidMapping)
	}
	r, _ := a.Dims()
	if b != nil && len(b) != r {
		return nil, fmt.Errorf("%w: offset has %d entries, operator has %d rows", ErrInvalidMapping, len(b), r)
	}
	return &Linear{a: mat.DenseCopyOf(a), b: b.Clone()}, nil
}

func (l *Linear) Shape() (int, int) { return l.a.Dims() }

func (l *Linear) Apply(x vec.Vector) (vec.Vector, error) {
	out, err := MulVec(l.a, x)
	if err != nil {
		return nil, err
	}
	if l.b != nil {
		if err := out.AddInPlace(l.b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *Linear) Deriv(x vec.Vector) (mat.Matrix, error) {
	_, c := l.a.Dims()
	if err := checkInput("linear", c, x); err != nil {
		return nil, err
	}
	return l.a, nil
}

// Scaling multiplies each entry by a fixed factor.
type Scaling struct {
	factors vec.Vector
}

func NewScaling(factors vec.Vector) (*Scaling, error) {
	if len(factors) == 0 {
		return nil, fmt.Errorf("%w: scaling needs at least one factor", ErrInvalidMapping)
	}
	return &Scaling{factors: factors.Clone()}, nil
}

func (s *Scaling) Shape() (int, int) { return len(s.factors), len(s.factors) }

func (s *Scaling) Apply(x vec.Vector) (vec.Vector, error) {
	if err := checkInput("scaling", len(s.factors), x); err != nil {
		return nil, err
	}
	out := make(vec.Vector, len(x))
	for i := range x {
		out[i] = s.factors[i] * x[i]
	}
	return out, nil
}

func (s *Scaling) Deriv(x vec.Vector) (mat.Matrix, error) {
	if err := checkInput("scaling", len(s.factors), x); err != nil {
		return nil, err
	}
	return mat.NewDiagDense(len(s.factors), s.factors.Clone()), nil
}

// Exp maps log-parameters to parameters elementwise.
type Exp struct {
	n int
}

// NewExp returns an exponential map of width n. n <= 0 gives a wildcard map.
func NewExp(n int) *Exp {
	if n <= 0 {
		n = Wildcard
	}
	return &Exp{n: n}
}

func (e *Exp) Shape() (int, int) { return e.n, e.n }

func (e *Exp) Apply(x vec.Vector) (vec.Vector, error) {
	if err := checkInput("exp", e.n, x); err != nil {
		return nil, err
	}
	out := make(vec.Vector, len(x))
	for i, v := range x {
		out[i] = math.Exp(v)
	}
	return out, nil
}

func (e *Exp) Deriv(x vec.Vector) (mat.Matrix, error) {
	d, err := e.Apply(x)
	if err != nil {
		return nil, err
	}
	return mat.NewDiagDense(len(d), d), nil
}

// Chain composes outer∘inner.
type Chain struct {
	outer, inner Mapping
}

func NewChain(outer, inner Mapping) (*Chain, error) {
	if outer == nil || inner == nil {
		return nil, fmt.Errorf("%w: chain needs two mappings", ErrInvalidMapping)
	}
	_, outerIn := outer.Shape()
	innerOut, _ := inner.Shape()
	if !Compatible(outerIn, innerOut) {
		return nil, fmt.Errorf("%w: cannot chain output width %d into input width %d", ErrInvalidMapping, innerOut, outerIn)
	}
	return &Chain{outer: outer, inner: inner}, nil
}

func (c *Chain) Shape() (int, int) {
	nOut, outerIn := c.outer.Shape()
	innerOut, nIn := c.inner.Shape()
	if nOut == Wildcard && outerIn == Wildcard {
		nOut = innerOut
	}
	return nOut, nIn
}

func (c *Chain) Apply(x vec.Vector) (vec.Vector, error) {
	mid, err := c.inner.Apply(x)
	if err != nil {
		return nil, err
	}
	return c.outer.Apply(mid)
}

func (c *Chain) Deriv(x vec.Vector) (mat.Matrix, error) {
	mid, err := c.inner.Apply(x)
	if err != nil {
		return nil, err
	}
	dOuter, err := c.outer.Deriv(mid)
	if err != nil {
		return nil, err
	}
	dInner, err := c.inner.Deriv(x)
	if err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Mul(dOuter, dInner)
	return &out, nil
}
