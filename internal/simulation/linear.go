package simulation

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/stitchsim/internal/maps"
	"github.com/san-kum/stitchsim/internal/vec"
	"gonum.org/v1/gonum/mat"
)

// Linear predicts d = G·f(m) where f is an internal model mapping. With an
// Exp model mapping this is the usual log-conductivity style nonlinear
// problem; with an identity it is a plain linear inverse problem.
type Linear struct {
	g        *mat.Dense
	modelMap maps.Mapping
	nIn      int

	mu    sync.RWMutex
	model vec.Vector
}

// LinearFields is the field handle of a Linear simulation: the mapped model
// the data were computed from.
type LinearFields struct {
	owner  *Linear
	Mapped vec.Vector
}

// NewLinear builds a simulation over the sensitivity matrix g. modelMap may be
// nil for an identity over g's columns.
func NewLinear(g *mat.Dense, modelMap maps.Mapping) (*Linear, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil sensitivity matrix", ErrDimension)
	}
	_, cols := g.Dims()
	if modelMap == nil {
		modelMap = maps.NewIdentity(cols)
	}
	out, in := modelMap.Shape()
	if !maps.Compatible(out, cols) {
		return nil, fmt.Errorf("%w: model mapping outputs %d parameters, sensitivity has %d columns", ErrDimension, out, cols)
	}
	if in == maps.Wildcard && out == maps.Wildcard {
		in = cols
	}
	return &Linear{g: mat.DenseCopyOf(g), modelMap: modelMap, nIn: in}, nil
}

func (s *Linear) NData() int {
	r, _ := s.g.Dims()
	return r
}

func (s *Linear) InputWidths() []int {
	return []int{s.nIn}
}

func (s *Linear) SetModel(m vec.Vector) error {
	if err := s.checkModel(m); err != nil {
		return err
	}
	s.mu.Lock()
	s.model = m.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Linear) Model() vec.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Clone()
}

func (s *Linear) checkModel(m vec.Vector) error {
	if s.nIn != maps.Wildcard && len(m) != s.nIn {
		return fmt.Errorf("%w: model has %d entries, expected %d", ErrDimension, len(m), s.nIn)
	}
	return nil
}

func (s *Linear) resolve(m vec.Vector) (vec.Vector, error) {
	if m == nil {
		m = s.Model()
		if m == nil {
			return nil, ErrNoModel
		}
		return m, nil
	}
	return m, s.checkModel(m)
}

func (s *Linear) Fields(ctx context.Context, m vec.Vector) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.resolve(m)
	if err != nil {
		return nil, err
	}
	mapped, err := s.modelMap.Apply(m)
	if err != nil {
		return nil, err
	}
	return &LinearFields{owner: s, Mapped: mapped}, nil
}

func (s *Linear) fieldsFor(ctx context.Context, m vec.Vector, f Fields) (*LinearFields, error) {
	if f == nil {
		f, err := s.Fields(ctx, m)
		if err != nil {
			return nil, err
		}
		return f.(*LinearFields), nil
	}
	lf, ok := f.(*LinearFields)
	if !ok || lf.owner != s {
		return nil, fmt.Errorf("%w: got %T", ErrFields, f)
	}
	return lf, nil
}

func (s *Linear) Dpred(ctx context.Context, m vec.Vector, f Fields) (vec.Vector, error) {
	lf, err := s.fieldsFor(ctx, m, f)
	if err != nil {
		return nil, err
	}
	return maps.MulVec(s.g, lf.Mapped)
}

// jacobian returns G·∂f/∂m at m.
func (s *Linear) jacobian(m vec.Vector) (*mat.Dense, error) {
	d, err := s.modelMap.Deriv(m)
	if err != nil {
		return nil, err
	}
	var j mat.Dense
	j.Mul(s.g, d)
	return &j, nil
}

func (s *Linear) Jvec(ctx context.Context, m, v vec.Vector, f Fields) (vec.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.resolve(m)
	if err != nil {
		return nil, err
	}
	if len(v) != len(m) {
		return nil, fmt.Errorf("%w: perturbation has %d entries, model has %d", ErrDimension, len(v), len(m))
	}
	j, err := s.jacobian(m)
	if err != nil {
		return nil, err
	}
	return maps.MulVec(j, v)
}

func (s *Linear) Jtvec(ctx context.Context, m, v vec.Vector, f Fields) (vec.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.resolve(m)
	if err != nil {
		return nil, err
	}
	if len(v) != s.NData() {
		return nil, fmt.Errorf("%w: data vector has %d entries, expected %d", ErrDimension, len(v), s.NData())
	}
	j, err := s.jacobian(m)
	if err != nil {
		return nil, err
	}
	return maps.MulVecTrans(j, v)
}

// JtJDiag returns diag(Jᵀ·W²·J) for W = diag(w).
func (s *Linear) JtJDiag(ctx context.Context, m, w vec.Vector) (vec.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.resolve(m)
	if err != nil {
		return nil, err
	}
	nD := s.NData()
	if w == nil {
		w = vec.Ones(nD)
	}
	if len(w) != nD {
		return nil, fmt.Errorf("%w: weights have %d entries, expected %d", ErrDimension, len(w), nD)
	}
	j, err := s.jacobian(m)
	if err != nil {
		return nil, err
	}
	_, cols := j.Dims()
	diag := make(vec.Vector, cols)
	for r := 0; r < nD; r++ {
		for c := 0; c < cols; c++ {
			x := w[r] * j.At(r, c)
			diag[c] += x * x
		}
	}
	return diag, nil
}
