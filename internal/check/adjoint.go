package check

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/stitchsim/internal/simulation"
	"github.com/san-kum/stitchsim/internal/vec"
	"gonum.org/v1/gonum/mat"
)

const DefaultAdjointTolerance = 1e-10

type AdjointReport struct {
	// JvDotU is ⟨J·v, u⟩ and VDotJtu is ⟨v, Jᵀ·u⟩.
	JvDotU  float64
	VDotJtu float64
	Diff    float64
	Passed  bool
}

// Adjoint checks that Jtvec is the transpose of Jvec at m for the probe
// vectors v (model space) and u (data space). tol <= 0 uses
// DefaultAdjointTolerance.
func Adjoint(ctx context.Context, sim simulation.Simulation, m, v, u vec.Vector, tol float64) (*AdjointReport, error) {
	if tol <= 0 {
		tol = DefaultAdjointTolerance
	}
	if len(v) != len(m) {
		return nil, fmt.Errorf("%w: model probe has %d entries, model has %d", ErrCheck, len(v), len(m))
	}
	if len(u) != sim.NData() {
		return nil, fmt.Errorf("%w: data probe has %d entries, simulation has %d data", ErrCheck, len(u), sim.NData())
	}

	jv, err := sim.Jvec(ctx, m, v, nil)
	if err != nil {
		return nil, fmt.Errorf("check: jvec: %w", err)
	}
	jtu, err := sim.Jtvec(ctx, m, u, nil)
	if err != nil {
		return nil, fmt.Errorf("check: jtvec: %w", err)
	}

	r := &AdjointReport{JvDotU: jv.Dot(u), VDotJtu: v.Dot(jtu)}
	r.Diff = math.Abs(r.JvDotU - r.VDotJtu)
	r.Passed = r.Diff <= tol*(math.Abs(r.JvDotU)+math.SmallestNonzeroFloat64)
	if r.JvDotU == 0 && r.VDotJtu == 0 {
		r.Passed = true
	}
	return r, nil
}

// DiagonalReport compares JtJDiag against the diagonal of an explicitly
// assembled JᵀJ.
type DiagonalReport struct {
	Approx vec.Vector
	Exact  vec.Vector
	// MaxRelErr is max |approx−exact| / max(exact).
	MaxRelErr float64
}

// Diagonal assembles J column by column with Jvec, so it costs one Jvec per
// model parameter. Use it on small problems.
func Diagonal(ctx context.Context, sim simulation.Simulation, m vec.Vector) (*DiagonalReport, error) {
	if len(m) == 0 || sim.NData() == 0 {
		return nil, fmt.Errorf("%w: empty model or data space", ErrCheck)
	}
	approx, err := sim.JtJDiag(ctx, m, nil)
	if err != nil {
		return nil, fmt.Errorf("check: jtjdiag: %w", err)
	}
	if len(approx) != len(m) {
		return nil, fmt.Errorf("%w: jtjdiag has %d entries, model has %d", ErrCheck, len(approx), len(m))
	}

	j := mat.NewDense(sim.NData(), len(m), nil)
	for c := range m {
		e := vec.Zeros(len(m))
		e[c] = 1
		col, err := sim.Jvec(ctx, m, e, nil)
		if err != nil {
			return nil, fmt.Errorf("check: jvec column %d: %w", c, err)
		}
		if len(col) != sim.NData() {
			return nil, fmt.Errorf("%w: jvec returned %d entries, simulation has %d data", ErrCheck, len(col), sim.NData())
		}
		j.SetCol(c, col)
	}

	exact := make(vec.Vector, len(m))
	for c := range exact {
		col := mat.Col(nil, c, j)
		exact[c] = vec.Vector(col).Dot(col)
	}

	r := &DiagonalReport{Approx: approx, Exact: exact}
	scale := 0.0
	for _, x := range exact {
		scale = math.Max(scale, math.Abs(x))
	}
	if scale == 0 {
		scale = 1
	}
	for c := range exact {
		r.MaxRelErr = math.Max(r.MaxRelErr, math.Abs(approx[c]-exact[c])/scale)
	}
	return r, nil
}
