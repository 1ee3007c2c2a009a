package stitch

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stitchsim/internal/maps"
	"github.com/san-kum/stitchsim/internal/simulation"
	"github.com/san-kum/stitchsim/internal/vec"
	"gonum.org/v1/gonum/mat"
)

// FieldList holds one field handle per pairing, in pairing order. It is the
// dynamic type of the fields a Composite returns.
type FieldList []simulation.Fields

func (fl FieldList) at(i int) simulation.Fields {
	if fl == nil {
		return nil
	}
	return fl[i]
}

// SetModel accepts a composite model. If m equals the current model bit for
// bit nothing happens and fields computed by the sub-simulations stay valid.
// Otherwise every mapping is applied to m, the submodels are pushed to their
// simulations (except in the repeated variant, which re-points its shared
// simulation per pairing), and the sensitivity diagonal is dropped.
func (c *Composite) SetModel(m vec.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setModelLocked(m)
}

func (c *Composite) setModelLocked(m vec.Vector) error {
	if len(m) == 0 {
		return pairingErr(ErrShape, -1, "model is empty")
	}
	if c.nIn != maps.Wildcard && len(m) != c.nIn {
		return pairingErr(ErrShape, -1, "model has %d entries, mappings expect %d", len(m), c.nIn)
	}
	if c.cache.matches(m) {
		return nil
	}

	subs := make([]vec.Vector, len(c.mappings))
	for i, mapping := range c.mappings {
		sub, err := mapping.Apply(m)
		if err != nil {
			return fmt.Errorf("stitch: apply mapping %d: %w", i, err)
		}
		subs[i] = sub
	}

	if c.kind != KindRepeated {
		for i, sim := range c.sims {
			if err := sim.SetModel(subs[i]); err != nil {
				// Some simulations may already hold the new submodel.
				c.cache.reset()
				return fmt.Errorf("stitch: push model to simulation %d: %w", i, err)
			}
		}
		c.metrics.observePush(c.kind)
		c.logger.Debug("pushed composite model",
			slog.Int("pairings", len(subs)),
			slog.Int("model_size", len(m)))
	}

	c.cache.store(m, subs)
	return nil
}

// useModel makes m current, or checks that a model exists when m is nil.
func (c *Composite) useModel(m vec.Vector) error {
	if m == nil {
		if c.cache.model == nil {
			return ErrNoModel
		}
		return nil
	}
	return c.setModelLocked(m)
}

func (c *Composite) fieldList(f simulation.Fields) (FieldList, error) {
	if f == nil {
		return nil, nil
	}
	fl, ok := f.(FieldList)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrFieldsMismatch, f)
	}
	if len(fl) != len(c.mappings) {
		return nil, fmt.Errorf("%w: got %d field handles for %d pairings", ErrFieldsMismatch, len(fl), len(c.mappings))
	}
	return fl, nil
}

// Fields returns a FieldList with one handle per pairing.
func (c *Composite) Fields(ctx context.Context, m vec.Vector) (simulation.Fields, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.timer(c.kind, "fields")()

	if err := c.useModel(m); err != nil {
		return nil, err
	}

	fl := make(FieldList, len(c.mappings))
	err := c.forEachPair(ctx, "fields", func(ctx context.Context, i int) error {
		f, err := c.sims[i].Fields(ctx, c.cache.subs[i])
		fl[i] = f
		return err
	})
	if err != nil {
		return nil, err
	}
	return fl, nil
}

// Dpred returns the predicted data. Concatenating and repeated composites
// stack each pairing's data in order; summing composites add them.
func (c *Composite) Dpred(ctx context.Context, m vec.Vector, f simulation.Fields) (vec.Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.timer(c.kind, "dpred")()

	if err := c.useModel(m); err != nil {
		return nil, err
	}
	fl, err := c.fieldList(f)
	if err != nil {
		return nil, err
	}

	parts := make([]vec.Vector, len(c.mappings))
	err = c.forEachPair(ctx, "dpred", func(ctx context.Context, i int) error {
		d, err := c.sims[i].Dpred(ctx, c.cache.subs[i], fl.at(i))
		parts[i] = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.agg.combine(parts, c.agg.nData(c.vnD))
}

// Jvec applies the composite Jacobian to a model-space perturbation v. Each
// pairing sees D_i·v where D_i is its mapping derivative at m.
func (c *Composite) Jvec(ctx context.Context, m, v vec.Vector, f simulation.Fields) (vec.Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.timer(c.kind, "jvec")()

	if err := c.useModel(m); err != nil {
		return nil, err
	}
	model := c.cache.model
	if len(v) != len(model) {
		return nil, pairingErr(ErrShape, -1, "perturbation has %d entries, model has %d", len(v), len(model))
	}
	fl, err := c.fieldList(f)
	if err != nil {
		return nil, err
	}

	parts := make([]vec.Vector, len(c.mappings))
	err = c.forEachPair(ctx, "jvec", func(ctx context.Context, i int) error {
		deriv, err := c.mappings[i].Deriv(model)
		if err != nil {
			return err
		}
		simV, err := maps.MulVec(deriv, v)
		if err != nil {
			return err
		}
		jv, err := c.sims[i].Jvec(ctx, c.cache.subs[i], simV, fl.at(i))
		parts[i] = jv
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.agg.combine(parts, c.agg.nData(c.vnD))
}

// Jtvec applies the composite Jacobian transpose to a data-space vector v.
// Concatenating and repeated composites hand pairing i its block of v;
// summing composites hand every pairing all of v. The mapped-back results
// are summed in model space.
func (c *Composite) Jtvec(ctx context.Context, m, v vec.Vector, f simulation.Fields) (vec.Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.timer(c.kind, "jtvec")()

	if err := c.useModel(m); err != nil {
		return nil, err
	}
	model := c.cache.model
	if nD := c.agg.nData(c.vnD); len(v) != nD {
		return nil, pairingErr(ErrShape, -1, "data vector has %d entries, composite has %d data", len(v), nD)
	}
	fl, err := c.fieldList(f)
	if err != nil {
		return nil, err
	}

	parts := make([]vec.Vector, len(c.mappings))
	err = c.forEachPair(ctx, "jtvec", func(ctx context.Context, i int) error {
		block := c.agg.split(v, c.offsets, i).Clone()
		jtv, err := c.sims[i].Jtvec(ctx, c.cache.subs[i], block, fl.at(i))
		if err != nil {
			return err
		}
		deriv, err := c.mappings[i].Deriv(model)
		if err != nil {
			return err
		}
		parts[i], err = maps.MulVecTrans(deriv, jtv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sumParts(parts, len(model))
}

// JtJDiag returns an approximation of diag(JᵀWᵀWJ) in composite model space,
// where w is the diagonal of W (nil for unit weights). The result is cached
// until the model or w changes.
func (c *Composite) JtJDiag(ctx context.Context, m, w vec.Vector) (vec.Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.timer(c.kind, "jtjdiag")()

	if err := c.useModel(m); err != nil {
		return nil, err
	}
	model := c.cache.model
	if nD := c.agg.nData(c.vnD); w != nil && len(w) != nD {
		return nil, pairingErr(ErrShape, -1, "weights have %d entries, composite has %d data", len(w), nD)
	}
	if d, ok := c.cache.diag(w); ok {
		return d, nil
	}

	parts := make([]vec.Vector, len(c.mappings))
	err := c.forEachPair(ctx, "jtjdiag", func(ctx context.Context, i int) error {
		var simW vec.Vector
		if w != nil {
			simW = c.agg.split(w, c.offsets, i).Clone()
		}
		d, err := c.sims[i].JtJDiag(ctx, c.cache.subs[i], simW)
		if err != nil {
			return err
		}
		deriv, err := c.mappings[i].Deriv(model)
		if err != nil {
			return err
		}
		parts[i], err = projectDiag(d, deriv)
		return err
	})
	if err != nil {
		return nil, err
	}

	diag, err := sumParts(parts, len(model))
	if err != nil {
		return nil, err
	}
	c.cache.storeDiag(w, diag)
	c.metrics.observeRecompute(c.kind)
	c.logger.Debug("recomputed sensitivity diagonal", slog.Int("model_size", len(model)))
	return diag.Clone(), nil
}

// projectDiag carries a submodel-space JᵀJ diagonal d back through the
// mapping derivative D as the column sums of (diag(√d)·D)∘². This is exact
// when every row of D has a single nonzero (projections, scalings). For other
// mappings it drops the off-diagonal terms of JᵀJ, so its error grows with
// their mass.
func projectDiag(d vec.Vector, deriv mat.Matrix) (vec.Vector, error) {
	rows, cols := deriv.Dims()
	if len(d) != rows {
		return nil, fmt.Errorf("%w: sensitivity diagonal has %d entries, mapping derivative has %d rows", ErrShape, len(d), rows)
	}
	out := make(vec.Vector, cols)
	for r := 0; r < rows; r++ {
		s := math.Sqrt(d[r])
		if s == 0 {
			continue
		}
		for j := 0; j < cols; j++ {
			x := s * deriv.At(r, j)
			out[j] += x * x
		}
	}
	return out, nil
}
