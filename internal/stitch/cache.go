package stitch

import "github.com/san-kum/stitchsim/internal/vec"

// modelCache holds the accepted composite model, the submodel each mapping
// produced from it, and the memoized sensitivity diagonal.
type modelCache struct {
	model vec.Vector
	subs  []vec.Vector

	jtj        vec.Vector
	jtjWeights vec.Vector
	jtjValid   bool
}

func (c *modelCache) matches(m vec.Vector) bool {
	return c.model != nil && c.model.Equal(m)
}

// store accepts a new model. Callers must have checked matches first.
func (c *modelCache) store(m vec.Vector, subs []vec.Vector) {
	c.model = m.Clone()
	c.subs = subs
	c.invalidateDiag()
}

func (c *modelCache) reset() {
	c.model = nil
	c.subs = nil
	c.invalidateDiag()
}

func (c *modelCache) invalidateDiag() {
	c.jtj = nil
	c.jtjWeights = nil
	c.jtjValid = false
}

// diag returns a copy of the cached diagonal if it was computed with w.
func (c *modelCache) diag(w vec.Vector) (vec.Vector, bool) {
	if !c.jtjValid || (w == nil) != (c.jtjWeights == nil) || !c.jtjWeights.Equal(w) {
		return nil, false
	}
	return c.jtj.Clone(), true
}

func (c *modelCache) storeDiag(w, d vec.Vector) {
	c.jtj = d.Clone()
	c.jtjWeights = w.Clone()
	c.jtjValid = true
}
