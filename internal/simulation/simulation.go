package simulation

import (
	"context"
	"errors"

	"github.com/san-kum/stitchsim/internal/vec"
)

var (
	// ErrNoModel indicates an operation that needs a model before one was set.
	ErrNoModel = errors.New("simulation: no model set")

	// ErrDimension indicates a model, perturbation or data vector of the wrong length.
	ErrDimension = errors.New("simulation: dimension mismatch")

	// ErrFields indicates a field handle that did not come from this simulation.
	ErrFields = errors.New("simulation: foreign or malformed fields")
)

// Fields is an opaque handle to the solution of one forward problem. Callers
// pass it back to the simulation that produced it and never inspect it.
type Fields any

// Simulation is a forward problem with Jacobian actions.
//
// m may be nil in every call, meaning the model last passed to SetModel.
// f may be nil in Dpred, Jvec and Jtvec, in which case the fields are
// computed from m. w in JtJDiag holds the diagonal of a data weighting; nil
// means unit weights.
type Simulation interface {
	SetModel(m vec.Vector) error
	Model() vec.Vector

	Fields(ctx context.Context, m vec.Vector) (Fields, error)
	Dpred(ctx context.Context, m vec.Vector, f Fields) (vec.Vector, error)
	Jvec(ctx context.Context, m, v vec.Vector, f Fields) (vec.Vector, error)
	Jtvec(ctx context.Context, m, v vec.Vector, f Fields) (vec.Vector, error)
	JtJDiag(ctx context.Context, m, w vec.Vector) (vec.Vector, error)

	// NData is the number of data the simulation predicts.
	NData() int

	// InputWidths lists the input width of every active model mapping of the
	// simulation. A submodel handed to the simulation must be compatible
	// with each entry; maps.Wildcard accepts any width.
	InputWidths() []int
}
