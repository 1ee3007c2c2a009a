// Package stitch composes many forward simulations into one.
//
// A [Composite] pairs every simulation with a mapping from a shared model to
// that simulation's submodel, and exposes the pairings through the
// [simulation.Simulation] interface:
//
//   - [NewMulti]: distinct simulations, data concatenated in pairing order
//   - [NewSum]: distinct simulations over one data space, data summed
//   - [NewRepeated]: one shared simulation driven once per mapping, data
//     concatenated
//
// Jvec pushes a model perturbation through each mapping derivative before
// the simulation's own Jvec. Jtvec maps each simulation's adjoint result back
// through the transposed derivative and sums the contributions, since every
// pairing reads the same model.
//
// # Example
//
//	sims := []simulation.Simulation{early, late}
//	mappings := []maps.Mapping{earlySlice, lateSlice}
//	c, err := stitch.NewMulti(sims, mappings)
//	if err != nil {
//	    return err
//	}
//	d, err := c.Dpred(ctx, m, nil)
//
// # Caching
//
// The composite keeps the last accepted model. Setting an identical model
// again is free and leaves the sub-simulations untouched. The JtJ diagonal is
// memoized until the model or the weights change.
//
// # Thread Safety
//
// Public methods serialise on the composite. Within one call the
// concatenating and summing variants run pairings concurrently (see
// [WithWorkers]), so their simulations and mappings must tolerate concurrent
// use across pairings. The repeated variant never runs two pairings at once.
package stitch
