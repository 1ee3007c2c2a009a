// Package vec provides the dense vector type shared by mappings, simulations
// and the composition engine.
//
// A [Vector] is a plain []float64. Operations that return a Vector allocate a
// new one; only [Vector.AddInPlace] mutates its receiver.
package vec
