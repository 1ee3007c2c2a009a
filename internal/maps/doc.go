// Package maps provides parameter mappings from a global model to the
// submodel a single simulation consumes.
//
// Every mapping implements [Mapping]: Apply evaluates the map and Deriv
// returns its Jacobian as a gonum [mat.Matrix]. Shapes may contain
// [Wildcard] to accept any width.
//
//   - [Identity]: pass-through
//   - [Projection]: select entries (tiles, time slices)
//   - [Linear]: A·m + b
//   - [Scaling]: fixed per-entry multipliers
//   - [Exp]: log-parameter to parameter
//   - [Chain]: composition of two mappings
package maps
