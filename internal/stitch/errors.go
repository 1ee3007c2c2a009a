package stitch

import (
	"errors"
	"fmt"

	"github.com/san-kum/stitchsim/internal/simulation"
)

// Domain errors for composition.
var (
	// ErrShape indicates mismatched mapping widths, an incompatible
	// mapping/simulation pair, unequal data counts in a summing composite, or
	// a vector argument of the wrong length.
	ErrShape = errors.New("stitch: shape mismatch")

	// ErrDuplicate indicates the same simulation instance supplied twice where
	// every pairing needs its own instance.
	ErrDuplicate = errors.New("stitch: simulation instance supplied more than once")

	// ErrInvalidType indicates a missing simulation or mapping, or an
	// operation the composite variant does not support.
	ErrInvalidType = errors.New("stitch: invalid simulation or mapping")

	// ErrFieldsMismatch indicates a field handle that was not produced by
	// this composite's Fields.
	ErrFieldsMismatch = errors.New("stitch: fields do not match the composite")

	// ErrNoModel is shared with the simulation package so composites can
	// stand in for a single simulation.
	ErrNoModel = simulation.ErrNoModel
)

// PairingError reports a validation failure at a specific pairing index.
type PairingError struct {
	// Index is the offending pairing, or -1 when the whole list is at fault.
	Index   int
	Reason  string
	Wrapped error
}

func (e *PairingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", e.Wrapped, e.Reason)
	}
	return fmt.Sprintf("%v at index %d: %s", e.Wrapped, e.Index, e.Reason)
}

func (e *PairingError) Unwrap() error {
	return e.Wrapped
}

func pairingErr(sentinel error, index int, format string, args ...any) error {
	return &PairingError{Index: index, Reason: fmt.Sprintf(format, args...), Wrapped: sentinel}
}
