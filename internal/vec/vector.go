package vec

import (
	"fmt"
	"math"
)

// Vector is a dense model-space or data-space vector.
type Vector []float64

func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

// Equal reports bitwise equality, so NaN entries compare equal to themselves
// and -0 differs from +0.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if math.Float64bits(v[i]) != math.Float64bits(other[i]) {
			return false
		}
	}
	return true
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Norm() float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) Dot(other Vector) float64 {
	sum := 0.0
	for i := range v {
		if i < len(other) {
			sum += v[i] * other[i]
		}
	}
	return sum
}

func (v Vector) Add(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] + other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

func (v Vector) Sub(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] - other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

func (v Vector) Scale(factor float64) Vector {
	result := make(Vector, len(v))
	for i := range v {
		result[i] = v[i] * factor
	}
	return result
}

// AddInPlace accumulates other into v. Lengths must match.
func (v Vector) AddInPlace(other Vector) error {
	if len(v) != len(other) {
		return fmt.Errorf("vec: cannot accumulate length %d into length %d", len(other), len(v))
	}
	for i := range other {
		v[i] += other[i]
	}
	return nil
}

// Axpy returns v + alpha*x.
func (v Vector) Axpy(alpha float64, x Vector) Vector {
	result := v.Clone()
	for i := range result {
		if i < len(x) {
			result[i] += alpha * x[i]
		}
	}
	return result
}

func Zeros(n int) Vector {
	return make(Vector, n)
}

func Ones(n int) Vector {
	v := make(Vector, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// Concat joins parts in order into a freshly allocated vector.
func Concat(parts ...Vector) Vector {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Vector, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
