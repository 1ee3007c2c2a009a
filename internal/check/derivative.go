package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stitchsim/internal/simulation"
	"github.com/san-kum/stitchsim/internal/vec"
)

var ErrCheck = errors.New("check: invalid arguments")

type DerivativeOptions struct {
	// Steps is the number of step sizes h = 10^-1 ... 10^-Steps.
	Steps int
	// Order is the convergence order expected of the linearised residual.
	Order float64
	// Tolerance is the fraction of Order a step must reach to count as a pass.
	Tolerance float64
	// Eps marks residuals at numerical zero, relative to ‖d(m)‖.
	Eps    float64
	Logger *slog.Logger
}

func DefaultDerivativeOptions() DerivativeOptions {
	return DerivativeOptions{
		Steps:     6,
		Order:     2,
		Tolerance: 0.85,
		Eps:       1e-10,
	}
}

// DerivativeStep is one row of a Taylor test.
type DerivativeStep struct {
	H float64
	// Err0 is ‖d(m+h·dm) − d(m)‖, first order in h.
	Err0 float64
	// Err1 is ‖d(m+h·dm) − d(m) − h·J·dm‖, second order in h when J is right.
	Err1 float64
	// Order0 and Order1 are the observed orders against the previous step.
	// They are NaN on the first step.
	Order0 float64
	Order1 float64
}

type DerivativeReport struct {
	Steps []DerivativeStep
	// Passes counts steps whose Order1 reached Tolerance·Order.
	Passes int
	// Linear is set when every Err1 is at numerical zero.
	Linear bool
	Passed bool
}

// Derivative runs a Taylor test of sim's Jvec along dm at m.
//
// Algorithm:
// 1. Evaluate d(m) and J·dm once
// 2. For h = 10^-1 down to 10^-Steps evaluate d(m+h·dm)
// 3. Compare the zeroth and first order Taylor residuals between steps
//
// The test passes when more than half of the observed second-order rates
// reach Tolerance·Order, or when the model is linear and every residual
// sits at numerical zero.
func Derivative(ctx context.Context, sim simulation.Simulation, m, dm vec.Vector, opts DerivativeOptions) (*DerivativeReport, error) {
	if len(m) == 0 || len(dm) != len(m) {
		return nil, fmt.Errorf("%w: model has %d entries, direction has %d", ErrCheck, len(m), len(dm))
	}
	defaults := DefaultDerivativeOptions()
	if opts.Steps <= 1 {
		opts.Steps = defaults.Steps
	}
	if opts.Order <= 0 {
		opts.Order = defaults.Order
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaults.Tolerance
	}
	if opts.Eps <= 0 {
		opts.Eps = defaults.Eps
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d0, err := sim.Dpred(ctx, m, nil)
	if err != nil {
		return nil, fmt.Errorf("check: dpred at m: %w", err)
	}
	jdm, err := sim.Jvec(ctx, m, dm, nil)
	if err != nil {
		return nil, fmt.Errorf("check: jvec at m: %w", err)
	}
	if len(jdm) != len(d0) {
		return nil, fmt.Errorf("%w: jvec has %d entries, dpred has %d", ErrCheck, len(jdm), len(d0))
	}

	report := &DerivativeReport{Steps: make([]DerivativeStep, 0, opts.Steps), Linear: true}
	zero := opts.Eps * math.Max(1, d0.Norm())

	for i := 1; i <= opts.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := math.Pow(10, -float64(i))
		dh, err := sim.Dpred(ctx, m.Axpy(h, dm), nil)
		if err != nil {
			return nil, fmt.Errorf("check: dpred at h=%g: %w", h, err)
		}

		diff := dh.Sub(d0)
		step := DerivativeStep{
			H:      h,
			Err0:   diff.Norm(),
			Err1:   diff.Axpy(-h, jdm).Norm(),
			Order0: math.NaN(),
			Order1: math.NaN(),
		}
		if n := len(report.Steps); n > 0 {
			prev := report.Steps[n-1]
			step.Order0 = rate(prev.Err0, step.Err0, prev.H, h)
			step.Order1 = rate(prev.Err1, step.Err1, prev.H, h)
			if step.Order1 > opts.Tolerance*opts.Order {
				report.Passes++
			}
		}
		if step.Err1 > zero {
			report.Linear = false
		}

		logger.Debug("taylor step",
			slog.Float64("h", h),
			slog.Float64("err0", step.Err0),
			slog.Float64("err1", step.Err1),
			slog.Float64("order1", step.Order1))
		report.Steps = append(report.Steps, step)
	}

	rates := len(report.Steps) - 1
	report.Passed = report.Linear || 2*report.Passes > rates
	return report, nil
}

func rate(e0, e1, h0, h1 float64) float64 {
	if e0 <= 0 || e1 <= 0 {
		return math.NaN()
	}
	return math.Log10(e0/e1) / math.Log10(h0/h1)
}
