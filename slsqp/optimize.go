// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package slsqp minimizes a smooth function subject to equality and
// inequality constraints and simple bounds by sequential least squares
// programming.
package slsqp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidProblem is wrapped by every validation error returned from Problem.New.
var ErrInvalidProblem = errors.New("slsqp: invalid problem")

// Bound is the feasible interval of one variable. An infinite or NaN side
// is treated as absent.
type Bound struct {
	Lower, Upper float64
}

// Free returns a bound without lower or upper limit.
func Free() Bound {
	return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Evaluation returns the value of the objective or of one constraint at x.
// When g is not nil it also writes the gradient there, which for a
// constraint is its normal. The solver passes g == nil whenever only the
// value is needed.
type Evaluation func(x, g []float64) float64

// Termination holds the stopping rules of a run. A NaN tolerance is off.
type Termination struct {
	// Accuracy is the target for the optimality and feasibility measures.
	Accuracy float64
	// MaxIterations caps the number of SQP iterations.
	MaxIterations int
	// NNLSIterations caps the inner NNLS iterations, 3n when zero.
	NNLSIterations int
	// FEvalTolerance stops once |fₖ| drops below it.
	FEvalTolerance float64
	// FDiffTolerance stops once |fₖ₊₁ - fₖ| drops below it.
	FDiffTolerance float64
	// XDiffTolerance stops once ‖xₖ₊₁ - xₖ‖₂ drops below it.
	XDiffTolerance float64
}

// DefaultTermination is the stop condition used by the regression models.
func DefaultTermination() Termination {
	return Termination{
		Accuracy:       1e-10,
		MaxIterations:  500,
		FEvalTolerance: math.NaN(),
		FDiffTolerance: math.NaN(),
		XDiffTolerance: math.NaN(),
	}
}

// LineSearch selects the step length rule on the merit function.
type LineSearch struct {
	// Exact runs Brent's minimizer on the step; otherwise the step is
	// backtracked until the Armijo condition holds.
	Exact bool
	// Alpha is the step range, within (0, 1]. A nil range or NaN side
	// defaults to [0.1, 1].
	Alpha *Bound
}

// Problem describes a constrained minimization.
type Problem struct {
	N       int          // number of variables
	Stop    Termination  // stopping rules
	Line    LineSearch   // step length rule
	Object  Evaluation   // objective f
	EqCons  []Evaluation // constraints c(x) = 0
	NeqCons []Evaluation // constraints c(x) ≥ 0
	Bounds  []Bound      // per variable bounds, all free when nil
	// BndInf is the magnitude from which a bound counts as absent,
	// math.MaxFloat64 when zero.
	BndInf float64
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidProblem}, a...)...)
}

func isNil(e Evaluation) bool { return e == nil }

// stepRange fills the defaults of the line search step range.
func stepRange(a *Bound) *Bound {
	r := Bound{Lower: 0.1, Upper: 1}
	if a != nil {
		if !math.IsNaN(a.Lower) {
			r.Lower = a.Lower
		}
		if !math.IsNaN(a.Upper) {
			r.Upper = a.Upper
		}
	}
	return &r
}

// New validates p and returns an Optimizer for it.
func (p *Problem) New() (*Optimizer, error) {
	n, stop := p.N, p.Stop
	meq := len(p.EqCons)
	line := p.Line
	line.Alpha = stepRange(line.Alpha)

	off := func(tol float64) bool { return math.IsNaN(tol) || tol >= 0 }
	switch {
	case n <= 0:
		return nil, invalid("dimension %d is not positive", n)
	case meq > n:
		return nil, invalid("%d equality constraints for %d variables", meq, n)
	case p.Object == nil:
		return nil, invalid("no objective")
	case stop.MaxIterations <= 0:
		return nil, invalid("iteration limit %d is not positive", stop.MaxIterations)
	case stop.NNLSIterations < 0:
		return nil, invalid("nnls iteration limit %d is negative", stop.NNLSIterations)
	case !(stop.Accuracy > 0):
		return nil, invalid("accuracy %v is not positive", stop.Accuracy)
	case !off(stop.FEvalTolerance), !off(stop.FDiffTolerance), !off(stop.XDiffTolerance):
		return nil, invalid("negative tolerance in %+v", stop)
	case line.Alpha.Lower < 0 || line.Alpha.Upper > 1 || line.Alpha.Upper < line.Alpha.Lower:
		return nil, invalid("step range [%v, %v] outside [0, 1]", line.Alpha.Lower, line.Alpha.Upper)
	case p.Bounds != nil && len(p.Bounds) != n:
		return nil, invalid("%d bounds for %d variables", len(p.Bounds), n)
	}
	if k := slices.IndexFunc(p.EqCons, isNil); k >= 0 {
		return nil, invalid("equality constraint %d is nil", k)
	}
	if k := slices.IndexFunc(p.NeqCons, isNil); k >= 0 {
		return nil, invalid("inequality constraint %d is nil", k)
	}

	// absent sides are stored as NaN
	bounds := make([]Bound, n)
	for i := range bounds {
		b := Free()
		if p.Bounds != nil {
			b = p.Bounds[i]
		}
		for _, v := range []*float64{&b.Lower, &b.Upper} {
			if math.IsInf(*v, 0) {
				*v = math.NaN()
			}
		}
		if b.Lower > b.Upper {
			return nil, invalid("bound %d is empty: [%v, %v]", i, b.Lower, b.Upper)
		}
		bounds[i] = b
	}

	inf := math.Abs(p.BndInf)
	if inf == 0 {
		inf = math.MaxFloat64
	}
	spec := sqpSpec{
		n: n, m: meq + len(p.NeqCons), meq: meq,
		Problem: Problem{
			N:       n,
			Stop:    stop,
			Line:    line,
			Object:  p.Object,
			EqCons:  slices.Clone(p.EqCons),
			NeqCons: slices.Clone(p.NeqCons),
			Bounds:  bounds,
			BndInf:  inf,
		},
	}
	return &Optimizer{spec}, nil
}

// Optimizer is a validated Problem. It is immutable and can serve several
// workspaces at once.
type Optimizer struct {
	sqpSpec
}

// Workspace holds the per run state. A workspace serves one run at a time.
type Workspace struct {
	n, m, meq int
	sqpState
}

// Result is the outcome of a run.
type Result struct {
	OK      bool      // Status is OK
	F       float64   // objective at X
	X, G    []float64 // final point and objective gradient
	Summary
}

// Summary reports how a run ended.
type Summary struct {
	Status  Status
	NumIter int
}

// Init allocates a workspace sized for o, including room for the
// relaxation variable of an inconsistent subproblem.
func (o *Optimizer) Init() *Workspace {
	n, m, meq := o.n, o.m, o.meq
	n1 := n + 1
	mg := (m - meq) + 2*n1
	lsqWork := n1*(n1+1) + meq*(n1+1) + mg*(n1+1) +
		2*meq + n1 + (n1+mg)*(n1-meq) + (n1-meq+1)*(mg+2) + 2*mg

	return &Workspace{
		n: n, m: m, meq: meq,
		sqpState: sqpState{
			x0:   make([]float64, n),
			rho:  make([]float64, max(1, m)),
			mult: make([]float64, m+2*n1),
			ldl:  make([]float64, packed(n, n)+1),
			d:    make([]float64, n1),
			u:    make([]float64, n1),
			v:    make([]float64, n1),
			w:    make([]float64, lsqWork),
			jw:   make([]int, max(mg, n1)),
		},
	}
}

// Fit runs the optimization from x using workspace w. It stops with status
// Canceled once ctx is done, checked before every evaluation.
func (o *Optimizer) Fit(ctx context.Context, x []float64, w *Workspace) (*Result, error) {
	switch {
	case len(x) != o.n:
		return nil, invalid("initial x has dimension %d, want %d", len(x), o.n)
	case w.n != o.n || w.m != o.m || w.meq != o.meq:
		return nil, invalid("workspace dimension (%d, %d, %d) does not match (%d, %d, %d)",
			w.n, w.m, w.meq, o.n, o.m, o.meq)
	}

	// constraint rows are stored with stride max(m, 1), one extra column for δ
	rows := max(1, o.m)
	pt := &point{
		x: slices.Clone(x),
		c: make([]float64, rows),
		g: make([]float64, o.n+1),
		a: make([]float64, rows*(o.n+1)),
	}
	st := (&sqpSolver{Optimizer: o, ctx: ctx, st: &w.sqpState, pt: pt}).run()
	return &Result{
		OK:      st == OK,
		F:       pt.f,
		X:       pt.x,
		G:       pt.g[:o.n],
		Summary: Summary{Status: st, NumIter: w.iter},
	}, nil
}

// Solve validates p, allocates a workspace and fits from x0.
func (p *Problem) Solve(ctx context.Context, x0 []float64) (*Result, error) {
	o, err := p.New()
	if err != nil {
		return nil, err
	}
	return o.Fit(ctx, x0, o.Init())
}
