// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lbfgsb minimizes a smooth function subject to simple bounds
// lᵢ ≤ xᵢ ≤ uᵢ with the limited memory BFGS method of Byrd, Lu, Nocedal and Zhu.
package lbfgsb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidProblem is wrapped by every validation error returned from Problem.New.
var ErrInvalidProblem = errors.New("lbfgsb: invalid problem")

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidProblem}, a...)...)
}

// Bound is the feasible interval of one variable. An infinite or NaN side
// is treated as absent.
type Bound struct {
	Lower, Upper float64
	hint         bndHint
}

// Free returns a bound without lower or upper limit.
func Free() Bound {
	return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// NonNegative returns the bound [0, ∞).
func NonNegative() Bound {
	return Bound{Lower: 0, Upper: math.Inf(1)}
}

// Evaluation returns the objective at x and writes its gradient into g.
type Evaluation func(x, g []float64) float64

// Termination holds the stopping rules of a run.
type Termination struct {
	// MaxIterations caps the number of iterations.
	MaxIterations int
	// MaxEvaluations caps the number of objective evaluations, line search
	// trials included. Zero means unlimited.
	MaxEvaluations int
	// MaxComputations caps the wall time of a run. Zero means unlimited.
	MaxComputations time.Duration
	// EpsAccuracyFactor stops the run once the relative decrease
	// (fₖ - fₖ₊₁)/max(|fₖ|, |fₖ₊₁|, 1) falls to this multiple of the machine epsilon.
	EpsAccuracyFactor float64
	// ProjGradTolerance stops the run once the largest projected gradient
	// component is at most this value.
	ProjGradTolerance float64
	// GradDescentThreshold stops the run once the step norm ‖dₖ‖₂ falls to
	// this multiple of |fₖ| + 1.
	GradDescentThreshold float64
}

// DefaultTermination returns moderate accuracy stopping rules.
func DefaultTermination() Termination {
	return Termination{
		MaxIterations:     15000,
		MaxEvaluations:    15000,
		EpsAccuracyFactor: 1e7,
		ProjGradTolerance: 1e-5,
	}
}

// Problem describes a bound constrained minimization.
type Problem struct {
	N      int         // number of variables
	M      int         // stored correction pairs, 10 when zero
	Eval   Evaluation  // objective and gradient
	Stop   Termination // stopping rules
	Bounds []Bound     // per variable bounds, all free when nil
	Search *SearchTol  // line search tolerances, DefaultSearch when nil
	Logger *zap.Logger // debug traces of each run, silent when nil
}

// New validates p and returns an Optimizer for it.
func (p *Problem) New() (*Optimizer, error) {
	m, stop := p.M, p.Stop
	if m == 0 {
		m = 10
	}
	if stop.MaxEvaluations <= 0 {
		stop.MaxEvaluations = math.MaxInt
	}
	if stop.MaxComputations <= 0 {
		stop.MaxComputations = math.MaxInt64
	}

	switch {
	case p.N <= 0:
		return nil, invalid("dimension %d is not positive", p.N)
	case m < 0:
		return nil, invalid("correction count %d is negative", m)
	case p.Eval == nil:
		return nil, invalid("no evaluation function")
	case stop.MaxIterations <= 0:
		return nil, invalid("iteration limit %d is not positive", stop.MaxIterations)
	case !(stop.EpsAccuracyFactor >= 1):
		return nil, invalid("accuracy factor %v is below 1", stop.EpsAccuracyFactor)
	case !(stop.ProjGradTolerance >= 0):
		return nil, invalid("projected gradient tolerance %v is negative", stop.ProjGradTolerance)
	case p.Search != nil && !p.Search.valid():
		return nil, invalid("line search tolerances %+v out of range", *p.Search)
	case p.Bounds != nil && len(p.Bounds) != p.N:
		return nil, invalid("%d bounds for %d variables", len(p.Bounds), p.N)
	}

	bounds := make([]Bound, p.N)
	for i := range bounds {
		b := Free()
		if p.Bounds != nil {
			b = p.Bounds[i]
		}
		lo := !math.IsNaN(b.Lower) && !math.IsInf(b.Lower, -1)
		hi := !math.IsNaN(b.Upper) && !math.IsInf(b.Upper, 1)
		switch {
		case lo && hi && b.Lower > b.Upper:
			return nil, invalid("bound %d is empty: [%v, %v]", i, b.Lower, b.Upper)
		case lo && hi:
			b.hint = bndBoth
		case lo:
			b.hint = bndLow
		case hi:
			b.hint = bndUp
		default:
			b.hint = bndNo
		}
		bounds[i] = b
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	spec := iterSpec{
		n: p.N, m: m,
		epsilon: math.Nextafter(1, 2) - 1,
		stop:    stop,
		eval:    p.Eval,
		bounds:  bounds,
		search:  p.Search,
		logger:  logger,
	}
	return &Optimizer{spec}, nil
}

// Optimizer is a validated Problem. It is immutable and can serve several
// workspaces at once.
type Optimizer struct {
	iterSpec
}

// Workspace holds the per run state, about 2mn + 11m² + 5n + 8m floats for
// n variables and m corrections. A workspace serves one run at a time.
type Workspace struct {
	n, m int
	iterCtx
}

// Result is the outcome of a run.
type Result struct {
	OK      bool      // Status is a convergence status
	F       float64   // objective at X
	X, G    []float64 // final point and its gradient
	Summary
}

// Summary counts the work done by a run.
type Summary struct {
	Status   Status
	NumIter  int     // iterations
	NumEval  int     // objective evaluations
	ProjGrad float64 // infinity norm of the final projected gradient
}

// Init allocates a workspace sized for o.
func (o *Optimizer) Init() *Workspace {
	w := &Workspace{n: o.n, m: o.m}
	w.init(o.n, o.m)
	return w
}

// Fit runs the optimization from x using workspace w. It stops with
// status Canceled once ctx is done, checked before every evaluation.
func (o *Optimizer) Fit(ctx context.Context, x []float64, w *Workspace) (*Result, error) {
	switch {
	case len(x) != o.n:
		return nil, invalid("initial x has dimension %d, want %d", len(x), o.n)
	case w.n != o.n || w.m != o.m:
		return nil, invalid("workspace dimension (%d, %d) does not match (%d, %d)", w.n, w.m, o.n, o.m)
	}

	loc := &iterLoc{x: slices.Clone(x), g: make([]float64, o.n)}
	st := (&iterDriver{ctx: ctx, spec: &o.iterSpec, it: &w.iterCtx, loc: loc}).run()
	return &Result{
		OK: st.Converged(),
		F:  loc.f,
		X:  loc.x,
		G:  loc.g,
		Summary: Summary{
			Status:   st,
			NumIter:  w.iter,
			NumEval:  w.totalEval,
			ProjGrad: w.sbgNrm,
		},
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
