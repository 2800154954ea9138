// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/statopt/lbfgsb"
	"github.com/curioloop/statopt/slsqp"
)

// solveQP runs the SLSQP engine from the origin projected onto the bounds.
func solveQP(ctx context.Context, p slsqp.Problem, opts Options) (*slsqp.Result, error) {
	p.Stop = opts.Stop
	x0 := make([]float64, p.N)
	for i, b := range p.Bounds {
		if !math.IsNaN(b.Lower) && x0[i] < b.Lower {
			x0[i] = b.Lower
		}
		if !math.IsNaN(b.Upper) && x0[i] > b.Upper {
			x0[i] = b.Upper
		}
	}
	r, err := p.Solve(ctx, x0)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case slsqp.OK:
	case slsqp.Canceled:
		return nil, ctx.Err()
	case slsqp.SearchNotDescent:
		// the line search stalls at the accuracy floor, the iterate is optimal to precision
		opts.Logger.Debug("slsqp stalled", zap.Int("iterations", r.NumIter), zap.Float64("objective", r.F))
	default:
		return r, fmt.Errorf("%w: slsqp %s after %d iterations", ErrNotConverged, r.Status, r.NumIter)
	}
	return r, nil
}

// Ridge fits min ‖y − Xβ − b‖² + λ‖β‖² as a quadratic program.
func Ridge(ctx context.Context, x mat.Matrix, y []float64, lambda float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	_, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	if err := checkPenalty(lambda); err != nil {
		return nil, err
	}
	intercept := !opts.NoIntercept
	ls := newLeastSquares(design(x, intercept), y)

	obj := func(theta, g []float64) float64 {
		f := ls.eval(theta, g)
		for j, b := range theta[:p] {
			f += lambda * b * b
			if g != nil {
				g[j] += 2 * lambda * b
			}
		}
		return f
	}

	r, err := solveQP(ctx, slsqp.Problem{N: p + btoi(intercept), Object: obj}, opts)
	if err != nil {
		return nil, fmt.Errorf("ridge λ=%v: %w", lambda, err)
	}
	m := &Model{Kind: KindRidge, Lambda: lambda, Objective: r.F, Iterations: r.NumIter}
	m.Intercept, m.Coef = split(r.X, p, intercept)
	opts.Logger.Debug("ridge fitted", zap.Float64("lambda", lambda), zap.Float64("objective", r.F), zap.Int("iterations", r.NumIter))
	return m, nil
}

// splitLasso holds the variable layout θ = (β⁺, β⁻, b) of the ℓ₁ programs.
type splitLasso struct {
	p         int
	intercept bool
	ls        *leastSquares
	beta, g   []float64 // (β, b) scratch
}

func newSplitLasso(x mat.Matrix, y []float64, p int, intercept bool) *splitLasso {
	q := p + btoi(intercept)
	return &splitLasso{
		p:         p,
		intercept: intercept,
		ls:        newLeastSquares(design(x, intercept), y),
		beta:      make([]float64, q),
		g:         make([]float64, q),
	}
}

func (s *splitLasso) n() int {
	return 2*s.p + btoi(s.intercept)
}

// bounds keeps β± non-negative and leaves the intercept free.
func (s *splitLasso) bounds() []slsqp.Bound {
	b := make([]slsqp.Bound, s.n())
	for j := 0; j < 2*s.p; j++ {
		b[j] = slsqp.Bound{Lower: 0, Upper: math.Inf(1)}
	}
	if s.intercept {
		b[2*s.p] = slsqp.Free()
	}
	return b
}

// rss evaluates ‖y − X(β⁺ − β⁻) − b‖² and its gradient in θ.
func (s *splitLasso) rss(theta, g []float64) float64 {
	p := s.p
	for j := 0; j < p; j++ {
		s.beta[j] = theta[j] - theta[p+j]
	}
	if s.intercept {
		s.beta[p] = theta[2*p]
	}
	var gb []float64
	if g != nil {
		gb = s.g
	}
	f := s.ls.eval(s.beta, gb)
	if g != nil {
		for j := 0; j < p; j++ {
			g[j], g[p+j] = gb[j], -gb[j]
		}
		if s.intercept {
			g[2*p] = gb[p]
		}
	}
	return f
}

// box is the same layout for the L-BFGS-B engine.
func (s *splitLasso) box() []lbfgsb.Bound {
	b := make([]lbfgsb.Bound, s.n())
	for j := 0; j < 2*s.p; j++ {
		b[j] = lbfgsb.NonNegative()
	}
	if s.intercept {
		b[2*s.p] = lbfgsb.Free()
	}
	return b
}

// model snaps tiny coefficients and builds the fitted model from θ.
func (s *splitLasso) model(kind Kind, lambda float64, theta []float64, f float64, iters int, zeroTol float64) *Model {
	p := s.p
	m := &Model{Kind: kind, Lambda: lambda, Objective: f, Iterations: iters, Coef: make([]float64, p)}
	for j := 0; j < p; j++ {
		b := theta[j] - theta[p+j]
		if math.Abs(b) < zeroTol {
			b = 0
		}
		m.Coef[j] = b
	}
	if s.intercept {
		m.Intercept = theta[2*p]
	}
	return m
}

// lassoStop is tighter than the L-BFGS-B default so that the split
// coefficients settle on their bounds.
func lassoStop(opts Options) lbfgsb.Termination {
	stop := lbfgsb.DefaultTermination()
	stop.MaxIterations = opts.MaxIterations
	stop.EpsAccuracyFactor = 10
	stop.ProjGradTolerance = 1e-9
	return stop
}

// Lasso fits min ‖y − Xβ − b‖² + λ‖β‖₁ as a smooth bound constrained program
// in β = β⁺ − β⁻ with β± ≥ 0, solved by L-BFGS-B from the origin.
func Lasso(ctx context.Context, x mat.Matrix, y []float64, lambda float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	_, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	if err := checkPenalty(lambda); err != nil {
		return nil, err
	}
	s := newSplitLasso(x, y, p, !opts.NoIntercept)

	obj := func(theta, g []float64) float64 {
		f := s.rss(theta, g)
		f += lambda * floats.Sum(theta[:2*p])
		floats.AddConst(lambda, g[:2*p])
		return f
	}

	prob := lbfgsb.Problem{N: s.n(), Eval: obj, Bounds: s.box(), Stop: lassoStop(opts), Logger: opts.Logger}
	r, err := prob.Solve(ctx, make([]float64, s.n()))
	if err != nil {
		return nil, fmt.Errorf("lasso λ=%v: %w", lambda, err)
	}
	switch {
	case r.OK:
	case r.Status == lbfgsb.Canceled:
		return nil, fmt.Errorf("lasso λ=%v: %w", lambda, ctx.Err())
	case r.Status == lbfgsb.StopAbnormalSearch:
		// no descent left at machine precision
		opts.Logger.Debug("l-bfgs-b stalled", zap.Int("iterations", r.NumIter), zap.Float64("proj_grad", r.ProjGrad))
	default:
		return nil, fmt.Errorf("lasso λ=%v: %w: l-bfgs-b %s after %d iterations", lambda, ErrNotConverged, r.Status, r.NumIter)
	}
	m := s.model(KindLasso, lambda, r.X, r.F, r.NumIter, opts.ZeroTol)
	opts.Logger.Debug("lasso fitted",
		zap.Float64("lambda", lambda),
		zap.Float64("objective", r.F),
		zap.Int("support", len(m.Support(0))),
		zap.Int("iterations", r.NumIter))
	return m, nil
}

// LassoBudget fits the constrained form min ‖y − Xβ − b‖² s.t. ‖β‖₁ ≤ t.
func LassoBudget(ctx context.Context, x mat.Matrix, y []float64, t float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	_, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	if err := checkPenalty(t); err != nil {
		return nil, err
	}
	s := newSplitLasso(x, y, p, !opts.NoIntercept)

	budget := func(theta, g []float64) float64 {
		if g != nil {
			for j := range g {
				g[j] = 0
			}
			floats.AddConst(-1, g[:2*p])
		}
		return t - floats.Sum(theta[:2*p])
	}

	r, err := solveQP(ctx, slsqp.Problem{
		N:       s.n(),
		Object:  s.rss,
		NeqCons: []slsqp.Evaluation{budget},
		Bounds:  s.bounds(),
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("lasso budget t=%v: %w", t, err)
	}
	m := s.model(KindLassoBudget, t, r.X, r.F, r.NumIter, opts.ZeroTol)
	opts.Logger.Debug("lasso budget fitted",
		zap.Float64("budget", t),
		zap.Float64("objective", r.F),
		zap.Int("iterations", r.NumIter))
	return m, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
