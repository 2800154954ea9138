// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/curioloop/statopt/bnb"
	"github.com/curioloop/statopt/slsqp"
)

// bigMFactor scales the largest pilot coefficient into the default big-M.
const bigMFactor = 2

// pilotRidge is the ridge penalty of the pilot fit relative to the mean
// squared column norm of the design.
const pilotRidge = 1e-3

// subset solves best subset regression
//
//	min ‖y − Xβ − b‖²  s.t.  −Mzⱼ ≤ βⱼ ≤ Mzⱼ,  Σzⱼ ≤ k,  z ∈ {0,1}ᵖ
//
// over θ = (β, b, z).
type subset struct {
	x         mat.Matrix
	y         []float64
	p, q, k   int
	bigM      float64
	intercept bool
	opts      Options
	ls        *leastSquares
}

func (s *subset) n() int { return s.q + s.p }

// relax solves the continuous relaxation with z limited to [lower, upper].
func (s *subset) relax(ctx context.Context, lower, upper []float64) (bnb.Relaxed, error) {
	q, p := s.q, s.p
	if floats.Sum(lower[q:]) > float64(s.k)+1e-9 {
		return bnb.Relaxed{}, bnb.ErrInfeasible
	}

	obj := func(theta, g []float64) float64 {
		if g != nil {
			clear(g[q:])
		}
		return s.ls.eval(theta, g)
	}
	cons := make([]slsqp.Evaluation, 0, 2*p+1)
	for j := 0; j < p; j++ {
		for _, sign := range []float64{-1, 1} {
			cons = append(cons, func(theta, g []float64) float64 {
				if g != nil {
					clear(g)
					g[j], g[q+j] = sign, s.bigM
				}
				return s.bigM*theta[q+j] + sign*theta[j]
			})
		}
	}
	cons = append(cons, func(theta, g []float64) float64 {
		if g != nil {
			clear(g)
			for j := q; j < q+p; j++ {
				g[j] = -1
			}
		}
		return float64(s.k) - floats.Sum(theta[q:])
	})

	bounds := make([]slsqp.Bound, s.n())
	x0 := make([]float64, s.n())
	for i := range bounds {
		bounds[i] = slsqp.Bound{Lower: lower[i], Upper: upper[i]}
		if i >= q {
			x0[i] = lower[i]
		}
	}

	prob := slsqp.Problem{N: s.n(), Object: obj, NeqCons: cons, Bounds: bounds, Stop: s.opts.Stop}
	r, err := prob.Solve(ctx, x0)
	if err != nil {
		return bnb.Relaxed{}, err
	}
	switch r.Status {
	case slsqp.OK, slsqp.SearchNotDescent:
	case slsqp.Canceled:
		return bnb.Relaxed{}, ctx.Err()
	case slsqp.ConsIncompatible:
		return bnb.Relaxed{}, bnb.ErrInfeasible
	default:
		// r.F is not a lower bound of the node, pruning on it could drop the optimum
		return bnb.Relaxed{}, fmt.Errorf("%w: relaxation slsqp %s after %d iterations",
			ErrNotConverged, r.Status, r.NumIter)
	}
	return bnb.Relaxed{F: r.F, X: r.X}, nil
}

// heuristic refits least squares on the k largest coefficients of a relaxation.
func (s *subset) heuristic(ctx context.Context, theta []float64) (bnb.Relaxed, bool) {
	cols := make([]int, s.p)
	for j := range cols {
		cols[j] = j
	}
	sort.SliceStable(cols, func(a, b int) bool {
		return math.Abs(theta[cols[a]]) > math.Abs(theta[cols[b]])
	})
	cols = cols[:s.k]
	slices.Sort(cols)

	m, err := s.refit(ctx, cols)
	if err != nil {
		return bnb.Relaxed{}, false
	}
	x := make([]float64, s.n())
	copy(x, m.Coef)
	if s.intercept {
		x[s.p] = m.Intercept
	}
	for _, j := range cols {
		if math.Abs(m.Coef[j]) > s.bigM {
			return bnb.Relaxed{}, false
		}
		x[s.q+j] = 1
	}
	return bnb.Relaxed{F: m.Objective, X: x}, true
}

// refit runs least squares on the given columns, the others stay zero.
func (s *subset) refit(ctx context.Context, cols []int) (*Model, error) {
	m := &Model{Kind: KindSparse, Lambda: float64(s.k), Coef: make([]float64, s.p)}
	if len(cols) == 0 {
		if s.intercept {
			m.Intercept = stat.Mean(s.y, nil)
		}
		m.Objective = rss(s.x, s.y, m)
		return m, nil
	}

	n, _ := s.x.Dims()
	xs := mat.NewDense(n, len(cols), nil)
	col := make([]float64, n)
	for c, j := range cols {
		mat.Col(col, j, s.x)
		xs.SetCol(c, col)
	}
	opts := s.opts
	opts.Logger = zap.NewNop()
	fit, err := Linear(ctx, xs, s.y, opts)
	if err != nil {
		return nil, err
	}
	for c, j := range cols {
		m.Coef[j] = fit.Coef[c]
	}
	m.Intercept, m.Objective = fit.Intercept, fit.Objective
	return m, nil
}

// Sparse fits best subset regression with at most k nonzero coefficients by
// branch and bound over big-M relaxations. The returned coefficients are the
// least squares refit on the selected support.
func Sparse(ctx context.Context, x mat.Matrix, y []float64, k int, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	_, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: sparsity %d", ErrPenalty, k)
	}
	intercept := !opts.NoIntercept

	if k >= p {
		m, err := Linear(ctx, x, y, opts)
		if err != nil {
			return nil, err
		}
		m.Kind, m.Lambda = KindSparse, float64(k)
		return m, nil
	}

	s := &subset{
		x: x, y: y,
		p: p, q: p + btoi(intercept), k: k,
		bigM:      opts.BigM,
		intercept: intercept,
		opts:      opts,
		ls:        newLeastSquares(design(x, intercept), y),
	}
	if k == 0 {
		return s.refit(ctx, nil)
	}
	if s.bigM <= 0 {
		s.bigM = defaultBigM(x, y, intercept)
	}

	lower, upper := make([]float64, s.n()), make([]float64, s.n())
	var integer []int
	for i := range lower {
		switch {
		case i < p:
			lower[i], upper[i] = -s.bigM, s.bigM
		case i < s.q:
			lower[i], upper[i] = math.Inf(-1), math.Inf(1)
		default:
			lower[i], upper[i] = 0, 1
			integer = append(integer, i)
		}
	}

	search := bnb.Problem{
		N:         s.n(),
		Integer:   integer,
		Lower:     lower,
		Upper:     upper,
		Relax:     s.relax,
		Heuristic: s.heuristic,
		Stop:      opts.Branch,
		Logger:    opts.Logger,
	}
	br, err := search.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("sparse k=%d: %w", k, err)
	}
	if !br.HasSolution() {
		return nil, fmt.Errorf("sparse k=%d: %w", k, ErrInfeasible)
	}

	var cols []int
	for j := 0; j < p; j++ {
		if br.X[s.q+j] == 1 {
			cols = append(cols, j)
		}
	}
	m, err := s.refit(ctx, cols)
	switch {
	case errors.Is(err, ErrSingular):
		// collinear support, keep the relaxation coefficients
		opts.Logger.Warn("singular support, keeping the relaxed fit", zap.Ints("support", cols))
		m = &Model{Kind: KindSparse, Lambda: float64(k), Objective: br.F}
		m.Intercept, m.Coef = split(br.X, p, intercept)
	case err != nil:
		return nil, fmt.Errorf("sparse k=%d: %w", k, err)
	}
	m.Iterations = br.Nodes
	if slices.ContainsFunc(m.Coef, func(b float64) bool { return math.Abs(b) >= s.bigM*(1-1e-6) }) {
		opts.Logger.Warn("a coefficient reached big-M, the bound may cut off the optimum",
			zap.Float64("big_m", s.bigM))
	}
	if br.Status == bnb.NodeLimit {
		opts.Logger.Warn("sparse search hit the node limit",
			zap.Int("nodes", br.Nodes),
			zap.Float64("incumbent", br.F),
			zap.Float64("bound", br.Bound))
	}
	opts.Logger.Debug("sparse regression fitted",
		zap.Int("k", k),
		zap.Ints("support", cols),
		zap.Float64("big_m", s.bigM),
		zap.Int("nodes", br.Nodes),
		zap.Float64("objective", m.Objective))
	return m, nil
}

// defaultBigM bounds |βⱼ| by bigMFactor times the largest coefficient of two
// pilot fits that exist for any design: the univariate least squares slope of
// every column and a lightly penalized ridge fit. Neither needs a full rank or
// tall design, so duplicated columns and p > n are handled.
func defaultBigM(x mat.Matrix, y []float64, intercept bool) float64 {
	n, p := x.Dims()
	a := design(x, intercept)
	yc := slices.Clone(y)
	if intercept {
		floats.AddConst(-stat.Mean(y, nil), yc)
	}

	largest := 0.0
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		if intercept {
			floats.AddConst(-stat.Mean(col, nil), col)
		}
		if ss := floats.Dot(col, col); ss > 0 {
			largest = math.Max(largest, math.Abs(floats.Dot(col, yc)/ss))
		}
	}

	// (AᵀA + λD)θ = Aᵀy with D leaving the intercept unpenalized
	var ata mat.SymDense
	ata.SymOuterK(1, a.T())
	lambda := 0.0
	for j := 0; j < p; j++ {
		lambda += ata.At(j, j)
	}
	lambda = math.Max(pilotRidge*lambda/float64(p), machEps)
	for j := 0; j < p; j++ {
		ata.SetSym(j, j, ata.At(j, j)+lambda)
	}
	var aty, theta mat.VecDense
	aty.MulVec(a.T(), mat.NewVecDense(n, y))
	var chol mat.Cholesky
	if chol.Factorize(&ata) && chol.SolveVecTo(&theta, &aty) == nil {
		largest = math.Max(largest, floats.Norm(theta.RawVector().Data[:p], math.Inf(1)))
	}

	if largest == 0 || math.IsNaN(largest) || math.IsInf(largest, 0) {
		return 1
	}
	return bigMFactor * largest
}
