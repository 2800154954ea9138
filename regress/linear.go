// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// design copies x and appends a column of ones when intercept is set.
func design(x mat.Matrix, intercept bool) *mat.Dense {
	n, p := x.Dims()
	q := p
	if intercept {
		q++
	}
	a := mat.NewDense(n, q, nil)
	a.Slice(0, n, 0, p).(*mat.Dense).Copy(x)
	if intercept {
		for i := 0; i < n; i++ {
			a.Set(i, p, 1)
		}
	}
	return a
}

// leastSquares evaluates ‖Aθ − y‖² and its gradient 2Aᵀ(Aθ − y).
// It keeps scratch space and must not be shared between goroutines.
type leastSquares struct {
	a *mat.Dense
	y []float64
	r *mat.VecDense
}

func newLeastSquares(a *mat.Dense, y []float64) *leastSquares {
	n, _ := a.Dims()
	return &leastSquares{a: a, y: y, r: mat.NewVecDense(n, nil)}
}

func (ls *leastSquares) eval(theta, grad []float64) float64 {
	_, q := ls.a.Dims()
	ls.r.MulVec(ls.a, mat.NewVecDense(q, theta[:q]))
	r := ls.r.RawVector().Data
	floats.Sub(r, ls.y)
	if grad != nil {
		g := mat.NewVecDense(q, grad[:q])
		g.MulVec(ls.a.T(), ls.r)
		g.ScaleVec(2, g)
	}
	return floats.Dot(r, r)
}

// split separates the intercept from the coefficients of a solution θ.
func split(theta []float64, p int, intercept bool) (float64, []float64) {
	coef := append([]float64(nil), theta[:p]...)
	if intercept {
		return theta[p], coef
	}
	return 0, coef
}

// machEps is the float64 machine epsilon.
const machEps = 0x1p-52

// illConditioned is the condition number above which a solvable design is
// reported as ill-conditioned.
const illConditioned = 1e10

// Linear fits ordinary least squares by a QR factorization of the design.
// A rank deficient design, such as one with a duplicated column, has no
// unique solution and returns ErrSingular.
func Linear(_ context.Context, x mat.Matrix, y []float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	n, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	intercept := !opts.NoIntercept
	a := design(x, intercept)
	if _, q := a.Dims(); n < q {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrDimension, n, q)
	}

	var qr mat.QR
	qr.Factorize(a)
	if j, ok := rankDeficit(&qr); ok {
		return nil, fmt.Errorf("%w: column %d is a linear combination of the others", ErrSingular, j)
	}
	var theta mat.Dense
	if err := qr.SolveTo(&theta, false, mat.NewVecDense(n, y)); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: condition number %.3g", ErrSingular, float64(cond))
		}
		return nil, fmt.Errorf("regress: least squares: %w", err)
	}
	if cond := qr.Cond(); cond > illConditioned {
		opts.Logger.Warn("ill-conditioned design", zap.Float64("condition", cond))
	}

	m := &Model{Kind: KindLinear}
	m.Intercept, m.Coef = split(mat.Col(nil, 0, &theta), p, intercept)
	m.Objective = rss(x, y, m)
	opts.Logger.Debug("least squares fitted", zap.Float64("rss", m.Objective))
	return m, nil
}

// rankDeficit reports the first column whose diagonal entry of R vanishes
// relative to the largest one, the usual numerical rank test.
func rankDeficit(qr *mat.QR) (int, bool) {
	var r mat.Dense
	qr.RTo(&r)
	_, q := r.Dims()
	rmax := 0.0
	for j := 0; j < q; j++ {
		rmax = math.Max(rmax, math.Abs(r.At(j, j)))
	}
	tol := float64(q) * machEps * rmax
	for j := 0; j < q; j++ {
		if math.Abs(r.At(j, j)) <= tol {
			return j, true
		}
	}
	return 0, false
}

// rss is the residual sum of squares of m on (x, y).
func rss(x mat.Matrix, y []float64, m *Model) float64 {
	pred := m.Predict(x)
	floats.Sub(pred, y)
	return floats.Dot(pred, pred)
}
