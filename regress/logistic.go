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

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/curioloop/statopt/numdiff"
)

// logLoss is the mean negative log-likelihood of a logistic model plus ½λ‖β‖².
type logLoss struct {
	a      *mat.Dense
	y      []float64
	p      int
	lambda float64
	eta    *mat.VecDense
	resid  *mat.VecDense
}

func (l *logLoss) fn(theta []float64) float64 {
	n, q := l.a.Dims()
	l.eta.MulVec(l.a, mat.NewVecDense(q, theta))
	f := 0.0
	for i, e := range l.eta.RawVector().Data {
		// log(1 + eᵉ) − y·e without overflow
		f += math.Max(e, 0) + math.Log1p(math.Exp(-math.Abs(e))) - l.y[i]*e
	}
	f /= float64(n)
	beta := theta[:l.p]
	return f + 0.5*l.lambda*floats.Dot(beta, beta)
}

func (l *logLoss) grad(g, theta []float64) {
	n, q := l.a.Dims()
	l.eta.MulVec(l.a, mat.NewVecDense(q, theta))
	r := l.resid.RawVector().Data
	for i, e := range l.eta.RawVector().Data {
		r[i] = sigmoid(e) - l.y[i]
	}
	gv := mat.NewVecDense(q, g)
	gv.MulVec(l.a.T(), l.resid)
	floats.Scale(1/float64(n), g)
	floats.AddScaled(g[:l.p], l.lambda, theta[:l.p])
}

// covariance returns the inverse observed information of theta from a
// central difference Hessian of the loss, scaled from the mean to the total
// log-likelihood.
func (l *logLoss) covariance(theta []float64) (*mat.SymDense, error) {
	n, q := l.a.Dims()
	spec := numdiff.ApproxSpec{
		N: q, M: q,
		Method: numdiff.Central,
		Object: func(x, g []float64) { l.grad(g, x) },
	}
	h := make([]float64, q*q)
	if err := spec.Diff(slices.Clone(theta), h); err != nil {
		return nil, err
	}
	info := mat.NewSymDense(q, nil)
	for i := 0; i < q; i++ {
		for j := i; j < q; j++ {
			info.SetSym(i, j, float64(n)*(h[i*q+j]+h[j*q+i])/2)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(info) {
		return nil, errors.New("information matrix is not positive definite")
	}
	cov := mat.NewSymDense(q, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, err
	}
	return cov, nil
}

// canceler stops the minimizer once the context is done.
type canceler struct {
	ctx context.Context
}

func (c canceler) Init() error { return c.ctx.Err() }

func (c canceler) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return c.ctx.Err()
}

// Logistic fits min (1/n) Σ log(1 + exp(ηᵢ)) − yᵢηᵢ + ½λ‖β‖² with ηᵢ = xᵢᵀβ + b
// by L-BFGS. Labels must be 0 or 1.
func Logistic(ctx context.Context, x mat.Matrix, y []float64, lambda float64, opts Options) (*Classifier, error) {
	opts = opts.withDefaults()
	n, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	if err := checkPenalty(lambda); err != nil {
		return nil, err
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("%w: y[%d] = %v", ErrLabel, i, v)
		}
	}

	intercept := !opts.NoIntercept
	q := p + btoi(intercept)
	loss := &logLoss{
		a:      design(x, intercept),
		y:      y,
		p:      p,
		lambda: lambda,
		eta:    mat.NewVecDense(n, nil),
		resid:  mat.NewVecDense(n, nil),
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-9,
		MajorIterations:   opts.MaxIterations,
		Recorder:          canceler{ctx},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: loss.fn, Grad: loss.grad}, make([]float64, q), settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("logistic λ=%v: %w", lambda, err)
	}
	if err := res.Status.Err(); err != nil {
		return nil, fmt.Errorf("logistic λ=%v: %w: %v", lambda, ErrNotConverged, err)
	}

	c := &Classifier{Model: Model{
		Kind:       KindLogistic,
		Lambda:     lambda,
		Objective:  res.F,
		Iterations: res.Stats.MajorIterations,
	}}
	c.Intercept, c.Coef = split(res.X, p, intercept)
	if cov, err := loss.covariance(res.X); err != nil {
		opts.Logger.Warn("no standard errors", zap.Error(err))
	} else {
		// (β, b) layout with a zero intercept row when b is not fitted
		c.cov = mat.NewSymDense(p+1, nil)
		for i := 0; i < q; i++ {
			for j := i; j < q; j++ {
				c.cov.SetSym(i, j, cov.At(i, j))
			}
		}
		c.setStdErr()
	}
	opts.Logger.Debug("logistic regression fitted",
		zap.Float64("lambda", lambda),
		zap.Float64("objective", res.F),
		zap.Stringer("status", res.Status),
		zap.Int("iterations", res.Stats.MajorIterations))
	return c, nil
}
