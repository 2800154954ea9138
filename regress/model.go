// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regress fits statistical learning models by formulating each one as
// an optimization program and handing it to a solver engine.
//
//	Linear       min ‖y − Xβ − b‖²                          QR least squares
//	Ridge        min ‖y − Xβ − b‖² + λ‖β‖²                  SLSQP
//	Lasso        min ‖y − Xβ − b‖² + λ‖β‖₁                  L-BFGS-B, β = β⁺ − β⁻
//	LassoBudget  min ‖y − Xβ − b‖²  s.t. ‖β‖₁ ≤ t           SLSQP
//	LAD          min ‖y − Xβ − b‖₁                          simplex
//	Sparse       min ‖y − Xβ − b‖²  s.t. at most k βⱼ ≠ 0   branch and bound
//	Logistic     min mean log-loss + ½λ‖β‖²                 L-BFGS
//
// The intercept b is never penalized.
package regress

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/statopt/bnb"
	"github.com/curioloop/statopt/dataset"
	"github.com/curioloop/statopt/slsqp"
)

var (
	ErrDimension    = errors.New("regress: dimension mismatch")
	ErrPenalty      = errors.New("regress: invalid penalty")
	ErrLabel        = errors.New("regress: labels must be 0 or 1")
	ErrNotConverged = errors.New("regress: solver did not converge")
	ErrInfeasible   = errors.New("regress: infeasible sparsity pattern")
	ErrSingular     = errors.New("regress: singular design")
	ErrUnknownKind  = errors.New("regress: unknown model kind")
)

// Kind names a model formulation.
type Kind string

const (
	KindLinear      Kind = "linear"
	KindRidge       Kind = "ridge"
	KindLasso       Kind = "lasso"
	KindLassoBudget Kind = "lasso-budget"
	KindLAD         Kind = "lad"
	KindSparse      Kind = "sparse"
	KindLogistic    Kind = "logistic"
)

// Kinds lists every formulation in the order they are introduced.
var Kinds = []Kind{KindLinear, KindRidge, KindLasso, KindLassoBudget, KindLAD, KindSparse, KindLogistic}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Penalized reports whether the kind takes a regularization parameter.
func (k Kind) Penalized() bool {
	return k == KindRidge || k == KindLasso || k == KindLassoBudget || k == KindSparse || k == KindLogistic
}

// Model is a fitted linear predictor b + xᵀβ.
type Model struct {
	Kind Kind
	// Lambda is the penalty, the ℓ₁ budget for LassoBudget or k for Sparse.
	Lambda    float64
	Intercept float64
	Coef      []float64
	// Objective is the optimal value of the program that produced the model.
	Objective  float64
	Iterations int
}

// Predict returns the linear predictor for every row of x.
func (m *Model) Predict(x mat.Matrix) []float64 {
	n, p := x.Dims()
	if p != len(m.Coef) {
		panic(ErrDimension)
	}
	out := make([]float64, n)
	v := mat.NewVecDense(n, out)
	v.MulVec(x, mat.NewVecDense(p, m.Coef))
	floats.AddConst(m.Intercept, out)
	return out
}

// Support returns the indices of the coefficients whose magnitude exceeds tol.
func (m *Model) Support(tol float64) []int {
	var s []int
	for j, b := range m.Coef {
		if math.Abs(b) > tol {
			s = append(s, j)
		}
	}
	return s
}

// Loss is the validation loss of the model on (x, y): mean squared error for
// regression kinds and mean log-loss for logistic models.
func (m *Model) Loss(x mat.Matrix, y []float64) float64 {
	pred := m.Predict(x)
	if m.Kind == KindLogistic {
		for i, eta := range pred {
			pred[i] = sigmoid(eta)
		}
		return LogLoss(y, pred)
	}
	return MSE(y, pred)
}

// Classifier is a logistic model.
type Classifier struct {
	Model
	// StdErr and InterceptStdErr are Wald standard errors from the observed
	// information, nil when it is singular.
	StdErr          []float64
	InterceptStdErr float64

	cov *mat.SymDense // of (β, b)
}

func (c *Classifier) setStdErr() {
	p := len(c.Coef)
	c.StdErr = make([]float64, p)
	for j := range c.StdErr {
		c.StdErr[j] = math.Sqrt(c.cov.At(j, j))
	}
	c.InterceptStdErr = math.Sqrt(c.cov.At(p, p))
}

// Unscale maps a classifier fitted on features standardized by s back to
// the original units. The standard errors follow the same linear map.
func (c *Classifier) Unscale(s *dataset.Scaler) {
	p := len(c.Coef)
	c.Intercept, c.Coef = s.Unscale(c.Intercept, c.Coef)
	if c.cov == nil {
		return
	}
	t := mat.NewDense(p+1, p+1, nil)
	for j := 0; j < p; j++ {
		t.Set(j, j, 1/s.Std[j])
		t.Set(p, j, -s.Mean[j]/s.Std[j])
	}
	t.Set(p, p, 1)
	var tc, cov mat.Dense
	tc.Mul(t, c.cov)
	cov.Mul(&tc, t.T())
	for i := 0; i <= p; i++ {
		for j := i; j <= p; j++ {
			c.cov.SetSym(i, j, (cov.At(i, j)+cov.At(j, i))/2)
		}
	}
	c.setStdErr()
}

// Probability returns P(y = 1 | x) for every row of x.
func (c *Classifier) Probability(x mat.Matrix) []float64 {
	p := c.Predict(x)
	for i, eta := range p {
		p[i] = sigmoid(eta)
	}
	return p
}

// Classify labels a row 1 when its probability reaches threshold.
func (c *Classifier) Classify(x mat.Matrix, threshold float64) []float64 {
	p := c.Probability(x)
	for i, v := range p {
		p[i] = 0
		if v >= threshold {
			p[i] = 1
		}
	}
	return p
}

// Options tune every fit. The zero value selects the defaults.
type Options struct {
	// NoIntercept fits b = 0.
	NoIntercept bool
	// ZeroTol snaps lasso coefficients below it to zero, default 1e-6.
	ZeroTol float64
	// BigM bounds |βⱼ| in sparse regression, zero derives it from pilot univariate and ridge fits.
	BigM float64
	// Stop configures the SLSQP engine, zero selects slsqp.DefaultTermination.
	Stop slsqp.Termination
	// Branch limits the sparse regression search.
	Branch bnb.Termination
	// MaxIterations caps L-BFGS and L-BFGS-B iterations, default 1000.
	MaxIterations int
	// Standardize scales the training rows of every cross-validation fold
	// with their own mean and deviation. Single fits ignore it.
	Standardize bool
	// Workers bounds the concurrent fits of Path and CrossValidate, default GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ZeroTol <= 0 {
		o.ZeroTol = 1e-6
	}
	if o.Stop.MaxIterations <= 0 || o.Stop.Accuracy <= 0 {
		o.Stop = slsqp.DefaultTermination()
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 1000
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func checkData(x mat.Matrix, y []float64) (n, p int, err error) {
	if x == nil {
		return 0, 0, fmt.Errorf("%w: no design matrix", ErrDimension)
	}
	n, p = x.Dims()
	switch {
	case n != len(y):
		return 0, 0, fmt.Errorf("%w: %d rows and %d responses", ErrDimension, n, len(y))
	case n == 0 || p == 0:
		return 0, 0, fmt.Errorf("%w: empty design", ErrDimension)
	}
	return n, p, nil
}

func checkPenalty(lambda float64) error {
	if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return fmt.Errorf("%w: %v", ErrPenalty, lambda)
	}
	return nil
}

func sigmoid(eta float64) float64 {
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)
	return e / (1 + e)
}
