// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates derivatives by finite differences.
//
// Package regress uses it for the Hessian of the logistic loss behind the
// Wald standard errors and, in tests, to check analytic gradients.
package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// Validation errors returned by Check.
var (
	ErrDimension = errors.New("numdiff: dimension mismatch")
	ErrBound     = errors.New("numdiff: invalid bound")
	ErrMethod    = errors.New("numdiff: unknown method")
	ErrObject    = errors.New("numdiff: object function is required")
)

// Method selects the difference formula.
type Method int

const (
	// Forward takes one step per variable, with error O(h).
	Forward Method = iota
	// Central takes a step on each side, with error O(h²). Next to a bound
	// it falls back to a one sided three point formula.
	Central
)

// Bound holds the lower and upper limit of one variable. NaN means unbounded.
type Bound [2]float64

// ApproxSpec estimates the m × n Jacobian of Object at a point. See
// https://en.wikipedia.org/wiki/Finite_difference for the formulas.
type ApproxSpec struct {
	N, M int
	// Object writes the m values of the function at the n-vector x into y.
	Object func(x, y []float64)
	Method Method
	// Bounds keeps every evaluation inside the box, flipping or shrinking
	// steps that would leave it. Nil means unbounded.
	Bounds []Bound
	// RelStep scales the step by |x| instead of max(1, |x|). The scale
	// defaults to ε^½ for Forward and ε^⅓ for Central.
	RelStep float64
	// AbsStep fixes the step before bound adjustment. Central ignores its sign.
	AbsStep float64
	// NotChkBnd accepts a point outside Bounds.
	NotChkBnd bool
	// TransJac stores the Jacobian n × m.
	TransJac bool
	approxCtx
}

type approxCtx struct {
	lim     []Bound
	f0, fx  []float64
	absStep []float64
	oneSide []bool
}

// Check validates as against x0 and diff and sizes the buffers.
func (as *ApproxSpec) Check(x0, diff []float64) error {

	switch {
	case as.N <= 0 || as.M <= 0:
		return ErrDimension
	case as.Method != Forward && as.Method != Central:
		return ErrMethod
	case as.Object == nil:
		return ErrObject
	case as.N != len(x0) || as.N*as.M != len(diff):
		return ErrDimension
	}

	as.lim = as.lim[:0]
	if as.Bounds != nil {
		if len(as.Bounds) != len(x0) {
			return ErrDimension
		}
		for i, b := range as.Bounds {
			lo, hi := b[0], b[1]
			if math.IsNaN(lo) {
				lo = math.Inf(-1)
			}
			if math.IsNaN(hi) {
				hi = math.Inf(1)
			}
			if lo > hi {
				return ErrBound
			}
			if !as.NotChkBnd && (x0[i] < lo || x0[i] > hi) {
				return ErrBound
			}
			as.lim = append(as.lim, Bound{lo, hi})
		}
	}

	sides := int(as.Method) + 1
	if len(as.fx) != as.M*sides {
		as.f0 = make([]float64, as.M)
		as.fx = make([]float64, as.M*sides)
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
	}
	if len(as.oneSide) != as.N*int(as.Method) {
		as.oneSide = make([]bool, as.N*int(as.Method))
	}
	return nil
}

// Diff writes the Jacobian at x0 into diff, row-major m × n or n × m with
// TransJac. x0 is restored before return.
func (as *ApproxSpec) Diff(x0, diff []float64) error {

	if err := as.Check(x0, diff); err != nil {
		return err
	}

	bounded := false
	for _, b := range as.lim {
		if !math.IsInf(b[0], 0) || !math.IsInf(b[1], 0) {
			bounded = true
			break
		}
	}

	as.absoluteStep(x0)
	as.adjustToBounds(x0, bounded)

	if as.Method == Central {
		as.approxCentral(x0, diff)
	} else {
		as.approxForward(x0, diff)
	}
	return nil
}

func (as *ApproxSpec) adjustToBounds(x0 []float64, bounded bool) {
	h, side := as.absStep, as.oneSide
	if as.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
		clear(side)
	}
	if !bounded {
		return
	}

	for i, x := range x0 {
		lo, hi := as.lim[i][0], as.lim[i][1]
		below, above := x-lo, hi-x

		if as.Method == Forward {
			step := h[i]
			outside := x+step < lo || x+step > hi
			fits := math.Abs(step) < math.Max(below, above)
			switch {
			case outside && fits:
				h[i] = -step
			case !fits && above >= below:
				h[i] = above
			case !fits:
				h[i] = -below
			}
			continue
		}

		central := below >= h[i] && above >= h[i]
		if !central {
			side[i] = true
			if above >= below {
				h[i] = math.Min(h[i], 0.5*above)
			} else {
				h[i] = -math.Min(h[i], 0.5*below)
			}
			if gap := math.Min(above, below); math.Abs(h[i]) <= gap {
				h[i] = gap
				side[i] = false
			}
		}
	}
}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	eps := sqrtEps
	if as.Method == Central {
		eps = cubeEps
	}

	auto := func(v float64) float64 {
		return math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
	}

	h := as.absStep
	for i, v := range x0 {
		if as.AbsStep == 0 && as.RelStep == 0 {
			h[i] = auto(v)
			continue
		}
		s := as.AbsStep
		if s == 0 {
			s = math.Copysign(as.RelStep, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = auto(v)
		}
		h[i] = s
	}
}

// store writes one column of partial derivatives.
func (as *ApproxSpec) store(df []float64, i int, d func(j int) float64) {
	n, m := as.N, as.M
	if as.TransJac {
		col := df[i*m : (i+1)*m]
		for j := range col {
			col[j] = d(j)
		}
		return
	}
	for j := 0; j < m; j++ {
		df[i+j*n] = d(j)
	}
}

func (as *ApproxSpec) approxForward(x0, df []float64) {
	f0, fx := as.f0, as.fx
	as.Object(x0, f0)
	for i, s := range as.absStep {
		t := x0[i]
		x0[i] = t + s
		as.Object(x0, fx)
		x0[i] = t
		as.store(df, i, func(j int) float64 {
			return (fx[j] - f0[j]) / s
		})
	}
}

func (as *ApproxSpec) approxCentral(x0, df []float64) {
	f0, f1, f2 := as.f0, as.fx[:as.M], as.fx[as.M:]
	as.Object(x0, f0)
	for i, s := range as.absStep {
		t := x0[i]
		d := 1.0 / (2 * s)
		if as.oneSide[i] {
			x0[i] = t + s
			as.Object(x0, f1)
			x0[i] = t + 2*s
			as.Object(x0, f2)
			as.store(df, i, func(j int) float64 {
				return (4*f1[j] - 3*f0[j] - f2[j]) * d
			})
		} else {
			x0[i] = t - s
			as.Object(x0, f1)
			x0[i] = t + s
			as.Object(x0, f2)
			as.store(df, i, func(j int) float64 {
				return (f2[j] - f1[j]) * d
			})
		}
		x0[i] = t
	}
}

// Gradient wraps a scalar function into an evaluation closure that returns f(x)
// and, when g is non-nil, fills g with a finite difference gradient.
// The closure keeps its own work space and must not be shared between goroutines.
func Gradient(n int, f func(x []float64) float64, method Method, bounds []Bound) func(x, g []float64) float64 {
	spec := ApproxSpec{
		N: n, M: 1,
		Method:    method,
		Bounds:    bounds,
		NotChkBnd: true,
		Object: func(x, y []float64) {
			y[0] = f(x)
		},
	}
	xt := make([]float64, n)
	return func(x, g []float64) float64 {
		if g != nil {
			copy(xt, x)
			if err := spec.Diff(xt, g[:n]); err != nil {
				panic(err)
			}
		}
		return f(x)
	}
}
