// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// SearchTol holds the tolerances of the Moré–Thuente line search.
type SearchTol struct {
	Alpha float64 // sufficient decrease factor in [0, 1)
	Beta  float64 // curvature factor in (0, 1)
	Eps   float64 // relative width of the bracket below which the search gives up
}

// DefaultSearch returns the line search tolerances used when Problem.Search is nil.
func DefaultSearch() SearchTol {
	return SearchTol{Alpha: 1e-3, Beta: 0.9, Eps: 0.1}
}

func (t SearchTol) valid() bool {
	return t.Alpha >= 0 && t.Alpha < 1 && t.Beta > 0 && t.Beta < 1 && t.Eps > 0
}

const searchNoBnd = 1e10

const (
	searchBackExit = 20
	searchBackSlow = 10
)

// initLineSearch sets the first trial step along d and the largest step
// that keeps x + λd inside the box.
func initLineSearch(loc *iterLoc, spec *iterSpec, ctx *iterCtx) {
	x, d := loc.x, ctx.d

	ctx.dSqrt = ddot(spec.n, d, 1, d, 1)
	ctx.dNorm = math.Sqrt(ctx.dSqrt)

	hi := searchNoBnd
	switch {
	case !ctx.constrained:
	case ctx.iter == 0:
		hi = 1
	default:
		for i, b := range spec.bounds {
			di := d[i]
			if di < 0 && b.hasLower() {
				hi = stepTo(hi, b.Lower-x[i], di)
			} else if di > 0 && b.hasUpper() {
				hi = stepTo(hi, b.Upper-x[i], di)
			}
		}
	}
	ctx.stpMax = hi

	ctx.stp = 1
	if ctx.iter == 0 && !ctx.boxed {
		ctx.stp = math.Min(1/ctx.dNorm, hi)
	}
	ctx.numEval, ctx.numBack = 0, 0
}

// stepTo shrinks the step limit hi so that a move of hi·d stays within span.
// A variable already on the bound it moves towards pins the limit to 0.
func stepTo(hi, span, d float64) float64 {
	if span*d <= 0 {
		return 0
	}
	return math.Min(hi, span/d)
}

// performLineSearch consumes f and g at the current trial point and moves x
// to the next one. done reports that x holds the accepted step: either both
// the sufficient decrease fₖ₊₁ ≤ fₖ + αλgₖᵀdₖ and the curvature condition
// |gₖ₊₁ᵀdₖ| ≤ β|gₖᵀdₖ| hold, or the search cannot improve on the current trial.
func performLineSearch(loc *iterLoc, spec *iterSpec, ctx *iterCtx) (info errInfo, done bool) {
	n := spec.n
	ctx.gd = ddot(n, loc.g, 1, ctx.d, 1)

	mt := &ctx.search
	if ctx.numEval == 0 {
		ctx.gdOld = ctx.gd
		if ctx.gd >= 0 {
			return errDerivative, false
		}
		if ctx.stpMax <= 0 {
			return errLineSearchTol, false
		}
		tol := DefaultSearch()
		if spec.search != nil {
			tol = *spec.search
		}
		*mt = optimize.MoreThuente{
			DecreaseFactor:  tol.Alpha,
			CurvatureFactor: tol.Beta,
			StepTolerance:   tol.Eps,
			MaximumStep:     ctx.stpMax,
		}
		ctx.stp = math.Min(ctx.stp, ctx.stpMax)
		mt.Init(loc.f, ctx.gd, ctx.stp)
	} else {
		op, stp, err := mt.Iterate(loc.f, ctx.gd)
		ctx.stp = stp
		if err != nil || op == optimize.MajorIteration {
			// a search stuck at a bound or inside a collapsed bracket keeps its last trial
			return ok, true
		}
	}

	if ctx.stp == 1 {
		dcopy(n, ctx.z, 1, loc.x, 1)
	} else {
		for i, t := range ctx.t {
			loc.x[i] = t + ctx.stp*ctx.d[i]
		}
	}
	return ok, false
}
