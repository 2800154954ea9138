// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

import "math"

// projGradNorm returns the infinity norm of the projected gradient. A
// component pushing xᵢ through a bound is cut to the distance left to it:
//
//	P(g)ᵢ = max(gᵢ, xᵢ - uᵢ)  if gᵢ < 0
//	P(g)ᵢ = min(gᵢ, xᵢ - lᵢ)  if gᵢ ≥ 0
func projGradNorm(loc *iterLoc, spec *iterSpec) (norm float64) {
	for i, g := range loc.g {
		b, x := spec.bounds[i], loc.x[i]
		switch {
		case g < 0 && b.hasUpper():
			g = math.Max(g, x-b.Upper)
		case g >= 0 && b.hasLower():
			g = math.Min(g, x-b.Lower)
		}
		norm = math.Max(norm, math.Abs(g))
	}
	return
}

// projInitActive clips the starting point into the box and marks each
// variable as unbounded, fixed by equal bounds or free.
func projInitActive(loc *iterLoc, spec *iterSpec, ctx *iterCtx) {
	ctx.projInitX, ctx.constrained, ctx.boxed = false, false, true
	for i, b := range spec.bounds {
		x := &loc.x[i]
		switch {
		case b.hasLower() && *x < b.Lower:
			*x, ctx.projInitX = b.Lower, true
		case b.hasUpper() && *x > b.Upper:
			*x, ctx.projInitX = b.Upper, true
		}

		ctx.boxed = ctx.boxed && b.hint == bndBoth
		if b.hint == bndNo {
			ctx.where[i] = varUnbound
			continue
		}
		ctx.constrained = true
		if b.hint == bndBoth && b.Upper <= b.Lower {
			ctx.where[i] = varFixed
		} else {
			ctx.where[i] = varFree
		}
	}
}
