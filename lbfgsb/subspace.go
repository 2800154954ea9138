// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

// Outcome of the subspace step, kept in iterCtx.word.
const (
	solutionUnknown   = -1
	solutionWithinBox = 0
	solutionBeyondBox = 1
)

// reduceGradient sets r = -Zᵀ(g + B(xᶜ - x)) for the free variables Z at
// the Cauchy point, with B = θI - WMWᵀ, W = [Y θS] and c = Wᵀ(xᶜ - x) left
// in ctx.wa by cauchy.
func reduceGradient(loc *iterLoc, spec *iterSpec, ctx *iterCtx) errInfo {
	r := ctx.r
	if !ctx.constrained && ctx.col > 0 {
		// xᶜ = x and every variable is free
		for i, g := range loc.g {
			r[i] = -g
		}
		return ok
	}

	m, col, theta := spec.m, ctx.col, ctx.theta
	free := ctx.index[0][:ctx.free]
	for k, i := range free {
		r[k] = -theta*(ctx.z[i]-loc.x[i]) - loc.g[i]
	}

	c, mc := ctx.wa[2*m:4*m], ctx.wa[:2*m]
	if info := bmv(spec, ctx, c, mc); info != ok {
		return info
	}
	for j := 0; j < col; j++ {
		s := ctx.slot(j)
		a, b := mc[j], theta*mc[col+j]
		for k, i := range free {
			r[k] += ctx.wy[i*m+s]*a + ctx.ws[i*m+s]*b
		}
	}
	return ok
}

// optimalDirection moves the Cauchy point in ctx.z to the minimizer of the
// model over the free variables. The Newton step on the reduced Hessian
// B̂ = ZᵀBZ is
//
//	d = -B̂⁻¹r = r/θ + ZᵀWK⁻¹WᵀZr/θ²
//
// where K = LELᵀ comes factored from formK. The step is projected onto the
// box, and when the projected point is not downhill from x it is instead
// cut back to the largest α ≤ 1 keeping xᶜ + αd feasible. ctx.r holds the
// unprojected step on return.
func optimalDirection(loc *iterLoc, spec *iterSpec, ctx *iterCtx) errInfo {
	free := ctx.index[0][:ctx.free]
	if len(free) == 0 {
		return ok
	}

	m, col, theta := spec.m, ctx.col, ctx.theta
	x, d, v := ctx.z, ctx.r, ctx.wa[:2*m]

	for j := 0; j < col; j++ {
		s := ctx.slot(j)
		var yd, sd float64
		for k, i := range free {
			yd += ctx.wy[i*m+s] * d[k]
			sd += ctx.ws[i*m+s] * d[k]
		}
		v[j], v[col+j] = yd, theta*sd
	}

	// K⁻¹ = L⁻ᵀE⁻¹L⁻¹ with E = diag(-I, I) and Lᵀ in the upper triangle of wn
	if !upperSolve(ctx.wn, 2*m, 2*col, v, 1, true) {
		return errSingularTriangular
	}
	dscal(col, -1, v, 1)
	if !upperSolve(ctx.wn, 2*m, 2*col, v, 1, false) {
		return errSingularTriangular
	}

	for j := 0; j < col; j++ {
		s := ctx.slot(j)
		a, b := v[j]/theta, v[col+j]
		for k, i := range free {
			d[k] += ctx.wy[i*m+s]*a + ctx.ws[i*m+s]*b
		}
	}
	dscal(len(free), 1/theta, d, 1)

	copy(ctx.xp, x)
	clipped := false
	for k, i := range free {
		b, xi := spec.bounds[i], x[i]+d[k]
		switch {
		case b.hasLower() && xi <= b.Lower:
			xi, clipped = b.Lower, true
		case b.hasUpper() && xi >= b.Upper:
			xi, clipped = b.Upper, true
		}
		x[i] = xi
	}
	if !clipped {
		ctx.word = solutionWithinBox
		return ok
	}
	ctx.word = solutionBeyondBox

	var slope float64
	for i, g := range loc.g {
		slope += (x[i] - loc.x[i]) * g
	}
	if slope <= 0 {
		return ok
	}

	copy(x, ctx.xp)
	alpha, hit := 1.0, -1
	for k, i := range free {
		b, dk, lim := spec.bounds[i], d[k], alpha
		switch {
		case dk < 0 && b.hasLower():
			lim = stepTo(alpha, b.Lower-x[i], dk)
		case dk > 0 && b.hasUpper():
			lim = stepTo(alpha, b.Upper-x[i], dk)
		}
		if lim < alpha {
			alpha, hit = lim, k
		}
	}
	if hit >= 0 {
		// land the blocking variable exactly on its bound
		i := free[hit]
		if d[hit] > 0 {
			x[i] = spec.bounds[i].Upper
		} else {
			x[i] = spec.bounds[i].Lower
		}
		d[hit] = 0
	}
	for k, i := range free {
		x[i] += alpha * d[k]
	}
	return ok
}
