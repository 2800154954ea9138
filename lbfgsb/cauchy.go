// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

import (
	"container/heap"
	"math"
)

// cauchy computes the generalized Cauchy point xᶜ into ctx.z: the first
// local minimizer of the quadratic model
//
//	mₖ(x) = fₖ + gₖᵀ(x - xₖ) + ½(x - xₖ)ᵀBₖ(x - xₖ)
//
// along the projected steepest descent path P(xₖ - tgₖ). The path is linear
// between breakpoints, the times at which some variable reaches a bound, so
// the search walks the breakpoints in order and stops inside the first
// segment whose one dimensional minimizer comes before its end. On return
// ctx.wa[2m:4m] holds c = Wᵀ(xᶜ - xₖ) for reduceGradient.
func cauchy(loc *iterLoc, spec *iterSpec, ctx *iterCtx) errInfo {
	z := ctx.z
	copy(z, loc.x)
	if ctx.sbgNrm <= 0 {
		return ok
	}

	n, m := spec.n, spec.m
	col, theta := ctx.col, ctx.theta
	x, bounds := loc.x, spec.bounds
	d, where := ctx.d, ctx.where

	p := ctx.wa[:2*m]      // Wᵀd
	c := ctx.wa[2*m : 4*m] // Wᵀ(xᶜ - x)
	w := ctx.wa[4*m : 6*m] // row of W for the variable leaving the path
	v := ctx.wa[6*m:]      // M times p or w

	// brk[:nb] and order[:nb] hold the breakpoints, order[tail:] the moving
	// variables that never meet a bound.
	brk, order := ctx.t, ctx.index[1]
	nb, tail := 0, n
	pinned := true

	clear(p[:2*col])
	var f1 float64 // model slope along d
	for i, g := range loc.g {
		b := bounds[i]
		if where[i] != varFixed && where[i] != varUnbound {
			where[i] = boundStatus(b, x[i], g)
		}
		if where[i] != varFree && where[i] != varUnbound {
			d[i] = 0
			continue
		}

		d[i] = -g
		f1 -= g * g
		for j := 0; j < col; j++ {
			s := ctx.slot(j)
			p[j] -= ctx.wy[i*m+s] * g
			p[col+j] -= ctx.ws[i*m+s] * g
		}

		switch {
		case b.hasLower() && g > 0:
			brk[nb], order[nb] = (x[i]-b.Lower)/g, i
			nb++
		case b.hasUpper() && g < 0:
			brk[nb], order[nb] = (b.Upper-x[i])/-g, i
			nb++
		default:
			tail--
			order[tail] = i
			pinned = pinned && g == 0
		}
	}
	dscal(col, theta, p[col:], 1)

	if nb == 0 && tail == n {
		// d = 0 and x is the Cauchy point
		return ok
	}

	clear(c[:2*col])
	f2 := -theta * f1 // model curvature along d
	f2Start := f2
	if col > 0 {
		if info := bmv(spec, ctx, p, v); info != ok {
			return info
		}
		f2 -= ddot(2*col, v, 1, p, 1)
	}
	dtm := -f1 / f2 // distance to the minimizer of the current segment

	var tsum, tprev float64
	ctx.seg = 1
	h := breakpoints{t: brk[:nb], order: order[:nb]}
	heap.Init(&h)
	for h.Len() > 0 {
		tb, i := h.t[0], h.order[0]
		heap.Pop(&h)
		dt := tb - tprev
		tprev = tb
		if dtm < dt {
			break
		}

		// the segment ends before its minimizer, so xᵢ stops at its bound
		tsum += dt
		di := d[i]
		d[i] = 0
		if di > 0 {
			z[i], where[i] = bounds[i].Upper, varAtUB
		} else {
			z[i], where[i] = bounds[i].Lower, varAtLB
		}
		if h.Len() == 0 && nb == n {
			// every variable sits on a bound
			if col > 0 {
				daxpy(2*col, dt, p, 1, c, 1)
			}
			return ok
		}

		ctx.seg++
		zi := z[i] - x[i]
		f1 += f2*dt + di*di - theta*di*zi
		f2 -= theta * di * di
		if col > 0 {
			daxpy(2*col, dt, p, 1, c, 1)
			for j := 0; j < col; j++ {
				s := ctx.slot(j)
				w[j], w[col+j] = ctx.wy[i*m+s], theta*ctx.ws[i*m+s]
			}
			if info := bmv(spec, ctx, w, v); info != ok {
				return info
			}
			wmc := ddot(2*col, c, 1, v, 1)
			wmp := ddot(2*col, p, 1, v, 1)
			wmw := ddot(2*col, w, 1, v, 1)
			daxpy(2*col, -di, w, 1, p, 1)
			f1 += di * wmc
			f2 += 2*di*wmp - di*di*wmw
		}
		f2 = math.Max(spec.epsilon*f2Start, f2)
		dtm = -f1 / f2
		if h.Len() == 0 && pinned {
			dtm = 0
		}
	}

	dtm = math.Max(dtm, 0)
	daxpy(n, tsum+dtm, d, 1, z, 1)
	if col > 0 {
		daxpy(2*col, dtm, p, 1, c, 1)
	}
	return ok
}

// boundStatus classifies a bounded variable at the start of the Cauchy
// search. A variable on a bound with the gradient pushing outwards is held
// there, and one with a zero gradient does not move.
func boundStatus(b Bound, x, g float64) int {
	switch {
	case b.hasLower() && x <= b.Lower:
		if g >= 0 {
			return varAtLB
		}
	case b.hasUpper() && x >= b.Upper:
		if g <= 0 {
			return varAtUB
		}
	case g == 0:
		return varNotMove
	}
	return varFree
}

// breakpoints is a min-heap of the times t[k] at which variable order[k]
// reaches its bound. It only ever shrinks.
type breakpoints struct {
	t     []float64
	order []int
}

func (h *breakpoints) Len() int           { return len(h.t) }
func (h *breakpoints) Less(i, j int) bool { return h.t[i] < h.t[j] }
func (h *breakpoints) Swap(i, j int) {
	h.t[i], h.t[j] = h.t[j], h.t[i]
	h.order[i], h.order[j] = h.order[j], h.order[i]
}
func (h *breakpoints) Push(any) {}
func (h *breakpoints) Pop() any {
	k := len(h.t) - 1
	h.t, h.order = h.t[:k], h.order[:k]
	return nil
}

// bmv computes p = Mv for a vector v of length 2col and the middle matrix
//
//	M = [ -D   Lᵀ  ]⁻¹
//	    [  L  θSᵀS ]
//
// where D is the diagonal and L the strict lower triangle of SᵀY. With
// θSᵀS + LD⁻¹Lᵀ = JJᵀ factored in ctx.wt, M⁻¹ splits into
//
//	[  D½     0 ] [ -D½  D-½Lᵀ ]
//	[ -LD-½   J ] [  0    Jᵀ   ]
//
// and p follows from one block triangular solve with each factor.
func bmv(spec *iterSpec, ctx *iterCtx, v, p []float64) errInfo {
	col, m := ctx.col, spec.m
	if col == 0 {
		return ok
	}
	sy := ctx.sy
	v1, v2 := v[:col], v[col:2*col]
	p1, p2 := p[:col], p[col:2*col]

	for i := range p2 {
		p2[i] = v2[i]
		for j := 0; j < i; j++ {
			p2[i] += sy[i*m+j] * v1[j] / sy[j*m+j]
		}
	}
	if !upperSolve(ctx.wt, m, col, p2, 1, true) {
		return errSingularTriangular
	}
	for i := range p1 {
		p1[i] = v1[i] / math.Sqrt(sy[i*m+i])
	}

	if !upperSolve(ctx.wt, m, col, p2, 1, false) {
		return errSingularTriangular
	}
	for i := range p1 {
		dii := sy[i*m+i]
		p1[i] = -p1[i] / math.Sqrt(dii)
		for j := i + 1; j < col; j++ {
			p1[i] += sy[j*m+i] * p2[j] / dii
		}
	}
	return ok
}

// freeVar splits the variables at the Cauchy point into the free ones,
// listed first in ctx.index[0], and the active ones listed from the back.
// After the first iteration of a bounded problem ctx.index[1] also records
// the variables that became free at its front and those that became active
// at its back. It reports whether K has to be formed again.
func freeVar(spec *iterSpec, ctx *iterCtx) bool {
	n, where := spec.n, ctx.where
	set, moved := ctx.index[0], ctx.index[1]

	ctx.enter, ctx.leave = 0, n
	if ctx.iter > 0 && ctx.constrained {
		for k, i := range set[:n] {
			nowFree := where[i] <= varFree
			if k < ctx.free && !nowFree {
				ctx.leave--
				moved[ctx.leave] = i
			} else if k >= ctx.free && nowFree {
				moved[ctx.enter] = i
				ctx.enter++
			}
		}
	}

	free, act := 0, n
	for i := 0; i < n; i++ {
		if where[i] <= varFree {
			set[free] = i
			free++
		} else {
			act--
			set[act] = i
		}
	}
	ctx.free, ctx.active = free, n-free

	changed := ctx.enter > 0 || ctx.leave < n
	return changed || ctx.updated
}
