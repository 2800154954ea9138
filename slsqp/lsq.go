// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

// lsq solves the quadratic subproblem of an SQP iteration in least squares
// form
//
//	min ‖D^½Lᵀx + D^-½L⁻¹g‖₂
//	s.t. Aⱼx + bⱼ = 0 for j < meq, Aⱼx + bⱼ ≥ 0 for meq ≤ j < m, xl ≤ x ≤ xu
//
// where LDLᵀ is the packed Hessian approximation l of the first n0 unknowns.
// With slack set the last of the n unknowns is the relaxation variable δ,
// whose diagonal entry in E is the penalty stored right after the factors.
//
// The data is laid out for lsei with E = D^½Lᵀ, f = -D^-½L⁻¹g, C and d from
// the equality rows, G and h from the inequality rows plus one row per finite
// bound. NaN or beyond ±inf bounds are absent. On HasSolution y holds the
// constraint multipliers followed by NaN for the bounds, and x is clipped to
// its bounds.
func lsq(m, meq, n int, slack bool, l, gr, a, b, xl, xu, x, y, w []float64, jw []int, maxIter int, inf float64) (float64, Status) {
	lda := max(m, 1)
	mineq := m - meq
	mg := mineq + 2*n
	n0 := n
	if slack {
		n0 = n - 1
	}

	off := 0
	next := func(k int) []float64 {
		s := w[off : off+k]
		off += k
		return s
	}
	e, f := next(n*n), next(n)
	c, d := next(meq*n), next(meq)
	g, h := next(mg*n), next(mg)
	rest := w[off:]

	// row j of E is √dⱼ·Lⱼᵀ with the unit diagonal of L, and f comes from
	// forward substitution; column j of L holds dⱼ in place of its diagonal
	clear(e)
	for j, k := 0, 0; j < n0; j++ {
		dj := math.Sqrt(l[k])
		dcopy(n0-j, l[k:], 1, e[j+j*n:], n)
		dscal(n0-j, dj, e[j+j*n:], n)
		e[j+j*n] = dj
		f[j] = (gr[j] - ddot(j, e[j*n:], 1, f, 1)) / dj
		k += n0 - j
	}
	if slack {
		e[n*n-1] = l[n0*(n0+1)/2]
		f[n0] = 0
	}
	dscal(n, -1, f, 1)

	for i := 0; i < meq; i++ {
		dcopy(n, a[i:], lda, c[i:], meq)
		d[i] = -b[i]
	}
	for i := 0; i < mineq; i++ {
		dcopy(n, a[meq+i:], lda, g[i:], mg)
		h[i] = -b[meq+i]
	}

	rows := mineq
	bound := func(i int, sign, v float64) {
		for k := 0; k < n; k++ {
			g[rows+k*mg] = 0
		}
		g[rows+i*mg] = sign
		h[rows] = sign * v
		rows++
	}
	lower := func(v float64) bool { return !math.IsNaN(v) && v > -inf }
	upper := func(v float64) bool { return !math.IsNaN(v) && v < inf }
	for i, v := range xl[:n] {
		if lower(v) {
			bound(i, 1, v)
		}
	}
	for i, v := range xu[:n] {
		if upper(v) {
			bound(i, -1, v)
		}
	}

	norm, st := lsei(c, d, e, f, g, h, max(1, meq), meq, n, n, mg, rows, n, x, rest, jw, maxIter)
	if st != HasSolution {
		return norm, st
	}

	copy(y[:m], rest[:m])
	for i := m; i < m+2*n0; i++ {
		y[i] = math.NaN()
	}
	for i := range x[:n] {
		if v := xl[i]; lower(v) && x[i] < v {
			x[i] = v
		} else if v := xu[i]; upper(v) && x[i] > v {
			x[i] = v
		}
	}
	return norm, st
}
