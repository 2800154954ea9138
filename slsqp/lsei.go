// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

// lsei solves min ‖Ex - f‖₂ subject to Cx = d and Gx ≥ h (Lawson and
// Hanson, algorithm 20.24 and section 23.6).
//
// C is mc×n with full row rank, E is me×n and G is mg×n, with leading
// dimensions ldc, lde and ldg. Reflections from the right turn C into
// [C̃₁ 0] = CK; with Kᵀx = (y₁, y₂) the equality constraints fix y₁ by the
// triangular system C̃₁y₁ = d, leaving in y₂ either an inequality constrained
// problem solved by lsi or, when mg = 0, a plain least squares problem
// solved by hfti. The equality multipliers then follow from
// C̃₁ᵀμ = Eᵀ(Ex - f) - Gᵀλ.
//
// On HasSolution w[:mc] holds μ and w[mc:mc+mg] holds λ. All inputs but x
// are overwritten. w needs 2mc + me + (me+mg)(n-mc) + (n-mc+1)(mg+2) + 2mg
// values and jw max(mg, min(me, n-mc)) indices.
func lsei(c, d, e, f, g, h []float64, ldc, mc, lde, me, ldg, mg, n int, x, w []float64, jw []int, maxIter int) (float64, Status) {
	if n < 1 || mc < 0 || mc > n || me < 0 || mg < 0 ||
		len(x) < n || len(d) < mc || len(f) < me || len(h) < mg {
		return math.NaN(), BadArgument
	}

	l := n - mc
	if len(w) < 2*mc+me+(me+mg)*l+(l+1)*(mg+2)+2*mg {
		return math.NaN(), BadArgument
	}
	off := mc // w[:mc] is kept for μ
	next := func(k int) []float64 {
		s := w[off : off+k]
		off += k
		return s
	}
	ws := next((l+1)*(mg+2) + 2*mg) // lsi scratch, λ in front
	piv := next(mc)
	e2 := next(me * l)
	f2 := next(me)
	g2 := next(mg * l)

	for i := 0; i < mc; i++ {
		piv[i] = house(i, i+1, n, c[i:], ldc)
		reflect(i, i+1, n, c[i:], ldc, piv[i], c[min(i+1, ldc-1):], ldc, 1, mc-i-1)
		reflect(i, i+1, n, c[i:], ldc, piv[i], e, lde, 1, me)
		reflect(i, i+1, n, c[i:], ldc, piv[i], g, ldg, 1, mg)
	}

	for i := 0; i < mc; i++ {
		p := c[i+i*ldc]
		if math.Abs(p) < eps {
			return math.NaN(), LSEISingularC
		}
		x[i] = (d[i] - ddot(i, c[i:], ldc, x, 1)) / p
	}

	lambda := ws[:mg]
	clear(lambda)

	var norm float64
	if mc < n {
		// split EK = [Ẽ₁ Ẽ₂] and GK = [G̃₁ G̃₂], moving y₁ to the right side
		for i := 0; i < me; i++ {
			f2[i] = f[i] - ddot(mc, e[i:], lde, x, 1)
			dcopy(l, e[i+mc*lde:], lde, e2[i:], me)
		}
		for i := 0; i < mg; i++ {
			dcopy(l, g[i+mc*ldg:], ldg, g2[i:], mg)
			h[i] -= ddot(mc, g[i:], ldg, x, 1)
		}

		if mg > 0 {
			var st Status
			norm, st = lsi(e2, f2, g2, h, me, me, mg, mg, l, x[mc:n], ws, jw, maxIter)
			if st != HasSolution {
				return math.NaN(), st
			}
			norm = math.Hypot(norm, dnrm2(mc, x, 1))
		} else {
			var rn [1]float64
			rank := hfti(e2, me, me, l, f2, max(lde, n), 1, sqrtEps, rn[:], w, w[l:], jw)
			norm = rn[0]
			dcopy(l, f2, 1, x[mc:], 1)
			if rank != l {
				return norm, HFTIRankDefect
			}
		}
	}

	// f ← Ex - f, still in the rotated coordinates
	for i := 0; i < me; i++ {
		f[i] = ddot(n, e[i:], lde, x, 1) - f[i]
	}
	for i := 0; i < mc; i++ {
		d[i] = ddot(me, e[i*lde:], 1, f, 1)
		if mg > 0 {
			d[i] -= ddot(mg, g[i*ldg:], 1, lambda, 1)
		}
	}
	for i := mc - 1; i >= 0; i-- {
		reflect(i, i+1, n, c[i:], ldc, piv[i], x, 1, 1, 1)
	}
	for i := mc - 1; i >= 0; i-- {
		j := min(i+1, ldc-1)
		w[i] = (d[i] - ddot(mc-i-1, c[j+i*ldc:], 1, w[j:], 1)) / c[i+i*ldc]
	}
	return norm, HasSolution
}

// lsi solves min ‖Ex - f‖₂ subject to Gx ≥ h for E me×n of full column rank
// (Lawson and Hanson, section 23.5).
//
// With E = Q[R; 0] and Qᵀf = (f₁, f₂) the objective is ‖Rx - f₁‖² + ‖f₂‖²,
// so z = Rx - f₁ solves the least distance problem min ‖z‖ subject to
// GR⁻¹z ≥ h - GR⁻¹f₁ and x = R⁻¹(z + f₁). E, f, G and h are overwritten.
// On HasSolution the multipliers are left in w[:mg]. w needs
// (n+1)(mg+2) + 2mg values and jw mg indices.
func lsi(e, f, g, h []float64, lde, me, ldg, mg, n int, x, w []float64, jw []int, maxIter int) (float64, Status) {
	if n < 1 || len(x) < n {
		return math.NaN(), BadArgument
	}

	for i := 0; i < n; i++ {
		up := house(i, i+1, me, e[i*lde:], 1)
		reflect(i, i+1, me, e[i*lde:], 1, up, e[min(i+1, n-1)*lde:], 1, lde, n-i-1)
		reflect(i, i+1, me, e[i*lde:], 1, up, f, 1, 1, 1)
	}
	for j := 0; j < n; j++ {
		if p := e[j+j*lde]; math.Abs(p) < eps || math.IsNaN(p) {
			return math.NaN(), LSISingularE
		}
	}

	// G ← GR⁻¹ row by row, then h ← h - Gf₁
	for i := 0; i < mg; i++ {
		for j := 0; j < n; j++ {
			g[i+j*ldg] = (g[i+j*ldg] - ddot(j, g[i:], ldg, e[j*lde:], 1)) / e[j+j*lde]
		}
		h[i] -= ddot(n, g[i:], ldg, f, 1)
	}

	norm, st := ldp(mg, n, g, ldg, h, x, w, jw, maxIter)
	if st != HasSolution {
		return norm, st
	}

	daxpy(n, 1, f, 1, x, 1)
	for i := n - 1; i >= 0; i-- {
		j := min(i+1, n-1)
		x[i] = (x[i] - ddot(n-1-i, e[i+j*lde:], lde, x[j:], 1)) / e[i+i*lde]
	}
	if me > n {
		norm = math.Hypot(norm, dnrm2(me-n, f[n:], 1))
	}
	return norm, HasSolution
}
