// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

// ldp solves the least distance problem min ‖x‖₂ subject to Gx ≥ h, with G
// m×n of any rank and leading dimension ldg (Lawson and Hanson, algorithm
// 23.27).
//
// It solves the NNLS problem min ‖Eu - f‖ for u ≥ 0 with E = [G h]ᵀ and
// f = eₙ₊₁. A zero residual means the constraints are incompatible;
// otherwise the residual r gives x = -(r₁…rₙ)/rₙ₊₁ and the multipliers of
// Gx ≥ h are u/(-rₙ₊₁), left in w[:m].
//
// w needs (n+1)(m+2) + 2m values and jw m indices.
func ldp(m, n int, g []float64, ldg int, h, x, w []float64, jw []int, maxIter int) (float64, Status) {
	if n <= 0 || len(x) < n {
		return math.NaN(), BadArgument
	}
	if m <= 0 {
		clear(x[:n])
		return 0, HasSolution
	}
	k := n + 1
	if ldg < m || len(g) < ldg*(n-1)+m || len(h) < m || len(w) < k*(m+2)+2*m || len(jw) < m {
		return math.NaN(), BadArgument
	}

	e := w[:k*m]
	f := w[k*m : k*(m+1)]
	z := w[k*(m+1) : k*(m+2)]
	u := w[k*(m+2) : k*(m+2)+m]
	dual := w[k*(m+2)+m : k*(m+2)+2*m]

	for j := 0; j < m; j++ {
		col := e[j*k : (j+1)*k]
		dcopy(n, g[j:], ldg, col, 1)
		col[n] = h[j]
	}
	clear(f[:n])
	f[n] = 1

	rnorm, st := nnls(k, m, e, k, f, u, dual, z, jw, maxIter)
	if st != HasSolution {
		return math.NaN(), st
	}
	// -rₙ₊₁ = 1 - hᵀu
	scale := 1 - ddot(m, h, 1, u, 1)
	if rnorm <= 0 || math.IsNaN(scale) || scale < eps {
		return math.NaN(), ConsIncompatible
	}

	for j := 0; j < n; j++ {
		x[j] = ddot(m, g[j*ldg:], 1, u, 1) / scale
	}
	for i := 0; i < m; i++ {
		w[i] = u[i] / scale
	}
	return dnrm2(n, x, 1), HasSolution
}
