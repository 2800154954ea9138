// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

// nnls solves min ‖Ax - b‖₂ subject to x ≥ 0 with the active set method of
// Lawson and Hanson (algorithm 23.10).
//
// A is m×n with leading dimension lda. The variables are split into a
// passive set P, free to move, and a zero set Z, held at zero. Every outer
// step moves the index of Z with the largest dual wⱼ = [Aᵀ(b - Ax)]ⱼ into P
// and triangularizes its column with a Householder reflection. The inner loop
// then solves the least squares problem on the columns of P; while that
// solution has a non-positive entry, x moves toward it as far as stays
// feasible and the blocking indices return to Z, with Givens rotations
// restoring the triangular form.
//
// On return A and b hold QA and Qb, x the solution and w the dual vector.
// z needs m values and set n indices of scratch. maxIter ≤ 0 means 3n.
func nnls(m, n int, a []float64, lda int, b, x, w, z []float64, set []int, maxIter int) (float64, Status) {
	const factor = 0.01

	if m <= 0 || n <= 0 || lda < m || len(a) < lda*n ||
		len(b) < m || len(x) < n || len(w) < n || len(z) < m || len(set) < n {
		return math.NaN(), BadArgument
	}
	if maxIter <= 0 {
		maxIter = 3 * n
	}

	// set[:np] is P and set[np:] is Z
	set = set[:n]
	for j := range set {
		set[j] = j
	}
	np := 0
	clear(x[:n])

	iter := 0
	finish := func() (float64, Status) {
		rnorm := 0.0
		if np < m {
			rnorm = dnrm2(m-np, b[np:], 1)
		} else {
			clear(w[:n])
		}
		if iter > maxIter {
			return rnorm, NNLSExceedMaxIter
		}
		return rnorm, HasSolution
	}

	// drop moves set[k] back to Z and retriangularizes the columns of P.
	drop := func(k int) {
		j := set[k]
		x[j] = 0
		for i := k + 1; i < np; i++ {
			jj := set[i]
			set[i-1] = jj
			col := a[jj*lda:]
			c, s, r := givens(col[i-1], col[i])
			drot(n, a[i-1:], lda, a[i:], lda, c, s)
			col[i-1], col[i] = r, 0
			b[i-1], b[i] = c*b[i-1]+s*b[i], c*b[i]-s*b[i-1]
		}
		np--
		set[np] = j
	}

	for np < n && np < m {
		// Rows above np are solved, so the dual of Z only needs the tail of b.
		for _, j := range set[np:] {
			w[j] = ddot(m-np, a[np+j*lda:], 1, b[np:], 1)
		}

		for {
			t := -1
			for k := np; k < n; k++ {
				if j := set[k]; w[j] > 0 && (t < 0 || w[j] > w[set[t]]) {
					t = k
				}
			}
			if t < 0 {
				// Kuhn-Tucker conditions hold
				return finish()
			}

			j := set[t]
			col := a[j*lda : j*lda+m]
			pivot := col[np]
			up := house(np, np+1, m, col, 1)

			// The new column must be independent of P and its unconstrained
			// coefficient positive.
			accept := false
			if math.Abs(col[np])*factor >= dnrm2(np, col, 1)*eps {
				copy(z[:m], b[:m])
				reflect(np, np+1, m, col, 1, up, z, 1, 1, 1)
				accept = z[np]/col[np] > 0
			}
			if !accept {
				col[np] = pivot
				w[j] = 0
				continue
			}

			copy(b[:m], z[:m])
			set[t], set[np] = set[np], j
			np++
			for _, jj := range set[np:] {
				reflect(np-1, np, m, col, 1, up, a[jj*lda:], 1, lda, 1)
			}
			clear(col[np:])
			w[j] = 0
			break
		}

		for {
			// back substitution R·s = Qb with s in set order
			for k := np - 1; k >= 0; k-- {
				col := a[set[k]*lda:]
				z[k] /= col[k]
				daxpy(k, -z[k], col, 1, z, 1)
			}

			if iter++; iter > maxIter {
				return finish()
			}

			alpha, q := 2.0, -1
			for k, j := range set[:np] {
				if z[k] <= 0 {
					if t := -x[j] / (z[k] - x[j]); t < alpha {
						alpha, q = t, k
					}
				}
			}
			if q < 0 {
				for k, j := range set[:np] {
					x[j] = z[k]
				}
				break
			}

			for k, j := range set[:np] {
				x[j] += alpha * (z[k] - x[j])
			}
			// Besides the blocking index, entries left non-positive by
			// round-off leave P as well.
			for k := q; k >= 0; {
				drop(k)
				k = -1
				for i, j := range set[:np] {
					if x[j] <= 0 {
						k = i
						break
					}
				}
			}
			copy(z[:m], b[:m])
		}
	}
	return finish()
}
