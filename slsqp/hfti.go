// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

// hfti solves the least squares problem AX ≅ B by Householder forward
// triangulation with column interchanges (Lawson and Hanson, algorithm 14.9).
//
// A is m×n with leading dimension lda and B is m×nb with leading dimension
// ldb; both are overwritten. The pseudo-rank k is the number of diagonal
// entries of the pivoted R that exceed tau in magnitude and is returned. The
// first n rows of every column of B receive the minimum length solution for
// that rank and norm[j] the residual norm of column j. h and g need n values
// and ip min(m, n) indices of scratch. Short scratch yields rank 0.
func hfti(a []float64, lda, m, n int, b []float64, ldb, nb int, tau float64, norm, h, g []float64, ip []int) int {
	const factor = 0.001

	diag := min(m, n)
	if diag <= 0 || len(h) < n || len(g) < diag || len(ip) < diag || len(norm) < nb {
		return 0
	}

	// Before column j is reduced, h[l] holds the squared norm of rows j..m-1
	// of column l. It is downdated row by row and recomputed when the
	// downdate has lost too much precision.
	hmax := 0.0
	for j := 0; j < diag; j++ {
		pick := j
		if j > 0 {
			for l := j; l < n; l++ {
				t := a[j-1+l*lda]
				h[l] -= t * t
				if l == j || h[l] > h[pick] {
					pick = l
				}
			}
		}
		if j == 0 || factor*h[pick] < hmax*eps {
			for l := j; l < n; l++ {
				col := a[j+l*lda:]
				h[l] = ddot(m-j, col, 1, col, 1)
				if l == j || h[l] > h[pick] {
					pick = l
				}
			}
			hmax = h[pick]
		}

		ip[j] = pick
		if pick != j {
			dswap(m, a[j*lda:], 1, a[pick*lda:], 1)
			h[pick] = h[j]
		}

		// h[j] is free from here on and keeps the pivot of the reflection
		h[j] = house(j, j+1, m, a[j*lda:], 1)
		reflect(j, j+1, m, a[j*lda:], 1, h[j], a[min(j+1, n-1)*lda:], 1, lda, n-j-1)
		reflect(j, j+1, m, a[j*lda:], 1, h[j], b, 1, ldb, nb)
	}

	k := diag
	for j := 0; j < diag; j++ {
		if math.Abs(a[j+j*lda]) <= tau {
			k = j
			break
		}
	}

	for jb := 0; jb < nb; jb++ {
		norm[jb] = 0
		if k < m {
			norm[jb] = dnrm2(m-k, b[k+jb*ldb:], 1)
		}
	}

	if k == 0 {
		for jb := 0; jb < nb; jb++ {
			clear(b[jb*ldb : jb*ldb+n])
		}
		return 0
	}

	// reduce the leading k rows [R₁₁ R₁₂] to [W 0] from the right
	if k < n {
		for i := k - 1; i >= 0; i-- {
			g[i] = house(i, k, n, a[i:], lda)
			reflect(i, k, n, a[i:], lda, g[i], a, lda, 1, i)
		}
	}

	for jb := 0; jb < nb; jb++ {
		x := b[jb*ldb:]
		for i := k - 1; i >= 0; i-- {
			j := min(i+1, k-1)
			x[i] = (x[i] - ddot(k-1-i, a[i+j*lda:], lda, x[j:], 1)) / a[i+i*lda]
		}
		if k < n {
			clear(x[k:n])
			for i := 0; i < k; i++ {
				reflect(i, k, n, a[i:], lda, g[i], x, 1, ldb, 1)
			}
		}
		for j := diag - 1; j >= 0; j-- {
			if p := ip[j]; p != j {
				x[p], x[j] = x[j], x[p]
			}
		}
	}
	return k
}
