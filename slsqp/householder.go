// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "math"

// The least squares kernels work on column-major matrices held in flat
// slices. A vector inside such a matrix is a starting slice plus a stride:
// 1 for a column, the leading dimension for a row.

// house builds the Householder reflection Q that maps element p and the tail
// l..m-1 of the strided vector v onto s·eₚ. On return v[p·inc] holds s, the
// tail of v is left as the tail of u and uₚ is returned. An empty tail or a
// zero vector gives the identity, signalled by uₚ = 0.
func house(p, l, m int, v []float64, inc int) float64 {
	if p < 0 || p >= l || l >= m {
		return 0
	}
	vp := v[p*inc]
	s := math.Hypot(vp, dnrm2(m-l, v[l*inc:], inc))
	if s == 0 {
		return 0
	}
	if vp > 0 {
		s = -s
	}
	v[p*inc] = s
	return vp - s
}

// reflect applies the reflection built by house into (u, up) to ncv vectors
// of c, where element i of vector k is c[k·stride + i·inc]. Only elements p
// and l..m-1 change.
func reflect(p, l, m int, u []float64, incu int, up float64, c []float64, inc, stride, ncv int) {
	if p < 0 || p >= l || l >= m || ncv <= 0 {
		return
	}
	b := u[p*incu] * up
	if b >= 0 {
		return
	}
	tail := u[l*incu:]
	for k := 0; k < ncv; k++ {
		v := c[k*stride:]
		sm := v[p*inc]*up + ddot(m-l, tail, incu, v[l*inc:], inc)
		if sm == 0 {
			continue
		}
		sm /= b
		v[p*inc] += sm * up
		daxpy(m-l, sm, tail, incu, v[l*inc:], inc)
	}
}

// givens returns the rotation with c·a + s·b = r and c·b - s·a = 0 where
// r = hypot(a, b). A zero pair gives (0, 1, 0).
func givens(a, b float64) (c, s, r float64) {
	r = math.Hypot(a, b)
	if r == 0 {
		return 0, 1, 0
	}
	return a / r, b / r, r
}
