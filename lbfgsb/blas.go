// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/gonum"
)

// Dense kernels on row-major strided slices. A non-positive length is a no-op.

var (
	impl   = blas64.Implementation()
	lapack gonum.Implementation
)

func daxpy(n int, da float64, dx []float64, incx int, dy []float64, incy int) {
	if n <= 0 || da == 0 {
		return
	}
	impl.Daxpy(n, da, dx, incx, dy, incy)
}

func ddot(n int, dx []float64, incx int, dy []float64, incy int) float64 {
	if n <= 0 {
		return 0
	}
	return impl.Ddot(n, dx, incx, dy, incy)
}

func dcopy(n int, dx []float64, incx int, dy []float64, incy int) {
	if n <= 0 {
		return
	}
	impl.Dcopy(n, dx, incx, dy, incy)
}

func dscal(n int, da float64, dx []float64, incx int) {
	if n <= 0 || incx <= 0 {
		return
	}
	impl.Dscal(n, da, dx, incx)
}

// upperSolve overwrites b with the solution of Rx = b, or Rᵀx = b when
// trans is set, where R is the upper triangle of order n with stride ld.
// It reports false and leaves b alone when R has a zero on its diagonal.
func upperSolve(r []float64, ld, n int, b []float64, inc int, trans bool) bool {
	if n <= 0 {
		return true
	}
	for i := 0; i < n; i++ {
		if r[i*ld+i] == 0 {
			return false
		}
	}
	op := blas.NoTrans
	if trans {
		op = blas.Trans
	}
	impl.Dtrsv(blas.Upper, op, blas.NonUnit, n, r, ld, b, inc)
	return true
}

// cholesky replaces the upper triangle of the symmetric A of order n with
// R such that A = RᵀR. It reports whether A was positive definite.
func cholesky(a []float64, ld, n int) bool {
	if n <= 0 {
		return true
	}
	return lapack.Dpotrf(blas.Upper, n, a, ld)
}

// dotOver sums a[i·m+p]·b[i·m+q] over the variables i in set, the inner
// product of two stored corrections restricted to those variables.
func dotOver(set []int, m int, a []float64, p int, b []float64, q int) (sum float64) {
	for _, i := range set {
		sum += a[i*m+p] * b[i*m+q]
	}
	return
}
