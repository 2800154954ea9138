// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"gonum.org/v1/gonum/blas/blas64"
)

// Level 1 wrappers over strided slices. A non-positive length is a no-op
// since the least squares kernels pass empty partitions freely.

var impl = blas64.Implementation()

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

func dswap(n int, dx []float64, incx int, dy []float64, incy int) {
	if n <= 0 {
		return
	}
	impl.Dswap(n, dx, incx, dy, incy)
}

// drot applies the plane rotation (c, s) to the pairs (xᵢ, yᵢ).
func drot(n int, dx []float64, incx int, dy []float64, incy int, c, s float64) {
	if n <= 0 {
		return
	}
	impl.Drot(n, dx, incx, dy, incy, c, s)
}

func dnrm2(n int, x []float64, incx int) float64 {
	if n <= 0 || incx <= 0 {
		return 0
	}
	return impl.Dnrm2(n, x, incx)
}
