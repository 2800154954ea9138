// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

// updateCorrection stores the pair s = xₖ₊₁ - xₖ, y = gₖ₊₁ - gₖ, evicting the
// oldest pair once m are held, and extends SᵀY, SᵀS and θ = yᵀy/sᵀy. A pair
// with sᵀy ≤ ε·(-gₖᵀs) is skipped since it would break positive definiteness.
func updateCorrection(loc *iterLoc, spec *iterSpec, ctx *iterCtx) {
	n, m, stp := spec.n, spec.m, ctx.stp
	s, y := ctx.d, ctx.r // r still holds gₖ

	for i, g := range loc.g {
		y[i] = g - y[i]
	}
	sy := stp * (ctx.gd - ctx.gdOld)
	descent := -stp * ctx.gdOld
	dscal(n, stp, s, 1)

	if sy <= spec.epsilon*descent {
		ctx.totalSkipBFGS++
		ctx.updated = false
		return
	}
	ctx.updated = true
	ctx.updates++

	if ctx.updates <= m {
		ctx.col = ctx.updates
		ctx.tail = (ctx.head + ctx.col - 1) % m
	} else {
		ctx.head = (ctx.head + 1) % m
		ctx.tail = (ctx.tail + 1) % m
	}
	dcopy(n, s, 1, ctx.ws[ctx.tail:], m)
	dcopy(n, y, 1, ctx.wy[ctx.tail:], m)
	ctx.theta = ddot(n, y, 1, y, 1) / sy

	// SᵀS keeps its upper triangle and SᵀY its lower one
	col, ss, syM := ctx.col, ctx.ss, ctx.sy
	if ctx.updates > m {
		for j := 0; j < col-1; j++ {
			dcopy(col-1-j, ss[(j+1)*m+j+1:], 1, ss[j*m+j:], 1)
			dcopy(j+1, syM[(j+1)*m+1:], 1, syM[j*m:], 1)
		}
	}
	last := col - 1
	for j := 0; j < last; j++ {
		k := ctx.slot(j)
		syM[last*m+j] = ddot(n, s, 1, ctx.wy[k:], m)
		ss[j*m+last] = ddot(n, ctx.ws[k:], m, s, 1)
	}
	syM[last*m+last] = sy
	ss[last*m+last] = stp * stp * ctx.dSqrt
}

// formT factors T = θSᵀS + LD⁻¹Lᵀ = JJᵀ and keeps Jᵀ in the upper triangle
// of ctx.wt, with D and L the diagonal and strict lower triangle of SᵀY.
func formT(spec *iterSpec, ctx *iterCtx) errInfo {
	m, col, theta := spec.m, ctx.col, ctx.theta
	ss, sy, wt := ctx.ss, ctx.sy, ctx.wt

	for i := 0; i < col; i++ {
		for j := i; j < col; j++ {
			t := theta * ss[i*m+j]
			for k := 0; k < i; k++ {
				t += sy[i*m+k] * sy[j*m+k] / sy[k*m+k]
			}
			wt[i*m+j] = t
		}
	}
	if !cholesky(wt, m, col) {
		return errNotPosDefT
	}
	return ok
}

// formK factors the indefinite matrix of the subspace step
//
//	K = [ -D - YᵀZZᵀY/θ   Laᵀ - Rzᵀ ]
//	    [  La - Rz        θSᵀAAᵀS   ]
//
// as LELᵀ with E = diag(-I, I), leaving Lᵀ in the upper triangle of ctx.wn.
// Z and A select the free and active variables, La is the strict lower
// triangle of SᵀAAᵀY and Rz the upper triangle of SᵀZZᵀY.
//
// The inner products are kept across iterations in ctx.snd, laid out as
//
//	[ YᵀZZᵀY            ]
//	[ La + Rz   SᵀAAᵀS  ]
//
// with each diagonal block lower triangular. Only the new pair and the
// variables that changed sets since the last call are folded in.
func formK(spec *iterSpec, ctx *iterCtx) errInfo {
	n, m, m2 := spec.n, spec.m, 2*spec.m
	col := ctx.col
	ws, wy, nd, wn := ctx.ws, ctx.wy, ctx.snd, ctx.wn
	free, active := ctx.index[0][:ctx.free], ctx.index[0][ctx.free:n]
	entered, left := ctx.index[1][:ctx.enter], ctx.index[1][ctx.leave:n]

	if ctx.updated {
		if ctx.updates > m {
			// evict the oldest pair from every block
			for j := 0; j < m-1; j++ {
				k := m + j
				dcopy(j+1, nd[(j+1)*m2+1:], 1, nd[j*m2:], 1)
				dcopy(j+1, nd[(k+1)*m2+m+1:], 1, nd[k*m2+m:], 1)
				dcopy(m-1, nd[(k+1)*m2+1:], 1, nd[k*m2:], 1)
			}
		}

		last := ctx.slot(col - 1)
		yRow, sRow := nd[(col-1)*m2:], nd[(m+col-1)*m2:]
		for j := 0; j < col; j++ {
			q := ctx.slot(j)
			yRow[j] = dotOver(free, m, wy, last, wy, q)
			sRow[m+j] = dotOver(active, m, ws, last, ws, q)
			sRow[j] = dotOver(active, m, ws, last, wy, q)
		}
		for i := 0; i < col; i++ {
			nd[(m+i)*m2+col-1] = dotOver(free, m, ws, ctx.slot(i), wy, last)
		}
	}

	old := col
	if ctx.updated {
		old--
	}
	for i := 0; i < old; i++ {
		p := ctx.slot(i)
		for j := 0; j <= i; j++ {
			q := ctx.slot(j)
			nd[i*m2+j] += dotOver(entered, m, wy, p, wy, q) - dotOver(left, m, wy, p, wy, q)
			nd[(m+i)*m2+m+j] += dotOver(left, m, ws, p, ws, q) - dotOver(entered, m, ws, p, ws, q)
		}
		for j := 0; j < old; j++ {
			q := ctx.slot(j)
			delta := dotOver(entered, m, ws, p, wy, q) - dotOver(left, m, ws, p, wy, q)
			if i <= j {
				nd[(m+i)*m2+j] += delta // Rz
			} else {
				nd[(m+i)*m2+j] -= delta // La
			}
		}
	}

	theta := ctx.theta
	for i := 0; i < col; i++ {
		for j := 0; j <= i; j++ {
			wn[j*m2+i] = nd[i*m2+j] / theta
			wn[(col+j)*m2+col+i] = nd[(m+i)*m2+m+j] * theta
		}
		for j := 0; j < col; j++ {
			e := nd[(m+i)*m2+j]
			if j < i {
				e = -e
			}
			wn[j*m2+col+i] = e
		}
		wn[i*m2+i] += ctx.sy[i*m+i]
	}

	// Lᵀ = [ L₁₁ᵀ  L₁₁⁻¹(-Laᵀ + Rzᵀ) ]
	//      [  0    L₂₂ᵀ             ]
	if !cholesky(wn, m2, col) {
		return errNotPosDef1stK
	}
	for j := col; j < 2*col; j++ {
		upperSolve(wn, m2, col, wn[j:], m2, true)
	}
	for i := col; i < 2*col; i++ {
		for j := i; j < 2*col; j++ {
			wn[i*m2+j] += ddot(col, wn[i:], m2, wn[j:], m2)
		}
	}
	if !cholesky(wn[col*m2+col:], m2, col) {
		return errNotPosDef2ndK
	}
	return ok
}
