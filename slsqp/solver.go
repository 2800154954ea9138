// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"context"
	"math"
)

// sqpSolver runs Kraft's sequential least squares programming method on one
// problem and workspace.
//
// Every iteration linearizes the constraints at xᵏ and finds the direction d
// minimizing ½dᵀBd + ∇f(xᵏ)ᵀd, with B = LDLᵀ a BFGS approximation of the
// Lagrangian Hessian. Writing the quadratic as ‖D^½Lᵀd + D^-½L⁻¹∇f‖² turns
// the subproblem into the constrained least squares problem solved by lsq.
//
// When the linearized constraints have no common point the subproblem gains
// a variable δ ∈ [0, 1] scaling the constraint values and a penalty ½ρδ².
// d = 0 with δ = 1 is always feasible, and ρ grows tenfold while the
// relaxed subproblem still fails.
//
// The step length α comes from a search on the L1 merit function
// φ(x) = f(x) + Σρⱼ|cⱼ(x)|, with ρⱼ ← max(|λⱼ|, (ρⱼ + |λⱼ|)/2), either by
// Armijo backtracking or by Brent's method. B is then updated by the damped
// formula of Powell, which keeps it positive definite.
//
// Reference: D. Kraft, "A software package for sequential quadratic
// programming", DFVLR-FB 88-28, 1988.
type sqpSolver struct {
	*Optimizer
	ctx context.Context
	st  *sqpState
	pt  *point
}

// evaluate fills f and c at x, or the gradients g and a when grad is set.
// A panic in any callback becomes BadArgument.
func (s *sqpSolver) evaluate(grad bool) (mode Status) {
	if s.ctx.Err() != nil {
		return Canceled
	}
	defer func() {
		if r := recover(); r != nil {
			mode = BadArgument
		}
	}()

	p, n, lda := s.pt, s.n, max(s.m, 1)
	if !grad {
		p.f = s.Object(p.x, nil)
		for j, c := range s.EqCons {
			p.c[j] = c(p.x, nil)
		}
		for j, c := range s.NeqCons {
			p.c[s.meq+j] = c(p.x, nil)
		}
		return OK
	}

	g := p.g[:n]
	for j, c := range s.EqCons {
		c(p.x, g)
		dcopy(n, g, 1, p.a[j:], lda)
	}
	for j, c := range s.NeqCons {
		c(p.x, g)
		dcopy(n, g, 1, p.a[s.meq+j:], lda)
	}
	s.Object(p.x, g)
	return OK
}

// violation is the L1 infeasibility of constraint j with value c.
func (s *sqpSolver) violation(j int, c float64) float64 {
	if j < s.meq {
		return math.Abs(c)
	}
	return math.Max(-c, 0)
}

// penalty is Σρⱼ|cⱼ(x)| at the current point.
func (s *sqpSolver) penalty() (sum float64) {
	for j, c := range s.pt.c[:s.m] {
		sum += s.st.rho[j] * s.violation(j, c)
	}
	return
}

func (s *sqpSolver) start() Status {
	if mode := s.evaluate(false); mode != OK {
		return mode
	}
	if mode := s.evaluate(true); mode != OK {
		return mode
	}
	st := s.st
	st.acc = s.Stop.Accuracy
	st.tol = 10 * st.acc
	st.iter, st.resets = 0, 0
	st.relaxed = false
	clear(st.d)
	clear(st.rho)
	clear(st.mult)
	mode, _ := s.resetHessian()
	return mode
}

// resetHessian sets B = I. After five resets in one run it stops instead,
// with OK only when the relaxed convergence test passes.
func (s *sqpSolver) resetHessian() (mode Status, stop bool) {
	st := s.st
	if st.resets++; st.resets > 5 {
		if s.converged(st.tol) {
			return OK, true
		}
		return SearchNotDescent, true
	}
	ldlIdentity(s.n, st.ldl)
	return OK, false
}

// converged tests the current point after a line search: it must be
// feasible within tol and either f, the step or one of the optional
// tolerances must have settled.
func (s *sqpSolver) converged(tol float64) bool {
	st, p, stop := s.st, s.pt, s.Stop

	var vio float64
	for j, c := range p.c[:s.m] {
		vio += s.violation(j, c)
	}
	if vio >= tol || st.relaxed || math.IsNaN(p.f) {
		return false
	}

	df := math.Abs(p.f - st.f0)
	switch {
	case df < tol || dnrm2(s.n, st.d, 1) < tol:
		return true
	case stop.FEvalTolerance >= 0 && math.Abs(p.f) < stop.FEvalTolerance:
		return true
	case stop.FDiffTolerance >= 0 && df < stop.FDiffTolerance:
		return true
	case stop.XDiffTolerance >= 0:
		dcopy(s.n, p.x, 1, st.u, 1)
		daxpy(s.n, -1, st.x0, 1, st.u, 1)
		return dnrm2(s.n, st.u, 1) < stop.XDiffTolerance
	}
	return false
}

// updateHessian evaluates the gradients at the new point and applies the
// damped BFGS update B + qqᵀ/sᵀq - BssᵀB/sᵀBs, where s is the step and
// q = θη + (1-θ)Bs mixes in Bs whenever the Lagrangian gradient change η
// has sᵀη < sᵀBs/5.
func (s *sqpSolver) updateHessian() (Status, bool) {
	if mode := s.evaluate(true); mode != OK {
		return mode, true
	}

	st, p := s.st, s.pt
	n, m, lda := s.n, s.m, max(s.m, 1)
	l, d, u, v := st.ldl, st.d, st.u, st.v

	// v still holds the Lagrangian gradient at the previous point
	for i := 0; i < n; i++ {
		u[i] = p.g[i] - ddot(m, p.a[i*lda:], 1, st.mult, 1) - v[i]
	}
	ldlMul(n, l, d, v)

	sq := ddot(n, d, 1, u, 1)
	sbs := ddot(n, d, 1, v, 1)
	if floor := sbs / 5; sq < floor {
		theta := (sbs - floor) / (sbs - sq)
		dscal(n, theta, u, 1)
		daxpy(n, 1-theta, v, 1, u, 1)
		sq = floor
	}

	if sq == 0 || sbs == 0 {
		return s.resetHessian()
	}
	ldlRankOne(n, l, u, 1/sq, nil)
	ldlRankOne(n, l, v, -1/sbs, u)
	return OK, false
}

// clip moves x back inside the bounds.
func (s *sqpSolver) clip(x []float64) {
	inf := s.BndInf
	for i, b := range s.Bounds {
		if !math.IsNaN(b.Lower) && b.Lower > -inf && x[i] < b.Lower {
			x[i] = b.Lower
		} else if !math.IsNaN(b.Upper) && b.Upper < inf && x[i] > b.Upper {
			x[i] = b.Upper
		}
	}
}

// moveTo sets x = x0 + αd.
func (s *sqpSolver) moveTo(alpha float64) {
	x := s.pt.x
	dcopy(s.n, s.st.x0, 1, x, 1)
	daxpy(s.n, alpha, s.st.d, 1, x, 1)
	s.clip(x)
}

// backtrack shrinks the step d by alpha and moves x to x0 + d.
func (s *sqpSolver) backtrack(alpha float64) {
	s.st.trials++
	dscal(s.n, alpha, s.st.d, 1)
	s.moveTo(1)
}

// lineSearch finds the step along d, leaving d scaled to the step taken and
// x evaluated at x0 + d. slope is the directional derivative of the merit
// function at α = 0.
func (s *sqpSolver) lineSearch(slope float64) Status {
	st, p, line := s.st, s.pt, s.Line
	lo, hi := line.Alpha.Lower, line.Alpha.Upper

	if line.Exact {
		st.alpha = st.line.start(lo, hi)
		s.moveTo(st.alpha)
	} else {
		st.trials = 0
		st.alpha = hi
		s.backtrack(st.alpha)
		slope *= st.alpha
	}

	for {
		if mode := s.evaluate(false); mode != OK {
			return mode
		}
		t := p.f + s.penalty()

		if line.Exact {
			if st.line.done {
				dscal(s.n, st.alpha, st.d, 1)
				return OK
			}
			// the minimizer is evaluated once more when brent stops
			st.alpha = st.line.next(t, st.tol)
			s.moveTo(st.alpha)
			continue
		}

		dt := t - st.t0
		if dt <= slope/10 || st.trials > 10 {
			return OK
		}
		alpha := math.Min(math.Max(slope/(2*(slope-dt)), lo), hi)
		if math.IsNaN(alpha) {
			alpha = lo
		}
		st.alpha = alpha
		s.backtrack(alpha)
		slope *= alpha
	}
}

// subproblem solves the least squares subproblem at the current point for
// d and the multipliers. It returns 1 - δ, which is 1 unless the constraints
// had to be relaxed.
func (s *sqpSolver) subproblem() (float64, Status) {
	st, p := s.st, s.pt
	n, m, meq, lda := s.n, s.m, s.meq, max(s.m, 1)
	d, u, v, l := st.d, st.u, st.v, st.ldl
	iters, inf := s.Stop.NNLSIterations, s.BndInf

	// bounds on d are l - xᵏ ≤ d ≤ u - xᵏ
	for i, b := range s.Bounds {
		u[i] = b.Lower - p.x[i]
		v[i] = b.Upper - p.x[i]
	}
	_, mode := lsq(m, meq, n, false, l, p.g, p.a, p.c, u, v, d, st.mult, st.w, st.jw, iters, inf)
	if mode == LSEISingularC && n == meq {
		mode = ConsIncompatible
	}
	if st.relaxed = mode == ConsIncompatible; !st.relaxed {
		return 1, mode
	}

	// the column of δ holds -cⱼ for equalities and violated inequalities
	col := p.a[n*lda : n*lda+m]
	for j, c := range p.c[:m] {
		if j < meq {
			col[j] = -c
		} else {
			col[j] = math.Max(-c, 0)
		}
	}
	p.g[n] = 0
	rho := packed(n, n)
	l[rho] = 100
	clear(d[:n])
	d[n] = 1
	u[n], v[n] = 0, 1

	for try := 0; ; try++ {
		_, mode = lsq(m, meq, n+1, true, l, p.g, p.a, p.c, u, v, d, st.mult, st.w, st.jw, iters, inf)
		if mode != ConsIncompatible || try == 5 {
			break
		}
		l[rho] *= 10
	}
	return 1 - d[n], mode
}

func (s *sqpSolver) run() Status {
	st, p := s.st, s.pt
	n, m, lda := s.n, s.m, max(s.m, 1)

	mode := s.start()
	for mode == OK {
		if st.iter++; st.iter > s.Stop.MaxIterations {
			st.iter--
			return SQPExceedMaxIter
		}

		scale, sub := s.subproblem()
		if sub != HasSolution {
			return sub
		}

		// v keeps ∇ℒ(xᵏ) for the Hessian update
		for i := 0; i < n; i++ {
			st.v[i] = p.g[i] - ddot(m, p.a[i*lda:], 1, st.mult, 1)
		}
		st.f0 = p.f
		copy(st.x0, p.x)

		gd := ddot(n, p.g, 1, st.d, 1)
		opt, vio := math.Abs(gd), 0.0
		for j, c := range p.c[:m] {
			lam := math.Abs(st.mult[j])
			vio += s.violation(j, c)
			opt += lam * math.Abs(c)
			st.rho[j] = math.Max(lam, (st.rho[j]+lam)/2)
		}
		if opt < st.acc && vio < st.acc && !st.relaxed && !math.IsNaN(p.f) {
			return OK
		}

		pen := s.penalty()
		st.t0 = p.f + pen
		slope := gd - pen*scale
		if slope >= 0 {
			var stop bool
			if mode, stop = s.resetHessian(); stop {
				return mode
			}
			continue
		}

		if mode = s.lineSearch(slope); mode != OK {
			return mode
		}
		if s.converged(st.acc) {
			return OK
		}
		var stop bool
		if mode, stop = s.updateHessian(); stop {
			return mode
		}
	}
	return mode
}
