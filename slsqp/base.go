// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import "fmt"

const eps = 0x1p-52

// Status reports how an SLSQP run, or one of its least squares kernels, ended.
type Status int

const (
	// OK the iteration converged.
	OK Status = iota
	// HasSolution a least squares kernel found its solution.
	HasSolution
	// BadArgument an evaluation panicked or a kernel got inconsistent dimensions.
	BadArgument
	// NNLSExceedMaxIter the non-negative least squares solver ran out of iterations.
	NNLSExceedMaxIter
	// ConsIncompatible the linearized constraints have no common point.
	ConsIncompatible
	// LSISingularE the objective matrix of an inequality constrained subproblem is rank deficient.
	LSISingularE
	// LSEISingularC the equality constraint normals are linearly dependent.
	LSEISingularC
	// HFTIRankDefect the equality constrained subproblem is rank deficient.
	HFTIRankDefect
	// SearchNotDescent no descent direction was found after repeated Hessian resets.
	SearchNotDescent
	// SQPExceedMaxIter more than MaxIterations iterations.
	SQPExceedMaxIter
	// Canceled the context was done before convergence.
	Canceled
)

var statusText = map[Status]string{
	OK:                "converged",
	HasSolution:       "has solution",
	BadArgument:       "bad argument",
	NNLSExceedMaxIter: "nnls iteration limit",
	ConsIncompatible:  "incompatible constraints",
	LSISingularE:      "singular E in LSI",
	LSEISingularC:     "singular C in LSEI",
	HFTIRankDefect:    "rank defect in HFTI",
	SearchNotDescent:  "line search not descent",
	SQPExceedMaxIter:  "iteration limit",
	Canceled:          "canceled",
}

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type sqpSpec struct {
	n   int // variables
	m   int // constraints, equalities first
	meq int
	Problem
}

// point is an iterate with the values and derivatives evaluated there.
// g and a carry one extra column for the relaxation variable.
type point struct {
	f float64
	x []float64 // n
	c []float64 // max(1, m)
	g []float64 // n+1
	a []float64 // column-major max(1, m) × (n+1)
}

// sqpState is the iteration state held by a Workspace.
type sqpState struct {
	acc, tol float64 // requested accuracy and the relaxed 10·acc
	f0, t0   float64 // objective and merit value where the line search started
	alpha    float64
	trials   int  // armijo trials in the current line search
	iter     int
	resets   int  // Hessian resets in this run
	relaxed  bool // the last subproblem needed the relaxation variable

	x0   []float64 // n
	rho  []float64 // merit penalties, max(1, m)
	mult []float64 // multipliers of the constraints then the bounds, m + 2(n+1)
	ldl  []float64 // packed LDLᵀ plus the relaxation penalty, n(n+1)/2 + 1
	d    []float64 // search direction, the step once the search ends; n+1
	u, v []float64 // n+1
	w    []float64
	jw   []int
	line brent
}
