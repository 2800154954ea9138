// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgsb

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"
)

// bndHint records which sides of a Bound are finite.
type bndHint int

const (
	bndNo bndHint = iota
	bndLow
	bndBoth
	bndUp
)

func (b Bound) hasLower() bool { return b.hint == bndLow || b.hint == bndBoth }
func (b Bound) hasUpper() bool { return b.hint == bndUp || b.hint == bndBoth }

// Variable status recorded in iterCtx.where.
const (
	varNotMove = -3 // free with bounds but not moved
	varUnbound = -1 // always free
	varFree    = 0  // free with bounds and moved
	varAtLB    = 1  // fixed at the lower bound
	varAtUB    = 2  // fixed at the upper bound
	varFixed   = 3  // lower bound equals upper bound
)

// Status reports how an L-BFGS-B run ended.
type Status int

const (
	// ConvGradProgNorm the projected gradient norm dropped below ProjGradTolerance.
	ConvGradProgNorm Status = 1 << iota
	// ConvEnoughAccuracy the relative reduction of f dropped below EpsAccuracyFactor × ε.
	ConvEnoughAccuracy
	// StopAbnormalSearch the line search failed without any stored correction.
	StopAbnormalSearch
	// HaltEvalPanic the evaluation panicked.
	HaltEvalPanic
	// OverIterLimit more than MaxIterations iterations.
	OverIterLimit
	// OverEvalLimit more than MaxEvaluations evaluations.
	OverEvalLimit
	// OverTimeLimit evaluation time exceeded MaxComputations.
	OverTimeLimit
	// OverGradThresh the step norm dropped below GradDescentThreshold.
	OverGradThresh
	// Canceled the context was done before convergence.
	Canceled
)

const (
	iterLoop Status = 0
	iterConv        = ConvGradProgNorm | ConvEnoughAccuracy
	iterStop        = StopAbnormalSearch | HaltEvalPanic | OverIterLimit |
		OverEvalLimit | OverTimeLimit | OverGradThresh | Canceled
)

var statusText = map[Status]string{
	ConvGradProgNorm:   "projected gradient converged",
	ConvEnoughAccuracy: "relative reduction converged",
	StopAbnormalSearch: "abnormal line search",
	HaltEvalPanic:      "evaluation panic",
	OverIterLimit:      "iteration limit",
	OverEvalLimit:      "evaluation limit",
	OverTimeLimit:      "time limit",
	OverGradThresh:     "step below threshold",
	Canceled:           "canceled",
}

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Converged reports whether s is one of the convergence statuses.
func (s Status) Converged() bool {
	return s&iterConv > 0
}

// errInfo reports a recoverable failure inside one iteration.
type errInfo int

const (
	ok errInfo = iota
	errNotPosDef1stK
	errNotPosDef2ndK
	errNotPosDefT
	errDerivative
	errSingularTriangular
	errLineSearchFailed
	errLineSearchTol
	warnRestartLoop
	warnTooManySearch
)

var infoText = map[errInfo]string{
	errNotPosDef1stK:      "1st Cholesky factorization in formk is not positive definite",
	errNotPosDef2ndK:      "2nd Cholesky factorization in formk is not positive definite",
	errNotPosDefT:         "Cholesky factorization in formt is not positive definite",
	errDerivative:         "ascent direction in projection",
	errSingularTriangular: "singular triangular system",
	errLineSearchFailed:   "line search cannot locate an adequate point",
	errLineSearchTol:      "no feasible step along the direction",
	warnRestartLoop:       "bad direction in the line search",
	warnTooManySearch:     "too many evaluations in the last line search",
}

func (e errInfo) String() string {
	if t, ok := infoText[e]; ok {
		return t
	}
	return "ok"
}

type iterSpec struct {
	n, m    int
	epsilon float64
	stop    Termination
	eval    Evaluation
	bounds  []Bound
	search  *SearchTol
	logger  *zap.Logger
}

type iterLoc struct {
	f    float64
	x, g []float64
}

// save stores the current location into x, f and g.
func (l *iterLoc) save(x []float64, f *float64, g []float64) {
	copy(x, l.x)
	*f = l.f
	copy(g, l.g)
}

// load restores the current location from x, f and g.
func (l *iterLoc) load(x []float64, f float64, g []float64) {
	copy(l.x, x)
	l.f = f
	copy(l.g, g)
}

type stopwatch struct {
	start time.Time
}

func (s *stopwatch) reset() {
	s.start = time.Now()
}

func (s *stopwatch) elapsed() int64 {
	return time.Since(s.start).Nanoseconds()
}

type iterCtx struct {
	m          int
	ws, wy     []float64 // S and Y, n × m
	sy, ss, wt []float64 // SᵀY, SᵀS and the Cholesky factor of T, m × m
	wn, snd    []float64 // K = LELᵀ and its unfactored form, 2m × 2m
	wa         []float64 // 8m scratch
	z, r, d    []float64 // Cauchy point, reduced gradient and search direction
	t, xp      []float64 // breakpoints or saved x, backtracking copy of x
	where      []int
	index      [2][]int

	// limited memory state
	theta                    float64
	col, head, tail, updates int
	updated                  bool

	// bound state
	projInitX, constrained, boxed bool
	free, active, enter, leave    int

	// iteration state
	iter, totalEval, seg       int
	totalSegGCP, totalSkipBFGS int
	word                       int
	numEval, numBack           int
	fOld, sbgNrm               float64
	dNorm, dSqrt               float64
	stp, stpMax, gd, gdOld     float64
	search                     optimize.MoreThuente

	global, shared                                 stopwatch
	gcpSearchTime, minSubspaceTime, lineSearchTime int64
}

func (c *iterCtx) init(n, m int) {
	c.m = m
	wrk := make([]float64, 2*m*n+11*m*m+5*n+8*m)
	take := func(k int) []float64 {
		s := wrk[:k:k]
		wrk = wrk[k:]
		return s
	}
	c.ws, c.wy = take(n*m), take(n*m)
	c.sy, c.ss, c.wt = take(m*m), take(m*m), take(m*m)
	c.wn, c.snd = take(4*m*m), take(4*m*m)
	c.wa = take(8 * m)
	c.z, c.r, c.d, c.t, c.xp = take(n), take(n), take(n), take(n), take(n)
	c.where = make([]int, n)
	c.index = [2][]int{make([]int, n), make([]int, n)}
}

// slot maps the j-th stored correction, oldest first, to its column in S and Y.
func (c *iterCtx) slot(j int) int {
	return (c.head + j) % c.m
}

// reset drops the limited memory corrections.
func (c *iterCtx) reset() {
	c.theta = 1
	c.col, c.head, c.tail, c.updates = 0, 0, 0, 0
	c.updated = false
}

// clear prepares the workspace for a new run.
func (c *iterCtx) clear() {
	c.reset()
	c.projInitX, c.constrained, c.boxed = false, false, false
	c.free, c.active, c.enter, c.leave = 0, 0, 0, 0
	c.iter, c.totalEval, c.seg = 0, 0, 0
	c.totalSegGCP, c.totalSkipBFGS = 0, 0
	c.word = solutionUnknown
	c.numEval, c.numBack = 0, 0
	c.fOld, c.sbgNrm, c.dNorm, c.dSqrt = 0, 0, 0, 0
	c.stp, c.stpMax, c.gd, c.gdOld = 0, 0, 0, 0
	c.gcpSearchTime, c.minSubspaceTime, c.lineSearchTime = 0, 0, 0
}
