// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bnb implements a best-bound branch and bound driver for
// mixed-integer programs whose continuous relaxation is solved elsewhere.
//
// The driver only knows variable bounds: a node is the original problem with
// tightened lower and upper limits on the integer variables, and the caller's
// RelaxFunc returns the relaxed optimum under those limits. Linear relaxations
// come from package lp, quadratic ones from package slsqp.
package bnb

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"
)

var (
	// ErrInfeasible is returned by a RelaxFunc when the node has no feasible point.
	ErrInfeasible = errors.New("bnb: infeasible relaxation")
	// ErrInvalidProblem is wrapped by validation errors from Solve.
	ErrInvalidProblem = errors.New("bnb: invalid problem")
)

// Relaxed is the optimum of one relaxation, F is minimized.
type Relaxed struct {
	F float64
	X []float64
}

// RelaxFunc solves the continuous relaxation with the given variable limits.
type RelaxFunc func(ctx context.Context, lower, upper []float64) (Relaxed, error)

// HeuristicFunc tries to build an integer feasible point from a fractional relaxation.
// It returns false when no point could be produced.
type HeuristicFunc func(ctx context.Context, x []float64) (Relaxed, bool)

// Termination specifies when the search stops.
type Termination struct {
	// MaxNodes bounds the number of relaxations solved, including the root.
	MaxNodes int
	// A node is pruned when its bound is within max(AbsGap, RelGap×|incumbent|) of the incumbent.
	AbsGap, RelGap float64
	// A value within IntTol of an integer counts as integral.
	IntTol float64
}

// DefaultTermination returns the limits used when a field is left zero.
func DefaultTermination() Termination {
	return Termination{
		MaxNodes: 100000,
		AbsGap:   1e-9,
		RelGap:   1e-9,
		IntTol:   1e-6,
	}
}

func (t Termination) withDefaults() Termination {
	d := DefaultTermination()
	if t.MaxNodes <= 0 {
		t.MaxNodes = d.MaxNodes
	}
	if t.AbsGap <= 0 {
		t.AbsGap = d.AbsGap
	}
	if t.RelGap <= 0 {
		t.RelGap = d.RelGap
	}
	if t.IntTol <= 0 {
		t.IntTol = d.IntTol
	}
	return t
}

// Problem is a mixed-integer program described by its relaxation.
type Problem struct {
	N            int       // number of variables
	Integer      []int     // indices of the integer variables
	Lower, Upper []float64 // variable limits, ±Inf when absent
	Relax        RelaxFunc
	Heuristic    HeuristicFunc // optional
	Stop         Termination
	Logger       *zap.Logger
}

// Status is the outcome of a search.
type Status int

const (
	// Optimal the incumbent is proven optimal within the gap.
	Optimal Status = iota
	// NodeLimit the node budget ran out, the incumbent may be suboptimal.
	NodeLimit
	// Infeasible no integer feasible point exists.
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case NodeLimit:
		return "node limit"
	case Infeasible:
		return "infeasible"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of Solve.
type Result struct {
	Status Status
	F      float64   // incumbent objective, +Inf without incumbent
	X      []float64 // incumbent, nil without incumbent
	Bound  float64   // best lower bound on the optimum
	Nodes  int       // relaxations solved
}

// HasSolution reports whether an integer feasible point was found.
func (r *Result) HasSolution() bool {
	return r.X != nil
}

type node struct {
	lower, upper []float64
	relaxed      Relaxed
	depth        int
}

type nodeQueue []*node

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].relaxed.F < q[j].relaxed.F }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)        { *q = append(*q, x.(*node)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

func (p *Problem) validate() error {
	switch {
	case p.N <= 0:
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidProblem)
	case p.Relax == nil:
		return fmt.Errorf("%w: relaxation is required", ErrInvalidProblem)
	case len(p.Lower) != p.N || len(p.Upper) != p.N:
		return fmt.Errorf("%w: bounds must have %d entries", ErrInvalidProblem, p.N)
	}
	for _, j := range p.Integer {
		if j < 0 || j >= p.N {
			return fmt.Errorf("%w: integer index %d out of range", ErrInvalidProblem, j)
		}
	}
	for i := range p.Lower {
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: empty bound at %d", ErrInvalidProblem, i)
		}
	}
	return nil
}

type search struct {
	*Problem
	stop      Termination
	log       *zap.Logger
	queue     nodeQueue
	incumbent Relaxed
	found     bool
	nodes     int
}

// Solve runs branch and bound. On context cancellation it returns the
// current result together with the context error.
func (p *Problem) Solve(ctx context.Context) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	s := &search{
		Problem:   p,
		stop:      p.Stop.withDefaults(),
		log:       p.Logger,
		incumbent: Relaxed{F: math.Inf(1)},
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	root := &node{lower: slices.Clone(p.Lower), upper: slices.Clone(p.Upper)}
	ok, err := s.evaluate(ctx, root)
	if err != nil {
		return s.result(Infeasible), err
	}
	if ok {
		heap.Push(&s.queue, root)
	}

	for s.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return s.result(NodeLimit), err
		}

		nd := heap.Pop(&s.queue).(*node)
		if s.prunable(nd.relaxed.F) {
			// every remaining node is at least as bad
			s.queue = s.queue[:0]
			break
		}

		j := s.branchVariable(nd.relaxed.X)
		v := nd.relaxed.X[j]
		down, up := math.Floor(v), math.Ceil(v)

		for _, child := range []*node{
			{lower: slices.Clone(nd.lower), upper: withValue(nd.upper, j, down), depth: nd.depth + 1},
			{lower: withValue(nd.lower, j, up), upper: slices.Clone(nd.upper), depth: nd.depth + 1},
		} {
			if child.lower[j] > child.upper[j] {
				continue
			}
			if s.nodes >= s.stop.MaxNodes {
				heap.Push(&s.queue, nd)
				s.log.Debug("node limit reached", zap.Int("nodes", s.nodes))
				return s.result(NodeLimit), nil
			}
			ok, err := s.evaluate(ctx, child)
			if err != nil {
				return s.result(NodeLimit), err
			}
			if ok {
				heap.Push(&s.queue, child)
			}
		}
	}

	if !s.found {
		return s.result(Infeasible), nil
	}
	return s.result(Optimal), nil
}

// evaluate solves the relaxation of nd and reports whether it must be explored further.
func (s *search) evaluate(ctx context.Context, nd *node) (bool, error) {
	s.nodes++
	r, err := s.Relax(ctx, nd.lower, nd.upper)
	switch {
	case errors.Is(err, ErrInfeasible):
		return false, nil
	case err != nil:
		return false, err
	}
	nd.relaxed = r

	if s.prunable(r.F) {
		return false, nil
	}
	if s.integral(r.X) {
		s.improve(r, nd.depth, "relaxation")
		return false, nil
	}
	if s.Heuristic != nil {
		if h, ok := s.Heuristic(ctx, r.X); ok {
			s.improve(h, nd.depth, "heuristic")
		}
	}
	return !s.prunable(r.F), nil
}

func (s *search) improve(r Relaxed, depth int, source string) {
	if s.found && r.F >= s.incumbent.F {
		return
	}
	x := slices.Clone(r.X)
	for _, j := range s.Integer {
		x[j] = math.Round(x[j])
	}
	s.incumbent, s.found = Relaxed{F: r.F, X: x}, true
	s.log.Debug("new incumbent",
		zap.Float64("objective", r.F),
		zap.String("source", source),
		zap.Int("depth", depth),
		zap.Int("nodes", s.nodes))
}

func (s *search) prunable(bound float64) bool {
	if !s.found {
		return false
	}
	inc := s.incumbent.F
	gap := math.Max(s.stop.AbsGap, s.stop.RelGap*math.Abs(inc))
	return bound >= inc-gap
}

func (s *search) integral(x []float64) bool {
	for _, j := range s.Integer {
		if math.Abs(x[j]-math.Round(x[j])) > s.stop.IntTol {
			return false
		}
	}
	return true
}

// branchVariable picks the most fractional integer variable.
func (s *search) branchVariable(x []float64) int {
	best, frac := -1, -1.0
	for _, j := range s.Integer {
		f := x[j] - math.Floor(x[j])
		if d := math.Min(f, 1-f); d > frac {
			best, frac = j, d
		}
	}
	return best
}

func (s *search) result(status Status) *Result {
	r := &Result{
		Status: status,
		F:      s.incumbent.F,
		X:      s.incumbent.X,
		Nodes:  s.nodes,
		Bound:  s.incumbent.F,
	}
	for _, nd := range s.queue {
		r.Bound = math.Min(r.Bound, nd.relaxed.F)
	}
	if status == Infeasible && !s.found {
		r.Bound = math.Inf(1)
	}
	return r
}

func withValue(v []float64, j int, x float64) []float64 {
	c := slices.Clone(v)
	c[j] = x
	return c
}
