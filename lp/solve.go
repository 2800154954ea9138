// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	convex "gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/curioloop/statopt/bnb"
)

// defaultTol is the simplex reduced cost tolerance.
const defaultTol = 1e-10

// Solve validates and solves the problem, see Model.Solve.
func (p *Problem) Solve(ctx context.Context) (*Result, error) {
	m, err := p.New()
	if err != nil {
		return nil, err
	}
	return m.Solve(ctx)
}

// Solve runs the simplex, or branch and bound when some variables are integer.
// Infeasible, unbounded and truncated searches are reported by Result.Status;
// the error is reserved for numerical failure and cancellation.
func (m *Model) Solve(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.integer) == 0 {
		r, err := m.relax(m.lower, m.upper)
		if err != nil {
			return nil, err
		}
		res := m.result(r.status, r.x)
		res.Nodes = 1
		m.log.Debug("linear program solved",
			zap.Stringer("status", res.Status),
			zap.Float64("objective", res.F))
		return res, nil
	}
	return m.branchAndBound(ctx)
}

type relaxation struct {
	status Status
	f      float64 // minimized objective
	x      []float64
}

// relax solves the linear program with the given variable limits.
func (m *Model) relax(lower, upper []float64) (relaxation, error) {
	s := m.standardize(lower, upper)
	if !s.reduce() {
		return relaxation{status: Infeasible}, nil
	}
	keep, ok := s.dropZeroColumns()
	if !ok {
		return relaxation{status: Unbounded}, nil
	}

	y := make([]float64, len(s.c))
	if len(s.a) > 0 {
		tol := m.tol
		if tol == 0 {
			tol = defaultTol
		}
		c, a := s.dense(keep)
		_, opt, err := convex.Simplex(c, a, s.b, tol, nil)
		switch {
		case errors.Is(err, convex.ErrInfeasible):
			return relaxation{status: Infeasible}, nil
		case errors.Is(err, convex.ErrUnbounded):
			return relaxation{status: Unbounded}, nil
		case err != nil:
			return relaxation{}, fmt.Errorf("lp: simplex: %w", err)
		}
		for k, j := range keep {
			y[j] = opt[k]
		}
	}
	return relaxation{
		status: Optimal,
		f:      s.c0 + floats.Dot(s.c, y),
		x:      s.restore(y),
	}, nil
}

func (m *Model) branchAndBound(ctx context.Context) (*Result, error) {
	p := bnb.Problem{
		N:       len(m.cost),
		Integer: m.integer,
		Lower:   m.lower,
		Upper:   m.upper,
		Stop:    m.branch,
		Logger:  m.log,
		Relax: func(_ context.Context, lower, upper []float64) (bnb.Relaxed, error) {
			r, err := m.relax(lower, upper)
			switch {
			case err != nil:
				return bnb.Relaxed{}, err
			case r.status == Infeasible:
				return bnb.Relaxed{}, bnb.ErrInfeasible
			case r.status == Unbounded:
				return bnb.Relaxed{}, ErrUnbounded
			}
			return bnb.Relaxed{F: r.f, X: r.x}, nil
		},
	}

	br, err := p.Solve(ctx)
	switch {
	case errors.Is(err, ErrUnbounded):
		return m.result(Unbounded, nil), nil
	case err != nil:
		return nil, err
	}

	status := Optimal
	switch br.Status {
	case bnb.Infeasible:
		status = Infeasible
	case bnb.NodeLimit:
		status = NodeLimit
	}
	res := m.result(status, br.X)
	res.Nodes = br.Nodes
	m.log.Debug("mixed integer program solved",
		zap.Stringer("status", res.Status),
		zap.Float64("objective", res.F),
		zap.Float64("bound", br.Bound),
		zap.Int("nodes", br.Nodes))
	return res, nil
}

func (m *Model) result(status Status, x []float64) *Result {
	r := &Result{Status: status, Names: m.names}
	switch {
	case x != nil:
		r.X = x
		r.F = floats.Dot(m.cost, x)
	case status == Unbounded && m.sense == Maximize:
		r.F = math.Inf(1)
	case status == Unbounded:
		r.F = math.Inf(-1)
	default:
		r.F = math.NaN()
	}
	return r
}
