// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/statopt/lp"
)

// LAD fits least absolute deviations as the linear program
//
//	min Σ eᵢ⁺ + eᵢ⁻  s.t.  xᵢᵀβ + b + eᵢ⁺ − eᵢ⁻ = yᵢ,  e± ≥ 0
//
// with β and b free.
func LAD(ctx context.Context, x mat.Matrix, y []float64, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	n, p, err := checkData(x, y)
	if err != nil {
		return nil, err
	}
	intercept := !opts.NoIntercept
	q := p + btoi(intercept)
	nv := q + 2*n

	prob := &lp.Problem{
		Sense:  lp.Minimize,
		Cost:   make([]float64, nv),
		Bounds: make([]lp.Bound, nv),
		Cons:   make([]lp.Constraint, n),
		Logger: opts.Logger,
	}
	for j := 0; j < nv; j++ {
		if j < q {
			prob.Bounds[j] = lp.Free()
			continue
		}
		prob.Bounds[j] = lp.NonNegative()
		prob.Cost[j] = 1
	}
	for i := 0; i < n; i++ {
		row := make([]float64, nv)
		mat.Row(row[:p], i, x)
		if intercept {
			row[p] = 1
		}
		row[q+i], row[q+n+i] = 1, -1
		prob.Cons[i] = lp.Constraint{Name: fmt.Sprintf("obs%d", i+1), Coef: row, Op: lp.Equal, RHS: y[i]}
	}

	r, err := prob.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("lad: %w", err)
	}
	if err := r.Status.Err(); err != nil {
		return nil, fmt.Errorf("lad: %w", err)
	}
	m := &Model{Kind: KindLAD, Objective: r.F, Iterations: r.Nodes}
	m.Intercept, m.Coef = split(r.X, p, intercept)
	opts.Logger.Debug("least absolute deviations fitted", zap.Float64("objective", r.F))
	return m, nil
}
