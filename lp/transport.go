// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Transportation ships goods from sources with limited supply to sinks with
// a demand at minimum total cost. Cost[i][j] is the unit cost from source i to sink j.
type Transportation struct {
	Sources []string
	Sinks   []string
	Supply  []float64
	Demand  []float64
	Cost    [][]float64
	// Integer requires whole units on every route.
	Integer bool
}

// Plan is an optimal shipment.
type Plan struct {
	Sources, Sinks []string
	Flow           [][]float64 // Flow[i][j] units from source i to sink j
	Cost           float64
}

// Route is one used source to sink link of a plan.
type Route struct {
	From, To string
	Units    float64
}

// Routes lists the links with positive flow in source then sink order.
func (p *Plan) Routes() []Route {
	var out []Route
	for i, row := range p.Flow {
		for j, f := range row {
			if f > 0 {
				out = append(out, Route{From: p.Sources[i], To: p.Sinks[j], Units: f})
			}
		}
	}
	return out
}

func (t *Transportation) validate() error {
	ns, nd := len(t.Supply), len(t.Demand)
	switch {
	case ns == 0 || nd == 0:
		return invalid("transportation needs sources and sinks")
	case len(t.Sources) != 0 && len(t.Sources) != ns:
		return invalid("%d source names for %d supplies", len(t.Sources), ns)
	case len(t.Sinks) != 0 && len(t.Sinks) != nd:
		return invalid("%d sink names for %d demands", len(t.Sinks), nd)
	case len(t.Cost) != ns:
		return invalid("cost has %d rows, want %d", len(t.Cost), ns)
	}
	for i, row := range t.Cost {
		if len(row) != nd {
			return invalid("cost row %d has %d entries, want %d", i, len(row), nd)
		}
	}
	for _, v := range append(append([]float64{}, t.Supply...), t.Demand...) {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("supply and demand must be finite and non-negative")
		}
	}
	return nil
}

func (t *Transportation) names() (sources, sinks []string) {
	sources, sinks = t.Sources, t.Sinks
	if len(sources) == 0 {
		sources = make([]string, len(t.Supply))
		for i := range sources {
			sources[i] = fmt.Sprintf("s%d", i+1)
		}
	}
	if len(sinks) == 0 {
		sinks = make([]string, len(t.Demand))
		for j := range sinks {
			sinks[j] = fmt.Sprintf("d%d", j+1)
		}
	}
	return sources, sinks
}

// Problem builds the linear program: one variable per route, a ≤ row per
// source and a ≥ row per sink. Variable i·len(Sinks)+j is the route i → j.
func (t *Transportation) Problem() (*Problem, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if s, d := floats.Sum(t.Supply), floats.Sum(t.Demand); s < d {
		return nil, fmt.Errorf("%w: supply %v is below demand %v", ErrInfeasible, s, d)
	}

	sources, sinks := t.names()
	ns, nd := len(t.Supply), len(t.Demand)
	n := ns * nd

	p := &Problem{
		Sense: Minimize,
		Cost:  make([]float64, 0, n),
		Names: make([]string, 0, n),
	}
	for i := 0; i < ns; i++ {
		p.Cost = append(p.Cost, t.Cost[i]...)
		for j := 0; j < nd; j++ {
			p.Names = append(p.Names, sources[i]+"->"+sinks[j])
		}
	}
	for i := 0; i < ns; i++ {
		row := make([]float64, n)
		for j := 0; j < nd; j++ {
			row[i*nd+j] = 1
		}
		p.Cons = append(p.Cons, Constraint{Name: "supply " + sources[i], Coef: row, Op: LessEq, RHS: t.Supply[i]})
	}
	for j := 0; j < nd; j++ {
		row := make([]float64, n)
		for i := 0; i < ns; i++ {
			row[i*nd+j] = 1
		}
		p.Cons = append(p.Cons, Constraint{Name: "demand " + sinks[j], Coef: row, Op: GreaterEq, RHS: t.Demand[j]})
	}
	if t.Integer {
		p.Integer = make([]bool, n)
		for k := range p.Integer {
			p.Integer[k] = true
		}
	}
	return p, nil
}

// Solve finds a minimum cost plan.
func (t *Transportation) Solve(ctx context.Context, opts ...func(*Problem)) (*Plan, error) {
	p, err := t.Problem()
	if err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(p)
	}
	r, err := p.Solve(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Status.Err(); err != nil {
		return nil, err
	}

	sources, sinks := t.names()
	nd := len(t.Demand)
	plan := &Plan{Sources: sources, Sinks: sinks, Cost: r.F, Flow: make([][]float64, len(t.Supply))}
	for i := range plan.Flow {
		plan.Flow[i] = r.X[i*nd : (i+1)*nd]
	}
	return plan, nil
}
