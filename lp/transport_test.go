// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// Powerco: three power plants supply four cities.
func powerco() *Transportation {
	return &Transportation{
		Sources: []string{"plant1", "plant2", "plant3"},
		Sinks:   []string{"city1", "city2", "city3", "city4"},
		Supply:  []float64{35, 50, 40},
		Demand:  []float64{45, 20, 30, 30},
		Cost: [][]float64{
			{8, 6, 10, 9},
			{9, 12, 13, 7},
			{14, 9, 16, 5},
		},
	}
}

func checkPlan(t *testing.T, tr *Transportation, plan *Plan) {
	t.Helper()
	for i, row := range plan.Flow {
		assert.LessOrEqual(t, floats.Sum(row), tr.Supply[i]+1e-9)
	}
	for j := range tr.Demand {
		col := 0.0
		for i := range plan.Flow {
			assert.GreaterOrEqual(t, plan.Flow[i][j], -1e-9)
			col += plan.Flow[i][j]
		}
		assert.GreaterOrEqual(t, col, tr.Demand[j]-1e-9)
	}
}

func TestPowerco(t *testing.T) {
	tr := powerco()
	plan, err := tr.Solve(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1020, plan.Cost, 1e-9)
	checkPlan(t, tr, plan)

	units := 0.0
	for _, r := range plan.Routes() {
		assert.Positive(t, r.Units)
		units += r.Units
	}
	assert.InDelta(t, 125, units, 1e-9)
}

func TestTransportationSurplus(t *testing.T) {
	// extra supply at the cheapest plant does not need to be shipped
	tr := powerco()
	tr.Supply[2] = 100
	tr.Integer = true
	plan, err := tr.Solve(context.Background())
	require.NoError(t, err)
	checkPlan(t, tr, plan)
	assert.LessOrEqual(t, plan.Cost, 1020.0)
	for _, row := range plan.Flow {
		for _, f := range row {
			assert.Equal(t, f, float64(int(f)))
		}
	}
}

func TestTransportationShortage(t *testing.T) {
	tr := powerco()
	tr.Supply[0] = 10
	_, err := tr.Solve(context.Background())
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestTransportationValidation(t *testing.T) {
	tr := powerco()
	tr.Cost = tr.Cost[:2]
	_, err := tr.Problem()
	assert.ErrorIs(t, err, ErrInvalidProblem)

	tr = powerco()
	tr.Demand[1] = -1
	_, err = tr.Problem()
	assert.ErrorIs(t, err, ErrInvalidProblem)
}

func TestTransportationProblemLayout(t *testing.T) {
	p, err := powerco().Problem()
	require.NoError(t, err)
	assert.Len(t, p.Cost, 12)
	assert.Equal(t, "plant2->city3", p.Names[1*4+2])
	assert.Equal(t, 13.0, p.Cost[1*4+2])
	require.Len(t, p.Cons, 7)
	assert.Equal(t, LessEq, p.Cons[0].Op)
	assert.Equal(t, GreaterEq, p.Cons[6].Op)
}

const giapettoYAML = `
name: giapetto
sense: max
variables:
  - name: soldiers
    upper: 40
  - name: trains
objective:
  soldiers: 3
  trains: 2
constraints:
  - name: finishing
    coef: {soldiers: 2, trains: 1}
    op: "<="
    rhs: 100
  - name: carpentry
    coef: {soldiers: 1, trains: 1}
    op: "<="
    rhs: 80
`

func TestDecode(t *testing.T) {
	f, p, err := Decode(strings.NewReader(giapettoYAML))
	require.NoError(t, err)
	assert.Equal(t, "giapetto", f.Name)
	assert.Equal(t, Maximize, p.Sense)
	assert.Equal(t, []string{"soldiers", "trains"}, p.Names)
	assert.Equal(t, []float64{3, 2}, p.Cost)
	assert.Nil(t, p.Integer)
	require.Len(t, p.Cons, 2)
	assert.Equal(t, "carpentry", p.Cons[1].Name)

	r := solve(t, p)
	require.Equal(t, Optimal, r.Status)
	assert.InDelta(t, 180, r.F, 1e-9)
}

func TestDecodeInteger(t *testing.T) {
	const in = `
sense: maximize
variables:
  - {name: x, integer: true}
  - {name: y, integer: true}
  - {name: z, lower: -.inf, upper: 0}
objective: {x: 5, y: 4, z: 1}
constraints:
  - {coef: {x: 6, y: 4}, op: "<=", rhs: 24}
  - {coef: {x: 1, y: 2}, op: "<=", rhs: 6}
`
	_, p, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, p.Integer)
	assert.Equal(t, "c1", p.Cons[0].Name)

	r := solve(t, p)
	require.Equal(t, Optimal, r.Status)
	assert.InDelta(t, 20, r.F, 1e-9)
	z, _ := r.Value("z")
	assert.InDelta(t, 0, z, 1e-9)
}

func TestDecodeErrors(t *testing.T) {
	for name, in := range map[string]string{
		"unknown var":   "variables: [{name: x}]\nobjective: {y: 1}\n",
		"no variables":  "objective: {}\n",
		"duplicate":     "variables: [{name: x}, {name: x}]\n",
		"unknown op":    "variables: [{name: x}]\nconstraints: [{coef: {x: 1}, op: '<', rhs: 1}]\n",
		"unknown sense": "sense: up\nvariables: [{name: x}]\n",
		"unknown field": "variables: [{name: x, kind: int}]\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

const powercoYAML = `
name: powerco
sources: {plant1: 35, plant2: 50, plant3: 40}
sinks: {city1: 45, city2: 20, city3: 30, city4: 30}
cost:
  plant1: {city1: 8, city2: 6, city3: 10, city4: 9}
  plant2: {city1: 9, city2: 12, city3: 13, city4: 7}
  plant3: {city1: 14, city2: 9, city3: 16, city4: 5}
`

func TestDecodeTransportation(t *testing.T) {
	tr, err := DecodeTransportation(strings.NewReader(powercoYAML))
	require.NoError(t, err)
	want := powerco()
	assert.Equal(t, want.Sources, tr.Sources)
	assert.Equal(t, want.Sinks, tr.Sinks)
	assert.Equal(t, want.Supply, tr.Supply)
	assert.Equal(t, want.Demand, tr.Demand)
	assert.Equal(t, want.Cost, tr.Cost)

	plan, err := tr.Solve(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1020, plan.Cost, 1e-9)
}

func TestDecodeTransportationErrors(t *testing.T) {
	for name, in := range map[string]string{
		"missing row":  "sources: {a: 1, b: 1}\nsinks: {c: 1}\ncost: {a: {c: 1}}\n",
		"missing cell": "sources: {a: 1}\nsinks: {c: 1, d: 1}\ncost: {a: {c: 1}}\n",
		"bad source":   "sources: {a: 1}\nsinks: {c: 1}\ncost: {b: {c: 1}}\n",
		"bad sink":     "sources: {a: 1}\nsinks: {c: 1}\ncost: {a: {d: 1}}\n",
		"no sources":   "sinks: {c: 1}\ncost: {}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTransportation(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrInvalidProblem)
		})
	}
}
