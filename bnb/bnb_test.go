// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bnb

import (
	"context"
	"math"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type knapsack struct {
	value, weight []float64
	capacity      float64
}

// relax solves the fractional knapsack with fixed items by the greedy ratio rule.
func (k knapsack) relax(_ context.Context, lower, upper []float64) (Relaxed, error) {
	n := len(k.value)
	x := make([]float64, n)
	room := k.capacity
	for i := range x {
		x[i] = lower[i]
		room -= lower[i] * k.weight[i]
	}
	if room < 0 {
		return Relaxed{}, ErrInfeasible
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		return k.value[i]/k.weight[i] > k.value[j]/k.weight[j]
	})
	for _, i := range order {
		free := upper[i] - x[i]
		if free <= 0 || room <= 0 {
			continue
		}
		take := math.Min(free, room/k.weight[i])
		x[i] += take
		room -= take * k.weight[i]
	}
	f := 0.0
	for i := range x {
		f -= k.value[i] * x[i]
	}
	return Relaxed{F: f, X: x}, nil
}

// bruteForce enumerates every subset.
func (k knapsack) bruteForce() float64 {
	n := len(k.value)
	best := 0.0
	for mask := 0; mask < 1<<n; mask++ {
		v, w := 0.0, 0.0
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				v += k.value[i]
				w += k.weight[i]
			}
		}
		if w <= k.capacity && v > best {
			best = v
		}
	}
	return -best
}

func (k knapsack) problem(t *testing.T) *Problem {
	n := len(k.value)
	p := &Problem{
		N:      n,
		Lower:  make([]float64, n),
		Upper:  slices.Repeat([]float64{1}, n),
		Relax:  k.relax,
		Logger: zaptest.NewLogger(t),
	}
	for i := 0; i < n; i++ {
		p.Integer = append(p.Integer, i)
	}
	return p
}

func TestKnapsack(t *testing.T) {
	cases := map[string]knapsack{
		"small": {
			value:    []float64{60, 100, 120},
			weight:   []float64{10, 20, 30},
			capacity: 50,
		},
		"medium": {
			value:    []float64{92, 57, 49, 68, 60, 43, 67, 84, 87, 72},
			weight:   []float64{23, 31, 29, 44, 53, 38, 63, 85, 89, 82},
			capacity: 165,
		},
	}
	for name, k := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := k.problem(t).Solve(context.Background())
			require.NoError(t, err)
			require.Equal(t, Optimal, r.Status)
			assert.InDelta(t, k.bruteForce(), r.F, 1e-9)
			assert.InDelta(t, r.F, r.Bound, 1e-9)

			w := 0.0
			for i, x := range r.X {
				assert.True(t, x == 0 || x == 1, "x[%d] = %v", i, x)
				w += x * k.weight[i]
			}
			assert.LessOrEqual(t, w, k.capacity)
		})
	}
}

func TestHeuristicIncumbent(t *testing.T) {
	k := knapsack{
		value:    []float64{92, 57, 49, 68, 60, 43, 67, 84, 87, 72},
		weight:   []float64{23, 31, 29, 44, 53, 38, 63, 85, 89, 82},
		capacity: 165,
	}
	rounding := func(_ context.Context, x []float64) (Relaxed, bool) {
		y := make([]float64, len(x))
		f := 0.0
		for i, v := range x {
			y[i] = math.Floor(v)
			f -= y[i] * k.value[i]
		}
		return Relaxed{F: f, X: y}, true
	}

	plain, err := k.problem(t).Solve(context.Background())
	require.NoError(t, err)

	p := k.problem(t)
	p.Heuristic = rounding
	r, err := p.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Optimal, r.Status)
	assert.InDelta(t, plain.F, r.F, 1e-9)
	assert.LessOrEqual(t, r.Nodes, plain.Nodes)
}

func TestInfeasible(t *testing.T) {
	// x integer in [0.2, 0.8] has no integral point
	p := &Problem{
		N:       1,
		Integer: []int{0},
		Lower:   []float64{0.2},
		Upper:   []float64{0.8},
		Relax: func(_ context.Context, lower, upper []float64) (Relaxed, error) {
			if lower[0] > upper[0] {
				return Relaxed{}, ErrInfeasible
			}
			return Relaxed{F: lower[0], X: []float64{lower[0]}}, nil
		},
	}
	r, err := p.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Infeasible, r.Status)
	assert.False(t, r.HasSolution())
	assert.True(t, math.IsInf(r.F, 1))
}

func TestNodeLimit(t *testing.T) {
	k := knapsack{
		value:    []float64{92, 57, 49, 68, 60, 43, 67, 84, 87, 72},
		weight:   []float64{23, 31, 29, 44, 53, 38, 63, 85, 89, 82},
		capacity: 165,
	}
	p := k.problem(t)
	// the root and its down branch, the up branch is never solved
	p.Stop = Termination{MaxNodes: 2}
	r, err := p.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NodeLimit, r.Status)
	assert.Equal(t, 2, r.Nodes)
	assert.True(t, r.HasSolution())
	assert.LessOrEqual(t, r.Bound, k.bruteForce()+1e-9)
}

func TestCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)
	k := knapsack{
		value:    []float64{60, 100, 120},
		weight:   []float64{10, 20, 30},
		capacity: 50,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := k.problem(t).Solve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate(t *testing.T) {
	relax := func(context.Context, []float64, []float64) (Relaxed, error) { return Relaxed{}, nil }
	for name, p := range map[string]Problem{
		"dimension": {N: 0, Relax: relax},
		"relax":     {N: 1, Lower: []float64{0}, Upper: []float64{1}},
		"bounds":    {N: 2, Relax: relax, Lower: []float64{0}, Upper: []float64{1}},
		"index":     {N: 1, Relax: relax, Lower: []float64{0}, Upper: []float64{1}, Integer: []int{3}},
		"empty":     {N: 1, Relax: relax, Lower: []float64{2}, Upper: []float64{1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Solve(context.Background())
			assert.ErrorIs(t, err, ErrInvalidProblem)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "optimal", Optimal.String())
	assert.Equal(t, "node limit", NodeLimit.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}
