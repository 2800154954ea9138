// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eval joins a value function and its derivative into an Evaluation.
func eval(f func(x []float64) float64, d func(x, g []float64)) Evaluation {
	return func(x, g []float64) float64 {
		if g != nil {
			d(x, g)
		}
		return f(x)
	}
}

func fit(t *testing.T, p Problem, x []float64) *Result {
	t.Helper()
	s, err := p.New()
	require.NoError(t, err)
	r, err := s.Fit(context.Background(), x, s.Init())
	require.NoError(t, err)
	return r
}

// Case Sources : https://github.com/jacobwilliams/slsqp/blob/master/test/slsqp_test.f90
func TestRosenbrock(t *testing.T) {
	objective := eval(func(x []float64) float64 {
		return 100.0*math.Pow(x[1]-math.Pow(x[0], 2), 2) + math.Pow(1.0-x[0], 2)
	}, func(x, d []float64) {
		d[0] = -400.0*(x[1]-math.Pow(x[0], 2))*x[0] - 2.0*(1.0-x[0])
		d[1] = 200.0 * (x[1] - math.Pow(x[0], 2))
	})
	unitDisk := eval(func(x []float64) float64 {
		return 1.0 - math.Pow(x[0], 2) - math.Pow(x[1], 2)
	}, func(x, d []float64) {
		d[0] = -2.0 * x[0]
		d[1] = -2.0 * x[1]
	})

	r := fit(t, Problem{
		N:       2,
		Object:  objective,
		NeqCons: []Evaluation{unitDisk},
		Stop:    Termination{Accuracy: 1e-8, MaxIterations: 50},
		Bounds:  []Bound{{-1, 1}, {-1, 1}},
	}, []float64{0.1, 0.1})

	require.True(t, r.OK, r.Status.String())
	assert.InDeltaSlice(t, []float64{0.7864151509718389, 0.6176983165954114}, r.X, 1e-6)
	assert.InDelta(t, 0.0456748087191604, r.F, 1e-8)
	assert.Equal(t, OK, r.Status)
}

// Case Sources : https://github.com/jacobwilliams/slsqp/blob/master/test/slsqp_test_71.f90
func TestProb71(t *testing.T) {
	obj := eval(func(x []float64) float64 {
		return x[0]*x[3]*(x[0]+x[1]+x[2]) + x[2]
	}, func(x, d []float64) {
		d[0] = x[3] * (2.0*x[0] + x[1] + x[2])
		d[1] = x[0] * x[3]
		d[2] = x[0]*x[3] + 1.0
		d[3] = x[0] * (x[0] + x[1] + x[2])
		d[4] = 0.0
	})
	cons1 := eval(func(x []float64) float64 {
		return x[0]*x[1]*x[2]*x[3] - x[4] - 25
	}, func(x, d []float64) {
		d[0] = x[1] * x[2] * x[3]
		d[1] = x[0] * x[2] * x[3]
		d[2] = x[0] * x[1] * x[3]
		d[3] = x[0] * x[1] * x[2]
		d[4] = -1
	})
	cons2 := eval(func(x []float64) float64 {
		return x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3] - 40
	}, func(x, d []float64) {
		d[0], d[1], d[2], d[3], d[4] = 2*x[0], 2*x[1], 2*x[2], 2*x[3], 0
	})

	r := fit(t, Problem{
		N:      5,
		Object: obj,
		EqCons: []Evaluation{cons1, cons2},
		Stop:   Termination{Accuracy: 1e-8, MaxIterations: 50},
		Bounds: []Bound{{1, 5}, {1, 5}, {1, 5}, {1, 5}, {0, 1e10}},
	}, []float64{1, 5, 5, 1, -24})

	require.True(t, r.OK, r.Status.String())
	assert.InDeltaSlice(t, []float64{1, 4.7429996586260321, 3.8211499562762130, 1.3794082970345380, 0}, r.X, 1e-5)
	assert.InDelta(t, 17.0140172891520542, r.F, 1e-6)
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test_slsqp.py (test_bounds_clipping)
func TestBoundClip(t *testing.T) {
	obj := eval(func(x []float64) float64 {
		return (x[0] - 1) * (x[0] - 1)
	}, func(x, d []float64) {
		d[0] = 2*x[0] - 2
	})

	tests := []struct {
		init    float64
		bnd     Bound
		desired float64
	}{
		{10, Bound{math.NaN(), 0}, 0},
		{-10, Bound{2, math.NaN()}, 2},
		{-10, Bound{math.NaN(), 0}, 0},
		{10, Bound{2, math.NaN()}, 2},
		{-0.5, Bound{-1, 0}, 0},
		{10, Bound{-1, 0}, 0},
	}

	for _, tt := range tests {
		r := fit(t, Problem{
			N:      1,
			Object: obj,
			Bounds: []Bound{tt.bnd},
			Stop:   Termination{Accuracy: 1e-6, MaxIterations: 50},
		}, []float64{tt.init})
		require.True(t, r.OK, r.Status.String())
		assert.InDelta(t, tt.desired, r.X[0], 1e-6)
	}
}

func TestInconsistentCons(t *testing.T) {
	obj := eval(func(x []float64) float64 {
		return -1*x[0] + 4*x[1]
	}, func(x, d []float64) {
		d[0], d[1] = -1, 4
	})
	cons1 := eval(func(x []float64) float64 {
		return x[1] - x[0] - 1
	}, func(x, d []float64) {
		d[0], d[1] = -1, 1
	})
	cons2 := eval(func(x []float64) float64 {
		return x[0] - x[1]
	}, func(x, d []float64) {
		d[0], d[1] = 1, -1
	})

	r := fit(t, Problem{
		N:       2,
		Object:  obj,
		NeqCons: []Evaluation{cons1, cons2},
		Stop:    Termination{Accuracy: 1e-6, MaxIterations: 50},
		Bounds:  []Bound{{-5, 5}, {-5, 5}},
	}, []float64{1, 5})

	assert.False(t, r.OK)
	assert.NotEqual(t, OK, r.Status)
}

// A ridge-type quadratic program: min |Ax - b|² + |x|² has the closed form (AᵀA + I)⁻¹Aᵀb.
func TestQuadraticProgram(t *testing.T) {
	a := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	b := []float64{1, 2, 4}

	obj := func(x, g []float64) float64 {
		if g != nil {
			g[0], g[1] = 2*x[0], 2*x[1]
		}
		f := x[0]*x[0] + x[1]*x[1]
		for i, row := range a {
			r := row[0]*x[0] + row[1]*x[1] - b[i]
			f += r * r
			if g != nil {
				g[0] += 2 * r * row[0]
				g[1] += 2 * r * row[1]
			}
		}
		return f
	}

	r := fit(t, Problem{N: 2, Object: obj, Stop: DefaultTermination()}, []float64{0, 0})
	require.True(t, r.OK, r.Status.String())

	// AᵀA + I = [[36, 44], [44, 57]], Aᵀb = [27, 34]
	det := 36.0*57 - 44*44
	want := []float64{(57*27 - 44*34) / det, (36*34 - 44*27) / det}
	assert.InDeltaSlice(t, want, r.X, 1e-6)
}

// min (x-2)² + (y-1)² subject to x + y ≤ 2 is solved at (1.5, 0.5).
func TestExactLineSearch(t *testing.T) {
	obj := eval(func(x []float64) float64 {
		return (x[0]-2)*(x[0]-2) + (x[1]-1)*(x[1]-1)
	}, func(x, d []float64) {
		d[0], d[1] = 2*(x[0]-2), 2*(x[1]-1)
	})
	budget := eval(func(x []float64) float64 {
		return 2 - x[0] - x[1]
	}, func(x, d []float64) {
		d[0], d[1] = -1, -1
	})

	for _, exact := range []bool{false, true} {
		r := fit(t, Problem{
			N:       2,
			Object:  obj,
			NeqCons: []Evaluation{budget},
			Line:    LineSearch{Exact: exact},
			Stop:    Termination{Accuracy: 1e-10, MaxIterations: 100},
		}, []float64{0, 0})
		require.True(t, r.OK, r.Status.String())
		assert.InDeltaSlice(t, []float64{1.5, 0.5}, r.X, 1e-6)
		assert.InDelta(t, 0.5, r.F, 1e-6)
	}
}

func TestWorkspaceReuse(t *testing.T) {
	obj := eval(func(x []float64) float64 {
		return (x[0]-1)*(x[0]-1) + 3*(x[1]+2)*(x[1]+2)
	}, func(x, d []float64) {
		d[0], d[1] = 2*(x[0]-1), 6*(x[1]+2)
	})
	o, err := (&Problem{N: 2, Object: obj, Stop: DefaultTermination()}).New()
	require.NoError(t, err)
	w := o.Init()
	first, err := o.Fit(context.Background(), []float64{5, 5}, w)
	require.NoError(t, err)
	second, err := o.Fit(context.Background(), []float64{5, 5}, w)
	require.NoError(t, err)
	assert.Equal(t, first.X, second.X)
	assert.Equal(t, first.NumIter, second.NumIter)
	assert.InDeltaSlice(t, []float64{1, -2}, first.X, 1e-6)
}

func TestFitDimension(t *testing.T) {
	obj := func(x, g []float64) float64 { return 0 }
	stop := Termination{Accuracy: 1e-6, MaxIterations: 10}
	o, err := (&Problem{N: 2, Object: obj, Stop: stop}).New()
	require.NoError(t, err)

	_, err = o.Fit(context.Background(), []float64{1}, o.Init())
	assert.ErrorIs(t, err, ErrInvalidProblem)

	other, err := (&Problem{N: 2, Object: obj, Stop: stop, NeqCons: []Evaluation{obj}}).New()
	require.NoError(t, err)
	_, err = o.Fit(context.Background(), []float64{1, 1}, other.Init())
	assert.ErrorIs(t, err, ErrInvalidProblem)
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Problem{
		N:      1,
		Object: func(x, g []float64) float64 { return x[0] * x[0] },
		Stop:   Termination{Accuracy: 1e-6, MaxIterations: 50},
	}
	r, err := p.Solve(ctx, []float64{3})
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, Canceled, r.Status)
	assert.Equal(t, "canceled", r.Status.String())
}

func TestPanicIsBadArgument(t *testing.T) {
	p := Problem{
		N:      1,
		Object: func(x, g []float64) float64 { panic("boom") },
		Stop:   Termination{Accuracy: 1e-6, MaxIterations: 50},
	}
	r, err := p.Solve(context.Background(), []float64{3})
	require.NoError(t, err)
	assert.Equal(t, BadArgument, r.Status)
}

func TestProblemValidation(t *testing.T) {
	obj := func(x, g []float64) float64 { return 0 }
	stop := Termination{Accuracy: 1e-6, MaxIterations: 10}

	tests := map[string]Problem{
		"dimension":  {N: 0, Object: obj, Stop: stop},
		"objective":  {N: 1, Stop: stop},
		"iterations": {N: 1, Object: obj, Stop: Termination{Accuracy: 1e-6}},
		"accuracy":   {N: 1, Object: obj, Stop: Termination{MaxIterations: 10}},
		"bound size": {N: 2, Object: obj, Stop: stop, Bounds: []Bound{{0, 1}}},
		"bound":      {N: 1, Object: obj, Stop: stop, Bounds: []Bound{{1, 0}}},
		"nil cons":   {N: 1, Object: obj, Stop: stop, NeqCons: []Evaluation{nil}},
		"nil eq":     {N: 2, Object: obj, Stop: stop, EqCons: []Evaluation{obj, nil}},
		"too many eq": {N: 1, Object: obj, Stop: stop,
			EqCons: []Evaluation{obj, obj}},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.New()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProblem))
		})
	}

	_, err := (&Problem{N: 2, Object: obj, Stop: stop, EqCons: []Evaluation{obj, nil}}).New()
	assert.ErrorContains(t, err, "equality constraint 1 is nil")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "converged", OK.String())
	assert.Equal(t, "iteration limit", SQPExceedMaxIter.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
