// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"context"
	"errors"
	"math"
	"math/bits"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/statopt/dataset"
	"github.com/curioloop/statopt/numdiff"
	"github.com/curioloop/statopt/slsqp"
)

func demo(t *testing.T) *dataset.Dataset {
	t.Helper()
	d, err := dataset.Demo(dataset.DemoTarget)
	require.NoError(t, err)
	return d
}

func options(t *testing.T) Options {
	return Options{Logger: zaptest.NewLogger(t)}
}

// normalEquations solves (AᵀA + λD)θ = Aᵀy where D penalizes every column but the intercept.
func normalEquations(t *testing.T, x mat.Matrix, y []float64, lambda float64, intercept bool) []float64 {
	t.Helper()
	a := design(x, intercept)
	_, q := a.Dims()
	p := q - btoi(intercept)

	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 0; j < p; j++ {
		ata.Set(j, j, ata.At(j, j)+lambda)
	}
	var aty mat.VecDense
	aty.MulVec(a.T(), mat.NewVecDense(len(y), y))

	var theta mat.VecDense
	require.NoError(t, theta.SolveVec(&ata, &aty))
	return theta.RawVector().Data
}

// hadamard returns n rows of the ±1 columns 1, 2, 4, … of a Sylvester Hadamard matrix.
func hadamard(n, p int) *mat.Dense {
	x := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			x.Set(i, j, 1-2*float64(bits.OnesCount(uint(i&(1<<j)))))
		}
	}
	return x
}

func theta(m *Model, intercept bool) []float64 {
	if intercept {
		return append(slices.Clone(m.Coef), m.Intercept)
	}
	return slices.Clone(m.Coef)
}

func TestLinear(t *testing.T) {
	d := demo(t)
	m, err := Linear(context.Background(), d.X, d.Y, options(t))
	require.NoError(t, err)
	assert.Equal(t, KindLinear, m.Kind)
	assert.InDeltaSlice(t, normalEquations(t, d.X, d.Y, 0, true), theta(m, true), 1e-9)
	assert.InDelta(t, rss(d.X, d.Y, m), m.Objective, 1e-9)

	// the demo response is 3 + 2·x1 − 1.5·x3 + 0.8·x5 plus noise
	assert.InDelta(t, 3, m.Intercept, 0.5)
	assert.InDelta(t, 2, m.Coef[0], 0.5)
	assert.InDelta(t, -1.5, m.Coef[2], 0.5)
	assert.Greater(t, R2(d.Y, m.Predict(d.X)), 0.8)

	nm, err := Linear(context.Background(), d.X, d.Y, Options{NoIntercept: true})
	require.NoError(t, err)
	assert.Zero(t, nm.Intercept)
	assert.InDeltaSlice(t, normalEquations(t, d.X, d.Y, 0, false), nm.Coef, 1e-9)
}

func TestLinearErrors(t *testing.T) {
	_, err := Linear(context.Background(), mat.NewDense(2, 3, nil), []float64{1, 2}, Options{})
	assert.ErrorIs(t, err, ErrDimension)

	_, err = Linear(context.Background(), mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1, 2}, Options{})
	assert.ErrorIs(t, err, ErrDimension)

	// a duplicated column has no unique least squares solution
	x, y := duplicated(30, 7)
	_, err = Linear(context.Background(), x, y, options(t))
	assert.ErrorIs(t, err, ErrSingular)

	// a column equal to the intercept
	ones := mat.NewDense(4, 2, []float64{1, 1, 2, 1, 3, 1, 4, 1})
	_, err = Linear(context.Background(), ones, []float64{1, 2, 3, 5}, options(t))
	assert.ErrorIs(t, err, ErrSingular)
	m, err := Linear(context.Background(), ones, []float64{1, 2, 3, 5}, Options{NoIntercept: true})
	require.NoError(t, err)
	assert.Len(t, m.Coef, 2)
}

// duplicated draws n rows of four standard normal features with x₂ = x₁
// and the response y = x₁ + x₄ + noise.
func duplicated(n int, seed uint64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	x := mat.NewDense(n, 4, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < 4; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
		x.Set(i, 1, x.At(i, 0))
		y[i] = x.At(i, 0) + x.At(i, 3) + 0.1*rng.NormFloat64()
	}
	return x, y
}

func TestRidge(t *testing.T) {
	d := demo(t)
	for _, lambda := range []float64{0, 1, 25} {
		m, err := Ridge(context.Background(), d.X, d.Y, lambda, options(t))
		require.NoError(t, err)
		assert.Equal(t, lambda, m.Lambda)
		assert.InDeltaSlice(t, normalEquations(t, d.X, d.Y, lambda, true), theta(m, true), 1e-5)
	}

	_, err := Ridge(context.Background(), d.X, d.Y, -1, Options{})
	assert.ErrorIs(t, err, ErrPenalty)
}

func TestRidgeShrinks(t *testing.T) {
	d := demo(t)
	models, err := Path(context.Background(), KindRidge, d.X, d.Y, []float64{0, 10, 100, 1000}, options(t))
	require.NoError(t, err)
	require.Len(t, models, 4)
	for i := 1; i < len(models); i++ {
		assert.Equal(t, []float64{0, 10, 100, 1000}[i], models[i].Lambda)
		assert.Less(t, floats.Norm(models[i].Coef, 2), floats.Norm(models[i-1].Coef, 2))
	}
}

func TestLassoOrthogonal(t *testing.T) {
	// with XᵀX = 8I the lasso is soft thresholding of Xᵀy at λ/2
	x := hadamard(8, 3)
	y := []float64{3, 1, -2, 0.5, 4, -1, 2, 0}
	const lambda = 6.0

	m, err := Lasso(context.Background(), x, y, lambda, Options{NoIntercept: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	z := make([]float64, 3)
	mat.NewVecDense(3, z).MulVec(x.T(), mat.NewVecDense(8, y))
	want := make([]float64, 3)
	for j, v := range z {
		want[j] = math.Copysign(math.Max(math.Abs(v)-lambda/2, 0), v) / 8
	}
	assert.InDeltaSlice(t, want, m.Coef, 1e-6)
	assert.Equal(t, []int{0, 1}, m.Support(0))
	assert.Zero(t, m.Coef[2])
}

func TestLassoOptimality(t *testing.T) {
	d := demo(t)
	const lambda = 20.0
	m, err := Lasso(context.Background(), d.X, d.Y, lambda, options(t))
	require.NoError(t, err)

	// subgradient conditions: 2xⱼᵀr = λ·sign(βⱼ) on the support, |2xⱼᵀr| ≤ λ elsewhere
	r := m.Predict(d.X)
	floats.SubTo(r, d.Y, r)
	assert.InDelta(t, 0, floats.Sum(r), 1e-3)

	n, p := d.Dims()
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, d.X)
		c := 2 * floats.Dot(col, r)
		if m.Coef[j] != 0 {
			assert.InDelta(t, lambda*math.Copysign(1, m.Coef[j]), c, 1e-2, "feature %d", j)
		} else {
			assert.LessOrEqual(t, math.Abs(c), lambda+1e-2, "feature %d", j)
		}
	}
}

func TestLassoSparsifies(t *testing.T) {
	d := demo(t)
	small, err := Lasso(context.Background(), d.X, d.Y, 1, options(t))
	require.NoError(t, err)
	large, err := Lasso(context.Background(), d.X, d.Y, 150, options(t))
	require.NoError(t, err)
	assert.Less(t, len(large.Support(0)), len(small.Support(0)))
	assert.Contains(t, large.Support(0), 0)
}

func TestLassoMatchesBudget(t *testing.T) {
	// the penalized and constrained forms agree at t = ‖β̂(λ)‖₁
	d := demo(t)
	pen, err := Lasso(context.Background(), d.X, d.Y, 40, options(t))
	require.NoError(t, err)
	con, err := LassoBudget(context.Background(), d.X, d.Y, floats.Norm(pen.Coef, 1), options(t))
	require.NoError(t, err)
	assert.InDeltaSlice(t, theta(pen, true), theta(con, true), 1e-3)
}

func TestLassoBudget(t *testing.T) {
	d := demo(t)
	ols, err := Linear(context.Background(), d.X, d.Y, Options{})
	require.NoError(t, err)
	norm := floats.Norm(ols.Coef, 1)

	loose, err := LassoBudget(context.Background(), d.X, d.Y, 2*norm, options(t))
	require.NoError(t, err)
	assert.InDeltaSlice(t, theta(ols, true), theta(loose, true), 1e-4)

	tight, err := LassoBudget(context.Background(), d.X, d.Y, norm/2, options(t))
	require.NoError(t, err)
	assert.InDelta(t, norm/2, floats.Norm(tight.Coef, 1), 1e-4)
	assert.Greater(t, tight.Objective, ols.Objective)
}

func TestLAD(t *testing.T) {
	x := mat.NewDense(10, 1, nil)
	y := make([]float64, 10)
	for i := range y {
		x.Set(i, 0, float64(i))
		y[i] = 1 + 2*float64(i)
	}
	y[9] += 100

	m, err := LAD(context.Background(), x, y, options(t))
	require.NoError(t, err)
	assert.InDelta(t, 1, m.Intercept, 1e-6)
	assert.InDeltaSlice(t, []float64{2}, m.Coef, 1e-6)
	assert.InDelta(t, 100, m.Objective, 1e-6)

	ols, err := Linear(context.Background(), x, y, Options{})
	require.NoError(t, err)
	assert.Greater(t, math.Abs(ols.Coef[0]-2), 1.0)
}

// bestSubset enumerates every support of size at most k.
func bestSubset(t *testing.T, x mat.Matrix, y []float64, k int) (support []int, best float64) {
	_, p := x.Dims()
	best = math.Inf(1)
	s := &subset{x: x, y: y, p: p, k: k, intercept: true, opts: Options{}.withDefaults()}
	for mask := 0; mask < 1<<p; mask++ {
		if bits.OnesCount(uint(mask)) > k {
			continue
		}
		var cols []int
		for j := 0; j < p; j++ {
			if mask&(1<<j) != 0 {
				cols = append(cols, j)
			}
		}
		m, err := s.refit(context.Background(), cols)
		if errors.Is(err, ErrSingular) {
			continue
		}
		require.NoError(t, err)
		if m.Objective < best {
			support, best = cols, m.Objective
		}
	}
	return support, best
}

func TestSparse(t *testing.T) {
	d := demo(t)
	for _, k := range []int{1, 2, 3} {
		m, err := Sparse(context.Background(), d.X, d.Y, k, options(t))
		require.NoError(t, err)

		support, best := bestSubset(t, d.X, d.Y, k)
		assert.Equal(t, support, m.Support(0), "k=%d", k)
		assert.InDelta(t, best, m.Objective, 1e-6*best, "k=%d", k)
		assert.Equal(t, float64(k), m.Lambda)
		assert.Positive(t, m.Iterations)
	}
}

func TestSparseSynthetic(t *testing.T) {
	d, truth, err := dataset.Synthetic(80, 7, 3, 0.1, 11)
	require.NoError(t, err)
	m, err := Sparse(context.Background(), d.X, d.Y, 3, options(t))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, m.Support(0))
	assert.InDeltaSlice(t, truth.Coef, m.Coef, 0.1)
}

func TestSparseDuplicatedColumn(t *testing.T) {
	x, y := duplicated(30, 7)
	m, err := Sparse(context.Background(), x, y, 2, options(t))
	require.NoError(t, err)

	_, best := bestSubset(t, x, y, 2)
	assert.Contains(t, [][]int{{0, 3}, {1, 3}}, m.Support(0))
	assert.InDelta(t, best, m.Objective, 1e-6*best)
	assert.InDelta(t, 1, floats.Sum(m.Coef[:2]), 0.1)
	assert.InDelta(t, 1, m.Coef[3], 0.1)
}

func TestSparseWide(t *testing.T) {
	const n, p = 10, 12
	rng := rand.New(rand.NewPCG(3, 5))
	x := mat.NewDense(n, p, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
		y[i] = 1 + 3*x.At(i, 2) - 2*x.At(i, 7) + 0.05*rng.NormFloat64()
	}
	_, err := Linear(context.Background(), x, y, Options{})
	require.ErrorIs(t, err, ErrDimension)

	m, err := Sparse(context.Background(), x, y, 2, options(t))
	require.NoError(t, err)
	support, best := bestSubset(t, x, y, 2)
	assert.Equal(t, []int{2, 7}, support)
	assert.Equal(t, support, m.Support(0))
	assert.InDelta(t, best, m.Objective, 1e-6*best)
}

func TestSparseRelaxationNotConverged(t *testing.T) {
	d := demo(t)
	opts := options(t)
	opts.BigM = 10
	opts.Stop = slsqp.Termination{Accuracy: 1e-10, MaxIterations: 1}
	m, err := Sparse(context.Background(), d.X, d.Y, 2, opts)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Nil(t, m)
}

func TestSparseEdges(t *testing.T) {
	d := demo(t)

	m, err := Sparse(context.Background(), d.X, d.Y, 0, options(t))
	require.NoError(t, err)
	assert.Empty(t, m.Support(0))
	assert.InDelta(t, floats.Sum(d.Y)/float64(len(d.Y)), m.Intercept, 1e-9)

	full, err := Sparse(context.Background(), d.X, d.Y, 6, options(t))
	require.NoError(t, err)
	ols, err := Linear(context.Background(), d.X, d.Y, Options{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, ols.Coef, full.Coef, 1e-12)

	_, err = Sparse(context.Background(), d.X, d.Y, -1, Options{})
	assert.ErrorIs(t, err, ErrPenalty)
}

func TestLogistic(t *testing.T) {
	d, err := dataset.Demo(dataset.DemoLabel)
	require.NoError(t, err)
	const lambda = 0.01

	c, err := Logistic(context.Background(), d.X, d.Y, lambda, options(t))
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, c.Kind)

	// the gradient of the penalized mean log-loss vanishes at the optimum
	n, p := d.Dims()
	prob := c.Probability(d.X)
	grad := make([]float64, p+1)
	for i := 0; i < n; i++ {
		r := prob[i] - d.Y[i]
		for j := 0; j < p; j++ {
			grad[j] += r * d.X.At(i, j) / float64(n)
		}
		grad[p] += r / float64(n)
	}
	for j := 0; j < p; j++ {
		grad[j] += lambda * c.Coef[j]
	}
	assert.InDeltaSlice(t, make([]float64, p+1), grad, 1e-6)

	// labels follow sigmoid(0.5 + 1.8·x1 − 1.2·x2)
	assert.Positive(t, c.Coef[0])
	assert.Negative(t, c.Coef[1])
	assert.Greater(t, Accuracy(d.Y, c.Classify(d.X, 0.5)), 0.7)
	assert.InDelta(t, c.Loss(d.X, d.Y)+0.5*lambda*floats.Dot(c.Coef, c.Coef), c.Objective, 1e-9)
}

func TestLogisticStdErr(t *testing.T) {
	d, err := dataset.Demo(dataset.DemoLabel)
	require.NoError(t, err)
	const lambda = 0.01
	c, err := Logistic(context.Background(), d.X, d.Y, lambda, options(t))
	require.NoError(t, err)
	require.NotNil(t, c.StdErr)

	// observed information Σ pᵢ(1 − pᵢ)aᵢaᵢᵀ plus the penalty on β
	n, p := d.Dims()
	a := design(d.X, true)
	prob := c.Probability(d.X)
	info := mat.NewSymDense(p+1, nil)
	for i := 0; i < n; i++ {
		info.SymRankOne(info, prob[i]*(1-prob[i]), a.RowView(i))
	}
	for j := 0; j < p; j++ {
		info.SetSym(j, j, info.At(j, j)+float64(n)*lambda)
	}
	var chol mat.Cholesky
	require.True(t, chol.Factorize(info))
	var cov mat.SymDense
	require.NoError(t, chol.InverseTo(&cov))
	for j := 0; j < p; j++ {
		assert.InEpsilon(t, math.Sqrt(cov.At(j, j)), c.StdErr[j], 1e-4)
	}
	assert.InEpsilon(t, math.Sqrt(cov.At(p, p)), c.InterceptStdErr, 1e-4)
}

func TestClassifierUnscale(t *testing.T) {
	d, err := dataset.Demo(dataset.DemoLabel)
	require.NoError(t, err)
	raw, err := Logistic(context.Background(), d.X, d.Y, 0, options(t))
	require.NoError(t, err)

	s := dataset.Standardize(d)
	sd := s.Transform(d)
	c, err := Logistic(context.Background(), sd.X, sd.Y, 0, options(t))
	require.NoError(t, err)
	c.Unscale(s)

	assert.InDeltaSlice(t, raw.Coef, c.Coef, 1e-4)
	assert.InDelta(t, raw.Intercept, c.Intercept, 1e-4)
	assert.InEpsilonSlice(t, raw.StdErr, c.StdErr, 1e-3)
	assert.InEpsilon(t, raw.InterceptStdErr, c.InterceptStdErr, 1e-3)
}

func TestGradients(t *testing.T) {
	d := demo(t)
	n, p := d.Dims()
	a := design(d.X, true)
	theta := []float64{0.3, -0.2, 0.1, 0.5, -0.4, 0.2, 1.5}

	check := func(name string, f func(x, g []float64) float64) {
		approx := numdiff.Gradient(p+1, func(x []float64) float64 { return f(x, nil) }, numdiff.Central, nil)
		want, got := make([]float64, p+1), make([]float64, p+1)
		assert.InDelta(t, f(theta, got), approx(theta, want), 1e-12, name)
		for j := range want {
			assert.InDelta(t, want[j], got[j], 1e-5*math.Max(1, math.Abs(want[j])), "%s ∂%d", name, j)
		}
	}

	ls := newLeastSquares(a, d.Y)
	check("least squares", ls.eval)

	labels, err := dataset.Demo(dataset.DemoLabel)
	require.NoError(t, err)
	ll := &logLoss{
		a:      design(labels.X, true),
		y:      labels.Y,
		p:      p,
		lambda: 0.1,
		eta:    mat.NewVecDense(n, nil),
		resid:  mat.NewVecDense(n, nil),
	}
	check("log-loss", func(x, g []float64) float64 {
		if g != nil {
			ll.grad(g, x)
		}
		return ll.fn(x)
	})
}

func TestLogisticLabels(t *testing.T) {
	d := demo(t)
	_, err := Logistic(context.Background(), d.X, d.Y, 1, Options{})
	assert.ErrorIs(t, err, ErrLabel)
}

func TestLogisticSynthetic(t *testing.T) {
	d, truth, err := dataset.SyntheticLogistic(2000, 3, 5)
	require.NoError(t, err)
	c, err := Logistic(context.Background(), d.X, d.Y, 0, options(t))
	require.NoError(t, err)
	assert.InDeltaSlice(t, truth.Coef, c.Coef, 0.5)
	assert.InDelta(t, truth.Intercept, c.Intercept, 0.3)
}

func TestCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := demo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Ridge(ctx, d.X, d.Y, 1, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = Lasso(ctx, d.X, d.Y, 1, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = Sparse(ctx, d.X, d.Y, 2, Options{BigM: 10})
	assert.ErrorIs(t, err, context.Canceled)

	ld, err := dataset.Demo(dataset.DemoLabel)
	require.NoError(t, err)
	_, err = Logistic(ctx, ld.X, ld.Y, 1, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitDispatch(t *testing.T) {
	d := demo(t)
	for _, k := range []Kind{KindLinear, KindRidge, KindLasso, KindLassoBudget, KindLAD, KindSparse} {
		m, err := Fit(context.Background(), k, d.X, d.Y, 2, options(t))
		require.NoError(t, err, k)
		assert.Equal(t, k, m.Kind)
		assert.Len(t, m.Coef, 6)
	}
	_, err := Fit(context.Background(), Kind("tree"), d.X, d.Y, 0, Options{})
	assert.ErrorIs(t, err, ErrUnknownKind)

	k, err := ParseKind("lasso-budget")
	require.NoError(t, err)
	assert.Equal(t, KindLassoBudget, k)
	assert.True(t, k.Penalized())
	assert.False(t, KindLAD.Penalized())
	_, err = ParseKind("forest")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCrossValidate(t *testing.T) {
	d := demo(t)
	lambdas := []float64{0.1, 10, 1000}
	r, err := CrossValidate(context.Background(), KindRidge, d, lambdas, 5, 3, options(t))
	require.NoError(t, err)
	require.Len(t, r.Loss, 3)
	require.Len(t, r.StdErr, 3)
	assert.Equal(t, r.Loss[r.Best], floats.Min(r.Loss))
	// a huge penalty shrinks the signal away
	assert.NotEqual(t, 2, r.Best)
	assert.Greater(t, r.Loss[2], r.Loss[0])

	// the same folds scored by hand
	folds, err := d.Folds(5, 3)
	require.NoError(t, err)
	manual := 0.0
	for _, f := range folds {
		m, err := Ridge(context.Background(), f.Train.X, f.Train.Y, 10, Options{})
		require.NoError(t, err)
		manual += MSE(f.Test.Y, m.Predict(f.Test.X)) / 5
	}
	assert.InDelta(t, manual, r.Loss[1], 1e-6)
	assert.Equal(t, lambdas[r.Best], r.BestLambda())

	_, err = CrossValidate(context.Background(), KindRidge, d, nil, 5, 3, Options{})
	assert.ErrorIs(t, err, ErrPenalty)
}

func TestPathFailFast(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := demo(t)
	opts := options(t)
	opts.Workers = 1

	models, err := Path(context.Background(), KindRidge, d.X, d.Y, []float64{-1, 1, 10, 100}, opts)
	assert.ErrorIs(t, err, ErrPenalty)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Nil(t, models)

	models, err = Path(context.Background(), KindLasso, d.X, d.Y, []float64{0.1, 1, 10}, opts)
	require.NoError(t, err)
	require.Len(t, models, 3)
	for i, m := range models {
		assert.Equal(t, []float64{0.1, 1, 10}[i], m.Lambda)
	}
}

func TestCrossValidateFailFast(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := demo(t)
	r, err := CrossValidate(context.Background(), KindRidge, d, []float64{1, -1, 10}, 5, 3, options(t))
	assert.ErrorIs(t, err, ErrPenalty)
	assert.ErrorContains(t, err, "fold")
	assert.Nil(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err = CrossValidate(ctx, KindLasso, d, []float64{1, 10}, 5, 3, options(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, r)
}

func TestCrossValidateStandardized(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := demo(t)
	opts := options(t)
	opts.Standardize = true
	r, err := CrossValidate(context.Background(), KindRidge, d, []float64{10}, 5, 3, opts)
	require.NoError(t, err)

	// every fold is scaled by its own training rows
	folds, err := d.Folds(5, 3)
	require.NoError(t, err)
	manual := 0.0
	for _, f := range folds {
		s := dataset.Standardize(f.Train)
		train := s.Transform(f.Train)
		m, err := Ridge(context.Background(), train.X, train.Y, 10, Options{})
		require.NoError(t, err)
		manual += MSE(f.Test.Y, m.Predict(s.Transform(f.Test).X)) / 5
	}
	assert.InDelta(t, manual, r.Loss[0], 1e-6)
}

func TestMetrics(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	assert.InDelta(t, 0.25, MSE(y, []float64{1, 2, 3, 5}), 1e-12)
	assert.InDelta(t, 1, R2(y, y), 1e-12)
	assert.InDelta(t, 0.75, Accuracy([]float64{1, 0, 1, 1}, []float64{1, 0, 0, 1}), 1e-12)
	assert.InDelta(t, math.Log(2), LogLoss([]float64{0, 1}, []float64{0.5, 0.5}), 1e-12)
	assert.Less(t, LogLoss([]float64{0, 1}, []float64{0, 1}), 1e-12)
}
