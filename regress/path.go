// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regress

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/curioloop/statopt/dataset"
)

// Fit dispatches to the fitting function of kind. Lambda is ignored by the
// unpenalized kinds and rounded to the sparsity level for KindSparse.
func Fit(ctx context.Context, kind Kind, x mat.Matrix, y []float64, lambda float64, opts Options) (*Model, error) {
	switch kind {
	case KindLinear:
		return Linear(ctx, x, y, opts)
	case KindRidge:
		return Ridge(ctx, x, y, lambda, opts)
	case KindLasso:
		return Lasso(ctx, x, y, lambda, opts)
	case KindLassoBudget:
		return LassoBudget(ctx, x, y, lambda, opts)
	case KindLAD:
		return LAD(ctx, x, y, opts)
	case KindSparse:
		return Sparse(ctx, x, y, int(math.Round(lambda)), opts)
	case KindLogistic:
		c, err := Logistic(ctx, x, y, lambda, opts)
		if err != nil {
			return nil, err
		}
		return &c.Model, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Path fits kind at every value of lambdas concurrently. Models are returned
// in the order of lambdas; the first failure cancels the remaining fits.
func Path(ctx context.Context, kind Kind, x mat.Matrix, y []float64, lambdas []float64, opts Options) ([]*Model, error) {
	opts = opts.withDefaults()
	if len(lambdas) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrPenalty)
	}
	models := make([]*Model, len(lambdas))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, lambda := range lambdas {
		g.Go(func() error {
			m, err := Fit(ctx, kind, x, y, lambda, opts)
			if err != nil {
				return err
			}
			opts.Logger.Debug("path point",
				zap.String("kind", string(kind)),
				zap.Float64("lambda", lambda),
				zap.Int("support", len(m.Support(opts.ZeroTol))))
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return models, nil
}

// CVResult is the outcome of a cross-validated grid search.
type CVResult struct {
	Kind    Kind
	Lambdas []float64
	// Loss and StdErr are the mean validation loss over folds and its standard error.
	Loss   []float64
	StdErr []float64
	// Best indexes the lambda with the lowest mean loss.
	Best int
}

// BestLambda returns the lambda with the lowest mean validation loss.
func (r *CVResult) BestLambda() float64 {
	return r.Lambdas[r.Best]
}

// CrossValidate scores every lambda by k-fold cross-validation on d.
// Every (fold, lambda) pair is fitted concurrently and the first failure
// cancels the rest. With opts.Standardize each fold is fitted on its own
// standardized training rows and scored in the units of d.
func CrossValidate(ctx context.Context, kind Kind, d *dataset.Dataset, lambdas []float64, folds int, seed uint64, opts Options) (*CVResult, error) {
	opts = opts.withDefaults()
	if len(lambdas) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrPenalty)
	}
	parts, err := d.Folds(folds, seed)
	if err != nil {
		return nil, err
	}

	loss := make([][]float64, len(lambdas))
	for i := range loss {
		loss[i] = make([]float64, len(parts))
	}

	// the scaler sees the training rows of its fold only
	train := make([]*dataset.Dataset, len(parts))
	scalers := make([]*dataset.Scaler, len(parts))
	for f, part := range parts {
		train[f] = part.Train
		if opts.Standardize {
			scalers[f] = dataset.Standardize(part.Train)
			train[f] = scalers[f].Transform(part.Train)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for f, part := range parts {
		for i, lambda := range lambdas {
			g.Go(func() error {
				m, err := Fit(ctx, kind, train[f].X, train[f].Y, lambda, opts)
				if err != nil {
					return fmt.Errorf("fold %d: %w", f+1, err)
				}
				if s := scalers[f]; s != nil {
					m.Intercept, m.Coef = s.Unscale(m.Intercept, m.Coef)
				}
				loss[i][f] = m.Loss(part.Test.X, part.Test.Y)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &CVResult{
		Kind:    kind,
		Lambdas: lambdas,
		Loss:    make([]float64, len(lambdas)),
		StdErr:  make([]float64, len(lambdas)),
	}
	for i, l := range loss {
		mean, std := stat.MeanStdDev(l, nil)
		r.Loss[i], r.StdErr[i] = mean, std/math.Sqrt(float64(len(l)))
		if mean < r.Loss[r.Best] {
			r.Best = i
		}
		opts.Logger.Debug("cross-validation score",
			zap.String("kind", string(kind)),
			zap.Float64("lambda", lambdas[i]),
			zap.Float64("loss", mean),
			zap.Float64("stderr", r.StdErr[i]))
	}
	return r, nil
}
