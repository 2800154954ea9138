// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package notebook runs the worked examples: a production plan LP, a capital
// budgeting MILP, the transportation problem and every regression model on
// the embedded demo data. The Runner methods are shared with the statopt
// command so files and datasets given on the command line print the same way.
package notebook

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/curioloop/statopt/config"
	"github.com/curioloop/statopt/dataset"
	"github.com/curioloop/statopt/lp"
	"github.com/curioloop/statopt/regress"
)

//go:embed models/*.yaml
var models embed.FS

var ErrUnknownExample = errors.New("unknown example")

// Model decodes the embedded linear program name, e.g. "giapetto".
func Model(name string) (*lp.File, *lp.Problem, error) {
	f, err := models.Open("models/" + name + ".yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExample, name)
	}
	defer f.Close()
	return lp.Decode(f)
}

// Transportation decodes the embedded transportation problem name.
func Transportation(name string) (*lp.Transportation, error) {
	f, err := models.Open("models/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExample, name)
	}
	defer f.Close()
	return lp.DecodeTransportation(f)
}

// Runner solves and prints to Out.
type Runner struct {
	Out    io.Writer
	Config *config.Config
	Logger *zap.Logger
}

// New returns a runner with the default config and a no-op logger for nil arguments.
func New(out io.Writer, cfg *config.Config, logger *zap.Logger) *Runner {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Out: out, Config: cfg, Logger: logger}
}

func (r *Runner) options() regress.Options {
	return r.Config.Options(r.Logger)
}

func (r *Runner) configure(p *lp.Problem) {
	p.Tol = r.Config.Solver.Tolerance
	p.Branch = r.Config.BranchTermination()
	p.Logger = r.Logger
}

// SolveLP solves p and prints the solution.
func (r *Runner) SolveLP(ctx context.Context, p *lp.Problem) (*lp.Result, error) {
	r.configure(p)
	res, err := p.Solve(ctx)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("linear program solved",
		zap.Stringer("status", res.Status),
		zap.Float64("objective", res.F),
		zap.Int("nodes", res.Nodes))
	return res, WriteResult(r.Out, p, res)
}

// SolveTransport solves t and prints the flow table.
func (r *Runner) SolveTransport(ctx context.Context, t *lp.Transportation) (*lp.Plan, error) {
	plan, err := t.Solve(ctx, r.configure)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("transportation plan found",
		zap.Float64("cost", plan.Cost),
		zap.Int("routes", len(plan.Routes())))
	return plan, WritePlan(r.Out, plan)
}

// scaled standardizes d when configured. The returned function maps
// coefficients back to the units of d.
func (r *Runner) scaled(d *dataset.Dataset) (*dataset.Dataset, func(*regress.Model)) {
	if !r.Config.Regression.Standardize {
		return d, func(*regress.Model) {}
	}
	s := dataset.Standardize(d)
	return s.Transform(d), func(m *regress.Model) {
		m.Intercept, m.Coef = s.Unscale(m.Intercept, m.Coef)
	}
}

// Fit fits kind on d and prints the coefficients in the units of d with the
// training metrics. For KindSparse lambda is the number of nonzero coefficients.
func (r *Runner) Fit(ctx context.Context, kind regress.Kind, d *dataset.Dataset, lambda float64) (*regress.Model, error) {
	if kind == regress.KindLogistic {
		c, err := r.Classify(ctx, d, lambda)
		if err != nil {
			return nil, err
		}
		return &c.Model, nil
	}
	fd, unscale := r.scaled(d)
	m, err := regress.Fit(ctx, kind, fd.X, fd.Y, lambda, r.options())
	if err != nil {
		return nil, err
	}
	unscale(m)
	if err := WriteModel(r.Out, d.Features, m); err != nil {
		return nil, err
	}
	pred := m.Predict(d.X)
	mse, r2 := regress.MSE(d.Y, pred), regress.R2(d.Y, pred)
	r.Logger.Info("model fitted", zap.String("kind", string(kind)), zap.Float64("mse", mse))
	_, err = fmt.Fprintf(r.Out, "train mse: %s  r2: %s  support: %d\n",
		num(mse), num(r2), len(m.Support(r.Config.Regression.ZeroTol)))
	return m, err
}

// Classify fits a logistic classifier on d and prints the coefficients with
// their standard errors in the units of d, then the training metrics.
func (r *Runner) Classify(ctx context.Context, d *dataset.Dataset, lambda float64) (*regress.Classifier, error) {
	fd, s := d, (*dataset.Scaler)(nil)
	if r.Config.Regression.Standardize {
		s = dataset.Standardize(d)
		fd = s.Transform(d)
	}
	c, err := regress.Logistic(ctx, fd.X, fd.Y, lambda, r.options())
	if err != nil {
		return nil, err
	}
	if s != nil {
		c.Unscale(s)
	}
	if err := WriteClassifier(r.Out, d.Features, c); err != nil {
		return nil, err
	}
	acc := regress.Accuracy(d.Y, c.Classify(d.X, 0.5))
	loss := regress.LogLoss(d.Y, c.Probability(d.X))
	r.Logger.Info("model fitted", zap.String("kind", string(regress.KindLogistic)), zap.Float64("accuracy", acc))
	_, err = fmt.Fprintf(r.Out, "train accuracy: %s  log-loss: %s\n", num(acc), num(loss))
	return c, err
}

// Path fits kind along lambdas and prints the coefficient table.
func (r *Runner) Path(ctx context.Context, kind regress.Kind, d *dataset.Dataset, lambdas []float64) ([]*regress.Model, error) {
	fd, unscale := r.scaled(d)
	ms, err := regress.Path(ctx, kind, fd.X, fd.Y, lambdas, r.options())
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		unscale(m)
	}
	return ms, WritePath(r.Out, d.Features, ms)
}

// CrossValidate scores kind along lambdas with the configured folds and seed.
// Standardization is fitted inside every fold.
func (r *Runner) CrossValidate(ctx context.Context, kind regress.Kind, d *dataset.Dataset, lambdas []float64) (*regress.CVResult, error) {
	reg := r.Config.Regression
	cv, err := regress.CrossValidate(ctx, kind, d, lambdas, reg.Folds, reg.Seed, r.options())
	if err != nil {
		return nil, err
	}
	r.Logger.Info("cross-validation done",
		zap.String("kind", string(kind)),
		zap.Float64("best_lambda", cv.BestLambda()))
	return cv, WriteCV(r.Out, cv)
}

type example struct {
	name, title string
	run         func(context.Context, *Runner) error
}

var examples = []example{
	{"lp", "Giapetto's woodcarving (linear program)", lpExample("giapetto")},
	{"milp", "Capital budgeting (mixed-integer program)", lpExample("budget")},
	{"transport", "Powerco (transportation problem)", transportExample},
	{"linear", "Linear regression", fitExample(regress.KindLinear)},
	{"ridge", "Ridge regression path", pathExample(regress.KindRidge)},
	{"lasso", "Lasso regression path", pathExample(regress.KindLasso)},
	{"lad", "Least absolute deviations (linear program)", fitExample(regress.KindLAD)},
	{"sparse", "Best subset regression (mixed-integer program)", sparseExample},
	{"logistic", "Logistic regression", logisticExample},
	{"cv", "Cross-validated lasso", cvExample},
}

// Examples lists the example names in run order.
func Examples() []string {
	names := make([]string, len(examples))
	for i, e := range examples {
		names[i] = e.name
	}
	return names
}

// Run runs the named examples, or all of them in order when names is empty.
func (r *Runner) Run(ctx context.Context, names ...string) error {
	run := examples
	if len(names) > 0 {
		run = make([]example, 0, len(names))
		for _, name := range names {
			i := indexExample(name)
			if i < 0 {
				return fmt.Errorf("%w: %s", ErrUnknownExample, name)
			}
			run = append(run, examples[i])
		}
	}
	for _, e := range run {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "\n== %s ==\n", e.title)
		r.Logger.Debug("running example", zap.String("name", e.name))
		if err := e.run(ctx, r); err != nil {
			return fmt.Errorf("example %s: %w", e.name, err)
		}
	}
	return nil
}

func indexExample(name string) int {
	for i, e := range examples {
		if e.name == name {
			return i
		}
	}
	return -1
}

func lpExample(model string) func(context.Context, *Runner) error {
	return func(ctx context.Context, r *Runner) error {
		_, p, err := Model(model)
		if err != nil {
			return err
		}
		_, err = r.SolveLP(ctx, p)
		return err
	}
}

func transportExample(ctx context.Context, r *Runner) error {
	t, err := Transportation("powerco")
	if err != nil {
		return err
	}
	_, err = r.SolveTransport(ctx, t)
	return err
}

func fitExample(kind regress.Kind) func(context.Context, *Runner) error {
	return func(ctx context.Context, r *Runner) error {
		d, err := dataset.Demo(dataset.DemoTarget)
		if err != nil {
			return err
		}
		_, err = r.Fit(ctx, kind, d, 0)
		return err
	}
}

func pathExample(kind regress.Kind) func(context.Context, *Runner) error {
	return func(ctx context.Context, r *Runner) error {
		d, err := dataset.Demo(dataset.DemoTarget)
		if err != nil {
			return err
		}
		_, err = r.Path(ctx, kind, d, r.Config.Regression.Lambdas)
		return err
	}
}

func sparseExample(ctx context.Context, r *Runner) error {
	d, err := dataset.Demo(dataset.DemoTarget)
	if err != nil {
		return err
	}
	for k := 1; k <= r.Config.Regression.Sparsity; k++ {
		if _, err := r.Fit(ctx, regress.KindSparse, d, float64(k)); err != nil {
			return err
		}
	}
	return nil
}

func logisticExample(ctx context.Context, r *Runner) error {
	d, err := dataset.Demo(dataset.DemoLabel)
	if err != nil {
		return err
	}
	_, err = r.Fit(ctx, regress.KindLogistic, d, r.Config.Regression.Lambdas[0])
	return err
}

func cvExample(ctx context.Context, r *Runner) error {
	d, err := dataset.Demo(dataset.DemoTarget)
	if err != nil {
		return err
	}
	cv, err := r.CrossValidate(ctx, regress.KindLasso, d, r.Config.Regression.Lambdas)
	if err != nil {
		return err
	}
	_, err = r.Fit(ctx, regress.KindLasso, d, cv.BestLambda())
	return err
}
