// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command statopt solves linear programs and fits the regression models of
// the statopt library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/curioloop/statopt/config"
	"github.com/curioloop/statopt/dataset"
	"github.com/curioloop/statopt/lp"
	"github.com/curioloop/statopt/notebook"
	"github.com/curioloop/statopt/regress"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	configFile string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "statopt",
		Short: "Optimization models for statistical learning",
		Long: `statopt solves linear and mixed-integer programs and fits regression
models formulated as optimization problems: least squares, ridge, lasso,
least absolute deviations, best subset and logistic regression.

Settings come from --config (YAML), STATOPT_* environment variables and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Log.Level = zapcore.DebugLevel.String()
			}
			logger, err := cfg.Logger()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.DurationVar(&a.timeout, "timeout", 5*time.Minute, "Solve timeout")
	config.BindFlags(pf)

	root.AddCommand(
		a.lpCmd(),
		a.transportCmd(),
		a.fitCmd(),
		a.pathCmd(),
		a.cvCmd(),
		a.examplesCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// solveContext returns the solve context, canceled on timeout or SIGINT/SIGTERM.
func (a *app) solveContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (a *app) runner(cmd *cobra.Command) *notebook.Runner {
	return notebook.New(cmd.OutOrStdout(), a.cfg, a.logger)
}

func (a *app) lpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lp FILE",
		Short: "Solve a YAML linear or mixed-integer program",
		Long: `Solves the model in FILE and prints the variable values and the
slack of every constraint. Example model:

  sense: max
  variables:
    - {name: soldiers, upper: 40}
    - {name: trains}
  objective: {soldiers: 3, trains: 2}
  constraints:
    - {name: finishing, coef: {soldiers: 2, trains: 1}, op: "<=", rhs: 100}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			_, p, err := lp.Decode(f)
			if err != nil {
				return err
			}
			ctx, cancel := a.solveContext(cmd)
			defer cancel()
			res, err := a.runner(cmd).SolveLP(ctx, p)
			if err != nil {
				return err
			}
			return res.Status.Err()
		},
	}
}

func (a *app) transportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transport FILE",
		Short: "Solve a YAML transportation problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			t, err := lp.DecodeTransportation(f)
			if err != nil {
				return err
			}
			ctx, cancel := a.solveContext(cmd)
			defer cancel()
			_, err = a.runner(cmd).SolveTransport(ctx, t)
			return err
		},
	}
}

// dataFlags are the dataset selection flags of the regression commands.
type dataFlags struct {
	kind    string
	data    string
	target  string
	exclude []string
}

func (d *dataFlags) register(cmd *cobra.Command, kind string) {
	cmd.Flags().StringVarP(&d.kind, "model", "m", kind, fmt.Sprintf("model kind %v", regress.Kinds))
	cmd.Flags().StringVar(&d.data, "data", "", "CSV file with a header row (default: embedded demo data)")
	cmd.Flags().StringVar(&d.target, "target", "", "response column (default: y, or label for logistic)")
	cmd.Flags().StringSliceVar(&d.exclude, "exclude", nil, "columns to ignore")
}

func (d *dataFlags) load() (regress.Kind, *dataset.Dataset, error) {
	kind, err := regress.ParseKind(d.kind)
	if err != nil {
		return "", nil, err
	}
	target := d.target
	if target == "" {
		target = dataset.DemoTarget
		if kind == regress.KindLogistic {
			target = dataset.DemoLabel
		}
	}
	var ds *dataset.Dataset
	if d.data == "" {
		ds, err = dataset.Demo(target)
	} else {
		ds, err = dataset.Load(d.data, target, d.exclude...)
	}
	return kind, ds, err
}

func (a *app) fitCmd() *cobra.Command {
	var (
		df     dataFlags
		lambda float64
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit one regression model and print its coefficients",
		Example: `  statopt fit --model lasso --lambda 5
  statopt fit --model sparse --k 2
  statopt fit --model logistic --data data.csv --target label`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ds, err := df.load()
			if err != nil {
				return err
			}
			if kind == regress.KindSparse {
				lambda = float64(a.cfg.Regression.Sparsity)
			}
			ctx, cancel := a.solveContext(cmd)
			defer cancel()
			_, err = a.runner(cmd).Fit(ctx, kind, ds, lambda)
			return err
		},
	}
	df.register(cmd, string(regress.KindLinear))
	cmd.Flags().Float64VarP(&lambda, "lambda", "l", 1, "penalty weight (the ℓ1 budget for lasso-budget)")
	return cmd
}

func (a *app) pathCmd() *cobra.Command {
	var df dataFlags
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print coefficients along the penalty grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ds, err := df.load()
			if err != nil {
				return err
			}
			ctx, cancel := a.solveContext(cmd)
			defer cancel()
			_, err = a.runner(cmd).Path(ctx, kind, ds, a.cfg.Regression.Lambdas)
			return err
		},
	}
	df.register(cmd, string(regress.KindLasso))
	return cmd
}

func (a *app) cvCmd() *cobra.Command {
	var df dataFlags
	cmd := &cobra.Command{
		Use:   "cv",
		Short: "Select the penalty by k-fold cross-validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ds, err := df.load()
			if err != nil {
				return err
			}
			ctx, cancel := a.solveContext(cmd)
			defer cancel()
			r := a.runner(cmd)
			cv, err := r.CrossValidate(ctx, kind, ds, a.cfg.Regression.Lambdas)
			if err != nil {
				return err
			}
			_, err = r.Fit(ctx, kind, ds, cv.BestLambda())
			return err
		},
	}
	df.register(cmd, string(regress.KindLasso))
	return cmd
}

func (a *app) examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "examples [NAME...]",
		Short:     "Run the worked examples in order",
		Long:      fmt.Sprintf("Runs the named examples, or all of them: %v.", notebook.Examples()),
		ValidArgs: notebook.Examples(),
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.solveContext(cmd)
			defer cancel()
			return a.runner(cmd).Run(ctx, args...)
		},
	}
}
