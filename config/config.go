// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the solver, search and regression settings shared by
// the statopt commands. Values are layered as flags over STATOPT_* environment
// variables over a YAML file over the defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/curioloop/statopt/bnb"
	"github.com/curioloop/statopt/regress"
	"github.com/curioloop/statopt/slsqp"
)

// EnvPrefix prefixes the environment variables, e.g. STATOPT_REGRESSION_FOLDS.
const EnvPrefix = "STATOPT"

var ErrInvalid = errors.New("invalid config")

// Solver configures the continuous engines.
type Solver struct {
	// Accuracy and MaxIterations stop SLSQP.
	Accuracy      float64 `mapstructure:"accuracy"`
	MaxIterations int     `mapstructure:"max_iterations"`
	// LBFGSIterations caps the logistic regression minimizer.
	LBFGSIterations int `mapstructure:"lbfgs_iterations"`
	// Tolerance is the simplex reduced cost tolerance.
	Tolerance float64 `mapstructure:"tolerance"`
}

// Branch configures branch and bound.
type Branch struct {
	MaxNodes int     `mapstructure:"max_nodes"`
	AbsGap   float64 `mapstructure:"abs_gap"`
	RelGap   float64 `mapstructure:"rel_gap"`
	IntTol   float64 `mapstructure:"int_tol"`
}

// Regression configures fits, paths and cross-validation.
type Regression struct {
	Lambdas     []float64 `mapstructure:"lambdas"`
	Folds       int       `mapstructure:"folds"`
	Sparsity    int       `mapstructure:"sparsity"`
	BigM        float64   `mapstructure:"big_m"`
	ZeroTol     float64   `mapstructure:"zero_tol"`
	Workers     int       `mapstructure:"workers"`
	Standardize bool      `mapstructure:"standardize"`
	NoIntercept bool      `mapstructure:"no_intercept"`
	Seed        uint64    `mapstructure:"seed"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Config struct {
	Solver     Solver     `mapstructure:"solver"`
	Branch     Branch     `mapstructure:"branch"`
	Regression Regression `mapstructure:"regression"`
	Log        Log        `mapstructure:"log"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	stop, branch := slsqp.DefaultTermination(), bnb.DefaultTermination()
	return Config{
		Solver: Solver{
			Accuracy:        stop.Accuracy,
			MaxIterations:   stop.MaxIterations,
			LBFGSIterations: 1000,
			Tolerance:       1e-10,
		},
		Branch: Branch{
			MaxNodes: branch.MaxNodes,
			AbsGap:   branch.AbsGap,
			RelGap:   branch.RelGap,
			IntTol:   branch.IntTol,
		},
		Regression: Regression{
			Lambdas:     []float64{0.01, 0.1, 1, 10, 100},
			Folds:       5,
			Sparsity:    3,
			ZeroTol:     1e-6,
			Standardize: true,
			Seed:        1,
		},
		Log: Log{Level: "info"},
	}
}

// flagKeys maps the flags registered by BindFlags to their config keys.
var flagKeys = map[string]string{
	"accuracy":       "solver.accuracy",
	"max-iterations": "solver.max_iterations",
	"max-nodes":      "branch.max_nodes",
	"lambdas":        "regression.lambdas",
	"folds":          "regression.folds",
	"k":              "regression.sparsity",
	"big-m":          "regression.big_m",
	"workers":        "regression.workers",
	"standardize":    "regression.standardize",
	"no-intercept":   "regression.no_intercept",
	"seed":           "regression.seed",
	"log-level":      "log.level",
}

// BindFlags registers the overridable settings on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Float64("accuracy", d.Solver.Accuracy, "SLSQP stopping accuracy")
	fs.Int("max-iterations", d.Solver.MaxIterations, "SLSQP iteration limit")
	fs.Int("max-nodes", d.Branch.MaxNodes, "branch and bound node limit")
	fs.StringSlice("lambdas", formatFloats(d.Regression.Lambdas), "penalty grid")
	fs.Int("folds", d.Regression.Folds, "cross-validation folds")
	fs.Int("k", d.Regression.Sparsity, "sparse regression cardinality")
	fs.Float64("big-m", d.Regression.BigM, "coefficient bound of sparse regression (0 derives it)")
	fs.Int("workers", d.Regression.Workers, "concurrent fits (0 uses GOMAXPROCS)")
	fs.Bool("standardize", d.Regression.Standardize, "standardize features before fitting")
	fs.Bool("no-intercept", d.Regression.NoIntercept, "fit without an intercept")
	fs.Uint64("seed", d.Regression.Seed, "seed of the fold assignment")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// Load reads the YAML file at path when not empty, then the environment,
// then the flags of fs that were set. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("solver.accuracy", d.Solver.Accuracy)
	v.SetDefault("solver.max_iterations", d.Solver.MaxIterations)
	v.SetDefault("solver.lbfgs_iterations", d.Solver.LBFGSIterations)
	v.SetDefault("solver.tolerance", d.Solver.Tolerance)
	v.SetDefault("branch.max_nodes", d.Branch.MaxNodes)
	v.SetDefault("branch.abs_gap", d.Branch.AbsGap)
	v.SetDefault("branch.rel_gap", d.Branch.RelGap)
	v.SetDefault("branch.int_tol", d.Branch.IntTol)
	v.SetDefault("regression.lambdas", d.Regression.Lambdas)
	v.SetDefault("regression.folds", d.Regression.Folds)
	v.SetDefault("regression.sparsity", d.Regression.Sparsity)
	v.SetDefault("regression.big_m", d.Regression.BigM)
	v.SetDefault("regression.zero_tol", d.Regression.ZeroTol)
	v.SetDefault("regression.workers", d.Regression.Workers)
	v.SetDefault("regression.standardize", d.Regression.Standardize)
	v.SetDefault("regression.no_intercept", d.Regression.NoIntercept)
	v.SetDefault("regression.seed", d.Regression.Seed)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Validate reports every out of range setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	check(c.Solver.Accuracy > 0, "solver.accuracy must be positive")
	check(c.Solver.MaxIterations > 0, "solver.max_iterations must be positive")
	check(c.Solver.LBFGSIterations > 0, "solver.lbfgs_iterations must be positive")
	check(c.Solver.Tolerance >= 0, "solver.tolerance must not be negative")
	check(c.Branch.MaxNodes > 0, "branch.max_nodes must be positive")
	check(c.Branch.AbsGap >= 0 && c.Branch.RelGap >= 0, "branch gaps must not be negative")
	check(c.Branch.IntTol > 0 && c.Branch.IntTol < 0.5, "branch.int_tol must be in (0, 0.5)")
	check(len(c.Regression.Lambdas) > 0, "regression.lambdas is empty")
	for _, l := range c.Regression.Lambdas {
		check(l >= 0, "regression.lambdas has negative value %v", l)
	}
	check(c.Regression.Folds >= 2, "regression.folds must be at least 2")
	check(c.Regression.Sparsity >= 0, "regression.sparsity must not be negative")
	check(c.Regression.BigM >= 0, "regression.big_m must not be negative")
	check(c.Regression.ZeroTol > 0, "regression.zero_tol must be positive")
	check(c.Regression.Workers >= 0, "regression.workers must not be negative")
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		check(false, "log.level %q", c.Log.Level)
	}
	return errors.Join(errs...)
}

// Termination returns the SLSQP stopping criteria.
func (c *Config) Termination() slsqp.Termination {
	t := slsqp.DefaultTermination()
	t.Accuracy, t.MaxIterations = c.Solver.Accuracy, c.Solver.MaxIterations
	return t
}

// BranchTermination returns the branch and bound limits.
func (c *Config) BranchTermination() bnb.Termination {
	return bnb.Termination{
		MaxNodes: c.Branch.MaxNodes,
		AbsGap:   c.Branch.AbsGap,
		RelGap:   c.Branch.RelGap,
		IntTol:   c.Branch.IntTol,
	}
}

// Options returns the regression options logging to logger.
func (c *Config) Options(logger *zap.Logger) regress.Options {
	return regress.Options{
		NoIntercept:   c.Regression.NoIntercept,
		ZeroTol:       c.Regression.ZeroTol,
		BigM:          c.Regression.BigM,
		Stop:          c.Termination(),
		Branch:        c.BranchTermination(),
		MaxIterations: c.Solver.LBFGSIterations,
		Standardize:   c.Regression.Standardize,
		Workers:       c.Regression.Workers,
		Logger:        logger,
	}
}

// Logger builds a production logger at the configured level, or a
// development logger when Log.Development is set.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func formatFloats(v []float64) []string {
	s := make([]string, len(v))
	for i, f := range v {
		s[i] = fmt.Sprint(f)
	}
	return s
}
