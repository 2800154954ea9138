// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statopt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *c)
	assert.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
solver:
  accuracy: 1.0e-8
  max_iterations: 200
branch:
  max_nodes: 50
regression:
  lambdas: [0.5, 5]
  folds: 4
  sparsity: 2
  big_m: 10
  standardize: false
log:
  level: debug
`)
	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1e-8, c.Solver.Accuracy)
	assert.Equal(t, 200, c.Solver.MaxIterations)
	assert.Equal(t, 50, c.Branch.MaxNodes)
	assert.Equal(t, []float64{0.5, 5}, c.Regression.Lambdas)
	assert.Equal(t, 4, c.Regression.Folds)
	assert.Equal(t, 2, c.Regression.Sparsity)
	assert.Equal(t, 10.0, c.Regression.BigM)
	assert.False(t, c.Regression.Standardize)
	assert.Equal(t, "debug", c.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, Default().Branch.IntTol, c.Branch.IntTol)
	assert.Equal(t, Default().Solver.LBFGSIterations, c.Solver.LBFGSIterations)
}

func TestPrecedence(t *testing.T) {
	path := writeConfig(t, "regression:\n  folds: 4\n  sparsity: 2\n  seed: 3\n")
	t.Setenv("STATOPT_REGRESSION_FOLDS", "6")
	t.Setenv("STATOPT_REGRESSION_SEED", "9")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--folds=8", "--lambdas=0.25,4"}))

	c, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 8, c.Regression.Folds, "flag over env")
	assert.Equal(t, uint64(9), c.Regression.Seed, "env over file")
	assert.Equal(t, 2, c.Regression.Sparsity, "file over default")
	assert.Equal(t, []float64{0.25, 4}, c.Regression.Lambdas)
	assert.Equal(t, Default().Branch.MaxNodes, c.Branch.MaxNodes, "unset flag keeps default")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "regression:\n  folds: 1\n"), nil)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeConfig(t, "regression: [\n"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		patch func(*Config)
	}{
		{"accuracy", func(c *Config) { c.Solver.Accuracy = 0 }},
		{"iterations", func(c *Config) { c.Solver.MaxIterations = -1 }},
		{"nodes", func(c *Config) { c.Branch.MaxNodes = 0 }},
		{"int_tol", func(c *Config) { c.Branch.IntTol = 0.5 }},
		{"empty grid", func(c *Config) { c.Regression.Lambdas = nil }},
		{"negative lambda", func(c *Config) { c.Regression.Lambdas = []float64{1, -1} }},
		{"folds", func(c *Config) { c.Regression.Folds = 1 }},
		{"sparsity", func(c *Config) { c.Regression.Sparsity = -2 }},
		{"big_m", func(c *Config) { c.Regression.BigM = -1 }},
		{"level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.patch(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestConversions(t *testing.T) {
	c := Default()
	c.Solver.Accuracy = 1e-7
	c.Branch.MaxNodes = 42
	c.Regression.BigM = 3
	c.Regression.Workers = 2
	c.Regression.NoIntercept = true

	stop := c.Termination()
	assert.Equal(t, 1e-7, stop.Accuracy)
	assert.Equal(t, c.Solver.MaxIterations, stop.MaxIterations)

	branch := c.BranchTermination()
	assert.Equal(t, 42, branch.MaxNodes)
	assert.Equal(t, c.Branch.IntTol, branch.IntTol)

	logger := zap.NewNop()
	opts := c.Options(logger)
	assert.True(t, opts.NoIntercept)
	assert.Equal(t, 3.0, opts.BigM)
	assert.Equal(t, 2, opts.Workers)
	assert.True(t, opts.Standardize)
	assert.Equal(t, stop.Accuracy, opts.Stop.Accuracy)
	assert.Equal(t, stop.MaxIterations, opts.Stop.MaxIterations)
	assert.Equal(t, branch, opts.Branch)
	assert.Same(t, logger, opts.Logger)
}

func TestLogger(t *testing.T) {
	c := Default()
	c.Log.Level = "warn"
	logger, err := c.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	c.Log.Development = true
	c.Log.Level = "debug"
	logger, err = c.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}
