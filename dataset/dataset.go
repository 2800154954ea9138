// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dataset holds the design matrices fed to the regression models.
//
// A Dataset is a dense feature matrix plus one response column. It can be read
// from CSV, taken from the embedded demo data, or drawn from a synthetic
// sparse linear or logistic ground truth.
package dataset

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrNoTarget  = errors.New("dataset: target column not found")
	ErrEmpty     = errors.New("dataset: no observations")
	ErrDimension = errors.New("dataset: dimension mismatch")
)

//go:embed demo.csv
var demoCSV []byte

// Demo columns. The regression response is DemoTarget, the classifier response DemoLabel.
const (
	DemoTarget = "y"
	DemoLabel  = "label"
)

// Dataset is n observations of p features and one response.
type Dataset struct {
	Features []string
	Target   string
	X        *mat.Dense // n × p
	Y        []float64  // n
}

// Dims returns the number of observations and features.
func (d *Dataset) Dims() (n, p int) {
	return d.X.Dims()
}

// New checks that x and y agree and wraps them. Feature names default to x1..xp.
func New(x *mat.Dense, y []float64, features []string, target string) (*Dataset, error) {
	if x == nil || len(y) == 0 {
		return nil, ErrEmpty
	}
	n, p := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d rows and %d responses", ErrDimension, n, len(y))
	}
	if features == nil {
		features = make([]string, p)
		for j := range features {
			features[j] = fmt.Sprintf("x%d", j+1)
		}
	}
	if len(features) != p {
		return nil, fmt.Errorf("%w: %d columns and %d names", ErrDimension, p, len(features))
	}
	return &Dataset{Features: features, Target: target, X: x, Y: y}, nil
}

// ReadCSV reads a header row followed by numeric rows. The target column
// becomes Y, columns named in exclude are dropped, the rest become features.
func ReadCSV(r io.Reader, target string, exclude ...string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	header = slices.Clone(header)

	ti := slices.Index(header, target)
	if ti < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTarget, target)
	}
	var cols []int
	var features []string
	for j, name := range header {
		if j != ti && !slices.Contains(exclude, name) {
			cols = append(cols, j)
			features = append(features, name)
		}
	}

	var data, y []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
		v, err := strconv.ParseFloat(rec[ti], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d column %q: %w", line, target, err)
		}
		y = append(y, v)
		for k, j := range cols {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: line %d column %q: %w", line, features[k], err)
			}
			data = append(data, v)
		}
	}
	if len(y) == 0 {
		return nil, ErrEmpty
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrDimension)
	}
	return New(mat.NewDense(len(y), len(cols), data), y, features, target)
}

// Load reads a CSV file, see ReadCSV.
func Load(path, target string, exclude ...string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, target, exclude...)
}

// Demo returns the embedded demo data with the given response column,
// either DemoTarget or DemoLabel. The other response is dropped.
func Demo(target string) (*Dataset, error) {
	other := DemoLabel
	if target == DemoLabel {
		other = DemoTarget
	}
	return ReadCSV(bytes.NewReader(demoCSV), target, other)
}

// Subset copies the given rows into a new dataset.
func (d *Dataset) Subset(rows []int) *Dataset {
	_, p := d.Dims()
	x := mat.NewDense(len(rows), p, nil)
	y := make([]float64, len(rows))
	for i, r := range rows {
		x.SetRow(i, d.X.RawRowView(r))
		y[i] = d.Y[r]
	}
	return &Dataset{Features: d.Features, Target: d.Target, X: x, Y: y}
}

// Split shuffles the rows with seed and returns a training set holding
// frac of them and a test set with the rest.
func (d *Dataset) Split(frac float64, seed uint64) (train, test *Dataset, err error) {
	n, _ := d.Dims()
	cut := int(math.Round(frac * float64(n)))
	if frac <= 0 || frac >= 1 || cut == 0 || cut == n {
		return nil, nil, fmt.Errorf("dataset: split fraction %v leaves an empty part", frac)
	}
	perm := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(n)
	return d.Subset(perm[:cut]), d.Subset(perm[cut:]), nil
}

// Fold is one cross-validation partition.
type Fold struct {
	Train, Test *Dataset
}

// Folds shuffles the rows with seed and partitions them into k folds of near equal size.
func (d *Dataset) Folds(k int, seed uint64) ([]Fold, error) {
	n, _ := d.Dims()
	if k < 2 || k > n {
		return nil, fmt.Errorf("dataset: %d folds for %d observations", k, n)
	}
	perm := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(n)
	folds := make([]Fold, k)
	for f := range folds {
		lo, hi := f*n/k, (f+1)*n/k
		train := slices.Concat(perm[:lo], perm[hi:])
		folds[f] = Fold{Train: d.Subset(train), Test: d.Subset(perm[lo:hi])}
	}
	return folds, nil
}

// Scaler centers and scales every feature column.
type Scaler struct {
	Mean, Std []float64
}

// Standardize returns the column means and standard deviations of d.
// A constant column gets unit scale.
func Standardize(d *Dataset) *Scaler {
	n, p := d.Dims()
	s := &Scaler{Mean: make([]float64, p), Std: make([]float64, p)}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, d.X)
		s.Mean[j], s.Std[j] = stat.MeanStdDev(col, nil)
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}
	return s
}

// Transform returns a standardized copy of d.
func (s *Scaler) Transform(d *Dataset) *Dataset {
	n, p := d.Dims()
	x := mat.NewDense(n, p, nil)
	x.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, d.X)
	return &Dataset{Features: d.Features, Target: d.Target, X: x, Y: slices.Clone(d.Y)}
}

// Unscale maps coefficients fitted on standardized features back to the
// original units and returns the adjusted intercept.
func (s *Scaler) Unscale(intercept float64, coef []float64) (float64, []float64) {
	out := make([]float64, len(coef))
	for j, b := range coef {
		out[j] = b / s.Std[j]
		intercept -= out[j] * s.Mean[j]
	}
	return intercept, out
}

// Truth is the generating model of a synthetic dataset.
type Truth struct {
	Intercept float64
	Coef      []float64
}

// Synthetic draws n observations of p standard normal features whose
// response depends linearly on the first k of them plus Gaussian noise.
func Synthetic(n, p, k int, noise float64, seed uint64) (*Dataset, Truth, error) {
	if n <= 0 || p <= 0 || k < 0 || k > p {
		return nil, Truth{}, fmt.Errorf("%w: n=%d p=%d k=%d", ErrDimension, n, p, k)
	}
	src := rand.NewPCG(seed, seed+1)
	z := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	e := distuv.Normal{Mu: 0, Sigma: math.Max(noise, 0), Src: src}
	c := distuv.Uniform{Min: 1, Max: 3, Src: src}

	truth := Truth{Intercept: 1, Coef: make([]float64, p)}
	for j := 0; j < k; j++ {
		truth.Coef[j] = c.Rand()
		if j%2 == 1 {
			truth.Coef[j] = -truth.Coef[j]
		}
	}

	x := mat.NewDense(n, p, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		y[i] = truth.Intercept
		for j := range row {
			row[j] = z.Rand()
			y[i] += truth.Coef[j] * row[j]
		}
		if noise > 0 {
			y[i] += e.Rand()
		}
	}
	d, err := New(x, y, nil, DemoTarget)
	return d, truth, err
}

// SyntheticLogistic draws n observations of p standard normal features with
// Bernoulli labels whose log-odds are linear in the features.
func SyntheticLogistic(n, p int, seed uint64) (*Dataset, Truth, error) {
	if n <= 0 || p <= 0 {
		return nil, Truth{}, fmt.Errorf("%w: n=%d p=%d", ErrDimension, n, p)
	}
	src := rand.NewPCG(seed, seed+1)
	z := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	u := distuv.Uniform{Min: 0, Max: 1, Src: src}

	truth := Truth{Intercept: 0.5, Coef: make([]float64, p)}
	for j := range truth.Coef {
		truth.Coef[j] = 2 * z.Rand()
	}

	x := mat.NewDense(n, p, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		eta := truth.Intercept
		for j := range row {
			row[j] = z.Rand()
			eta += truth.Coef[j] * row[j]
		}
		if u.Rand() < 1/(1+math.Exp(-eta)) {
			y[i] = 1
		}
	}
	d, err := New(x, y, nil, DemoLabel)
	return d, truth, err
}
