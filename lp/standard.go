// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rankTol decides when an eliminated row counts as zero.
const rankTol = 1e-10

// column maps one problem variable to standard form columns:
// x = offset + sign·y[pos] - y[neg]. A fixed variable has pos = -1.
type column struct {
	offset float64
	sign   float64
	pos    int
	neg    int
}

// standard is minimize c·y + c0 s.t. Ay = b, y ≥ 0.
type standard struct {
	c    []float64
	c0   float64
	a    [][]float64 // rows
	b    []float64
	vars []column
}

// standardize converts the model with the given variable limits.
func (m *Model) standardize(lower, upper []float64) *standard {
	n := len(m.cost)
	s := &standard{vars: make([]column, n)}

	dir := 1.0
	if m.sense == Maximize {
		dir = -1
	}

	ncol := 0
	var bounds [][2]float64 // (column, upper limit) rows
	for j := 0; j < n; j++ {
		lo, hi := lower[j], upper[j]
		v := column{pos: -1, neg: -1, sign: 1}
		switch {
		case lo == hi:
			v.offset = lo
		case !math.IsInf(lo, -1):
			v.offset, v.pos = lo, ncol
			ncol++
			if !math.IsInf(hi, 1) {
				bounds = append(bounds, [2]float64{float64(v.pos), hi - lo})
			}
		case !math.IsInf(hi, 1):
			v.offset, v.sign, v.pos = hi, -1, ncol
			ncol++
		default:
			v.pos, v.neg = ncol, ncol+1
			ncol += 2
		}
		s.vars[j] = v
	}

	slack := ncol
	for _, c := range m.cons {
		ncol += btoi(c.Op != Equal)
	}
	ncol += len(bounds)

	s.c = make([]float64, ncol)
	for j, v := range s.vars {
		cj := dir * m.cost[j]
		s.c0 += cj * v.offset
		if v.pos >= 0 {
			s.c[v.pos] += cj * v.sign
		}
		if v.neg >= 0 {
			s.c[v.neg] -= cj
		}
	}

	for _, c := range m.cons {
		row := make([]float64, ncol)
		rhs := c.RHS
		for j, a := range c.Coef {
			v := s.vars[j]
			rhs -= a * v.offset
			if v.pos >= 0 {
				row[v.pos] += a * v.sign
			}
			if v.neg >= 0 {
				row[v.neg] -= a
			}
		}
		switch c.Op {
		case LessEq:
			row[slack] = 1
			slack++
		case GreaterEq:
			row[slack] = -1
			slack++
		}
		s.addRow(row, rhs)
	}

	for _, ub := range bounds {
		row := make([]float64, ncol)
		row[int(ub[0])] = 1
		row[slack] = 1
		slack++
		s.addRow(row, ub[1])
	}
	return s
}

func (s *standard) addRow(row []float64, rhs float64) {
	if rhs < 0 {
		floats.Scale(-1, row)
		rhs = -rhs
	}
	s.a = append(s.a, row)
	s.b = append(s.b, rhs)
}

// reduce drops linearly dependent rows by Gaussian elimination on [A|b].
// It reports false when a dependent row contradicts the others.
func (s *standard) reduce() bool {
	var basis [][]float64 // eliminated rows of [A|b]
	var pivots []int
	keepA, keepB := s.a[:0], s.b[:0]

	for i, row := range s.a {
		r := append(append(make([]float64, 0, len(row)+1), row...), s.b[i])
		scale := math.Max(1, floats.Norm(r, math.Inf(1)))
		for k, p := range pivots {
			if f := r[p]; f != 0 {
				floats.AddScaled(r, -f/basis[k][p], basis[k])
			}
		}
		coef := r[:len(row)]
		p := -1
		if len(coef) > 0 {
			p = floats.MaxIdx(absCopy(coef))
		}
		if p < 0 || math.Abs(coef[p]) <= rankTol*scale {
			if math.Abs(r[len(row)]) > rankTol*scale*1e3 {
				return false
			}
			continue
		}
		basis = append(basis, r)
		pivots = append(pivots, p)
		keepA, keepB = append(keepA, row), append(keepB, s.b[i])
	}
	s.a, s.b = keepA, keepB
	return true
}

// dropZeroColumns fixes columns that appear in no row at zero. It reports
// false when such a column has negative cost, which makes the problem unbounded.
// The returned index maps kept columns to the original ones.
func (s *standard) dropZeroColumns() (keep []int, ok bool) {
	for j := range s.c {
		used := false
		for _, row := range s.a {
			if row[j] != 0 {
				used = true
				break
			}
		}
		if used {
			keep = append(keep, j)
			continue
		}
		if s.c[j] < 0 {
			return nil, false
		}
	}
	return keep, true
}

// dense packs the kept columns for the simplex.
func (s *standard) dense(keep []int) (c []float64, a *mat.Dense) {
	c = make([]float64, len(keep))
	a = mat.NewDense(len(s.a), len(keep), nil)
	for k, j := range keep {
		c[k] = s.c[j]
		for i, row := range s.a {
			a.Set(i, k, row[j])
		}
	}
	return c, a
}

// restore maps a standard form point back to the problem variables.
func (s *standard) restore(y []float64) []float64 {
	x := make([]float64, len(s.vars))
	for j, v := range s.vars {
		x[j] = v.offset
		if v.pos >= 0 {
			x[j] += v.sign * y[v.pos]
		}
		if v.neg >= 0 {
			x[j] -= y[v.neg]
		}
	}
	return x
}

func absCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
