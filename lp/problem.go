// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lp builds linear and mixed-integer linear programs and solves them.
//
// A Problem is written in the natural form the models use: named variables with
// bounds, ≤ ≥ = rows and a sense. It is converted into the standard form
//
//	minimize   cᵀx
//	s.t.       Ax = b
//	           x ≥ 0
//
// and handed to the gonum simplex. Problems with integer variables are solved
// by branch and bound over the linear relaxation.
package lp

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/curioloop/statopt/bnb"
)

var (
	ErrInfeasible     = errors.New("lp: problem is infeasible")
	ErrUnbounded      = errors.New("lp: problem is unbounded")
	ErrNodeLimit      = errors.New("lp: branch and bound node limit reached")
	ErrInvalidProblem = errors.New("lp: invalid problem")
)

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidProblem}, a...)...)
}

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// UnmarshalText accepts min, minimize, max and maximize.
func (s *Sense) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "min", "minimize":
		*s = Minimize
	case "max", "maximize":
		*s = Maximize
	default:
		return fmt.Errorf("lp: unknown sense %q", b)
	}
	return nil
}

// Op is the relation of a constraint row to its right-hand side.
type Op int

const (
	LessEq Op = iota
	GreaterEq
	Equal
)

func (o Op) String() string {
	switch o {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// UnmarshalText accepts <=, >=, = and ==.
func (o *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "<=", "≤":
		*o = LessEq
	case ">=", "≥":
		*o = GreaterEq
	case "=", "==":
		*o = Equal
	default:
		return fmt.Errorf("lp: unknown relation %q", b)
	}
	return nil
}

// Constraint is the row Coef·x Op RHS.
type Constraint struct {
	Name string
	Coef []float64
	Op   Op
	RHS  float64
}

// Bound is the range of one variable. An infinite or NaN side is absent.
type Bound struct {
	Lower, Upper float64
}

// NonNegative is the default bound [0, +∞).
func NonNegative() Bound { return Bound{0, math.Inf(1)} }

// Free is the bound (-∞, +∞).
func Free() Bound { return Bound{math.Inf(-1), math.Inf(1)} }

// Problem is a linear program over N = len(Cost) variables.
type Problem struct {
	Sense   Sense
	Names   []string // optional variable names, x1..xn by default
	Cost    []float64
	Cons    []Constraint
	Bounds  []Bound // nil means every variable is non-negative
	Integer []bool  // nil means a pure linear program

	// Tol is the simplex optimality tolerance, zero selects the gonum default.
	Tol    float64
	Branch bnb.Termination
	Logger *zap.Logger
}

// Model is a validated problem ready to be solved.
type Model struct {
	sense   Sense
	names   []string
	cost    []float64
	cons    []Constraint
	lower   []float64
	upper   []float64
	integer []int
	tol     float64
	branch  bnb.Termination
	log     *zap.Logger
}

// New validates the problem and returns a model that can be solved repeatedly.
func (p *Problem) New() (*Model, error) {
	n := len(p.Cost)
	switch {
	case n == 0:
		return nil, invalid("no variables")
	case p.Sense != Minimize && p.Sense != Maximize:
		return nil, invalid("unknown sense %d", p.Sense)
	case p.Names != nil && len(p.Names) != n:
		return nil, invalid("%d names for %d variables", len(p.Names), n)
	case p.Bounds != nil && len(p.Bounds) != n:
		return nil, invalid("%d bounds for %d variables", len(p.Bounds), n)
	case p.Integer != nil && len(p.Integer) != n:
		return nil, invalid("%d integrality flags for %d variables", len(p.Integer), n)
	case p.Tol < 0:
		return nil, invalid("negative tolerance")
	}

	m := &Model{
		sense:  p.Sense,
		cost:   slices.Clone(p.Cost),
		cons:   make([]Constraint, len(p.Cons)),
		lower:  make([]float64, n),
		upper:  make([]float64, n),
		tol:    p.Tol,
		branch: p.Branch,
		log:    p.Logger,
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}

	m.names = p.Names
	if m.names == nil {
		m.names = make([]string, n)
		for j := range m.names {
			m.names[j] = fmt.Sprintf("x%d", j+1)
		}
	}
	m.names = slices.Clone(m.names)

	for _, c := range m.cost {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, invalid("cost must be finite")
		}
	}

	for i, c := range p.Cons {
		if len(c.Coef) != n {
			return nil, invalid("constraint %d has %d coefficients, want %d", i, len(c.Coef), n)
		}
		if c.Op != LessEq && c.Op != GreaterEq && c.Op != Equal {
			return nil, invalid("constraint %d has unknown relation", i)
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return nil, invalid("constraint %d has non finite right-hand side", i)
		}
		m.cons[i] = Constraint{Name: c.Name, Coef: slices.Clone(c.Coef), Op: c.Op, RHS: c.RHS}
	}

	for j := 0; j < n; j++ {
		b := NonNegative()
		if p.Bounds != nil {
			b = p.Bounds[j]
		}
		lo, hi := b.Lower, b.Upper
		if math.IsNaN(lo) {
			lo = math.Inf(-1)
		}
		if math.IsNaN(hi) {
			hi = math.Inf(1)
		}
		if p.Integer != nil && p.Integer[j] {
			lo, hi = math.Ceil(lo), math.Floor(hi)
			m.integer = append(m.integer, j)
		}
		if lo > hi || math.IsInf(lo, 1) || math.IsInf(hi, -1) {
			return nil, invalid("empty bound for %s", m.names[j])
		}
		m.lower[j], m.upper[j] = lo, hi
	}
	return m, nil
}

// Names returns the variable names in column order.
func (m *Model) Names() []string {
	return m.names
}

// Status is the outcome of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Unbounded
	// NodeLimit branch and bound stopped early, X is the best integer point found.
	NodeLimit
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case NodeLimit:
		return "node limit"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Err returns the sentinel error for an unsuccessful status, nil otherwise.
func (s Status) Err() error {
	switch s {
	case Infeasible:
		return ErrInfeasible
	case Unbounded:
		return ErrUnbounded
	case NodeLimit:
		return ErrNodeLimit
	}
	return nil
}

// Result is a solution in the variables and sense of the original problem.
type Result struct {
	Status Status
	F      float64
	X      []float64
	Names  []string
	// Nodes is the number of relaxations solved, 1 for a pure linear program.
	Nodes int
}

// Value returns the value of the named variable.
func (r *Result) Value(name string) (float64, bool) {
	j := slices.Index(r.Names, name)
	if j < 0 || r.X == nil {
		return math.NaN(), false
	}
	return r.X[j], true
}

// Slack returns the slack of every row of p at the result: RHS - row for ≤,
// row - RHS for ≥ and the absolute residual for =.
func (r *Result) Slack(p *Problem) []float64 {
	s := make([]float64, len(p.Cons))
	for i, c := range p.Cons {
		v := 0.0
		for j, a := range c.Coef {
			v += a * r.X[j]
		}
		switch c.Op {
		case LessEq:
			s[i] = c.RHS - v
		case GreaterEq:
			s[i] = v - c.RHS
		default:
			s[i] = math.Abs(v - c.RHS)
		}
	}
	return s
}
