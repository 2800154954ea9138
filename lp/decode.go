// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"fmt"
	"io"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a linear program:
//
//	name: giapetto
//	sense: max
//	variables:
//	  - {name: soldiers, upper: 40}
//	  - {name: trains, integer: true}
//	objective: {soldiers: 3, trains: 2}
//	constraints:
//	  - {name: finishing, coef: {soldiers: 2, trains: 1}, op: "<=", rhs: 100}
//
// Variables default to [0, +∞). Use -.inf for a free lower limit.
type File struct {
	Name        string             `yaml:"name"`
	Sense       Sense              `yaml:"sense"`
	Variables   []Variable         `yaml:"variables"`
	Objective   map[string]float64 `yaml:"objective"`
	Constraints []Row              `yaml:"constraints"`
}

// Variable is one decision variable of a File.
type Variable struct {
	Name    string   `yaml:"name"`
	Lower   *float64 `yaml:"lower"`
	Upper   *float64 `yaml:"upper"`
	Integer bool     `yaml:"integer"`
}

// Row is one constraint of a File with coefficients keyed by variable name.
type Row struct {
	Name string             `yaml:"name"`
	Coef map[string]float64 `yaml:"coef"`
	Op   Op                 `yaml:"op"`
	RHS  float64            `yaml:"rhs"`
}

// Decode reads a YAML linear program.
func Decode(r io.Reader) (*File, *Problem, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("lp: decode model: %w", err)
	}
	p, err := f.Problem()
	if err != nil {
		return nil, nil, err
	}
	return &f, p, nil
}

// Problem converts the file into a Problem with variables in file order.
func (f *File) Problem() (*Problem, error) {
	n := len(f.Variables)
	if n == 0 {
		return nil, invalid("model %q declares no variables", f.Name)
	}
	p := &Problem{
		Sense:  f.Sense,
		Names:  make([]string, n),
		Cost:   make([]float64, n),
		Bounds: make([]Bound, n),
	}
	integer := false
	for j, v := range f.Variables {
		if v.Name == "" {
			return nil, invalid("variable %d has no name", j)
		}
		if slices.Contains(p.Names[:j], v.Name) {
			return nil, invalid("variable %q declared twice", v.Name)
		}
		p.Names[j] = v.Name
		p.Bounds[j] = NonNegative()
		if v.Lower != nil {
			p.Bounds[j].Lower = *v.Lower
		}
		if v.Upper != nil {
			p.Bounds[j].Upper = *v.Upper
		}
		integer = integer || v.Integer
	}
	if integer {
		p.Integer = make([]bool, n)
		for j, v := range f.Variables {
			p.Integer[j] = v.Integer
		}
	}

	var err error
	if p.Cost, err = f.vector(p.Names, f.Objective, "objective"); err != nil {
		return nil, err
	}
	for i, row := range f.Constraints {
		name := row.Name
		if name == "" {
			name = fmt.Sprintf("c%d", i+1)
		}
		coef, err := f.vector(p.Names, row.Coef, name)
		if err != nil {
			return nil, err
		}
		p.Cons = append(p.Cons, Constraint{Name: name, Coef: coef, Op: row.Op, RHS: row.RHS})
	}
	return p, nil
}

func (f *File) vector(names []string, coef map[string]float64, where string) ([]float64, error) {
	v := make([]float64, len(names))
	for name, c := range coef {
		j := slices.Index(names, name)
		if j < 0 {
			return nil, invalid("%s refers to unknown variable %q", where, name)
		}
		v[j] = c
	}
	return v, nil
}

// TransportationFile is the YAML layout of a transportation problem:
//
//	sources: {plant1: 35, plant2: 50}
//	sinks:   {city1: 45, city2: 40}
//	cost:
//	  plant1: {city1: 8, city2: 6}
//	  plant2: {city1: 9, city2: 12}
//
// Source and sink order follows the file.
type TransportationFile struct {
	Name    string    `yaml:"name"`
	Sources yaml.Node `yaml:"sources"`
	Sinks   yaml.Node `yaml:"sinks"`
	Cost    yaml.Node `yaml:"cost"`
	Integer bool      `yaml:"integer"`
}

// DecodeTransportation reads a YAML transportation problem.
func DecodeTransportation(r io.Reader) (*Transportation, error) {
	var f TransportationFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("lp: decode transportation: %w", err)
	}

	t := &Transportation{Integer: f.Integer}
	var err error
	if t.Sources, t.Supply, err = orderedMap(&f.Sources, "sources"); err != nil {
		return nil, err
	}
	if t.Sinks, t.Demand, err = orderedMap(&f.Sinks, "sinks"); err != nil {
		return nil, err
	}

	if f.Cost.Kind != yaml.MappingNode {
		return nil, invalid("cost must be a mapping of sources")
	}
	t.Cost = make([][]float64, len(t.Sources))
	for k := 0; k+1 < len(f.Cost.Content); k += 2 {
		src := f.Cost.Content[k].Value
		i := slices.Index(t.Sources, src)
		if i < 0 {
			return nil, invalid("cost refers to unknown source %q", src)
		}
		var row map[string]float64
		if err := f.Cost.Content[k+1].Decode(&row); err != nil {
			return nil, fmt.Errorf("lp: cost of %s: %w", src, err)
		}
		t.Cost[i] = make([]float64, len(t.Sinks))
		for j := range t.Cost[i] {
			t.Cost[i][j] = math.NaN()
		}
		for sink, c := range row {
			j := slices.Index(t.Sinks, sink)
			if j < 0 {
				return nil, invalid("cost of %s refers to unknown sink %q", src, sink)
			}
			t.Cost[i][j] = c
		}
		for j, c := range t.Cost[i] {
			if math.IsNaN(c) {
				return nil, invalid("missing cost %s -> %s", src, t.Sinks[j])
			}
		}
	}
	for i, row := range t.Cost {
		if row == nil {
			return nil, invalid("missing cost row for %s", t.Sources[i])
		}
	}
	return t, nil
}

// orderedMap decodes a name to number mapping keeping the file order.
func orderedMap(n *yaml.Node, what string) ([]string, []float64, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return nil, nil, invalid("%s must be a non-empty mapping", what)
	}
	var names []string
	var values []float64
	for k := 0; k+1 < len(n.Content); k += 2 {
		var v float64
		if err := n.Content[k+1].Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("lp: %s %s: %w", what, n.Content[k].Value, err)
		}
		names = append(names, n.Content[k].Value)
		values = append(values, v)
	}
	return names, values, nil
}
